package answer

// ExtractionSystemInstruction defines the system instruction for the
// answer-extraction model.
const ExtractionSystemInstruction = `You answer questions about members based solely on their recorded messages. Messages are grouped under "## <member name>" headings and formatted as "- [timestamp] <message text>". Ground every answer in a specific message; handle relative dates, negation, and synthesis across multiple messages when the evidence supports it.`

// ExtractionPromptTemplate is the per-question prompt. The format string
// expects 2 parameters: the labeled message transcript and the question.
const ExtractionPromptTemplate = `%s

Based on the member messages above, answer this question accurately and concisely:

%s

Rules:
- Answer based ONLY on the information in the messages above
- If you cannot find the answer, say "I don't have enough information to answer that question."
- Be specific and cite relevant details
- Keep the answer concise

Answer:`
