package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/edgard/memberqa/internal/config"
)

// GeminiExtractor implements Extractor on Google's Gemini API.
type GeminiExtractor struct {
	genaiClient   *genai.Client
	log           *slog.Logger
	contentConfig *genai.GenerateContentConfig
	modelName     string
	maxRetries    int
	retryDelay    time.Duration
}

// NewGeminiExtractor creates a Gemini-backed extractor with the provided
// configuration.
func NewGeminiExtractor(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (*GeminiExtractor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	contentConfig := &genai.GenerateContentConfig{
		Temperature: &cfg.Temperature,
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: ExtractionSystemInstruction}},
		},
	}

	logger := log.With("component", "gemini_extractor")
	logger.Info("Gemini extractor initialized", "model", cfg.ModelName)
	return &GeminiExtractor{
		genaiClient:   gi,
		log:           logger,
		contentConfig: contentConfig,
		modelName:     cfg.ModelName,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    time.Duration(cfg.RetryDelaySeconds) * time.Second,
	}, nil
}

// ExtractWithContext submits the transcript and question and returns the
// model's answer text. Quota and transient server errors are retried a
// bounded number of times before failing.
func (g *GeminiExtractor) ExtractWithContext(ctx context.Context, transcript, question string) (string, error) {
	prompt := fmt.Sprintf(ExtractionPromptTemplate, transcript, question)
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	resp, err := g.generateWithRetries(ctx, contents)
	if err != nil {
		return "", err
	}

	return g.extractText(ctx, resp)
}

func (g *GeminiExtractor) generateWithRetries(ctx context.Context, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	var err error

	for i := 0; i <= g.maxRetries; i++ {
		resp, err = g.genaiClient.Models.GenerateContent(ctx, g.modelName, contents, g.contentConfig)
		if err == nil {
			return resp, nil
		}

		var apiErr *genai.APIError
		retriable := errors.As(err, &apiErr) && (apiErr.Code == 429 || apiErr.Code == 500 || apiErr.Code == 503)
		if !retriable {
			g.log.ErrorContext(ctx, "Gemini call failed with non-retriable error", "error", err)
			return nil, fmt.Errorf("gemini API call failed: %w", err)
		}

		if i < g.maxRetries {
			g.log.WarnContext(ctx, "Retrying Gemini call", "attempt", i+1, "code", apiErr.Code, "delay", g.retryDelay)
			select {
			case <-time.After(g.retryDelay):
			case <-ctx.Done():
				return nil, fmt.Errorf("gemini API call cancelled: %w", ctx.Err())
			}
		}
	}

	g.log.ErrorContext(ctx, "Gemini call failed after max retries", "retries", g.maxRetries, "error", err)
	return nil, fmt.Errorf("gemini API call failed after %d retries: %w", g.maxRetries, err)
}

func (g *GeminiExtractor) extractText(ctx context.Context, resp *genai.GenerateContentResponse) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reason := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reason = resp.PromptFeedback.BlockReasonMessage
		}
		g.log.ErrorContext(ctx, "Gemini request blocked", "reason", reason)
		return "", fmt.Errorf("extraction blocked by safety filter: %s", reason)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("extraction returned no content")
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("extraction returned empty text")
	}

	return text, nil
}
