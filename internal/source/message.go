package source

import (
	"sort"
	"time"
)

// Message is a single member statement as fetched from the upstream API.
// Messages are immutable once fetched. Identity is ID; two messages with the
// same (UserID, Text, Timestamp) are considered duplicates.
type Message struct {
	ID        string
	UserID    string
	UserName  string
	Timestamp time.Time
	Text      string
}

// MessageSet is an ordered sequence of messages plus a grouped-by-user view.
// It is built fresh on every cache refresh and never mutated in place.
type MessageSet struct {
	Messages []Message

	byUser    map[string][]*Message
	userNames []string
}

// NewMessageSet builds a MessageSet from the given messages. The per-user
// views are ordered by timestamp; they point into Messages rather than
// copying it.
func NewMessageSet(messages []Message) *MessageSet {
	set := &MessageSet{
		Messages: messages,
		byUser:   make(map[string][]*Message),
	}

	for i := range messages {
		m := &messages[i]
		set.byUser[m.UserName] = append(set.byUser[m.UserName], m)
	}

	for name, msgs := range set.byUser {
		sort.SliceStable(msgs, func(i, j int) bool {
			return msgs[i].Timestamp.Before(msgs[j].Timestamp)
		})
		set.userNames = append(set.userNames, name)
	}
	sort.Strings(set.userNames)

	return set
}

// UserNames returns every distinct user name present in the set, sorted.
func (s *MessageSet) UserNames() []string {
	return s.userNames
}

// MessagesFor returns the user's messages ordered by timestamp, or nil if the
// user is unknown.
func (s *MessageSet) MessagesFor(userName string) []*Message {
	return s.byUser[userName]
}

// Len returns the number of messages in the set.
func (s *MessageSet) Len() int {
	return len(s.Messages)
}
