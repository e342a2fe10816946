package models

import "time"

// Chat represents a conversation container in the research assistant. It provides basic identification
// and labeling capabilities for organizing message threads.
type Chat struct {
	ID    string
	Title string
}

// Message represents an individual transcript turn within a chat. Assistant turns carry the citations
// returned by the inference service alongside the answer text. A message is immutable once it has been
// appended to the transcript; assistant turns are only appended after their stream has finalized.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time

	// Citations is only populated for assistant messages.
	Citations []Citation `json:",omitempty"`
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a user message.
	RoleUser Role = "user"
	// RoleAssistant represents an assistant message.
	RoleAssistant Role = "assistant"
)

// Streaming states used by the transcript view to mark whether a message is still being produced.
const (
	StreamingStateLoading = "loading"
	StreamingStateEnded   = "ended"
)
