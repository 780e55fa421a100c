package interfaces

import "context"

// Message represents a single message in a chat conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user", or "assistant"
	Content string `json:"content"`
}

// LLMService provides chat completions. Implementations own their
// timeout handling; callers pass a context for cancellation.
type LLMService interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	Close() error
}
