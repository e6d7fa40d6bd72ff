package llm

import (
	"context"
	"fmt"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat completion message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a normalized completion request.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Client produces a reply for a message list.
type Client interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// APIError is a non-2xx reply from a completion endpoint.
type APIError struct {
	Provider  string
	Status    int
	Body      string
	Retryable bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s chat completion status %d: %s", e.Provider, e.Status, e.Body)
}
