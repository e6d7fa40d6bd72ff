package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockClient returns deterministic replies for local development.
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

func (m *MockClient) Name() string { return "mock" }

func (m *MockClient) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	last := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			last = strings.TrimSpace(req.Messages[i].Content)
			break
		}
	}
	if last == "" {
		return "Bonjour ! De quoi veux-tu parler aujourd'hui ?", nil
	}
	return fmt.Sprintf("Tu as dit : « %s ». Peux-tu m'en dire un peu plus ?", last), nil
}
