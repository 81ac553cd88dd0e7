package gateway

import (
	"context"
	"strings"
)

// MockGenerator provides a deterministic local reply when no real
// backend is configured. Useful for dev and tests.
type MockGenerator struct{}

func NewMockGenerator() *MockGenerator { return &MockGenerator{} }

func (g *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	if strings.TrimSpace(prompt) == "" {
		return "What would you like to reflect on?", nil
	}
	return "This is a placeholder Socratic question. What do you think about that?", nil
}
