package gateway

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Generator produces a reply for a fully-built prompt. Implementations
// honor ctx for cancellation and deadlines; the caller owns timeouts.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config controls generator construction.
type Config struct {
	Mode string

	RemoteURL    string
	RemoteAPIKey string
	RemoteModel  string

	LocalCLIPath   string
	LocalModelPath string

	MaxTokens   int
	Temperature float64
}

// New builds the generation backend selected by cfg.Mode. The choice
// is made once here; the engine only ever sees the Generator interface.
func New(cfg Config) (Generator, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAutoGenerator(cfg), nil
	case "remote":
		if strings.TrimSpace(cfg.RemoteAPIKey) == "" {
			return nil, errors.New("remote API key is required for remote mode")
		}
		return NewRemoteGenerator(cfg.RemoteURL, cfg.RemoteAPIKey, cfg.RemoteModel, cfg.MaxTokens, cfg.Temperature), nil
	case "local":
		return NewLocalGenerator(cfg.LocalCLIPath, cfg.LocalModelPath, cfg.MaxTokens, cfg.Temperature)
	case "mock":
		return NewMockGenerator(), nil
	default:
		return nil, fmt.Errorf("unsupported generator mode %q", cfg.Mode)
	}
}

// newAutoGenerator prefers the remote API when a key is configured,
// then a local model when both the CLI and weights exist, else mock.
func newAutoGenerator(cfg Config) Generator {
	if strings.TrimSpace(cfg.RemoteAPIKey) != "" {
		return NewRemoteGenerator(cfg.RemoteURL, cfg.RemoteAPIKey, cfg.RemoteModel, cfg.MaxTokens, cfg.Temperature)
	}

	cliPath := strings.TrimSpace(cfg.LocalCLIPath)
	if cliPath != "" {
		if _, err := exec.LookPath(cliPath); err == nil {
			if _, err := os.Stat(cfg.LocalModelPath); err == nil {
				if g, err := NewLocalGenerator(cliPath, cfg.LocalModelPath, cfg.MaxTokens, cfg.Temperature); err == nil {
					return g
				}
			}
		}
	}

	return NewMockGenerator()
}
