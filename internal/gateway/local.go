package gateway

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// LocalGenerator shells out to a llama.cpp-style CLI with the prompt.
// Model weights stay on disk; each call is one short-lived subprocess.
type LocalGenerator struct {
	cliPath     string
	modelPath   string
	maxTokens   int
	temperature float64
}

func NewLocalGenerator(cliPath, modelPath string, maxTokens int, temperature float64) (*LocalGenerator, error) {
	cliPath = strings.TrimSpace(cliPath)
	if cliPath == "" {
		return nil, fmt.Errorf("local generator CLI path is required")
	}
	resolved, err := exec.LookPath(cliPath)
	if err != nil {
		return nil, fmt.Errorf("local generator CLI %q not found: %w", cliPath, err)
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("local model weights %q: %w", modelPath, err)
	}
	if maxTokens <= 0 {
		maxTokens = 200
	}
	if temperature <= 0 {
		temperature = 0.7
	}
	return &LocalGenerator{
		cliPath:     resolved,
		modelPath:   modelPath,
		maxTokens:   maxTokens,
		temperature: temperature,
	}, nil
}

func (g *LocalGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	args := []string{
		"-m", g.modelPath,
		"-p", prompt,
		"-n", strconv.Itoa(g.maxTokens),
		"--temp", strconv.FormatFloat(g.temperature, 'f', 2, 64),
		"--no-display-prompt",
	}

	cmd := exec.CommandContext(ctx, g.cliPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return "", fmt.Errorf("local generation failed: %w (%s)", err, detail)
		}
		return "", fmt.Errorf("local generation failed: %w", err)
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return "", fmt.Errorf("local generation produced no output")
	}
	return text, nil
}
