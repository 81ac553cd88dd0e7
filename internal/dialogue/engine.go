package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/emarinelli/mirror/internal/memory"
	"github.com/emarinelli/mirror/internal/observability"
)

const (
	// FallbackReply is returned when the generation backend fails or
	// times out; the exchange still completes and persists.
	FallbackReply = "I'm listening. Can you tell me more about that?"

	defaultHistoryLimit      = 10
	defaultGenerationTimeout = 30 * time.Second
)

// Generator is the abstract text-generation capability the engine
// depends on. Implementations may be a remote API, a local model
// subprocess, or a test double.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Engine orchestrates one dialogue exchange: persist the user turn,
// retrieve history, select a strategy, generate, post-process, persist
// the AI turn.
type Engine struct {
	mem          *memory.Memory
	generator    Generator
	metrics      *observability.Metrics
	genTimeout   time.Duration
	historyLimit int
}

// NewEngine wires the engine. Zero genTimeout and historyLimit fall
// back to 30s and 10 turns. metrics may be nil.
func NewEngine(mem *memory.Memory, generator Generator, metrics *observability.Metrics, genTimeout time.Duration, historyLimit int) *Engine {
	if genTimeout <= 0 {
		genTimeout = defaultGenerationTimeout
	}
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &Engine{
		mem:          mem,
		generator:    generator,
		metrics:      metrics,
		genTimeout:   genTimeout,
		historyLimit: historyLimit,
	}
}

// Respond runs the full exchange for one user message.
//
// Failure policy: a user turn that cannot be durably recorded aborts
// the exchange, because later history reads would silently disagree
// with what the learner said. A generation failure (or timeout)
// degrades to FallbackReply. An AI-turn persistence failure is logged
// but the caller still receives the generated text — losing the
// outbound reply is less harmful than dropping user input.
//
// Two concurrent Respond calls for the same session may interleave
// their persisted turns; turns within one call are strictly
// user-then-AI.
func (e *Engine) Respond(ctx context.Context, input string, sc SessionContext) (SocraticResponse, error) {
	userTurn := memory.Turn{Speaker: memory.SpeakerUser, Content: input}
	if err := e.mem.AddTurn(ctx, sc.SessionID, userTurn); err != nil {
		return SocraticResponse{}, fmt.Errorf("persist user turn: %w", err)
	}

	history := e.mem.GetRecent(ctx, sc.SessionID, e.historyLimit)

	strategy := SelectStrategy(input, history)
	prompt := BuildPrompt(strategy, input, history, sc)
	slog.Debug("selected strategy",
		"session_id", sc.SessionID,
		"strategy", strategy,
		"history_turns", len(history),
	)

	genCtx, cancel := context.WithTimeout(ctx, e.genTimeout)
	started := time.Now()
	text, err := e.generator.Generate(genCtx, prompt)
	cancel()
	if e.metrics != nil {
		e.metrics.ObserveGenerationLatency(time.Since(started))
	}
	if err != nil {
		slog.Warn("generation failed, using fallback reply",
			"session_id", sc.SessionID,
			"error", err,
		)
		if e.metrics != nil {
			e.metrics.GenerationFailures.WithLabelValues(failureReason(err)).Inc()
		}
		text = FallbackReply
	}

	text = postProcess(text)

	aiTurn := memory.Turn{Speaker: memory.SpeakerAI, Content: text}
	if err := e.mem.AddTurn(ctx, sc.SessionID, aiTurn); err != nil {
		slog.Error("persist ai turn failed, returning response anyway",
			"session_id", sc.SessionID,
			"error", err,
		)
	}

	if e.metrics != nil {
		e.metrics.Exchanges.WithLabelValues(string(strategy)).Inc()
	}

	return SocraticResponse{Text: text, StrategyUsed: strategy}, nil
}

// postProcess enforces the contract that every reply is a question:
// trim whitespace and append a trailing "?" unless one is already
// there. Idempotent. Text ending in an abbreviation or quoted
// punctuation can be mangled; accepted as a known bluntness.
func postProcess(text string) string {
	text = strings.TrimSpace(text)
	if text == "" || strings.HasSuffix(text, "?") {
		return text
	}
	return text + "?"
}

func failureReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "backend"
}
