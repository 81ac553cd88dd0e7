package dialogue

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/emarinelli/mirror/internal/memory"
)

// Strategy is one of the fixed Socratic tactics chosen per user turn.
// The set is closed; it is not a free-form string.
type Strategy string

const (
	// StrategyScaffolding — the learner is stuck; ask a leading question.
	StrategyScaffolding Strategy = "scaffolding"
	// StrategyDeepening — superficial response; ask for elaboration.
	StrategyDeepening Strategy = "deepening"
	// StrategyMirroring — reflect the learner's words back.
	StrategyMirroring Strategy = "mirroring"
	// StrategyChallenging — a contradiction was detected. No selection
	// rule produces this yet; it stays in the set for a future
	// contradiction-detection heuristic.
	StrategyChallenging Strategy = "challenging"
	// StrategyAffirming — a breakthrough moment was detected.
	StrategyAffirming Strategy = "affirming"
)

// SessionContext is the request-scoped context for one exchange. It is
// never persisted; the session id is purely a key into memory.
type SessionContext struct {
	SessionID uuid.UUID
	UserID    string
	Archetype string
	FocusArea string
}

// SocraticResponse is the outcome of one orchestrated exchange.
type SocraticResponse struct {
	Text         string   `json:"text"`
	StrategyUsed Strategy `json:"strategy_used"`
}

// breakthroughMarkers signal that the learner reached an insight.
var breakthroughMarkers = []string{"finally", "realize", "understand", "aha", "now i see"}

// SelectStrategy maps the current input and recent history to a
// strategy. Rules are evaluated in fixed priority order; the first
// match wins and there is no combination logic.
func SelectStrategy(input string, history []memory.Turn) Strategy {
	lowered := strings.ToLower(input)
	for _, marker := range breakthroughMarkers {
		if strings.Contains(lowered, marker) {
			return StrategyAffirming
		}
	}

	wordCount := len(strings.Fields(input))

	// Very short responses suggest confusion or being stuck.
	if wordCount < 5 {
		return StrategyScaffolding
	}

	// Short responses may be superficial.
	if wordCount < 10 {
		return StrategyDeepening
	}

	return StrategyMirroring
}

const systemPrompt = `You are a Socratic guide for a learner engaged in deep reflection. Your role is to:
1. NEVER give answers or solutions
2. Ask questions that help the learner discover insights themselves
3. Mirror their language back to reveal assumptions
4. Identify contradictions gently
5. Encourage deeper thinking without judgment

Guidelines:
- Keep responses to 1-3 sentences maximum
- Always end with a question
- Use the learner's own words when possible
- Be warm, curious, never condescending`

// BuildPrompt assembles the generation prompt for a strategy. It is
// pure and deterministic with no failure mode.
func BuildPrompt(strategy Strategy, input string, history []memory.Turn, sc SessionContext) string {
	focus := sc.FocusArea
	if focus == "" {
		focus = "General reflection"
	}
	archetype := sc.Archetype
	if archetype == "" {
		archetype = "Unknown"
	}

	return fmt.Sprintf(
		"%s\n\nContext:\n- Session Focus: %s\n- Archetype: %s\n\n%s\n\nCurrent user input: %q\n\n%s",
		systemPrompt,
		focus,
		archetype,
		formatHistory(history),
		input,
		strategyInstructions(strategy),
	)
}

// formatHistory renders the most recent three turns for the prompt.
func formatHistory(history []memory.Turn) string {
	if len(history) == 0 {
		return "No previous conversation."
	}

	start := len(history) - 3
	if start < 0 {
		start = 0
	}

	lines := make([]string, 0, 3)
	for _, turn := range history[start:] {
		speaker := "Learner"
		if turn.Speaker == memory.SpeakerAI {
			speaker = "Guide"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", speaker, turn.Content))
	}

	return "Recent conversation:\n" + strings.Join(lines, "\n")
}

func strategyInstructions(strategy Strategy) string {
	switch strategy {
	case StrategyScaffolding:
		return "The learner seems stuck or uncertain. Offer a gentle leading question that helps them see a path forward. Example: 'It sounds like you're noticing X. What might happen if...?'"
	case StrategyDeepening:
		return "The learner's response is brief or superficial. Ask them to elaborate on a specific part. Example: 'You mentioned Y. What specifically do you mean by that?'"
	case StrategyChallenging:
		return "The learner has stated something that contradicts an earlier statement. Gently point this out. Example: 'Earlier you valued X, but now you're choosing Y. What changed for you?'"
	case StrategyAffirming:
		return "The learner has reached an insight. Acknowledge it and help them deepen it. Example: 'I notice you used the word \"finally.\" What makes this moment significant for you?'"
	default:
		return "Reflect the learner's own words back to them to help them see connections. Example: 'You said \"A leads to B.\" How does that connect to your earlier point about C?'"
	}
}
