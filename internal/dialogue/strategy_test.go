package dialogue

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/emarinelli/mirror/internal/memory"
)

func TestSelectStrategy(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  Strategy
	}{
		{"stuck", "I don't know", StrategyScaffolding},
		{"empty", "", StrategyScaffolding},
		{"breakthrough", "I finally understand what you mean!", StrategyAffirming},
		{"breakthrough case insensitive", "AHA, that is it", StrategyAffirming},
		{"breakthrough beats length", "finally", StrategyAffirming},
		{"superficial", "It is mostly about trust I guess", StrategyDeepening},
		{"substantive", "I think it relates to my earlier experiences with learning difficult things slowly", StrategyMirroring},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SelectStrategy(tc.input, nil)
			if got != tc.want {
				t.Fatalf("strategy for %q: got %s, want %s", tc.input, got, tc.want)
			}
		})
	}
}

func TestSelectStrategyWordBoundaries(t *testing.T) {
	// Exactly 4 fields scaffolds, 5 deepens, 9 deepens, 10 mirrors.
	if got := SelectStrategy("one two three four", nil); got != StrategyScaffolding {
		t.Fatalf("4 words: got %s", got)
	}
	if got := SelectStrategy("one two three four five", nil); got != StrategyDeepening {
		t.Fatalf("5 words: got %s", got)
	}
	if got := SelectStrategy("one two three four five six seven eight nine", nil); got != StrategyDeepening {
		t.Fatalf("9 words: got %s", got)
	}
	if got := SelectStrategy("one two three four five six seven eight nine ten", nil); got != StrategyMirroring {
		t.Fatalf("10 words: got %s", got)
	}
}

func TestBuildPromptDefaults(t *testing.T) {
	sc := SessionContext{SessionID: uuid.New()}
	prompt := BuildPrompt(StrategyMirroring, "my input", nil, sc)

	if !strings.Contains(prompt, "Session Focus: General reflection") {
		t.Fatalf("missing focus default:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Archetype: Unknown") {
		t.Fatalf("missing archetype default:\n%s", prompt)
	}
	if !strings.Contains(prompt, "No previous conversation.") {
		t.Fatalf("missing empty-history marker:\n%s", prompt)
	}
	if !strings.Contains(prompt, `Current user input: "my input"`) {
		t.Fatalf("missing quoted input:\n%s", prompt)
	}
	if !strings.Contains(prompt, "NEVER give answers") {
		t.Fatalf("missing system preamble:\n%s", prompt)
	}
}

func TestBuildPromptUsesContextAndHistory(t *testing.T) {
	sc := SessionContext{
		SessionID: uuid.New(),
		Archetype: "Explorer",
		FocusArea: "Career transition",
	}
	history := []memory.Turn{
		{Speaker: memory.SpeakerUser, Content: "first"},
		{Speaker: memory.SpeakerAI, Content: "second"},
		{Speaker: memory.SpeakerUser, Content: "third"},
		{Speaker: memory.SpeakerAI, Content: "fourth"},
	}

	prompt := BuildPrompt(StrategyDeepening, "tell me", history, sc)

	if !strings.Contains(prompt, "Session Focus: Career transition") {
		t.Fatalf("missing focus:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Archetype: Explorer") {
		t.Fatalf("missing archetype:\n%s", prompt)
	}
	// Only the last three turns appear.
	if strings.Contains(prompt, "Learner: first") {
		t.Fatalf("history not truncated to last three turns:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Guide: second") {
		t.Fatalf("missing guide turn:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Learner: third") {
		t.Fatalf("missing learner turn:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Guide: fourth") {
		t.Fatalf("missing latest guide turn:\n%s", prompt)
	}
	if !strings.Contains(prompt, "elaborate") {
		t.Fatalf("missing deepening instruction:\n%s", prompt)
	}
}

func TestStrategyInstructionsCoverAllStrategies(t *testing.T) {
	for _, s := range []Strategy{
		StrategyScaffolding,
		StrategyDeepening,
		StrategyMirroring,
		StrategyChallenging,
		StrategyAffirming,
	} {
		if strings.TrimSpace(strategyInstructions(s)) == "" {
			t.Fatalf("empty instructions for %s", s)
		}
	}
}
