package memory

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Speaker identifies which side of the dialogue produced a turn.
type Speaker string

const (
	SpeakerUser Speaker = "user"
	SpeakerAI   Speaker = "ai"
)

// Turn is a single utterance in a reflection session. A turn is
// immutable once created; nothing in this package edits or deletes one.
type Turn struct {
	ID        uuid.UUID    `json:"id"`
	Timestamp time.Time    `json:"timestamp"`
	Speaker   Speaker      `json:"speaker"`
	Content   string       `json:"content"`
	Metadata  TurnMetadata `json:"metadata"`
}

// TurnMetadata carries per-turn measurements computed once at creation.
// Sentiment and VirtueSignals are reserved fields with no analysis
// behind them yet; they stay at their zero values.
type TurnMetadata struct {
	WordCount     int      `json:"word_count"`
	Sentiment     float32  `json:"sentiment"`
	DepthLevel    int      `json:"depth_level"`
	VirtueSignals []string `json:"virtue_signals"`
}

// MetadataFromContent derives turn metadata from the raw text.
// Longer responses are treated as deeper reflection.
func MetadataFromContent(content string) TurnMetadata {
	wordCount := len(strings.Fields(content))

	var depth int
	switch {
	case wordCount <= 10:
		depth = 1
	case wordCount <= 30:
		depth = 2
	case wordCount <= 60:
		depth = 3
	case wordCount <= 100:
		depth = 4
	default:
		depth = 5
	}

	return TurnMetadata{
		WordCount:  wordCount,
		DepthLevel: depth,
	}
}
