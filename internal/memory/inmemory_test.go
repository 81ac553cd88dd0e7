package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestInMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	sessionID := uuid.New()

	turns, err := store.LoadRecent(ctx, sessionID, 10)
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("empty session: got %d turns", len(turns))
	}

	for i := 0; i < 5; i++ {
		turn := Turn{ID: uuid.New(), Speaker: SpeakerUser, Content: "entry"}
		if err := store.Append(ctx, sessionID, turn); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	turns, err = store.LoadRecent(ctx, sessionID, 3)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("limited load: got %d turns, want 3", len(turns))
	}

	turns, err = store.LoadRecent(ctx, sessionID, 100)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(turns) != 5 {
		t.Fatalf("full load: got %d turns, want 5", len(turns))
	}
}

func TestInMemoryStoreIsolatesSessions(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	a, b := uuid.New(), uuid.New()

	if err := store.Append(ctx, a, Turn{ID: uuid.New(), Speaker: SpeakerUser, Content: "for a"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	turns, err := store.LoadRecent(ctx, b, 10)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("session b: got %d turns, want 0", len(turns))
	}
}
