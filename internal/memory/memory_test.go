package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

// countingStore wraps InMemoryStore and records calls, optionally
// failing them.
type countingStore struct {
	inner       *InMemoryStore
	loadCalls   int
	appendCalls int
	loadErr     error
	appendErr   error
}

func newCountingStore() *countingStore {
	return &countingStore{inner: NewInMemoryStore()}
}

func (s *countingStore) LoadRecent(ctx context.Context, sessionID uuid.UUID, limit int) ([]Turn, error) {
	s.loadCalls++
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.inner.LoadRecent(ctx, sessionID, limit)
}

func (s *countingStore) Append(ctx context.Context, sessionID uuid.UUID, turn Turn) error {
	s.appendCalls++
	if s.appendErr != nil {
		return s.appendErr
	}
	return s.inner.Append(ctx, sessionID, turn)
}

func (s *countingStore) Close() error { return nil }

func TestGetRecentReturnsChronologicalTail(t *testing.T) {
	ctx := context.Background()
	mem := New(newCountingStore(), 10, nil)
	sessionID := uuid.New()

	for i := 0; i < 7; i++ {
		turn := Turn{Speaker: SpeakerUser, Content: fmt.Sprintf("turn %d", i)}
		if err := mem.AddTurn(ctx, sessionID, turn); err != nil {
			t.Fatalf("add turn %d: %v", i, err)
		}
	}

	got := mem.GetRecent(ctx, sessionID, 3)
	if len(got) != 3 {
		t.Fatalf("got %d turns, want 3", len(got))
	}
	for i, want := range []string{"turn 4", "turn 5", "turn 6"} {
		if got[i].Content != want {
			t.Fatalf("turn %d: got %q, want %q", i, got[i].Content, want)
		}
	}

	got = mem.GetRecent(ctx, sessionID, 50)
	if len(got) != 7 {
		t.Fatalf("over-asking: got %d turns, want 7", len(got))
	}
}

func TestGetRecentHitAvoidsStore(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	mem := New(store, 10, nil)
	sessionID := uuid.New()

	if err := mem.AddTurn(ctx, sessionID, Turn{Speaker: SpeakerUser, Content: "hello there my friend"}); err != nil {
		t.Fatalf("add turn: %v", err)
	}

	_ = mem.GetRecent(ctx, sessionID, 10)
	_ = mem.GetRecent(ctx, sessionID, 10)

	if store.loadCalls != 0 {
		t.Fatalf("cached session hit the store %d times", store.loadCalls)
	}
}

func TestEvictionFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	capacity := 3
	mem := New(store, capacity, nil)

	sessions := make([]uuid.UUID, capacity+1)
	for i := range sessions {
		sessions[i] = uuid.New()
		turn := Turn{Speaker: SpeakerUser, Content: fmt.Sprintf("opening message for session %d", i)}
		if err := mem.AddTurn(ctx, sessions[i], turn); err != nil {
			t.Fatalf("add turn session %d: %v", i, err)
		}
	}

	// The first session is now the least recently used and must have
	// been evicted; reading it goes through the store.
	before := store.loadCalls
	got := mem.GetRecent(ctx, sessions[0], 10)
	if store.loadCalls != before+1 {
		t.Fatalf("evicted session load calls: got %d, want %d", store.loadCalls, before+1)
	}
	if len(got) != 1 || got[0].Content != "opening message for session 0" {
		t.Fatalf("repopulated history wrong: %+v", got)
	}

	// The freshest session must still be cached.
	before = store.loadCalls
	_ = mem.GetRecent(ctx, sessions[capacity], 10)
	if store.loadCalls != before {
		t.Fatalf("fresh session unexpectedly hit the store")
	}
}

func TestRecencyRefreshOnRead(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	mem := New(store, 2, nil)

	a, b, c := uuid.New(), uuid.New(), uuid.New()
	for _, id := range []uuid.UUID{a, b} {
		if err := mem.AddTurn(ctx, id, Turn{Speaker: SpeakerUser, Content: "seed"}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	// Touch a so that b becomes the eviction candidate.
	_ = mem.GetRecent(ctx, a, 10)

	if err := mem.AddTurn(ctx, c, Turn{Speaker: SpeakerUser, Content: "seed"}); err != nil {
		t.Fatalf("add c: %v", err)
	}

	before := store.loadCalls
	_ = mem.GetRecent(ctx, a, 10)
	if store.loadCalls != before {
		t.Fatalf("recently read session was evicted")
	}

	_ = mem.GetRecent(ctx, b, 10)
	if store.loadCalls != before+1 {
		t.Fatalf("stale session should have been evicted")
	}
}

func TestGetRecentDegradesOnStoreError(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	store.loadErr = errors.New("connection refused")
	mem := New(store, 10, nil)

	got := mem.GetRecent(ctx, uuid.New(), 10)
	if len(got) != 0 {
		t.Fatalf("degraded read: got %d turns, want 0", len(got))
	}
}

func TestAddTurnSurfacesPersistError(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	store.appendErr = errors.New("disk full")
	mem := New(store, 10, nil)
	sessionID := uuid.New()

	err := mem.AddTurn(ctx, sessionID, Turn{Speaker: SpeakerUser, Content: "will not persist"})
	if err == nil {
		t.Fatalf("expected persistence error")
	}

	// The cache mutation happens before persistence, so the turn is
	// visible in process even though it is not durable.
	got := mem.GetRecent(ctx, sessionID, 10)
	if len(got) != 1 {
		t.Fatalf("cached turns after failed persist: got %d, want 1", len(got))
	}
}

func TestAddTurnFillsIdentityAndMetadata(t *testing.T) {
	ctx := context.Background()
	mem := New(newCountingStore(), 10, nil)
	sessionID := uuid.New()

	if err := mem.AddTurn(ctx, sessionID, Turn{Speaker: SpeakerUser, Content: "one two three four five six seven eight nine ten eleven twelve"}); err != nil {
		t.Fatalf("add turn: %v", err)
	}

	got := mem.GetRecent(ctx, sessionID, 1)
	if len(got) != 1 {
		t.Fatalf("got %d turns, want 1", len(got))
	}
	turn := got[0]
	if turn.ID == uuid.Nil {
		t.Fatalf("turn id was not assigned")
	}
	if turn.Timestamp.IsZero() {
		t.Fatalf("timestamp was not assigned")
	}
	if turn.Metadata.WordCount != 12 {
		t.Fatalf("word count: got %d, want 12", turn.Metadata.WordCount)
	}
	if turn.Metadata.DepthLevel != 2 {
		t.Fatalf("depth: got %d, want 2", turn.Metadata.DepthLevel)
	}
}

func TestAddTurnKeepsProvidedMetadata(t *testing.T) {
	ctx := context.Background()
	mem := New(newCountingStore(), 10, nil)
	sessionID := uuid.New()

	turn := Turn{
		Speaker:  SpeakerUser,
		Content:  "short",
		Metadata: TurnMetadata{WordCount: 42, DepthLevel: 3},
	}
	if err := mem.AddTurn(ctx, sessionID, turn); err != nil {
		t.Fatalf("add turn: %v", err)
	}

	got := mem.GetRecent(ctx, sessionID, 1)
	if got[0].Metadata.WordCount != 42 || got[0].Metadata.DepthLevel != 3 {
		t.Fatalf("precomputed metadata was overwritten: %+v", got[0].Metadata)
	}
}
