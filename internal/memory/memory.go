package memory

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emarinelli/mirror/internal/observability"
)

// DefaultCacheCapacity bounds the number of cached sessions when no
// capacity is configured.
const DefaultCacheCapacity = 100

// Memory fronts the durable Store with a capacity-bounded LRU cache of
// per-session turn lists. It is the single entry point for history
// reads and writes.
//
// One lock guards the whole cache: reads take the shared lock for the
// lookup only, writes take the exclusive lock for the mutation only.
// The lock is never held across store I/O, so two concurrent AddTurn
// calls for different sessions serialize briefly on the cache but not
// on each other's persistence.
type Memory struct {
	store   Store
	metrics *observability.Metrics

	mu       sync.RWMutex
	capacity int
	entries  map[uuid.UUID]*list.Element
	order    *list.List // front = most recently used
}

type cacheEntry struct {
	sessionID uuid.UUID
	turns     []Turn
}

// New creates a Memory over the given store. A capacity of zero or
// less falls back to DefaultCacheCapacity. metrics may be nil.
func New(store Store, capacity int, metrics *observability.Metrics) *Memory {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Memory{
		store:    store,
		metrics:  metrics,
		capacity: capacity,
		entries:  make(map[uuid.UUID]*list.Element),
		order:    list.New(),
	}
}

// GetRecent returns the last limit turns (or fewer) for the session,
// oldest-first. Store errors on the miss path are absorbed: the
// failure is logged and an empty history is returned, because a
// degraded exchange beats an aborted one.
func (m *Memory) GetRecent(ctx context.Context, sessionID uuid.UUID, limit int) []Turn {
	m.mu.RLock()
	elem, ok := m.entries[sessionID]
	var recent []Turn
	if ok {
		recent = lastTurns(elem.Value.(*cacheEntry).turns, limit)
	}
	m.mu.RUnlock()

	if ok {
		m.touch(sessionID)
		m.countCacheLookup("hit")
		return recent
	}

	m.countCacheLookup("miss")
	turns, err := m.store.LoadRecent(ctx, sessionID, limit)
	if err != nil {
		slog.Warn("history load failed, continuing with empty history",
			"session_id", sessionID,
			"error", err,
		)
		turns = nil
	}

	m.mu.Lock()
	m.insertLocked(sessionID, turns)
	m.mu.Unlock()

	return lastTurns(turns, limit)
}

// AddTurn assigns an ID and metadata if absent, appends the turn to
// the cached session list, then attempts to persist it. A persistence
// error is returned even though the cache mutation already happened:
// the turn may be visible to this process without being durable, and
// the caller decides whether to retry or alert.
func (m *Memory) AddTurn(ctx context.Context, sessionID uuid.UUID, turn Turn) error {
	if turn.ID == uuid.Nil {
		turn.ID = uuid.New()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	if turn.Metadata.WordCount == 0 {
		turn.Metadata = MetadataFromContent(turn.Content)
	}

	m.mu.Lock()
	if elem, ok := m.entries[sessionID]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.turns = append(entry.turns, turn)
		m.order.MoveToFront(elem)
	} else {
		m.insertLocked(sessionID, []Turn{turn})
	}
	m.mu.Unlock()

	if err := m.store.Append(ctx, sessionID, turn); err != nil {
		m.countPersistFailure(turn.Speaker)
		return fmt.Errorf("persist turn %s: %w", turn.ID, err)
	}
	return nil
}

func (m *Memory) Close() error {
	return m.store.Close()
}

// touch refreshes LRU recency after a shared-lock read.
func (m *Memory) touch(sessionID uuid.UUID) {
	m.mu.Lock()
	if elem, ok := m.entries[sessionID]; ok {
		m.order.MoveToFront(elem)
	}
	m.mu.Unlock()
}

// insertLocked adds a session entry and evicts the least-recently-used
// one when over capacity. Eviction only drops the cached copy; the
// durable store keeps everything.
func (m *Memory) insertLocked(sessionID uuid.UUID, turns []Turn) {
	if elem, ok := m.entries[sessionID]; ok {
		elem.Value.(*cacheEntry).turns = turns
		m.order.MoveToFront(elem)
		return
	}

	m.entries[sessionID] = m.order.PushFront(&cacheEntry{sessionID: sessionID, turns: turns})

	for m.order.Len() > m.capacity {
		oldest := m.order.Back()
		if oldest == nil {
			break
		}
		evicted := oldest.Value.(*cacheEntry)
		m.order.Remove(oldest)
		delete(m.entries, evicted.sessionID)
		slog.Debug("evicted session from conversation cache", "session_id", evicted.sessionID)
	}
}

func (m *Memory) countCacheLookup(result string) {
	if m.metrics != nil {
		m.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}

func (m *Memory) countPersistFailure(speaker Speaker) {
	if m.metrics != nil {
		m.metrics.TurnPersistFailures.WithLabelValues(string(speaker)).Inc()
	}
}

func lastTurns(turns []Turn, limit int) []Turn {
	if len(turns) == 0 {
		return nil
	}
	if limit <= 0 || limit > len(turns) {
		limit = len(turns)
	}
	out := make([]Turn, limit)
	copy(out, turns[len(turns)-limit:])
	return out
}
