package session

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCreateAndGet(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("user-1", "Explorer", "Career transition")

	if s.ID == uuid.Nil {
		t.Fatalf("session id not assigned")
	}
	if s.Status != StatusActive {
		t.Fatalf("status: got %s, want %s", s.Status, StatusActive)
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != "user-1" || got.Archetype != "Explorer" || got.FocusArea != "Career transition" {
		t.Fatalf("session fields: %+v", got)
	}
}

func TestGetReturnsClone(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("user-1", "", "")

	first, _ := m.Get(s.ID)
	first.UserID = "tampered"

	second, _ := m.Get(s.ID)
	if second.UserID != "user-1" {
		t.Fatalf("registry state leaked through clone: %q", second.UserID)
	}
}

func TestGetUnknownSession(t *testing.T) {
	m := NewManager(time.Minute)
	if _, err := m.Get(uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get unknown: got %v, want ErrNotFound", err)
	}
}

func TestEndSession(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("user-1", "", "")

	if m.ActiveCount() != 1 {
		t.Fatalf("active count: got %d, want 1", m.ActiveCount())
	}

	ended, err := m.End(s.ID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.Status != StatusEnded {
		t.Fatalf("status after end: got %s", ended.Status)
	}
	if m.ActiveCount() != 0 {
		t.Fatalf("active count after end: got %d, want 0", m.ActiveCount())
	}

	// History endpoints still resolve the session after it ends.
	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("get after end: %v", err)
	}
	if got.Status != StatusEnded {
		t.Fatalf("get after end status: got %s", got.Status)
	}
}

func TestTouchUpdatesActivity(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("user-1", "", "")

	before, _ := m.Get(s.ID)
	time.Sleep(5 * time.Millisecond)
	if err := m.Touch(s.ID); err != nil {
		t.Fatalf("touch: %v", err)
	}
	after, _ := m.Get(s.ID)

	if !after.LastActivityAt.After(before.LastActivityAt) {
		t.Fatalf("last activity not refreshed: %v vs %v", before.LastActivityAt, after.LastActivityAt)
	}
}

func TestExpireInactive(t *testing.T) {
	m := NewManager(10 * time.Millisecond)
	var expired []uuid.UUID
	m.SetExpireHook(func(s *Session) {
		expired = append(expired, s.ID)
	})

	stale := m.Create("user-1", "", "")
	time.Sleep(20 * time.Millisecond)
	fresh := m.Create("user-2", "", "")

	m.expireInactive()

	if len(expired) != 1 || expired[0] != stale.ID {
		t.Fatalf("expired sessions: %v, want just %s", expired, stale.ID)
	}

	got, _ := m.Get(stale.ID)
	if got.Status != StatusEnded {
		t.Fatalf("stale session status: got %s", got.Status)
	}
	got, _ = m.Get(fresh.ID)
	if got.Status != StatusActive {
		t.Fatalf("fresh session status: got %s", got.Status)
	}
}

func TestSessionContext(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("user-1", "Sage", "Habits")

	sc := s.Context()
	if sc.SessionID != s.ID || sc.UserID != "user-1" || sc.Archetype != "Sage" || sc.FocusArea != "Habits" {
		t.Fatalf("context fields: %+v", sc)
	}
}
