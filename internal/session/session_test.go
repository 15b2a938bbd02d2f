package session

import (
	"errors"
	"testing"

	"rice/internal/eventbus"
)

func mustEvents(t *testing.T, events []eventbus.Event, err error, want string) {
	t.Helper()
	if err != nil {
		t.Fatalf("command failed: %v", err)
	}
	if len(events) != 1 || events[0].Type != want {
		t.Fatalf("expected single %q event, got %+v", want, events)
	}
}

func TestNewSessionStartsActive(t *testing.T) {
	s, events := New("proj-1", 100)

	if s.State() != StateActive {
		t.Errorf("expected active state, got %s", s.State())
	}
	if s.ProjectID() != "proj-1" {
		t.Errorf("unexpected project id %q", s.ProjectID())
	}
	if s.Version() != 1 {
		t.Errorf("fresh session should be version 1, got %d", s.Version())
	}
	if s.ID() == "" {
		t.Error("session id must be assigned")
	}
	mustEvents(t, events, nil, EventSessionStarted)
}

func TestAddMessageAppendsAndEmits(t *testing.T) {
	s, _ := New("proj-1", 100)

	events, err := s.AddMessage("hi", RoleUser)
	mustEvents(t, events, err, EventMessageAdded)

	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Content != "hi" || msgs[0].Role != RoleUser {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	if msgs[0].ID == "" {
		t.Error("message id must be assigned")
	}
	if s.Version() != 2 {
		t.Errorf("expected version 2 after one command, got %d", s.Version())
	}
}

func TestAddMessageRejectedOutsideActive(t *testing.T) {
	s, _ := New("proj-1", 100)
	if _, err := s.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	_, err := s.AddMessage("hi", RoleUser)
	var ruleErr *BusinessRuleViolationError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("expected BusinessRuleViolationError, got %v", err)
	}
}

func TestAddMessageEnforcesCap(t *testing.T) {
	s, _ := New("proj-1", 2)
	for i := 0; i < 2; i++ {
		if _, err := s.AddMessage("m", RoleUser); err != nil {
			t.Fatalf("add %d failed: %v", i, err)
		}
	}

	_, err := s.AddMessage("overflow", RoleUser)
	var limitErr *MessageLimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected MessageLimitError, got %v", err)
	}
	if limitErr.Max != 2 {
		t.Errorf("expected cap 2 in error, got %d", limitErr.Max)
	}
	if s.MessageCount() != 2 {
		t.Errorf("failed add must not grow history: %d", s.MessageCount())
	}
}

func TestFullLifecycle(t *testing.T) {
	s, _ := New("proj-1", 100)

	events, err := s.AddMessage("hi", RoleUser)
	mustEvents(t, events, err, EventMessageAdded)

	events, err = s.Pause()
	mustEvents(t, events, err, EventSessionPaused)
	if s.State() != StatePaused {
		t.Fatalf("expected paused, got %s", s.State())
	}

	if _, err := s.AddMessage("while paused", RoleUser); err == nil {
		t.Fatal("add_message must fail on a paused session")
	}

	events, err = s.Resume()
	mustEvents(t, events, err, EventSessionResumed)

	events, err = s.Complete()
	mustEvents(t, events, err, EventSessionCompleted)

	events, err = s.Archive()
	mustEvents(t, events, err, EventSessionArchived)

	if _, err := s.Archive(); err == nil {
		t.Fatal("double archive must fail")
	}
}

func TestPausedSessionCanComplete(t *testing.T) {
	s, _ := New("proj-1", 100)
	if _, err := s.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if _, err := s.Complete(); err != nil {
		t.Fatalf("paused session must be completable: %v", err)
	}
	if s.State() != StateCompleted {
		t.Errorf("expected completed, got %s", s.State())
	}
}

func TestInvalidTransitionsRejected(t *testing.T) {
	s, _ := New("proj-1", 100)

	// Active cannot resume or archive.
	if _, err := s.Resume(); err == nil {
		t.Error("resume on active must fail")
	}
	if _, err := s.Archive(); err == nil {
		t.Error("archive on active must fail")
	}

	if _, err := s.Complete(); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	// Completed cannot pause, resume, or complete again.
	if _, err := s.Pause(); err == nil {
		t.Error("pause on completed must fail")
	}
	if _, err := s.Resume(); err == nil {
		t.Error("resume on completed must fail")
	}
	if _, err := s.Complete(); err == nil {
		t.Error("double complete must fail")
	}
}

func TestVersionAndUpdatedAtAdvanceOnEveryCommand(t *testing.T) {
	s, _ := New("proj-1", 100)

	version := s.Version()
	updated := s.UpdatedAt()
	commands := []func() ([]eventbus.Event, error){
		func() ([]eventbus.Event, error) { return s.AddMessage("a", RoleUser) },
		s.Pause,
		s.Resume,
		s.Complete,
		s.Archive,
	}
	for i, cmd := range commands {
		if _, err := cmd(); err != nil {
			t.Fatalf("command %d failed: %v", i, err)
		}
		if s.Version() != version+1 {
			t.Fatalf("command %d: version %d, expected %d", i, s.Version(), version+1)
		}
		if !s.UpdatedAt().After(updated) {
			t.Fatalf("command %d: updated_at did not advance", i)
		}
		version = s.Version()
		updated = s.UpdatedAt()
	}
}

func TestFailedCommandLeavesAggregateUnchanged(t *testing.T) {
	s, _ := New("proj-1", 100)
	version := s.Version()
	updated := s.UpdatedAt()

	if _, err := s.Archive(); err == nil {
		t.Fatal("archive on active must fail")
	}
	if s.Version() != version {
		t.Errorf("failed command must not bump version: %d -> %d", version, s.Version())
	}
	if !s.UpdatedAt().Equal(updated) {
		t.Error("failed command must not touch updated_at")
	}
	if s.State() != StateActive {
		t.Errorf("failed command must not change state: %s", s.State())
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s, _ := New("proj-9", 50)
	if _, err := s.AddMessage("hello", RoleUser); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := s.AddMessage("world", RoleAssistant); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := s.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	snap := s.Snapshot()
	restored := Reconstitute(snap)

	if restored.ID() != s.ID() || restored.ProjectID() != s.ProjectID() {
		t.Error("identity must survive reconstitution")
	}
	if restored.State() != StatePaused {
		t.Errorf("state must survive reconstitution, got %s", restored.State())
	}
	if restored.Version() != s.Version() {
		t.Errorf("version must survive reconstitution: %d != %d", restored.Version(), s.Version())
	}
	if restored.MessageCount() != 2 {
		t.Errorf("messages must survive reconstitution: %d", restored.MessageCount())
	}
	if restored.Messages()[1].Content != "world" {
		t.Error("message order must survive reconstitution")
	}

	// Reconstituted aggregates keep enforcing business rules.
	if _, err := restored.AddMessage("x", RoleUser); err == nil {
		t.Error("reconstituted paused session must reject add_message")
	}
	if _, err := restored.Resume(); err != nil {
		t.Errorf("reconstituted paused session must resume: %v", err)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s, _ := New("proj-1", 10)
	if _, err := s.AddMessage("one", RoleUser); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	snap := s.Snapshot()
	snap.Messages[0].Content = "mutated"

	if s.Messages()[0].Content != "one" {
		t.Error("mutating a snapshot must not reach the aggregate")
	}
}
