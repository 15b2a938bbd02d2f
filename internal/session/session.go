package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"rice/internal/eventbus"
)

// Session is the aggregate root for one conversation. Fields are
// unexported: commands are the only mutation path, and each successful
// command bumps the version counter exactly once, refreshes updated_at,
// and returns the events it emitted. A failed command leaves the
// aggregate untouched.
//
// Command processing on one Session is serialized by an aggregate-local
// mutex; distinct sessions never contend.
type Session struct {
	mu sync.Mutex

	id          string
	projectID   string
	messages    []Message
	state       State
	maxMessages int
	createdAt   time.Time
	updatedAt   time.Time
	version     uint64
}

// New creates an Active session for projectID with a fresh identity and
// version 1, returning the SessionStarted event alongside it.
func New(projectID string, maxMessages int) (*Session, []eventbus.Event) {
	now := time.Now().UTC()
	s := &Session{
		id:          uuid.NewString(),
		projectID:   projectID,
		state:       StateActive,
		maxMessages: maxMessages,
		createdAt:   now,
		updatedAt:   now,
		version:     1,
	}
	events := []eventbus.Event{{
		Type:        EventSessionStarted,
		AggregateID: s.id,
		Timestamp:   now,
		Payload: StartedPayload{
			SessionID:   s.id,
			ProjectID:   projectID,
			MaxMessages: maxMessages,
		},
	}}
	return s, events
}

// Reconstitute rebuilds an aggregate from a persisted snapshot without
// validation; the snapshot was validated when the state it captures was
// first created. This is the only constructor that may set arbitrary
// version and timestamps, and it emits no events.
func Reconstitute(snap Snapshot) *Session {
	messages := make([]Message, len(snap.Messages))
	copy(messages, snap.Messages)
	return &Session{
		id:          snap.ID,
		projectID:   snap.ProjectID,
		messages:    messages,
		state:       snap.State,
		maxMessages: snap.MaxMessages,
		createdAt:   snap.CreatedAt,
		updatedAt:   snap.UpdatedAt,
		version:     snap.Version,
	}
}

// AddMessage appends a message to an Active session. Any other state is
// a BusinessRuleViolationError; a full history is a MessageLimitError.
func (s *Session) AddMessage(content string, role Role) ([]eventbus.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return nil, &BusinessRuleViolationError{Rule: "cannot add message to " + string(s.state) + " session"}
	}
	if len(s.messages) >= s.maxMessages {
		return nil, &MessageLimitError{Max: s.maxMessages}
	}

	now := time.Now().UTC()
	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}
	s.messages = append(s.messages, msg)
	s.touch(now)

	return []eventbus.Event{{
		Type:        EventMessageAdded,
		AggregateID: s.id,
		Timestamp:   now,
		Payload: MessageAddedPayload{
			SessionID: s.id,
			MessageID: msg.ID,
			Role:      role,
			Content:   content,
		},
	}}, nil
}

// Pause moves Active -> Paused.
func (s *Session) Pause() ([]eventbus.Event, error) {
	return s.transition(StateActive, StatePaused, EventSessionPaused, "only active sessions can be paused")
}

// Resume moves Paused -> Active.
func (s *Session) Resume() ([]eventbus.Event, error) {
	return s.transition(StatePaused, StateActive, EventSessionResumed, "only paused sessions can be resumed")
}

// Complete moves Active or Paused -> Completed.
func (s *Session) Complete() ([]eventbus.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateCompleted || s.state == StateArchived {
		return nil, &BusinessRuleViolationError{Rule: "cannot complete " + string(s.state) + " session"}
	}
	return s.applyTransition(StateCompleted, EventSessionCompleted), nil
}

// Archive moves Completed -> Archived. Archival is terminal: no command
// moves an archived session to another state.
func (s *Session) Archive() ([]eventbus.Event, error) {
	return s.transition(StateCompleted, StateArchived, EventSessionArchived, "only completed sessions can be archived")
}

func (s *Session) transition(from, to State, eventType, rule string) ([]eventbus.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != from {
		return nil, &BusinessRuleViolationError{Rule: rule}
	}
	return s.applyTransition(to, eventType), nil
}

// applyTransition mutates state under the already-held lock.
func (s *Session) applyTransition(to State, eventType string) []eventbus.Event {
	from := s.state
	now := time.Now().UTC()
	s.state = to
	s.touch(now)

	return []eventbus.Event{{
		Type:        eventType,
		AggregateID: s.id,
		Timestamp:   now,
		Payload: StateChangedPayload{
			SessionID:    s.id,
			From:         from,
			To:           to,
			MessageCount: len(s.messages),
		},
	}}
}

// touch advances updated_at and the version counter. updated_at must
// strictly increase even when two commands land within the clock's
// resolution.
func (s *Session) touch(now time.Time) {
	if !now.After(s.updatedAt) {
		now = s.updatedAt.Add(time.Nanosecond)
	}
	s.updatedAt = now
	s.version++
}

// Snapshot returns a point-in-time copy of the aggregate's full state
// for persistence.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := make([]Message, len(s.messages))
	copy(messages, s.messages)
	return Snapshot{
		ID:          s.id,
		ProjectID:   s.projectID,
		Messages:    messages,
		State:       s.state,
		MaxMessages: s.maxMessages,
		CreatedAt:   s.createdAt,
		UpdatedAt:   s.updatedAt,
		Version:     s.version,
	}
}

func (s *Session) ID() string        { return s.id }
func (s *Session) ProjectID() string { return s.projectID }

// Messages returns a copy of the ordered history.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *Session) MaxMessages() int     { return s.maxMessages }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

func (s *Session) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *Session) IsActive() bool { return s.State() == StateActive }
