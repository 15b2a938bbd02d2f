package session

import "fmt"

// BusinessRuleViolationError reports a command applied in a state that
// forbids it, e.g. adding a message to a paused session.
type BusinessRuleViolationError struct {
	Rule string
}

func (e *BusinessRuleViolationError) Error() string {
	return fmt.Sprintf("business rule violation: %s", e.Rule)
}

// MessageLimitError reports an add on a session whose history already
// holds its configured maximum.
type MessageLimitError struct {
	Max int
}

func (e *MessageLimitError) Error() string {
	return fmt.Sprintf("session message limit reached: %d", e.Max)
}

// VersionConflictError reports optimistic-concurrency failure: the
// persisted aggregate moved past the version the caller was working
// from. The caller reloads and retries.
type VersionConflictError struct {
	SessionID string
	Expected  uint64
	Actual    uint64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on session %s: expected %d, stored %d", e.SessionID, e.Expected, e.Actual)
}
