// Package executor resolves, validates, permission-checks, and dispatches
// tool calls over a transport, retrying transient failures with
// exponential backoff and recording execution statistics.
package executor

import "time"

// ErrorKind classifies a failed ToolResponse the way the caller needs to
// decide whether to retry, surface, or treat as a denial.
type ErrorKind string

const (
	ErrorNone             ErrorKind = ""
	ErrorToolNotFound     ErrorKind = "tool_not_found"
	ErrorMissingParameter ErrorKind = "missing_parameter"
	ErrorTypeError        ErrorKind = "type_error"
	ErrorPermissionDenied ErrorKind = "permission_denied"
	ErrorTransportFailure ErrorKind = "transport_failure"
	ErrorToolError        ErrorKind = "tool_error"
	ErrorTimeout          ErrorKind = "timeout"
	ErrorCancelled        ErrorKind = "cancelled"
)

// ToolRequest is one call to dispatch.
type ToolRequest struct {
	CorrelationID string
	ToolID        string
	Parameters    map[string]interface{}
	Principal     string
	Deadline      time.Time
}

// ToolResponse is the outcome of dispatching a ToolRequest. Invariant:
// CorrelationID always equals the originating ToolRequest's.
type ToolResponse struct {
	CorrelationID string
	Result        interface{}
	ErrorKind     ErrorKind
	ErrorMessage  string
	Duration      time.Duration
}

// Failed reports whether the response carries an error.
func (r ToolResponse) Failed() bool {
	return r.ErrorKind != ErrorNone
}

// isTransient reports whether kind warrants a retry per the executor's
// backoff policy. Semantic failures (schema, permission, explicit tool
// error) never retry; only transport-level failures do.
func (k ErrorKind) isTransient() bool {
	return k == ErrorTransportFailure || k == ErrorTimeout
}
