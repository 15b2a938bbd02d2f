package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"rice/internal/eventbus"
	"rice/internal/logging"
	"rice/internal/permission"
	"rice/internal/registry"
	"rice/internal/transport"
)

// EventToolInvoked is published after every completed ToolRequest,
// successful or not.
const EventToolInvoked = "tool_invoked"

// ErrUnknownTransportVariant surfaces when a descriptor names a variant
// the executor has no dialer for.
var ErrUnknownTransportVariant = errors.New("executor: unknown transport variant")

// Executor resolves a request against the registry, validates its
// parameters, checks the permission gate, dispatches it over the bound
// transport, retries transient failures, and records execution stats.
type Executor struct {
	reg         *registry.Registry
	gate        *permission.Gate
	bus         *eventbus.Bus
	stats       *StatsStore // may be nil to disable persistence
	pool        *transportPool
	retry       RetryPolicy
	callTimeout time.Duration
	parallelism int
	failFast    bool
}

// Option configures an Executor at construction time.
type Option func(*Executor)

func WithBus(bus *eventbus.Bus) Option              { return func(e *Executor) { e.bus = bus } }
func WithStats(s *StatsStore) Option                { return func(e *Executor) { e.stats = s } }
func WithRetryPolicy(p RetryPolicy) Option          { return func(e *Executor) { e.retry = p } }
func WithCallTimeout(d time.Duration) Option        { return func(e *Executor) { e.callTimeout = d } }
func WithParallelism(n int) Option                  { return func(e *Executor) { e.parallelism = n } }

// WithFailFast makes ExecuteParallel cancel outstanding siblings as
// soon as any request fails; cancelled siblings report ErrorCancelled
// in place.
func WithFailFast() Option { return func(e *Executor) { e.failFast = true } }

// New creates an Executor bound to reg and gate.
func New(reg *registry.Registry, gate *permission.Gate, opts ...Option) *Executor {
	e := &Executor{
		reg:         reg,
		gate:        gate,
		pool:        newTransportPool(),
		retry:       DefaultRetryPolicy(),
		callTimeout: 30 * time.Second,
		parallelism: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Close releases pooled transports and the stats store, if any.
func (e *Executor) Close() error {
	e.pool.closeAll()
	if e.stats != nil {
		return e.stats.Close()
	}
	return nil
}

// Execute resolves, validates, permission-checks, and dispatches req,
// retrying transient transport failures with exponential backoff.
func (e *Executor) Execute(ctx context.Context, req ToolRequest) ToolResponse {
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}
	start := time.Now()

	resp := e.executeOnce(ctx, req)
	attempts := 1
	for attempt := 0; resp.Failed() && resp.ErrorKind.isTransient() && attempt < e.retry.MaxAttempts-1; attempt++ {
		delay := e.retry.backoff(attempt)
		log := logging.Get(logging.CategoryExecutor)
		log.Debug("retrying %s (attempt %d) after %v: %s", req.ToolID, attempt+2, delay, resp.ErrorMessage)

		select {
		case <-ctx.Done():
			kind := ErrorTimeout
			if ctx.Err() == context.Canceled {
				kind = ErrorCancelled
			}
			resp = ToolResponse{CorrelationID: req.CorrelationID, ErrorKind: kind, ErrorMessage: ctx.Err().Error()}
			attempts++
			goto done
		case <-time.After(delay):
		}
		resp = e.executeOnce(ctx, req)
		attempts++
	}

done:
	resp.Duration = time.Since(start)
	e.recordAndEmit(req, resp, attempts)
	return resp
}

func (e *Executor) executeOnce(ctx context.Context, req ToolRequest) ToolResponse {
	d := e.reg.Lookup(req.ToolID)
	if d == nil {
		return ToolResponse{CorrelationID: req.CorrelationID, ErrorKind: ErrorToolNotFound, ErrorMessage: "tool not registered: " + req.ToolID}
	}

	if err := validateParameters(d, req.Parameters); err != nil {
		switch err.(type) {
		case *MissingParameterError:
			return ToolResponse{CorrelationID: req.CorrelationID, ErrorKind: ErrorMissingParameter, ErrorMessage: err.Error()}
		default:
			return ToolResponse{CorrelationID: req.CorrelationID, ErrorKind: ErrorTypeError, ErrorMessage: err.Error()}
		}
	}

	decision := e.gate.Check(req.Principal, req.ToolID, req.Parameters)
	if !decision.Allowed() {
		return ToolResponse{CorrelationID: req.CorrelationID, ErrorKind: ErrorPermissionDenied, ErrorMessage: decision.Reason}
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if !req.Deadline.IsZero() {
		callCtx, cancel = context.WithDeadline(ctx, req.Deadline)
	} else if e.callTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, e.callTimeout)
	}
	if cancel != nil {
		defer cancel()
	}

	t, err := e.pool.get(callCtx, d.Transport)
	if err != nil {
		return ToolResponse{CorrelationID: req.CorrelationID, ErrorKind: ErrorTransportFailure, ErrorMessage: err.Error()}
	}

	payload, err := json.Marshal(req.Parameters)
	if err != nil {
		return ToolResponse{CorrelationID: req.CorrelationID, ErrorKind: ErrorToolError, ErrorMessage: err.Error()}
	}

	if err := t.Send(callCtx, transport.Message{CorrelationID: req.CorrelationID, Payload: payload}); err != nil {
		return ToolResponse{CorrelationID: req.CorrelationID, ErrorKind: classifyTransportError(callCtx, err), ErrorMessage: err.Error()}
	}

	msg, err := awaitCorrelated(callCtx, t, req.CorrelationID)
	if err != nil {
		return ToolResponse{CorrelationID: req.CorrelationID, ErrorKind: classifyTransportError(callCtx, err), ErrorMessage: err.Error()}
	}

	var result interface{}
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		return ToolResponse{CorrelationID: req.CorrelationID, ErrorKind: ErrorToolError, ErrorMessage: "malformed tool response: " + err.Error()}
	}

	return ToolResponse{CorrelationID: req.CorrelationID, Result: result}
}

// awaitCorrelated reads frames until one matching wantID arrives,
// discarding any that don't (they belong to an overlapping call sharing
// the same transport).
func awaitCorrelated(ctx context.Context, t transport.Transport, wantID string) (transport.Message, error) {
	for {
		msg, err := t.Recv(ctx)
		if err != nil {
			return transport.Message{}, err
		}
		if msg.CorrelationID == wantID {
			return msg, nil
		}
	}
}

func classifyTransportError(ctx context.Context, err error) ErrorKind {
	switch ctx.Err() {
	case context.Canceled:
		return ErrorCancelled
	case context.DeadlineExceeded:
		return ErrorTimeout
	}
	// A 4xx is the server rejecting the request itself; retrying the
	// same bytes cannot succeed. 5xx stays retryable.
	var status *transport.StatusError
	if errors.As(err, &status) && status.Code < 500 {
		return ErrorToolError
	}
	return ErrorTransportFailure
}

func (e *Executor) recordAndEmit(req ToolRequest, resp ToolResponse, attempts int) {
	if e.stats != nil {
		_ = e.stats.Record(ExecutionRecord{
			CorrelationID: req.CorrelationID,
			ToolID:        req.ToolID,
			Principal:     req.Principal,
			Success:       !resp.Failed(),
			ErrorKind:     string(resp.ErrorKind),
			DurationMs:    resp.Duration.Milliseconds(),
			Attempts:      attempts,
		})
	}
	if e.bus != nil {
		e.bus.Publish(eventbus.Event{
			Type:        EventToolInvoked,
			AggregateID: req.ToolID,
			Payload:     resp,
		})
	}
}

// ExecuteParallel runs every request concurrently, bounded by the
// executor's configured parallelism, preserving input order in the
// returned slice. Per-request failures are reported in place; with
// fail-fast enabled, the first failure cancels outstanding siblings.
func (e *Executor) ExecuteParallel(ctx context.Context, reqs []ToolRequest) []ToolResponse {
	results := make([]ToolResponse, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)

	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			results[i] = e.Execute(gctx, req)
			if e.failFast && results[i].Failed() {
				return fmt.Errorf("%s: %s", req.ToolID, results[i].ErrorMessage)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
