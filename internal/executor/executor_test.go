package executor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"rice/internal/permission"
	"rice/internal/registry"
	"rice/internal/transport"
)

func allowAllGate() *permission.Gate {
	g := permission.New(nil)
	g.SetRules([]permission.Rule{{ToolPattern: "*", Effect: permission.EffectAllow, Priority: 1}})
	return g
}

func TestExecuteToolNotFound(t *testing.T) {
	reg := registry.New()
	ex := New(reg, allowAllGate())
	defer ex.Close()

	resp := ex.Execute(context.Background(), ToolRequest{ToolID: "missing.tool"})
	if resp.ErrorKind != ErrorToolNotFound {
		t.Errorf("expected ErrorToolNotFound, got %v (%s)", resp.ErrorKind, resp.ErrorMessage)
	}
}

func TestExecuteMissingRequiredParameter(t *testing.T) {
	reg := registry.New()
	reg.Register(&registry.Descriptor{
		ID:         "echo",
		Parameters: map[string]registry.ParamSchema{"text": {Type: registry.ParamString, Required: true}},
		Transport:  registry.TransportBinding{Variant: "stdio", Endpoint: "cat"},
	})
	ex := New(reg, allowAllGate())
	defer ex.Close()

	resp := ex.Execute(context.Background(), ToolRequest{ToolID: "echo", Parameters: map[string]interface{}{}})
	if resp.ErrorKind != ErrorMissingParameter {
		t.Errorf("expected ErrorMissingParameter, got %v", resp.ErrorKind)
	}
}

func TestExecutePermissionDenied(t *testing.T) {
	reg := registry.New()
	reg.Register(&registry.Descriptor{ID: "echo", Transport: registry.TransportBinding{Variant: "stdio", Endpoint: "cat"}})

	gate := permission.New(nil) // no rules: closed-world deny
	ex := New(reg, gate)
	defer ex.Close()

	resp := ex.Execute(context.Background(), ToolRequest{ToolID: "echo"})
	if resp.ErrorKind != ErrorPermissionDenied {
		t.Errorf("expected ErrorPermissionDenied, got %v", resp.ErrorKind)
	}
}

func TestExecuteSuccessRoundTripOverStdio(t *testing.T) {
	reg := registry.New()
	reg.Register(&registry.Descriptor{
		ID:        "echo",
		Transport: registry.TransportBinding{Variant: "stdio", Endpoint: "cat"},
	})
	ex := New(reg, allowAllGate(), WithCallTimeout(5*time.Second))
	defer ex.Close()

	resp := ex.Execute(context.Background(), ToolRequest{
		ToolID:     "echo",
		Parameters: map[string]interface{}{"greeting": "hello"},
	})
	if resp.Failed() {
		t.Fatalf("expected success, got error %v: %s", resp.ErrorKind, resp.ErrorMessage)
	}
	if resp.Duration <= 0 {
		t.Error("expected a measured non-zero duration")
	}
}

func TestExecuteParallelPreservesOrder(t *testing.T) {
	reg := registry.New()
	for _, id := range []string{"a", "b", "c"} {
		reg.Register(&registry.Descriptor{ID: id, Transport: registry.TransportBinding{Variant: "stdio", Endpoint: "cat"}})
	}
	ex := New(reg, allowAllGate(), WithParallelism(2))
	defer ex.Close()

	reqs := []ToolRequest{
		{ToolID: "a", Parameters: map[string]interface{}{}},
		{ToolID: "b", Parameters: map[string]interface{}{}},
		{ToolID: "c", Parameters: map[string]interface{}{}},
	}
	results := ex.ExecuteParallel(context.Background(), reqs)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, want := range []string{"a", "b", "c"} {
		if results[i].Failed() {
			t.Errorf("result %d (%s) failed: %s", i, want, results[i].ErrorMessage)
		}
	}
}

func TestExecuteCancellationReturnsCancelled(t *testing.T) {
	reg := registry.New()
	reg.Register(&registry.Descriptor{ID: "slow", Transport: registry.TransportBinding{Variant: "stdio", Endpoint: "sleep 60"}})
	ex := New(reg, allowAllGate(), WithCallTimeout(time.Minute))
	defer ex.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	resp := ex.Execute(ctx, ToolRequest{ToolID: "slow"})
	if resp.ErrorKind != ErrorCancelled {
		t.Errorf("expected ErrorCancelled, got %v (%s)", resp.ErrorKind, resp.ErrorMessage)
	}
}

func TestExecuteResponsesCarryRequestCorrelation(t *testing.T) {
	reg := registry.New()
	reg.Register(&registry.Descriptor{ID: "echo", Transport: registry.TransportBinding{Variant: "stdio", Endpoint: "cat"}})
	ex := New(reg, allowAllGate(), WithCallTimeout(5*time.Second))
	defer ex.Close()

	resp := ex.Execute(context.Background(), ToolRequest{CorrelationID: "corr-42", ToolID: "echo", Parameters: map[string]interface{}{}})
	if resp.CorrelationID != "corr-42" {
		t.Errorf("response correlation %q does not echo the request's", resp.CorrelationID)
	}
}

func TestExecuteParallelFailFastCancelsSiblings(t *testing.T) {
	reg := registry.New()
	reg.Register(&registry.Descriptor{ID: "slow", Transport: registry.TransportBinding{Variant: "stdio", Endpoint: "sleep 60"}})
	ex := New(reg, allowAllGate(), WithFailFast(), WithParallelism(4), WithCallTimeout(time.Minute))
	defer ex.Close()

	start := time.Now()
	results := ex.ExecuteParallel(context.Background(), []ToolRequest{
		{ToolID: "missing.tool"}, // fails immediately
		{ToolID: "slow"},         // would block for a minute without fail-fast
	})
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("fail-fast did not cancel the slow sibling (took %v)", elapsed)
	}
	if results[0].ErrorKind != ErrorToolNotFound {
		t.Errorf("expected first result ErrorToolNotFound, got %v", results[0].ErrorKind)
	}
	if !results[1].Failed() {
		t.Error("expected slow sibling to be cancelled")
	}
}

func TestExecuteRetriesTransientThenSucceeds(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in transport.Message
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &in)

		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(transport.Message{CorrelationID: in.CorrelationID, Payload: json.RawMessage(`{"ok":true}`)})
	}))
	defer srv.Close()

	reg := registry.New()
	reg.Register(&registry.Descriptor{ID: "flaky", Transport: registry.TransportBinding{Variant: "http", Endpoint: srv.URL}})
	ex := New(reg, allowAllGate(), WithRetryPolicy(RetryPolicy{
		InitialBackoff: 100 * time.Millisecond,
		Multiplier:     2,
		MaxBackoff:     time.Second,
		MaxAttempts:    5,
	}))
	defer ex.Close()

	start := time.Now()
	resp := ex.Execute(context.Background(), ToolRequest{ToolID: "flaky", Parameters: map[string]interface{}{}})
	if resp.Failed() {
		t.Fatalf("expected success after retries, got %v: %s", resp.ErrorKind, resp.ErrorMessage)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Errorf("expected 3 attempts, server saw %d", got)
	}
	// Backoff lower bounds: 100ms before attempt 2, 200ms before attempt 3.
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Errorf("expected >= 300ms of backoff, took %v", elapsed)
	}
}

func TestExecuteDoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	reg := registry.New()
	reg.Register(&registry.Descriptor{ID: "reject", Transport: registry.TransportBinding{Variant: "http", Endpoint: srv.URL}})
	ex := New(reg, allowAllGate())
	defer ex.Close()

	resp := ex.Execute(context.Background(), ToolRequest{ToolID: "reject", Parameters: map[string]interface{}{}})
	if resp.ErrorKind != ErrorToolError {
		t.Fatalf("expected ErrorToolError for a 400, got %v", resp.ErrorKind)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("a 4xx must not be retried, server saw %d requests", got)
	}
}
