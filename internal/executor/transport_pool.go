package executor

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"rice/internal/logging"
	"rice/internal/registry"
	"rice/internal/transport"
)

// transportPool lazily dials and caches one Transport per distinct
// (variant, endpoint) binding, so repeated calls to the same tool reuse
// an already-connected child process or HTTP client.
type transportPool struct {
	mu   sync.Mutex
	byID map[string]transport.Transport
}

func newTransportPool() *transportPool {
	return &transportPool{byID: make(map[string]transport.Transport)}
}

func (p *transportPool) get(ctx context.Context, binding registry.TransportBinding) (transport.Transport, error) {
	key := binding.Variant + "|" + binding.Endpoint

	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.byID[key]; ok && t.IsConnected() {
		return t, nil
	}

	// Dial with a detached context: the pooled connection (and any
	// child process bound to it) must outlive the call that happened
	// to dial it, or every later call through this binding finds a
	// dead transport.
	t, err := dial(context.WithoutCancel(ctx), binding)
	if err != nil {
		return nil, err
	}
	p.byID[key] = t
	return t, nil
}

func (p *transportPool) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, t := range p.byID {
		if err := t.Close(); err != nil {
			logging.Get(logging.CategoryExecutor).Warn("error closing transport %s: %v", key, err)
		}
	}
	p.byID = make(map[string]transport.Transport)
}

func dial(ctx context.Context, binding registry.TransportBinding) (transport.Transport, error) {
	switch binding.Variant {
	case "stdio":
		t := transport.NewStdioTransport(binding.Endpoint)
		if err := t.Connect(ctx); err != nil {
			return nil, fmt.Errorf("dial stdio transport: %w", err)
		}
		return t, nil
	case "http":
		t := transport.NewHTTPTransport(binding.Endpoint, http.DefaultClient)
		if err := t.Connect(ctx); err != nil {
			return nil, fmt.Errorf("dial http transport: %w", err)
		}
		return t, nil
	case "sse":
		t := transport.NewSSETransport(binding.Endpoint, binding.Endpoint, http.DefaultClient)
		if err := t.Connect(ctx); err != nil {
			return nil, fmt.Errorf("dial sse transport: %w", err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransportVariant, binding.Variant)
	}
}
