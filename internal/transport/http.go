package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
)

// HTTPTransport issues one HTTP request per Send/Recv pair. Correlation
// is carried in the JSON payload itself rather than in any transport
// framing, since HTTP already pairs a request with its response.
type HTTPTransport struct {
	baseURL string
	client  *http.Client

	connected atomic.Bool
	mu        sync.Mutex
	pending   chan Message
}

// NewHTTPTransport builds a transport posting to baseURL through client,
// or through a default http.Client when client is nil.
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{
		baseURL: baseURL,
		client:  client,
		pending: make(chan Message, 1),
	}
}

// Connect marks the transport ready; HTTP is connectionless, so this only
// flips the health flag used by IsConnected.
func (t *HTTPTransport) Connect(ctx context.Context) error {
	t.connected.Store(true)
	return nil
}

// Send posts msg and buffers the decoded response for the next Recv call.
func (t *HTTPTransport) Send(ctx context.Context, msg Message) error {
	if !t.connected.Load() {
		return ErrNotConnected
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("transport: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("transport: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return &StatusError{Code: resp.StatusCode, Body: string(data)}
	}

	var reply Message
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return ErrProtocolError
	}

	select {
	case t.pending <- reply:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Recv returns the response buffered by the most recent Send.
func (t *HTTPTransport) Recv(ctx context.Context) (Message, error) {
	if !t.connected.Load() {
		return Message{}, ErrNotConnected
	}
	select {
	case msg := <-t.pending:
		return msg, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// IsConnected reports whether Connect has been called and Close has not.
func (t *HTTPTransport) IsConnected() bool {
	return t.connected.Load()
}

// Close marks the transport unusable. HTTP holds no persistent socket to
// release beyond the shared client's connection pool.
func (t *HTTPTransport) Close() error {
	t.connected.Store(false)
	return nil
}

var _ Transport = (*HTTPTransport)(nil)
