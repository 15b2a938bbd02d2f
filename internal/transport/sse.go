package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"rice/internal/logging"
)

// SSETransport reads frames from a long-lived Server-Sent Events stream
// ("event: message\ndata: <json>\n\n") and writes outbound messages to a
// separate POST endpoint, matching the split most SSE-based tool servers
// use: one channel to push, one to stream back.
type SSETransport struct {
	streamURL string
	postURL   string
	client    *http.Client

	connected atomic.Bool
	cancel    context.CancelFunc
	frames    chan Message
	done      chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
}

// NewSSETransport builds a transport streaming frames from streamURL and
// posting outbound frames to postURL.
func NewSSETransport(streamURL, postURL string, client *http.Client) *SSETransport {
	if client == nil {
		client = &http.Client{}
	}
	return &SSETransport{
		streamURL: streamURL,
		postURL:   postURL,
		client:    client,
		frames:    make(chan Message, 64),
		done:      make(chan struct{}),
	}
}

// Connect opens the event stream and starts the read loop.
func (t *SSETransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected.Load() {
		return nil
	}

	// ctx bounds only the connect; the stream itself lives until Close
	// cancels streamCtx, which also aborts the blocked body read.
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, cancel)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, t.streamURL, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("transport: build sse request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.client.Do(req)
	stop()
	if err != nil {
		cancel()
		return fmt.Errorf("transport: sse connect: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("transport: sse server returned %d", resp.StatusCode)
	}

	t.cancel = cancel
	t.connected.Store(true)

	t.wg.Add(1)
	go t.readLoop(streamCtx, resp)
	return nil
}

func (t *SSETransport) readLoop(ctx context.Context, resp *http.Response) {
	defer t.wg.Done()
	defer resp.Body.Close()
	log := logging.Get(logging.CategoryTransport)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), DefaultMaxFrameBytes)

	var dataLines []string
	flush := func() {
		if len(dataLines) == 0 {
			return
		}
		payload := strings.Join(dataLines, "\n")
		dataLines = dataLines[:0]

		var msg Message
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			log.Debug("discarding malformed sse frame: %v", err)
			return
		}
		select {
		case t.frames <- msg:
		case <-t.done:
		case <-ctx.Done():
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, "event:"):
			// only "message" events carry frames; type itself isn't needed
			// to parse the payload so it's observed and discarded.
		}
	}

	t.connected.Store(false)
	close(t.frames)
}

// Send posts msg to the transport's companion endpoint; the reply arrives
// asynchronously over the event stream and is delivered via Recv.
func (t *SSETransport) Send(ctx context.Context, msg Message) error {
	if !t.connected.Load() {
		return ErrNotConnected
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("transport: marshal sse frame: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.postURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("transport: build sse post: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("transport: sse post failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Recv returns the next frame parsed off the event stream.
func (t *SSETransport) Recv(ctx context.Context) (Message, error) {
	select {
	case msg, ok := <-t.frames:
		if !ok {
			return Message{}, ErrNotConnected
		}
		return msg, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-t.done:
		return Message{}, ErrNotConnected
	}
}

// IsConnected reports whether the event stream is still open.
func (t *SSETransport) IsConnected() bool {
	return t.connected.Load()
}

// Close cancels the stream read and releases its goroutine.
func (t *SSETransport) Close() error {
	t.mu.Lock()
	if !t.connected.Load() {
		t.mu.Unlock()
		return nil
	}
	t.connected.Store(false)
	if t.cancel != nil {
		t.cancel()
	}
	close(t.done)
	t.mu.Unlock()

	t.wg.Wait()
	return nil
}

var _ Transport = (*SSETransport)(nil)
