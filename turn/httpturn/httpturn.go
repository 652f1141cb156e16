// Package httpturn provides a delegate turn endpoint that posts the turn to
// a remote conversation service. The request carries the internal auth token
// so the service recognizes it as an internal, not end-user, call; the
// streamed response body is drained and discarded because the reply is read
// back from the message store once the service persists it.
package httpturn

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hupe1980/delegatemesh/core"
)

// InternalTokenHeader carries the shared internal authentication secret.
const InternalTokenHeader = "X-Internal-Token"

// Options configures the HTTP turn endpoint.
type Options struct {
	// Token is the shared internal authentication secret.
	Token string
	// HTTPClient overrides the default client (no timeout; cancellation is
	// driven by the request context).
	HTTPClient *http.Client
}

// Endpoint implements core.TurnEndpoint over HTTP.
type Endpoint struct {
	url    string
	token  string
	client *http.Client
}

// Compile-time interface assertion.
var _ core.TurnEndpoint = (*Endpoint)(nil)

// NewEndpoint creates an HTTP turn endpoint posting to url.
func NewEndpoint(url string, optFns ...func(o *Options)) *Endpoint {
	opts := Options{
		HTTPClient: &http.Client{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Endpoint{url: url, token: opts.Token, client: opts.HTTPClient}
}

// Run implements core.TurnEndpoint. The POST is issued asynchronously; the
// events channel carries the response body line by line and closes when the
// stream ends. Cancellation of ctx aborts the request at its next read.
func (e *Endpoint) Run(ctx context.Context, req core.TurnRequest) (<-chan core.TurnEvent, <-chan error, error) {
	if req.SessionID == "" {
		return nil, nil, fmt.Errorf("session id is required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode turn request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build turn request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		httpReq.Header.Set(InternalTokenHeader, e.token)
	}

	events := make(chan core.TurnEvent, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errCh)

		start := time.Now()
		resp, err := e.client.Do(httpReq)
		if err != nil {
			if ctx.Err() == nil {
				errCh <- fmt.Errorf("turn request failed: %w", err)
			}
			return
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			errCh <- fmt.Errorf("turn endpoint returned status %d", resp.StatusCode)
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			case events <- core.TurnEvent{Delta: scanner.Text()}:
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("turn stream failed after %s: %w", time.Since(start).Round(time.Millisecond), err)
		}
	}()

	return events, errCh, nil
}
