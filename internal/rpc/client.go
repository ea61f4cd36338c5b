// Package rpc implements the thin JSON-RPC 2.0 client used to talk to the
// wallet daemon. The daemon's method set is treated as an opaque external
// protocol: the client contributes transport (HTTP POST with basic auth) and
// JSON payload passthrough, nothing more.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/walletenv/walletenv/internal/sentinel"
)

// ErrTransport is returned when the request could not be delivered or the
// response could not be read: connection refused, timeouts, broken pipes.
const ErrTransport = sentinel.Error("rpc transport error")

// ErrProtocol is returned when the daemon answered but the response is not a
// well-formed JSON-RPC response (bad JSON, mismatched id, missing result).
const ErrProtocol = sentinel.Error("rpc protocol error")

// requestTimeout is the per-request safety net applied when the caller's
// context carries no deadline. Readiness polls pass short contexts; this
// only guards direct Call users against an unbounded hang.
const requestTimeout = 30 * time.Second

// Error is a JSON-RPC error object reported by the daemon itself. It is a
// valid protocol exchange, so it is distinct from ErrProtocol; callers
// unwrap it with errors.As.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Client issues single request/response calls against one daemon endpoint.
// It is safe for concurrent use.
type Client struct {
	url   string
	user  string
	pass  string
	httpc *http.Client
	seq   atomic.Uint64
}

// New creates a Client for the given endpoint URL (e.g.
// "http://127.0.0.1:7777") with basic-auth credentials.
//
// Keep-alives are disabled: readiness polling issues many short-lived
// requests against a server that is often not listening yet, and idle
// connections would pile up across attempts.
func New(url, user, pass string) *Client {
	return &Client{
		url:  url,
		user: user,
		pass: pass,
		httpc: &http.Client{
			Transport: &http.Transport{DisableKeepAlives: true},
		},
	}
}

// URL returns the endpoint URL this client talks to.
func (c *Client) URL() string {
	return c.url
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error"`
}

// Call sends one JSON-RPC request and returns the raw result payload.
// A nil params marshals as an empty list, which the daemon accepts for
// zero-argument methods.
//
// Errors: ErrTransport for delivery failures, ErrProtocol for malformed
// responses, and *Error (unwrapped via errors.As) when the daemon itself
// reports a method-level error.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if method == "" {
		return nil, fmt.Errorf("%w: method must not be empty", ErrProtocol)
	}
	if params == nil {
		params = []any{}
	}

	id := c.seq.Add(1)
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %w", ErrProtocol, err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, requestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.user, c.pass)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, method, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body) // best-effort drain
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrTransport, err)
	}

	var parsed response
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response (status %d): %w", ErrProtocol, resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("call %s: %w", method, parsed.Error)
	}
	if parsed.ID != id {
		return nil, fmt.Errorf("%w: response id %d does not match request id %d", ErrProtocol, parsed.ID, id)
	}
	if parsed.Result == nil {
		return nil, fmt.Errorf("%w: response has neither result nor error", ErrProtocol)
	}
	return parsed.Result, nil
}

// CallInto sends one request and decodes the result into out.
func (c *Client) CallInto(ctx context.Context, method string, params, out any) error {
	raw, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s result: %w", ErrProtocol, method, err)
	}
	return nil
}
