package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// ErrClientClosed is the rejection handed to every pending request when the
// transport shuts down.
var ErrClientClosed = errors.New("client closed")

const (
	defaultRequestTimeout = 30 * time.Second
	defaultAttemptTimeout = 2 * time.Second
	defaultConnectBudget  = 25 * time.Second
	writeTimeout          = 10 * time.Second
)

// Notification is an inbound JSON-RPC frame with a method and no id.
type Notification struct {
	Method string
	Params json.RawMessage
}

// Error is a JSON-RPC error payload.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// frame is the JSON-RPC envelope. The upstream sometimes omits the
// "jsonrpc" marker on responses, so inbound frames accept either form;
// outbound frames always set it.
type frame struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type callResult struct {
	data json.RawMessage
	err  error
}

// DialOptions bound the connect retry loop.
type DialOptions struct {
	// AttemptTimeout bounds a single dial attempt. Default 2s.
	AttemptTimeout time.Duration
	// RetryFor bounds the whole retry loop. Default 25s.
	RetryFor time.Duration
	// ProcessExited reports whether a spawned agent process has already
	// exited, so retrying is pointless. May be nil.
	ProcessExited func() (code int, exited bool)
}

// Client is a JSON-RPC 2.0 connection over a single WebSocket, with
// request/response correlation and a notification stream.
type Client struct {
	// RequestTimeout bounds each outstanding request. Defaults to 30s.
	RequestTimeout time.Duration

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan callResult
	closed  bool

	notifs chan Notification
	done   chan struct{}
}

// DialOnce makes a single dial attempt bounded by timeout. Used to probe for
// a pre-existing agent before spawning one.
func DialOnce(ctx context.Context, url string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(16 * 1024 * 1024)

	c := &Client{
		RequestTimeout: defaultRequestTimeout,
		conn:           conn,
		pending:        make(map[string]chan callResult),
		notifs:         make(chan Notification, 256),
		done:           make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Dial connects to the agent socket, retrying with backoff until the
// aggregate budget runs out. If the spawned agent process exits during the
// loop, Dial fails immediately with a terminal error naming the exit code.
func Dial(ctx context.Context, url string, opts DialOptions) (*Client, error) {
	attempt := opts.AttemptTimeout
	if attempt <= 0 {
		attempt = defaultAttemptTimeout
	}
	budget := opts.RetryFor
	if budget <= 0 {
		budget = defaultConnectBudget
	}
	deadline := time.Now().Add(budget)
	bo := NewBackoff(100*time.Millisecond, 2*time.Second)

	var lastErr error
	for {
		c, err := DialOnce(ctx, url, attempt)
		if err == nil {
			return c, nil
		}
		lastErr = err

		if opts.ProcessExited != nil {
			if code, exited := opts.ProcessExited(); exited {
				return nil, fmt.Errorf("agent process exited with code %d before accepting connections", code)
			}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("connect to agent timed out after %s: %w", budget, lastErr)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(bo.Next()):
		}
	}
}

// Notifications returns the inbound notification stream. The channel is
// closed when the transport shuts down.
func (c *Client) Notifications() <-chan Notification {
	return c.notifs
}

// Request sends a JSON-RPC request and waits for its response, bounded by
// RequestTimeout. The result field is returned verbatim; error payloads
// reject with their message.
func (c *Client) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := uuid.NewString()

	var rawParams json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		rawParams = data
	}
	idData, _ := json.Marshal(id)

	ch := make(chan callResult, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	out := frame{JSONRPC: "2.0", ID: idData, Method: method, Params: rawParams}
	if err := c.write(ctx, out); err != nil {
		c.drop(id)
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	timeout := c.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.data, res.err
	case <-timer.C:
		c.drop(id)
		return nil, fmt.Errorf("%s: request timed out after %s", method, timeout)
	case <-ctx.Done():
		c.drop(id)
		return nil, ctx.Err()
	}
}

// Notify sends a JSON-RPC notification (no id, no reply).
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	var rawParams json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		rawParams = data
	}
	return c.write(ctx, frame{JSONRPC: "2.0", Method: method, Params: rawParams})
}

// Close tears down the socket and rejects everything pending.
func (c *Client) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	c.shutdown()
	return err
}

func (c *Client) write(ctx context.Context, f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Write(writeCtx, websocket.MessageText, data)
}

func (c *Client) drop(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) readLoop() {
	ctx := context.Background()
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			c.shutdown()
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Warn("dropping malformed agent frame", "err", err)
			continue
		}

		switch {
		case f.Method != "" && len(f.ID) == 0:
			select {
			case c.notifs <- Notification{Method: f.Method, Params: f.Params}:
			case <-c.done:
				return
			}
		case f.Method != "":
			// Inbound requests are not part of the contract; drop loudly.
			slog.Warn("dropping unexpected agent request", "method", f.Method)
		case len(f.ID) > 0:
			c.resolve(idString(f.ID), f)
		default:
			slog.Warn("dropping agent frame with no method and no id")
		}
	}
}

func (c *Client) resolve(id string, f frame) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		slog.Warn("response for unknown request id", "id", id)
		return
	}
	if f.Error != nil {
		ch <- callResult{err: f.Error}
		return
	}
	ch <- callResult{data: f.Result}
}

// shutdown rejects all pending requests and closes the notification stream.
// Safe to call more than once.
func (c *Client) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[string]chan callResult)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- callResult{err: ErrClientClosed}
	}
	close(c.done)
	close(c.notifs)
	c.conn.CloseNow()
}

// idString normalizes a raw JSON-RPC id (string or number) for table lookup.
func idString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if unquoted, err := strconv.Unquote(s); err == nil {
		return unquoted
	}
	return s
}
