package codex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Complexia/durango-cli/internal/jsonrpc"
)

const (
	clientName = "durango"

	existingProbeTimeout = 1500 * time.Millisecond

	DefaultApprovalPolicy = "never"
	DefaultSandbox        = "danger-full-access"
)

// ErrNoInput is returned by TurnStart when neither prompt nor input items
// yield anything to send.
var ErrNoInput = errors.New("turn/start requires at least one input item")

// InputItem is one element of a turn's input array. The agent accepts a
// loosely-typed union, so items are built through the constructors below and
// passed through as-is otherwise.
type InputItem = map[string]any

// TextItem builds a text input item.
func TextItem(text string) InputItem {
	return InputItem{"type": "text", "text": text, "text_elements": []any{}}
}

// LocalImageItem builds an input item pointing at an image on disk.
func LocalImageItem(path string) InputItem {
	return InputItem{"type": "localImage", "path": path}
}

// MentionItem builds a file-mention input item.
func MentionItem(name, path string) InputItem {
	return InputItem{"type": "mention", "name": name, "path": path}
}

// ImageURLItem builds an input item referencing a remote image.
func ImageURLItem(url string) InputItem {
	return InputItem{"type": "imageUrl", "url": url}
}

// Client is a typed view over the agent server's JSON-RPC socket. It may own
// a spawned agent process, or attach to a pre-existing one.
type Client struct {
	rpc  *jsonrpc.Client
	proc *process
}

// StartOptions configure connect-or-spawn.
type StartOptions struct {
	Bin           string // agent binary, e.g. "codex"
	URL           string // app-server WebSocket URL
	ClientVersion string // reported in initialize
}

// Start attaches to an agent already listening on opts.URL, or spawns
// `<bin> app-server --listen <url>` and connects to it. On success the
// initialize handshake has completed.
func Start(ctx context.Context, opts StartOptions) (*Client, error) {
	c := &Client{}

	rpc, err := jsonrpc.DialOnce(ctx, opts.URL, existingProbeTimeout)
	if err != nil {
		proc, spawnErr := spawn(opts.Bin, opts.URL)
		if spawnErr != nil {
			return nil, fmt.Errorf("spawn agent: %w", spawnErr)
		}
		c.proc = proc
		rpc, err = jsonrpc.Dial(ctx, opts.URL, jsonrpc.DialOptions{
			ProcessExited: proc.ExitState,
		})
		if err != nil {
			proc.Terminate()
			return nil, err
		}
	}
	c.rpc = rpc

	if err := c.initialize(ctx, opts.ClientVersion); err != nil {
		c.Close()
		return nil, fmt.Errorf("initialize agent: %w", err)
	}
	return c, nil
}

// Spawned reports whether this client owns the agent process.
func (c *Client) Spawned() bool {
	return c.proc != nil
}

// Notifications returns the agent's notification stream.
func (c *Client) Notifications() <-chan jsonrpc.Notification {
	return c.rpc.Notifications()
}

// Close tears down the transport and terminates any spawned agent.
func (c *Client) Close() {
	if c.rpc != nil {
		c.rpc.Close()
	}
	if c.proc != nil {
		c.proc.Terminate()
	}
}

func (c *Client) initialize(ctx context.Context, version string) error {
	params := map[string]any{
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": version,
		},
		"capabilities": map[string]any{
			"experimentalApi": true,
		},
	}
	if _, err := c.rpc.Request(ctx, "initialize", params); err != nil {
		return err
	}
	return c.rpc.Notify(ctx, "initialized", nil)
}

// Thread is one entry of a thread/list page. Timestamps arrive in whatever
// unit the agent felt like; normalization happens downstream.
type Thread struct {
	ID        string  `json:"id"`
	Cwd       string  `json:"cwd"`
	Preview   string  `json:"preview"`
	Title     string  `json:"title"`
	CreatedAt float64 `json:"createdAt"`
	UpdatedAt float64 `json:"updatedAt"`
}

// ListOptions bound a pagination loop.
type ListOptions struct {
	Limit    int // per-page, clamped to [1, 100]
	MaxPages int // clamped to [1, 20]
}

func (o ListOptions) clamped() (limit, maxPages int) {
	limit = o.Limit
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}
	maxPages = o.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}
	if maxPages > 20 {
		maxPages = 20
	}
	return limit, maxPages
}

// page tolerates the several shapes the agent uses for list responses.
type page[T any] struct {
	Items      []T     `json:"items"`
	Threads    []T     `json:"threads"`
	Models     []T     `json:"models"`
	Data       []T     `json:"data"`
	NextCursor *string `json:"nextCursor"`
	Cursor     *string `json:"cursor"`
}

func (p page[T]) entries() []T {
	switch {
	case len(p.Items) > 0:
		return p.Items
	case len(p.Threads) > 0:
		return p.Threads
	case len(p.Models) > 0:
		return p.Models
	default:
		return p.Data
	}
}

func (p page[T]) next() *string {
	if p.NextCursor != nil {
		return p.NextCursor
	}
	return p.Cursor
}

// ListThreads paginates thread/list until an empty page, a null cursor, or
// the page cap.
func (c *Client) ListThreads(ctx context.Context, opts ListOptions) ([]Thread, error) {
	return paginate[Thread](ctx, c, "thread/list", opts)
}

// ListModels paginates model/list. Model entries are passed through opaque.
func (c *Client) ListModels(ctx context.Context, opts ListOptions) ([]json.RawMessage, error) {
	return paginate[json.RawMessage](ctx, c, "model/list", opts)
}

func paginate[T any](ctx context.Context, c *Client, method string, opts ListOptions) ([]T, error) {
	limit, maxPages := opts.clamped()
	var out []T
	var cursor *string
	for i := 0; i < maxPages; i++ {
		params := map[string]any{"limit": limit}
		if cursor != nil {
			params["cursor"] = *cursor
		}
		result, err := c.rpc.Request(ctx, method, params)
		if err != nil {
			return nil, err
		}
		var p page[T]
		if err := json.Unmarshal(result, &p); err != nil {
			return nil, fmt.Errorf("decode %s page: %w", method, err)
		}
		entries := p.entries()
		if len(entries) == 0 {
			break
		}
		out = append(out, entries...)
		cursor = p.next()
		if cursor == nil || *cursor == "" {
			break
		}
	}
	return out, nil
}

// ThreadStartOptions configure a new agent thread.
type ThreadStartOptions struct {
	Cwd            string
	Model          string
	ApprovalPolicy string
	Sandbox        string
}

// ThreadStart creates a new agent thread and returns its id.
func (c *Client) ThreadStart(ctx context.Context, opts ThreadStartOptions) (string, error) {
	approval := opts.ApprovalPolicy
	if approval == "" {
		approval = DefaultApprovalPolicy
	}
	sandbox := opts.Sandbox
	if sandbox == "" {
		sandbox = DefaultSandbox
	}
	params := map[string]any{
		"cwd":                  opts.Cwd,
		"approvalPolicy":       approval,
		"sandbox":              sandbox,
		"experimentalRawEvents": true,
	}
	if opts.Model != "" {
		params["model"] = opts.Model
	}
	result, err := c.rpc.Request(ctx, "thread/start", params)
	if err != nil {
		return "", err
	}
	var resp struct {
		ThreadID string `json:"threadId"`
		ID       string `json:"id"`
		Thread   struct {
			ID string `json:"id"`
		} `json:"thread"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return "", fmt.Errorf("decode thread/start response: %w", err)
	}
	switch {
	case resp.ThreadID != "":
		return resp.ThreadID, nil
	case resp.Thread.ID != "":
		return resp.Thread.ID, nil
	case resp.ID != "":
		return resp.ID, nil
	}
	return "", errors.New("thread/start response carried no thread id")
}

// ThreadRead fetches a thread, including its turns. The response shape is
// opaque here; the hydration engine digs through it.
func (c *Client) ThreadRead(ctx context.Context, codexThreadID string) (json.RawMessage, error) {
	return c.rpc.Request(ctx, "thread/read", map[string]any{
		"codexThreadId": codexThreadID,
		"includeTurns":  true,
	})
}

// TurnStartOptions configure one turn. Exactly one of Prompt/Input must
// yield at least one input item.
type TurnStartOptions struct {
	ThreadID        string
	Prompt          string
	Input           []InputItem
	Model           string
	ReasoningEffort string
	ApprovalPolicy  string
	Sandbox         string
}

// TurnStart submits a turn to the agent.
func (c *Client) TurnStart(ctx context.Context, opts TurnStartOptions) error {
	input := opts.Input
	if len(input) == 0 {
		if text := strings.TrimSpace(opts.Prompt); text != "" {
			input = []InputItem{TextItem(text)}
		}
	}
	if len(input) == 0 {
		return ErrNoInput
	}
	params := map[string]any{
		"codexThreadId": opts.ThreadID,
		"input":         input,
	}
	if opts.Model != "" {
		params["model"] = opts.Model
	}
	if opts.ReasoningEffort != "" {
		params["reasoningEffort"] = opts.ReasoningEffort
	}
	if opts.ApprovalPolicy != "" {
		params["approvalPolicy"] = opts.ApprovalPolicy
	}
	if opts.Sandbox != "" {
		params["sandbox"] = opts.Sandbox
	}
	_, err := c.rpc.Request(ctx, "turn/start", params)
	return err
}

// TurnInterrupt asks the agent to cancel the thread's active turn.
// Best-effort: the turn may already be finished.
func (c *Client) TurnInterrupt(ctx context.Context, codexThreadID string) error {
	_, err := c.rpc.Request(ctx, "turn/interrupt", map[string]any{
		"codexThreadId": codexThreadID,
	})
	return err
}

// AuthStatus returns the agent's authentication state verbatim.
func (c *Client) AuthStatus(ctx context.Context) (json.RawMessage, error) {
	return c.rpc.Request(ctx, "getAuthStatus", nil)
}
