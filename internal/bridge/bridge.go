package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Complexia/durango-cli/internal/codex"
	"github.com/Complexia/durango-cli/internal/config"
	"github.com/Complexia/durango-cli/internal/jsonrpc"
	"github.com/Complexia/durango-cli/internal/project"
	"github.com/Complexia/durango-cli/internal/relay"
)

// codexThreadPrefix derives downstream ids for agent-initiated threads.
const codexThreadPrefix = "codex:"

// Options configure one bridge session.
type Options struct {
	Config     *config.Config
	CLIVersion string
	Projects   []project.Registration
}

// agentClient is the slice of *codex.Client the dispatch and sync paths
// call. Narrowed to an interface so tests can substitute a fake agent.
type agentClient interface {
	ThreadStart(ctx context.Context, opts codex.ThreadStartOptions) (string, error)
	ThreadRead(ctx context.Context, codexThreadID string) (json.RawMessage, error)
	TurnStart(ctx context.Context, opts codex.TurnStartOptions) error
	TurnInterrupt(ctx context.Context, codexThreadID string) error
	ListThreads(ctx context.Context, opts codex.ListOptions) ([]codex.Thread, error)
	ListModels(ctx context.Context, opts codex.ListOptions) ([]json.RawMessage, error)
}

// relaySender is how bridge components emit frames to the relay.
type relaySender interface {
	Send(ctx context.Context, v any) error
}

// Bridge ties the agent socket and the relay socket together for one
// process lifetime.
type Bridge struct {
	cfg        *config.Config
	cliVersion string
	projects   []project.Registration

	codex agentClient
	link  relaySender
	api   *relay.API

	mu       sync.Mutex
	bindings map[string]string // agent thread id → downstream thread id
}

func New(opts Options) *Bridge {
	return &Bridge{
		cfg:        opts.Config,
		cliVersion: opts.CLIVersion,
		projects:   opts.Projects,
		api:        relay.NewAPI(opts.Config.RelayURL, opts.Config.Token),
		bindings:   make(map[string]string),
	}
}

// Run connects the agent, dials the relay, and serves until ctx is
// cancelled or a transport dies. Both transports are torn down together.
func (b *Bridge) Run(ctx context.Context) error {
	agent, err := codex.Start(ctx, codex.StartOptions{
		Bin:           b.cfg.CodexBin,
		URL:           b.cfg.CodexAppServerURL,
		ClientVersion: b.cliVersion,
	})
	if err != nil {
		return fmt.Errorf("start agent: %w", err)
	}
	b.codex = agent
	defer agent.Close()

	if agent.Spawned() {
		fmt.Printf("spawned agent server on %s\n", b.cfg.CodexAppServerURL)
	} else {
		fmt.Printf("attached to agent server on %s\n", b.cfg.CodexAppServerURL)
	}

	if status, err := agent.AuthStatus(ctx); err != nil {
		slog.Warn("agent auth status unavailable", "err", err)
	} else {
		slog.Debug("agent auth status", "status", string(status))
	}

	link := &relay.Link{
		URL:        b.cfg.RelayURL,
		Token:      b.cfg.Token,
		Machine:    b.machineInfo(),
		OnReady:    b.onSessionReady,
		OnDispatch: b.handleDispatch,
	}
	b.link = link

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return link.Run(gctx)
	})
	g.Go(func() error {
		b.pumpNotifications(gctx, agent.Notifications())
		if gctx.Err() == nil {
			// The agent socket closed on its own; end the relay session too.
			return fmt.Errorf("agent transport closed: %w", jsonrpc.ErrClientClosed)
		}
		return nil
	})

	err = g.Wait()
	if err != nil && ctx.Err() == nil {
		fmt.Printf("relay session ended: %v\n", err)
	}
	return err
}

func (b *Bridge) machineInfo() relay.MachineInfo {
	hostname, _ := os.Hostname()
	return relay.MachineInfo{
		MachineID:    b.cfg.MachineID,
		UserID:       b.cfg.UserID,
		Hostname:     hostname,
		Platform:     runtime.GOOS,
		Arch:         runtime.GOARCH,
		OSVersion:    osVersion(),
		CLIVersion:   b.cliVersion,
		CodexVersion: b.cfg.CodexVersion,
	}
}

// osVersion is best-effort; an empty string is fine.
func osVersion() string {
	out, err := exec.Command("uname", "-r").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func (b *Bridge) onSessionReady(ctx context.Context, ready relay.SessionReady) {
	fmt.Printf("session ready (machine %s)\n", ready.MachineID)
	b.bootstrap(ctx)
}

// pumpNotifications forwards agent notifications until the transport closes.
func (b *Bridge) pumpNotifications(ctx context.Context, notifs <-chan jsonrpc.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notifs:
			if !ok {
				return
			}
			b.forwardNotification(ctx, n)
		}
	}
}

// bind installs an agent→downstream thread binding. Bindings are never
// removed during a session.
func (b *Bridge) bind(agentThreadID, downstreamThreadID string) {
	b.mu.Lock()
	b.bindings[agentThreadID] = downstreamThreadID
	b.mu.Unlock()
}

func (b *Bridge) lookup(agentThreadID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.bindings[agentThreadID]
	return id, ok
}

// emit sends one event.upsert, stamping the item's id. requestId doubles as
// the turn id so the relay can group a turn's events.
func (b *Bridge) emit(ctx context.Context, downstreamThreadID, turnID string, item relay.Item) {
	item.ID = uuid.NewString()
	item.TurnID = turnID
	if item.Timestamp == 0 {
		item.Timestamp = time.Now().UnixMilli()
	}
	msg := relay.EventUpsert{
		Type:      relay.TypeEventUpsert,
		RequestID: turnID,
		MachineID: b.cfg.MachineID,
		ThreadID:  downstreamThreadID,
		Item:      item,
	}
	if err := b.link.Send(ctx, msg); err != nil {
		slog.Warn("event.upsert send failed", "thread", downstreamThreadID, "err", err)
	}
}
