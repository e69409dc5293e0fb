package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/Complexia/durango-cli/internal/codex"
	"github.com/Complexia/durango-cli/internal/config"
	"github.com/Complexia/durango-cli/internal/project"
	"github.com/Complexia/durango-cli/internal/relay"
)

// captureSender records every frame the bridge emits toward the relay.
type captureSender struct {
	mu   sync.Mutex
	msgs []any
}

func (c *captureSender) Send(ctx context.Context, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, v)
	return nil
}

func (c *captureSender) upserts() []relay.EventUpsert {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []relay.EventUpsert
	for _, m := range c.msgs {
		if u, ok := m.(relay.EventUpsert); ok {
			out = append(out, u)
		}
	}
	return out
}

func (c *captureSender) acks() []relay.DispatchAck {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []relay.DispatchAck
	for _, m := range c.msgs {
		if a, ok := m.(relay.DispatchAck); ok {
			out = append(out, a)
		}
	}
	return out
}

func (c *captureSender) threadUpserts() []relay.ThreadUpsert {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []relay.ThreadUpsert
	for _, m := range c.msgs {
		if u, ok := m.(relay.ThreadUpsert); ok {
			out = append(out, u)
		}
	}
	return out
}

func (c *captureSender) threadUpdates() []relay.ThreadUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []relay.ThreadUpdate
	for _, m := range c.msgs {
		if u, ok := m.(relay.ThreadUpdate); ok {
			out = append(out, u)
		}
	}
	return out
}

// fakeAgent is a canned agentClient.
type fakeAgent struct {
	threadStartID  string
	threadStartErr error
	threadReadResp json.RawMessage
	threadReadErr  error
	turnStartErr   error
	threads        []codex.Thread
	threadsErr     error
	models         []json.RawMessage

	mu         sync.Mutex
	turnStarts []codex.TurnStartOptions
	interrupts []string
}

func (f *fakeAgent) ThreadStart(ctx context.Context, opts codex.ThreadStartOptions) (string, error) {
	if f.threadStartErr != nil {
		return "", f.threadStartErr
	}
	if f.threadStartID == "" {
		return "thread-new", nil
	}
	return f.threadStartID, nil
}

func (f *fakeAgent) ThreadRead(ctx context.Context, codexThreadID string) (json.RawMessage, error) {
	return f.threadReadResp, f.threadReadErr
}

func (f *fakeAgent) TurnStart(ctx context.Context, opts codex.TurnStartOptions) error {
	f.mu.Lock()
	f.turnStarts = append(f.turnStarts, opts)
	f.mu.Unlock()
	return f.turnStartErr
}

func (f *fakeAgent) TurnInterrupt(ctx context.Context, codexThreadID string) error {
	f.mu.Lock()
	f.interrupts = append(f.interrupts, codexThreadID)
	f.mu.Unlock()
	return nil
}

func (f *fakeAgent) ListThreads(ctx context.Context, opts codex.ListOptions) ([]codex.Thread, error) {
	return f.threads, f.threadsErr
}

func (f *fakeAgent) ListModels(ctx context.Context, opts codex.ListOptions) ([]json.RawMessage, error) {
	return f.models, nil
}

func newTestBridge(t *testing.T, agent agentClient, projects ...project.Registration) (*Bridge, *captureSender) {
	t.Helper()
	sender := &captureSender{}
	b := New(Options{
		Config: &config.Config{
			MachineID: "m-1",
			UserID:    "u-1",
			Token:     "tok",
			RelayURL:  "https://relay.invalid",
			WebURL:    "https://web.invalid",
		},
		CLIVersion: "test",
		Projects:   projects,
	})
	b.codex = agent
	b.link = sender
	return b, sender
}
