package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Complexia/durango-cli/internal/codex"
	"github.com/Complexia/durango-cli/internal/relay"
)

var errEmptyInput = errors.New("turn/start requires prompt text or at least one attachment.")

// handleDispatch runs one relay-originated command through its ack trail:
// accepted → running → completed | failed. Any error in the body becomes a
// terminal failed ack.
func (b *Bridge) handleDispatch(ctx context.Context, action relay.DispatchAction) {
	b.ack(ctx, action.RequestID, relay.AckAccepted, nil, nil)
	b.ack(ctx, action.RequestID, relay.AckRunning, nil, nil)

	payload, err := b.performDispatch(ctx, action)
	if err != nil {
		slog.Warn("dispatch failed", "type", action.Type, "request", action.RequestID, "err", err)
		b.ack(ctx, action.RequestID, relay.AckFailed, &relay.ErrorEnvelope{
			Code:    relay.CodeAppServerError,
			Message: err.Error(),
		}, nil)
		return
	}
	b.ack(ctx, action.RequestID, relay.AckCompleted, nil, payload)
}

func (b *Bridge) ack(ctx context.Context, requestID, status string, errEnv *relay.ErrorEnvelope, payload any) {
	msg := relay.DispatchAck{
		Type:      relay.TypeDispatchAck,
		RequestID: requestID,
		MachineID: b.cfg.MachineID,
		Status:    status,
		Error:     errEnv,
		Payload:   payload,
	}
	if err := b.link.Send(ctx, msg); err != nil {
		slog.Warn("dispatch.ack send failed", "request", requestID, "status", status, "err", err)
	}
}

func (b *Bridge) performDispatch(ctx context.Context, action relay.DispatchAction) (any, error) {
	switch action.Type {
	case "thread.start":
		agentThreadID, err := b.codex.ThreadStart(ctx, codex.ThreadStartOptions{
			Cwd:            action.Cwd,
			Model:          action.Model,
			ApprovalPolicy: action.ApprovalPolicy,
			Sandbox:        action.Sandbox,
		})
		if err != nil {
			return nil, err
		}
		downstreamID := action.ThreadID
		if downstreamID == "" {
			downstreamID = codexThreadPrefix + agentThreadID
		}
		b.bind(agentThreadID, downstreamID)

		input, err := b.buildInput(action)
		if err != nil {
			return nil, err
		}
		if err := b.codex.TurnStart(ctx, codex.TurnStartOptions{
			ThreadID:        agentThreadID,
			Input:           input,
			Model:           action.Model,
			ReasoningEffort: action.ReasoningEffort,
			ApprovalPolicy:  action.ApprovalPolicy,
			Sandbox:         action.Sandbox,
		}); err != nil {
			return nil, err
		}
		return map[string]any{"codexThreadId": agentThreadID, "state": "started"}, nil

	case "thread.hydrate":
		if action.CodexThreadID == "" {
			return nil, errors.New("thread.hydrate requires codexThreadId")
		}
		b.bindForDispatch(action)
		resp, err := b.codex.ThreadRead(ctx, action.CodexThreadID)
		if err != nil {
			return nil, err
		}
		downstreamID, _ := b.lookup(action.CodexThreadID)
		count, err := b.hydrateThread(ctx, downstreamID, resp)
		if err != nil {
			return nil, err
		}
		return map[string]any{"state": "hydrated", "importedItemCount": count}, nil

	case "turn.start":
		if action.CodexThreadID == "" {
			return nil, errors.New("turn.start requires codexThreadId")
		}
		b.bindForDispatch(action)
		input, err := b.buildInput(action)
		if err != nil {
			return nil, err
		}
		if err := b.codex.TurnStart(ctx, codex.TurnStartOptions{
			ThreadID:        action.CodexThreadID,
			Input:           input,
			Model:           action.Model,
			ReasoningEffort: action.ReasoningEffort,
			ApprovalPolicy:  action.ApprovalPolicy,
			Sandbox:         action.Sandbox,
		}); err != nil {
			return nil, err
		}
		return map[string]any{"state": "started"}, nil

	case "model.list":
		models, err := b.codex.ListModels(ctx, codex.ListOptions{Limit: 50, MaxPages: 10})
		if err != nil {
			return nil, err
		}
		return map[string]any{"models": models}, nil

	case "turn.interrupt":
		if action.CodexThreadID == "" {
			return nil, errors.New("turn.interrupt requires codexThreadId")
		}
		if err := b.codex.TurnInterrupt(ctx, action.CodexThreadID); err != nil {
			return nil, err
		}
		return map[string]any{"state": "interrupted"}, nil
	}

	return nil, fmt.Errorf("unknown dispatch action %q", action.Type)
}

// bindForDispatch installs or refreshes the binding for a relay-initiated
// dispatch. The relay supplies the downstream id; the bridge never invents
// one for these, falling back to the codex: derivation only when the relay
// omitted it.
func (b *Bridge) bindForDispatch(action relay.DispatchAction) {
	downstreamID := action.ThreadID
	if downstreamID == "" {
		downstreamID = codexThreadPrefix + action.CodexThreadID
	}
	b.bind(action.CodexThreadID, downstreamID)
}

// buildInput assembles the turn input: trimmed prompt text first, then one
// item per materialized attachment.
func (b *Bridge) buildInput(action relay.DispatchAction) ([]codex.InputItem, error) {
	var input []codex.InputItem
	if text := strings.TrimSpace(action.Prompt); text != "" {
		input = append(input, codex.TextItem(text))
	}

	if len(action.Attachments) > 0 {
		base := action.Cwd
		if base == "" {
			base = os.TempDir()
		}
		files, err := materializeAttachments(base, action.RequestID, action.Attachments)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if f.Kind == "image" {
				input = append(input, codex.LocalImageItem(f.Path))
			} else {
				input = append(input, codex.MentionItem(f.Name, f.Path))
			}
		}
	}

	if len(input) == 0 {
		return nil, errEmptyInput
	}
	return input, nil
}
