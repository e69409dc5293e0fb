package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Complexia/durango-cli/internal/jsonrpc"
	"github.com/Complexia/durango-cli/internal/relay"
)

// forwardNotification normalizes one agent notification into zero or more
// relay messages. Methods are matched case-insensitively; events for
// unbound threads are dropped.
func (b *Bridge) forwardNotification(ctx context.Context, n jsonrpc.Notification) {
	var params map[string]any
	if len(n.Params) > 0 {
		if err := json.Unmarshal(n.Params, &params); err != nil {
			slog.Warn("unparseable notification params", "method", n.Method, "err", err)
			return
		}
	}

	method := strings.ToLower(strings.TrimSpace(n.Method))
	agentThreadID := notificationThreadID(params)
	downstreamID, bound := b.lookup(agentThreadID)

	// Thread metadata updates carry a title; everything else about them is
	// noise.
	if strings.HasPrefix(method, "thread/") &&
		(strings.Contains(method, "updated") || strings.Contains(method, "renamed") || strings.Contains(method, "title")) {
		if !bound {
			return
		}
		if title := strings.TrimSpace(notificationTitle(params)); title != "" {
			msg := relay.ThreadUpdate{
				Type:      relay.TypeThreadUpdate,
				MachineID: b.cfg.MachineID,
				ThreadID:  downstreamID,
				Title:     title,
			}
			if err := b.link.Send(ctx, msg); err != nil {
				slog.Warn("thread.update send failed", "err", err)
			}
		}
		return
	}

	if !bound {
		return
	}

	turnID := notificationTurnID(params)
	if turnID == "" {
		turnID = uuid.NewString()
	}

	switch {
	case method == "item/started":
		// Started items have no content yet; only command executions are
		// worth streaming early.
		for _, item := range mappedItems(params) {
			if item.Type == relay.ItemCommandExecution {
				b.emit(ctx, downstreamID, turnID, item)
			}
		}

	case method == "item/completed":
		for _, item := range mappedItems(params) {
			b.emit(ctx, downstreamID, turnID, item)
		}

	case method == "turn/completed":
		status := turnStatus(params)
		norm, ok := NormalizeStatus(status)
		if ok && norm == relay.StatusCompleted {
			return
		}
		terminal := map[string]any{"status": status}
		if ok {
			terminal["status"] = norm
		}
		if errMsg := notificationError(params); errMsg != "" {
			terminal["error"] = errMsg
		}
		b.emit(ctx, downstreamID, turnID, relay.Item{
			Type: relay.ItemPlan,
			Text: compactJSON(map[string]any{"method": "turn/completed", "params": terminal}),
		})

	case method == "thread/started", method == "turn/started",
		strings.Contains(method, "delta"), strings.Contains(method, "updated"):
		// Progress chatter; content arrives on completion.

	default:
		// Catch-all: surface unrecognized notifications instead of losing
		// them.
		b.emit(ctx, downstreamID, turnID, relay.Item{
			Type: relay.ItemPlan,
			Text: compactJSON(map[string]any{"method": n.Method, "params": params}),
		})
	}
}

// mappedItems translates the notification's item payload.
func mappedItems(params map[string]any) []relay.Item {
	raw, ok := params["item"].(map[string]any)
	if !ok {
		return nil
	}
	return MapItem(raw)
}

func notificationThreadID(params map[string]any) string {
	for _, key := range []string{"codexThreadId", "threadId", "thread_id"} {
		if s, ok := params[key].(string); ok && s != "" {
			return s
		}
	}
	if thread, ok := params["thread"].(map[string]any); ok {
		if s, ok := thread["id"].(string); ok {
			return s
		}
	}
	return ""
}

func notificationTurnID(params map[string]any) string {
	for _, key := range []string{"turnId", "turn_id"} {
		if s, ok := params[key].(string); ok && s != "" {
			return s
		}
	}
	if turn, ok := params["turn"].(map[string]any); ok {
		if s, ok := turn["id"].(string); ok {
			return s
		}
	}
	return ""
}

func notificationTitle(params map[string]any) string {
	if s, ok := params["title"].(string); ok && s != "" {
		return s
	}
	if thread, ok := params["thread"].(map[string]any); ok {
		if s, ok := thread["title"].(string); ok {
			return s
		}
	}
	return ""
}

func turnStatus(params map[string]any) string {
	if s, ok := params["status"].(string); ok && s != "" {
		return s
	}
	if turn, ok := params["turn"].(map[string]any); ok {
		if s, ok := turn["status"].(string); ok {
			return s
		}
	}
	return ""
}

func notificationError(params map[string]any) string {
	if v, ok := params["error"]; ok {
		if s := ExtractText(v); s != "" {
			return s
		}
		if m, ok := v.(map[string]any); ok {
			if s, ok := m["message"].(string); ok {
				return s
			}
		}
	}
	return ""
}
