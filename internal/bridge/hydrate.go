package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Complexia/durango-cli/internal/relay"
)

// maxHydrationNodes bounds the shape-discovery walk. thread/read responses
// are shallow; this is purely a runaway guard.
const maxHydrationNodes = 10000

// hydratedTurn is one turn recovered from a thread/read response. raw is
// nil when the entry had to be wrapped.
type hydratedTurn struct {
	id    string
	raw   map[string]any
	items []any
}

// findTurns walks the response breadth-first until it finds turn records.
// The upstream answers in at least three shapes: a turns array, a paginated
// turnsPage.data / turns_page.data, or a bare node carrying items.
func findTurns(root any) []hydratedTurn {
	queue := []any{root}
	visited := 0
	for len(queue) > 0 && visited < maxHydrationNodes {
		node := queue[0]
		queue = queue[1:]
		visited++

		m, ok := node.(map[string]any)
		if !ok {
			continue
		}

		if turns, ok := m["turns"].([]any); ok {
			return normalizeTurns(turns)
		}
		for _, key := range []string{"turnsPage", "turns_page"} {
			if page, ok := m[key].(map[string]any); ok {
				if data, ok := page["data"].([]any); ok {
					return normalizeTurns(data)
				}
			}
		}
		if items := turnItems(m); len(items) > 0 {
			id, _ := m["id"].(string)
			if id == "" {
				id = uuid.NewString()
			}
			return []hydratedTurn{{id: id, raw: m, items: items}}
		}

		for _, key := range []string{"thread", "result", "payload", "response"} {
			if child, ok := m[key]; ok {
				queue = append(queue, child)
			}
		}
		if data, ok := m["data"]; ok {
			if _, isArray := data.([]any); !isArray {
				queue = append(queue, data)
			}
		}
	}
	return nil
}

// normalizeTurns wraps non-object entries so every turn has an id and an
// item list.
func normalizeTurns(entries []any) []hydratedTurn {
	turns := make([]hydratedTurn, 0, len(entries))
	for _, entry := range entries {
		m, ok := entry.(map[string]any)
		if !ok {
			turns = append(turns, hydratedTurn{id: uuid.NewString(), items: []any{entry}})
			continue
		}
		id, _ := m["id"].(string)
		if id == "" {
			id = uuid.NewString()
		}
		turns = append(turns, hydratedTurn{id: id, raw: m, items: turnItems(m)})
	}
	return turns
}

// turnItems finds the turn's item list: the first non-empty array among the
// known container keys, else a wrapped singular item/message.
func turnItems(turn map[string]any) []any {
	for _, key := range []string{"items", "events", "messages", "output", "content"} {
		if arr, ok := turn[key].([]any); ok && len(arr) > 0 {
			return arr
		}
	}
	for _, key := range []string{"item", "message"} {
		if v, ok := turn[key]; ok && v != nil {
			return []any{v}
		}
	}
	return nil
}

// inferTurnStatus decides the synthetic lifecycle terminator for a turn the
// upstream left open-ended. The returned status may be a raw unrecognized
// string; emit is false when no terminator should be produced.
func inferTurnStatus(turn hydratedTurn, hasRunning bool, imported bool) (status string, emit bool) {
	if turn.raw != nil {
		candidates := []any{turn.raw["status"]}
		for _, key := range []string{"result", "turn", "metadata"} {
			if m, ok := turn.raw[key].(map[string]any); ok {
				candidates = append(candidates, m["status"])
			}
		}
		for _, c := range candidates {
			s, ok := c.(string)
			if !ok || s == "" {
				continue
			}
			if norm, ok := NormalizeStatus(s); ok {
				if norm == relay.StatusRunning {
					return "", false
				}
				return norm, true
			}
			// Unknown status strings are surfaced raw rather than guessed
			// into one of the four states.
			return s, true
		}
	}
	if hasRunning {
		return "", false
	}
	if imported {
		return relay.StatusCompleted, true
	}
	return "", false
}

// hydrateThread replays a thread/read response as event.upsert messages.
// Timestamps are strictly monotonic across the pass so playback order is
// preserved. Returns the number of imported items, terminators included.
func (b *Bridge) hydrateThread(ctx context.Context, downstreamThreadID string, resp json.RawMessage) (int, error) {
	var root any
	if err := json.Unmarshal(resp, &root); err != nil {
		return 0, fmt.Errorf("decode thread/read response: %w", err)
	}

	turns := findTurns(root)
	backdate := len(turns) * 100
	if backdate < 1 {
		backdate = 1
	}
	ts := time.Now().UnixMilli() - int64(backdate)

	imported := 0
	for _, turn := range turns {
		hasRunning := false
		turnImported := 0
		for _, rawEntry := range turn.items {
			var items []relay.Item
			if m, ok := rawEntry.(map[string]any); ok {
				items = MapItem(m)
			}
			if len(items) == 0 {
				// Never drop content on the floor: unmappable entries
				// become plan items carrying the raw payload.
				text := compactJSON(rawEntry)
				if text == "" || text == "null" {
					text = ExtractText(rawEntry)
				}
				items = []relay.Item{{Type: relay.ItemPlan, Text: text}}
			}
			for _, item := range items {
				item.Timestamp = ts
				ts++
				if item.Type == relay.ItemCommandExecution && item.Status == relay.StatusRunning {
					hasRunning = true
				}
				b.emit(ctx, downstreamThreadID, turn.id, item)
				turnImported++
			}
		}
		imported += turnImported

		if status, emit := inferTurnStatus(turn, hasRunning, turnImported > 0); emit {
			terminator := relay.Item{
				Type:      relay.ItemPlan,
				Text:      compactJSON(map[string]any{"method": "turn/completed", "params": map[string]any{"status": status}}),
				Timestamp: ts,
			}
			ts++
			b.emit(ctx, downstreamThreadID, turn.id, terminator)
			imported++
		}
	}
	return imported, nil
}
