package bridge

import (
	"encoding/json"
	"strings"

	"github.com/Complexia/durango-cli/internal/relay"
)

// ExtractText pulls human-readable text out of the loosely-typed shapes the
// agent uses. Strings pass through; arrays newline-join their non-empty
// extractions; objects try the well-known text keys before recursing into
// their container keys.
func ExtractText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		var parts []string
		for _, e := range t {
			if s := ExtractText(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	case map[string]any:
		for _, key := range []string{"text", "value", "delta", "summaryText"} {
			if raw, ok := t[key]; ok {
				if s := ExtractText(raw); s != "" {
					return s
				}
			}
		}
		for _, key := range []string{"content", "summary", "output"} {
			if raw, ok := t[key]; ok {
				if s := ExtractText(raw); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

// NormalizeStatus folds the agent's free-form status strings into the four
// downstream states. ok is false for unrecognized values; the caller decides
// the fallback (failed for commands; turns surface the raw string).
func NormalizeStatus(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "in_progress", "inprogress", "running", "queued":
		return relay.StatusRunning, true
	case "completed", "complete", "success", "succeeded":
		return relay.StatusCompleted, true
	case "cancelled", "canceled", "aborted", "interrupted":
		return relay.StatusInterrupted, true
	case "failed", "error", "errored":
		return relay.StatusFailed, true
	}
	return "", false
}

func normalizeCommandStatus(s string) string {
	if norm, ok := NormalizeStatus(s); ok {
		return norm
	}
	return relay.StatusFailed
}

// summaryLines flattens a reasoning summary into trimmed non-empty lines.
func summaryLines(v any) []string {
	var lines []string
	for _, line := range strings.Split(ExtractText(v), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}

func stringField(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := raw[key]; ok {
			if s := ExtractText(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// commandString renders the command field, tolerating argv arrays.
func commandString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		var parts []string
		for _, e := range t {
			if s, ok := e.(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	}
	return ExtractText(v)
}

func intField(raw map[string]any, keys ...string) *int {
	for _, key := range keys {
		if v, ok := raw[key]; ok {
			if f, ok := v.(float64); ok {
				n := int(f)
				return &n
			}
		}
	}
	return nil
}

// compactJSON renders v as one JSON line, for plan-fallback payloads.
func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// MapItem translates one agent item into zero or more downstream items.
// Only the variant fields are filled; the caller stamps id, turnId and
// timestamp. Unknown types come back as a single plan item carrying the raw
// JSON so nothing is silently lost.
func MapItem(raw map[string]any) []relay.Item {
	itemType, _ := raw["type"].(string)
	switch strings.ToLower(strings.TrimSpace(itemType)) {
	case "usermessage", "user_message":
		text := strings.TrimSpace(stringField(raw, "content", "text"))
		if text == "" {
			return nil
		}
		return []relay.Item{{Type: relay.ItemUserMessage, Text: text}}

	case "agentmessage", "agent_message", "assistantmessage", "assistant_message":
		text := strings.TrimSpace(stringField(raw, "text", "content"))
		if text == "" {
			return nil
		}
		return []relay.Item{{Type: relay.ItemAgentMessage, Text: text}}

	case "reasoning":
		source, ok := raw["summary"]
		if !ok || ExtractText(source) == "" {
			source = raw["content"]
		}
		lines := summaryLines(source)
		if len(lines) == 0 {
			return nil
		}
		return []relay.Item{{Type: relay.ItemReasoning, Summary: lines}}

	case "commandexecution", "command_execution":
		command := strings.TrimSpace(commandString(raw["command"]))
		if command == "" {
			return nil
		}
		status, _ := raw["status"].(string)
		item := relay.Item{
			Type:     relay.ItemCommandExecution,
			Command:  command,
			Cwd:      stringField(raw, "cwd"),
			Status:   normalizeCommandStatus(status),
			Output:   stringField(raw, "output", "aggregatedOutput"),
			ExitCode: intField(raw, "exitCode", "exit_code"),
		}
		return []relay.Item{item}

	case "filechange", "file_change":
		changes, _ := raw["changes"].([]any)
		var items []relay.Item
		for _, c := range changes {
			change, ok := c.(map[string]any)
			if !ok {
				continue
			}
			path := strings.TrimSpace(stringField(change, "path"))
			if path == "" {
				continue
			}
			patch := stringField(change, "patch", "diff")
			if patch == "" {
				patch = "(no patch text)"
			}
			items = append(items, relay.Item{Type: relay.ItemFileChange, Path: path, Patch: patch})
		}
		return items

	case "plan":
		text := strings.TrimSpace(stringField(raw, "text", "content"))
		if text == "" {
			return nil
		}
		return []relay.Item{{Type: relay.ItemPlan, Text: text}}
	}

	return []relay.Item{{Type: relay.ItemPlan, Text: compactJSON(raw)}}
}
