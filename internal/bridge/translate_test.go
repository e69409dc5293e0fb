package bridge

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/Complexia/durango-cli/internal/relay"
)

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"string", "hello", "hello"},
		{"array joins", []any{"a", "", "b"}, "a\nb"},
		{"object text", map[string]any{"text": "hi"}, "hi"},
		{"object value", map[string]any{"value": "v"}, "v"},
		{"object delta", map[string]any{"delta": "d"}, "d"},
		{"object summaryText", map[string]any{"summaryText": "s"}, "s"},
		{"recurse content", map[string]any{"content": []any{map[string]any{"text": "inner"}}}, "inner"},
		{"recurse summary", map[string]any{"summary": []any{"one", "two"}}, "one\ntwo"},
		{"recurse output", map[string]any{"output": map[string]any{"text": "out"}}, "out"},
		{"number", 42.0, ""},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractText(tt.in); got != tt.want {
				t.Errorf("ExtractText(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"in_progress", relay.StatusRunning, true},
		{"inprogress", relay.StatusRunning, true},
		{"RUNNING", relay.StatusRunning, true},
		{"queued", relay.StatusRunning, true},
		{"completed", relay.StatusCompleted, true},
		{"complete", relay.StatusCompleted, true},
		{"success", relay.StatusCompleted, true},
		{"succeeded", relay.StatusCompleted, true},
		{"cancelled", relay.StatusInterrupted, true},
		{"canceled", relay.StatusInterrupted, true},
		{"aborted", relay.StatusInterrupted, true},
		{"interrupted", relay.StatusInterrupted, true},
		{"failed", relay.StatusFailed, true},
		{"error", relay.StatusFailed, true},
		{"errored", relay.StatusFailed, true},
		{"wedged", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeStatus(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NormalizeStatus(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestMapItemVariants(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		want []relay.Item
	}{
		{
			"user message from content",
			map[string]any{"type": "userMessage", "content": "fix the bug"},
			[]relay.Item{{Type: relay.ItemUserMessage, Text: "fix the bug"}},
		},
		{
			"snake case user message",
			map[string]any{"type": "user_message", "text": "hello"},
			[]relay.Item{{Type: relay.ItemUserMessage, Text: "hello"}},
		},
		{
			"empty user message dropped",
			map[string]any{"type": "userMessage", "text": "   "},
			nil,
		},
		{
			"agent message",
			map[string]any{"type": "agentMessage", "text": "done"},
			[]relay.Item{{Type: relay.ItemAgentMessage, Text: "done"}},
		},
		{
			"assistant message variant",
			map[string]any{"type": "assistant_message", "text": "ok"},
			[]relay.Item{{Type: relay.ItemAgentMessage, Text: "ok"}},
		},
		{
			"reasoning from summary",
			map[string]any{"type": "reasoning", "summary": []any{"first", " second "}},
			[]relay.Item{{Type: relay.ItemReasoning, Summary: []string{"first", "second"}}},
		},
		{
			"reasoning falls back to content",
			map[string]any{"type": "reasoning", "content": "thinking hard"},
			[]relay.Item{{Type: relay.ItemReasoning, Summary: []string{"thinking hard"}}},
		},
		{
			"reasoning with no lines dropped",
			map[string]any{"type": "reasoning", "summary": []any{"", "  "}},
			nil,
		},
		{
			"command execution",
			map[string]any{
				"type": "commandExecution", "command": "go test ./...",
				"cwd": "/repo", "status": "success", "output": "ok", "exitCode": 0.0,
			},
			[]relay.Item{{
				Type: relay.ItemCommandExecution, Command: "go test ./...",
				Cwd: "/repo", Status: relay.StatusCompleted, Output: "ok", ExitCode: intPtr(0),
			}},
		},
		{
			"command with argv array",
			map[string]any{"type": "command_execution", "command": []any{"git", "status"}, "status": "running"},
			[]relay.Item{{Type: relay.ItemCommandExecution, Command: "git status", Status: relay.StatusRunning}},
		},
		{
			"command with unknown status falls to failed",
			map[string]any{"type": "commandExecution", "command": "ls", "status": "wedged"},
			[]relay.Item{{Type: relay.ItemCommandExecution, Command: "ls", Status: relay.StatusFailed}},
		},
		{
			"command without command dropped",
			map[string]any{"type": "commandExecution", "status": "running"},
			nil,
		},
		{
			"file change fans out per element",
			map[string]any{"type": "fileChange", "changes": []any{
				map[string]any{"path": "a.go", "patch": "+x"},
				map[string]any{"path": "b.go", "diff": "-y"},
				map[string]any{"patch": "orphan"},
			}},
			[]relay.Item{
				{Type: relay.ItemFileChange, Path: "a.go", Patch: "+x"},
				{Type: relay.ItemFileChange, Path: "b.go", Patch: "-y"},
			},
		},
		{
			"file change default patch text",
			map[string]any{"type": "file_change", "changes": []any{map[string]any{"path": "c.go"}}},
			[]relay.Item{{Type: relay.ItemFileChange, Path: "c.go", Patch: "(no patch text)"}},
		},
		{
			"plan",
			map[string]any{"type": "plan", "text": "1. do the thing"},
			[]relay.Item{{Type: relay.ItemPlan, Text: "1. do the thing"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapItem(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MapItem = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMapItemUnknownTypePreservedAsPlan(t *testing.T) {
	raw := map[string]any{"type": "webSearch", "query": "golang websockets"}
	got := MapItem(raw)
	if len(got) != 1 || got[0].Type != relay.ItemPlan {
		t.Fatalf("MapItem = %+v, want one plan item", got)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(got[0].Text), &decoded); err != nil {
		t.Fatalf("plan text is not JSON: %v", err)
	}
	if !reflect.DeepEqual(decoded, raw) {
		t.Errorf("plan text = %v, want lossless %v", decoded, raw)
	}
}

func TestMapItemStable(t *testing.T) {
	raw := map[string]any{"type": "agentMessage", "text": "stable output"}
	first := MapItem(raw)
	for i := 0; i < 5; i++ {
		if got := MapItem(raw); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d: MapItem = %+v, want %+v", i, got, first)
		}
	}
}

func intPtr(n int) *int {
	return &n
}
