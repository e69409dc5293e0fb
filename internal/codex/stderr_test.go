package codex

import "testing"

func TestFilterStderrLine(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		benign bool
	}{
		{"plain benign", "WARN skipping stale rollout file abc123", true},
		{"ansi colored", "\x1b[33mWARN\x1b[0m  Skipping  Stale  Rollout", true},
		{"remove variant", "failed to remove stale rollout: permission denied", true},
		{"real error", "panic: something broke", false},
		{"empty", "", false},
		{"chunked whitespace", "  stale\trollout   file \t left behind ", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, benign := filterStderrLine(tt.line)
			if benign != tt.benign {
				t.Errorf("filterStderrLine(%q) benign = %v, want %v", tt.line, benign, tt.benign)
			}
		})
	}
}

func TestFilterStderrLineNormalizes(t *testing.T) {
	normalized, _ := filterStderrLine("\x1b[31m error:\x1b[0m   disk \t full ")
	if normalized != "error: disk full" {
		t.Errorf("normalized = %q", normalized)
	}
}
