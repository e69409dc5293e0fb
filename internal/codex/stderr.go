package codex

import (
	"regexp"
	"strings"
)

// The agent logs a few harmless warnings about stale rollout files on every
// start. They arrive ANSI-colored and arbitrarily chunked, so lines are
// normalized before matching.
var benignStderr = []string{
	"skipping stale rollout",
	"stale rollout file",
	"failed to remove stale rollout",
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// filterStderrLine normalizes one stderr line and reports whether it is a
// known-benign warning. The normalized line is returned for logging.
func filterStderrLine(line string) (normalized string, benign bool) {
	normalized = strings.Join(strings.Fields(ansiEscape.ReplaceAllString(line, "")), " ")
	lower := strings.ToLower(normalized)
	for _, s := range benignStderr {
		if strings.Contains(lower, s) {
			return normalized, true
		}
	}
	return normalized, false
}
