package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/Complexia/durango-cli/internal/codex"
	"github.com/Complexia/durango-cli/internal/project"
	"github.com/Complexia/durango-cli/internal/relay"
)

const importedThreadTitle = "Imported Codex thread"

// bootstrap runs once after session.ready: push known projects to the
// relay, then discover existing agent threads and bind them to downstream
// ids.
func (b *Bridge) bootstrap(ctx context.Context) {
	registered := 0
	for _, p := range project.ForMachine(b.projects, b.cfg.MachineID) {
		if err := b.api.RegisterProject(ctx, p); err != nil {
			slog.Warn("project registration failed", "project", p.ID, "err", err)
			continue
		}
		registered++
	}
	fmt.Printf("registered %d projects with relay\n", registered)

	threads, err := b.codex.ListThreads(ctx, codex.ListOptions{Limit: 50, MaxPages: 10})
	if err != nil {
		slog.Warn("thread discovery failed, skipping import", "err", err)
		return
	}

	imported := 0
	for _, t := range threads {
		if t.ID == "" || t.Cwd == "" {
			continue
		}
		reg := project.MatchCwd(b.projects, t.Cwd)
		if reg == nil {
			continue
		}
		downstreamID := codexThreadPrefix + t.ID
		b.bind(t.ID, downstreamID)

		title := t.Title
		if title == "" {
			title = titleFromPreview(t.Preview)
		}
		msg := relay.ThreadUpsert{
			Type:      relay.TypeThreadUpsert,
			MachineID: b.cfg.MachineID,
			Thread: relay.ThreadRecord{
				ID:            downstreamID,
				ProjectID:     reg.ID,
				CodexThreadID: t.ID,
				Title:         title,
				Status:        "active",
				CreatedAt:     normalizeMillis(t.CreatedAt),
				UpdatedAt:     normalizeMillis(t.UpdatedAt),
			},
		}
		if err := b.link.Send(ctx, msg); err != nil {
			slog.Warn("thread.upsert send failed", "thread", t.ID, "err", err)
			continue
		}
		imported++
	}
	fmt.Printf("imported %d existing agent threads\n", imported)
}

// titleFromPreview derives a thread title from the first non-empty preview
// line, whitespace-collapsed and capped at 120 characters.
func titleFromPreview(preview string) string {
	for _, line := range strings.Split(preview, "\n") {
		collapsed := strings.Join(strings.Fields(line), " ")
		if collapsed == "" {
			continue
		}
		if len(collapsed) > 120 {
			collapsed = collapsed[:120]
		}
		return collapsed
	}
	return importedThreadTitle
}

// normalizeMillis coerces an upstream timestamp to integer milliseconds.
// Values that look like seconds are scaled exactly once; garbage becomes
// now.
func normalizeMillis(v float64) int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return time.Now().UnixMilli()
	}
	if v < 1e12 {
		return int64(math.Round(v * 1000))
	}
	return int64(math.Round(v))
}
