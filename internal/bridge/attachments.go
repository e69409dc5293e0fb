package bridge

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/Complexia/durango-cli/internal/relay"
)

const maxAttachmentNameLen = 120

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// materializedAttachment records where an attachment landed on disk.
type materializedAttachment struct {
	Kind string
	Name string // original name, for mention items
	Path string
}

// materializeAttachments writes each attachment under
// <base>/.durango/uploads/<requestID>/NN-<safeName>. NN is 1-indexed and
// zero-padded so on-disk order matches input order.
func materializeAttachments(baseDir, requestID string, atts []relay.Attachment) ([]materializedAttachment, error) {
	dir := filepath.Join(baseDir, ".durango", "uploads", requestID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	out := make([]materializedAttachment, 0, len(atts))
	for i, att := range atts {
		data, err := attachmentBytes(att)
		if err != nil {
			return nil, fmt.Errorf("attachment %q: %w", att.Name, err)
		}
		path := filepath.Join(dir, fmt.Sprintf("%02d-%s", i+1, safeName(att.Name)))
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("write attachment %q: %w", att.Name, err)
		}
		out = append(out, materializedAttachment{Kind: att.Kind, Name: att.Name, Path: path})
	}
	return out, nil
}

func attachmentBytes(att relay.Attachment) ([]byte, error) {
	if att.Data != "" {
		data, err := base64.StdEncoding.DecodeString(att.Data)
		if err != nil {
			return nil, fmt.Errorf("decode base64 data: %w", err)
		}
		return data, nil
	}
	return []byte(att.Content), nil
}

// safeName reduces an attachment name to a filesystem-safe basename.
func safeName(name string) string {
	name = filepath.Base(name)
	name = unsafeNameChars.ReplaceAllString(name, "_")
	if len(name) > maxAttachmentNameLen {
		name = name[:maxAttachmentNameLen]
	}
	if name == "" || name == "." || name == ".." {
		return "attachment"
	}
	return name
}
