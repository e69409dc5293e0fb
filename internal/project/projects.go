package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Registration describes one project directory known to the relay. The
// bridge consumes registrations; it never writes them.
type Registration struct {
	ID           string `yaml:"id" json:"id"`
	MachineID    string `yaml:"machine_id" json:"machineId"`
	Path         string `yaml:"path" json:"absolutePath"`
	Name         string `yaml:"name" json:"name"`
	GitBranch    string `yaml:"git_branch,omitempty" json:"gitBranch,omitempty"`
	GitRemoteURL string `yaml:"git_remote_url,omitempty" json:"gitRemoteUrl,omitempty"`
}

// Load reads the project manifest. A missing manifest is not an error; the
// machine simply has no registered projects yet.
func Load(path string) ([]Registration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read project manifest: %w", err)
	}
	var manifest struct {
		Projects []Registration `yaml:"projects"`
	}
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse project manifest: %w", err)
	}
	return manifest.Projects, nil
}

// ForMachine filters registrations down to the given machine id. Entries
// with no machine id are treated as local.
func ForMachine(regs []Registration, machineID string) []Registration {
	var out []Registration
	for _, r := range regs {
		if r.MachineID == "" || r.MachineID == machineID {
			out = append(out, r)
		}
	}
	return out
}

// MatchCwd returns the registration whose path is the longest prefix of cwd,
// or nil if no project contains it. A path matches when it equals cwd or is
// a parent followed by the OS path separator.
func MatchCwd(regs []Registration, cwd string) *Registration {
	norm := normalizePath(cwd)
	var best *Registration
	bestLen := -1
	for i := range regs {
		p := normalizePath(regs[i].Path)
		if p == "" {
			continue
		}
		if norm == p || strings.HasPrefix(norm, p+string(os.PathSeparator)) {
			if len(p) > bestLen {
				best = &regs[i]
				bestLen = len(p)
			}
		}
	}
	return best
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return filepath.Clean(abs)
}
