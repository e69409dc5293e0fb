package relay

// Item type tags. The downstream schema is frozen: six variants, each
// carrying id, turnId and timestamp.
const (
	ItemUserMessage      = "userMessage"
	ItemAgentMessage     = "agentMessage"
	ItemReasoning        = "reasoning"
	ItemCommandExecution = "commandExecution"
	ItemFileChange       = "fileChange"
	ItemPlan             = "plan"
)

// Command and turn lifecycle statuses after normalization.
const (
	StatusRunning     = "running"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
	StatusInterrupted = "interrupted"
)

// Item is one normalized event within a turn. Type selects the variant;
// unused fields stay empty and are omitted on the wire.
type Item struct {
	ID        string `json:"id"`
	TurnID    string `json:"turnId"`
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"`

	// userMessage, agentMessage, plan
	Text string `json:"text,omitempty"`

	// reasoning
	Summary []string `json:"summary,omitempty"`

	// commandExecution
	Command  string `json:"command,omitempty"`
	Cwd      string `json:"cwd,omitempty"`
	Status   string `json:"status,omitempty"`
	Output   string `json:"output,omitempty"`
	ExitCode *int   `json:"exitCode,omitempty"`

	// fileChange
	Path  string `json:"path,omitempty"`
	Patch string `json:"patch,omitempty"`
}
