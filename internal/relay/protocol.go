package relay

import "encoding/json"

// Message types for the relay WebSocket protocol.
const (
	// Bridge → Relay
	TypeMachineHello     = "machine.hello"
	TypeMachineHeartbeat = "machine.heartbeat"
	TypeDispatchAck      = "dispatch.ack"
	TypeEventUpsert      = "event.upsert"
	TypeThreadUpdate     = "thread.update"
	TypeThreadUpsert     = "thread.upsert"

	// Relay → Bridge
	TypeSessionReady    = "session.ready"
	TypeSessionError    = "session.error"
	TypeDispatchRequest = "dispatch.request"
)

// Dispatch ack states, emitted in strict order per request.
const (
	AckAccepted  = "accepted"
	AckRunning   = "running"
	AckCompleted = "completed"
	AckFailed    = "failed"
)

// Relay error codes.
const (
	CodeMachineOffline       = "MACHINE_OFFLINE"
	CodeCodexUnauthenticated = "CODEX_UNAUTHENTICATED"
	CodeProjectNotFound      = "PROJECT_NOT_FOUND"
	CodeDispatchTimeout      = "DISPATCH_TIMEOUT"
	CodeAppServerError       = "APP_SERVER_ERROR"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeValidationError      = "VALIDATION_ERROR"
)

// Envelope wraps every WebSocket message with a type field for routing.
type Envelope struct {
	Type string `json:"type"`
}

// MachineInfo describes this machine in the hello handshake.
type MachineInfo struct {
	MachineID    string `json:"machineId"`
	UserID       string `json:"userId"`
	Hostname     string `json:"hostname"`
	Platform     string `json:"platform"`
	Arch         string `json:"arch"`
	OSVersion    string `json:"osVersion,omitempty"`
	CLIVersion   string `json:"cliVersion"`
	CodexVersion string `json:"codexVersion,omitempty"`
}

// Hello is the first frame the bridge sends after the socket opens.
type Hello struct {
	Type    string      `json:"type"`
	Token   string      `json:"token"`
	Machine MachineInfo `json:"machine"`
}

// Heartbeat is sent at the relay-specified interval after session.ready.
type Heartbeat struct {
	Type      string `json:"type"`
	MachineID string `json:"machineId"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorEnvelope carries a relay error code and message.
type ErrorEnvelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

// DispatchAck reports dispatch progress back to the relay.
type DispatchAck struct {
	Type      string         `json:"type"`
	RequestID string         `json:"requestId"`
	MachineID string         `json:"machineId"`
	Status    string         `json:"status"`
	Error     *ErrorEnvelope `json:"error,omitempty"`
	Payload   any            `json:"payload,omitempty"`
}

// EventUpsert streams one normalized item to the relay.
type EventUpsert struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	MachineID string `json:"machineId"`
	ThreadID  string `json:"threadId"`
	RunID     string `json:"runId,omitempty"`
	Item      Item   `json:"item"`
}

// ThreadUpdate renames a downstream thread.
type ThreadUpdate struct {
	Type      string `json:"type"`
	MachineID string `json:"machineId"`
	ThreadID  string `json:"threadId"`
	Title     string `json:"title"`
}

// ThreadRecord is the relay's view of a discovered thread.
type ThreadRecord struct {
	ID            string `json:"id"`
	ProjectID     string `json:"projectId"`
	CodexThreadID string `json:"codexThreadId"`
	Title         string `json:"title"`
	Status        string `json:"status"`
	CreatedAt     int64  `json:"createdAt"`
	UpdatedAt     int64  `json:"updatedAt"`
}

// ThreadUpsert announces a discovered agent thread during bootstrap.
type ThreadUpsert struct {
	Type      string       `json:"type"`
	MachineID string       `json:"machineId"`
	Thread    ThreadRecord `json:"thread"`
}

// SessionReady is the relay's acceptance of the hello handshake.
type SessionReady struct {
	Type                string `json:"type"`
	MachineID           string `json:"machineId"`
	UserID              string `json:"userId"`
	HeartbeatIntervalMs int    `json:"heartbeatIntervalMs"`
}

// SessionError reports a relay-side failure. Unrecoverable errors end the
// process.
type SessionError struct {
	Type        string        `json:"type"`
	Error       ErrorEnvelope `json:"error"`
	Recoverable bool          `json:"recoverable"`
}

// Attachment is one file carried by a dispatch. Data is base64; Content is
// plain text. Whichever is present gets materialized to disk.
type Attachment struct {
	Kind    string `json:"kind"` // "image" or "file"
	Name    string `json:"name"`
	Data    string `json:"data,omitempty"`
	Content string `json:"content,omitempty"`
}

// DispatchAction is the payload of a dispatch.request. Type selects the
// action; the remaining fields apply per §action.
type DispatchAction struct {
	Type      string `json:"type"` // thread.start | thread.hydrate | turn.start | model.list | turn.interrupt
	RequestID string `json:"requestId"`

	ThreadID      string `json:"threadId,omitempty"`      // relay-assigned downstream thread id
	CodexThreadID string `json:"codexThreadId,omitempty"` // agent thread id

	Cwd             string       `json:"cwd,omitempty"`
	Prompt          string       `json:"prompt,omitempty"`
	Model           string       `json:"model,omitempty"`
	ReasoningEffort string       `json:"reasoningEffort,omitempty"`
	ApprovalPolicy  string       `json:"approvalPolicy,omitempty"`
	Sandbox         string       `json:"sandbox,omitempty"`
	Attachments     []Attachment `json:"attachments,omitempty"`
}

// DispatchRequest wraps a relay-originated command.
type DispatchRequest struct {
	Type   string         `json:"type"`
	Action DispatchAction `json:"action"`
}
