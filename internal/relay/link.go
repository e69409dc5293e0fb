package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// ErrSessionRejected is returned when the relay answers the hello with an
// unrecoverable session.error.
var ErrSessionRejected = errors.New("relay rejected session")

const (
	linkWriteTimeout         = 10 * time.Second
	defaultHeartbeatInterval = 30 * time.Second
)

// Link is the outbound WebSocket session to the relay. One Link serves one
// process lifetime: on disconnect it returns and the process exits rather
// than reconnecting.
type Link struct {
	URL     string // relay base URL, e.g. "wss://relay.durango.dev"
	Token   string
	Machine MachineInfo

	OnReady    func(ctx context.Context, ready SessionReady)
	OnDispatch func(ctx context.Context, action DispatchAction)

	conn *websocket.Conn
	mu   sync.Mutex
}

// wsEndpoint converts the relay base URL into the /ws WebSocket endpoint.
func wsEndpoint(base string) string {
	u := strings.TrimRight(base, "/")
	u = strings.Replace(u, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return u + "/ws"
}

// Run dials the relay and processes frames until the socket closes or ctx is
// cancelled. machine.hello is the first client frame; heartbeats begin only
// after session.ready.
func (l *Link) Run(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, wsEndpoint(l.URL), nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	conn.SetReadLimit(4 * 1024 * 1024)
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	defer conn.CloseNow()

	hello := Hello{Type: TypeMachineHello, Token: l.Token, Machine: l.Machine}
	if err := l.Send(ctx, hello); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}

	hbCtx, hbCancel := context.WithCancel(ctx)
	defer hbCancel()
	heartbeatStarted := false

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("relay read: %w", err)
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Warn("dropping malformed relay frame", "err", err)
			continue
		}

		switch env.Type {
		case TypeSessionReady:
			var ready SessionReady
			if err := json.Unmarshal(data, &ready); err != nil {
				slog.Warn("bad session.ready", "err", err)
				continue
			}
			if !heartbeatStarted {
				heartbeatStarted = true
				interval := time.Duration(ready.HeartbeatIntervalMs) * time.Millisecond
				if interval <= 0 {
					interval = defaultHeartbeatInterval
				}
				go l.heartbeatLoop(hbCtx, interval)
			}
			if l.OnReady != nil {
				go l.OnReady(ctx, ready)
			}

		case TypeSessionError:
			var msg SessionError
			if err := json.Unmarshal(data, &msg); err != nil {
				slog.Warn("bad session.error", "err", err)
				continue
			}
			if !msg.Recoverable {
				return fmt.Errorf("%w: %s: %s", ErrSessionRejected, msg.Error.Code, msg.Error.Message)
			}
			slog.Warn("relay session error", "code", msg.Error.Code, "message", msg.Error.Message)

		case TypeDispatchRequest:
			var req DispatchRequest
			if err := json.Unmarshal(data, &req); err != nil {
				slog.Warn("bad dispatch.request", "err", err)
				continue
			}
			if l.OnDispatch != nil {
				go l.OnDispatch(ctx, req.Action)
			}

		default:
			// Unknown server messages are ignored; the relay versions ahead
			// of deployed bridges.
		}
	}
}

func (l *Link) heartbeatLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb := Heartbeat{
				Type:      TypeMachineHeartbeat,
				MachineID: l.Machine.MachineID,
				Timestamp: time.Now().UnixMilli(),
			}
			if err := l.Send(ctx, hb); err != nil {
				return
			}
		}
	}
}

// Send marshals v and writes it as one text frame.
func (l *Link) Send(ctx context.Context, v any) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("relay link not connected")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, linkWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
