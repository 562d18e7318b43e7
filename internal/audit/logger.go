// Package audit keeps a local, append-only trail of session transitions.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Actions recorded by the session manager.
const (
	ActionLogin      = "session.login"
	ActionLogout     = "session.logout"
	ActionForcedOut  = "session.forced_logout"
	ActionRestore    = "session.restore"
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomeDiscarded = "discarded"
)

// Event is one session transition. Every login, logout and forced logout
// starts a new Generation; a discarded login carries the generation it was
// started under.
type Event struct {
	At         time.Time `json:"at"`
	Generation uint64    `json:"generation"`
	Action     string    `json:"action"`
	Outcome    string    `json:"outcome"`
	UserID     string    `json:"user_id,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	Role       string    `json:"role,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// Logger appends one JSON object per line to a local file, opened on the
// first event. A nil Logger or one with an empty path records nothing.
type Logger struct {
	path    string
	nowFunc func() time.Time

	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

func NewLogger(path string) *Logger {
	return &Logger{path: path, nowFunc: time.Now}
}

func (l *Logger) Record(e Event) error {
	if l == nil || l.path == "" {
		return nil
	}
	if e.At.IsZero() {
		e.At = l.nowFunc()
	}
	e.At = e.At.UTC().Truncate(time.Second)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.enc == nil {
		if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
			return fmt.Errorf("mkdir audit log dir: %w", err)
		}
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open audit log file: %w", err)
		}
		l.file, l.enc = f, json.NewEncoder(f)
	}
	if err := l.enc.Encode(e); err != nil {
		return fmt.Errorf("write audit event %s: %w", e.Action, err)
	}
	return nil
}

// Close releases the file. A later Record reopens it.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file, l.enc = nil, nil
	if err != nil {
		return fmt.Errorf("close audit log file: %w", err)
	}
	return nil
}
