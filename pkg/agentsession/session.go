// Package agentsession implements the Agent Session Supervisor (spec
// §4.7): long autonomous worker runs with explicit iteration/deadline
// quotas, full side-effect accounting, and dual-sink output streaming.
//
// Grounded on pkg/subagent's RunningAgent/AgentOutput shape (state
// enum, thread-safe output accumulator, cleanup hook) generalized from
// a single completion buffer to the write/read/delete/shell side-effect
// sets spec §4.7 step 4 requires, and on pkg/tools/bash.go's
// truncation-notice convention for bounding stored call I/O.
package agentsession

import (
	"time"

	"github.com/google/uuid"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// ExitClass is the normalized exit-code classification (spec §4.7 step 6).
type ExitClass string

const (
	ExitSuccess        ExitClass = "success"
	ExitGenericFail    ExitClass = "generic_failure"
	ExitKilled         ExitClass = "killed"
	ExitAuth           ExitClass = "authentication"
	ExitFSDenied       ExitClass = "filesystem_denied"
	ExitSessionTooLong ExitClass = "session_too_long"
	ExitUnknown        ExitClass = "unknown"
)

// ClassifyExit maps a raw exit code to a normalized class (spec §4.7 step 6).
func ClassifyExit(code int) ExitClass {
	switch code {
	case 0:
		return ExitSuccess
	case 1:
		return ExitGenericFail
	case 137:
		return ExitKilled
	case 41:
		return ExitAuth
	case 44:
		return ExitFSDenied
	case 53:
		return ExitSessionTooLong
	default:
		return ExitUnknown
	}
}

// SideEffects accumulates the semantic effects a session's tool calls
// produced (spec §4.7 step 4).
type SideEffects struct {
	Created  []string
	Modified []string
	Read     []string
	Deleted  []string
	Shell    []ShellCall
}

// ShellCall records one shell invocation the session made.
type ShellCall struct {
	Command  string
	ExitCode int
	HasExit  bool
}

// ToolCall is one recorded tool invocation (truncated per the
// mid-truncation policy before storage).
type ToolCall struct {
	Name      string
	Input     string
	Output    string
	Iteration int
	At        time.Time
}

// Limits bounds a run (spec §4.7 step 3).
type Limits struct {
	MaxIterations int
	Deadline      time.Duration
}

// Session is a tracked autonomous run.
type Session struct {
	ID         string
	ExternalID string
	Task       string
	Status     Status
	ExitClass  ExitClass
	Error      string
	Result     string

	Limits    Limits
	StartedAt time.Time
	UpdatedAt time.Time

	Iteration    int
	InputTokens  int64
	OutputTokens int64

	Effects   SideEffects
	ToolCalls []ToolCall

	OutputFile string // on-disk full-artifact path (spec §4.7 step 5)
}

// NewSession allocates a fresh session in StatusRunning.
func NewSession(task string, limits Limits, now time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Task:      task,
		Status:    StatusRunning,
		Limits:    limits,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// touch bumps UpdatedAt. The Manager serializes all access to a
// Session via its own map-level mutex, so this needs no locking here.
func (s *Session) touch(now time.Time) {
	s.UpdatedAt = now
}
