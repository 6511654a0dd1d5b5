package agentsession

import (
	"sync"
	"time"

	"github.com/relaywork/modelbroker/pkg/orcherr"
	"golang.org/x/time/rate"
)

const (
	defaultIdleWindow       = 2 * time.Hour
	defaultFullOutputMaxAge = 30 * 24 * time.Hour
	defaultSweepInterval    = 24 * time.Hour
)

// Manager tracks running and finished agent sessions (spec §4.7's
// create/get/.../cleanup operation set).
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	agentModeEnabled bool
	idleWindow       time.Duration
	fullOutputMaxAge time.Duration
	sweepInterval    time.Duration
	pruneLimiter     *rate.Limiter

	now func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithAgentModeEnabled toggles the safety gate (spec §4.7 "Safety
// gate"). Defaults to false — agent mode must be explicitly enabled by
// operator configuration.
func WithAgentModeEnabled(enabled bool) Option {
	return func(m *Manager) { m.agentModeEnabled = enabled }
}

// WithIdleWindow overrides how long a finished session survives before
// Cleanup drops it.
func WithIdleWindow(d time.Duration) Option {
	return func(m *Manager) { m.idleWindow = d }
}

// WithFullOutputMaxAge overrides the on-disk artifact retention window.
func WithFullOutputMaxAge(d time.Duration) Option {
	return func(m *Manager) { m.fullOutputMaxAge = d }
}

// WithSweepInterval overrides the minimum gap between prune sweeps.
func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) { m.sweepInterval = d }
}

// WithNow overrides the clock, for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager builds a Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions:         make(map[string]*Session),
		idleWindow:       defaultIdleWindow,
		fullOutputMaxAge: defaultFullOutputMaxAge,
		sweepInterval:    defaultSweepInterval,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.pruneLimiter = rate.NewLimiter(rate.Every(m.sweepInterval), 1)
	return m
}

// Create allocates a new session, failing fast if agent mode is
// disabled (spec §4.7 "Safety gate").
func (m *Manager) Create(task string, limits Limits) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.agentModeEnabled {
		return nil, orcherr.New(orcherr.KindValidation, "agentsession.Create",
			"agent mode is disabled; set agentMode=true in configuration to allow autonomous worker sessions")
	}

	s := NewSession(task, limits, m.now())
	m.sessions[s.ID] = s
	return s, nil
}

// Get returns a session by local ID.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) lookup(op, id string) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, orcherr.New(orcherr.KindSession, op, "session not found: "+id)
	}
	return s, nil
}

// SetExternalID records the worker's own session id, captured once a
// `session` event streams in, so a later resume can rejoin it.
func (m *Manager) SetExternalID(id, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookup("agentsession.SetExternalID", id)
	if err != nil {
		return err
	}
	s.ExternalID = externalID
	s.touch(m.now())
	return nil
}

// SetStatus transitions a session's lifecycle state.
func (m *Manager) SetStatus(id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookup("agentsession.SetStatus", id)
	if err != nil {
		return err
	}
	s.Status = status
	s.touch(m.now())
	return nil
}

// SetResult records a successful terminal outcome.
func (m *Manager) SetResult(id, result string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookup("agentsession.SetResult", id)
	if err != nil {
		return err
	}
	s.Result = result
	s.Status = StatusCompleted
	s.touch(m.now())
	return nil
}

// SetError records a failed terminal outcome.
func (m *Manager) SetError(id string, exitClass ExitClass, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookup("agentsession.SetError", id)
	if err != nil {
		return err
	}
	s.Error = message
	s.ExitClass = exitClass
	s.Status = StatusFailed
	s.touch(m.now())
	return nil
}

// UpdateTokens accrues token usage for a session.
func (m *Manager) UpdateTokens(id string, input, output int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookup("agentsession.UpdateTokens", id)
	if err != nil {
		return err
	}
	s.InputTokens += input
	s.OutputTokens += output
	s.touch(m.now())
	return nil
}

// RecordToolCall stores a truncated call record, advances the
// iteration counter, and classifies its side effect (spec §4.7 steps
// 3-4). It does not itself enforce limits — call CheckLimits first.
func (m *Manager) RecordToolCall(id string, call ToolCall, rawInput []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookup("agentsession.RecordToolCall", id)
	if err != nil {
		return err
	}

	s.Iteration++
	call.Iteration = s.Iteration
	call.Input = truncateMid(call.Input)
	call.Output = truncateMid(call.Output)
	s.ToolCalls = append(s.ToolCalls, call)
	s.Effects.applyToolUse(call.Name, rawInput)
	s.touch(m.now())
	return nil
}

// RecordShellExit attaches an exit code to a previously-recorded shell
// call once its tool_result confirms it.
func (m *Manager) RecordShellExit(id, command string, exitCode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookup("agentsession.RecordShellExit", id)
	if err != nil {
		return err
	}
	s.Effects.recordShellExit(command, exitCode)
	s.touch(m.now())
	return nil
}

// CheckLimits evaluates the iteration and deadline quotas (spec §4.7
// step 3). A non-nil error carries KindLimitExceeded.
func (m *Manager) CheckLimits(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookup("agentsession.CheckLimits", id)
	if err != nil {
		return err
	}

	if s.Limits.MaxIterations > 0 && s.Iteration >= s.Limits.MaxIterations {
		return orcherr.New(orcherr.KindLimitExceeded, "agentsession.CheckLimits", "iteration limit reached")
	}
	if s.Limits.Deadline > 0 && m.now().Sub(s.StartedAt) >= s.Limits.Deadline {
		return orcherr.New(orcherr.KindLimitExceeded, "agentsession.CheckLimits", "deadline exceeded")
	}
	return nil
}

// Summary is the caller-facing snapshot of a session (spec §4.7 "summary").
type Summary struct {
	ID           string
	ExternalID   string
	Status       Status
	ExitClass    ExitClass
	Result       string
	Error        string
	Iteration    int
	InputTokens  int64
	OutputTokens int64
	Effects      SideEffects
	OutputFile   string
	Elapsed      time.Duration
}

// Summary builds a caller-facing snapshot.
func (m *Manager) Summary(id string) (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookup("agentsession.Summary", id)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		ID:           s.ID,
		ExternalID:   s.ExternalID,
		Status:       s.Status,
		ExitClass:    s.ExitClass,
		Result:       s.Result,
		Error:        s.Error,
		Iteration:    s.Iteration,
		InputTokens:  s.InputTokens,
		OutputTokens: s.OutputTokens,
		Effects:      s.Effects,
		OutputFile:   s.OutputFile,
		Elapsed:      m.now().Sub(s.StartedAt),
	}, nil
}

// List returns sessions matching filter. A nil filter returns all.
func (m *Manager) List(filter func(*Session) bool) []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, s := range m.sessions {
		if filter == nil || filter(s) {
			out = append(out, *s)
		}
	}
	return out
}

// Delete removes a session from tracking.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return orcherr.New(orcherr.KindSession, "agentsession.Delete", "session not found: "+id)
	}
	delete(m.sessions, id)
	return nil
}

// Cleanup drops finished sessions idle longer than idleWindow, and
// returns how many were removed (spec §4.7 "Cleanup").
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for id, s := range m.sessions {
		if s.Status == StatusRunning {
			continue
		}
		if now.Sub(s.UpdatedAt) > m.idleWindow {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}
