// Package convstore implements the Conversation Store (spec §4.6):
// multi-turn session tracking, budget enforcement, and model-facing
// prompt construction that embeds history.
//
// Grounded on pkg/session.Store's CRUD shape (Create/Load/List/Delete)
// generalized from file-backed transcripts to an in-memory,
// mutex-guarded map, and on pkg/context.SimpleEstimator's 4-characters-
// per-token heuristic for budget accounting.
package convstore

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/relaywork/modelbroker/pkg/orcherr"
)

// Role distinguishes conversation participants.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status is the conversation lifecycle state (spec §4.6 "State machine").
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
)

// Message is one turn in a conversation.
type Message struct {
	Role      Role
	Content   string
	CreatedAt time.Time
}

// Conversation is a tracked multi-turn session.
type Conversation struct {
	ID              string
	Status          Status
	SystemDirective string
	Messages        []Message
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Stats reports budget usage for a conversation (spec §4.6 "stats").
type Stats struct {
	MessageCount    int
	EstimatedTokens int
	Status          Status
}

const (
	defaultMaxMessages = 200
	defaultMaxTokens   = 64000
	defaultExpireAfter = 24 * time.Hour
)

// Store tracks conversations in memory, keyed by ID.
type Store struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	maxMessages   int
	maxTokens     int
	expireAfter   time.Duration
	now           func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithMaxMessages overrides the per-conversation message count budget.
func WithMaxMessages(n int) Option {
	return func(s *Store) { s.maxMessages = n }
}

// WithMaxTokens overrides the per-conversation estimated token budget.
func WithMaxTokens(n int) Option {
	return func(s *Store) { s.maxTokens = n }
}

// WithExpireAfter overrides the staleness window cleanupExpired uses.
func WithExpireAfter(d time.Duration) Option {
	return func(s *Store) { s.expireAfter = d }
}

// WithNow overrides the clock, for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New builds a Store.
func New(opts ...Option) *Store {
	s := &Store{
		conversations: make(map[string]*Conversation),
		maxMessages:   defaultMaxMessages,
		maxTokens:     defaultMaxTokens,
		expireAfter:   defaultExpireAfter,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	defaultStore     *Store
	defaultStoreOnce sync.Once
)

// Default returns the process-global Store (spec §4.6 "A singleton
// accessor is provided for process-global use").
func Default() *Store {
	defaultStoreOnce.Do(func() { defaultStore = New() })
	return defaultStore
}

// estimateTokens applies the deterministic 4-characters-per-token
// ceiling heuristic (spec §4.6 "Budgets").
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

func notFoundErr(op, id string) error {
	return orcherr.New(orcherr.KindSession, op, "conversation not found: "+id)
}

func notActiveErr(op string, status Status) error {
	return orcherr.New(orcherr.KindSession, op, "conversation is not active: "+string(status))
}

// Start creates a new active conversation and returns its ID.
// systemDirective, if non-empty, is prepended to every built prompt but
// never appears in history (spec §4.6 "Prompt construction").
func (s *Store) Start(systemDirective string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	id := uuid.NewString()
	s.conversations[id] = &Conversation{
		ID:              id,
		Status:          StatusActive,
		SystemDirective: systemDirective,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return id
}

// Append records a message, enforcing the message-count and token
// budgets (spec §4.6 "Budgets"). Appending to a non-active conversation
// fails.
func (s *Store) Append(id string, role Role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return notFoundErr("convstore.Append", id)
	}
	if conv.Status != StatusActive {
		return notActiveErr("convstore.Append", conv.Status)
	}

	if len(conv.Messages)+1 > s.maxMessages {
		return orcherr.New(orcherr.KindBudget, "convstore.Append", "message count budget exceeded")
	}

	projected := estimateTokens(content)
	for _, m := range conv.Messages {
		projected += estimateTokens(m.Content)
	}
	if projected > s.maxTokens {
		return orcherr.New(orcherr.KindBudget, "convstore.Append", "token budget exceeded")
	}

	conv.Messages = append(conv.Messages, Message{Role: role, Content: content, CreatedAt: s.now()})
	conv.UpdatedAt = s.now()
	return nil
}

// History returns the message list for id.
func (s *Store) History(id string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, notFoundErr("convstore.History", id)
	}
	out := make([]Message, len(conv.Messages))
	copy(out, conv.Messages)
	return out, nil
}

// List returns conversations matching filter. A nil filter returns all.
func (s *Store) List(filter func(*Conversation) bool) []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Conversation
	for _, conv := range s.conversations {
		if filter == nil || filter(conv) {
			out = append(out, *conv)
		}
	}
	return out
}

// Clear removes a conversation's message history without changing its
// status.
func (s *Store) Clear(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return notFoundErr("convstore.Clear", id)
	}
	conv.Messages = nil
	conv.UpdatedAt = s.now()
	return nil
}

// End transitions a conversation to completed (spec §4.6 "active →
// completed via end"). Completed conversations are read-only.
func (s *Store) End(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return notFoundErr("convstore.End", id)
	}
	conv.Status = StatusCompleted
	conv.UpdatedAt = s.now()
	return nil
}

// Stats reports budget usage for id.
func (s *Store) Stats(id string) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return Stats{}, notFoundErr("convstore.Stats", id)
	}
	total := 0
	for _, m := range conv.Messages {
		total += estimateTokens(m.Content)
	}
	return Stats{
		MessageCount:    len(conv.Messages),
		EstimatedTokens: total,
		Status:          conv.Status,
	}, nil
}

// CleanupExpired transitions stale active conversations (untouched for
// longer than expireAfter) to expired, and returns how many were swept
// (spec §4.6 "active → expired via cleanupExpired").
func (s *Store) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	count := 0
	for _, conv := range s.conversations {
		if conv.Status != StatusActive {
			continue
		}
		if now.Sub(conv.UpdatedAt) > s.expireAfter {
			conv.Status = StatusExpired
			conv.UpdatedAt = now
			count++
		}
	}
	return count
}
