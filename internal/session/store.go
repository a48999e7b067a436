// Package session keeps per-identity conversational state in memory:
// the active wizard slot and a separate set of toggled flags.
// Nothing is persisted and nothing expires.
package session

import (
	"sync"

	"github.com/zinin/homeops-bot/internal/wizard"
)

// MaxAIHistory bounds the stored AI conversation, in characters.
const MaxAIHistory = 20000

// Turn is one message of an AI conversation.
type Turn struct {
	Role string // "user" or "model"
	Text string
}

// LogSource names where AI follow-up questions fetch fresh logs from.
type LogSource string

const (
	LogNone   LogSource = ""
	LogRouter LogSource = "wrt"
	LogClash  LogSource = "clash"
)

type flags struct {
	aiMode     bool
	history    []Turn
	logContext LogSource
	mailbox    string
}

// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	wizards map[int64]*wizard.State
	flags   map[int64]*flags
}

var _ wizard.Slots = (*Store)(nil)

func New() *Store {
	return &Store{
		wizards: make(map[int64]*wizard.State),
		flags:   make(map[int64]*flags),
	}
}

func (s *Store) Wizard(id int64) (*wizard.State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.wizards[id]
	return st, ok
}

func (s *Store) PutWizard(id int64, state *wizard.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wizards[id] = state
}

func (s *Store) ClearWizard(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.wizards, id)
}

func (s *Store) get(id int64) *flags {
	f, ok := s.flags[id]
	if !ok {
		f = &flags{}
		s.flags[id] = f
	}
	return f
}

func (s *Store) AIMode(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.flags[id]
	return ok && f.aiMode
}

// SetAIMode toggles AI mode. Turning it off also forgets the conversation and log context.
func (s *Store) SetAIMode(id int64, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.get(id)
	f.aiMode = on
	if !on {
		f.history = nil
		f.logContext = LogNone
	}
}

// AppendAIHistory records a turn, dropping the oldest turns beyond MaxAIHistory characters.
func (s *Store) AppendAIHistory(id int64, turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.get(id)
	f.history = append(f.history, turn)

	total := 0
	for _, t := range f.history {
		total += len(t.Text)
	}
	for total > MaxAIHistory && len(f.history) > 1 {
		total -= len(f.history[0].Text)
		f.history = f.history[1:]
	}
}

func (s *Store) AIHistory(id int64) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.flags[id]
	if !ok {
		return nil
	}
	return append([]Turn(nil), f.history...)
}

func (s *Store) LogContext(id int64) LogSource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f, ok := s.flags[id]; ok {
		return f.logContext
	}
	return LogNone
}

func (s *Store) SetLogContext(id int64, src LogSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(id).logContext = src
}

func (s *Store) Mailbox(id int64) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f, ok := s.flags[id]; ok {
		return f.mailbox
	}
	return ""
}

func (s *Store) SetMailbox(id int64, address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(id).mailbox = address
}
