package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"github.com/mattiatonolo-png/nutri-ai-assistant/ledger"
	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
	"github.com/mattiatonolo-png/nutri-ai-assistant/storage"
)

// ErrSessionNotFound is returned for an unknown session ID.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists sessions between restarts.
type SessionStore interface {
	Save(ctx context.Context, rec storage.SessionRecord) error
	Load(ctx context.Context, id string) (storage.SessionRecord, error)
	Delete(ctx context.Context, id string) error
}

// Session is the state of one consultation: the patient profile, the chat,
// the last recommendation and the weekly plan. Fields are only touched
// inside Do so an import and a manual edit never interleave.
type Session struct {
	ID             string
	Profile        models.PatientProfile
	History        []models.Message
	Recommendation string
	Plan           *ledger.WeeklyPlan
	UpdatedAt      time.Time

	mu sync.Mutex
}

func newSession(id string) *Session {
	return &Session{
		ID:        id,
		Profile:   models.DefaultProfile(),
		History:   []models.Message{},
		Plan:      ledger.New(),
		UpdatedAt: time.Now(),
	}
}

// Do runs fn with the session locked.
func (s *Session) Do(fn func(*Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s)
}

// ResetChat drops the conversation and the recommendation. The plan stays.
func (s *Session) ResetChat() {
	s.History = []models.Message{}
	s.Recommendation = ""
}

func (s *Session) record() storage.SessionRecord {
	history := make([]models.Message, len(s.History))
	copy(history, s.History)
	return storage.SessionRecord{
		ID:             s.ID,
		Profile:        s.Profile,
		History:        history,
		Recommendation: s.Recommendation,
		Plan:           s.Plan.Snapshot(),
		UpdatedAt:      s.UpdatedAt,
	}
}

func sessionFromRecord(rec storage.SessionRecord) *Session {
	s := newSession(rec.ID)
	s.Profile = rec.Profile
	if rec.History != nil {
		s.History = rec.History
	}
	s.Recommendation = rec.Recommendation
	s.Plan.Restore(rec.Plan)
	if !rec.UpdatedAt.IsZero() {
		s.UpdatedAt = rec.UpdatedAt
	}
	return s
}

// SessionManager keeps live sessions in memory and, when a store is set,
// writes every change through to it.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	store    SessionStore
}

// NewSessionManager returns a manager. store may be nil, in which case
// sessions live only in memory.
func NewSessionManager(store SessionStore) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		store:    store,
	}
}

// Create starts a session with the default profile and an empty plan.
func (m *SessionManager) Create(ctx context.Context) *Session {
	s := newSession(uuid.New().String())
	m.persist(ctx, s)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	log.Info().Str("session_id", s.ID).Msg("session created")
	return s
}

// Get returns a live session, reopening it from the store when it is not in
// memory.
func (m *SessionManager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	if m.store == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	rec, err := m.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to reopen session: %w", err)
	}
	s := sessionFromRecord(rec)
	m.sessions[id] = s
	log.Info().Str("session_id", id).Int("planned_items", s.Plan.Len()).Msg("session restored")
	return s, nil
}

// View runs fn on the session without persisting afterwards.
func (m *SessionManager) View(ctx context.Context, id string, fn func(*Session) error) error {
	s, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.Do(fn)
}

// Update runs fn on the session and persists the result. When fn fails the
// session is not saved.
func (m *SessionManager) Update(ctx context.Context, id string, fn func(*Session) error) error {
	s, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.Do(func(s *Session) error {
		if err := fn(s); err != nil {
			return err
		}
		s.UpdatedAt = time.Now()
		m.persist(ctx, s)
		return nil
	})
}

// Delete forgets the session in memory and in the store.
func (m *SessionManager) Delete(ctx context.Context, id string) error {
	if _, err := m.Get(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Delete(ctx, id); err != nil {
			return err
		}
	}
	log.Info().Str("session_id", id).Msg("session deleted")
	return nil
}

// Len counts sessions held in memory.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// persist must be called with s locked or not yet shared. A failed write is logged and does
// not undo the in-memory change.
func (m *SessionManager) persist(ctx context.Context, s *Session) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, s.record()); err != nil {
		log.Error().Err(err).Str("session_id", s.ID).Msg("failed to persist session")
	}
}
