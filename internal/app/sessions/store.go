// Package sessions is the in-memory session collection. Every mutation
// re-serializes the whole collection into a single persistence slot.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/blue-shark/internal/domain"
	"github.com/PabloGalante/blue-shark/internal/observability"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionExists     = errors.New("session already exists")
	ErrMessageNotFound   = errors.New("message not found")
	ErrMessageSettled    = errors.New("message already settled")
	ErrPendingExists     = errors.New("session already has an in-flight message")
	ErrClearNotConfirmed = errors.New("clearing all sessions requires confirmation")

	// ErrPersist wraps slot failures. The in-memory mutation has already
	// been applied when it is returned.
	ErrPersist = errors.New("persisting sessions")
)

type Store struct {
	mu       sync.RWMutex
	sessions []*domain.Session // newest first

	slot      domain.Slot
	publisher domain.UpdatePublisher
	now       func() time.Time
}

type Option func(*Store)

// WithPublisher publishes a SessionUpdate after every mutation.
func WithPublisher(p domain.UpdatePublisher) Option {
	return func(s *Store) { s.publisher = p }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(slot domain.Slot, opts ...Option) *Store {
	s := &Store{
		slot: slot,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewID returns a unique, time-ordered identifier.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Load rehydrates the store from its slot. Corrupted data is discarded and
// the store starts empty; only slot read failures are returned.
func (s *Store) Load(ctx context.Context) error {
	log := observability.LoggerFromContext(ctx)

	data, err := s.slot.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading session slot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = nil
	if len(data) == 0 {
		log.Debug().Msg("session slot empty")
		return nil
	}

	loaded, err := Decode(data)
	if err != nil {
		log.Warn().Err(err).Msg("failed to parse saved sessions, starting empty")
		return nil
	}

	// a turn interrupted by a crash never settles on its own
	for _, sess := range loaded {
		for i := range sess.Messages {
			sess.Messages[i].Pending = false
		}
	}

	s.sessions = loaded
	log.Info().Int("session_count", len(loaded)).Msg("sessions loaded")
	return nil
}

// Append adds msg to the session. An empty sessionID creates a new session
// bound to mode; the (possibly new) session id is returned.
func (s *Store) Append(ctx context.Context, sessionID domain.SessionID, mode domain.Mode, msg domain.Message) (domain.SessionID, error) {
	if sessionID == "" {
		return s.appendMessage(ctx, domain.SessionID(NewID()), true, mode, msg)
	}
	return s.appendMessage(ctx, sessionID, false, "", msg)
}

// Create opens a session under a caller-chosen id with msg as its first
// message. The id must not be in use.
func (s *Store) Create(ctx context.Context, id domain.SessionID, mode domain.Mode, msg domain.Message) error {
	if id == "" {
		return errors.New("session id is required")
	}
	_, err := s.appendMessage(ctx, id, true, mode, msg)
	return err
}

func (s *Store) appendMessage(ctx context.Context, sessionID domain.SessionID, create bool, mode domain.Mode, msg domain.Message) (domain.SessionID, error) {
	now := s.now()
	if msg.ID == "" {
		msg.ID = domain.MessageID(NewID())
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}

	var updates []domain.SessionUpdate

	s.mu.Lock()
	var sess *domain.Session
	if create {
		if s.find(sessionID) != nil {
			s.mu.Unlock()
			return "", ErrSessionExists
		}
		if mode == "" {
			mode = domain.DefaultMode
		}
		title := msg.Content
		if msg.Image != nil && msg.Content == ImageOnlyContent {
			title = ""
		}
		sess = &domain.Session{
			ID:        sessionID,
			Title:     Title(title),
			Messages:  []domain.Message{},
			Mode:      mode.Normalize(),
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.sessions = append([]*domain.Session{sess}, s.sessions...)
		updates = append(updates, domain.SessionUpdate{Kind: domain.UpdateSessionCreated, SessionID: sess.ID, At: now})
	} else {
		sess = s.find(sessionID)
		if sess == nil {
			s.mu.Unlock()
			return "", ErrSessionNotFound
		}
		if msg.Pending && hasPending(sess) {
			s.mu.Unlock()
			return "", ErrPendingExists
		}
	}

	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = now
	stored := msg.Clone()
	updates = append(updates, domain.SessionUpdate{Kind: domain.UpdateMessageAdded, SessionID: sess.ID, Message: &stored, At: now})

	err := s.persistLocked(ctx)
	s.mu.Unlock()

	s.publish(ctx, updates...)
	return sess.ID, err
}

// UpdateMessage applies mutate to one in-flight message. The mutator may
// change content fields; identity, role and creation time are kept.
func (s *Store) UpdateMessage(ctx context.Context, sessionID domain.SessionID, messageID domain.MessageID, mutate func(*domain.Message)) error {
	now := s.now()

	s.mu.Lock()
	sess := s.find(sessionID)
	if sess == nil {
		s.mu.Unlock()
		return ErrSessionNotFound
	}

	idx := -1
	for i := range sess.Messages {
		if sess.Messages[i].ID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return ErrMessageNotFound
	}

	current := sess.Messages[idx]
	if !current.Pending {
		s.mu.Unlock()
		return ErrMessageSettled
	}

	next := current.Clone()
	mutate(&next)
	next.ID = current.ID
	next.Role = current.Role
	next.CreatedAt = current.CreatedAt

	sess.Messages[idx] = next
	sess.UpdatedAt = now
	stored := next.Clone()

	err := s.persistLocked(ctx)
	s.mu.Unlock()

	s.publish(ctx, domain.SessionUpdate{Kind: domain.UpdateMessageChanged, SessionID: sessionID, Message: &stored, At: now})
	return err
}

// ClearAll drops every session. It is destructive and only runs when the
// caller confirms.
func (s *Store) ClearAll(ctx context.Context, confirm bool) error {
	if !confirm {
		return ErrClearNotConfirmed
	}

	s.mu.Lock()
	s.sessions = nil
	err := s.persistLocked(ctx)
	s.mu.Unlock()

	observability.LoggerFromContext(ctx).Info().Msg("all sessions cleared")
	s.publish(ctx, domain.SessionUpdate{Kind: domain.UpdateCleared, At: s.now()})
	return err
}

// Import adds sessions that are not already present, keeping the
// collection ordered newest first. It returns how many were added.
func (s *Store) Import(ctx context.Context, incoming []*domain.Session) (int, error) {
	now := s.now()
	var updates []domain.SessionUpdate

	s.mu.Lock()
	added := 0
	for _, sess := range incoming {
		if sess == nil || sess.ID == "" || s.find(sess.ID) != nil {
			continue
		}
		c := sess.Clone()
		for i := range c.Messages {
			c.Messages[i].Pending = false
		}
		s.sessions = append(s.sessions, c)
		updates = append(updates, domain.SessionUpdate{Kind: domain.UpdateSessionCreated, SessionID: c.ID, At: now})
		added++
	}
	if added == 0 {
		s.mu.Unlock()
		return 0, nil
	}
	sort.SliceStable(s.sessions, func(i, j int) bool {
		return s.sessions[i].CreatedAt.After(s.sessions[j].CreatedAt)
	})
	err := s.persistLocked(ctx)
	s.mu.Unlock()

	observability.LoggerFromContext(ctx).Info().Int("imported", added).Msg("sessions imported")
	s.publish(ctx, updates...)
	return added, err
}

// Session returns a copy of one session.
func (s *Store) Session(id domain.SessionID) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess := s.find(id)
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// Sessions returns copies of all sessions, newest first.
func (s *Store) Sessions() []*domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	return out
}

func (s *Store) find(id domain.SessionID) *domain.Session {
	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess
		}
	}
	return nil
}

func hasPending(sess *domain.Session) bool {
	for _, m := range sess.Messages {
		if m.Pending {
			return true
		}
	}
	return false
}

// persistLocked writes the full collection. Callers hold s.mu so slot
// writes land in mutation order.
func (s *Store) persistLocked(ctx context.Context) error {
	data, err := Encode(s.sessions)
	if err != nil {
		return fmt.Errorf("%w: encoding: %w", ErrPersist, err)
	}
	if err := s.slot.Write(ctx, data); err != nil {
		observability.LoggerFromContext(ctx).Error().Err(err).Msg("failed to persist sessions")
		return fmt.Errorf("%w: writing slot: %w", ErrPersist, err)
	}
	return nil
}

func (s *Store) publish(ctx context.Context, updates ...domain.SessionUpdate) {
	if s.publisher == nil {
		return
	}
	for _, u := range updates {
		if err := s.publisher.Publish(ctx, u); err != nil {
			observability.LoggerFromContext(ctx).Warn().Err(err).Str("kind", string(u.Kind)).Msg("failed to publish session update")
		}
	}
}
