package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/PabloGalante/blue-shark/internal/app/modes"
	"github.com/PabloGalante/blue-shark/internal/app/sessions"
	"github.com/PabloGalante/blue-shark/internal/domain"
	"github.com/PabloGalante/blue-shark/internal/observability"
)

const (
	historyLimit = 10

	noResponseText = "No response generated."
	fallbackError  = "The deep ocean is turbulent. Check your API key or connection."

	// Returned by the API when the selected credential no longer maps to a
	// project, typically after the key expired.
	entityNotFound = "Requested entity was not found"
)

var (
	ErrEmptyInput   = errors.New("message needs text or an image")
	ErrTurnInFlight = errors.New("a turn is already in flight for this session")
	ErrUnknownMode  = errors.New("unknown mode")
)

type Service struct {
	llm         domain.Generator
	store       *sessions.Store
	catalog     *modes.Catalog
	credentials domain.CredentialSelector
	now         func() time.Time
	newID       func() string

	guards turnGuards
}

type Option func(*Service)

// WithCredentialSelector enables premium-model credential checks and the
// single re-authentication retry.
func WithCredentialSelector(sel domain.CredentialSelector) Option {
	return func(s *Service) { s.credentials = sel }
}

func NewService(
	llm domain.Generator,
	store *sessions.Store,
	catalog *modes.Catalog,
	opts ...Option,
) *Service {
	s := &Service{
		llm:     llm,
		store:   store,
		catalog: catalog,
		now:     time.Now,
		newID:   sessions.NewID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SendMessageInput struct {
	// SessionID is empty to open a new session in Mode.
	SessionID domain.SessionID
	Mode      domain.Mode
	Text      string
	Image     *domain.Image

	// OnFragment, when set, receives every streamed fragment after it has
	// been applied to the store.
	OnFragment func(fragment string)
}

type SendMessageOutput struct {
	SessionID    domain.SessionID
	UserMessage  domain.Message
	ModelMessage domain.Message
	State        TurnState

	// Err is the collaborator failure already rendered into ModelMessage.
	Err error
}

// SendMessage runs one turn: it appends the user message, streams or
// generates the reply into a placeholder and settles it. Collaborator
// failures never escape; they become an error message in the session.
func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (*SendMessageOutput, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" && (in.Image == nil || len(in.Image.Data) == 0) {
		return nil, ErrEmptyInput
	}

	sessionID := in.SessionID
	newSession := sessionID == ""
	if newSession {
		sessionID = domain.SessionID(s.newID())
	} else if _, err := s.store.Session(sessionID); err != nil {
		return nil, err
	}
	// held before the session exists so nobody can start a turn on it
	// between its creation and ours
	if !s.guards.tryAcquire(sessionID) {
		return nil, ErrTurnInFlight
	}
	written := false
	defer func() {
		if written {
			s.guards.release(sessionID)
			return
		}
		s.guards.discard(sessionID)
	}()

	mode := in.Mode
	var prior []domain.Message
	if !newSession {
		sess, err := s.store.Session(sessionID)
		if err != nil {
			return nil, err
		}
		mode = sess.Mode
		prior = sess.Messages
	}
	if mode == "" {
		mode = domain.DefaultMode
	}

	cfg, ok := s.catalog.Get(mode)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}

	log := observability.LoggerFromContext(ctx).With().
		Str("mode", string(cfg.Mode)).
		Bool("dual", cfg.Dual).
		Logger()
	t := &turn{log: log}
	t.to(StateSending)

	content := text
	if content == "" {
		content = sessions.ImageOnlyContent
	}
	userMsg := domain.Message{
		ID:        domain.MessageID(sessions.NewID()),
		Role:      domain.RoleUser,
		Content:   content,
		Image:     in.Image,
		CreatedAt: s.now(),
	}

	var err error
	if newSession {
		err = s.store.Create(ctx, sessionID, cfg.Mode, userMsg)
	} else {
		_, err = s.store.Append(ctx, sessionID, "", userMsg)
	}
	if err = tolerate(ctx, err); err != nil {
		return nil, err
	}
	written = true

	t.log = t.log.With().Str("session_id", string(sessionID)).Logger()
	t.log.Info().Int("text_len", len(text)).Bool("image", in.Image != nil).Msg("turn started")

	placeholder := domain.Message{
		ID:        domain.MessageID(sessions.NewID()),
		Role:      domain.RoleModel,
		Pending:   true,
		CreatedAt: s.now(),
	}
	if _, err := s.store.Append(ctx, sessionID, "", placeholder); tolerate(ctx, err) != nil {
		return nil, err
	}

	out := &SendMessageOutput{SessionID: sessionID}

	runErr := s.ensureCredential(ctx, cfg)
	if runErr == nil {
		if cfg.Dual {
			t.to(StateAwaitingDual)
			runErr = s.withReauth(ctx, t, func(attempt int) error {
				return s.runDual(ctx, sessionID, placeholder.ID, cfg, text)
			})
		} else {
			t.to(StateStreaming)
			req := domain.StreamRequest{
				Model:             cfg.Model,
				SystemInstruction: cfg.SystemInstruction,
				History:           buildHistory(prior),
				Text:              text,
				Image:             in.Image,
			}
			runErr = s.withReauth(ctx, t, func(attempt int) error {
				return s.runStream(ctx, sessionID, placeholder.ID, req, attempt, in.OnFragment)
			})
		}
	}

	// settle even when ctx is gone so the placeholder never stays in flight
	settleCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		t.to(StateErroring)
		t.log.Error().Err(runErr).Msg("turn failed")
		out.Err = runErr
		errText := errorContent(runErr)
		if err := s.store.UpdateMessage(settleCtx, sessionID, placeholder.ID, func(m *domain.Message) {
			m.Content = errText
			m.SecondaryContent = ""
			m.Failed = true
			m.Pending = false
		}); tolerate(ctx, err) != nil && !errors.Is(err, sessions.ErrMessageSettled) {
			t.log.Error().Err(err).Msg("failed to record turn error")
		}
	} else if err := s.store.UpdateMessage(settleCtx, sessionID, placeholder.ID, func(m *domain.Message) {
		m.Pending = false
	}); tolerate(ctx, err) != nil && !errors.Is(err, sessions.ErrMessageSettled) {
		t.log.Error().Err(err).Msg("failed to settle reply")
	}
	t.to(StateSettled)
	out.State = t.state

	sess, err := s.store.Session(sessionID)
	if err != nil {
		// cleared while the turn was running
		return nil, err
	}
	for _, m := range sess.Messages {
		switch m.ID {
		case userMsg.ID:
			out.UserMessage = m
		case placeholder.ID:
			out.ModelMessage = m
		}
	}

	t.log.Info().Bool("failed", out.ModelMessage.Failed).Int("reply_len", len(out.ModelMessage.Content)).Msg("turn settled")
	return out, nil
}

// runStream overwrites the placeholder with the full accumulated text on
// every fragment.
func (s *Service) runStream(
	ctx context.Context,
	sessionID domain.SessionID,
	messageID domain.MessageID,
	req domain.StreamRequest,
	attempt int,
	onFragment func(string),
) error {
	if attempt > 0 {
		if err := s.store.UpdateMessage(ctx, sessionID, messageID, func(m *domain.Message) { m.Content = "" }); tolerate(ctx, err) != nil {
			return err
		}
	}

	var acc strings.Builder
	for fragment, err := range s.llm.Stream(ctx, req) {
		if err != nil {
			return err
		}
		acc.WriteString(fragment)
		full := acc.String()

		err := s.store.UpdateMessage(ctx, sessionID, messageID, func(m *domain.Message) {
			m.Content = full
		})
		if err = tolerate(ctx, err); err != nil {
			return err
		}
		if onFragment != nil {
			onFragment(fragment)
		}
	}
	return ctx.Err()
}

// runDual issues the primary and secondary single-shot calls concurrently
// and writes both results, settled, in one update.
func (s *Service) runDual(
	ctx context.Context,
	sessionID domain.SessionID,
	messageID domain.MessageID,
	cfg domain.ModeConfig,
	text string,
) error {
	var primary, secondary string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		primary, err = s.generate(gctx, cfg.Primary, text)
		return err
	})
	g.Go(func() error {
		var err error
		secondary, err = s.generate(gctx, cfg.Secondary, text)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	err := s.store.UpdateMessage(ctx, sessionID, messageID, func(m *domain.Message) {
		m.Content = primary
		m.SecondaryContent = secondary
		m.Pending = false
	})
	return tolerate(ctx, err)
}

func (s *Service) generate(ctx context.Context, target domain.ModelTarget, text string) (string, error) {
	reply, err := s.llm.Generate(ctx, domain.GenerateRequest{
		Model:             target.Model,
		SystemInstruction: target.SystemInstruction,
		Text:              text,
	})
	if err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("model", target.Model).Msg("dual generation failed")
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		return noResponseText, nil
	}
	return reply, nil
}

// ensureCredential asks the host to select a credential before a premium
// model is called without one.
func (s *Service) ensureCredential(ctx context.Context, cfg domain.ModeConfig) error {
	if s.credentials == nil {
		return nil
	}

	premium := modes.IsPremium(cfg.Model)
	if cfg.Dual {
		premium = premium || modes.IsPremium(cfg.Primary.Model) || modes.IsPremium(cfg.Secondary.Model)
	}
	if !premium {
		return nil
	}

	ok, err := s.credentials.HasSelected(ctx)
	if err != nil {
		return fmt.Errorf("checking credential: %w", err)
	}
	if ok {
		return nil
	}
	return s.credentials.PromptSelection(ctx)
}

// withReauth retries run exactly once after re-selecting the credential
// when the API reports the credential's entity as missing.
func (s *Service) withReauth(ctx context.Context, t *turn, run func(attempt int) error) error {
	err := run(0)
	if err == nil || s.credentials == nil || !isEntityNotFound(err) {
		return err
	}

	t.log.Warn().Err(err).Msg("credential rejected, re-selecting")
	if perr := s.credentials.PromptSelection(ctx); perr != nil {
		t.log.Error().Err(perr).Msg("credential re-selection failed")
		return err
	}
	return run(1)
}

func isEntityNotFound(err error) bool {
	return strings.Contains(err.Error(), entityNotFound)
}

func errorContent(err error) string {
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		msg = fallbackError
	}
	return "Error: " + msg
}

// tolerate drops persistence failures: the in-memory store already holds
// the mutation and the next write retries the whole blob.
func tolerate(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sessions.ErrPersist) {
		observability.LoggerFromContext(ctx).Warn().Err(err).Msg("continuing without persistence")
		return nil
	}
	return err
}

func buildHistory(prior []domain.Message) []domain.Turn {
	turns := make([]domain.Turn, 0, historyLimit)
	for _, m := range prior {
		if m.Failed || m.Pending || m.Content == "" {
			continue
		}
		turns = append(turns, domain.Turn{Role: m.Role, Text: m.Content, Image: m.Image})
	}
	if len(turns) > historyLimit {
		turns = turns[len(turns)-historyLimit:]
	}
	return turns
}

// Sessions lists all sessions, newest first.
func (s *Service) Sessions(ctx context.Context) []*domain.Session {
	return s.store.Sessions()
}

// GetSession returns one session with its timeline.
func (s *Service) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	sess, err := s.store.Session(id)
	if err != nil {
		observability.LoggerFromContext(ctx).Debug().Err(err).Str("session_id", string(id)).Msg("session lookup failed")
		return nil, err
	}
	return sess, nil
}

// ClearHistory deletes every session. confirm must be true.
func (s *Service) ClearHistory(ctx context.Context, confirm bool) error {
	if err := s.store.ClearAll(ctx, confirm); tolerate(ctx, err) != nil {
		return err
	}
	s.guards.forget()
	return nil
}

// Modes returns the mode catalog in display order.
func (s *Service) Modes() []domain.ModeConfig {
	return s.catalog.All()
}
