package conversation_test

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/blue-shark/internal/adapters/llm"
	"github.com/PabloGalante/blue-shark/internal/adapters/storage/memory"
	"github.com/PabloGalante/blue-shark/internal/app/conversation"
	"github.com/PabloGalante/blue-shark/internal/app/modes"
	"github.com/PabloGalante/blue-shark/internal/app/sessions"
	"github.com/PabloGalante/blue-shark/internal/domain"
)

type fakeSelector struct {
	mu      sync.Mutex
	has     bool
	prompts int
	err     error
}

func (f *fakeSelector) HasSelected(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.has, nil
}

func (f *fakeSelector) PromptSelection(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts++
	if f.err != nil {
		return f.err
	}
	f.has = true
	return nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	updates []domain.SessionUpdate
}

func (p *recordingPublisher) Publish(ctx context.Context, u domain.SessionUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, u)
	return nil
}

func newService(t *testing.T, gen domain.Generator, opts ...conversation.Option) (*conversation.Service, *sessions.Store) {
	t.Helper()
	store := sessions.NewStore(memory.NewSlot())
	return conversation.NewService(gen, store, modes.Default(), opts...), store
}

func TestSingleModelStream(t *testing.T) {
	ctx := context.Background()
	mock := llm.NewMockLLM()
	mock.Fragments = []string{"2", "+2=4"}
	svc, _ := newService(t, mock)

	var seen []string
	out, err := svc.SendMessage(ctx, conversation.SendMessageInput{
		Mode:       domain.ModeProChat,
		Text:       "What is 2+2?",
		OnFragment: func(f string) { seen = append(seen, f) },
	})
	require.NoError(t, err)
	require.NoError(t, out.Err)
	require.Equal(t, conversation.StateSettled, out.State)

	require.Equal(t, "What is 2+2?", out.UserMessage.Content)
	require.Equal(t, "2+2=4", out.ModelMessage.Content)
	require.False(t, out.ModelMessage.Pending)
	require.False(t, out.ModelMessage.Failed)
	require.Equal(t, []string{"2", "+2=4"}, seen)

	calls := mock.StreamCalls()
	require.Len(t, calls, 1)
	require.Equal(t, modes.ModelPro, calls[0].Model)
	require.Equal(t, "What is 2+2?", calls[0].Text)
	require.Empty(t, calls[0].History)
}

func TestStreamConcatenationIgnoresChunking(t *testing.T) {
	const answer = "Sharks have been around for over 400 million years."
	chunkings := [][]string{
		{answer},
		strings.SplitAfter(answer, " "),
		strings.Split(answer, ""),
		{answer[:7], "", answer[7:20], answer[20:]},
	}

	for _, fragments := range chunkings {
		mock := llm.NewMockLLM()
		mock.Fragments = fragments
		svc, _ := newService(t, mock)

		out, err := svc.SendMessage(context.Background(), conversation.SendMessageInput{Text: "how old?"})
		require.NoError(t, err)
		require.Equal(t, answer, out.ModelMessage.Content)
	}
}

func TestZeroFragmentsIsNotAnError(t *testing.T) {
	mock := llm.NewMockLLM()
	mock.Fragments = []string{}
	svc, _ := newService(t, mock)

	out, err := svc.SendMessage(context.Background(), conversation.SendMessageInput{Text: "silence?"})
	require.NoError(t, err)
	require.NoError(t, out.Err)
	require.Empty(t, out.ModelMessage.Content)
	require.False(t, out.ModelMessage.Failed)
	require.False(t, out.ModelMessage.Pending)
}

func TestDualModeJointWrite(t *testing.T) {
	mock := llm.NewMockLLM()
	mock.Replies = map[string]string{
		modes.ModelFlash: "4",
		modes.ModelPro:   "The answer is 4.",
	}
	pub := &recordingPublisher{}
	store := sessions.NewStore(memory.NewSlot(), sessions.WithPublisher(pub))
	svc := conversation.NewService(mock, store, modes.Default())

	out, err := svc.SendMessage(context.Background(), conversation.SendMessageInput{
		Mode: domain.ModeSharkTank,
		Text: "What is 2+2?",
	})
	require.NoError(t, err)
	require.Equal(t, "4", out.ModelMessage.Content)
	require.Equal(t, "The answer is 4.", out.ModelMessage.SecondaryContent)
	require.False(t, out.ModelMessage.Pending)

	calls := mock.GenerateCalls()
	require.Len(t, calls, 2)
	instructions := map[string]string{}
	for _, c := range calls {
		require.Equal(t, "What is 2+2?", c.Text)
		instructions[c.Model] = c.SystemInstruction
	}
	require.Contains(t, instructions[modes.ModelFlash], "Flash Shark")
	require.Contains(t, instructions[modes.ModelPro], "Pro Shark")
	require.Empty(t, mock.StreamCalls())

	requireNoHalfPopulated(t, pub)
}

func TestDualModeFailureReplacesPlaceholder(t *testing.T) {
	mock := llm.NewMockLLM()
	mock.Replies = map[string]string{modes.ModelFlash: "4"}
	mock.Errors = map[string]error{modes.ModelPro: errors.New("quota exceeded")}
	pub := &recordingPublisher{}
	store := sessions.NewStore(memory.NewSlot(), sessions.WithPublisher(pub))
	svc := conversation.NewService(mock, store, modes.Default())

	out, err := svc.SendMessage(context.Background(), conversation.SendMessageInput{
		Mode: domain.ModeSharkTank,
		Text: "What is 2+2?",
	})
	require.NoError(t, err)
	require.Error(t, out.Err)
	require.True(t, out.ModelMessage.Failed)
	require.Equal(t, "Error: quota exceeded", out.ModelMessage.Content)
	require.Empty(t, out.ModelMessage.SecondaryContent)

	requireNoHalfPopulated(t, pub)
}

func TestDualModeEmptyReply(t *testing.T) {
	mock := llm.NewMockLLM()
	mock.Replies = map[string]string{modes.ModelFlash: "", modes.ModelPro: "deep"}
	svc, _ := newService(t, mock)

	out, err := svc.SendMessage(context.Background(), conversation.SendMessageInput{
		Mode: domain.ModeSharkTank,
		Text: "anything?",
	})
	require.NoError(t, err)
	require.Equal(t, "No response generated.", out.ModelMessage.Content)
	require.Equal(t, "deep", out.ModelMessage.SecondaryContent)
}

func requireNoHalfPopulated(t *testing.T, pub *recordingPublisher) {
	t.Helper()
	pub.mu.Lock()
	defer pub.mu.Unlock()

	for _, u := range pub.updates {
		if u.Message == nil || u.Message.Role != domain.RoleModel || u.Message.Failed {
			continue
		}
		require.Equal(t, u.Message.Content == "", u.Message.SecondaryContent == "",
			"dual message written half-populated: %+v", u.Message)
	}
}

func TestStreamErrorKeepsSessionUsable(t *testing.T) {
	ctx := context.Background()
	mock := llm.NewMockLLM()
	mock.FailOnce = errors.New("connection reset")
	svc, _ := newService(t, mock)

	out, err := svc.SendMessage(ctx, conversation.SendMessageInput{Text: "hello"})
	require.NoError(t, err)
	require.True(t, out.ModelMessage.Failed)
	require.Equal(t, "Error: connection reset", out.ModelMessage.Content)
	require.Equal(t, conversation.StateSettled, out.State)

	next, err := svc.SendMessage(ctx, conversation.SendMessageInput{SessionID: out.SessionID, Text: "again"})
	require.NoError(t, err)
	require.False(t, next.ModelMessage.Failed)
	require.Equal(t, "You said: again", next.ModelMessage.Content)

	sess, err := svc.GetSession(ctx, out.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 4)
}

func TestEmptyErrorUsesFallbackText(t *testing.T) {
	mock := llm.NewMockLLM()
	mock.FailOnce = errors.New("")
	svc, _ := newService(t, mock)

	out, err := svc.SendMessage(context.Background(), conversation.SendMessageInput{Text: "hello"})
	require.NoError(t, err)
	require.Equal(t, "Error: The deep ocean is turbulent. Check your API key or connection.", out.ModelMessage.Content)
}

func TestEntityNotFoundRetriesOnce(t *testing.T) {
	mock := llm.NewMockLLM()
	mock.FailOnce = errors.New("Error 404, Message: Requested entity was not found., Status: NOT_FOUND")
	mock.Fragments = []string{"back", " online"}
	sel := &fakeSelector{has: true}
	svc, _ := newService(t, mock, conversation.WithCredentialSelector(sel))

	out, err := svc.SendMessage(context.Background(), conversation.SendMessageInput{Text: "hello"})
	require.NoError(t, err)
	require.NoError(t, out.Err)
	require.Equal(t, "back online", out.ModelMessage.Content)
	require.Equal(t, 1, sel.prompts)
	require.Len(t, mock.StreamCalls(), 2)
}

func TestEntityNotFoundGivesUpAfterOneRetry(t *testing.T) {
	mock := llm.NewMockLLM()
	mock.Errors = map[string]error{modes.ModelPro: errors.New("Requested entity was not found.")}
	sel := &fakeSelector{has: true}
	svc, _ := newService(t, mock, conversation.WithCredentialSelector(sel))

	out, err := svc.SendMessage(context.Background(), conversation.SendMessageInput{Text: "hello"})
	require.NoError(t, err)
	require.True(t, out.ModelMessage.Failed)
	require.Equal(t, 1, sel.prompts)
	require.Len(t, mock.StreamCalls(), 2)
}

func TestEntityNotFoundWithoutSelectorDoesNotRetry(t *testing.T) {
	mock := llm.NewMockLLM()
	mock.FailOnce = errors.New("Requested entity was not found.")
	svc, _ := newService(t, mock)

	out, err := svc.SendMessage(context.Background(), conversation.SendMessageInput{Text: "hello"})
	require.NoError(t, err)
	require.True(t, out.ModelMessage.Failed)
	require.Len(t, mock.StreamCalls(), 1)
}

func TestPremiumModelPromptsForCredential(t *testing.T) {
	ctx := context.Background()

	sel := &fakeSelector{}
	svc, _ := newService(t, llm.NewMockLLM(), conversation.WithCredentialSelector(sel))
	_, err := svc.SendMessage(ctx, conversation.SendMessageInput{Mode: domain.ModeHomework, Text: "flash only"})
	require.NoError(t, err)
	require.Equal(t, 0, sel.prompts)

	_, err = svc.SendMessage(ctx, conversation.SendMessageInput{Mode: domain.ModeCoding, Text: "pro"})
	require.NoError(t, err)
	require.Equal(t, 1, sel.prompts)

	_, err = svc.SendMessage(ctx, conversation.SendMessageInput{Mode: domain.ModeSecurity, Text: "pro again"})
	require.NoError(t, err)
	require.Equal(t, 1, sel.prompts, "already selected")
}

func TestCredentialSelectionFailureIsAnInChatError(t *testing.T) {
	sel := &fakeSelector{err: errors.New("selection dismissed")}
	mock := llm.NewMockLLM()
	svc, _ := newService(t, mock, conversation.WithCredentialSelector(sel))

	out, err := svc.SendMessage(context.Background(), conversation.SendMessageInput{Mode: domain.ModeSharkTank, Text: "hi"})
	require.NoError(t, err)
	require.True(t, out.ModelMessage.Failed)
	require.Equal(t, "Error: selection dismissed", out.ModelMessage.Content)
	require.Empty(t, mock.GenerateCalls())
}

func TestEmptyInputRejected(t *testing.T) {
	svc, store := newService(t, llm.NewMockLLM())

	_, err := svc.SendMessage(context.Background(), conversation.SendMessageInput{Text: "   "})
	require.ErrorIs(t, err, conversation.ErrEmptyInput)
	require.Empty(t, store.Sessions())
}

func TestImageOnlySend(t *testing.T) {
	mock := llm.NewMockLLM()
	mock.Fragments = []string{"a hammerhead"}
	svc, _ := newService(t, mock)
	img := &domain.Image{Data: []byte{0xff, 0xd8, 0xff}, MIMEType: "image/jpeg"}

	out, err := svc.SendMessage(context.Background(), conversation.SendMessageInput{Image: img})
	require.NoError(t, err)
	require.Equal(t, sessions.ImageOnlyContent, out.UserMessage.Content)
	require.NotNil(t, out.UserMessage.Image)

	sess, err := svc.GetSession(context.Background(), out.SessionID)
	require.NoError(t, err)
	require.Equal(t, sessions.DefaultTitle, sess.Title)

	calls := mock.StreamCalls()
	require.Len(t, calls, 1)
	require.Equal(t, img.Data, calls[0].Image.Data)
}

func TestHistoryIsCappedAndExcludesNewMessage(t *testing.T) {
	ctx := context.Background()
	mock := llm.NewMockLLM()
	svc, _ := newService(t, mock)

	out, err := svc.SendMessage(ctx, conversation.SendMessageInput{Text: "turn 0"})
	require.NoError(t, err)
	for i := 1; i < 7; i++ {
		_, err := svc.SendMessage(ctx, conversation.SendMessageInput{SessionID: out.SessionID, Text: "turn"})
		require.NoError(t, err)
	}

	calls := mock.StreamCalls()
	last := calls[len(calls)-1]
	require.Len(t, last.History, 10)
	require.Equal(t, domain.RoleModel, last.History[9].Role)
	require.Equal(t, "You said: turn", last.History[9].Text)
	require.Equal(t, "turn", last.Text)
}

func TestSessionKeepsItsMode(t *testing.T) {
	ctx := context.Background()
	mock := llm.NewMockLLM()
	svc, _ := newService(t, mock)

	out, err := svc.SendMessage(ctx, conversation.SendMessageInput{Mode: domain.ModeHomework, Text: "teach me"})
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, conversation.SendMessageInput{SessionID: out.SessionID, Mode: domain.ModeCoding, Text: "more"})
	require.NoError(t, err)

	calls := mock.StreamCalls()
	require.Equal(t, modes.ModelFlash, calls[1].Model)
}

func TestUnknownSession(t *testing.T) {
	svc, _ := newService(t, llm.NewMockLLM())

	_, err := svc.SendMessage(context.Background(), conversation.SendMessageInput{SessionID: "ghost", Text: "boo"})
	require.ErrorIs(t, err, sessions.ErrSessionNotFound)
}

// blockingLLM streams one fragment once released.
type blockingLLM struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingLLM() *blockingLLM {
	return &blockingLLM{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingLLM) Stream(ctx context.Context, req domain.StreamRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		b.once.Do(func() { close(b.started) })
		select {
		case <-b.release:
			yield("done", nil)
		case <-ctx.Done():
			yield("", ctx.Err())
		}
	}
}

func (b *blockingLLM) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	return "", errors.New("not used")
}

type sendResult struct {
	out *conversation.SendMessageOutput
	err error
}

func sendAsync(ctx context.Context, svc *conversation.Service, in conversation.SendMessageInput) <-chan sendResult {
	done := make(chan sendResult, 1)
	go func() {
		out, err := svc.SendMessage(ctx, in)
		done <- sendResult{out: out, err: err}
	}()
	return done
}

func TestConcurrentTurnOnSameSessionRejected(t *testing.T) {
	ctx := context.Background()
	mock := llm.NewMockLLM()
	store := sessions.NewStore(memory.NewSlot())
	first, err := conversation.NewService(mock, store, modes.Default()).
		SendMessage(ctx, conversation.SendMessageInput{Text: "open"})
	require.NoError(t, err)

	blocking := newBlockingLLM()
	svc := conversation.NewService(blocking, store, modes.Default())

	done := sendAsync(ctx, svc, conversation.SendMessageInput{SessionID: first.SessionID, Text: "slow"})
	<-blocking.started

	_, err = svc.SendMessage(ctx, conversation.SendMessageInput{SessionID: first.SessionID, Text: "impatient"})
	require.ErrorIs(t, err, conversation.ErrTurnInFlight)

	close(blocking.release)
	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, "done", res.out.ModelMessage.Content)

	_, err = svc.SendMessage(ctx, conversation.SendMessageInput{SessionID: first.SessionID, Text: "now"})
	require.NoError(t, err)
}

func TestCancelledTurnSettlesAsError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	blocking := newBlockingLLM()
	svc, store := newService(t, blocking)

	done := sendAsync(ctx, svc, conversation.SendMessageInput{Text: "long question"})
	<-blocking.started
	cancel()

	res := <-done
	require.NoError(t, res.err)
	out := res.out
	require.True(t, out.ModelMessage.Failed)
	require.False(t, out.ModelMessage.Pending)
	require.Equal(t, "Error: context canceled", out.ModelMessage.Content)

	sess, err := store.Session(out.SessionID)
	require.NoError(t, err)
	require.False(t, sess.Messages[1].Pending)
}

func TestClearHistory(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, llm.NewMockLLM())

	out, err := svc.SendMessage(ctx, conversation.SendMessageInput{Text: "remember me"})
	require.NoError(t, err)

	require.ErrorIs(t, svc.ClearHistory(ctx, false), sessions.ErrClearNotConfirmed)
	require.NoError(t, svc.ClearHistory(ctx, true))
	require.Empty(t, svc.Sessions(ctx))

	_, err = svc.GetSession(ctx, out.SessionID)
	require.ErrorIs(t, err, sessions.ErrSessionNotFound)
}
