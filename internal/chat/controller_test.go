package chat

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/javalab/jl-assistant/internal"
	"github.com/javalab/jl-assistant/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedStreamer replays deltas, optionally blocking until released
type scriptedStreamer struct {
	deltas  []string
	err     error
	started chan struct{}
	release chan struct{}

	mu   sync.Mutex
	sent [][]internal.Message
}

func (s *scriptedStreamer) Stream(ctx context.Context, messages []internal.Message, onDelta func(string), onDone func()) error {
	s.mu.Lock()
	s.sent = append(s.sent, messages)
	s.mu.Unlock()

	if s.started != nil {
		close(s.started)
	}
	if s.release != nil {
		<-s.release
	}
	for _, d := range s.deltas {
		onDelta(d)
	}
	if s.err != nil {
		return s.err
	}
	onDone()
	return nil
}

func (s *scriptedStreamer) lastSent() []internal.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[len(s.sent)-1]
}

func newOpenController(t *testing.T, s Streamer, rec *Recorder) *Controller {
	t.Helper()
	c := NewController(s, WithRecorder(rec))
	c.Open()
	return c
}

func send(t *testing.T, c *Controller, text string) error {
	t.Helper()
	c.SetInput(text)
	return c.Submit(context.Background())
}

func TestController_InitialState(t *testing.T) {
	c := NewController(&scriptedStreamer{})

	snap := c.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, internal.RoleAssistant, snap.Messages[0].Role)
	assert.Equal(t, DefaultGreeting, snap.Messages[0].Content)
	assert.Empty(t, snap.ConversationID)

	custom := NewController(&scriptedStreamer{}, WithWelcomeMessage("Welcome!"))
	assert.Equal(t, "Welcome!", custom.Snapshot().Messages[0].Content)
}

func TestController_FreshSessionPersistsOneConversationTwoMessages(t *testing.T) {
	ctx := context.Background()
	spy := newSpyStore(t)
	rec := NewRecorder(spy)
	c := newOpenController(t, &scriptedStreamer{deltas: []string{"Hi", " there"}}, rec)

	require.NoError(t, send(t, c, "Hello"))
	require.NoError(t, c.Wait(ctx))

	summaries, err := spy.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 2, summaries[0].MessageCount)

	messages, err := spy.ListMessages(ctx, summaries[0].ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, internal.RoleUser, messages[0].Role)
	assert.Equal(t, "Hello", messages[0].Content)
	assert.Equal(t, internal.RoleAssistant, messages[1].Role)
	assert.Equal(t, "Hi there", messages[1].Content)
	assert.False(t, messages[1].CreatedAt.Before(messages[0].CreatedAt))

	assert.Equal(t, summaries[0].ID, c.Snapshot().ConversationID)
}

func TestController_SecondSendReusesConversation(t *testing.T) {
	ctx := context.Background()
	spy := newSpyStore(t)
	rec := NewRecorder(spy)
	c := newOpenController(t, &scriptedStreamer{deltas: []string{"ok"}}, rec)

	require.NoError(t, send(t, c, "first"))
	require.NoError(t, send(t, c, "second"))
	require.NoError(t, c.Wait(ctx))

	assert.EqualValues(t, 1, spy.creates.Load())
	summaries, err := spy.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 4, summaries[0].MessageCount)
}

func TestController_MultiTurnStoredInOrder(t *testing.T) {
	ctx := context.Background()
	spy := newSpyStore(t)
	spy.replyDelay = 20 * time.Millisecond
	rec := NewRecorder(spy)
	c := newOpenController(t, &scriptedStreamer{deltas: []string{"reply"}}, rec)

	require.NoError(t, send(t, c, "q1"))
	assert.Equal(t, StateOpenIdle, c.State())
	convID := c.Snapshot().ConversationID
	stored, err := spy.ListMessages(ctx, convID)
	require.NoError(t, err)
	assert.Len(t, stored, 2, "the reply is stored once the turn settles")

	require.NoError(t, send(t, c, "q2"))

	stored, err = spy.ListMessages(ctx, convID)
	require.NoError(t, err)
	got := make([]string, 0, len(stored))
	for _, m := range stored {
		got = append(got, string(m.Role)+":"+m.Content)
	}
	assert.Equal(t, []string{"user:q1", "assistant:reply", "user:q2", "assistant:reply"}, got)
}

func TestController_ReplyStoredAfterCancel(t *testing.T) {
	spy := newSpyStore(t)
	streamer := &scriptedStreamer{
		deltas:  []string{"late"},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := newOpenController(t, streamer, NewRecorder(spy))
	c.SetInput("question")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Submit(ctx) }()
	<-streamer.started
	cancel()
	close(streamer.release)
	require.NoError(t, <-errCh)

	stored, err := spy.ListMessages(context.Background(), c.Snapshot().ConversationID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "late", stored[1].Content)
}

func TestController_Wait(t *testing.T) {
	streamer := &scriptedStreamer{
		deltas:  []string{"ok"},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := newOpenController(t, streamer, NewRecorder(newSpyStore(t)))
	assert.NoError(t, c.Wait(context.Background()), "nothing sent yet")

	errCh := make(chan error, 1)
	go func() { errCh <- send(t, c, "hi") }()
	<-streamer.started

	short, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Wait(short), context.DeadlineExceeded, "a send is still in flight")

	close(streamer.release)
	require.NoError(t, c.Wait(context.Background()))
	require.NoError(t, <-errCh)
	assert.Len(t, c.Snapshot().Messages, 3)
}

func TestController_SendsFullHistory(t *testing.T) {
	streamer := &scriptedStreamer{deltas: []string{"Sure"}}
	c := newOpenController(t, streamer, NewRecorder(newSpyStore(t)))

	require.NoError(t, send(t, c, "  Can you help?  "))

	sent := streamer.lastSent()
	require.Len(t, sent, 2)
	assert.Equal(t, DefaultGreeting, sent[0].Content)
	assert.Equal(t, internal.Message{Role: internal.RoleUser, Content: "Can you help?"}, sent[1])
}

func TestController_HiThere(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\n"+
			"data: {\"choices\":[{\"delta\":{\"content\":\" there\"}}]}\n\n"+
			"data: [DONE]\n")
	}))
	defer srv.Close()

	c := newOpenController(t, stream.NewClient(srv.URL, "key"), NewRecorder(newSpyStore(t)))
	require.NoError(t, send(t, c, "Hello"))

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 3)
	assert.Equal(t, internal.Message{Role: internal.RoleAssistant, Content: "Hi there"}, snap.Messages[2])
	assert.Equal(t, StateOpenIdle, snap.State)
}

func TestController_RateLimited(t *testing.T) {
	ctx := context.Background()
	spy := newSpyStore(t)
	rec := NewRecorder(spy)
	streamer := &scriptedStreamer{err: &internal.TransportError{
		Op:         "status",
		StatusCode: http.StatusTooManyRequests,
		Message:    "Rate limit exceeded. Please try again in a moment.",
	}}
	c := newOpenController(t, streamer, rec)

	err := send(t, c, "Hello")
	var te *internal.TransportError
	require.True(t, errors.As(err, &te))

	snap := c.Snapshot()
	assert.Equal(t, StateOpenIdle, snap.State)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, internal.RoleUser, snap.Messages[1].Role)
	require.NotNil(t, snap.Notice)
	assert.Equal(t, "Error", snap.Notice.Title)
	assert.Equal(t, "Rate limit exceeded. Please try again in a moment.", snap.Notice.Description)

	require.NoError(t, c.Wait(ctx))
	messages, err := spy.ListMessages(ctx, snap.ConversationID)
	require.NoError(t, err)
	require.Len(t, messages, 1, "only the user message is persisted")
	assert.Equal(t, internal.RoleUser, messages[0].Role)

	c.DismissNotice()
	assert.Nil(t, c.Snapshot().Notice)
}

func TestController_ErrorAfterTokensKeepsPartialReply(t *testing.T) {
	ctx := context.Background()
	spy := newSpyStore(t)
	rec := NewRecorder(spy)
	streamer := &scriptedStreamer{
		deltas: []string{"Part"},
		err:    &internal.TransportError{Op: "read", Message: "Stream interrupted", Err: io.ErrUnexpectedEOF},
	}
	c := newOpenController(t, streamer, rec)

	require.Error(t, send(t, c, "Hello"))
	require.NoError(t, c.Wait(ctx))

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 3)
	assert.Equal(t, "Part", snap.Messages[2].Content)
	require.NotNil(t, snap.Notice)
	assert.Equal(t, "Stream interrupted", snap.Notice.Description)

	messages, err := spy.ListMessages(ctx, snap.ConversationID)
	require.NoError(t, err)
	assert.Len(t, messages, 1, "an interrupted reply is not persisted")
}

func TestController_NoTokensNoBubble(t *testing.T) {
	ctx := context.Background()
	spy := newSpyStore(t)
	rec := NewRecorder(spy)
	c := newOpenController(t, &scriptedStreamer{}, rec)

	require.NoError(t, send(t, c, "Hello"))
	require.NoError(t, c.Wait(ctx))

	snap := c.Snapshot()
	assert.Len(t, snap.Messages, 2)
	assert.Nil(t, snap.Notice)

	messages, err := spy.ListMessages(ctx, snap.ConversationID)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestController_SubmitGuards(t *testing.T) {
	c := NewController(&scriptedStreamer{})

	c.SetInput("hello")
	assert.ErrorIs(t, c.Submit(context.Background()), ErrClosed)

	c.Open()
	c.SetInput("   ")
	assert.ErrorIs(t, c.Submit(context.Background()), ErrEmptyInput)
	assert.Len(t, c.Snapshot().Messages, 1)
}

func TestController_BusyWhileSending(t *testing.T) {
	streamer := &scriptedStreamer{
		deltas:  []string{"done"},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := newOpenController(t, streamer, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- send(t, c, "first") }()
	<-streamer.started

	snap := c.Snapshot()
	assert.Equal(t, StateOpenSending, snap.State)
	assert.True(t, snap.AwaitingFirstToken)
	assert.Empty(t, snap.Input, "input is cleared on submit")

	c.SetInput("second")
	assert.ErrorIs(t, c.Submit(context.Background()), ErrBusy)

	close(streamer.release)
	require.NoError(t, <-errCh)
	assert.Equal(t, StateOpenIdle, c.State())
	assert.Equal(t, "second", c.Snapshot().Input, "rejected input stays in the box")
}

func TestController_CloseDoesNotCancel(t *testing.T) {
	streamer := &scriptedStreamer{
		deltas:  []string{"still", " arriving"},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	rec := NewRecorder(newSpyStore(t))
	c := newOpenController(t, streamer, rec)

	errCh := make(chan error, 1)
	go func() { errCh <- send(t, c, "question") }()
	<-streamer.started

	c.Close()
	assert.Equal(t, StateClosed, c.State())
	convID := c.Snapshot().ConversationID

	close(streamer.release)
	require.NoError(t, <-errCh)

	c.Open()
	snap := c.Snapshot()
	assert.Equal(t, StateOpenIdle, snap.State)
	require.Len(t, snap.Messages, 3)
	assert.Equal(t, "still arriving", snap.Messages[2].Content)
	assert.Equal(t, convID, snap.ConversationID, "reopening continues the same conversation")
}

func TestController_NewChatDuringSend(t *testing.T) {
	ctx := context.Background()
	spy := newSpyStore(t)
	rec := NewRecorder(spy)
	streamer := &scriptedStreamer{
		deltas:  []string{"old", " reply"},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := newOpenController(t, streamer, rec)

	errCh := make(chan error, 1)
	go func() { errCh <- send(t, c, "question") }()
	<-streamer.started
	oldConv := c.Snapshot().ConversationID
	require.NotEmpty(t, oldConv)

	c.NewChat()
	close(streamer.release)
	require.NoError(t, <-errCh)
	require.NoError(t, c.Wait(ctx))

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 1, "stale reply is not rendered into the new session")
	assert.Equal(t, DefaultGreeting, snap.Messages[0].Content)
	assert.Empty(t, snap.ConversationID)
	assert.Equal(t, StateOpenIdle, snap.State)

	messages, err := spy.ListMessages(ctx, oldConv)
	require.NoError(t, err)
	require.Len(t, messages, 2, "the old conversation still receives its reply")
	assert.Equal(t, "old reply", messages[1].Content)
}

func TestController_NewChatStartsNewConversation(t *testing.T) {
	ctx := context.Background()
	spy := newSpyStore(t)
	rec := NewRecorder(spy)
	c := newOpenController(t, &scriptedStreamer{deltas: []string{"a"}}, rec)

	require.NoError(t, send(t, c, "one"))
	first := c.Snapshot().ConversationID

	c.NewChat()
	assert.Equal(t, StateOpenIdle, c.State(), "new chat does not close the widget")
	require.NoError(t, send(t, c, "two"))
	require.NoError(t, c.Wait(ctx))

	assert.NotEqual(t, first, c.Snapshot().ConversationID)
	assert.EqualValues(t, 2, spy.creates.Load())
}

func TestController_PersistenceDownChatContinues(t *testing.T) {
	ctx := context.Background()
	spy := newSpyStore(t)
	spy.failCreate.Store(true)
	rec := NewRecorder(spy)
	c := newOpenController(t, &scriptedStreamer{deltas: []string{"answer"}}, rec)

	require.NoError(t, send(t, c, "Hello"))
	require.NoError(t, c.Wait(ctx))

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 3)
	assert.Equal(t, "answer", snap.Messages[2].Content)
	assert.Nil(t, snap.Notice, "persistence failures are not shown")
	assert.Empty(t, snap.ConversationID)

	spy.failCreate.Store(false)
	require.NoError(t, send(t, c, "again"))
	assert.NotEmpty(t, c.Snapshot().ConversationID, "creation is retried on the next send")
}

func TestController_WithoutRecorder(t *testing.T) {
	c := newOpenController(t, &scriptedStreamer{deltas: []string{"x"}}, nil)

	require.NoError(t, send(t, c, "Hello"))
	assert.Len(t, c.Snapshot().Messages, 3)
}

func TestController_OnChange(t *testing.T) {
	var calls atomic.Int32
	c := NewController(&scriptedStreamer{deltas: []string{"a", "b"}}, WithOnChange(func() { calls.Add(1) }))

	c.Open()
	c.SetInput("hi")
	require.NoError(t, c.Submit(context.Background()))

	// open, input, submit, two deltas, done
	assert.GreaterOrEqual(t, calls.Load(), int32(6))
}

func TestController_SnapshotIsCopy(t *testing.T) {
	c := newOpenController(t, &scriptedStreamer{deltas: []string{"reply"}}, nil)
	require.NoError(t, send(t, c, "Hello"))

	snap := c.Snapshot()
	snap.Messages[0].Content = "mutated"

	assert.Equal(t, DefaultGreeting, c.Snapshot().Messages[0].Content)
}

func TestController_RapidDoubleSubmitCreatesOneConversation(t *testing.T) {
	ctx := context.Background()
	spy := newSpyStore(t)
	spy.createDelay = 20 * time.Millisecond
	rec := NewRecorder(spy)
	c := newOpenController(t, &scriptedStreamer{deltas: []string{"ok"}}, rec)
	c.SetInput("double click")

	var wg sync.WaitGroup
	var busy atomic.Int32
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Submit(ctx); errors.Is(err, ErrBusy) || errors.Is(err, ErrEmptyInput) {
				busy.Add(1)
			}
		}()
	}
	wg.Wait()
	require.NoError(t, c.Wait(ctx))

	assert.EqualValues(t, 1, busy.Load())
	assert.EqualValues(t, 1, spy.creates.Load())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open-idle", StateOpenIdle.String())
	assert.Equal(t, "open-sending", StateOpenSending.String())
	assert.Equal(t, "unknown", State(42).String())
}
