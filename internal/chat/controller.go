// Package chat holds the chat widget state machine and its persistence
// adapter.
package chat

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/javalab/jl-assistant/internal"
)

// DefaultGreeting is the assistant message every session starts with
const DefaultGreeting = "Hi! I'm JL Assistant. How can I help you today? I can tell you about our services, current offers, or help you get a quote."

var (
	ErrEmptyInput = errors.New("message is empty")
	ErrBusy       = errors.New("a message is already being sent")
	ErrClosed     = errors.New("chat is closed")
)

// State is the widget's visible state
type State int

const (
	StateClosed State = iota
	StateOpenIdle
	StateOpenSending
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpenIdle:
		return "open-idle"
	case StateOpenSending:
		return "open-sending"
	default:
		return "unknown"
	}
}

// Streamer sends the conversation and streams back the reply
type Streamer interface {
	Stream(ctx context.Context, messages []internal.Message, onDelta func(string), onDone func()) error
}

// Notice is a dismissible error shown to the user
type Notice struct {
	Title       string
	Description string
}

// Snapshot is a consistent copy of the controller state for rendering
type Snapshot struct {
	State              State
	Open               bool
	Sending            bool
	AwaitingFirstToken bool
	Messages           []internal.Message
	Input              string
	Notice             *Notice
	ConversationID     string
}

// Controller drives one chat widget session. Sends are serialized; the
// stream callbacks may run on any goroutine.
type Controller struct {
	streamer Streamer
	recorder *Recorder
	greeting string

	mu                 sync.Mutex
	open               bool
	sending            bool
	awaitingFirstToken bool
	messages           []internal.Message
	input              string
	notice             *Notice
	session            uint64
	turn               chan struct{}
	onChange           func()
}

// Option configures a Controller
type Option func(*Controller)

// WithRecorder persists the session through r
func WithRecorder(r *Recorder) Option {
	return func(c *Controller) {
		c.recorder = r
	}
}

// WithWelcomeMessage replaces DefaultGreeting
func WithWelcomeMessage(text string) Option {
	return func(c *Controller) {
		if strings.TrimSpace(text) != "" {
			c.greeting = text
		}
	}
}

// WithOnChange registers a callback invoked after every state change
func WithOnChange(fn func()) Option {
	return func(c *Controller) {
		c.onChange = fn
	}
}

// NewController creates a closed widget holding only the greeting
func NewController(s Streamer, opts ...Option) *Controller {
	c := &Controller{
		streamer: s,
		greeting: DefaultGreeting,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.messages = c.initialMessages()
	return c
}

// SetOnChange replaces the change callback
func (c *Controller) SetOnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

func (c *Controller) initialMessages() []internal.Message {
	return []internal.Message{{Role: internal.RoleAssistant, Content: c.greeting}}
}

func (c *Controller) changed() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	switch {
	case !c.open:
		return StateClosed
	case c.sending:
		return StateOpenSending
	default:
		return StateOpenIdle
	}
}

// Open shows the widget. Messages and conversation carry over from before.
func (c *Controller) Open() {
	c.mu.Lock()
	c.open = true
	c.mu.Unlock()
	c.changed()
}

// Close hides the widget. An in-flight reply keeps streaming into the
// message list.
func (c *Controller) Close() {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	c.changed()
}

// NewChat drops the conversation and restarts from the greeting. Callbacks
// of a reply still streaming for the previous session are not rendered.
func (c *Controller) NewChat() {
	c.mu.Lock()
	c.session++
	c.messages = c.initialMessages()
	c.awaitingFirstToken = false
	c.notice = nil
	c.mu.Unlock()

	if c.recorder != nil {
		c.recorder.Reset()
	}
	c.changed()
}

// SetInput replaces the input box contents
func (c *Controller) SetInput(s string) {
	c.mu.Lock()
	c.input = s
	c.mu.Unlock()
	c.changed()
}

// DismissNotice clears the current error notice
func (c *Controller) DismissNotice() {
	c.mu.Lock()
	c.notice = nil
	c.mu.Unlock()
	c.changed()
}

// Snapshot returns a copy of the state for rendering
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		State:              c.stateLocked(),
		Open:               c.open,
		Sending:            c.sending,
		AwaitingFirstToken: c.awaitingFirstToken,
		Messages:           slices.Clone(c.messages),
		Input:              c.input,
	}
	if c.notice != nil {
		n := *c.notice
		snap.Notice = &n
	}
	c.mu.Unlock()

	if c.recorder != nil {
		snap.ConversationID = c.recorder.ConversationID()
	}
	return snap
}

// Submit sends the current input and blocks until the reply has finished
// streaming and has been stored. Persistence failures are logged and never
// returned; a transport failure is returned and also raised as a Notice.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	text := strings.TrimSpace(c.input)
	switch {
	case !c.open:
		c.mu.Unlock()
		return ErrClosed
	case c.sending:
		c.mu.Unlock()
		return ErrBusy
	case text == "":
		c.mu.Unlock()
		return ErrEmptyInput
	}

	c.messages = append(c.messages, internal.Message{Role: internal.RoleUser, Content: text})
	c.input = ""
	c.sending = true
	c.awaitingFirstToken = true
	c.notice = nil
	session := c.session
	history := slices.Clone(c.messages)
	turn := make(chan struct{})
	c.turn = turn
	c.mu.Unlock()
	c.changed()
	defer close(turn)

	convID := c.persistUserMessage(ctx, text)

	var reply strings.Builder
	onDelta := func(delta string) {
		c.mu.Lock()
		reply.WriteString(delta)
		if c.session != session {
			c.mu.Unlock()
			return
		}
		if c.awaitingFirstToken {
			c.messages = append(c.messages, internal.Message{Role: internal.RoleAssistant, Content: delta})
			c.awaitingFirstToken = false
		} else {
			last := &c.messages[len(c.messages)-1]
			last.Content += delta
		}
		c.mu.Unlock()
		c.changed()
	}

	// the reply is stored before the turn settles, so the next user
	// message can never be written ahead of it
	onDone := func() {
		c.mu.Lock()
		content := reply.String()
		c.mu.Unlock()

		if content != "" && convID != "" {
			_ = c.recorder.Append(context.WithoutCancel(ctx), convID, internal.RoleAssistant, content)
		}

		c.mu.Lock()
		c.sending = false
		if c.session == session {
			c.awaitingFirstToken = false
		}
		c.mu.Unlock()
		c.changed()
	}

	if err := c.streamer.Stream(ctx, history, onDelta, onDone); err != nil {
		internal.LogError("Chat error: %v", err)
		c.mu.Lock()
		c.sending = false
		if c.session == session {
			c.awaitingFirstToken = false
			c.notice = &Notice{Title: "Error", Description: noticeText(err)}
		}
		c.mu.Unlock()
		c.changed()
		return err
	}
	return nil
}

// Wait blocks until the current Submit, including its store writes, has
// returned
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	turn := c.turn
	c.mu.Unlock()
	if turn == nil {
		return nil
	}

	select {
	case <-turn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// persistUserMessage makes sure the conversation exists and stores the
// user's message. It returns "" when nothing could be persisted.
func (c *Controller) persistUserMessage(ctx context.Context, text string) string {
	if c.recorder == nil {
		return ""
	}
	convID, err := c.recorder.EnsureConversation(ctx)
	if err != nil {
		return ""
	}
	_ = c.recorder.Append(ctx, convID, internal.RoleUser, text)
	return convID
}

func noticeText(err error) string {
	var te *internal.TransportError
	if errors.As(err, &te) && te.Message != "" {
		return te.Message
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return "Failed to send message"
}
