package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/javalab/jl-assistant/internal"
	"github.com/javalab/jl-assistant/internal/store"
	"golang.org/x/sync/singleflight"
)

// Recorder lazily creates the session's conversation and writes messages
// to the store. Write failures are logged and returned but never stop the
// chat.
type Recorder struct {
	store    store.Writer
	greeting string

	flight singleflight.Group

	mu     sync.Mutex
	convID string
	gen    uint64
}

// RecorderOption configures a Recorder
type RecorderOption func(*Recorder)

// WithGreeting persists text as the first assistant message of every new
// conversation
func WithGreeting(text string) RecorderOption {
	return func(r *Recorder) {
		r.greeting = text
	}
}

// NewRecorder creates a recorder writing to w
func NewRecorder(w store.Writer, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: w}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ConversationID returns the cached conversation ID, or "" before the first send
func (r *Recorder) ConversationID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.convID
}

// EnsureConversation returns the cached conversation ID or creates one.
// Concurrent callers share a single creation. A failed creation is not
// cached, so the next call tries again.
func (r *Recorder) EnsureConversation(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.convID != "" {
		id := r.convID
		r.mu.Unlock()
		return id, nil
	}
	gen := r.gen
	r.mu.Unlock()

	key := fmt.Sprintf("conversation:%d", gen)
	v, err, shared := r.flight.Do(key, func() (interface{}, error) {
		conv, err := r.store.CreateConversation(ctx)
		if err != nil {
			perr := &internal.PersistenceError{Op: "create_conversation", Err: err}
			internal.LogWarn("%v", perr)
			return "", perr
		}

		r.mu.Lock()
		if r.gen == gen {
			r.convID = conv.ID
		}
		r.mu.Unlock()
		internal.LogDebug("Created conversation %s", conv.ID)

		if r.greeting != "" {
			_ = r.Append(ctx, conv.ID, internal.RoleAssistant, r.greeting)
		}
		return conv.ID, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		internal.LogDebug("Joined in-flight conversation creation")
	}
	return v.(string), nil
}

// Append writes one message and waits for the store
func (r *Recorder) Append(ctx context.Context, conversationID string, role internal.Role, content string) error {
	if conversationID == "" {
		err := &internal.PersistenceError{Op: "append_message", Err: errors.New("no conversation")}
		internal.LogWarn("%v", err)
		return err
	}
	if _, err := r.store.AppendMessage(ctx, conversationID, role, content); err != nil {
		perr := &internal.PersistenceError{Op: "append_message", ConversationID: conversationID, Err: err}
		internal.LogWarn("%v", perr)
		return perr
	}
	return nil
}

// Reset forgets the cached conversation so the next send starts a new one
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convID = ""
	r.gen++
}
