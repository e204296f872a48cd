package internal

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a conversation does not exist
var ErrNotFound = errors.New("not found")

// TransportError represents a chat request that could not be started or read.
// Message is suitable for showing to the user as-is.
type TransportError struct {
	Op         string // "post", "status", "body", "read"
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PersistenceError represents a failed conversation or message write
type PersistenceError struct {
	Op             string // "create_conversation", "append_message"
	ConversationID string
	Err            error
}

func (e *PersistenceError) Error() string {
	if e.ConversationID == "" {
		return fmt.Sprintf("persistence error: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persistence error: %s [%s]: %v", e.Op, e.ConversationID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// StorageError represents errors opening or migrating the conversation store
type StorageError struct {
	Path string
	Op   string // "open", "migrate", "query"
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ParseError represents errors parsing configuration or fixture data
type ParseError struct {
	Source string // "config", "env"
	Key    string // file path or variable name
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error [%s] %s: %v", e.Source, e.Key, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ExportError represents errors during export
type ExportError struct {
	Format string
	Path   string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [%s] %s: %v", e.Format, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}
