package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/javalab/jl-assistant/internal"
	"github.com/tidwall/gjson"
)

const (
	defaultReadSize = 4096

	// Message used when a failed response carries no usable error field
	genericFailure = "Failed to get response"
)

// Client streams chat completions from the gateway
type Client struct {
	url       string
	apiKey    string
	transport Transport
	readSize  int
}

// Option configures a Client
type Option func(*Client)

// WithTransport replaces the default resty transport
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithReadSize sets the maximum chunk size read from the response body
func WithReadSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.readSize = n
		}
	}
}

// NewClient creates a client for the gateway at url
func NewClient(url, apiKey string, opts ...Option) *Client {
	c := &Client{
		url:      url,
		apiKey:   apiKey,
		readSize: defaultReadSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = NewHTTPTransport(nil)
	}
	return c
}

type chatRequest struct {
	Messages []internal.Message `json:"messages"`
}

// Stream sends messages and calls onDelta for every text fragment as it
// arrives, then onDone exactly once when the stream has been consumed.
// A failure to start the stream, or a read failure part way, is returned
// as *internal.TransportError and onDone is not called.
func (c *Client) Stream(ctx context.Context, messages []internal.Message, onDelta func(string), onDone func()) error {
	if messages == nil {
		messages = []internal.Message{}
	}
	body, err := json.Marshal(chatRequest{Messages: messages})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	headers := map[string]string{
		"Content-Type": "application/json",
	}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	resp, err := c.transport.PostStreaming(ctx, c.url, body, headers)
	if err != nil {
		var te *internal.TransportError
		if errors.As(err, &te) {
			return err
		}
		return &internal.TransportError{Op: "post", Message: genericFailure, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := genericFailure
		if resp.Body != nil {
			msg = errorMessage(resp.Body)
			resp.Body.Close()
		}
		internal.LogDebug("Gateway answered %d: %s", resp.StatusCode, msg)
		return &internal.TransportError{Op: "status", StatusCode: resp.StatusCode, Message: msg}
	}

	if resp.Body == nil {
		return &internal.TransportError{Op: "body", StatusCode: resp.StatusCode, Message: "No response body"}
	}
	defer resp.Body.Close()

	dec := NewDecoder(onDelta)
	chunk := make([]byte, c.readSize)
	for {
		n, readErr := resp.Body.Read(chunk)
		if n > 0 && dec.Feed(chunk[:n]) {
			break
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return &internal.TransportError{Op: "read", StatusCode: resp.StatusCode, Message: "Stream interrupted", Err: readErr}
		}
	}

	dec.Flush()
	if dropped := dec.Dropped(); dropped > 0 {
		internal.LogWarn("Stream closed with %d unparseable line(s) discarded", dropped)
	}

	if onDone != nil {
		onDone()
	}
	return nil
}

// errorMessage extracts the gateway's error text from a failed response body
func errorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil || !gjson.ValidBytes(raw) {
		return genericFailure
	}
	for _, path := range []string{"error", "error.message"} {
		if v := gjson.GetBytes(raw, path); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return genericFailure
}
