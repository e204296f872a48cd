package stream

import (
	"context"
	"io"

	"github.com/go-resty/resty/v2"
	"github.com/javalab/jl-assistant/internal"
)

// StreamResponse is the status and raw body of a streaming POST
type StreamResponse struct {
	StatusCode int
	Body       io.ReadCloser
}

// Transport issues a POST and hands back the unread response body
type Transport interface {
	PostStreaming(ctx context.Context, url string, body []byte, headers map[string]string) (*StreamResponse, error)
}

// HTTPTransport is the resty-backed Transport used against a real gateway
type HTTPTransport struct {
	client *resty.Client
}

// NewHTTPTransport creates a transport. A nil client gets resty defaults,
// which set no request timeout.
func NewHTTPTransport(client *resty.Client) *HTTPTransport {
	if client == nil {
		client = resty.New()
	}
	return &HTTPTransport{client: client}
}

// PostStreaming sends body and returns without reading the response
func (t *HTTPTransport) PostStreaming(ctx context.Context, url string, body []byte, headers map[string]string) (*StreamResponse, error) {
	resp, err := t.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetHeader("Accept", "text/event-stream").
		SetBody(body).
		SetDoNotParseResponse(true).
		Post(url)
	if err != nil {
		return nil, &internal.TransportError{Op: "post", Message: "Failed to get response", Err: err}
	}

	return &StreamResponse{
		StatusCode: resp.StatusCode(),
		Body:       resp.RawBody(),
	}, nil
}

var _ Transport = (*HTTPTransport)(nil)
