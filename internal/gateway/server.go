// Package gateway implements the chat gateway: it prepends the system
// prompt to a client conversation, forwards it to an OpenAI-compatible
// upstream and relays the event stream back unchanged.
package gateway

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"github.com/javalab/jl-assistant/internal"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sashabaranov/go-openai"
)

//go:embed prompt.md
var defaultSystemPrompt string

// Client-facing error messages
const (
	msgRateLimited     = "Rate limit exceeded. Please try again in a moment."
	msgPaymentRequired = "Service temporarily unavailable. Please try again later."
	msgUpstreamFailed  = "AI service error"
	msgMissingKey      = "upstream API key is not configured"
)

// Config configures a Server
type Config struct {
	Path         string
	UpstreamURL  string
	UpstreamKey  string
	Model        string
	SystemPrompt string
	CORSOrigin   string
}

// DefaultSystemPrompt returns the built-in system prompt
func DefaultSystemPrompt() string {
	return defaultSystemPrompt
}

// LoadSystemPrompt reads a prompt file, or returns the built-in prompt for an empty path
func LoadSystemPrompt(path string) (string, error) {
	if path == "" {
		return defaultSystemPrompt, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("system prompt file %s is empty", path)
	}
	return prompt, nil
}

// Server is the chat gateway
type Server struct {
	cfg      Config
	upstream *resty.Client
	metrics  *Metrics
	engine   *gin.Engine
}

// Option configures a Server
type Option func(*Server)

// WithUpstreamClient replaces the resty client used for upstream calls
func WithUpstreamClient(c *resty.Client) Option {
	return func(s *Server) {
		s.upstream = c
	}
}

// New creates a gateway server
func New(cfg Config, opts ...Option) *Server {
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}

	s := &Server{
		cfg:     cfg,
		metrics: NewMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.upstream == nil {
		s.upstream = resty.New()
	}
	s.engine = s.routes()
	return s
}

// Metrics returns the server's collectors
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(loggingMiddleware(internal.Logger().With().Str("component", "gateway").Logger()))
	r.Use(metricsMiddleware(s.metrics))

	chat := r.Group(s.cfg.Path)
	chat.Use(corsMiddleware(s.cfg.CORSOrigin))
	chat.POST("", s.handleChat)
	chat.OPTIONS("", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "model": s.cfg.Model})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	return r
}

type chatRequest struct {
	Messages []internal.Message `json:"messages"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "messages are required"})
		return
	}
	for i, m := range req.Messages {
		if !m.Role.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("message %d has unsupported role %q", i, m.Role)})
			return
		}
	}
	if s.cfg.UpstreamKey == "" {
		_ = c.Error(errors.New(msgMissingKey))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgMissingKey})
		return
	}

	s.metrics.ConversationSize.Observe(float64(len(req.Messages)))
	internal.LogDebug("Processing chat request with %d messages", len(req.Messages))

	start := time.Now()
	resp, err := s.upstream.R().
		SetContext(c.Request.Context()).
		SetHeader("Authorization", "Bearer "+s.cfg.UpstreamKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "text/event-stream").
		SetBody(s.upstreamRequest(req.Messages)).
		SetDoNotParseResponse(true).
		Post(s.cfg.UpstreamURL)
	if err != nil {
		s.metrics.UpstreamErrors.WithLabelValues("transport").Inc()
		_ = c.Error(fmt.Errorf("upstream request: %w", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgUpstreamFailed})
		return
	}
	s.metrics.UpstreamLatency.Observe(time.Since(start).Seconds())

	body := resp.RawBody()
	if body == nil {
		s.metrics.UpstreamErrors.WithLabelValues("no_body").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgUpstreamFailed})
		return
	}
	defer body.Close()

	if status := resp.StatusCode(); status < 200 || status > 299 {
		s.metrics.UpstreamErrors.WithLabelValues(strconv.Itoa(status)).Inc()
		switch status {
		case http.StatusTooManyRequests:
			c.JSON(http.StatusTooManyRequests, gin.H{"error": msgRateLimited})
		case http.StatusPaymentRequired:
			c.JSON(http.StatusPaymentRequired, gin.H{"error": msgPaymentRequired})
		default:
			detail, _ := io.ReadAll(io.LimitReader(body, 4<<10))
			_ = c.Error(fmt.Errorf("upstream status %d: %s", status, strings.TrimSpace(string(detail))))
			c.JSON(http.StatusInternalServerError, gin.H{"error": msgUpstreamFailed})
		}
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	buf := make([]byte, 4096)
	c.Stream(func(w io.Writer) bool {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return false
			}
			s.metrics.StreamedBytes.Add(float64(n))
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				_ = c.Error(fmt.Errorf("relay stream: %w", readErr))
			}
			return false
		}
		return true
	})
}

// upstreamRequest builds the completion request with the system prompt first
func (s *Server) upstreamRequest(messages []internal.Message) openai.ChatCompletionRequest {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	out = append(out, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: s.cfg.SystemPrompt,
	})
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	return openai.ChatCompletionRequest{
		Model:    s.cfg.Model,
		Messages: out,
		Stream:   true,
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		internal.LogInfo("Gateway listening on %s%s", addr, s.cfg.Path)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		internal.LogInfo("Shutting down gateway")
		return srv.Shutdown(shutdownCtx)
	}
}
