package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/botasky11/totml/internal/logging"
	"github.com/botasky11/totml/pkg/ports"
	goopenai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// continuePrompt is sent as the user turn to providers that require one.
const continuePrompt = "Please continue."

// Backend routes queries to OpenAI-compatible providers.
type Backend struct {
	logger     *slog.Logger
	getenv     func(string) string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryBase  time.Duration
	baseURL    string

	mu      sync.Mutex
	clients map[string]*goopenai.Client
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// WithRateLimit caps outgoing requests per second. 0 disables the limit.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(b *Backend) {
		if perSecond <= 0 {
			b.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithRetries sets how many times retryable failures are retried and the
// base of the exponential backoff.
func WithRetries(n int, base time.Duration) Option {
	return func(b *Backend) {
		b.maxRetries = n
		b.retryBase = base
	}
}

// WithHTTPClient sets the HTTP client shared by every provider.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Backend) {
		b.httpClient = c
	}
}

// WithEnv replaces os.Getenv for credential lookup.
func WithEnv(getenv func(string) string) Option {
	return func(b *Backend) {
		b.getenv = getenv
	}
}

// WithBaseURL forces every provider onto one endpoint (proxies, tests).
func WithBaseURL(url string) Option {
	return func(b *Backend) {
		b.baseURL = url
	}
}

// New creates a backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		logger:     logging.NewNop(),
		getenv:     os.Getenv,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		maxRetries: 5,
		retryBase:  time.Second,
		clients:    make(map[string]*goopenai.Client),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) client(p Provider) (*goopenai.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.clients[p.Name]; ok {
		return c, nil
	}

	key := b.getenv(p.EnvPrefix + "_API_KEY")
	if key == "" && b.baseURL == "" {
		return nil, fmt.Errorf("%s_API_KEY is not set", p.EnvPrefix)
	}
	cfg := goopenai.DefaultConfig(key)
	cfg.BaseURL = p.DefaultBaseURL
	if url := b.getenv(p.EnvPrefix + "_BASE_URL"); url != "" {
		cfg.BaseURL = url
	}
	if b.baseURL != "" {
		cfg.BaseURL = b.baseURL
	}
	cfg.HTTPClient = b.httpClient

	c := goopenai.NewClientWithConfig(cfg)
	b.clients[p.Name] = c
	return c, nil
}

// Query implements ports.Backend.
func (b *Backend) Query(ctx context.Context, req ports.QueryRequest) (ports.QueryResponse, error) {
	provider, model, err := Route(req.Model)
	if err != nil {
		return ports.QueryResponse{}, err
	}
	client, err := b.client(provider)
	if err != nil {
		return ports.QueryResponse{}, err
	}

	chat := goopenai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages(req, provider),
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature != nil {
		chat.Temperature = float32(*req.Temperature)
		// The field is omitempty; a zero would silently become the provider default.
		if chat.Temperature == 0 {
			chat.Temperature = math.SmallestNonzeroFloat32
		}
	}
	if req.Func != nil {
		chat.Tools = []goopenai.Tool{{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        req.Func.Name,
				Description: req.Func.Description,
				Parameters:  req.Func.JSONSchema,
			},
		}}
		chat.ToolChoice = goopenai.ToolChoice{
			Type:     goopenai.ToolTypeFunction,
			Function: goopenai.ToolFunction{Name: req.Func.Name},
		}
	}

	start := time.Now()
	resp, err := b.create(ctx, client, chat)
	if err != nil && req.Func != nil && toolsUnsupported(err) {
		b.logger.Warn("model does not support function calling, retrying without tools", "model", req.Model)
		chat.Tools, chat.ToolChoice = nil, nil
		resp, err = b.create(ctx, client, chat)
	}
	if err != nil {
		return ports.QueryResponse{}, fmt.Errorf("%s completion: %w", provider.Name, err)
	}

	b.logger.Info("backend call completed",
		"provider", provider.Name, "model", resp.Model,
		"duration", time.Since(start).Round(time.Millisecond),
		"in_tokens", resp.Usage.PromptTokens, "out_tokens", resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		b.logger.Error("backend response has no choices", "model", req.Model)
		return ports.QueryResponse{}, nil
	}
	msg := resp.Choices[0].Message
	out := ports.QueryResponse{Text: msg.Content}
	if req.Func != nil {
		out.Object = b.functionObject(msg, req.Func.Name)
	}
	return out, nil
}

// functionObject extracts the structured answer. Unusable output yields nil.
func (b *Backend) functionObject(msg goopenai.ChatCompletionMessage, name string) map[string]any {
	if len(msg.ToolCalls) == 0 {
		b.logger.Warn("backend answered without a tool call", "function", name)
		return nil
	}
	call := msg.ToolCalls[0]
	if call.Function.Name != name {
		b.logger.Warn("function mismatch", "got", call.Function.Name, "want", name)
		return nil
	}
	obj, err := decodeArguments(call.Function.Arguments)
	if err != nil {
		b.logger.Error("failed to decode function arguments", "arguments", call.Function.Arguments, "error", err)
		return nil
	}
	return obj
}

func messages(req ports.QueryRequest, p Provider) []goopenai.ChatCompletionMessage {
	var msgs []goopenai.ChatCompletionMessage
	if len(req.System) > 0 {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: req.System.Markdown()})
	}
	user := ""
	if len(req.User) > 0 {
		user = req.User.Markdown()
	}
	if user == "" && p.NeedsUserMessage {
		user = continuePrompt
	}
	if user != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: user})
	}
	return msgs
}

// create sends the request, retrying rate limits, server errors and
// transient network failures with exponential backoff.
func (b *Backend) create(ctx context.Context, client *goopenai.Client, chat goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(b.retryBase) * math.Pow(2, float64(attempt-1)))
			b.logger.Warn("retrying backend call", "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return goopenai.ChatCompletionResponse{}, ctx.Err()
			case <-time.After(delay):
			}
		}
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return goopenai.ChatCompletionResponse{}, err
			}
		}

		resp, err := client.CreateChatCompletion(ctx, chat)
		if err == nil {
			return resp, nil
		}
		if !retryable(err) {
			return goopenai.ChatCompletionResponse{}, err
		}
		lastErr = err
	}
	return goopenai.ChatCompletionResponse{}, lastErr
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func toolsUnsupported(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "does not support function calling") || strings.Contains(msg, "does not support tools")
}
