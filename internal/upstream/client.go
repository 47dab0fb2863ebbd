// Package upstream is the HTTP client for the backend chat-completions
// API: request execution with retries, and SSE chunk streaming.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/hsingjui/openai-to-claude/internal/apierror"
	"github.com/hsingjui/openai-to-claude/internal/config"
	"github.com/hsingjui/openai-to-claude/internal/json"
	log "github.com/hsingjui/openai-to-claude/internal/logging"
	"github.com/hsingjui/openai-to-claude/internal/protocol/openai"
	"github.com/hsingjui/openai-to-claude/internal/resilience"
)

const chatCompletionsPath = "/chat/completions"

// Client talks to one configured backend.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	exec        *resilience.Executor[*http.Response]
	idleTimeout time.Duration
}

// NewClient builds a client from the backend section of the config
// snapshot. Retries cover transport failures and retryable statuses;
// for streaming they apply only until response headers arrive.
func NewClient(cfg config.OpenAIConfig) *Client {
	retry := resilience.DefaultRetryConfig
	if cfg.MaxRetries > 0 {
		retry.MaxRetries = cfg.MaxRetries
	}
	retry.RetryIf = func(err error) bool {
		_, permanent := err.(*permanentError)
		return !permanent
	}
	breaker := resilience.DefaultBreakerConfig("openai-backend")

	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Transport: sharedTransport,
			// No client-level timeout: it would kill long streams. The
			// transport's ResponseHeaderTimeout bounds time to first byte
			// and the stream reader's watchdog bounds stalls.
		},
		exec:        resilience.NewExecutor[*http.Response](retry, &breaker),
		idleTimeout: cfg.Timeout(),
	}
}

// CreateChatCompletion executes a non-streaming completion request.
func (c *Client) CreateChatCompletion(ctx context.Context, req *openai.ChatRequest) (*openai.ChatResponse, error) {
	req.Stream = false
	req.StreamOptions = nil

	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, apierror.Transport(err)
	}

	var out openai.ChatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, apierror.Contract("backend returned a non-JSON completion body")
	}
	return &out, nil
}

// StreamChatCompletion executes a streaming completion request and
// returns the chunk stream once response headers arrive.
func (c *Client) StreamChatCompletion(ctx context.Context, req *openai.ChatRequest) (*ChunkStream, error) {
	req.Stream = true
	if req.StreamOptions == nil {
		req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}

	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	return newChunkStream(ctx, newStreamReader(ctx, resp.Body, c.idleTimeout)), nil
}

// send issues the POST under the retry and breaker policies. A response
// returned to the caller always has a 2xx status; everything else comes
// back as an *apierror.Error.
func (c *Client) send(ctx context.Context, req *openai.ChatRequest) (*http.Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, apierror.Validation("request not serializable: %v", err)
	}

	logOutboundRequest(payload)

	resp, err := c.exec.Execute(ctx, func() (*http.Response, error) {
		return c.attempt(ctx, payload)
	})
	if err != nil {
		if perm, ok := err.(*permanentError); ok {
			return nil, perm.err
		}
		if apiErr, ok := err.(*apierror.Error); ok {
			return nil, apiErr
		}
		if ctx.Err() != nil {
			return nil, apierror.Transport(ctx.Err())
		}
		return nil, apierror.Transport(err)
	}
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, payload []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+chatCompletionsPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("backend request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		apiErr := apierror.FromUpstreamStatus(resp.StatusCode, body)
		if resilience.RetryableStatus(resp.StatusCode) {
			return nil, apiErr // non-nil error triggers a retry
		}
		return nil, &permanentError{apiErr}
	}
	return resp, nil
}

// permanentError wraps statuses that must not be retried. failsafe-go
// would otherwise retry every non-nil error.
type permanentError struct {
	err *apierror.Error
}

func (p *permanentError) Error() string { return p.err.Error() }

// logOutboundRequest logs the outbound body at debug level with the
// conversation content stripped; prompts do not belong in log files.
func logOutboundRequest(payload []byte) {
	if !log.IsDebugEnabled() {
		return
	}
	redacted, err := sjson.SetBytes(payload, "messages", gjson.GetBytes(payload, "messages.#").Int())
	if err != nil {
		return
	}
	log.Debugf("backend request: %s", redacted)
}
