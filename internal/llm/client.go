package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	fastshot "github.com/opus-domini/fast-shot"
	"github.com/opus-domini/fast-shot/constant/header"
	"go.uber.org/zap"

	"foco/pkg/circuitbreaker"
	"foco/pkg/config"
	"foco/pkg/metrics"
	"foco/pkg/trace"
)

// ErrUnavailable LLM 不可用（熔断、网络错误、非 2xx）
var ErrUnavailable = errors.New("llm unavailable")

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatClient voice 服务只依赖这个接口
type ChatClient interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Client OpenAI 兼容的 chat-completion 客户端，带熔断器
type Client struct {
	http        fastshot.ClientHttpMethods
	model       string
	temperature float64
	cb          *circuitbreaker.CircuitBreaker
	logger      *zap.Logger
}

func NewClient(cfg config.LLMConfig, logger *zap.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	b := fastshot.NewClient(cfg.BaseURL)
	if cfg.APIKey != "" {
		b.Auth().BearerToken(cfg.APIKey)
	}
	httpClient := b.Config().SetTimeout(timeout).
		Header().Add("Content-Type", "application/json").
		Build()

	cbConfig := circuitbreaker.DefaultConfig("llm")
	cbConfig.FailureThreshold = 3
	cbConfig.SuccessThreshold = 2
	cbConfig.Timeout = 30 * time.Second
	cbConfig.HalfOpenMaxRequests = 2
	cbConfig.OnStateChange = func(name string, from, to circuitbreaker.State) {
		logger.Warn("Circuit breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	return &Client{
		http:        httpClient,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		cb:          circuitbreaker.NewCircuitBreaker(cbConfig),
		logger:      logger,
	}
}

// Complete 发送对话并返回第一个 choice 的内容；任何失败都包装为 ErrUnavailable
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	var content string

	err := c.cb.Execute(func() error {
		start := time.Now()
		req := chatRequest{
			Model:          c.model,
			Messages:       messages,
			Temperature:    c.temperature,
			ResponseFormat: &responseFormat{Type: "json_object"},
		}

		call := c.http.POST("/v1/chat/completions").
			Context().Set(ctx).
			Header().Add("Accept", "application/json")
		// 传播 trace_id
		if traceID := trace.FromContext(ctx); traceID != "" {
			call = call.Header().Add(header.Type(trace.HeaderName()), traceID)
		}

		resp, err := call.Body().AsJSON(req).Send()
		if err != nil {
			metrics.RecordLLMCallLatency(c.model, "error", time.Since(start))
			return fmt.Errorf("send chat request: %w", err)
		}
		defer resp.Body().Close()

		if resp.Status().IsError() {
			metrics.RecordLLMCallLatency(c.model, "http_error", time.Since(start))
			msg, _ := resp.Body().AsString()
			return fmt.Errorf("chat completion failed: %s", truncate(msg, 200))
		}

		var out chatResponse
		if err := resp.Body().AsJSON(&out); err != nil {
			metrics.RecordLLMCallLatency(c.model, "decode_error", time.Since(start))
			return fmt.Errorf("decode chat response: %w", err)
		}
		if len(out.Choices) == 0 {
			metrics.RecordLLMCallLatency(c.model, "empty", time.Since(start))
			return errors.New("chat response has no choices")
		}

		metrics.RecordLLMCallLatency(c.model, "success", time.Since(start))
		content = out.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		c.logger.Warn("LLM call failed",
			zap.String("model", c.model),
			zap.String("breaker_state", c.cb.GetState().String()),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
