// Package llm adapts the Anthropic and Perplexity clients to the
// single-prompt completion interface the extract agent consumes.
package llm

import (
	"context"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/config"
	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/internal/resilience"
	"github.com/sells-group/company-research/pkg/anthropic"
	"github.com/sells-group/company-research/pkg/perplexity"
)

// Providers accepted by llm.provider.
const (
	ProviderAnthropic  = "anthropic"
	ProviderPerplexity = "perplexity"
)

// statusOverloaded is Anthropic's "overloaded" status.
const statusOverloaded = 529

// Completer returns the model's reply to a single prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// New builds the completer selected by cfg.LLM.Provider. Calls run through
// a guard named "llm" from breakers.
func New(cfg *config.Config, breakers *resilience.ServiceBreakers) (Completer, error) {
	retry := resilience.DefaultRetryConfig()
	retry.InitialBackoff = time.Second
	guard := resilience.NewGuard("llm", breakers, retry)

	switch strings.ToLower(cfg.LLM.Provider) {
	case "", ProviderAnthropic:
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("llm: anthropic.key is required")
		}
		// The guard owns retries.
		client := anthropic.NewClient(cfg.Anthropic.Key, option.WithMaxRetries(0))
		return NewAnthropic(client, cfg.Anthropic.Model, int64(cfg.LLM.MaxTokens), guard), nil
	case ProviderPerplexity:
		if cfg.Perplexity.Key == "" {
			return nil, eris.New("llm: perplexity.key is required")
		}
		var opts []perplexity.Option
		if cfg.Perplexity.BaseURL != "" {
			opts = append(opts, perplexity.WithBaseURL(cfg.Perplexity.BaseURL))
		}
		if cfg.Perplexity.Model != "" {
			opts = append(opts, perplexity.WithModel(cfg.Perplexity.Model))
		}
		return NewPerplexity(perplexity.NewClient(cfg.Perplexity.Key, opts...), cfg.LLM.MaxTokens, guard), nil
	}
	return nil, eris.Errorf("llm: unknown provider %q", cfg.LLM.Provider)
}

// Anthropic completes prompts with the Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	guard     *resilience.Guard
}

// NewAnthropic creates an Anthropic completer. guard may be nil.
func NewAnthropic(client anthropic.Client, model string, maxTokens int64, guard *resilience.Guard) *Anthropic {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &Anthropic{client: client, model: model, maxTokens: maxTokens, guard: guard}
}

// Complete sends prompt as a single user turn at temperature 0.
func (a *Anthropic) Complete(ctx context.Context, prompt string) (string, error) {
	temp := 0.0
	req := anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	}

	resp, err := resilience.Call(ctx, a.guard, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		resp, err := a.client.CreateMessage(ctx, req)
		if err != nil {
			return nil, classifyAnthropic(err)
		}
		return resp, nil
	})
	if err != nil {
		return "", model.CollaboratorError("llm: anthropic", err)
	}

	resp.Usage.LogCost(a.model, "extract")
	if resp.StopReason == "max_tokens" {
		zap.L().Warn("llm: reply truncated at max tokens",
			zap.String("model", a.model),
			zap.Int64("max_tokens", a.maxTokens),
		)
	}
	return resp.Text(), nil
}

// classifyAnthropic marks retryable API statuses as transient.
func classifyAnthropic(err error) error {
	code := anthropic.StatusCode(err)
	if code == statusOverloaded || resilience.IsTransientHTTPStatus(code) {
		return resilience.NewTransientError(err, code)
	}
	return err
}

// Perplexity completes prompts with the chat completions API.
type Perplexity struct {
	client    perplexity.Client
	maxTokens int
	guard     *resilience.Guard
}

// NewPerplexity creates a Perplexity completer. guard may be nil.
func NewPerplexity(client perplexity.Client, maxTokens int, guard *resilience.Guard) *Perplexity {
	return &Perplexity{client: client, maxTokens: maxTokens, guard: guard}
}

// jsonOnly is the system turn sent with every Perplexity prompt.
const jsonOnly = "You extract structured company data. Reply with a single JSON object and nothing else."

// Complete sends prompt at temperature 0 and asks for a JSON object reply.
func (p *Perplexity) Complete(ctx context.Context, prompt string) (string, error) {
	temp := 0.0
	req := perplexity.ChatCompletionRequest{
		Messages:       []perplexity.Message{perplexity.System(jsonOnly), perplexity.User(prompt)},
		Temperature:    &temp,
		ResponseFormat: perplexity.JSONReply(map[string]any{"type": "object"}),
	}
	if p.maxTokens > 0 {
		req.MaxTokens = &p.maxTokens
	}

	resp, err := resilience.Call(ctx, p.guard, func(ctx context.Context) (*perplexity.ChatCompletionResponse, error) {
		return p.client.ChatCompletion(ctx, req)
	})
	if err != nil {
		return "", model.CollaboratorError("llm: perplexity", err)
	}
	zap.L().Debug("perplexity usage",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Int("citations", len(resp.Citations)),
	)
	if len(resp.Choices) == 0 {
		return "", model.CollaboratorError("llm: perplexity", eris.New("empty response: no choices"))
	}
	return resp.Text(), nil
}
