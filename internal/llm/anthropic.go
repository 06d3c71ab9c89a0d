package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-3-5-haiku-latest"

// AnthropicProvider calls the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropic builds a provider. SDK-level retries are disabled; the
// gateway owns retry policy.
func NewAnthropic(apiKey, baseURL string, opts ...option.RequestOption) *AnthropicProvider {
	all := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		all = append(all, option.WithBaseURL(baseURL))
	}
	all = append(all, opts...)
	return &AnthropicProvider{client: anthropic.NewClient(all...)}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

// Invoke sends req as a single user message and returns the concatenated text
// blocks of the reply.
func (p *AnthropicProvider) Invoke(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = DefaultAnthropicModel
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: req.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropic.Float(req.Temperature),
	}
	if sys := systemPrompt(req.Locale); sys != "" {
		params.System = []anthropic.TextBlockParam{{Text: sys}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", p.mapError(err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

func (p *AnthropicProvider) mapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &Error{Kind: KindForStatus(apiErr.StatusCode), Provider: p.Name(), Status: apiErr.StatusCode, Err: err}
	}
	return wrap(p.Name(), err)
}
