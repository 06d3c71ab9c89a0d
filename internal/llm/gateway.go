package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-insights-backend/internal/config"
	"github.com/tbourn/go-insights-backend/internal/prompt"
)

// Request is a single completion call.
type Request struct {
	Prompt      string
	Locale      string // BCP 47 tag used to phrase the reply, e.g. "en-GB"
	Model       string
	MaxTokens   int64
	Temperature float64
}

// Provider is one model backend. Implementations return *Error for failures
// they can classify natively.
type Provider interface {
	Name() string
	Invoke(ctx context.Context, req Request) (string, error)
}

// Options tune a Gateway.
type Options struct {
	Model          string
	MaxTokens      int64
	Temperature    float64
	Timeout        time.Duration // per call; 0 disables
	MaxRetries     int           // retries after the first attempt
	Backoff        Backoff
	PromptCacheTTL time.Duration // 0 disables the response cache
}

// Gateway invokes a Provider with timeouts, classification and retries.
type Gateway struct {
	provider Provider
	opts     Options
	retrier  Retrier
	replies  *ristretto.Cache
}

// ErrEmptyReply is wrapped when a provider returns only whitespace.
var ErrEmptyReply = errors.New("empty reply")

// NewGateway wraps p.
func NewGateway(p Provider, o Options) (*Gateway, error) {
	if p == nil {
		return nil, errors.New("llm: nil provider")
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	g := &Gateway{provider: p, opts: o}
	g.retrier = Retrier{
		Backoff: o.Backoff,
		OnRetry: func(attempt int, err error, c Classification, delay time.Duration) {
			llmRetries.WithLabelValues(p.Name(), string(c.Kind)).Inc()
			log.Warn().
				Err(err).
				Str("provider", p.Name()).
				Str("kind", string(c.Kind)).
				Int("attempt", attempt).
				Dur("backoff", delay).
				Msg("llm call failed; retrying")
		},
	}
	if o.PromptCacheTTL > 0 {
		c, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 10_000,
			MaxCost:     32 << 20,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("llm: reply cache: %w", err)
		}
		g.replies = c
	}
	return g, nil
}

// New builds the provider selected by cfg and wraps it in a Gateway.
func New(cfg config.LLMConfig) (*Gateway, error) {
	p, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	return NewGateway(p, Options{
		Model:          cfg.Model,
		MaxTokens:      cfg.MaxTokens,
		Temperature:    cfg.Temperature,
		Timeout:        cfg.Timeout,
		MaxRetries:     cfg.MaxRetries,
		Backoff:        Backoff{Base: cfg.RetryBaseDelay, Max: cfg.RetryMaxDelay},
		PromptCacheTTL: cfg.PromptCacheTTL,
	})
}

// NewProvider returns the provider named by cfg.Provider.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	cfg.Provider = strings.ToLower(cfg.Provider)
	switch cfg.Provider {
	case "anthropic", "":
		return NewAnthropic(cfg.APIKey(), cfg.BaseURL), nil
	case "openai":
		return NewOpenAI(cfg.APIKey(), cfg.BaseURL, nil), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

// Provider returns the wrapped provider's name.
func (g *Gateway) Provider() string { return g.provider.Name() }

// MaxAttempts is the total number of calls Complete may make.
func (g *Gateway) MaxAttempts() int { return g.opts.MaxRetries + 1 }

// Close releases the reply cache.
func (g *Gateway) Close() {
	if g.replies != nil {
		g.replies.Close()
	}
}

// Invoke makes exactly one provider call under the configured timeout.
// Failures are returned as *Error.
func (g *Gateway) Invoke(ctx context.Context, promptText, locale string) (string, error) {
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}
	name := g.provider.Name()
	start := time.Now()
	reply, err := g.provider.Invoke(ctx, Request{
		Prompt:      promptText,
		Locale:      locale,
		Model:       g.opts.Model,
		MaxTokens:   g.opts.MaxTokens,
		Temperature: g.opts.Temperature,
	})
	elapsed := time.Since(start)
	llmLatency.WithLabelValues(name).Observe(elapsed.Seconds())

	if err == nil && strings.TrimSpace(reply) == "" {
		err = &Error{Kind: KindInvalidResponse, Provider: name, Err: ErrEmptyReply}
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = &Error{Kind: KindTimeout, Provider: name, Err: err}
		}
		err = wrap(name, err)
		c := Classify(err)
		llmRequests.WithLabelValues(name, string(c.Kind)).Inc()
		log.Error().
			Err(err).
			Str("provider", name).
			Str("kind", string(c.Kind)).
			Bool("retryable", c.Retryable).
			Dur("duration", elapsed).
			Msg("llm call failed")
		return "", err
	}

	llmRequests.WithLabelValues(name, "ok").Inc()
	log.Debug().
		Str("provider", name).
		Str("prompt_hash", prompt.Hash(promptText)).
		Int("request_bytes", len(promptText)).
		Int("response_bytes", len(reply)).
		Dur("duration", elapsed).
		Msg("llm call")
	return reply, nil
}

// Complete invokes the model with retries until accept returns nil for a
// reply. A non-nil accept error is treated as an invalid response and is
// retried. Accepted replies are cached by prompt hash when enabled.
func (g *Gateway) Complete(ctx context.Context, promptText, locale string, accept func(raw string) error) (string, error) {
	key := g.cacheKey(promptText, locale)
	if g.replies != nil {
		if v, ok := g.replies.Get(key); ok {
			if raw, ok := v.(string); ok && (accept == nil || accept(raw) == nil) {
				llmCacheHits.WithLabelValues(g.provider.Name()).Inc()
				return raw, nil
			}
		}
	}

	var out string
	err := g.retrier.Do(ctx, func(ctx context.Context) error {
		raw, err := g.Invoke(ctx, promptText, locale)
		if err != nil {
			return err
		}
		if accept != nil {
			if aerr := accept(raw); aerr != nil {
				llmRequests.WithLabelValues(g.provider.Name(), string(KindInvalidResponse)).Inc()
				return &Error{Kind: KindInvalidResponse, Provider: g.provider.Name(), Err: aerr}
			}
		}
		out = raw
		return nil
	}, g.MaxAttempts())
	if err != nil {
		return "", err
	}

	if g.replies != nil {
		g.replies.SetWithTTL(key, out, int64(len(out)), g.opts.PromptCacheTTL)
		g.replies.Wait()
	}
	return out, nil
}

func (g *Gateway) cacheKey(promptText, locale string) string {
	return g.provider.Name() + "|" + g.opts.Model + "|" + locale + "|" + prompt.Hash(promptText)
}

func systemPrompt(locale string) string {
	if locale == "" {
		return ""
	}
	return "You are a concise personal finance analyst. Write all prose for the " + locale + " locale. Reply with JSON only."
}
