package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// Defaults for OpenAI-compatible endpoints.
const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4o-mini"
	maxOpenAIBody        = 1 << 20
)

// OpenAIProvider calls an OpenAI-compatible Chat Completions endpoint.
type OpenAIProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewOpenAI builds a provider. A nil client uses http.DefaultClient; the
// per-call timeout comes from the request context.
func NewOpenAI(apiKey, baseURL string, client *http.Client) *OpenAIProvider {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAIProvider{baseURL: strings.TrimSuffix(baseURL, "/"), apiKey: apiKey, client: client}
}

func (p *OpenAIProvider) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int64         `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

// Invoke posts a chat completion and returns the first choice's content.
func (p *OpenAIProvider) Invoke(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	body := chatRequest{Model: model, MaxTokens: req.MaxTokens, Temperature: req.Temperature}
	if sys := systemPrompt(req.Locale); sys != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: sys})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})

	buf, err := json.Marshal(body)
	if err != nil {
		return "", &Error{Kind: KindAPI, Provider: p.Name(), Err: err}
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(buf))
	if err != nil {
		return "", &Error{Kind: KindAPI, Provider: p.Name(), Err: err}
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(hreq)
	if err != nil {
		return "", wrap(p.Name(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxOpenAIBody))
	if err != nil {
		return "", wrap(p.Name(), err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		kind := KindForStatus(resp.StatusCode)
		if t := gjson.GetBytes(raw, "error.type").String(); t == "invalid_api_key" || t == "authentication_error" {
			kind = KindAuth
		}
		return "", &Error{Kind: kind, Provider: p.Name(), Status: resp.StatusCode, Err: errors.New(msg)}
	}

	if !gjson.ValidBytes(raw) {
		return "", &Error{Kind: KindInvalidResponse, Provider: p.Name(), Status: resp.StatusCode, Err: errors.New("response body is not JSON")}
	}
	content := gjson.GetBytes(raw, "choices.0.message.content")
	if !content.Exists() {
		return "", &Error{Kind: KindInvalidResponse, Provider: p.Name(), Status: resp.StatusCode, Err: errors.New("no choices in response")}
	}
	return content.String(), nil
}
