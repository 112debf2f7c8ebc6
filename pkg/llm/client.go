// Package llm talks to an Azure-OpenAI style chat-completion deployment.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Sampling defaults sent with every completion request
const (
	DefaultTopP             = 0.9
	DefaultFrequencyPenalty = 1.0
	DefaultPresencePenalty  = 0.5
	DefaultTimeout          = 60 * time.Second
)

// maxErrorBody bounds how much of a failed response is kept on an UpstreamError
const maxErrorBody = 4096

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body posted to the deployment
type ChatRequest struct {
	Messages         []Message `json:"messages"`
	Temperature      float64   `json:"temperature"`
	MaxTokens        int       `json:"max_tokens"`
	TopP             float64   `json:"top_p"`
	FrequencyPenalty float64   `json:"frequency_penalty"`
	PresencePenalty  float64   `json:"presence_penalty"`
}

// Config describes the deployment to call
type Config struct {
	// BaseURL of the resource, e.g. https://example.openai.azure.com/
	BaseURL string

	// Deployment is the model deployment name
	Deployment string

	// APIVersion is sent as the api-version query parameter
	APIVersion string

	// APIKey is sent in the api-key header
	APIKey string

	// Timeout for a single completion call; DefaultTimeout when zero
	Timeout time.Duration

	// Sampling parameters; the package defaults are used when nil
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
}

// Client performs single-attempt chat completions. It is safe for
// concurrent use.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string

	topP             float64
	frequencyPenalty float64
	presencePenalty  float64
}

// NewClient creates a new completion client. The composed endpoint must be an
// absolute URL and the API key must be set.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(cfg.Deployment) == "" {
		return nil, fmt.Errorf("%w: deployment name is required", ErrInvalidRequest)
	}

	endpoint, err := Endpoint(cfg.BaseURL, cfg.Deployment, cfg.APIVersion)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		httpClient:       &http.Client{Timeout: timeout},
		endpoint:         endpoint,
		apiKey:           cfg.APIKey,
		topP:             valueOr(cfg.TopP, DefaultTopP),
		frequencyPenalty: valueOr(cfg.FrequencyPenalty, DefaultFrequencyPenalty),
		presencePenalty:  valueOr(cfg.PresencePenalty, DefaultPresencePenalty),
	}, nil
}

// Endpoint composes {base}openai/deployments/{deployment}/chat/completions?api-version={version}.
// A missing trailing slash on base is added.
func Endpoint(base, deployment, apiVersion string) (string, error) {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	u, err := url.Parse(base + "openai/deployments/" + url.PathEscape(deployment) + "/chat/completions")
	if err != nil {
		return "", fmt.Errorf("%w: invalid base url: %v", ErrInvalidRequest, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: base url %q must use http or https", ErrInvalidRequest, base)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: base url %q has no host", ErrInvalidRequest, base)
	}

	q := u.Query()
	q.Set("api-version", apiVersion)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Endpoint returns the URL the client posts to
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Complete sends messages to the deployment and returns the text of the first
// choice. Nothing is retried.
func (c *Client) Complete(ctx context.Context, messages []Message, temperature float64, maxTokens int) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("%w: at least one message is required", ErrInvalidRequest)
	}
	if !(temperature >= 0 && temperature <= 1) {
		return "", fmt.Errorf("%w: temperature %v must be between 0 and 1", ErrInvalidRequest, temperature)
	}

	payload, err := json.Marshal(ChatRequest{
		Messages:         messages,
		Temperature:      temperature,
		MaxTokens:        maxTokens,
		TopP:             c.topP,
		FrequencyPenalty: c.frequencyPenalty,
		PresencePenalty:  c.presencePenalty,
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal request body: %v", ErrInvalidRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrConnection, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response body: %w", ErrConnection, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return "", fmt.Errorf("%w: %s", ErrAuth, truncate(body))
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", ErrEndpoint, truncate(body))
	case resp.StatusCode != http.StatusOK:
		return "", &UpstreamError{StatusCode: resp.StatusCode, Body: truncate(body)}
	}

	return extractContent(body)
}

// extractContent pulls choices[0].message.content out of a response body
func extractContent(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("%w: response is not valid JSON", ErrDecode)
	}

	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() || content.Type != gjson.String {
		return "", fmt.Errorf("%w: choices[0].message.content is missing", ErrDecode)
	}

	return content.String(), nil
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return string(body)
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
