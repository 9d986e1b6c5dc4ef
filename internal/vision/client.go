package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/eleven-am/camera-sentinel/internal/classifier"
	"github.com/eleven-am/camera-sentinel/internal/shared"
)

type Client struct {
	httpClient *http.Client
	provider   string
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	maxWidth   int
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = ProviderOpenAI
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		if provider == ProviderOllama {
			baseURL = defaultOllamaURL
		} else {
			baseURL = defaultOpenAIURL
		}
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		provider:   provider,
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      model,
		maxTokens:  maxTokens,
		maxWidth:   cfg.MaxWidth,
		logger:     logger.With("component", "vision", "provider", provider),
	}
}

// Classify asks the model to describe image and returns its raw answer.
// The prompt carries the base contract, the local time and instructions.
func (c *Client) Classify(ctx context.Context, image []byte, instructions string, at time.Time) (string, error) {
	if len(image) == 0 {
		return "", shared.Unavailable("vision", fmt.Errorf("no image data provided"))
	}

	if c.maxWidth > 0 {
		scaled, err := Downscale(image, c.maxWidth)
		if err != nil {
			c.logger.Warn("downscale failed, sending original", "error", err)
		} else {
			image = scaled
		}
	}

	prompt := classifier.BuildPrompt(instructions, at)
	imageB64 := base64.StdEncoding.EncodeToString(image)

	start := time.Now()
	var (
		text string
		err  error
	)
	switch c.provider {
	case ProviderOllama:
		text, err = c.generateOllama(ctx, prompt, imageB64)
	default:
		text, err = c.completeOpenAI(ctx, prompt, imageB64)
	}
	if err != nil {
		return "", shared.Unavailable("vision", err)
	}

	c.logger.Debug("classification complete",
		"model", c.model,
		"image_bytes", len(image),
		"latency_ms", time.Since(start).Milliseconds())

	return strings.TrimSpace(text), nil
}

func (c *Client) completeOpenAI(ctx context.Context, prompt, imageB64 string) (string, error) {
	req := openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{{
			Role: "user",
			Content: []openAIContent{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &openAIImageURL{URL: "data:image/jpeg;base64," + imageB64}},
			},
		}},
		MaxCompletionTokens: c.maxTokens,
	}

	var resp openAIResponse
	if err := c.postJSON(ctx, "/v1/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("openai error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) generateOllama(ctx context.Context, prompt, imageB64 string) (string, error) {
	req := ollamaRequest{
		Model:  c.model,
		Prompt: prompt,
		Images: []string{imageB64},
		Stream: false,
	}

	var resp ollamaResponse
	if err := c.postJSON(ctx, "/api/generate", req, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s request: %w", c.provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned status %d: %s", c.provider, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" && c.provider == ProviderOpenAI {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// Ping checks that the provider answers its model listing endpoint.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	path := "/v1/models"
	if c.provider == ProviderOllama {
		path = "/api/tags"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) IsAvailable(ctx context.Context) bool {
	return c.Ping(ctx) == nil
}
