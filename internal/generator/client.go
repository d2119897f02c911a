package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pr-poehali-dev/speech-parts-drawing/internal/domain"
)

const (
	DefaultBaseURL = "https://api.poehali.dev"
	DefaultModel   = "flux"
	generatePath   = "/v1/images/generate"
)

var (
	ErrNotConfigured = errors.New("avatar generator API key not configured")
	ErrEmptyPrompt   = errors.New("prompt is required")
)

// Request asks for one avatar image
type Request struct {
	PartID string `json:"part_id"`
	Prompt string `json:"prompt"`
}

// Result holds the generated image location
type Result struct {
	PartID   string `json:"part_id"`
	ImageURL string `json:"image_url"`
}

// Options configures a Client
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client calls the remote image generation endpoint
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	maxRetries int
	backoff    time.Duration
	httpClient *http.Client
	log        *zap.Logger
}

// New creates a Client
func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Client{
		apiKey:     opts.APIKey,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		model:      opts.Model,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		httpClient: opts.HTTPClient,
		log:        opts.Logger.Named("generator"),
	}, nil
}

// ComposePrompt builds the illustration prompt sent to the image model.
func ComposePrompt(part domain.SpeechPart, userPrompt string) (string, error) {
	userPrompt = strings.TrimSpace(userPrompt)
	if userPrompt == "" {
		return "", ErrEmptyPrompt
	}

	var sb strings.Builder
	sb.WriteString("Cute cartoon character representing '")
	sb.WriteString(part.Name)
	sb.WriteString("' (Russian grammar part of speech), ")
	sb.WriteString(userPrompt)
	sb.WriteString(", colorful, friendly, educational style, simple background, ")
	sb.WriteString("vector art style, children's book illustration")
	return sb.String(), nil
}

// Generate requests an image, retrying transient failures with exponential
// backoff. Client errors (4xx) are not retried.
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff * time.Duration(1<<uint(attempt-1))
			c.log.Warn("retrying avatar generation",
				zap.String("part", req.PartID),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(lastErr))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		url, err := c.callAPI(ctx, req.Prompt)
		if err == nil {
			c.log.Info("avatar generated", zap.String("part", req.PartID))
			return &Result{PartID: req.PartID, ImageURL: url}, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var se *StatusError
		if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 {
			return nil, err
		}
	}

	return nil, fmt.Errorf("generate avatar after %d attempts: %w", c.maxRetries+1, lastErr)
}

// StatusError reports a non-200 answer from the remote endpoint
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Code, e.Body)
}

type apiRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
}

type apiResponse struct {
	URL   string `json:"url"`
	Error string `json:"error,omitempty"`
}

func (c *Client) callAPI(ctx context.Context, prompt string) (string, error) {
	jsonBody, err := json.Marshal(apiRequest{Prompt: prompt, Model: c.model})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+generatePath, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if apiResp.Error != "" {
		return "", fmt.Errorf("api error: %s", apiResp.Error)
	}
	if apiResp.URL == "" {
		return "", fmt.Errorf("empty image url")
	}

	return apiResp.URL, nil
}
