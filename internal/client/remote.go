package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/config"
)

// ErrNotFound is returned when the backend answers 404.
var ErrNotFound = errors.New("resource not found")

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("backend error (status %d)", e.StatusCode)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Remote is the shared HTTP transport for the studio backend. Outbound
// requests are paced by a token bucket.
type Remote struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	log        logrus.FieldLogger
}

// NewRemote creates a client for the backend described by cfg
func NewRemote(cfg *config.RemoteConfig, log logrus.FieldLogger) *Remote {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Remote{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		limiter:    rate.NewLimiter(limit, burst),
		log:        log.WithField("component", "remote"),
	}
}

// BaseURL returns the backend root.
func (c *Remote) BaseURL() string {
	return c.baseURL
}

// HealthCheck checks if the backend is available
func (c *Remote) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/videos/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, nil)
}

func (c *Remote) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, result)
}

func (c *Remote) delete(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, result)
}

func (c *Remote) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	return c.sendJSON(ctx, http.MethodPost, endpoint, body, result)
}

func (c *Remote) patch(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	return c.sendJSON(ctx, http.MethodPatch, endpoint, body, result)
}

func (c *Remote) sendJSON(ctx context.Context, method, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

// do executes an HTTP request and parses the JSON response into result.
// A nil result discards the body.
func (c *Remote) do(req *http.Request, result interface{}) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	log := c.log.WithFields(logrus.Fields{"method": req.Method, "url": req.URL.String()})
	log.Debug("→ request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Warn("✗ request failed")
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.WithError(err).Warn("✗ failed to read response")
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.WithField("status", resp.StatusCode).Debug("← response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Detail: errorDetail(respBody)}
	}

	if result == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		log.WithError(err).Warnf("✗ unmarshal error (body: %s)", string(respBody))
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// errorDetail extracts {"detail": "..."} or {"message": "..."} from an error
// body, falling back to the raw text.
func errorDetail(body []byte) string {
	var parsed struct {
		Detail  interface{} `json:"detail"`
		Message string      `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if s, ok := parsed.Detail.(string); ok && s != "" {
			return s
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(bytes.TrimSpace(body))
}

func escape(name string) string {
	return url.PathEscape(name)
}
