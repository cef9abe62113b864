// Package rest holds the HTTP clients for the support and e-commerce
// backends.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/lorrc/agent-console/internal/core/errors"
	"github.com/lorrc/agent-console/internal/core/ports"
	"golang.org/x/time/rate"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 4 << 20

// Config holds what every backend client needs.
type Config struct {
	BaseURL string
	// HTTPClient is used for all requests. If nil, one with Timeout is built.
	HTTPClient *http.Client
	Timeout    time.Duration
	// RequestsPerSecond and Burst throttle outgoing requests. Zero disables.
	RequestsPerSecond float64
	Burst             int
	Logger            *slog.Logger
}

// transport is the request plumbing shared by the support and commerce
// clients.
type transport struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	sessions   ports.SessionStore
	logger     *slog.Logger
}

func newTransport(cfg Config, sessions ports.SessionStore, component string) (*transport, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rest: BaseURL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("rest: invalid BaseURL %q: %w", cfg.BaseURL, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &transport{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		limiter:    limiter,
		sessions:   sessions,
		logger:     logger.With("component", component),
	}, nil
}

// errorBody is the error shape both backends use.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// do sends a JSON request and decodes a 2xx body into out. Non-2xx answers
// become *apperrors.APIError carrying the server's message.
func (t *transport) do(ctx context.Context, method, path string, requestBody, out any) error {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	request.Header.Set("Accept", "application/json")
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if t.sessions != nil {
		if session := t.sessions.Current(); session != nil && session.AuthToken != "" {
			request.Header.Set("Authorization", "Bearer "+session.AuthToken)
		}
	}

	start := time.Now()
	response, err := t.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	t.logger.Debug("request completed",
		"method", method,
		"path", path,
		"status", response.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		var body errorBody
		_ = json.Unmarshal(responseBody, &body)
		message := body.Message
		if message == "" {
			message = body.Error
		}
		return apperrors.NewAPIError(method, path, response.StatusCode, message)
	}

	if out == nil || len(bytes.TrimSpace(responseBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("failed to parse %s %s response: %w", method, path, err)
	}
	return nil
}

func escape(segment string) string {
	return url.PathEscape(segment)
}
