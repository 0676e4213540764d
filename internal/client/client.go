package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/artworkup/api/internal/model"
)

// ErrNotConfigured is returned when a client is used without credentials.
var ErrNotConfigured = errors.New("client not configured")

// CredentialSource supplies the current provider credentials.
// Credentials can change at runtime, so clients read them per call.
type CredentialSource interface {
	Credentials() model.Credentials
}

// StaticCredentials is a CredentialSource that never changes.
type StaticCredentials model.Credentials

func (s StaticCredentials) Credentials() model.Credentials {
	return model.Credentials(s)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// maxLoggedBody caps how much of a response body ends up in logs and errors.
const maxLoggedBody = 512

// getBody executes a GET and returns the body of a 2xx response.
func getBody(ctx context.Context, httpClient *http.Client, logger *zap.Logger, api, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	logger.Debug("→ request", zap.String("api", api), zap.String("method", req.Method), zap.String("url", redact(req.URL)))

	resp, err := httpClient.Do(req)
	if err != nil {
		logger.Warn("✗ request failed", zap.String("api", api), zap.Error(err))
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	logger.Debug("← response", zap.String("api", api), zap.Int("status", resp.StatusCode), zap.Int("bytes", len(body)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body))}
	}
	return body, nil
}

const userAgent = "artworkup/1.0"

func truncate(s string) string {
	if len(s) > maxLoggedBody {
		return s[:maxLoggedBody] + "..."
	}
	return s
}

// redact hides api keys before a URL is logged.
func redact(u *url.URL) string {
	q := u.Query()
	if q.Has("api_key") {
		q.Set("api_key", "REDACTED")
		cp := *u
		cp.RawQuery = q.Encode()
		return cp.String()
	}
	return u.String()
}
