// Package api provides the retrying HTTP client used to push session
// telemetry to the Relay backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/relaykit/relay/config"
	"github.com/relaykit/relay/errors"
	"github.com/relaykit/relay/version"
	"github.com/sirupsen/logrus"
)

// backoffSchedule is the per-attempt wait before retrying. Attempts past the
// end of the table reuse the last entry.
var backoffSchedule = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
}

// nonRetryableStatus are the client/auth error codes that make further
// attempts pointless.
var nonRetryableStatus = map[int]struct{}{
	http.StatusBadRequest:   {},
	http.StatusUnauthorized: {},
	http.StatusForbidden:    {},
}

// Result is the outcome of pushing one logical unit of data. HTTP-level
// failures are reported here, never as a Go error.
type Result struct {
	Success    bool            `json:"success"`
	StatusCode int             `json:"status_code,omitempty"`
	Message    string          `json:"message"`
	ServerEcho json.RawMessage `json:"server_echo,omitempty"`
}

// Client pushes payloads to the Relay backend with bounded retries.
type Client struct {
	baseURL       string
	apiKey        string
	cookie        string
	timeout       time.Duration
	retryAttempts int
	dryRun        bool

	httpClient *http.Client
	log        *logrus.Entry

	// sleep is a seam for tests; defaults to a context-aware wait.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a client from the API section of the config. A missing
// base URL is a programmer/configuration error unless dry-run is on.
func NewClient(cfg config.APIConfig, log *logrus.Entry) (*Client, error) {
	if cfg.BaseURL == "" && !cfg.DryRun {
		return nil, errors.APIConfig("base_url is required unless dry_run is enabled")
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(config.DefaultTimeoutSeconds) * time.Second
	}
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = config.DefaultRetryAttempts
	}

	return &Client{
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		cookie:        cfg.Cookie,
		timeout:       timeout,
		retryAttempts: attempts,
		dryRun:        cfg.DryRun,
		httpClient:    &http.Client{},
		log:           log,
		sleep:         sleepContext,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Push sends body as JSON to baseURL+path, retrying transient failures per
// the backoff schedule. Client/auth errors (400, 401, 403) short-circuit.
func (c *Client) Push(ctx context.Context, method, path string, body interface{}) Result {
	data, err := json.Marshal(body)
	if err != nil {
		return Result{Success: false, Message: fmt.Sprintf("marshal payload: %v", err)}
	}

	if c.dryRun {
		c.log.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
			"bytes":  len(data),
		}).Info("Dry run: skipping network call")
		c.log.Debugf("Dry run payload: %s", data)
		return Result{Success: true, Message: "dry run"}
	}

	var last Result
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			wait := backoffSchedule[min(attempt-1, len(backoffSchedule)-1)]
			c.log.WithFields(logrus.Fields{
				"attempt": attempt + 1,
				"wait":    wait,
				"path":    path,
			}).Debug("Retrying after backoff")
			if err := c.sleep(ctx, wait); err != nil {
				last.Message = fmt.Sprintf("canceled while waiting to retry: %v", err)
				return last
			}
		}

		last = c.attempt(ctx, method, path, data)
		if last.Success {
			return last
		}
		if _, fatal := nonRetryableStatus[last.StatusCode]; fatal {
			c.log.WithFields(logrus.Fields{
				"status": last.StatusCode,
				"path":   path,
			}).Warn("Non-retryable response, giving up")
			return last
		}
	}

	return last
}

// attempt performs a single request bounded by the configured timeout.
func (c *Client) attempt(ctx context.Context, method, path string, data []byte) Result {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return Result{Success: false, Message: fmt.Sprintf("create request: %v", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	// API key wins over cookie when both are configured
	if c.apiKey != "" {
		req.Header.Set("X-Relay-Key", c.apiKey)
	} else if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}
	req.Header.Set("X-Relay-Client", "relay-cli")
	req.Header.Set("X-Relay-Version", version.Version)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{Success: false, Message: fmt.Sprintf("http request: %v", err)}
	}
	defer resp.Body.Close()

	echo, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		echo = nil
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Result{
			Success:    true,
			StatusCode: resp.StatusCode,
			Message:    "ok",
			ServerEcho: json.RawMessage(echo),
		}
	}

	return Result{
		Success:    false,
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("server returned %d: %s", resp.StatusCode, truncate(string(echo), 200)),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
