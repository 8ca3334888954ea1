package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relaykit/relay/config"
	"github.com/relaykit/relay/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "test")
}

func newTestClient(t *testing.T, baseURL string, attempts int) *Client {
	t.Helper()
	client, err := NewClient(config.APIConfig{
		BaseURL:        baseURL,
		APIKey:         "test-key",
		TimeoutSeconds: 5,
		RetryAttempts:  attempts,
	}, testLogger())
	require.NoError(t, err)
	// No real waiting in tests
	client.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return client
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(config.APIConfig{}, testLogger())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeAPIConfig, errors.GetCode(err))

	// Dry run does not need a base URL
	_, err = NewClient(config.APIConfig{DryRun: true}, testLogger())
	require.NoError(t, err)
}

func TestPushSuccess(t *testing.T) {
	var gotKey, gotCookie string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Relay-Key")
		gotCookie = r.Header.Get("Cookie")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{"conversation_id": "c1", "new_messages": 3})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 3)
	res := client.Push(context.Background(), http.MethodPut, "/conversations/c1/history", map[string]any{"history": []string{}})

	assert.True(t, res.Success)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "test-key", gotKey)
	assert.Empty(t, gotCookie, "cookie must not be sent when an API key is configured")

	echo, err := DecodeConversationResponse(res)
	require.NoError(t, err)
	assert.Equal(t, "c1", echo.ConversationID)
	assert.Equal(t, 3, echo.NewMessages)
}

func TestPushCookieAuthWhenNoAPIKey(t *testing.T) {
	var gotCookie string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(config.APIConfig{
		BaseURL: server.URL,
		Cookie:  "session=abc",
	}, testLogger())
	require.NoError(t, err)
	client.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	res := client.Push(context.Background(), http.MethodPost, "/sessions/status", map[string]string{"status": "started"})
	assert.True(t, res.Success)
	assert.Equal(t, "session=abc", gotCookie)
}

func TestPushNonRetryableShortCircuits(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 3)
	res := client.Push(context.Background(), http.MethodPost, "/sessions/status", nil)

	assert.False(t, res.Success)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, int32(1), calls.Load(), "401 must not be retried")
}

func TestPushRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 3)
	res := client.Push(context.Background(), http.MethodPost, "/sessions/status", nil)

	assert.True(t, res.Success)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPushExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 2)
	res := client.Push(context.Background(), http.MethodPost, "/sessions/status", nil)

	assert.False(t, res.Success)
	assert.Equal(t, http.StatusBadGateway, res.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPushDryRun(t *testing.T) {
	client, err := NewClient(config.APIConfig{DryRun: true}, testLogger())
	require.NoError(t, err)

	res := client.Push(context.Background(), http.MethodPost, "/sessions/status", map[string]string{"status": "started"})
	assert.True(t, res.Success)
	assert.Equal(t, "dry run", res.Message)
}

func TestBackoffScheduleClamped(t *testing.T) {
	var waits []time.Duration
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 5)
	client.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	client.Push(context.Background(), http.MethodPost, "/x", nil)

	require.Len(t, waits, 4)
	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		5 * time.Second,
		5 * time.Second, // clamped to the last table entry
	}, waits)
}
