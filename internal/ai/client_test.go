package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test_Signals tests the pull-endpoint fetch against a stub service.
func Test_Signals(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/signals", r.URL.Path)
			w.Write([]byte(`[
				{"symbol": "BTCUSDT", "signal": "LONG", "confidence": 0.83,
				 "timestamp": 1717243200000, "reasoning": "momentum"},
				{"signal": "short", "confidence": 74, "timestamp": "not a time"}
			]`))
		}))
		defer server.Close()

		client := NewClient(&ClientConfig{BaseURL: server.URL})
		payloads, err := client.Signals(context.Background())
		require.NoError(t, err)
		require.Len(t, payloads, 2)

		assert.Equal(t, "BTCUSDT", payloads[0].Symbol)
		assert.Equal(t, "LONG", payloads[0].Signal)
		assert.InDelta(t, 0.83, payloads[0].Confidence, 1e-9)
		ts, ok := payloads[0].Timestamp.Time()
		require.True(t, ok)
		assert.True(t, time.UnixMilli(1717243200000).Equal(ts))

		// Loosely-typed garbage stays loose here; normalization repairs it
		// downstream instead of dropping the record at the fetch boundary.
		assert.Empty(t, payloads[1].Symbol)
		_, ok = payloads[1].Timestamp.Time()
		assert.False(t, ok)
	})

	t.Run("HTTP error status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := NewClient(&ClientConfig{BaseURL: server.URL})
		_, err := client.Signals(context.Background())
		assert.Error(t, err)
	})

	t.Run("Non-array body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error": "wrong shape"}`))
		}))
		defer server.Close()

		client := NewClient(&ClientConfig{BaseURL: server.URL})
		_, err := client.Signals(context.Background())
		assert.ErrorIs(t, err, ErrBadPayload)
	})
}

// Test_ClientConfig_Defaults tests default endpoint resolution.
func Test_ClientConfig_Defaults(t *testing.T) {
	client := NewClient(nil)
	assert.Equal(t, defaultClientConfig, client.cfg)

	partial := NewClient(&ClientConfig{BaseURL: "http://analysis:9000"})
	assert.Equal(t, "http://analysis:9000", partial.cfg.BaseURL)
	assert.Equal(t, defaultClientConfig.SignalsPath, partial.cfg.SignalsPath)
	assert.Equal(t, defaultClientConfig.StreamURL, partial.cfg.StreamURL)
}
