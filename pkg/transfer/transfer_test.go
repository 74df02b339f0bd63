package transfer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "provider_reference": "ref-1"})
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL, Timeout: time.Second})
	out, err := c.Transfer(context.Background(), "call-1", "+14155550123")
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "ref-1", out.ProviderReference)
}

func TestTransferIdempotentKeyStableForSameCallID(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL, Timeout: time.Second})
	_, err := c.Transfer(context.Background(), "call-1", "+14155550123")
	require.NoError(t, err)
	_, err = c.Transfer(context.Background(), "call-1", "+14155550123")
	require.NoError(t, err)

	require.Len(t, keys, 2)
	assert.Equal(t, keys[0], keys[1])
}

func TestTransferFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL, Timeout: time.Second})
	_, err := c.Transfer(context.Background(), "call-1", "+14155550123")
	assert.Error(t, err)
}
