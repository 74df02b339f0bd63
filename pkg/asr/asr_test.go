package asr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collectline/lcse/pkg/errs"
)

func pcmOf(ms int) []byte {
	return make([]byte, ms*16) // 16 bytes/ms at 8kHz 16-bit mono
}

func TestTranscribeTooShortSkipsNetwork(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	svc := NewHTTPService(Config{
		BaseURL: srv.URL, MaxRetries: 2, RetryDelayMs: 1,
		MinAudioMs: 1000, MinAudioBytes: 500, PerMinute: 20, MinGapMs: 0, Timeout: time.Second,
	})

	_, err := svc.Transcribe(context.Background(), pcmOf(100), "")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindASRInputTooShort))
	assert.False(t, called)
}

func TestTranscribeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"transcript": "haan ji", "language": "hi"})
	}))
	defer srv.Close()

	svc := NewHTTPService(Config{
		BaseURL: srv.URL, MaxRetries: 2, RetryDelayMs: 1,
		MinAudioMs: 1000, MinAudioBytes: 500, PerMinute: 20, MinGapMs: 0, Timeout: time.Second,
	})

	res, err := svc.Transcribe(context.Background(), pcmOf(1000), "hi")
	require.NoError(t, err)
	assert.Equal(t, "haan ji", res.Transcript)
	assert.Equal(t, "hi", res.DetectedLanguage)
}

func TestTranscribeExhaustsRetriesReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := NewHTTPService(Config{
		BaseURL: srv.URL, MaxRetries: 1, RetryDelayMs: 1,
		MinAudioMs: 1000, MinAudioBytes: 500, PerMinute: 20, MinGapMs: 0, Timeout: time.Second,
	})

	res, err := svc.Transcribe(context.Background(), pcmOf(1000), "")
	require.NoError(t, err)
	assert.Empty(t, res.Transcript)
}

func TestTranscribeRateLimitedDenialIsSoftFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"transcript": "hi", "language": "en"})
	}))
	defer srv.Close()

	svc := NewHTTPService(Config{
		BaseURL: srv.URL, MaxRetries: 1, RetryDelayMs: 1,
		MinAudioMs: 1000, MinAudioBytes: 500, PerMinute: 20, MinGapMs: 60000, Timeout: time.Second,
	})

	_, err := svc.Transcribe(context.Background(), pcmOf(1000), "")
	require.NoError(t, err)

	res2, err := svc.Transcribe(context.Background(), pcmOf(1000), "")
	require.NoError(t, err)
	assert.Empty(t, res2.Transcript)
}
