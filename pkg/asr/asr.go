// Package asr implements the ASR Adapter (spec §4.3): it converts an
// utterance's PCM into a transcript and an optional detected language tag,
// with bounded retries and a process-wide non-blocking rate limiter.
package asr

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/collectline/lcse/pkg/codec"
	"github.com/collectline/lcse/pkg/errs"
	"github.com/collectline/lcse/pkg/logger"
	"github.com/collectline/lcse/pkg/metrics"
)

// Result is the outcome of a transcribe call (spec §3 ASRResult).
type Result struct {
	Transcript       string
	DetectedLanguage string
}

// Config controls retries, minimum viable audio, and rate limiting (spec §6).
type Config struct {
	BaseURL       string
	APIKey        string
	MaxRetries    int
	RetryDelayMs  int
	MinAudioMs    int
	MinAudioBytes int
	PerMinute     int
	MinGapMs      int
	Timeout       time.Duration
}

// Service is the ASR Adapter capability interface (spec §9).
type Service interface {
	Transcribe(ctx context.Context, pcm []byte, hintLanguage string) (Result, error)
}

// HTTPService calls a single remote ASR provider over HTTP via resty, the
// narrowest shape the teacher's own synthesizer adapters use.
type HTTPService struct {
	cfg        Config
	client     *resty.Client
	limiter    *rate.Limiter
	lastCallMu sync.Mutex
	lastCall   time.Time
	log        *zap.Logger
}

func NewHTTPService(cfg Config) *HTTPService {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Authorization", "Bearer "+cfg.APIKey)

	perMinute := cfg.PerMinute
	if perMinute <= 0 {
		perMinute = 20
	}
	return &HTTPService{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
		log:     logger.Named("asr"),
	}
}

// Transcribe implements Service. Below the minimum viable audio, it returns
// an empty transcript without a network call (spec §4.3).
func (s *HTTPService) Transcribe(ctx context.Context, pcm []byte, hintLanguage string) (Result, error) {
	if len(pcm) < s.cfg.MinAudioBytes || durationMs(pcm) < int64(s.cfg.MinAudioMs) {
		return Result{}, errs.ASRInputTooShort("asr")
	}

	if !s.allow() {
		s.log.Warn("asr rate limiter denied call, treating as empty transcript")
		return Result{}, nil
	}

	wav, err := codec.ToWAV(pcm)
	if err != nil {
		return Result{}, errs.ASRTransient("asr", err)
	}

	var lastErr error
	maxRetries := s.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			metrics.ASRRetries.Inc()
			select {
			case <-ctx.Done():
				return Result{}, nil
			case <-time.After(time.Duration(s.cfg.RetryDelayMs) * time.Millisecond):
			}
		}

		var body struct {
			Transcript string `json:"transcript"`
			Language   string `json:"language"`
		}
		resp, err := s.client.R().
			SetContext(ctx).
			SetFileReader("audio", "utterance.wav", bytes.NewReader(wav)).
			SetFormData(map[string]string{"language_hint": hintLanguage}).
			SetResult(&body).
			Post("/v1/transcribe")

		if err == nil && resp.IsSuccess() {
			return Result{Transcript: body.Transcript, DetectedLanguage: body.Language}, nil
		}
		lastErr = err
		if err == nil {
			lastErr = fmt.Errorf("asr: unexpected status %d", resp.StatusCode())
		}
	}

	s.log.Warn("asr exhausted retries, treating as empty transcript", zap.Error(lastErr))
	return Result{}, nil
}

func (s *HTTPService) allow() bool {
	s.lastCallMu.Lock()
	defer s.lastCallMu.Unlock()
	now := time.Now()
	if !now.After(s.lastCall.Add(time.Duration(s.cfg.MinGapMs) * time.Millisecond)) {
		return false
	}
	if !s.limiter.Allow() {
		return false
	}
	s.lastCall = now
	return true
}

func durationMs(pcm []byte) int64 {
	return int64(len(pcm)) / 16
}
