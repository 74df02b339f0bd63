// Package tts implements the TTS Adapter (spec §4.4): synthesizes 8kHz
// 16-bit mono PCM from text in a target language, with voice selection per
// language, rate limiting, and a processing-tail helper giving the same
// max(minimum tail, half the audio) delay that the FSM computes for itself
// after each playback before it accepts replies again.
package tts

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/collectline/lcse/pkg/codec"
	"github.com/collectline/lcse/pkg/errs"
	"github.com/collectline/lcse/pkg/logger"
	"github.com/collectline/lcse/pkg/metrics"
)

// voiceByLanguage is the fixed, implementation-defined voice mapping (spec
// §9 open question); it can evolve without affecting the engine contract.
var voiceByLanguage = map[string]string{
	"en": "en-US-Standard",
	"hi": "hi-IN-Standard",
	"ta": "ta-IN-Standard",
	"te": "te-IN-Standard",
	"kn": "kn-IN-Standard",
	"ml": "ml-IN-Standard",
	"gu": "gu-IN-Standard",
	"mr": "mr-IN-Standard",
	"bn": "bn-IN-Standard",
	"pa": "pa-IN-Standard",
	"or": "or-IN-Standard",
}

const fallbackLanguage = "en"

// Config controls pacing and rate limiting (spec §6).
type Config struct {
	BaseURL          string
	APIKey           string
	ChunkMs          int
	ProcessingTailMs int
	PerMinute        int
	Timeout          time.Duration
}

// Service is the TTS Adapter capability interface (spec §9).
type Service interface {
	Synthesize(ctx context.Context, text, language string) ([]byte, string, error)
}

// HTTPService calls a single remote TTS provider over HTTP via resty.
type HTTPService struct {
	cfg     Config
	client  *resty.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

func NewHTTPService(cfg Config) *HTTPService {
	perMinute := cfg.PerMinute
	if perMinute <= 0 {
		perMinute = 60
	}
	return &HTTPService{
		cfg: cfg,
		client: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetHeader("Authorization", "Bearer "+cfg.APIKey),
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 5),
		log:     logger.Named("tts"),
	}
}

// Synthesize returns PCM bytes and the voice language actually used (which
// falls back to English when language is unsupported). Fails only if both
// the requested-language call and the English fallback call error.
func (s *HTTPService) Synthesize(ctx context.Context, text, language string) ([]byte, string, error) {
	voice, ok := voiceByLanguage[language]
	lang := language
	if !ok {
		voice = voiceByLanguage[fallbackLanguage]
		lang = fallbackLanguage
	}

	pcm, err := s.call(ctx, text, lang, voice)
	if err == nil {
		return pcm, lang, nil
	}
	s.log.Warn("tts failed, retrying in english", zap.String("language", language), zap.Error(err))

	if lang != fallbackLanguage {
		pcm, err2 := s.call(ctx, text, fallbackLanguage, voiceByLanguage[fallbackLanguage])
		if err2 == nil {
			return pcm, fallbackLanguage, nil
		}
		metrics.TTSFailures.Inc()
		return nil, "", errs.TTSFailure("tts", language, err2)
	}
	metrics.TTSFailures.Inc()
	return nil, "", errs.TTSFailure("tts", language, err)
}

func (s *HTTPService) call(ctx context.Context, text, language, voice string) ([]byte, error) {
	if !s.limiter.Allow() {
		return nil, fmt.Errorf("tts: rate limiter denied call")
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"text": text, "language": language, "voice": voice}).
		Post("/v1/synthesize")
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("tts: unexpected status %d", resp.StatusCode())
	}
	// The provider may respond with a WAV container instead of raw PCM
	// (spec §4.4); normalize before handing the bytes to Egress.
	return codec.DecodeContainer(resp.Body())
}

// ProcessingTailMs computes the delay added after TTS playback completes,
// before ASR is re-enabled: the larger of the configured minimum and half
// the audio duration (spec §4.4).
func ProcessingTailMs(audioMs, minTailMs int) int {
	half := audioMs / 2
	if half > minTailMs {
		return half
	}
	return minTailMs
}

// ChunkBoundaries reports the byte offsets at which a PCM buffer splits into
// chunkBytes-sized chunks; the final chunk may be shorter. The Audio Codec's
// EncodeStream does its own fixed-size split and does not call this.
func ChunkBoundaries(pcm []byte, chunkBytes int) []int {
	var bounds []int
	for offset := chunkBytes; offset < len(pcm); offset += chunkBytes {
		bounds = append(bounds, offset)
	}
	return bounds
}
