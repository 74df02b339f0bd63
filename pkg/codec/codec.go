// Package codec translates between the telephony provider's JSON envelope
// format and internal PCM buffers (spec §4.1, §6).
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	wav "github.com/youpy/go-wav"

	"github.com/collectline/lcse/pkg/errs"
)

const (
	// FrameBytes is the size of one 20ms 8kHz 16-bit mono PCM frame.
	FrameBytes = 320

	sampleRate    = 8000
	bitsPerSample = 16
	numChannels   = 1
)

// EnvelopeType enumerates the provider's inbound/outbound message types.
type EnvelopeType string

const (
	EnvelopeConnected EnvelopeType = "connected"
	EnvelopeStart     EnvelopeType = "start"
	EnvelopeMedia     EnvelopeType = "media"
	EnvelopeStop      EnvelopeType = "stop"
)

// Envelope is the generic shape of a provider WebSocket message (spec §6).
type Envelope struct {
	Event             EnvelopeType      `json:"event"`
	StreamSID         string            `json:"stream_sid,omitempty"`
	CallID            string            `json:"call_id,omitempty"`
	CustomParameters  map[string]string `json:"custom_parameters,omitempty"`
	Media             *MediaPayload     `json:"media,omitempty"`
	Track             string            `json:"track,omitempty"`
	Chunk             int               `json:"chunk,omitempty"`
	TimestampMs       int64             `json:"timestamp_ms,omitempty"`
}

// MediaPayload carries the base64 PCM payload of a media envelope.
type MediaPayload struct {
	Payload string `json:"payload"`
}

// ControlEvent is returned by DecodeFrame for non-media envelopes.
type ControlEvent struct {
	Type             EnvelopeType
	CallID           string
	StreamSID        string
	CustomParameters map[string]string
}

// ParseEnvelope unmarshals a raw inbound WebSocket message.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errs.ProviderTransport("codec", "malformed envelope json", err)
	}
	switch env.Event {
	case EnvelopeConnected, EnvelopeStart, EnvelopeMedia, EnvelopeStop:
		return &env, nil
	default:
		return nil, errs.ProviderTransport("codec", fmt.Sprintf("unknown envelope type %q", env.Event), nil)
	}
}

// DecodeFrame returns the PCM bytes of a media envelope, or a ControlEvent
// for connected/start/stop envelopes.
func DecodeFrame(env *Envelope) ([]byte, *ControlEvent, error) {
	if env.Event != EnvelopeMedia {
		return nil, &ControlEvent{
			Type:             env.Event,
			CallID:           env.CallID,
			StreamSID:        env.StreamSID,
			CustomParameters: env.CustomParameters,
		}, nil
	}
	if env.Media == nil {
		return nil, nil, errs.ProviderTransport("codec", "media envelope missing payload", nil)
	}
	pcm, err := base64.StdEncoding.DecodeString(env.Media.Payload)
	if err != nil {
		return nil, nil, errs.ProviderTransport("codec", "malformed base64 payload", err)
	}
	if len(pcm) != FrameBytes {
		return nil, nil, errs.ProviderTransport("codec", fmt.Sprintf("wrong frame size: got %d bytes, want %d", len(pcm), FrameBytes), nil)
	}
	return pcm, nil, nil
}

// EncodeStream splits pcm into 320-byte outbound media envelopes, with an
// incrementing chunk index and monotonically increasing timestamp. Pacing at
// emission time is the caller's responsibility; this only formats.
func EncodeStream(pcm []byte, streamSID string, startChunk int, startTimestampMs int64, chunkMs int64) []Envelope {
	var envs []Envelope
	chunk := startChunk
	ts := startTimestampMs
	for offset := 0; offset < len(pcm); offset += FrameBytes {
		end := offset + FrameBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		payload := base64.StdEncoding.EncodeToString(pcm[offset:end])
		envs = append(envs, Envelope{
			Event:       EnvelopeMedia,
			StreamSID:   streamSID,
			Track:       "outbound",
			Chunk:       chunk,
			TimestampMs: ts,
			Media:       &MediaPayload{Payload: payload},
		})
		chunk++
		ts += chunkMs
	}
	return envs
}

// ToWAV wraps 8kHz 16-bit mono PCM as a WAV container for adapters that
// require a file format instead of a raw PCM stream.
func ToWAV(pcm []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := wav.NewWriter(&buf, uint32(len(pcm)/2), numChannels, sampleRate, bitsPerSample)
	if _, err := writer.Write(pcm); err != nil {
		return nil, fmt.Errorf("codec: writing wav: %w", err)
	}
	return buf.Bytes(), nil
}

// FromWAV decodes a WAV container down to raw 16-bit little-endian PCM
// samples, the reverse of ToWAV.
func FromWAV(data []byte) ([]byte, error) {
	reader := wav.NewReader(bytes.NewReader(data))
	var pcm []byte
	sample := make([]byte, 2)
	for {
		samples, err := reader.ReadSamples()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.ProviderTransport("codec", "decoding wav container", err)
		}
		for _, s := range samples {
			binary.LittleEndian.PutUint16(sample, uint16(int16(reader.IntValue(s, 0))))
			pcm = append(pcm, sample...)
		}
	}
	return pcm, nil
}

// DecodeContainer normalizes a TTS provider's audio response to raw PCM
// (spec §4.4): a WAV container is decoded; a leading "RIFF" is the only
// container format this dependency set can parse (there is no MP3 decoder
// anywhere in the example pack this engine draws from), so an MP3-looking
// response (an ID3 tag or an MPEG frame sync) is rejected rather than
// silently passed through as garbage PCM. Anything else is assumed to
// already be raw PCM.
func DecodeContainer(data []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return FromWAV(data)
	case bytes.HasPrefix(data, []byte("ID3")),
		len(data) > 1 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return nil, errs.TTSFailure("codec", "", fmt.Errorf("mp3 container response not supported"))
	default:
		return data, nil
	}
}
