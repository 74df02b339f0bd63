package codec

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(b byte) []byte {
	f := make([]byte, FrameBytes)
	for i := range f {
		f[i] = b
	}
	return f
}

func TestParseEnvelopeUnknownType(t *testing.T) {
	_, err := ParseEnvelope([]byte(`{"event":"bogus"}`))
	assert.Error(t, err)
}

func TestParseEnvelopeMalformedJSON(t *testing.T) {
	_, err := ParseEnvelope([]byte(`{not json`))
	assert.Error(t, err)
}

func TestDecodeFrameMedia(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString(frame(0x7f))
	raw, _ := json.Marshal(Envelope{
		Event: EnvelopeMedia,
		Media: &MediaPayload{Payload: payload},
	})
	env, err := ParseEnvelope(raw)
	require.NoError(t, err)

	pcm, ctrl, err := DecodeFrame(env)
	require.NoError(t, err)
	assert.Nil(t, ctrl)
	assert.Len(t, pcm, FrameBytes)
}

func TestDecodeFrameWrongSize(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte{1, 2, 3})
	env := &Envelope{Event: EnvelopeMedia, Media: &MediaPayload{Payload: payload}}
	_, _, err := DecodeFrame(env)
	assert.Error(t, err)
}

func TestDecodeFrameControlEvent(t *testing.T) {
	env := &Envelope{Event: EnvelopeStart, CallID: "call-1", StreamSID: "stream-1"}
	pcm, ctrl, err := DecodeFrame(env)
	require.NoError(t, err)
	assert.Nil(t, pcm)
	require.NotNil(t, ctrl)
	assert.Equal(t, "call-1", ctrl.CallID)
	assert.Equal(t, EnvelopeStart, ctrl.Type)
}

func TestEncodeStreamChunking(t *testing.T) {
	pcm := append(frame(1), frame(2)...)
	pcm = append(pcm, []byte{9, 9}...) // partial final chunk

	envs := EncodeStream(pcm, "stream-1", 0, 1000, 20)
	require.Len(t, envs, 3)
	assert.Equal(t, 0, envs[0].Chunk)
	assert.Equal(t, 1, envs[1].Chunk)
	assert.Equal(t, 2, envs[2].Chunk)
	assert.Equal(t, int64(1000), envs[0].TimestampMs)
	assert.Equal(t, int64(1020), envs[1].TimestampMs)
	assert.Equal(t, int64(1040), envs[2].TimestampMs)

	decoded, err := base64.StdEncoding.DecodeString(envs[2].Media.Payload)
	require.NoError(t, err)
	assert.Len(t, decoded, 2)
}

func TestEncodeStreamRoundTrip(t *testing.T) {
	pcm := append(frame(3), frame(4)...)
	envs := EncodeStream(pcm, "s", 0, 0, 20)

	var out []byte
	for _, e := range envs {
		decoded, err := base64.StdEncoding.DecodeString(e.Media.Payload)
		require.NoError(t, err)
		out = append(out, decoded...)
	}
	assert.Equal(t, pcm, out)
}

func TestToWAV(t *testing.T) {
	pcm := frame(5)
	out, err := ToWAV(pcm)
	require.NoError(t, err)
	assert.Greater(t, len(out), len(pcm))
	assert.Equal(t, "RIFF", string(out[:4]))
}
