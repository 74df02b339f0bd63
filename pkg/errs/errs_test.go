package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	base := errors.New("connection reset")
	e := ASRTransient("asr", base)
	assert.Contains(t, e.Error(), "asr")
	assert.Contains(t, e.Error(), "asrTransient")
	assert.ErrorIs(t, e, base)
}

func TestTerminalKinds(t *testing.T) {
	assert.True(t, MissingContext("store", "call-1").Terminal())
	assert.True(t, TimeoutGlobal("fsm", "call-1").Terminal())
	assert.True(t, SessionProtocol("fsm", "duplicate start").Terminal())
	assert.False(t, ASRTransient("asr", nil).Terminal())
	assert.False(t, TTSFailure("tts", "hi", nil).Terminal())
}

func TestIs(t *testing.T) {
	e := ASRInputTooShort("asr")
	assert.True(t, Is(e, KindASRInputTooShort))
	assert.False(t, Is(e, KindTTSFailure))
	assert.False(t, Is(errors.New("plain"), KindTTSFailure))
}
