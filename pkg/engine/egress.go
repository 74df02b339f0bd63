package engine

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/collectline/lcse/pkg/codec"
)

const frameInterval = 20 * time.Millisecond

// runEgress drains whole-utterance PCM blobs the Dialog task pushes onto
// audioOut, slices each into 320-byte envelopes, and paces emission at
// real-time 20ms cadence so the provider never sees a burst. Mirrors the
// teacher's buffered-writer-with-single-writer-goroutine shape: only this
// goroutine ever calls conn.WriteMessage.
func (s *Session) runEgress(audioOut <-chan []byte) {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for pcm := range audioOut {
		envs := codec.EncodeStream(pcm, s.streamSID, s.nextChunk, s.nextTimestampMs, frameInterval.Milliseconds())
		for _, env := range envs {
			<-ticker.C
			if err := s.writeEnvelope(env); err != nil {
				s.log.Warn("egress write failed", zap.Error(err))
				return
			}
		}
		if n := len(envs); n > 0 {
			s.nextChunk += n
			s.nextTimestampMs += int64(n) * frameInterval.Milliseconds()
		}
	}
}

func (s *Session) writeEnvelope(env codec.Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, raw)
}
