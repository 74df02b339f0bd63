package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/collectline/lcse/pkg/codec"
	"github.com/collectline/lcse/pkg/fsm"
	"github.com/collectline/lcse/pkg/metrics"
)

// Control events (start/stop/closed) are never dropped; utterance events
// are, oldest first, when Dialog falls behind (spec §5).
const utteranceQueueSize = 4

// runIngress reads provider envelopes off the WebSocket connection, feeds
// media frames into the utterance buffer, and emits FSM events on two
// internal channels that mergeEvents fans into the single channel the
// Dialog task consumes.
func (s *Session) runIngress(ctx context.Context, control chan fsm.Event, utterance chan fsm.Event) {
	defer close(control)
	defer close(utterance)

	notify := make(chan struct{}, 1)
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		s.runBufferWatcher(ctx, utterance, notify)
	}()
	defer func() { <-watcherDone }()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.log.Info("ingress websocket closed", zap.Error(err))
			sendControl(ctx, control, fsm.Event{Kind: fsm.EventClosed, CallID: s.callID})
			return
		}

		env, err := codec.ParseEnvelope(raw)
		if err != nil {
			s.log.Warn("dropping malformed envelope", zap.Error(err))
			continue
		}

		pcm, ctrl, err := codec.DecodeFrame(env)
		if err != nil {
			s.log.Warn("dropping malformed frame", zap.Error(err))
			continue
		}

		if ctrl != nil {
			switch ctrl.Type {
			case codec.EnvelopeStart:
				s.streamSID = ctrl.StreamSID
				s.callID = ctrl.CallID
				sendControl(ctx, control, fsm.Event{
					Kind:             fsm.EventStart,
					CallID:           ctrl.CallID,
					StreamSID:        ctrl.StreamSID,
					CustomParameters: ctrl.CustomParameters,
				})
			case codec.EnvelopeStop:
				sendControl(ctx, control, fsm.Event{Kind: fsm.EventStop, CallID: s.callID})
				return
			case codec.EnvelopeConnected:
				// handshake acknowledgement only, no FSM event.
			}
			continue
		}

		s.buf.Append(pcm, time.Now())
		select {
		case notify <- struct{}{}:
		default:
		}
	}
}

// runBufferWatcher wakes at the buffer's next flush deadline (quiet window
// or hard cap) and emits an utterance event when ready. notify lets Ingress
// wake it early whenever a new frame extends the deadline.
func (s *Session) runBufferWatcher(ctx context.Context, utterance chan fsm.Event, notify <-chan struct{}) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		if dl, ok := s.buf.NextDeadline(); ok {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(time.Until(dl))
		}

		select {
		case <-ctx.Done():
			return
		case <-notify:
			continue
		case <-timer.C:
			if !s.buf.Ready(time.Now()) {
				continue
			}
			u, ok := s.buf.Flush()
			if !ok {
				continue
			}
			pushUtterance(ctx, utterance, fsm.Event{
				Kind:       fsm.EventUtterance,
				CallID:     s.callID,
				StreamSID:  s.streamSID,
				PCM:        u.AudioBytes,
				DurationMs: u.DurationMs,
			})
		}
	}
}

func sendControl(ctx context.Context, control chan<- fsm.Event, ev fsm.Event) {
	select {
	case control <- ev:
	case <-ctx.Done():
	}
}

// pushUtterance delivers ev, dropping the oldest queued utterance event
// first if the queue is full (spec §5: "oldest non-flushed frames are
// dropped with a warning" when the ASR backlog builds up).
func pushUtterance(ctx context.Context, utterance chan fsm.Event, ev fsm.Event) {
	for {
		select {
		case utterance <- ev:
			return
		case <-ctx.Done():
			return
		default:
		}

		select {
		case <-utterance:
			metrics.IngressFramesDropped.Inc()
		default:
			select {
			case utterance <- ev:
			case <-ctx.Done():
			}
			return
		}
	}
}
