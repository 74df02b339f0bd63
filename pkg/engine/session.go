package engine

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/collectline/lcse/internal/models"
	"github.com/collectline/lcse/pkg/asr"
	"github.com/collectline/lcse/pkg/buffer"
	"github.com/collectline/lcse/pkg/config"
	"github.com/collectline/lcse/pkg/fsm"
	"github.com/collectline/lcse/pkg/intent"
	"github.com/collectline/lcse/pkg/language"
	"github.com/collectline/lcse/pkg/logger"
	"github.com/collectline/lcse/pkg/metrics"
	"github.com/collectline/lcse/pkg/sessionstore"
	"github.com/collectline/lcse/pkg/templates"
	"github.com/collectline/lcse/pkg/transfer"
	"github.com/collectline/lcse/pkg/tts"
)

// Shared holds the process-wide dependencies constructed once at startup
// and reused across every call's Session.
type Shared struct {
	ASR               asr.Service
	TTS               tts.Service
	ConfirmClassifier intent.Classifier
	AgentClassifier   intent.Classifier
	Transfer          transfer.Client
	Store             sessionstore.Store
	Records           fsm.RecordWriter
	Config            *config.Config
}

// Session owns one WebSocket connection and the Ingress/Dialog/Egress tasks
// that drive a single call through pkg/fsm (spec §5).
type Session struct {
	conn   *websocket.Conn
	shared Shared
	log    *zap.Logger

	callID    string
	streamSID string

	buf *buffer.Buffer

	writeMu         sync.Mutex
	nextChunk       int
	nextTimestampMs int64
}

// NewSession wraps an accepted WebSocket connection with a fresh per-call
// buffer and the shared capability adapters.
func NewSession(conn *websocket.Conn, shared Shared) *Session {
	bufCfg := buffer.Config{
		MinUtteranceMs: shared.Config.Buffer.MinUtteranceMs,
		QuietWindowMs:  shared.Config.Buffer.QuietWindowMs,
		HardCapMs:      shared.Config.Buffer.HardCapMs,
	}
	return &Session{
		conn:   conn,
		shared: shared,
		log:    logger.Named("engine"),
		buf:    buffer.New(bufCfg),
	}
}

// Run drives the call to completion: Ingress, a merge stage, Egress, and
// the Dialog (FSM) task run concurrently until the FSM reaches a terminal
// outcome or ctx is cancelled. Returns the terminal outcome.
func (s *Session) Run(ctx context.Context) models.Outcome {
	metrics.ActiveCalls.Inc()
	defer metrics.ActiveCalls.Dec()

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	control := make(chan fsm.Event, 2)
	utterance := make(chan fsm.Event, utteranceQueueSize)
	events := make(chan fsm.Event, 2)
	audioOut := make(chan []byte, 4)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		s.runIngress(callCtx, control, utterance)
	}()
	go func() {
		defer wg.Done()
		mergeEvents(callCtx, control, utterance, events)
	}()
	go func() {
		defer wg.Done()
		s.runEgress(audioOut)
	}()

	deps := fsm.Deps{
		ASR:               asrAdapter{svc: s.shared.ASR},
		TTS:               s.shared.TTS,
		ConfirmClassifier: intentAdapter{classifier: s.shared.ConfirmClassifier},
		AgentClassifier:   intentAdapter{classifier: s.shared.AgentClassifier},
		Transfer:          transferAdapter{client: s.shared.Transfer},
		Store:             s.shared.Store,
		Records:           s.shared.Records,
		Render:            renderTemplate,
		Language:          fsm.LanguageResolver{ResolveState: language.Resolve, Classify: language.Classify},
	}

	metrics.CallsStarted.Inc()
	fsmEngine := fsm.New(fsmConfig(s.shared.Config), deps, audioOut)
	outcome := fsmEngine.Run(callCtx, events)
	metrics.CallOutcomes.WithLabelValues(string(outcome)).Inc()

	if drain := time.Duration(s.shared.Config.Call.DrainDelayMs) * time.Millisecond; drain > 0 {
		time.Sleep(drain)
	}

	cancel()
	close(audioOut)
	_ = s.conn.Close()
	wg.Wait()

	s.log.Info("call finished", zap.String("call_id", s.callID), zap.String("outcome", string(outcome)))
	return outcome
}

func renderTemplate(id fsm.TemplateID, lang string, params map[string]string) string {
	return templates.Render(templates.ID(id), lang, params)
}

func fsmConfig(cfg *config.Config) fsm.Config {
	return fsm.Config{
		StateMap:                  cfg.Language.DefaultStateMap,
		ConfirmationWait:          time.Duration(cfg.Wait.ConfirmationS) * time.Second,
		AgentResponseWait:         time.Duration(cfg.Wait.AgentResponseS) * time.Second,
		RepeatMax:                 cfg.Wait.RepeatMax,
		MaxDuration:               time.Duration(cfg.Call.MaxDurationS) * time.Second,
		AgentNumber:               cfg.Transfer.AgentNumber,
		TransferOnRepeatedUnclear: cfg.Transfer.OnRepeatedUnclear,
		TTSMinProcessingTail:      time.Duration(cfg.TTS.ProcessingTailMs) * time.Millisecond,
	}
}

// mergeEvents fans control and utterance events into a single channel,
// always preferring a pending control event so start/stop/closed signals
// are never starved by a backlog of utterance events.
func mergeEvents(ctx context.Context, control, utterance chan fsm.Event, out chan<- fsm.Event) {
	for control != nil || utterance != nil {
		select {
		case ev, ok := <-control:
			if !ok {
				control = nil
				continue
			}
			forward(ctx, out, ev)
		default:
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-control:
				if !ok {
					control = nil
					continue
				}
				forward(ctx, out, ev)
			case ev, ok := <-utterance:
				if !ok {
					utterance = nil
					continue
				}
				forward(ctx, out, ev)
			}
		}
	}
}

func forward(ctx context.Context, out chan<- fsm.Event, ev fsm.Event) {
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}
