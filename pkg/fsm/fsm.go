// Package fsm implements the Call Session FSM (spec §4.10): the
// deterministic state machine that orchestrates the Audio Codec, Utterance
// Buffer output, ASR, Language Resolver, Templates, Intent Classifier,
// Transfer Client, and Session Store for one call.
package fsm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/collectline/lcse/internal/models"
	"github.com/collectline/lcse/pkg/errs"
	"github.com/collectline/lcse/pkg/logger"
	"github.com/collectline/lcse/pkg/metrics"
)

const defaultResolveContextGrace = 10 * time.Second
const defaultResolveContextPoll = 500 * time.Millisecond

// Deps bundles every capability injected into the Engine at construction,
// per spec §9: no implicit singletons.
type Deps struct {
	ASR               ASRService
	TTS               TTSService
	ConfirmClassifier IntentClassifier
	AgentClassifier   IntentClassifier
	Transfer          TransferClient
	Store             SessionStore
	Records           RecordWriter
	Render            Renderer
	Language          LanguageResolver
}

// Engine drives a single call's FSM. It holds only channels to Ingress and
// Egress, never direct references to their internals (spec §9).
type Engine struct {
	cfg  Config
	deps Deps
	log  *zap.Logger

	session  *models.CallSession
	summary  []string
	audioOut chan<- []byte

	// declineOutcomeOverride lets a prior stage (a failed transfer) choose
	// what the SPEAKING_DECLINE_GOODBYE detour should record as the final
	// outcome, instead of always recording "declined".
	declineOutcomeOverride models.Outcome
}

// New constructs an Engine for one call. audioOut is the bounded queue the
// Egress task drains (spec §5); writes to it block, which is how Dialog
// pauses TTS production when Egress falls behind.
func New(cfg Config, deps Deps, audioOut chan<- []byte) *Engine {
	if cfg.ResolveContextGrace == 0 {
		cfg.ResolveContextGrace = defaultResolveContextGrace
	}
	if cfg.ResolveContextPoll == 0 {
		cfg.ResolveContextPoll = defaultResolveContextPoll
	}
	return &Engine{
		cfg:      cfg,
		deps:     deps,
		log:      logger.Named("fsm"),
		audioOut: audioOut,
	}
}

type waitOutcome int

const (
	outcomeEvent waitOutcome = iota
	outcomeTimedOut
	outcomeGlobalTimeout
	outcomeCancelled
)

// Run executes the FSM from AWAIT_START to END, consuming events from the
// bounded queue Ingress feeds. It returns the terminal outcome.
func (e *Engine) Run(ctx context.Context, events <-chan Event) models.Outcome {
	e.session = &models.CallSession{Stage: models.StageAwaitStart, StartedAt: time.Now()}

	deadline := time.NewTimer(e.cfg.MaxDuration)
	defer deadline.Stop()

	for {
		var outcome models.Outcome
		var done bool

		stage := e.session.Stage
		stageStart := time.Now()

		switch e.session.Stage {
		case models.StageAwaitStart:
			outcome, done = e.runAwaitStart(ctx, events, deadline.C)
		case models.StageResolveContext:
			outcome, done = e.runResolveContext(ctx, events, deadline.C)
		case models.StageSpeakingGreeting:
			outcome, done = e.runSpeakingGreeting(ctx, events, deadline.C)
		case models.StageWaitingConfirmation:
			outcome, done = e.runWaitingConfirmation(ctx, events, deadline.C)
		case models.StageSpeakingRegreeting:
			outcome, done = e.runSpeakingRegreeting(ctx, events, deadline.C)
		case models.StageSpeakingEMI1:
			outcome, done = e.runSpeakingEMI1(ctx, events, deadline.C)
		case models.StageSpeakingEMI2:
			outcome, done = e.runSpeakingEMI2(ctx, events, deadline.C)
		case models.StageSpeakingAgentQuest:
			outcome, done = e.runSpeakingAgentQuestion(ctx, events, deadline.C)
		case models.StageWaitingAgentResponse:
			outcome, done = e.runWaitingAgentResponse(ctx, events, deadline.C)
		case models.StageTransferring:
			outcome, done = e.runTransferring(ctx, events, deadline.C)
		case models.StageSpeakingDecline:
			outcome, done = e.runSpeakingDeclineGoodbye(ctx, events, deadline.C, e.takeDeclineOutcome())
		default:
			outcome, done = models.OutcomeFailed, true
		}

		metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(stageStart).Seconds())

		if done {
			return e.finish(ctx, outcome)
		}
	}
}

// takeDeclineOutcome lets a prior stage (a failed transfer) choose what the
// SPEAKING_DECLINE_GOODBYE detour should record as the final outcome,
// instead of always recording "declined".
func (e *Engine) takeDeclineOutcome() models.Outcome {
	if e.declineOutcomeOverride != "" {
		o := e.declineOutcomeOverride
		e.declineOutcomeOverride = ""
		return o
	}
	return models.OutcomeDeclined
}

// awaitEvent blocks until an event arrives, the per-stage timeout elapses,
// the global call deadline fires, or ctx is cancelled. timeout of zero
// disables the per-stage timer (used in stages with no input wait).
func (e *Engine) awaitEvent(ctx context.Context, events <-chan Event, timeout time.Duration, deadline <-chan time.Time) (Event, waitOutcome) {
	var timerC <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timerC = t.C
	}
	select {
	case <-ctx.Done():
		return Event{}, outcomeCancelled
	case <-deadline:
		return Event{}, outcomeGlobalTimeout
	case <-timerC:
		return Event{}, outcomeTimedOut
	case ev, ok := <-events:
		if !ok {
			return Event{}, outcomeCancelled
		}
		return ev, outcomeEvent
	}
}

// Summary returns the human-readable trace of stage transitions recorded
// during Run, mirroring what was persisted as the CallRecord's summary
// field. Useful for tests asserting on the path the FSM actually took.
func (e *Engine) Summary() []string {
	return e.summary
}

func (e *Engine) note(format string, args ...interface{}) {
	e.summary = append(e.summary, fmt.Sprintf(format, args...))
}

func (e *Engine) persist(ctx context.Context, outcome models.Outcome) {
	if e.deps.Records == nil {
		return
	}
	rec := models.CallRecord{
		CallID:          e.session.CallID,
		Stage:           string(e.session.Stage),
		CurrentLanguage: e.session.CurrentLanguage,
		InitialLanguage: e.session.InitialLanguage,
		StartedAt:       e.session.StartedAt,
		EndedAt:         e.session.EndedAt,
		Outcome:         string(outcome),
		Summary:         strings.Join(e.summary, "; "),
	}
	if err := e.deps.Records.Upsert(ctx, rec); err != nil {
		e.log.Warn("call record upsert failed", zap.Error(err))
	}
}

// finish transitions to END, writes the final record, and returns the
// outcome.
func (e *Engine) finish(ctx context.Context, outcome models.Outcome) models.Outcome {
	now := time.Now()
	e.session.Stage = models.StageEnd
	e.session.EndedAt = &now
	e.note("ended with outcome %s", outcome)
	e.persist(ctx, outcome)
	if e.deps.Store != nil && e.session.CallID != "" {
		_ = e.deps.Store.Delete(ctx, e.session.CallID)
	}
	return outcome
}

// --- AWAIT_START ---

func (e *Engine) runAwaitStart(ctx context.Context, events <-chan Event, deadline <-chan time.Time) (models.Outcome, bool) {
	for {
		ev, wo := e.awaitEvent(ctx, events, 0, deadline)
		switch wo {
		case outcomeCancelled:
			return models.OutcomeFailed, true
		case outcomeGlobalTimeout:
			return models.OutcomeTimeout, true
		case outcomeEvent:
			switch ev.Kind {
			case EventStart:
				if ev.CallID == "" {
					continue
				}
				e.session.CallID = ev.CallID
				e.session.StreamSID = ev.StreamSID
				e.session.Phone = ev.CustomParameters["phone"]
				e.note("received start for call %s", ev.CallID)
				e.session.Stage = models.StageResolveContext
				return "", false
			case EventStop, EventClosed:
				return models.OutcomeFailed, true
			default:
				continue
			}
		}
	}
}

// --- RESOLVE_CONTEXT ---

func (e *Engine) runResolveContext(ctx context.Context, events <-chan Event, deadline <-chan time.Time) (models.Outcome, bool) {
	if snap, ok := e.tryResolve(ctx); ok {
		e.enterGreeting(snap)
		return "", false
	}

	elapsed := time.Duration(0)
	for elapsed < e.cfg.ResolveContextGrace {
		ev, wo := e.awaitEvent(ctx, events, e.cfg.ResolveContextPoll, deadline)
		switch wo {
		case outcomeCancelled:
			return models.OutcomeFailed, true
		case outcomeGlobalTimeout:
			return models.OutcomeTimeout, true
		case outcomeEvent:
			if ev.Kind == EventStart && ev.CallID != e.session.CallID {
				e.log.Warn("resolve_context", zap.Error(errs.SessionProtocol("fsm", "duplicate/mismatched start")))
				return models.OutcomeFailed, true
			}
			if ev.Kind == EventStop || ev.Kind == EventClosed {
				return models.OutcomeFailed, true
			}
		case outcomeTimedOut:
			elapsed += e.cfg.ResolveContextPoll
		}
		if snap, ok := e.tryResolve(ctx); ok {
			e.enterGreeting(snap)
			return "", false
		}
	}

	if e.deps.Store != nil && e.session.Phone != "" {
		if snap, err := e.deps.Store.LookupByPhone(ctx, e.session.Phone); err == nil {
			e.enterGreeting(snap)
			return "", false
		}
	}

	e.log.Warn("resolve_context grace period exhausted", zap.Error(errs.MissingContext("fsm", e.session.CallID)))
	return models.OutcomeMissingContext, true
}

func (e *Engine) tryResolve(ctx context.Context) (models.Customer, bool) {
	if e.deps.Store == nil {
		return models.Customer{}, false
	}
	snap, err := e.deps.Store.Get(ctx, e.session.CallID)
	if err == nil {
		return snap, true
	}
	return models.Customer{}, false
}

func (e *Engine) enterGreeting(snap models.Customer) {
	e.session.Customer = snap
	lang := e.deps.Language.ResolveState(snap.State, e.cfg.StateMap)
	e.session.InitialLanguage = lang
	e.session.CurrentLanguage = lang
	e.note("resolved context, initial language %s", lang)
	e.session.Stage = models.StageSpeakingGreeting
}

// --- speak helper ---

// speak renders a template, synthesizes it, hands the PCM to Egress, and
// waits out the playback duration plus processing tail. A SPEAKING_* stage
// never decodes inbound audio into a transcript (spec §4.10), but a
// stop/closed signal arriving mid-playback still must end the call once
// the in-flight TTS finishes (spec.md:185,190), so it is tracked rather
// than discarded.
func (e *Engine) speak(ctx context.Context, events <-chan Event, deadline <-chan time.Time, id TemplateID, lang string, params map[string]string) (models.Outcome, bool) {
	text := e.deps.Render(id, lang, params)
	if text == "" {
		return "", false
	}

	pcm, _, err := e.deps.TTS.Synthesize(ctx, text, lang)
	if err != nil {
		e.log.Warn("tts failed for template", zap.String("template", string(id)), zap.Error(err))
		return "", false
	}

	select {
	case e.audioOut <- pcm:
	case <-ctx.Done():
		return models.OutcomeFailed, true
	case <-deadline:
		return models.OutcomeTimeout, true
	}

	audioMs := int(int64(len(pcm)) / 16)
	tailMs := int(e.cfg.TTSMinProcessingTail / time.Millisecond)
	half := audioMs / 2
	tail := tailMs
	if half > tailMs {
		tail = half
	}
	remaining := time.Duration(audioMs+tail) * time.Millisecond

	var endCall bool
	for remaining > 0 {
		start := time.Now()
		ev, wo := e.awaitEvent(ctx, events, remaining, deadline)
		switch wo {
		case outcomeCancelled:
			return models.OutcomeFailed, true
		case outcomeGlobalTimeout:
			e.log.Warn("speak", zap.Error(errs.TimeoutGlobal("fsm", e.session.CallID)))
			return models.OutcomeTimeout, true
		case outcomeTimedOut:
			remaining = 0
		case outcomeEvent:
			if ev.Kind == EventStop || ev.Kind == EventClosed {
				endCall = true
			}
			remaining -= time.Since(start)
		}
	}
	if endCall {
		return models.OutcomeFailed, true
	}
	return "", false
}

// --- SPEAKING_GREETING ---

func (e *Engine) runSpeakingGreeting(ctx context.Context, events <-chan Event, deadline <-chan time.Time) (models.Outcome, bool) {
	params := map[string]string{"name": e.session.Customer.Name}
	if outcome, done := e.speak(ctx, events, deadline, TemplateGreeting, e.session.CurrentLanguage, params); done {
		return outcome, true
	}
	e.note("spoke greeting in %s", e.session.CurrentLanguage)
	e.session.Stage = models.StageWaitingConfirmation
	return "", false
}

// --- WAITING_CONFIRMATION ---

func (e *Engine) runWaitingConfirmation(ctx context.Context, events <-chan Event, deadline <-chan time.Time) (models.Outcome, bool) {
	ev, wo := e.awaitEvent(ctx, events, e.cfg.ConfirmationWait, deadline)
	switch wo {
	case outcomeCancelled:
		return models.OutcomeFailed, true
	case outcomeGlobalTimeout:
		return models.OutcomeTimeout, true
	case outcomeTimedOut:
		return e.retryConfirmation()
	case outcomeEvent:
		switch ev.Kind {
		case EventClosed:
			return models.OutcomeFailed, true
		case EventStop:
			return models.OutcomeFailed, true
		case EventStart:
			return models.OutcomeFailed, true // sessionProtocol: duplicate start
		case EventUtterance:
			return e.handleConfirmationUtterance(ctx, ev)
		}
	}
	return models.OutcomeFailed, true
}

func (e *Engine) handleConfirmationUtterance(ctx context.Context, ev Event) (models.Outcome, bool) {
	transcript, _ := e.transcribe(ctx, ev)
	if transcript == "" {
		return e.retryConfirmation()
	}

	resolved := e.deps.Language.Classify(transcript)
	if resolved != e.session.CurrentLanguage && resolved != e.session.InitialLanguage && !e.session.RegreetingUsed {
		e.session.RegreetingUsed = true
		e.session.LanguageChanges++
		e.session.CurrentLanguage = resolved
		e.session.ConfirmationAttempts = 0
		e.note("language switch detected, regreeting in %s", resolved)
		e.session.Stage = models.StageSpeakingRegreeting
		return "", false
	}

	switch e.deps.ConfirmClassifier.Classify(ctx, transcript, e.session.CurrentLanguage) {
	case IntentAffirmative:
		e.note("confirmation affirmative")
		e.session.Stage = models.StageSpeakingEMI1
		return "", false
	case IntentNegative:
		e.note("confirmation negative")
		e.session.Stage = models.StageSpeakingDecline
		return "", false
	default:
		return e.retryConfirmation()
	}
}

func (e *Engine) retryConfirmation() (models.Outcome, bool) {
	e.session.ConfirmationAttempts++
	if e.session.ConfirmationAttempts > e.cfg.RepeatMax {
		e.note("confirmation retries exhausted")
		e.session.Stage = models.StageSpeakingDecline
		return "", false
	}
	e.note("re-prompting confirmation (attempt %d)", e.session.ConfirmationAttempts)
	e.session.Stage = models.StageSpeakingGreeting
	return "", false
}

// transcribe runs the ASR adapter, treating asrInputTooShort the same as an
// empty transcript (spec §7).
func (e *Engine) transcribe(ctx context.Context, ev Event) (string, string) {
	if e.deps.ASR == nil {
		return "", ""
	}
	result, err := e.deps.ASR.Transcribe(ctx, ev.PCM, e.session.CurrentLanguage)
	if err != nil {
		if !errs.Is(err, errs.KindASRInputTooShort) {
			e.log.Warn("asr call failed", zap.Error(err))
		}
		return "", ""
	}
	return result.Text, result.DetectedLanguage
}

// --- SPEAKING_REGREETING ---

func (e *Engine) runSpeakingRegreeting(ctx context.Context, events <-chan Event, deadline <-chan time.Time) (models.Outcome, bool) {
	params := map[string]string{"name": e.session.Customer.Name}
	if outcome, done := e.speak(ctx, events, deadline, TemplateGreeting, e.session.CurrentLanguage, params); done {
		return outcome, true
	}
	e.note("spoke regreeting in %s", e.session.CurrentLanguage)
	e.session.Stage = models.StageWaitingConfirmation
	return "", false
}

// --- SPEAKING_EMI_1 / SPEAKING_EMI_2 ---

func (e *Engine) runSpeakingEMI1(ctx context.Context, events <-chan Event, deadline <-chan time.Time) (models.Outcome, bool) {
	c := e.session.Customer
	params := map[string]string{
		"loan_id": c.LoanID,
		"amount":  fmt.Sprintf("%.2f", c.OutstandingAmount),
		"due_date": c.DueDate,
	}
	if outcome, done := e.speak(ctx, events, deadline, TemplateEMIPart1, e.session.CurrentLanguage, params); done {
		return outcome, true
	}
	e.session.Stage = models.StageSpeakingEMI2
	return "", false
}

func (e *Engine) runSpeakingEMI2(ctx context.Context, events <-chan Event, deadline <-chan time.Time) (models.Outcome, bool) {
	if outcome, done := e.speak(ctx, events, deadline, TemplateEMIPart2, e.session.CurrentLanguage, nil); done {
		return outcome, true
	}
	e.note("spoke EMI details")
	e.session.Stage = models.StageSpeakingAgentQuest
	return "", false
}

// --- SPEAKING_AGENT_QUESTION ---

func (e *Engine) runSpeakingAgentQuestion(ctx context.Context, events <-chan Event, deadline <-chan time.Time) (models.Outcome, bool) {
	if outcome, done := e.speak(ctx, events, deadline, TemplateAgentConnect, e.session.CurrentLanguage, nil); done {
		return outcome, true
	}
	e.session.Stage = models.StageWaitingAgentResponse
	return "", false
}

// --- WAITING_AGENT_RESPONSE ---

func (e *Engine) runWaitingAgentResponse(ctx context.Context, events <-chan Event, deadline <-chan time.Time) (models.Outcome, bool) {
	ev, wo := e.awaitEvent(ctx, events, e.cfg.AgentResponseWait, deadline)
	switch wo {
	case outcomeCancelled:
		return models.OutcomeFailed, true
	case outcomeGlobalTimeout:
		return models.OutcomeTimeout, true
	case outcomeTimedOut:
		return e.retryAgentResponse()
	case outcomeEvent:
		switch ev.Kind {
		case EventClosed:
			return models.OutcomeFailed, true
		case EventStop:
			return models.OutcomeFailed, true
		case EventStart:
			return models.OutcomeFailed, true
		case EventUtterance:
			return e.handleAgentResponseUtterance(ctx, ev)
		}
	}
	return models.OutcomeFailed, true
}

func (e *Engine) handleAgentResponseUtterance(ctx context.Context, ev Event) (models.Outcome, bool) {
	transcript, _ := e.transcribe(ctx, ev)
	if transcript == "" {
		return e.retryAgentResponse()
	}

	switch e.deps.AgentClassifier.Classify(ctx, transcript, e.session.CurrentLanguage) {
	case IntentAffirmative:
		e.note("agent question affirmative")
		e.session.Stage = models.StageTransferring
		return "", false
	case IntentNegative:
		e.note("agent question negative")
		e.session.Stage = models.StageSpeakingDecline
		return "", false
	default:
		return e.retryAgentResponse()
	}
}

func (e *Engine) retryAgentResponse() (models.Outcome, bool) {
	e.session.AgentRepeatAttempts++
	if e.session.AgentRepeatAttempts > e.cfg.RepeatMax {
		e.note("agent question retries exhausted, policy=%s", e.cfg.TransferOnRepeatedUnclear)
		if e.cfg.TransferOnRepeatedUnclear == "goodbye" {
			e.session.Stage = models.StageSpeakingDecline
		} else {
			e.session.Stage = models.StageTransferring
		}
		return "", false
	}
	e.note("re-prompting agent question (attempt %d)", e.session.AgentRepeatAttempts)
	e.session.Stage = models.StageSpeakingAgentQuest
	return "", false
}

// --- TRANSFERRING ---

func (e *Engine) runTransferring(ctx context.Context, events <-chan Event, deadline <-chan time.Time) (models.Outcome, bool) {
	outcome, err := e.deps.Transfer.Transfer(ctx, e.session.CallID, e.cfg.AgentNumber)
	if err != nil || !outcome.Success {
		e.log.Warn("transfer failed, falling back to goodbye", zap.Error(err))
		e.declineOutcomeOverride = models.OutcomeFailed
		e.session.Stage = models.StageSpeakingDecline
		return "", false
	}

	e.note("transfer succeeded, reference %s", outcome.ProviderReference)
	if o, done := e.speak(ctx, events, deadline, TemplateTransferNotice, e.session.CurrentLanguage, nil); done {
		return o, true
	}
	return models.OutcomeTransferred, true
}

// --- SPEAKING_DECLINE_GOODBYE ---

func (e *Engine) runSpeakingDeclineGoodbye(ctx context.Context, events <-chan Event, deadline <-chan time.Time, outcome models.Outcome) (models.Outcome, bool) {
	if o, done := e.speak(ctx, events, deadline, TemplateGoodbyeDecline, e.session.CurrentLanguage, nil); done {
		return o, true
	}
	return outcome, true
}
