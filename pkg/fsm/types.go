package fsm

import (
	"context"
	"time"

	"github.com/collectline/lcse/internal/models"
)

// EventKind identifies what kind of signal Ingress delivered to the Dialog
// task (spec §5).
type EventKind string

const (
	EventStart     EventKind = "start"
	EventUtterance EventKind = "utterance"
	EventStop      EventKind = "stop"
	EventClosed    EventKind = "closed"
)

// Event is the unit carried on the bounded control/utterance queue between
// Ingress and Dialog (spec §5, §6).
type Event struct {
	Kind             EventKind
	CallID           string
	StreamSID        string
	CustomParameters map[string]string
	PCM              []byte
	DurationMs       int64
}

// Config carries every FSM-relevant option of spec §6, expressed as
// time.Duration so tests can substitute short waits without touching
// production defaults.
type Config struct {
	StateMap                  map[string]string
	ConfirmationWait          time.Duration
	AgentResponseWait         time.Duration
	RepeatMax                 int
	MaxDuration               time.Duration
	AgentNumber               string
	TransferOnRepeatedUnclear string // "transfer" | "goodbye"
	TTSMinProcessingTail      time.Duration
	ResolveContextGrace       time.Duration
	ResolveContextPoll        time.Duration
}

// ASRService is the narrow capability the FSM needs from the ASR Adapter.
type ASRService interface {
	Transcribe(ctx context.Context, pcm []byte, hintLanguage string) (Transcript, error)
}

// Transcript mirrors asr.Result without importing pkg/asr, keeping the FSM
// decoupled from the adapter's HTTP implementation (spec §9 capability
// abstraction).
type Transcript struct {
	Text             string
	DetectedLanguage string
}

// TTSService is the narrow capability the FSM needs from the TTS Adapter.
type TTSService interface {
	Synthesize(ctx context.Context, text, language string) (pcm []byte, usedLanguage string, err error)
}

// Intent mirrors intent.Intent.
type Intent string

const (
	IntentAffirmative Intent = "affirmative"
	IntentNegative    Intent = "negative"
	IntentUnclear     Intent = "unclear"
)

// IntentClassifier is the narrow capability for both the confirmation
// lexicon classifier and the agent-question LLM classifier.
type IntentClassifier interface {
	Classify(ctx context.Context, transcript, language string) Intent
}

// TransferOutcome mirrors transfer.Outcome.
type TransferOutcome struct {
	Success           bool
	ProviderReference string
}

// TransferClient is the narrow capability the FSM needs from the Transfer
// Client.
type TransferClient interface {
	Transfer(ctx context.Context, callID, agentNumber string) (TransferOutcome, error)
}

// SessionStore is the narrow capability the FSM needs from the Session
// Store.
type SessionStore interface {
	Get(ctx context.Context, callID string) (models.Customer, error)
	LookupByPhone(ctx context.Context, phone string) (models.Customer, error)
	Delete(ctx context.Context, callID string) error
}

// RecordWriter persists CallRecord updates. The engine only appends/updates;
// it never queries this store back (spec §6).
type RecordWriter interface {
	Upsert(ctx context.Context, rec models.CallRecord) error
}

// Renderer is the narrow capability the FSM needs from Templates.
type Renderer func(id TemplateID, lang string, params map[string]string) string

// TemplateID mirrors templates.ID.
type TemplateID string

const (
	TemplateGreeting       TemplateID = "greeting"
	TemplateEMIPart1       TemplateID = "emi_part1"
	TemplateEMIPart2       TemplateID = "emi_part2"
	TemplateAgentConnect   TemplateID = "agent_connect"
	TemplateGoodbyeDecline TemplateID = "goodbye_decline"
	TemplateTransferNotice TemplateID = "transfer_notice"
)

// LanguageResolver is the narrow capability the FSM needs from the Language
// Resolver: resolving an initial language from state, and classifying a
// transcript's language.
type LanguageResolver struct {
	ResolveState func(state string, stateMap map[string]string) string
	Classify     func(transcript string) string
}
