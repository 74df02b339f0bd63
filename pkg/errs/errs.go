// Package errs implements the error taxonomy of the call engine: adapters
// surface typed errors, and only the FSM decides terminality.
package errs

import "fmt"

// Kind is one of the error kinds recognized by the FSM.
type Kind string

const (
	KindProviderTransport Kind = "providerTransport"
	KindASRTransient      Kind = "asrTransient"
	KindASRInputTooShort  Kind = "asrInputTooShort"
	KindLLMTransient      Kind = "llmTransient"
	KindTTSFailure        Kind = "ttsFailure"
	KindTransferFailure   Kind = "transferFailure"
	KindMissingContext    Kind = "missingContext"
	KindTimeoutGlobal     Kind = "timeoutGlobal"
	KindSessionProtocol   Kind = "sessionProtocol"
)

// terminalKinds are always terminal regardless of retry state.
var terminalKinds = map[Kind]bool{
	KindMissingContext:  true,
	KindTimeoutGlobal:   true,
	KindSessionProtocol: true,
}

// Error is a typed adapter error carrying a kind tag the FSM switches on.
type Error struct {
	Kind    Kind
	Service string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s[%s]: %s: %v", e.Service, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Service, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Terminal reports whether this kind always forces a terminal FSM transition,
// independent of retry counters.
func (e *Error) Terminal() bool {
	return terminalKinds[e.Kind]
}

// New builds a typed error of the given kind.
func New(kind Kind, service, message string, err error) *Error {
	return &Error{Kind: kind, Service: service, Message: message, Err: err}
}

func ProviderTransport(service, message string, err error) *Error {
	return New(KindProviderTransport, service, message, err)
}

func ASRTransient(service string, err error) *Error {
	return New(KindASRTransient, service, "asr call failed", err)
}

func ASRInputTooShort(service string) *Error {
	return New(KindASRInputTooShort, service, "utterance below minimum audio threshold", nil)
}

func LLMTransient(service string, err error) *Error {
	return New(KindLLMTransient, service, "intent classification call failed", err)
}

func TTSFailure(service, language string, err error) *Error {
	return New(KindTTSFailure, service, fmt.Sprintf("tts unavailable for language %q", language), err)
}

func TransferFailure(service string, err error) *Error {
	return New(KindTransferFailure, service, "transfer request failed", err)
}

func MissingContext(service, callID string) *Error {
	return New(KindMissingContext, service, fmt.Sprintf("no customer snapshot for call %q after grace period", callID), nil)
}

func TimeoutGlobal(service, callID string) *Error {
	return New(KindTimeoutGlobal, service, fmt.Sprintf("call %q exceeded maximum duration", callID), nil)
}

func SessionProtocol(service, message string) *Error {
	return New(KindSessionProtocol, service, message, nil)
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Kind == kind
}
