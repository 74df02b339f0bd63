// Package engine composes the per-call Ingress/Dialog/Egress pipeline of
// spec §5 around a single WebSocket connection: it decodes provider
// envelopes into FSM events, drives a pkg/fsm.Engine, and paces synthesized
// audio back out over the wire.
//
// The capability adapters below exist because pkg/fsm deliberately declares
// its own narrow, differently-named result types (spec §9) rather than
// importing the concrete adapter packages, so a handful of the concrete
// HTTP-backed services need a one-method shim to satisfy the FSM's
// interfaces. TTS and the session store need no such shim: their method
// signatures already match the FSM's interfaces exactly.
package engine

import (
	"context"

	"github.com/collectline/lcse/pkg/asr"
	"github.com/collectline/lcse/pkg/fsm"
	"github.com/collectline/lcse/pkg/intent"
	"github.com/collectline/lcse/pkg/transfer"
)

type asrAdapter struct {
	svc asr.Service
}

func (a asrAdapter) Transcribe(ctx context.Context, pcm []byte, hintLanguage string) (fsm.Transcript, error) {
	res, err := a.svc.Transcribe(ctx, pcm, hintLanguage)
	if err != nil {
		return fsm.Transcript{}, err
	}
	return fsm.Transcript{Text: res.Transcript, DetectedLanguage: res.DetectedLanguage}, nil
}

type transferAdapter struct {
	client transfer.Client
}

func (a transferAdapter) Transfer(ctx context.Context, callID, agentNumber string) (fsm.TransferOutcome, error) {
	out, err := a.client.Transfer(ctx, callID, agentNumber)
	if err != nil {
		return fsm.TransferOutcome{}, err
	}
	return fsm.TransferOutcome{Success: out.Success, ProviderReference: out.ProviderReference}, nil
}

type intentAdapter struct {
	classifier intent.Classifier
}

func (a intentAdapter) Classify(ctx context.Context, transcript, language string) fsm.Intent {
	switch a.classifier.Classify(ctx, transcript, language) {
	case intent.Affirmative:
		return fsm.IntentAffirmative
	case intent.Negative:
		return fsm.IntentNegative
	default:
		return fsm.IntentUnclear
	}
}
