// Package intent implements the Intent Classifier (spec §4.7): classifies a
// short reply to the agent-connect question as affirmative, negative, or
// unclear, using a constrained LLM prompt with a deterministic lexicon
// fallback. Only consulted in the WAITING_AGENT_RESPONSE stage.
package intent

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/collectline/lcse/pkg/errs"
	"github.com/collectline/lcse/pkg/logger"
)

// Intent is one of the three classification outcomes (spec §3).
type Intent string

const (
	Affirmative Intent = "affirmative"
	Negative    Intent = "negative"
	Unclear     Intent = "unclear"
)

const systemPrompt = "You classify a short spoken reply as exactly one of: affirmative, negative, unclear. Respond with a single word from that set only."

var affirmativeLexicon = map[string]bool{
	"yes": true, "yeah": true, "sure": true, "okay": true, "ok": true,
	"haan": true, "han": true, "ji": true, "theek": true, "bilkul": true,
	"aamam": true, "haudu": true, "sari": true, "correct": true,
	"हाँ": true, "हां": true, "जी": true, "ठीक": true,
}

var negativeLexicon = map[string]bool{
	"no": true, "nahi": true, "nope": true, "illa": true, "nahin": true,
	"vendam": true, "beda": true, "cannot": true, "dont": true,
	"नहीं": true, "नही": true,
}

// Classifier is the Intent Classifier capability interface (spec §9).
type Classifier interface {
	Classify(ctx context.Context, transcript, language string) Intent
}

// LLMClassifier calls a remote LLM with a lexicon fallback (spec §4.7).
type LLMClassifier struct {
	client *openai.Client
	model  string
	log    *zap.Logger
}

func NewLLMClassifier(apiKey, baseURL, model string) *LLMClassifier {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &LLMClassifier{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		log:    logger.Named("intent"),
	}
}

// Classify tries the LLM first, falling back to the lexicon on any error or
// unparseable response (spec §4.7).
func (c *LLMClassifier) Classify(ctx context.Context, transcript, language string) Intent {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
		MaxTokens:   4,
		Temperature: 0,
	})
	if err != nil {
		c.log.Warn("llm intent call failed, falling back to lexicon", zap.Error(errs.LLMTransient("intent", err)))
		return lexiconClassify(transcript)
	}
	if len(resp.Choices) == 0 {
		return lexiconClassify(transcript)
	}

	word := strings.ToLower(strings.TrimSpace(resp.Choices[0].Message.Content))
	switch Intent(word) {
	case Affirmative, Negative, Unclear:
		return Intent(word)
	default:
		return lexiconClassify(transcript)
	}
}

// lexiconClassify is the deterministic fallback: token-based lexicon match
// in English and the major Indic languages (spec §4.7).
func lexiconClassify(transcript string) Intent {
	tokens := strings.Fields(strings.ToLower(transcript))
	for _, tok := range tokens {
		tok = strings.Trim(tok, ".,!?")
		if affirmativeLexicon[tok] {
			return Affirmative
		}
	}
	for _, tok := range tokens {
		tok = strings.Trim(tok, ".,!?")
		if negativeLexicon[tok] {
			return Negative
		}
	}
	return Unclear
}

// LexiconClassifier is a pure-lexicon Classifier, used directly by the FSM
// where spec §4.10 calls for "a lexicon (not the LLM)" — the confirmation
// decision point — as opposed to the agent-question decision point, which
// uses LLMClassifier.
type LexiconClassifier struct{}

func (LexiconClassifier) Classify(_ context.Context, transcript, _ string) Intent {
	return lexiconClassify(transcript)
}
