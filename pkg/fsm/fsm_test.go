package fsm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collectline/lcse/internal/models"
	"github.com/collectline/lcse/pkg/language"
	"github.com/collectline/lcse/pkg/templates"
)

// --- in-memory fakes (spec §9) ---

type fakeASR struct {
	mu     sync.Mutex
	replies []string // consumed in order; "" means empty transcript
}

func (f *fakeASR) Transcribe(_ context.Context, pcm []byte, _ string) (Transcript, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return Transcript{}, nil
	}
	next := f.replies[0]
	f.replies = f.replies[1:]
	return Transcript{Text: next}, nil
}

type fakeTTS struct{}

func (fakeTTS) Synthesize(_ context.Context, text, language string) ([]byte, string, error) {
	return make([]byte, 32), language, nil // tiny PCM so speak() waits are near-instant
}

type fakeTransfer struct {
	succeed bool
}

func (f fakeTransfer) Transfer(_ context.Context, _ string, _ string) (TransferOutcome, error) {
	return TransferOutcome{Success: f.succeed, ProviderReference: "ref-1"}, nil
}

type fakeStore struct {
	snapshot models.Customer
	hasSnapshot bool
}

func (f fakeStore) Get(_ context.Context, _ string) (models.Customer, error) {
	if f.hasSnapshot {
		return f.snapshot, nil
	}
	return models.Customer{}, assertMissing
}

func (f fakeStore) LookupByPhone(_ context.Context, _ string) (models.Customer, error) {
	return models.Customer{}, assertMissing
}

func (f fakeStore) Delete(_ context.Context, _ string) error { return nil }

var assertMissing = &missingErr{}

type missingErr struct{}

func (*missingErr) Error() string { return "missing" }

type fakeRecords struct {
	mu      sync.Mutex
	records []models.CallRecord
}

func (f *fakeRecords) Upsert(_ context.Context, rec models.CallRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func testConfig() Config {
	return Config{
		StateMap: map[string]string{
			"uttar pradesh": "hi",
		},
		ConfirmationWait:          50 * time.Millisecond,
		AgentResponseWait:         50 * time.Millisecond,
		RepeatMax:                 2,
		MaxDuration:               5 * time.Second,
		AgentNumber:               "+14155550123",
		TransferOnRepeatedUnclear: "transfer",
		TTSMinProcessingTail:      1 * time.Millisecond,
		ResolveContextGrace:       200 * time.Millisecond,
		ResolveContextPoll:        20 * time.Millisecond,
	}
}

func testRender(id TemplateID, lang string, params map[string]string) string {
	return templates.Render(templates.ID(id), lang, params)
}

var testLanguage = LanguageResolver{
	ResolveState: language.Resolve,
	Classify:     language.Classify,
}

func runEngine(t *testing.T, deps Deps, cfg Config, events chan Event) models.Outcome {
	t.Helper()
	audioOut := make(chan []byte, 64)
	done := make(chan struct{})
	go func() {
		for range audioOut {
		}
		close(done)
	}()

	e := New(cfg, deps, audioOut)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	outcome := e.Run(ctx, events)
	close(audioOut)
	<-done
	return outcome
}

func customerSnapshot() models.Customer {
	return models.Customer{
		Name:              "Rajesh",
		Phone:             "9876543210",
		State:             "Uttar Pradesh",
		LoanID:            "LOAN123",
		OutstandingAmount: 45000,
		DueDate:           "2025-11-20",
	}
}

// Scenario 1: happy path, matched language (spec §8 seed test 1).
func TestHappyPathMatchedLanguage(t *testing.T) {
	events := make(chan Event, 8)
	events <- Event{Kind: EventStart, CallID: "call-1", StreamSID: "stream-1"}

	asrSvc := &fakeASR{replies: []string{"हाँ जी", "जी हाँ"}}
	go func() {
		time.Sleep(5 * time.Millisecond)
		events <- Event{Kind: EventUtterance, PCM: make([]byte, 16000)}
		time.Sleep(5 * time.Millisecond)
		events <- Event{Kind: EventUtterance, PCM: make([]byte, 16000)}
	}()

	deps := Deps{
		ASR:               asrSvc,
		TTS:               fakeTTS{},
		ConfirmClassifier: lexiconFake{},
		AgentClassifier:   lexiconFake{},
		Transfer:          fakeTransfer{succeed: true},
		Store:             fakeStore{snapshot: customerSnapshot(), hasSnapshot: true},
		Records:           &fakeRecords{},
		Render:            testRender,
		Language:          testLanguage,
	}

	outcome := runEngine(t, deps, testConfig(), events)
	assert.Equal(t, models.OutcomeTransferred, outcome)
}

// Scenario 2: language switch (spec §8 seed test 2).
func TestLanguageSwitch(t *testing.T) {
	events := make(chan Event, 8)
	events <- Event{Kind: EventStart, CallID: "call-2", StreamSID: "stream-2"}

	asrSvc := &fakeASR{replies: []string{"Yes", "Yes"}}
	go func() {
		time.Sleep(5 * time.Millisecond)
		events <- Event{Kind: EventUtterance, PCM: make([]byte, 16000)}
		time.Sleep(5 * time.Millisecond)
		events <- Event{Kind: EventUtterance, PCM: make([]byte, 16000)}
	}()

	deps := Deps{
		ASR:               asrSvc,
		TTS:               fakeTTS{},
		ConfirmClassifier: lexiconFake{},
		AgentClassifier:   lexiconFake{},
		Transfer:          fakeTransfer{succeed: true},
		Store:             fakeStore{snapshot: customerSnapshot(), hasSnapshot: true},
		Records:           &fakeRecords{},
		Render:            testRender,
		Language:          testLanguage,
	}

	outcome := runEngine(t, deps, testConfig(), events)
	assert.Equal(t, models.OutcomeTransferred, outcome)
}

// Scenario 3: repeated unclear on agent question -> auto-transfer (spec §8
// seed test 3).
func TestRepeatedUnclearAutoTransfers(t *testing.T) {
	events := make(chan Event, 8)
	events <- Event{Kind: EventStart, CallID: "call-3", StreamSID: "stream-3"}

	asrSvc := &fakeASR{replies: []string{"haan ji", "Umm well you know"}}
	go func() {
		time.Sleep(5 * time.Millisecond)
		events <- Event{Kind: EventUtterance, PCM: make([]byte, 16000)} // confirmation: affirmative
		time.Sleep(5 * time.Millisecond)
		events <- Event{Kind: EventUtterance, PCM: make([]byte, 16000)} // agent q: unclear, 1st
		// silence twice: let the 50ms waits time out twice, consuming retries
	}()

	deps := Deps{
		ASR:               asrSvc,
		TTS:               fakeTTS{},
		ConfirmClassifier: lexiconFake{},
		AgentClassifier:   lexiconFake{},
		Transfer:          fakeTransfer{succeed: true},
		Store:             fakeStore{snapshot: customerSnapshot(), hasSnapshot: true},
		Records:           &fakeRecords{},
		Render:            testRender,
		Language:          testLanguage,
	}

	outcome := runEngine(t, deps, testConfig(), events)
	assert.Equal(t, models.OutcomeTransferred, outcome)
}

// Scenario 4: decline (spec §8 seed test 4).
func TestDecline(t *testing.T) {
	events := make(chan Event, 8)
	events <- Event{Kind: EventStart, CallID: "call-4", StreamSID: "stream-4"}

	asrSvc := &fakeASR{replies: []string{"haan ji", "No, not now"}}
	go func() {
		time.Sleep(5 * time.Millisecond)
		events <- Event{Kind: EventUtterance, PCM: make([]byte, 16000)}
		time.Sleep(5 * time.Millisecond)
		events <- Event{Kind: EventUtterance, PCM: make([]byte, 16000)}
	}()

	deps := Deps{
		ASR:               asrSvc,
		TTS:               fakeTTS{},
		ConfirmClassifier: lexiconFake{},
		AgentClassifier:   lexiconFake{},
		Transfer:          fakeTransfer{succeed: true},
		Store:             fakeStore{snapshot: customerSnapshot(), hasSnapshot: true},
		Records:           &fakeRecords{},
		Render:            testRender,
		Language:          testLanguage,
	}

	outcome := runEngine(t, deps, testConfig(), events)
	assert.Equal(t, models.OutcomeDeclined, outcome)
}

// Scenario 5: missing context (spec §8 seed test 5).
func TestMissingContext(t *testing.T) {
	events := make(chan Event, 1)
	events <- Event{Kind: EventStart, CallID: "call-5", StreamSID: "stream-5"}

	deps := Deps{
		ASR:               &fakeASR{},
		TTS:               fakeTTS{},
		ConfirmClassifier: lexiconFake{},
		AgentClassifier:   lexiconFake{},
		Transfer:          fakeTransfer{succeed: true},
		Store:             fakeStore{hasSnapshot: false},
		Records:           &fakeRecords{},
		Render:            testRender,
		Language:          testLanguage,
	}

	outcome := runEngine(t, deps, testConfig(), events)
	assert.Equal(t, models.OutcomeMissingContext, outcome)
}

// Scenario 6: hard-cap cutoff (spec §8 seed test 6).
func TestHardCapCutoff(t *testing.T) {
	events := make(chan Event, 1)
	events <- Event{Kind: EventStart, CallID: "call-6", StreamSID: "stream-6"}

	cfg := testConfig()
	cfg.MaxDuration = 30 * time.Millisecond
	cfg.ConfirmationWait = 10 * time.Second
	cfg.AgentResponseWait = 10 * time.Second

	deps := Deps{
		ASR:               &fakeASR{},
		TTS:               fakeTTS{},
		ConfirmClassifier: lexiconFake{},
		AgentClassifier:   lexiconFake{},
		Transfer:          fakeTransfer{succeed: true},
		Store:             fakeStore{snapshot: customerSnapshot(), hasSnapshot: true},
		Records:           &fakeRecords{},
		Render:            testRender,
		Language:          testLanguage,
	}

	outcome := runEngine(t, deps, cfg, events)
	assert.Equal(t, models.OutcomeTimeout, outcome)
}

// lexiconFake matches whole space-separated words against short word lists,
// like pkg/intent's lexicon classifier, without pulling in pkg/intent's
// LLM client, keeping this package's test dependency surface narrow.
type lexiconFake struct{}

func (lexiconFake) Classify(_ context.Context, transcript, _ string) Intent {
	t := " " + normalize(transcript) + " "
	for _, w := range affirmativeWords {
		if contains(t, " "+w+" ") {
			return IntentAffirmative
		}
	}
	for _, w := range negativeWords {
		if contains(t, " "+w+" ") {
			return IntentNegative
		}
	}
	return IntentUnclear
}

var affirmativeWords = []string{"haan", "yes", "ji", "theek", "sure", "हाँ", "जी"}
var negativeWords = []string{"no", "nahi", "not", "नहीं"}

func normalize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			r = r + ('a' - 'A')
		}
		out = append(out, r)
	}
	return string(out)
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func TestMissingErrSatisfiesError(t *testing.T) {
	require.Error(t, assertMissing)
}
