package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLexiconClassifyAffirmative(t *testing.T) {
	c := LexiconClassifier{}
	assert.Equal(t, Affirmative, c.Classify(context.Background(), "Yes sure", "en"))
	assert.Equal(t, Affirmative, c.Classify(context.Background(), "haan ji theek hai", "hi"))
}

func TestLexiconClassifyNegative(t *testing.T) {
	c := LexiconClassifier{}
	assert.Equal(t, Negative, c.Classify(context.Background(), "No, not now", "en"))
	assert.Equal(t, Negative, c.Classify(context.Background(), "nahi bhai", "hi"))
}

func TestLexiconClassifyUnclear(t *testing.T) {
	c := LexiconClassifier{}
	assert.Equal(t, Unclear, c.Classify(context.Background(), "Umm well you know", "en"))
}

func TestLexiconClassifyEmptyIsUnclear(t *testing.T) {
	c := LexiconClassifier{}
	assert.Equal(t, Unclear, c.Classify(context.Background(), "", "en"))
}
