package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderGreetingInterpolatesName(t *testing.T) {
	out := Render(Greeting, "en", map[string]string{"name": "Rajesh"})
	assert.Contains(t, out, "Rajesh")
}

func TestRenderFallsBackToEnglishWhenLocaleMissing(t *testing.T) {
	out := Render(EMIPart1, "ta", map[string]string{"loan_id": "LOAN123", "amount": "45000"})
	assert.NotEmpty(t, out)
	assert.Contains(t, out, "outstanding amount")
}

func TestRenderMissingParamIsEmptyStringNotError(t *testing.T) {
	out := Render(Greeting, "en", nil)
	assert.Contains(t, out, "Hello ,")
}

func TestRenderUnknownTemplateIDReturnsEmpty(t *testing.T) {
	out := Render(ID("bogus"), "en", nil)
	assert.Empty(t, out)
}

func TestRenderEMIParts(t *testing.T) {
	out := Render(EMIPart1, "en", map[string]string{"loan_id": "LOAN123", "amount": "45000"})
	assert.Contains(t, out, "LOAN123")
	assert.Contains(t, out, "45000")
}
