package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ADDR", "MODE", "TRANSFER_AGENT_NUMBER", "TRANSFER_ON_REPEATED_UNCLEAR",
		"ASR_MAX_RETRIES", "RATE_ASR_PER_MIN",
	} {
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("TRANSFER_AGENT_NUMBER", "+14155550123")
	defer os.Unsetenv("TRANSFER_AGENT_NUMBER")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.Addr)
	assert.Equal(t, 2, cfg.ASR.MaxRetries)
	assert.Equal(t, 1000, cfg.Buffer.MinUtteranceMs)
	assert.Equal(t, "transfer", cfg.Transfer.OnRepeatedUnclear)
	assert.Equal(t, "hi", cfg.Language.DefaultStateMap["uttar pradesh"])
}

func TestLoadRejectsInvalidAgentNumber(t *testing.T) {
	clearEnv(t)
	os.Setenv("TRANSFER_AGENT_NUMBER", "not-a-number")
	defer os.Unsetenv("TRANSFER_AGENT_NUMBER")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsInvalidRepeatedUnclearPolicy(t *testing.T) {
	clearEnv(t)
	os.Setenv("TRANSFER_AGENT_NUMBER", "+14155550123")
	os.Setenv("TRANSFER_ON_REPEATED_UNCLEAR", "bogus")
	defer os.Unsetenv("TRANSFER_AGENT_NUMBER")
	defer os.Unsetenv("TRANSFER_ON_REPEATED_UNCLEAR")

	_, err := Load()
	assert.Error(t, err)
}
