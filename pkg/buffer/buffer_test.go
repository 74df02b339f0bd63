package buffer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{MinUtteranceMs: 1000, QuietWindowMs: 600, HardCapMs: 12000}
}

func frames(n int) []byte {
	return make([]byte, n*320)
}

func TestNotReadyBeforeMinDuration(t *testing.T) {
	b := New(testConfig())
	start := time.Now()
	b.Append(frames(5), start) // 5*320 bytes = 100ms

	assert.False(t, b.Ready(start.Add(2*time.Second)))
}

func TestReadyOnQuietWindowAfterMinDuration(t *testing.T) {
	b := New(testConfig())
	start := time.Now()
	b.Append(frames(50), start) // 50*320=16000 bytes = 1000ms

	assert.False(t, b.Ready(start.Add(200*time.Millisecond)))
	assert.True(t, b.Ready(start.Add(700*time.Millisecond)))
}

func TestHardCapForcesFlushRegardlessOfQuiet(t *testing.T) {
	b := New(testConfig())
	start := time.Now()
	b.Append(frames(600), start) // 600*320=192000 bytes = 12000ms

	assert.True(t, b.Ready(start)) // no quiet window needed
}

func TestFlushClearsBuffer(t *testing.T) {
	b := New(testConfig())
	start := time.Now()
	b.Append(frames(50), start)

	u, ok := b.Flush()
	require.True(t, ok)
	assert.Equal(t, int64(1000), u.DurationMs)
	assert.Len(t, u.AudioBytes, 16000)

	_, ok = b.Flush()
	assert.False(t, ok)
}

func TestOneFrameDiscardedBelowMinimum(t *testing.T) {
	b := New(testConfig())
	start := time.Now()
	b.Append(frames(1), start) // one 20ms frame

	assert.False(t, b.Ready(start.Add(5*time.Second)))
}
