// Package buffer implements the Utterance Buffer (spec §4.2): it accumulates
// inbound PCM until a complete utterance can be submitted to ASR, using
// inter-arrival gaps rather than voice activity detection to approximate
// silence.
package buffer

import (
	"sync"
	"time"
)

// Utterance is a flushed span of caller audio.
type Utterance struct {
	AudioBytes []byte
	DurationMs int64
	ArrivalAt  time.Time
}

// Config controls the buffer's flush thresholds (spec §6).
type Config struct {
	MinUtteranceMs int
	QuietWindowMs  int
	HardCapMs      int
}

// bytesPerMs is derived from 8kHz 16-bit mono PCM: 16000 bytes/sec.
const bytesPerMs = 16

// Buffer accumulates frames for one call. Every method takes the internal
// mutex, so Append and Flush may run on different goroutines; in the engine
// the Ingress task appends and its buffer watcher polls Ready and flushes.
type Buffer struct {
	mu          sync.Mutex
	cfg         Config
	data        []byte
	firstArrival time.Time
	lastArrival  time.Time
	hasData      bool
}

// New creates an empty Buffer with the given thresholds.
func New(cfg Config) *Buffer {
	return &Buffer{cfg: cfg}
}

// Append adds a frame tagged with its arrival time.
func (b *Buffer) Append(pcm []byte, arrivedAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.hasData {
		b.firstArrival = arrivedAt
		b.hasData = true
	}
	b.lastArrival = arrivedAt
	b.data = append(b.data, pcm...)
}

// durationMs returns the buffered duration derived from byte count, not wall
// clock, so it is stable under test clocks.
func (b *Buffer) durationMs() int64 {
	return int64(len(b.data)) / bytesPerMs
}

// Ready reports whether now is past a flush condition: either the minimum
// duration has accumulated and the quiet window has elapsed since the last
// frame, or the hard cap has been reached.
func (b *Buffer) Ready(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readyLocked(now)
}

func (b *Buffer) readyLocked(now time.Time) bool {
	if !b.hasData {
		return false
	}
	dur := b.durationMs()
	if dur >= int64(b.cfg.HardCapMs) {
		return true
	}
	quietFor := now.Sub(b.lastArrival)
	if dur >= int64(b.cfg.MinUtteranceMs) && quietFor >= time.Duration(b.cfg.QuietWindowMs)*time.Millisecond {
		return true
	}
	return false
}

// Flush returns the accumulated PCM and clears the buffer. Returns ok=false
// if the buffer is empty.
func (b *Buffer) Flush() (Utterance, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.hasData {
		return Utterance{}, false
	}
	u := Utterance{
		AudioBytes: b.data,
		DurationMs: b.durationMs(),
		ArrivalAt:  b.firstArrival,
	}
	b.data = nil
	b.hasData = false
	return u, true
}

// NextDeadline returns when this buffer should next be polled for
// readiness: either the quiet-window deadline from the last frame, or the
// hard-cap deadline from the first frame, whichever comes first. Returns
// ok=false when the buffer is empty or holds less than the minimum
// utterance duration, since only a new frame can make it ready then. Used
// by the engine's buffer watcher to avoid busy-polling.
func (b *Buffer) NextDeadline() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.hasData || b.durationMs() < int64(b.cfg.MinUtteranceMs) {
		return time.Time{}, false
	}
	quietDeadline := b.lastArrival.Add(time.Duration(b.cfg.QuietWindowMs) * time.Millisecond)
	hardCapDeadline := b.firstArrival.Add(time.Duration(b.cfg.HardCapMs) * time.Millisecond)
	if hardCapDeadline.Before(quietDeadline) {
		return hardCapDeadline, true
	}
	return quietDeadline, true
}
