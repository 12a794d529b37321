package echos

import (
	"math"
	"time"

	"github.com/viterin/vek/vek32"
)

type (
	// AudioBuffer is a block of stereo audio with one slice per channel. Both
	// channels always have the same length.
	AudioBuffer [2][]float32

	// AudioSource fills one block of audio each time the device asks for it.
	// Process is called from the audio callback and must not block.
	AudioSource interface {
		Process(out AudioBuffer, status CallbackStatus)
	}

	// CallbackStatus carries the device flags of one callback.
	CallbackStatus struct {
		Underflow bool
	}

	AudioDevice interface {
		Start() error
		Stop() error
		Close() error
		// Latency is the stream latency reported by the device, excluding
		// the block latency of the source.
		Latency() time.Duration
	}
)

func NewAudioBuffer(frames int) AudioBuffer {
	return AudioBuffer{make([]float32, frames), make([]float32, frames)}
}

func (b AudioBuffer) Frames() int { return len(b[0]) }

func (b AudioBuffer) Clear() {
	vek32.Zeros_Into(b[0], len(b[0]))
	vek32.Zeros_Into(b[1], len(b[1]))
}

func (b AudioBuffer) CopyFrom(src AudioBuffer) {
	copy(b[0], src[0])
	copy(b[1], src[1])
}

// Add mixes src into b sample by sample.
func (b AudioBuffer) Add(src AudioBuffer) {
	n := min(len(b[0]), len(src[0]))
	vek32.Add_Inplace(b[0][:n], src[0][:n])
	vek32.Add_Inplace(b[1][:n], src[1][:n])
}

// AddScaled mixes src scaled by gain into b, using scratch as temporary
// storage. scratch must be at least as long as b.
func (b AudioBuffer) AddScaled(src AudioBuffer, gain float32, scratch []float32) {
	n := min(len(b[0]), len(src[0]), len(scratch))
	for c := range 2 {
		vek32.MulNumber_Into(scratch[:n], src[c][:n], gain)
		vek32.Add_Inplace(b[c][:n], scratch[:n])
	}
}

func (b AudioBuffer) Scale(left, right float32) {
	vek32.MulNumber_Inplace(b[0], left)
	vek32.MulNumber_Inplace(b[1], right)
}

// Append appends src to the end of b, growing both channels.
func (b *AudioBuffer) Append(src AudioBuffer) {
	b[0] = append(b[0], src[0]...)
	b[1] = append(b[1], src[1]...)
}

// Interleave writes the buffer as L R L R ... into dst, reusing its capacity.
func (b AudioBuffer) Interleave(dst []float32) []float32 {
	dst = dst[:0]
	for i := range b[0] {
		dst = append(dst, b[0][i], b[1][i])
	}
	return dst
}

// SilenceDB is the level at and below which a decibel value means silence.
const SilenceDB = -96

// DBToGain converts decibels to a linear gain.
func DBToGain(db float64) float64 {
	if db <= SilenceDB {
		return 0
	}
	return math.Pow(10, db/20)
}
