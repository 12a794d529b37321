package engine

import (
	"math"
	"sync/atomic"

	"github.com/viterin/vek/vek32"

	"github.com/echosdaw/echos"
)

// Levels are per-channel levels of one block, as linear amplitudes.
type Levels struct {
	Peak [2]float32
	RMS  [2]float32
}

// meter measures on the audio thread and is read from anywhere.
type meter struct {
	peak [2]atomic.Uint32 // float32 bits
	rms  [2]atomic.Uint32
}

func (m *meter) measure(b echos.AudioBuffer) {
	n := b.Frames()
	if n == 0 {
		return
	}
	for ch := range b {
		peak := max(vek32.Max(b[ch]), -vek32.Min(b[ch]))
		rms := float32(math.Sqrt(float64(vek32.Dot(b[ch], b[ch])) / float64(n)))
		m.peak[ch].Store(math.Float32bits(peak))
		m.rms[ch].Store(math.Float32bits(rms))
	}
}

func (m *meter) levels() (l Levels) {
	for ch := range l.Peak {
		l.Peak[ch] = math.Float32frombits(m.peak[ch].Load())
		l.RMS[ch] = math.Float32frombits(m.rms[ch].Load())
	}
	return l
}

// DB converts a linear amplitude to decibels, flooring at echos.SilenceDB.
func DB(amplitude float32) float64 {
	if amplitude <= 0 {
		return echos.SilenceDB
	}
	return max(20*math.Log10(float64(amplitude)), echos.SilenceDB)
}
