package echos

import (
	"fmt"
	"math"
	"sort"
)

type (
	// Tempo is a tempo breakpoint: from Beat onwards the tempo is BPM until
	// the next breakpoint.
	Tempo struct {
		Beat float64 `yaml:"beat"`
		BPM  float64 `yaml:"bpm"`
	}

	TimeSignature struct {
		Beat        float64 `yaml:"beat"`
		Numerator   int     `yaml:"numerator"`
		Denominator int     `yaml:"denominator"`
	}

	// TimelineState is the piecewise-constant tempo and time signature map.
	// Both lists are sorted ascending by beat and start at beat 0. A
	// TimelineState is treated as a value: mutators build a new state and
	// replace the old one as a whole.
	TimelineState struct {
		Tempos         []Tempo         `yaml:"tempos"`
		TimeSignatures []TimeSignature `yaml:"time_signatures"`
	}
)

var (
	DefaultTempo         = Tempo{Beat: 0, BPM: 120}
	DefaultTimeSignature = TimeSignature{Beat: 0, Numerator: 4, Denominator: 4}
)

func DefaultTimelineState() TimelineState {
	return TimelineState{
		Tempos:         []Tempo{DefaultTempo},
		TimeSignatures: []TimeSignature{DefaultTimeSignature},
	}
}

func (s TimelineState) Copy() TimelineState {
	return TimelineState{
		Tempos:         append([]Tempo(nil), s.Tempos...),
		TimeSignatures: append([]TimeSignature(nil), s.TimeSignatures...),
	}
}

// Validate checks that both lists are non-empty, start at beat 0 and are
// sorted by beat, and that all values are finite and positive.
func (s TimelineState) Validate() error {
	if len(s.Tempos) == 0 {
		return fmt.Errorf("%w: tempo list is empty", ErrInvalidTimeline)
	}
	if len(s.TimeSignatures) == 0 {
		return fmt.Errorf("%w: time signature list is empty", ErrInvalidTimeline)
	}
	if s.Tempos[0].Beat != 0 {
		return fmt.Errorf("%w: first tempo is at beat %v, not 0", ErrInvalidTimeline, s.Tempos[0].Beat)
	}
	if s.TimeSignatures[0].Beat != 0 {
		return fmt.Errorf("%w: first time signature is at beat %v, not 0", ErrInvalidTimeline, s.TimeSignatures[0].Beat)
	}
	for i, t := range s.Tempos {
		if !finite(t.Beat) || !finite(t.BPM) {
			return fmt.Errorf("%w: tempo %v at beat %v is not finite", ErrInvalidTimeline, t.BPM, t.Beat)
		}
		if t.BPM <= 0 {
			return fmt.Errorf("%w: tempo %v at beat %v is not positive", ErrInvalidTimeline, t.BPM, t.Beat)
		}
		if i > 0 && t.Beat < s.Tempos[i-1].Beat {
			return fmt.Errorf("%w: tempos are not sorted by beat", ErrInvalidTimeline)
		}
	}
	for i, ts := range s.TimeSignatures {
		if !finite(ts.Beat) {
			return fmt.Errorf("%w: time signature at beat %v", ErrInvalidTimeline, ts.Beat)
		}
		if ts.Numerator <= 0 || ts.Denominator <= 0 {
			return fmt.Errorf("%w: time signature %d/%d at beat %v", ErrInvalidTimeline, ts.Numerator, ts.Denominator, ts.Beat)
		}
		if i > 0 && ts.Beat < s.TimeSignatures[i-1].Beat {
			return fmt.Errorf("%w: time signatures are not sorted by beat", ErrInvalidTimeline)
		}
	}
	return nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// TempoAt returns the tempo in effect at the given beat, or the default tempo
// if the map is empty.
func (s TimelineState) TempoAt(beat float64) float64 {
	if len(s.Tempos) == 0 {
		return DefaultTempo.BPM
	}
	i := sort.Search(len(s.Tempos), func(i int) bool { return s.Tempos[i].Beat > beat })
	if i == 0 {
		return s.Tempos[0].BPM
	}
	return s.Tempos[i-1].BPM
}

func (s TimelineState) TimeSignatureAt(beat float64) TimeSignature {
	if len(s.TimeSignatures) == 0 {
		return DefaultTimeSignature
	}
	i := sort.Search(len(s.TimeSignatures), func(i int) bool { return s.TimeSignatures[i].Beat > beat })
	if i == 0 {
		return s.TimeSignatures[0]
	}
	return s.TimeSignatures[i-1]
}

// BeatsToSeconds integrates the tempo map from beat 0 to the given beat.
func (s TimelineState) BeatsToSeconds(beats float64) float64 {
	if beats <= 0 {
		return 0
	}
	if len(s.Tempos) == 0 {
		return beats * 60 / DefaultTempo.BPM
	}
	var seconds float64
	for i, t := range s.Tempos {
		if t.Beat >= beats {
			break
		}
		end := beats
		if i+1 < len(s.Tempos) && s.Tempos[i+1].Beat < beats {
			end = s.Tempos[i+1].Beat
		}
		seconds += (end - t.Beat) / t.BPM * 60
	}
	return seconds
}

// SecondsToBeats is the inverse of BeatsToSeconds.
func (s TimelineState) SecondsToBeats(seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	if len(s.Tempos) == 0 {
		return seconds * DefaultTempo.BPM / 60
	}
	var elapsed float64
	for i, t := range s.Tempos {
		if i+1 < len(s.Tempos) {
			segment := (s.Tempos[i+1].Beat - t.Beat) / t.BPM * 60
			if elapsed+segment < seconds {
				elapsed += segment
				continue
			}
		}
		return t.Beat + (seconds-elapsed)*t.BPM/60
	}
	return 0 // unreachable, the last segment always returns
}
