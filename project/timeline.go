package project

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/echosdaw/echos"
	"github.com/echosdaw/echos/event"
)

// Timeline is the project's tempo and time signature map. Every mutation
// builds a new state, validates it and only then replaces the old one, so a
// failed call leaves the timeline unchanged.
type Timeline struct {
	state  echos.TimelineState
	router *Router
}

func newTimeline(r *Router) *Timeline {
	return &Timeline{state: echos.DefaultTimelineState(), router: r}
}

// State returns a copy of the current state.
func (t *Timeline) State() echos.TimelineState { return t.state.Copy() }

func (t *Timeline) SetState(s echos.TimelineState) error {
	s = s.Copy()
	if err := s.Validate(); err != nil {
		return err
	}
	t.state = s
	t.router.publish(event.Event{Kind: event.TimelineStateChanged, Timeline: s.Copy()})
	return nil
}

// SetTempo sets the tempo from beat onwards, replacing a breakpoint at the
// same beat.
func (t *Timeline) SetTempo(beat, bpm float64) error {
	s := t.state.Copy()
	tempo := echos.Tempo{Beat: beat, BPM: bpm}
	i, found := slices.BinarySearchFunc(s.Tempos, beat, func(t echos.Tempo, b float64) int { return cmp.Compare(t.Beat, b) })
	if found {
		s.Tempos[i] = tempo
	} else {
		s.Tempos = slices.Insert(s.Tempos, i, tempo)
	}
	if err := t.SetState(s); err != nil {
		return fmt.Errorf("set tempo %v at beat %v: %w", bpm, beat, err)
	}
	return nil
}

func (t *Timeline) SetTimeSignature(beat float64, numerator, denominator int) error {
	s := t.state.Copy()
	sig := echos.TimeSignature{Beat: beat, Numerator: numerator, Denominator: denominator}
	i, found := slices.BinarySearchFunc(s.TimeSignatures, beat, func(t echos.TimeSignature, b float64) int { return cmp.Compare(t.Beat, b) })
	if found {
		s.TimeSignatures[i] = sig
	} else {
		s.TimeSignatures = slices.Insert(s.TimeSignatures, i, sig)
	}
	if err := t.SetState(s); err != nil {
		return fmt.Errorf("set time signature %d/%d at beat %v: %w", numerator, denominator, beat, err)
	}
	return nil
}

// RemoveTempo removes the breakpoint at beat. The breakpoint at beat 0 stays.
func (t *Timeline) RemoveTempo(beat float64) error {
	if beat == 0 {
		return fmt.Errorf("remove tempo: %w: the tempo at beat 0 cannot be removed", echos.ErrInvalidTimeline)
	}
	s := t.state.Copy()
	i := slices.IndexFunc(s.Tempos, func(t echos.Tempo) bool { return t.Beat == beat })
	if i < 0 {
		return fmt.Errorf("remove tempo: no tempo at beat %v", beat)
	}
	s.Tempos = slices.Delete(s.Tempos, i, i+1)
	return t.SetState(s)
}

func (t *Timeline) RemoveTimeSignature(beat float64) error {
	if beat == 0 {
		return fmt.Errorf("remove time signature: %w: the time signature at beat 0 cannot be removed", echos.ErrInvalidTimeline)
	}
	s := t.state.Copy()
	i := slices.IndexFunc(s.TimeSignatures, func(t echos.TimeSignature) bool { return t.Beat == beat })
	if i < 0 {
		return fmt.Errorf("remove time signature: no time signature at beat %v", beat)
	}
	s.TimeSignatures = slices.Delete(s.TimeSignatures, i, i+1)
	return t.SetState(s)
}

func (t *Timeline) TempoAt(beat float64) float64 { return t.state.TempoAt(beat) }

func (t *Timeline) TimeSignatureAt(beat float64) echos.TimeSignature {
	return t.state.TimeSignatureAt(beat)
}
