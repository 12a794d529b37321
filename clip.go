package echos

import "slices"

type (
	// Note is an immutable MIDI note. StartBeat is relative to the start of
	// the clip that holds it.
	Note struct {
		Pitch         uint8   `yaml:"pitch"`
		Velocity      uint8   `yaml:"velocity"`
		StartBeat     float64 `yaml:"start"`
		DurationBeats float64 `yaml:"duration"`
	}

	// Clip is a region of MIDI notes on an instrument track. The note list
	// behaves as a set: it never holds two equal notes.
	Clip struct {
		ID            string  `yaml:"id"`
		Name          string  `yaml:"name,omitempty"`
		StartBeat     float64 `yaml:"start"`
		DurationBeats float64 `yaml:"duration"`
		Notes         []Note  `yaml:"notes,flow"`
	}
)

func (n Note) EndBeat() float64 { return n.StartBeat + n.DurationBeats }

func (c Clip) EndBeat() float64 { return c.StartBeat + c.DurationBeats }

func (c Clip) Copy() Clip {
	c.Notes = slices.Clone(c.Notes)
	return c
}

// WithNotes returns a copy of the clip with the notes added, skipping any
// note already present.
func (c Clip) WithNotes(notes ...Note) Clip {
	ret := c.Copy()
	for _, n := range notes {
		if !slices.Contains(ret.Notes, n) {
			ret.Notes = append(ret.Notes, n)
		}
	}
	return ret
}

// WithoutNotes returns a copy of the clip with the given notes removed.
func (c Clip) WithoutNotes(notes ...Note) Clip {
	ret := c.Copy()
	ret.Notes = slices.DeleteFunc(ret.Notes, func(n Note) bool { return slices.Contains(notes, n) })
	return ret
}

// CopyClips deep copies a clip list so that it can be handed to another
// goroutine.
func CopyClips(clips []Clip) []Clip {
	if clips == nil {
		return nil
	}
	ret := make([]Clip, len(clips))
	for i, c := range clips {
		ret[i] = c.Copy()
	}
	return ret
}
