package graph

import (
	"cmp"
	"math"
	"slices"

	"gitlab.com/gomidi/midi/v2"

	"github.com/echosdaw/echos"
)

type (
	// scheduler turns the clips of an instrument node into the MIDI events of
	// each block. Clips are expanded lazily into a flat list sorted by beat,
	// which is then walked with a cursor as the transport advances.
	scheduler struct {
		clips  []echos.Clip
		events []scheduledEvent
		dirty  bool
		cursor int

		// active maps the currently sounding notes to their note-off messages
		active map[noteKey]midi.Message
		out    []echos.MIDIEvent

		nextBeat float64
		started  bool
	}

	scheduledEvent struct {
		beat float64
		on   bool
		key  noteKey
		msg  midi.Message
		off  midi.Message
	}

	noteKey struct {
		clip string
		note echos.Note
	}
)

// jumpBlocks is how many blocks' worth of beats the transport may move away
// from the expected position before the scheduler treats it as a seek.
const jumpBlocks = 2

const midiChannel = 0

func newScheduler() *scheduler {
	return &scheduler{
		active: make(map[noteKey]midi.Message, 128),
		out:    make([]echos.MIDIEvent, 0, 256),
	}
}

func (s *scheduler) setClips(clips []echos.Clip) {
	s.clips = clips
	s.dirty = true
}

// addClip adds the clip, replacing a clip with the same id.
func (s *scheduler) addClip(clip echos.Clip) {
	if i := slices.IndexFunc(s.clips, func(c echos.Clip) bool { return c.ID == clip.ID }); i >= 0 {
		s.clips[i] = clip
	} else {
		s.clips = append(s.clips, clip)
	}
	s.dirty = true
}

func (s *scheduler) expand() {
	s.events = s.events[:0]
	for _, c := range s.clips {
		for _, n := range c.Notes {
			key := noteKey{clip: c.ID, note: n}
			on := c.StartBeat + n.StartBeat
			off := midi.NoteOff(midiChannel, n.Pitch)
			s.events = append(s.events,
				scheduledEvent{beat: on, on: true, key: key, msg: midi.NoteOn(midiChannel, n.Pitch, n.Velocity), off: off},
				scheduledEvent{beat: on + n.DurationBeats, key: key, msg: off, off: off},
			)
		}
	}
	slices.SortStableFunc(s.events, func(a, b scheduledEvent) int {
		switch {
		case a.beat < b.beat:
			return -1
		case a.beat > b.beat:
			return 1
		case !a.on && b.on:
			return -1
		case a.on && !b.on:
			return 1
		}
		return 0
	})
	s.cursor = 0
	s.dirty = false
}

// block returns the events falling inside the block described by ctx. The
// returned slice is reused by the next call.
func (s *scheduler) block(ctx echos.TransportContext) []echos.MIDIEvent {
	s.out = s.out[:0]
	span := ctx.BlockBeats()
	start := ctx.Beat
	end := start + span
	if s.dirty {
		s.releaseAll()
		s.expand()
		s.seek(start)
	} else if s.started && math.Abs(start-s.nextBeat) > jumpBlocks*span {
		s.releaseAll()
		s.seek(start)
	}
	s.started = true
	s.nextBeat = end
	beatsPerSecond := ctx.Tempo / 60
	for ; s.cursor < len(s.events) && s.events[s.cursor].beat < end; s.cursor++ {
		e := &s.events[s.cursor]
		if e.beat < start {
			continue
		}
		_, sounding := s.active[e.key]
		if e.on == sounding {
			continue
		}
		if e.on {
			s.active[e.key] = e.off
		} else {
			delete(s.active, e.key)
		}
		offset := 0.0
		if beatsPerSecond > 0 {
			offset = (e.beat - start) / beatsPerSecond
		}
		frame := min(int(offset*float64(ctx.SampleRate)), max(ctx.BlockSize-1, 0))
		s.out = append(s.out, echos.MIDIEvent{Frame: frame, Offset: offset, Message: e.msg})
	}
	return s.out
}

// merge adds live events to the events of the current block, keeping them
// ordered by frame. Clip events come first among events on the same frame.
func (s *scheduler) merge(live []echos.MIDIEvent, blockSize int) []echos.MIDIEvent {
	for _, e := range live {
		e.Frame = min(max(e.Frame, 0), max(blockSize-1, 0))
		s.out = append(s.out, e)
	}
	slices.SortStableFunc(s.out, func(a, b echos.MIDIEvent) int { return cmp.Compare(a.Frame, b.Frame) })
	return s.out
}

// seek moves the cursor to the first event at or after beat.
func (s *scheduler) seek(beat float64) {
	s.cursor, _ = slices.BinarySearchFunc(s.events, beat, func(e scheduledEvent, b float64) int {
		if e.beat < b {
			return -1
		}
		return 1
	})
}

// releaseAll emits a note-off at the start of the block for every sounding
// note and forgets them.
func (s *scheduler) releaseAll() {
	for key, off := range s.active {
		s.out = append(s.out, echos.MIDIEvent{Message: off})
		delete(s.active, key)
	}
}
