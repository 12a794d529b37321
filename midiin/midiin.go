// Package midiin listens to a hardware MIDI input and turns its note messages
// into events for an instrument track.
package midiin

import (
	"errors"

	"gitlab.com/gomidi/midi/v2"

	"github.com/echosdaw/echos"
)

// ErrNoDriver is returned when the binary was built without a MIDI driver.
var ErrNoDriver = errors.New("no MIDI driver available")

// Event converts a note message into an event at the start of the next
// block. Other messages are ignored. A note on with zero velocity is a note
// off.
func Event(msg midi.Message) (echos.MIDIEvent, bool) {
	var ch, key, vel uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return echos.MIDIEvent{Message: midi.NoteOn(ch, key, vel)}, true
	case msg.GetNoteEnd(&ch, &key):
		return echos.MIDIEvent{Message: midi.NoteOff(ch, key)}, true
	}
	return echos.MIDIEvent{}, false
}
