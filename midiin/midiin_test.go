package midiin_test

import (
	"testing"

	"gitlab.com/gomidi/midi/v2"

	"github.com/echosdaw/echos/midiin"
)

func TestEvent(t *testing.T) {
	tests := []struct {
		name string
		msg  midi.Message
		want midi.Message
		ok   bool
	}{
		{"note on", midi.NoteOn(2, 60, 100), midi.NoteOn(2, 60, 100), true},
		{"note off", midi.NoteOff(2, 60), midi.NoteOff(2, 60), true},
		{"note on without velocity", midi.NoteOn(0, 64, 0), midi.NoteOff(0, 64), true},
		{"control change", midi.ControlChange(0, 7, 100), nil, false},
		{"pitch bend", midi.Pitchbend(0, 100), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := midiin.Event(tt.msg)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if e.Frame != 0 {
				t.Errorf("frame = %d, want 0", e.Frame)
			}
			if string(e.Message) != string(tt.want) {
				t.Errorf("message = %v, want %v", e.Message, tt.want)
			}
		})
	}
}
