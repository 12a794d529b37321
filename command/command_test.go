package command_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/echosdaw/echos"
	"github.com/echosdaw/echos/command"
	"github.com/echosdaw/echos/history"
	"github.com/echosdaw/echos/plugin"
	"github.com/echosdaw/echos/project"
)

// fixture is a project with an instrument track holding a sine and a clip,
// two buses and a connection from the synth to the first bus.
type fixture struct {
	p      *project.Project
	synth  string
	busA   string
	busB   string
	clipID string
	note   echos.Note
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := plugin.NewRegistry(nil, nil)
	plugin.RegisterBuiltins(reg)
	p := project.New("test", project.WithRegistry(reg), project.WithLogger(zaptest.NewLogger(t)))
	f := &fixture{p: p, note: echos.Note{Pitch: 60, Velocity: 90, DurationBeats: 1}}
	r := p.Router()
	synth, err := r.AddTrack(echos.InstrumentNode, "synth")
	require.NoError(t, err)
	ins, err := synth.NewInsert("osc", plugin.SineID)
	require.NoError(t, err)
	_, err = synth.AddInsert(ins, 0)
	require.NoError(t, err)
	require.NoError(t, synth.AddClip(echos.Clip{ID: "clip", DurationBeats: 4, Notes: []echos.Note{f.note}}))
	a, err := r.AddTrack(echos.BusNode, "a")
	require.NoError(t, err)
	b, err := r.AddTrack(echos.BusNode, "b")
	require.NoError(t, err)
	require.NoError(t, r.Connect(echos.Connection{Source: synth.ID(), Dest: a.ID()}))
	f.synth, f.busA, f.busB, f.clipID = synth.ID(), a.ID(), b.ID(), "clip"
	return f
}

func requireSameState(t *testing.T, want, got echos.ProjectState) {
	t.Helper()
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("project state mismatch (-want +got):\n%s", diff)
	}
}

// roundTrip executes op, undoes it and redoes it, checking that undo brings
// back the state before execution and redo the state after it.
func roundTrip(t *testing.T, f *fixture, op history.Operation) (before, after echos.ProjectState) {
	t.Helper()
	ctx := context.Background()
	before = f.p.Snapshot()
	_, err := f.p.Execute(ctx, op)
	require.NoError(t, err)
	after = f.p.Snapshot()
	require.NoError(t, f.p.Undo(ctx))
	requireSameState(t, before, f.p.Snapshot())
	require.NoError(t, f.p.Redo(ctx))
	requireSameState(t, after, f.p.Snapshot())
	return before, after
}

func TestUndoRestoresState(t *testing.T) {
	n2 := echos.Note{Pitch: 67, Velocity: 90, StartBeat: 2, DurationBeats: 1}
	tests := []struct {
		name string
		op   func(f *fixture) history.Operation
	}{
		{"set parameter", func(f *fixture) history.Operation {
			return command.NewSetParameter(f.p, f.synth, "mixer.volume", -12)
		}},
		{"set plugin parameter", func(f *fixture) history.Operation {
			return command.NewSetParameter(f.p, f.synth, "plugin.osc.gain", 0)
		}},
		{"create clip", func(f *fixture) history.Operation {
			return command.NewCreateMIDIClip(f.p, f.synth, "", "verse", 4, 8)
		}},
		{"remove clip", func(f *fixture) history.Operation {
			return command.NewRemoveClip(f.p, f.synth, f.clipID)
		}},
		{"add notes", func(f *fixture) history.Operation {
			return command.NewAddNotes(f.p, f.synth, f.clipID, f.note, n2)
		}},
		{"remove notes", func(f *fixture) history.Operation {
			return command.NewRemoveNotes(f.p, f.synth, f.clipID, f.note, n2)
		}},
		{"create track", func(f *fixture) history.Operation {
			return command.NewCreateTrack(f.p, echos.AudioTrackNode, "vocals")
		}},
		{"rename", func(f *fixture) history.Operation {
			return command.NewRenameNode(f.p, f.busA, "drums")
		}},
		{"delete track", func(f *fixture) history.Operation {
			return command.NewDeleteNode(f.p, f.busA)
		}},
		{"add insert", func(f *fixture) history.Operation {
			return command.NewAddInsert(f.p, f.synth, "", plugin.GainID, 1)
		}},
		{"remove instrument", func(f *fixture) history.Operation {
			return command.NewRemoveInsert(f.p, f.synth, "osc")
		}},
		{"bypass", func(f *fixture) history.Operation {
			return command.NewSetInsertEnabled(f.p, f.synth, "osc", false)
		}},
		{"connect", func(f *fixture) history.Operation {
			return command.NewConnect(f.p, echos.Connection{Source: f.busA, Dest: f.busB})
		}},
		{"disconnect", func(f *fixture) history.Operation {
			return command.NewDisconnect(f.p, echos.Connection{Source: f.synth, Dest: f.busA})
		}},
		{"create send", func(f *fixture) history.Operation {
			return command.NewCreateSend(f.p, f.synth, f.busB, -6, true)
		}},
		{"set tempo", func(f *fixture) history.Operation {
			return command.NewSetTempo(f.p, 16, 90)
		}},
		{"set time signature", func(f *fixture) history.Operation {
			return command.NewSetTimeSignature(f.p, 0, 7, 8)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			before, after := roundTrip(t, f, tt.op(f))
			if cmp.Equal(before, after, cmpopts.EquateEmpty()) {
				t.Fatal("command did not change anything")
			}
		})
	}
}

func TestMoveInsert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"g1", "g2"} {
		_, err := f.p.Execute(ctx, command.NewAddInsert(f.p, f.synth, id, plugin.GainID, 10))
		require.NoError(t, err)
	}
	roundTrip(t, f, command.NewMoveInsert(f.p, f.synth, "g2", 1))
	synth, _ := f.p.Track(f.synth)
	var order []string
	for _, ins := range synth.Inserts() {
		order = append(order, ins.ID())
	}
	require.Equal(t, []string{"osc", "g2", "g1"}, order)

	_, err := f.p.Execute(ctx, command.NewMoveInsert(f.p, f.synth, "osc", 2))
	require.Error(t, err)
}

func TestDeleteNodeRestoresSends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	send := command.NewCreateSend(f.p, f.synth, f.busB, -6, false)
	_, err := f.p.Execute(ctx, send)
	require.NoError(t, err)
	require.NotNil(t, send.Send())

	roundTrip(t, f, command.NewDeleteNode(f.p, f.busB))
	synth, _ := f.p.Track(f.synth)
	require.Empty(t, synth.Sends())

	require.NoError(t, f.p.Undo(ctx))
	require.Len(t, synth.Sends(), 1)
	_, ok := f.p.Track(f.busB)
	require.True(t, ok)
	require.NoError(t, f.p.Undo(ctx))
	require.Empty(t, synth.Sends())
}

func TestSetParameterMerges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, v := range []float64{-1, -2, -3} {
		_, err := f.p.Execute(ctx, command.NewSetParameter(f.p, f.synth, "mixer.volume", v))
		require.NoError(t, err)
	}
	_, err := f.p.Execute(ctx, command.NewSetParameter(f.p, f.synth, "mixer.pan", 0.5))
	require.NoError(t, err)
	h := f.p.History()
	require.Equal(t, []string{"Set mixer.volume to -3", "Set mixer.pan to 0.5"}, h.UndoHistory())

	par, err := f.p.Parameter(f.synth, "mixer.volume")
	require.NoError(t, err)
	require.NoError(t, f.p.Undo(ctx))
	require.Equal(t, -3.0, par.Value())
	require.NoError(t, f.p.Undo(ctx))
	require.Equal(t, 0.0, par.Value())
	require.NoError(t, f.p.Redo(ctx))
	require.Equal(t, -3.0, par.Value())
}

func TestSetTempoMergesAtSameBeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, bpm := range []float64{130, 140, 150} {
		_, err := f.p.Execute(ctx, command.NewSetTempo(f.p, 0, bpm))
		require.NoError(t, err)
	}
	_, err := f.p.Execute(ctx, command.NewSetTempo(f.p, 8, 60))
	require.NoError(t, err)
	require.Len(t, f.p.History().UndoHistory(), 2)

	tl := f.p.Timeline()
	require.NoError(t, f.p.Undo(ctx))
	require.Equal(t, 150.0, tl.TempoAt(8))
	require.NoError(t, f.p.Undo(ctx))
	require.Equal(t, []echos.Tempo{echos.DefaultTempo}, tl.State().Tempos)
}

func TestInvalidTempoIsNotRecorded(t *testing.T) {
	f := newFixture(t)
	cmd, err := f.p.Execute(context.Background(), command.NewSetTempo(f.p, 4, -10))
	require.ErrorIs(t, err, echos.ErrInvalidTimeline)
	require.Equal(t, history.Failed, cmd.State())
	require.False(t, f.p.History().CanUndo())
	require.Equal(t, echos.DefaultTimelineState(), f.p.Timeline().State())
}

func TestInstrumentTrackMacro(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.p.Snapshot()
	mac, create := command.NewInstrumentTrack(f.p, "lead", plugin.SineID)
	_, err := f.p.Execute(ctx, mac)
	require.NoError(t, err)
	tr, ok := f.p.Track(create.TrackID())
	require.True(t, ok)
	require.Len(t, tr.Inserts(), 1)
	require.True(t, tr.Inserts()[0].IsInstrument())

	require.NoError(t, f.p.Undo(ctx))
	requireSameState(t, before, f.p.Snapshot())

	broken, _ := command.NewInstrumentTrack(f.p, "broken", "no.such.plugin")
	_, err = f.p.Execute(ctx, broken)
	require.ErrorIs(t, err, echos.ErrPluginNotFound)
	requireSameState(t, before, f.p.Snapshot())
}

func TestRecordedMacro(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.p.Snapshot()
	h := f.p.History()
	h.BeginMacro("arrange")
	clip := command.NewCreateMIDIClip(f.p, f.synth, "", "chorus", 8, 4)
	for _, op := range []history.Operation{
		clip,
		command.NewAddNotes(f.p, f.synth, clip.ClipID(), echos.Note{Pitch: 72, Velocity: 100, DurationBeats: 2}),
		command.NewSetTempo(f.p, 8, 100),
	} {
		_, err := f.p.Execute(ctx, op)
		require.NoError(t, err)
	}
	_, err := h.EndMacro()
	require.NoError(t, err)
	require.Equal(t, []string{"arrange"}, h.UndoHistory())

	require.NoError(t, f.p.Undo(ctx))
	requireSameState(t, before, f.p.Snapshot())
}
