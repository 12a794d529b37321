package project_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"github.com/echosdaw/echos"
	"github.com/echosdaw/echos/engine"
	"github.com/echosdaw/echos/event"
	"github.com/echosdaw/echos/plugin"
	"github.com/echosdaw/echos/project"
)

func newProject(t *testing.T) *project.Project {
	t.Helper()
	reg := plugin.NewRegistry(nil, zaptest.NewLogger(t))
	plugin.RegisterBuiltins(reg)
	return project.New("test", project.WithLogger(zaptest.NewLogger(t)), project.WithRegistry(reg))
}

func addTrack(t *testing.T, p *project.Project, kind echos.NodeKind, name string) *project.Track {
	t.Helper()
	tr, err := p.Router().AddTrack(kind, name)
	if err != nil {
		t.Fatalf("AddTrack(%v, %q): %v", kind, name, err)
	}
	return tr
}

// record collects the kinds of every event published on the bus.
func record(p *project.Project) *[]string {
	var kinds []string
	p.Bus().SubscribeAll(func(e event.Event) { kinds = append(kinds, e.Kind.String()) })
	return &kinds
}

func TestRouterConnect(t *testing.T) {
	p := newProject(t)
	synth := addTrack(t, p, echos.InstrumentNode, "synth")
	a := addTrack(t, p, echos.BusNode, "a")
	b := addTrack(t, p, echos.BusNode, "b")
	r := p.Router()
	if err := r.Connect(echos.Connection{Source: synth.ID(), Dest: a.ID()}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := r.Connect(echos.Connection{Source: a.ID(), Dest: b.ID()}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	tests := []struct {
		name string
		conn echos.Connection
		want error
	}{
		{"missing source", echos.Connection{Source: "nope", Dest: a.ID()}, echos.ErrNodeNotFound},
		{"missing dest", echos.Connection{Source: a.ID(), Dest: "nope"}, echos.ErrNodeNotFound},
		{"no audio input", echos.Connection{Source: a.ID(), Dest: synth.ID()}, echos.ErrPortNotFound},
		{"audio to midi", echos.Connection{Source: a.ID(), Dest: synth.ID(), DestPort: echos.MIDIInPort}, echos.ErrPortMismatch},
		{"input as source", echos.Connection{Source: a.ID(), SourcePort: echos.MainInPort, Dest: b.ID()}, echos.ErrPortNotFound},
		{"send port", echos.Connection{Source: a.ID(), SourcePort: echos.SendPort("x"), Dest: b.ID()}, echos.ErrPortMismatch},
		{"duplicate", echos.Connection{Source: a.ID(), Dest: b.ID(), DestPort: echos.MainInPort}, echos.ErrDuplicateConnection},
		{"self", echos.Connection{Source: a.ID(), Dest: a.ID()}, echos.ErrCycle},
		{"cycle", echos.Connection{Source: b.ID(), Dest: a.ID()}, echos.ErrCycle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Connect(tt.conn); !errors.Is(err, tt.want) {
				t.Fatalf("Connect(%v) = %v, want %v", tt.conn, err, tt.want)
			}
		})
	}
	if n := len(r.Connections()); n != 2 {
		t.Fatalf("%d connections after rejected connects, want 2", n)
	}
	if err := r.Disconnect(echos.Connection{Source: a.ID(), Dest: b.ID()}); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if err := r.Disconnect(echos.Connection{Source: a.ID(), Dest: b.ID()}); !errors.Is(err, echos.ErrConnectionNotFound) {
		t.Fatalf("second Disconnect = %v", err)
	}
}

func TestRouterSendsCountTowardsCycles(t *testing.T) {
	p := newProject(t)
	a := addTrack(t, p, echos.BusNode, "a")
	b := addTrack(t, p, echos.BusNode, "b")
	r := p.Router()
	s, err := r.AddSend(a.ID(), b.ID(), -6, false)
	if err != nil {
		t.Fatalf("AddSend: %v", err)
	}
	if _, ok := a.Port(echos.SendPort(s.ID())); !ok {
		t.Fatalf("send %v has no port", s.ID())
	}
	if err := r.Connect(echos.Connection{Source: b.ID(), Dest: a.ID()}); !errors.Is(err, echos.ErrCycle) {
		t.Fatalf("Connect against a send = %v, want ErrCycle", err)
	}
	if _, err := r.AddSend(b.ID(), a.ID(), 0, false); !errors.Is(err, echos.ErrCycle) {
		t.Fatalf("AddSend closing a loop = %v, want ErrCycle", err)
	}
	if _, err := r.AddSend(a.ID(), a.ID(), 0, false); !errors.Is(err, echos.ErrCycle) {
		t.Fatalf("AddSend to itself = %v, want ErrCycle", err)
	}
	synth := addTrack(t, p, echos.InstrumentNode, "synth")
	if _, err := r.AddSend(a.ID(), synth.ID(), 0, false); !errors.Is(err, echos.ErrPortNotFound) {
		t.Fatalf("AddSend to an instrument = %v, want ErrPortNotFound", err)
	}
	if _, err := r.RemoveSend(a.ID(), s.ID()); err != nil {
		t.Fatalf("RemoveSend: %v", err)
	}
	if err := r.Connect(echos.Connection{Source: b.ID(), Dest: a.ID()}); err != nil {
		t.Fatalf("Connect after removing the send: %v", err)
	}
	if err := r.RestoreSend(s); !errors.Is(err, echos.ErrCycle) {
		t.Fatalf("RestoreSend = %v, want ErrCycle", err)
	}
}

func TestRemoveNodeAndRestore(t *testing.T) {
	p := newProject(t)
	a := addTrack(t, p, echos.BusNode, "a")
	b := addTrack(t, p, echos.BusNode, "b")
	c := addTrack(t, p, echos.EffectNode, "c")
	r := p.Router()
	if err := r.Connect(echos.Connection{Source: a.ID(), Dest: b.ID()}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.AddSend(c.ID(), a.ID(), -3, true); err != nil {
		t.Fatal(err)
	}
	if _, err := r.AddSend(a.ID(), b.ID(), -3, false); err != nil {
		t.Fatal(err)
	}
	before := p.Snapshot()

	kinds := record(p)
	rm, err := r.RemoveNode(a.ID())
	if err != nil {
		t.Fatalf("RemoveNode: %v", err)
	}
	want := []string{"SendRemoved", "ConnectionRemoved", "NodeRemoved"}
	if diff := cmp.Diff(want, *kinds); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	if len(c.Sends()) != 0 || len(r.Connections()) != 0 {
		t.Fatalf("sends %v connections %v left after removal", c.Sends(), r.Connections())
	}
	if _, err := r.RemoveNode(a.ID()); !errors.Is(err, echos.ErrNodeNotFound) {
		t.Fatalf("second RemoveNode = %v", err)
	}
	if err := r.RestoreNode(rm); err != nil {
		t.Fatalf("RestoreNode: %v", err)
	}
	if diff := cmp.Diff(before, p.Snapshot()); diff != "" {
		t.Fatalf("restored project differs (-before +after):\n%s", diff)
	}
}

func TestInserts(t *testing.T) {
	p := newProject(t)
	synth := addTrack(t, p, echos.InstrumentNode, "synth")
	add := func(id, pluginID string, index int) (int, error) {
		ins, err := synth.NewInsert(id, pluginID)
		if err != nil {
			return 0, err
		}
		return synth.AddInsert(ins, index)
	}
	if _, err := add("g1", plugin.GainID, 0); err != nil {
		t.Fatal(err)
	}
	if i, err := add("osc", plugin.SineID, 5); err != nil || i != 0 {
		t.Fatalf("instrument went to %d (%v), want 0", i, err)
	}
	if _, err := add("osc2", plugin.SineID, 0); !errors.Is(err, project.ErrHasInstrument) {
		t.Fatalf("second instrument = %v, want ErrHasInstrument", err)
	}
	if i, err := add("g2", plugin.GainID, 0); err != nil || i != 1 {
		t.Fatalf("effect went to %d (%v), want 1", i, err)
	}
	if _, err := add("x", "no.such.plugin", 0); !errors.Is(err, echos.ErrPluginNotFound) {
		t.Fatalf("unknown plugin = %v", err)
	}
	if _, err := synth.MoveInsert("osc", 2); err == nil {
		t.Fatal("moving the instrument succeeded")
	}
	if old, err := synth.MoveInsert("g2", 2); err != nil || old != 1 {
		t.Fatalf("MoveInsert = %d, %v", old, err)
	}
	var order []string
	for _, ins := range synth.Inserts() {
		order = append(order, ins.ID())
	}
	if diff := cmp.Diff([]string{"osc", "g1", "g2"}, order); diff != "" {
		t.Fatalf("chain mismatch (-want +got):\n%s", diff)
	}
	par, err := p.Parameter(synth.ID(), "plugin.g1.gain")
	if err != nil {
		t.Fatal(err)
	}
	if got := par.Set(100); got != 24 {
		t.Fatalf("gain clamped to %v, want 24", got)
	}
	if _, _, err := synth.RemoveInsert("g1"); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Parameter(synth.ID(), "plugin.g1.gain"); err == nil {
		t.Fatal("parameter of a removed insert is still found")
	}
}

func TestClipsAndNotes(t *testing.T) {
	p := newProject(t)
	synth := addTrack(t, p, echos.InstrumentNode, "synth")
	bus := addTrack(t, p, echos.BusNode, "bus")
	n1 := echos.Note{Pitch: 60, Velocity: 100, StartBeat: 0, DurationBeats: 1}
	n2 := echos.Note{Pitch: 64, Velocity: 100, StartBeat: 1, DurationBeats: 1}
	clip := echos.Clip{ID: "c", StartBeat: 0, DurationBeats: 4, Notes: []echos.Note{n1, n1}}
	if err := bus.AddClip(clip); !errors.Is(err, project.ErrNotInstrument) {
		t.Fatalf("clip on a bus = %v", err)
	}
	if err := synth.AddClip(clip); err != nil {
		t.Fatal(err)
	}
	if err := synth.AddClip(clip); !errors.Is(err, project.ErrClipExists) {
		t.Fatalf("duplicate clip = %v", err)
	}
	if err := synth.AddClip(echos.Clip{ID: "empty"}); err == nil {
		t.Fatal("zero length clip accepted")
	}
	got, _ := synth.Clip("c")
	if len(got.Notes) != 1 {
		t.Fatalf("clip holds %d notes, want 1", len(got.Notes))
	}
	added, err := synth.AddNotes("c", n1, n2, n2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]echos.Note{n2}, added); diff != "" {
		t.Fatalf("added notes mismatch (-want +got):\n%s", diff)
	}
	removed, err := synth.RemoveNotes("c", n1, echos.Note{Pitch: 1, DurationBeats: 1})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]echos.Note{n1}, removed); diff != "" {
		t.Fatalf("removed notes mismatch (-want +got):\n%s", diff)
	}
	if _, err := synth.AddNotes("missing", n1); !errors.Is(err, project.ErrClipNotFound) {
		t.Fatalf("AddNotes on missing clip = %v", err)
	}
	if _, err := synth.RemoveClip("c"); err != nil {
		t.Fatal(err)
	}
	if len(synth.Clips()) != 0 {
		t.Fatalf("clips left: %v", synth.Clips())
	}
}

func TestTimeline(t *testing.T) {
	p := newProject(t)
	tl := p.Timeline()
	kinds := record(p)
	if err := tl.SetTempo(8, 90); err != nil {
		t.Fatal(err)
	}
	if err := tl.SetTempo(0, 100); err != nil {
		t.Fatal(err)
	}
	want := []echos.Tempo{{Beat: 0, BPM: 100}, {Beat: 8, BPM: 90}}
	if diff := cmp.Diff(want, tl.State().Tempos); diff != "" {
		t.Fatalf("tempos mismatch (-want +got):\n%s", diff)
	}
	if err := tl.SetTempo(4, 0); !errors.Is(err, echos.ErrInvalidTimeline) {
		t.Fatalf("zero tempo = %v", err)
	}
	if err := tl.SetTempo(-1, 100); !errors.Is(err, echos.ErrInvalidTimeline) {
		t.Fatalf("negative beat = %v", err)
	}
	if err := tl.RemoveTempo(0); !errors.Is(err, echos.ErrInvalidTimeline) {
		t.Fatalf("removing the first tempo = %v", err)
	}
	if err := tl.RemoveTempo(8); err != nil {
		t.Fatal(err)
	}
	if err := tl.RemoveTempo(8); err == nil {
		t.Fatal("removing a missing tempo succeeded")
	}
	if err := tl.SetTimeSignature(4, 3, 4); err != nil {
		t.Fatal(err)
	}
	if got := tl.TimeSignatureAt(5); got.Numerator != 3 {
		t.Fatalf("time signature at 5 = %+v", got)
	}
	if err := tl.RemoveTimeSignature(4); err != nil {
		t.Fatal(err)
	}
	if len(*kinds) != 5 {
		t.Fatalf("%d timeline events, want one per successful change: %v", len(*kinds), *kinds)
	}
	if got := tl.TempoAt(100); got != 100 {
		t.Fatalf("tempo = %v", got)
	}
}

func buildDemo(t *testing.T) *project.Project {
	t.Helper()
	p := newProject(t)
	synth := addTrack(t, p, echos.InstrumentNode, "synth")
	fx := addTrack(t, p, echos.BusNode, "reverb")
	master := addTrack(t, p, echos.BusNode, "master")
	ins, err := synth.NewInsert("osc", plugin.SineID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := synth.AddInsert(ins, 0); err != nil {
		t.Fatal(err)
	}
	g, err := fx.NewInsert("dly", plugin.DelayID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fx.AddInsert(g, 0); err != nil {
		t.Fatal(err)
	}
	g.SetEnabled(false)
	synth.Mixer().Volume.Set(-6)
	fx.Mixer().Pan.Set(0.5)
	err = synth.AddClip(echos.Clip{ID: "c", Name: "intro", DurationBeats: 4, Notes: []echos.Note{
		{Pitch: 69, Velocity: 100, DurationBeats: 2},
	}})
	if err != nil {
		t.Fatal(err)
	}
	r := p.Router()
	for _, c := range []echos.Connection{{Source: synth.ID(), Dest: master.ID()}, {Source: fx.ID(), Dest: master.ID()}} {
		if err := r.Connect(c); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := r.AddSend(synth.ID(), fx.ID(), -12, false); err != nil {
		t.Fatal(err)
	}
	if err := p.Timeline().SetTempo(0, 140); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestSaveAndOpen(t *testing.T) {
	p := buildDemo(t)
	path := filepath.Join(t.TempDir(), "demo.yaml")
	if err := p.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	reg := plugin.NewRegistry(nil, nil)
	plugin.RegisterBuiltins(reg)
	q, err := project.OpenFile(path, project.WithRegistry(reg))
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if diff := cmp.Diff(p.Snapshot(), q.Snapshot()); diff != "" {
		t.Fatalf("reopened project differs (-saved +opened):\n%s", diff)
	}
}

func TestLoadKeepsProjectOnError(t *testing.T) {
	p := buildDemo(t)
	before := p.Snapshot()
	kinds := record(p)
	bad := before
	bad.Nodes = append([]echos.NodeState(nil), before.Nodes...)
	bad.Nodes = append(bad.Nodes, echos.NodeState{ID: "x", Kind: echos.BusNode, Inserts: []echos.InsertState{{ID: "i", PluginID: "no.such.plugin"}}})
	if err := p.Load(bad); !errors.Is(err, echos.ErrPluginNotFound) {
		t.Fatalf("Load = %v, want ErrPluginNotFound", err)
	}
	if diff := cmp.Diff(before, p.Snapshot()); diff != "" {
		t.Fatalf("failed load changed the project (-before +after):\n%s", diff)
	}
	if len(*kinds) != 0 {
		t.Fatalf("failed load published %v", *kinds)
	}
	if err := p.Load(before); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"ProjectLoaded"}, *kinds); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveWritesYAML(t *testing.T) {
	p := buildDemo(t)
	var buf bytes.Buffer
	if err := p.Save(&buf); err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"kind: instrument", "plugin: echos.sine", "bpm: 140"} {
		if !bytes.Contains(buf.Bytes(), []byte(s)) {
			t.Errorf("saved project lacks %q:\n%s", s, buf.String())
		}
	}
}

func TestLoadFrom(t *testing.T) {
	p := buildDemo(t)
	var buf bytes.Buffer
	if err := p.Save(&buf); err != nil {
		t.Fatal(err)
	}
	q := newProject(t)
	if err := q.LoadFrom(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(p.Snapshot(), q.Snapshot()); diff != "" {
		t.Fatalf("loaded project differs (-saved +loaded):\n%s", diff)
	}
	before := q.Snapshot()
	if err := q.LoadFrom(bytes.NewReader([]byte("name: x\ncolour: red\n"))); err == nil {
		t.Fatal("unknown fields should be rejected")
	}
	if diff := cmp.Diff(before, q.Snapshot()); diff != "" {
		t.Fatalf("rejected document changed the project (-before +after):\n%s", diff)
	}
}

func TestAttachEngine(t *testing.T) {
	p := buildDemo(t)
	reg := plugin.NewRegistry(nil, nil)
	plugin.RegisterBuiltins(reg)
	e, err := engine.New(plugin.NewHost(reg, 48000, nil), engine.Options{SampleRate: 48000, BlockSize: 256}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	s := engine.NewSyncController(e, zaptest.NewLogger(t))
	p.AttachEngine(s)
	out, err := e.Render(context.Background(), 0.5)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if st := e.Stats(); st.Failed != 0 || st.Graph.Nodes != 3 || st.Graph.Connections != 3 {
		t.Fatalf("engine stats after attach: %+v", st)
	}
	var peak float32
	for _, v := range out[0] {
		peak = max(peak, v, -v)
	}
	if peak == 0 {
		t.Fatal("rendered silence")
	}

	// edits made after attaching reach the engine
	synth := p.Router().Tracks()[0]
	synth.Mixer().Mute.Set(1)
	out, err = e.Render(context.Background(), 0.5)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range out[0] {
		if v != 0 {
			t.Fatalf("frame %d = %v with the synth muted", i, v)
		}
	}

	p.Close()
	if _, err := e.Render(context.Background(), 0.01); err != nil {
		t.Fatal(err)
	}
	if n := e.Stats().Graph.Nodes; n != 0 {
		t.Fatalf("%d nodes left after close", n)
	}
}
