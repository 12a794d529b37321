package plugin_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gitlab.com/gomidi/midi/v2"
	"go.uber.org/zap/zaptest"

	"github.com/echosdaw/echos"
	"github.com/echosdaw/echos/plugin"
)

func TestRegistryPersistAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "plugins.yml")
	reg := plugin.NewRegistry(plugin.NewCache(path), zaptest.NewLogger(t))
	plugin.RegisterBuiltins(reg)
	if err := reg.Persist(); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	loaded := plugin.NewRegistry(plugin.NewCache(path), zaptest.NewLogger(t))
	if err := loaded.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(reg.ListAll(), loaded.ListAll()); diff != "" {
		t.Fatalf("loaded registry differs (-want +got):\n%s", diff)
	}
	if _, ok := loaded.FindByID(plugin.SineID); !ok {
		t.Fatalf("sine plugin missing after load")
	}
}

func TestRegistryLoadMissingCache(t *testing.T) {
	reg := plugin.NewRegistry(plugin.NewCache(filepath.Join(t.TempDir(), "nope.yml")), nil)
	if err := reg.Load(); err != nil {
		t.Fatalf("missing cache should load as empty, got %v", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d plugins", reg.Len())
	}
}

func newHost(t *testing.T) *plugin.Host {
	reg := plugin.NewRegistry(nil, nil)
	plugin.RegisterBuiltins(reg)
	return plugin.NewHost(reg, 48000, zaptest.NewLogger(t))
}

func TestHostLifecycle(t *testing.T) {
	h := newHost(t)
	if _, err := h.CreateInstance("a", "does.not.exist"); !errors.Is(err, echos.ErrPluginNotFound) {
		t.Fatalf("expected ErrPluginNotFound, got %v", err)
	}
	inst, err := h.CreateInstance("a", plugin.LookaheadID)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	if inst.LatencySamples() == 0 {
		t.Fatalf("lookahead should report latency")
	}
	if _, err := h.CreateInstance("a", plugin.GainID); err == nil {
		t.Fatalf("duplicate instance id should fail")
	}
	if h.Count() != 1 {
		t.Fatalf("expected 1 instance, got %d", h.Count())
	}
	if err := h.ReleaseInstance("a"); err != nil {
		t.Fatalf("ReleaseInstance failed: %v", err)
	}
	if err := h.ReleaseInstance("a"); err == nil {
		t.Fatalf("double release should fail")
	}
}

func TestGainParameter(t *testing.T) {
	inst, err := newHost(t).CreateInstance("g", plugin.GainID)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	if err := inst.SetParameter("gain", -6.0206); err != nil {
		t.Fatalf("SetParameter failed: %v", err)
	}
	if err := inst.SetParameter("nope", 1); err == nil {
		t.Fatalf("unknown parameter should fail")
	}
	in, out := echos.NewAudioBuffer(4), echos.NewAudioBuffer(4)
	for i := range 4 {
		in[0][i], in[1][i] = 1, -1
	}
	inst.Process(echos.TransportContext{}, nil, in, out)
	if out[0][3] < 0.49 || out[0][3] > 0.51 || out[1][3] > -0.49 {
		t.Fatalf("expected half gain, got %v %v", out[0][3], out[1][3])
	}
}

func TestSineRespondsToNotes(t *testing.T) {
	inst, err := newHost(t).CreateInstance("s", plugin.SineID)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	if !inst.IsInstrument() {
		t.Fatalf("sine should be an instrument")
	}
	out := echos.NewAudioBuffer(256)
	inst.Process(echos.TransportContext{}, nil, echos.AudioBuffer{}, out)
	if peak(out) != 0 {
		t.Fatalf("silent instrument produced output")
	}
	events := []echos.MIDIEvent{{Frame: 10, Message: midi.NoteOn(0, 69, 100)}}
	inst.Process(echos.TransportContext{}, events, echos.AudioBuffer{}, out)
	if out[0][5] != 0 {
		t.Fatalf("output before the note-on frame should be silent")
	}
	if peak(out) == 0 {
		t.Fatalf("note-on produced no output")
	}
}

func peak(b echos.AudioBuffer) float32 {
	var m float32
	for _, v := range b[0] {
		m = max(m, v, -v)
	}
	return m
}
