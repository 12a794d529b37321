//go:build plugin

// Command echos-vsti builds the engine as a VST2 instrument. The plugin holds
// a project with one sine instrument track; MIDI from the host plays it live
// and the host tempo drives the tempo of the project.
package main

import (
	"bytes"
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"go.uber.org/zap"
	"pipelined.dev/audio/vst2"

	"github.com/echosdaw/echos"
	"github.com/echosdaw/echos/command"
	"github.com/echosdaw/echos/config"
	"github.com/echosdaw/echos/engine"
	"github.com/echosdaw/echos/plugin"
	"github.com/echosdaw/echos/project"
)

var pluginID = [4]byte{'E', 'c', 'h', 'o'}

const (
	pluginName    = "Echos"
	pluginVersion = int32(100)
	tempoPoll     = 100 * time.Millisecond
)

// instrument is one plugin instance.
type instrument struct {
	mu      sync.Mutex // guards project
	project *project.Project
	track   atomic.Pointer[string] // id of the track playing host MIDI

	engine *engine.Engine
	host   vst2.Host
	events []echos.MIDIEvent
	tempo  atomic.Uint64 // float64 bits, 0 until the host reports one

	done chan struct{}
	log  *zap.Logger
}

func newInstrument(h vst2.Host) (*instrument, error) {
	cfg := config.Default()
	log, err := cfg.Logger(false)
	if err != nil {
		return nil, err
	}
	reg := plugin.NewRegistry(nil, log)
	plugin.RegisterBuiltins(reg)
	e, err := engine.New(plugin.NewHost(reg, cfg.SampleRate, log), cfg.EngineOptions(), log)
	if err != nil {
		return nil, err
	}
	p := project.New("echos-vsti", project.WithLogger(log), project.WithRegistry(reg), project.WithMaxHistory(cfg.MaxHistory))
	p.AttachEngine(engine.NewSyncController(e, log))
	mac, create := command.NewInstrumentTrack(p, "synth", plugin.SineID)
	if _, err := p.Execute(context.Background(), mac); err != nil {
		return nil, err
	}
	i := &instrument{
		project: p,
		engine:  e,
		host:    h,
		events:  make([]echos.MIDIEvent, 0, 256),
		done:    make(chan struct{}),
		log:     log.Named("vsti"),
	}
	id := create.TrackID()
	i.track.Store(&id)
	e.Play()
	go i.followTempo()
	return i, nil
}

func (i *instrument) process(out vst2.FloatBuffer) {
	if info := i.host.GetTimeInfo(vst2.TempoValid); info != nil && info.Flags&vst2.TempoValid != 0 && info.Tempo > 0 {
		i.tempo.Store(math.Float64bits(info.Tempo))
	}
	if len(i.events) > 0 {
		if err := i.engine.Post(engine.SendMIDI(*i.track.Load(), i.events)); err != nil {
			i.log.Warn("midi dropped", zap.Int("events", len(i.events)), zap.Error(err))
		}
		i.events = i.events[:0]
	}
	i.engine.Process(echos.AudioBuffer{out.Channel(0), out.Channel(1)}, echos.CallbackStatus{})
}

func (i *instrument) receive(ev *vst2.MIDIEvent) {
	var msg midi.Message
	status, ch := ev.Data[0]&0xF0, ev.Data[0]&0x0F
	switch {
	case status == 0x90 && ev.Data[2] > 0:
		msg = midi.NoteOn(ch, ev.Data[1], ev.Data[2])
	case status == 0x80, status == 0x90:
		msg = midi.NoteOff(ch, ev.Data[1])
	default:
		return
	}
	i.events = append(i.events, echos.MIDIEvent{Frame: int(ev.DeltaFrames), Message: msg})
}

// followTempo turns changes of the host tempo into tempo commands. They
// merge, so a tempo ramp in the host is a single undo step.
func (i *instrument) followTempo() {
	t := time.NewTicker(tempoPoll)
	defer t.Stop()
	for {
		select {
		case <-i.done:
			return
		case <-t.C:
		}
		bpm := math.Float64frombits(i.tempo.Load())
		if bpm <= 0 {
			continue
		}
		i.mu.Lock()
		if math.Abs(i.project.Timeline().TempoAt(0)-bpm) > 1e-3 {
			if _, err := i.project.Execute(context.Background(), command.NewSetTempo(i.project, 0, bpm)); err != nil {
				i.log.Warn("host tempo rejected", zap.Float64("bpm", bpm), zap.Error(err))
			}
		}
		i.mu.Unlock()
	}
}

func (i *instrument) chunk() []byte {
	i.mu.Lock()
	defer i.mu.Unlock()
	var buf bytes.Buffer
	if err := i.project.Save(&buf); err != nil {
		i.log.Error("cannot save state", zap.Error(err))
		return nil
	}
	return buf.Bytes()
}

func (i *instrument) setChunk(data []byte) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.project.LoadFrom(bytes.NewReader(data)); err != nil {
		i.log.Error("cannot restore state", zap.Error(err))
		return
	}
	for _, t := range i.project.Router().Tracks() {
		if t.Kind() == echos.InstrumentNode {
			id := t.ID()
			i.track.Store(&id)
			return
		}
	}
	i.log.Warn("restored state has no instrument track")
}

func (i *instrument) close() {
	close(i.done)
	i.mu.Lock()
	i.project.Close()
	i.mu.Unlock()
	i.log.Sync()
}

func init() {
	vst2.PluginAllocator = func(h vst2.Host) (vst2.Plugin, vst2.Dispatcher) {
		inst, err := newInstrument(h)
		if err != nil {
			panic(err)
		}
		return vst2.Plugin{
				UniqueID:       pluginID,
				Version:        pluginVersion,
				InputChannels:  0,
				OutputChannels: 2,
				Name:           pluginName,
				Vendor:         "echosdaw/echos",
				Category:       vst2.PluginCategorySynth,
				Flags:          vst2.PluginIsSynth,
				ProcessFloatFunc: func(in, out vst2.FloatBuffer) {
					inst.process(out)
				},
			}, vst2.Dispatcher{
				CanDoFunc: func(pcds vst2.PluginCanDoString) vst2.CanDoResponse {
					switch pcds {
					case vst2.PluginCanReceiveEvents, vst2.PluginCanReceiveMIDIEvent, vst2.PluginCanReceiveTimeInfo:
						return vst2.YesCanDo
					}
					return vst2.NoCanDo
				},
				ProcessEventsFunc: func(ev *vst2.EventsPtr) {
					for j := 0; j < ev.NumEvents(); j++ {
						if v, ok := ev.Event(j).(*vst2.MIDIEvent); ok {
							inst.receive(v)
						}
					}
				},
				CloseFunc: inst.close,
				GetChunkFunc: func(isPreset bool) []byte {
					return inst.chunk()
				},
				SetChunkFunc: func(data []byte, isPreset bool) {
					inst.setChunk(data)
				},
			}
	}
}

func main() {}
