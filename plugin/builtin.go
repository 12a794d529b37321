package plugin

import (
	"fmt"
	"math"

	"gitlab.com/gomidi/midi/v2"

	"github.com/echosdaw/echos"
)

const (
	GainID      = "echos.gain"
	DelayID     = "echos.delay"
	LookaheadID = "echos.lookahead"
	SineID      = "echos.sine"

	lookaheadSamples = 128
	maxDelaySeconds  = 2
	numSineVoices    = 16
)

// Builtins returns the descriptors of the plugins every host can build
// without external binaries.
func Builtins() []echos.PluginDescriptor {
	return []echos.PluginDescriptor{
		{
			ID: GainID, Name: "Gain", Vendor: "echos", Category: "utility", Inputs: 2, Outputs: 2,
			Parameters: []echos.ParameterInfo{{Name: "gain", Min: echos.SilenceDB, Max: 24, Default: 0, Unit: "dB"}},
		},
		{
			ID: DelayID, Name: "Delay", Vendor: "echos", Category: "delay", Inputs: 2, Outputs: 2,
			Parameters: []echos.ParameterInfo{
				{Name: "time", Min: 0.001, Max: maxDelaySeconds, Default: 0.25, Unit: "s"},
				{Name: "feedback", Min: 0, Max: 0.95, Default: 0.3},
				{Name: "mix", Min: 0, Max: 1, Default: 0.3},
			},
		},
		{ID: LookaheadID, Name: "Lookahead", Vendor: "echos", Category: "dynamics", Inputs: 2, Outputs: 2},
		{
			ID: SineID, Name: "Sine", Vendor: "echos", Category: "synth", IsInstrument: true, Inputs: 0, Outputs: 2,
			Parameters: []echos.ParameterInfo{
				{Name: "gain", Min: echos.SilenceDB, Max: 12, Default: -12, Unit: "dB"},
				{Name: "release", Min: 0.001, Max: 5, Default: 0.05, Unit: "s"},
			},
		},
	}
}

// RegisterBuiltins adds the built-in descriptors to r.
func RegisterBuiltins(r *Registry) {
	for _, d := range Builtins() {
		r.Register(d)
	}
}

var builtinFactories = map[string]Factory{
	GainID: func(desc echos.PluginDescriptor, id string, _ int) (echos.PluginInstance, error) {
		return &gain{base: newBase(desc, id)}, nil
	},
	DelayID: func(desc echos.PluginDescriptor, id string, sampleRate int) (echos.PluginInstance, error) {
		if sampleRate <= 0 {
			return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
		}
		n := maxDelaySeconds*sampleRate + 1
		return &delay{base: newBase(desc, id), sampleRate: sampleRate, line: echos.NewAudioBuffer(n)}, nil
	},
	LookaheadID: func(desc echos.PluginDescriptor, id string, _ int) (echos.PluginInstance, error) {
		return &lookahead{base: newBase(desc, id), line: echos.NewAudioBuffer(lookaheadSamples)}, nil
	},
	SineID: func(desc echos.PluginDescriptor, id string, sampleRate int) (echos.PluginInstance, error) {
		if sampleRate <= 0 {
			return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
		}
		return &sine{base: newBase(desc, id), sampleRate: float64(sampleRate)}, nil
	},
}

type (
	base struct {
		id     string
		desc   echos.PluginDescriptor
		values map[string]float64
	}

	gain struct {
		base
	}

	delay struct {
		base
		sampleRate int
		line       echos.AudioBuffer
		pos        int
	}

	lookahead struct {
		base
		line echos.AudioBuffer
		pos  int
	}

	sine struct {
		base
		sampleRate float64
		voices     [numSineVoices]sineVoice
	}

	sineVoice struct {
		key   uint8
		gate  bool
		phase float64
		step  float64
		amp   float64
		env   float64
	}
)

func newBase(desc echos.PluginDescriptor, id string) base {
	b := base{id: id, desc: desc, values: make(map[string]float64, len(desc.Parameters))}
	for _, p := range desc.Parameters {
		b.values[p.Name] = p.Default
	}
	return b
}

func (b *base) ID() string          { return b.id }
func (b *base) PluginID() string    { return b.desc.ID }
func (b *base) IsInstrument() bool  { return b.desc.IsInstrument }
func (b *base) LatencySamples() int { return 0 }

// SetParameter clamps value to the parameter's range.
func (b *base) SetParameter(name string, value float64) error {
	info, ok := b.desc.Parameter(name)
	if !ok {
		return fmt.Errorf("plugin %v has no parameter %q", b.desc.ID, name)
	}
	b.values[name] = min(max(value, info.Min), info.Max)
	return nil
}

func (g *gain) Process(_ echos.TransportContext, _ []echos.MIDIEvent, in, out echos.AudioBuffer) error {
	v := float32(echos.DBToGain(g.values["gain"]))
	out.CopyFrom(in)
	out.Scale(v, v)
	return nil
}

func (d *delay) Process(_ echos.TransportContext, _ []echos.MIDIEvent, in, out echos.AudioBuffer) error {
	size := d.line.Frames()
	lag := min(max(int(d.values["time"]*float64(d.sampleRate)), 1), size-1)
	fb, mix := float32(d.values["feedback"]), float32(d.values["mix"])
	for i := range in.Frames() {
		read := (d.pos - lag + size) % size
		for c := range 2 {
			wet := d.line[c][read]
			d.line[c][d.pos] = in[c][i] + wet*fb
			out[c][i] = in[c][i]*(1-mix) + wet*mix
		}
		d.pos = (d.pos + 1) % size
	}
	return nil
}

func (l *lookahead) LatencySamples() int { return lookaheadSamples }

func (l *lookahead) Process(_ echos.TransportContext, _ []echos.MIDIEvent, in, out echos.AudioBuffer) error {
	for i := range in.Frames() {
		for c := range 2 {
			out[c][i] = l.line[c][l.pos]
			l.line[c][l.pos] = in[c][i]
		}
		l.pos = (l.pos + 1) % lookaheadSamples
	}
	return nil
}

func (s *sine) Process(_ echos.TransportContext, events []echos.MIDIEvent, _, out echos.AudioBuffer) error {
	level := echos.DBToGain(s.values["gain"])
	release := math.Exp(-1 / (s.values["release"] * s.sampleRate))
	next := 0
	for i := range out.Frames() {
		for next < len(events) && events[next].Frame <= i {
			s.handle(events[next].Message)
			next++
		}
		var sum float64
		for v := range s.voices {
			voice := &s.voices[v]
			if voice.gate {
				voice.env = 1
			} else {
				voice.env *= release
			}
			if voice.env < 1e-5 {
				continue
			}
			sum += math.Sin(2*math.Pi*voice.phase) * voice.amp * voice.env
			voice.phase += voice.step
			if voice.phase >= 1 {
				voice.phase--
			}
		}
		out[0][i] = float32(sum * level)
		out[1][i] = float32(sum * level)
	}
	for ; next < len(events); next++ {
		s.handle(events[next].Message)
	}
	return nil
}

func (s *sine) handle(msg midi.Message) {
	var channel, key, velocity uint8
	switch {
	case msg.GetNoteOn(&channel, &key, &velocity):
		v := s.freeVoice()
		s.voices[v] = sineVoice{
			key:  key,
			gate: true,
			step: 440 * math.Pow(2, (float64(key)-69)/12) / s.sampleRate,
			amp:  float64(velocity) / 127,
		}
	case msg.GetNoteOff(&channel, &key, &velocity):
		for v := range s.voices {
			if s.voices[v].gate && s.voices[v].key == key {
				s.voices[v].gate = false
			}
		}
	}
}

// freeVoice returns a silent voice, or the quietest released one, or voice 0.
func (s *sine) freeVoice() int {
	best, bestEnv := 0, math.Inf(1)
	for v := range s.voices {
		voice := s.voices[v]
		if voice.gate {
			continue
		}
		if voice.env < bestEnv {
			best, bestEnv = v, voice.env
		}
	}
	return best
}
