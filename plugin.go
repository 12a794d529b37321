package echos

import (
	"gitlab.com/gomidi/midi/v2"
)

type (
	ParameterInfo struct {
		Name    string  `yaml:"name"`
		Min     float64 `yaml:"min"`
		Max     float64 `yaml:"max"`
		Default float64 `yaml:"default"`
		Unit    string  `yaml:"unit,omitempty"`
	}

	// PluginDescriptor describes a loadable plugin: its identity, port layout
	// and parameter ranges.
	PluginDescriptor struct {
		ID           string          `yaml:"id"`
		Name         string          `yaml:"name"`
		Vendor       string          `yaml:"vendor,omitempty"`
		Category     string          `yaml:"category,omitempty"`
		IsInstrument bool            `yaml:"instrument,omitempty"`
		Inputs       int             `yaml:"inputs"`
		Outputs      int             `yaml:"outputs"`
		Parameters   []ParameterInfo `yaml:"parameters,omitempty"`
	}

	// TransportContext is the read-only view of the transport handed to
	// every node and plugin for one block.
	TransportContext struct {
		Beat       float64
		SampleRate int
		BlockSize  int
		Tempo      float64
	}

	// MIDIEvent is a MIDI message scheduled inside one block. Offset is the
	// time from the start of the block in seconds, Frame the same in samples.
	MIDIEvent struct {
		Frame   int
		Offset  float64
		Message midi.Message
	}

	// PluginInstance is one loaded plugin, owned by exactly one node.
	PluginInstance interface {
		ID() string
		PluginID() string
		IsInstrument() bool
		LatencySamples() int
		SetParameter(name string, value float64) error
		// Process renders one block into out. Effects read in; instruments
		// ignore in and render the events.
		Process(ctx TransportContext, events []MIDIEvent, in, out AudioBuffer) error
	}

	// PluginHost creates and releases plugin instances. Instances are
	// addressed by the instance id chosen by the caller.
	PluginHost interface {
		CreateInstance(instanceID, pluginID string) (PluginInstance, error)
		ReleaseInstance(instanceID string) error
	}

	PluginRegistry interface {
		FindByID(id string) (PluginDescriptor, bool)
		ListAll() []PluginDescriptor
	}
)

// BlockSeconds is the duration of one block in seconds.
func (c TransportContext) BlockSeconds() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(c.BlockSize) / float64(c.SampleRate)
}

// BlockBeats is the number of beats one block spans at the current tempo.
func (c TransportContext) BlockBeats() float64 {
	return c.Tempo / 60 * c.BlockSeconds()
}

func (d PluginDescriptor) Parameter(name string) (ParameterInfo, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterInfo{}, false
}
