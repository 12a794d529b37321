package echos

import (
	"fmt"
	"strings"
)

type (
	// NodeKind selects the node variant the render graph builds for a node.
	NodeKind int

	PortDirection int
	PortType      int

	// Port is a typed, directional endpoint on a node.
	Port struct {
		ID        string
		Direction PortDirection
		Type      PortType
	}

	// Connection is a directed edge between two nodes. Empty port ids mean
	// the main audio ports.
	Connection struct {
		Source     string `yaml:"source"`
		Dest       string `yaml:"dest"`
		SourcePort string `yaml:"source_port,omitempty"`
		DestPort   string `yaml:"dest_port,omitempty"`
	}
)

const (
	EffectNode NodeKind = iota
	BusNode
	InstrumentNode
	AudioTrackNode
	NumNodeKinds
)

const (
	PortInput PortDirection = iota
	PortOutput
)

const (
	AudioPort PortType = iota
	MIDIPort
)

const (
	MainInPort  = "main_in"
	MainOutPort = "main_out"
	MIDIInPort  = "midi_in"
	sendPrefix  = "send:"
)

var nodeKindNames = [NumNodeKinds]string{"effect", "bus", "instrument", "audio"}

func (k NodeKind) String() string {
	if k < 0 || k >= NumNodeKinds {
		return fmt.Sprintf("NodeKind(%d)", int(k))
	}
	return nodeKindNames[k]
}

func ParseNodeKind(s string) (NodeKind, error) {
	for i, name := range nodeKindNames {
		if strings.EqualFold(s, name) {
			return NodeKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown node kind %q", s)
}

func (k NodeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *NodeKind) UnmarshalText(text []byte) error {
	v, err := ParseNodeKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

func (d PortDirection) String() string {
	if d == PortInput {
		return "input"
	}
	return "output"
}

func (t PortType) String() string {
	if t == AudioPort {
		return "audio"
	}
	return "midi"
}

// SendPort returns the id of the output port that taps the given send.
func SendPort(sendID string) string { return sendPrefix + sendID }

// SendID returns the send id of a send port, or false if port is not one.
func SendID(port string) (string, bool) {
	return strings.CutPrefix(port, sendPrefix)
}

// Normalize fills in the default ports.
func (c Connection) Normalize() Connection {
	if c.SourcePort == "" {
		c.SourcePort = MainOutPort
	}
	if c.DestPort == "" {
		c.DestPort = MainInPort
	}
	return c
}

func (c Connection) String() string {
	c = c.Normalize()
	return fmt.Sprintf("%s:%s -> %s:%s", c.Source, c.SourcePort, c.Dest, c.DestPort)
}
