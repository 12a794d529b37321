package engine

import (
	"fmt"
	"slices"

	"github.com/echosdaw/echos"
)

// MessageKind enumerates the mutations the audio thread knows how to apply.
// Kinds before MsgClearProject are real-time safe: applying them neither
// allocates nor blocks.
type MessageKind int

const (
	MsgSetParameter MessageKind = iota
	MsgSetPluginBypass
	MsgSendMIDI

	MsgClearProject
	MsgAddNode
	MsgRemoveNode
	MsgAddConnection
	MsgRemoveConnection
	MsgAddPlugin
	MsgRemovePlugin
	MsgMovePlugin
	MsgAddSend
	MsgRemoveSend
	MsgSetTrackClips
	MsgAddTrackClip
	MsgSetTimelineState
	NumMessageKinds
)

var messageKindNames = [NumMessageKinds]string{
	"SetParameter", "SetPluginBypass", "SendMIDI", "ClearProject", "AddNode", "RemoveNode",
	"AddConnection", "RemoveConnection", "AddPlugin", "RemovePlugin", "MovePlugin",
	"AddSend", "RemoveSend", "SetTrackClips", "AddTrackClip", "SetTimelineState",
}

func (k MessageKind) String() string {
	if k < 0 || k >= NumMessageKinds {
		return fmt.Sprintf("MessageKind(%d)", int(k))
	}
	return messageKindNames[k]
}

// RealTime reports whether messages of this kind may be applied while the
// transport is playing.
func (k MessageKind) RealTime() bool { return k < MsgClearProject }

// Message is an immutable description of one mutation of the render graph
// or the timeline replica. Once posted, the engine owns it; the poster must
// not keep references to its slices. Use the constructors, which copy.
type Message struct {
	Kind MessageKind

	NodeID     string
	NodeKind   echos.NodeKind
	Connection echos.Connection
	InstanceID string
	PluginID   string
	Index      int
	Path       string
	Value      float64
	Bypassed   bool
	SendID     string
	PreFader   bool
	Clip       echos.Clip
	Clips      []echos.Clip
	Timeline   echos.TimelineState
	Events     []echos.MIDIEvent
}

func SetParameter(nodeID, path string, value float64) Message {
	return Message{Kind: MsgSetParameter, NodeID: nodeID, Path: path, Value: value}
}

func SetPluginBypass(nodeID, instanceID string, bypassed bool) Message {
	return Message{Kind: MsgSetPluginBypass, NodeID: nodeID, InstanceID: instanceID, Bypassed: bypassed}
}

// SendMIDI plays events on an instrument node in the next rendered block.
// Frames are relative to the start of that block.
func SendMIDI(nodeID string, events []echos.MIDIEvent) Message {
	return Message{Kind: MsgSendMIDI, NodeID: nodeID, Events: slices.Clone(events)}
}

func ClearProject() Message { return Message{Kind: MsgClearProject} }

func AddNode(id string, kind echos.NodeKind) Message {
	return Message{Kind: MsgAddNode, NodeID: id, NodeKind: kind}
}

func RemoveNode(id string) Message { return Message{Kind: MsgRemoveNode, NodeID: id} }

func AddConnection(c echos.Connection) Message {
	return Message{Kind: MsgAddConnection, Connection: c}
}

func RemoveConnection(c echos.Connection) Message {
	return Message{Kind: MsgRemoveConnection, Connection: c}
}

func AddPlugin(nodeID, instanceID, pluginID string, index int) Message {
	return Message{Kind: MsgAddPlugin, NodeID: nodeID, InstanceID: instanceID, PluginID: pluginID, Index: index}
}

func RemovePlugin(nodeID, instanceID string) Message {
	return Message{Kind: MsgRemovePlugin, NodeID: nodeID, InstanceID: instanceID}
}

func MovePlugin(nodeID, instanceID string, index int) Message {
	return Message{Kind: MsgMovePlugin, NodeID: nodeID, InstanceID: instanceID, Index: index}
}

// AddSend registers a send; Value carries its level in dB.
func AddSend(nodeID, sendID string, levelDB float64, preFader bool) Message {
	return Message{Kind: MsgAddSend, NodeID: nodeID, SendID: sendID, Value: levelDB, PreFader: preFader}
}

func RemoveSend(nodeID, sendID string) Message {
	return Message{Kind: MsgRemoveSend, NodeID: nodeID, SendID: sendID}
}

func SetTrackClips(nodeID string, clips []echos.Clip) Message {
	return Message{Kind: MsgSetTrackClips, NodeID: nodeID, Clips: echos.CopyClips(clips)}
}

func AddTrackClip(nodeID string, clip echos.Clip) Message {
	return Message{Kind: MsgAddTrackClip, NodeID: nodeID, Clip: clip.Copy()}
}

func SetTimelineState(state echos.TimelineState) Message {
	return Message{Kind: MsgSetTimelineState, Timeline: state.Copy()}
}
