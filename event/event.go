// Package event is the in-process publish/subscribe bus the domain model
// uses to announce its mutations.
package event

import (
	"fmt"
	"time"

	"github.com/echosdaw/echos"
)

// Kind enumerates every event the domain model publishes.
type Kind int

const (
	ProjectLoaded Kind = iota
	ProjectClosed
	NodeAdded
	NodeRemoved
	NodeRenamed
	ConnectionAdded
	ConnectionRemoved
	InsertAdded
	InsertRemoved
	InsertMoved
	PluginEnabledChanged
	ParameterChanged
	ClipAdded
	ClipRemoved
	NotesAdded
	NotesRemoved
	SendAdded
	SendRemoved
	TimelineStateChanged
	NumKinds
)

var kindNames = [NumKinds]string{
	"ProjectLoaded", "ProjectClosed", "NodeAdded", "NodeRemoved", "NodeRenamed",
	"ConnectionAdded", "ConnectionRemoved", "InsertAdded", "InsertRemoved", "InsertMoved",
	"PluginEnabledChanged", "ParameterChanged", "ClipAdded", "ClipRemoved", "NotesAdded",
	"NotesRemoved", "SendAdded", "SendRemoved", "TimelineStateChanged",
}

func (k Kind) String() string {
	if k < 0 || k >= NumKinds {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Event is one domain mutation. Which fields are set depends on Kind:
//
//	ProjectLoaded                     Project
//	NodeAdded, NodeRemoved            NodeID, NodeKind, Name
//	NodeRenamed                       NodeID, Name
//	ConnectionAdded/Removed           Connection
//	InsertAdded                       NodeID, InstanceID, PluginID, Index
//	InsertRemoved                     NodeID, InstanceID
//	InsertMoved                       NodeID, InstanceID, OldIndex, Index
//	PluginEnabledChanged              NodeID, InstanceID, Enabled
//	ParameterChanged                  NodeID, Path, Value
//	ClipAdded                         NodeID, Clip
//	ClipRemoved, NotesAdded/Removed   NodeID, Clip, Notes, Clips (all clips of the node after the change)
//	SendAdded                         NodeID, SendID, Target, Value (level in dB), PreFader
//	SendRemoved                       NodeID, SendID, Target
//	TimelineStateChanged              Timeline
//
// Payload slices are owned by the event and must not be modified by
// handlers.
type Event struct {
	Kind Kind
	Time time.Time

	NodeID     string
	NodeKind   echos.NodeKind
	Name       string
	Connection echos.Connection
	InstanceID string
	PluginID   string
	Index      int
	OldIndex   int
	Enabled    bool
	Path       string
	Value      float64
	SendID     string
	Target     string
	PreFader   bool
	Clip       echos.Clip
	Clips      []echos.Clip
	Notes      []echos.Note
	Timeline   echos.TimelineState
	Project    *echos.ProjectState
}
