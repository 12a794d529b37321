package engine

import (
	"fmt"

	"github.com/echosdaw/echos"
)

// apply runs on the audio thread. Real-time kinds only touch state that
// already exists; the rest may allocate.
func (e *Engine) apply(m Message) error {
	g := e.graph
	switch m.Kind {
	case MsgSetParameter:
		return g.SetParameter(m.NodeID, m.Path, m.Value)
	case MsgSetPluginBypass:
		return g.SetPluginBypass(m.NodeID, m.InstanceID, m.Bypassed)
	case MsgSendMIDI:
		return g.QueueMIDI(m.NodeID, m.Events)
	case MsgClearProject:
		g.Clear()
		e.timeline = echos.DefaultTimelineState()
		return nil
	case MsgAddNode:
		return g.AddNode(m.NodeID, m.NodeKind)
	case MsgRemoveNode:
		return g.RemoveNode(m.NodeID)
	case MsgAddConnection:
		return g.AddConnection(m.Connection)
	case MsgRemoveConnection:
		return g.RemoveConnection(m.Connection)
	case MsgAddPlugin:
		return g.AddPlugin(m.NodeID, m.InstanceID, m.PluginID, m.Index)
	case MsgRemovePlugin:
		return g.RemovePlugin(m.NodeID, m.InstanceID)
	case MsgMovePlugin:
		return g.MovePlugin(m.NodeID, m.InstanceID, m.Index)
	case MsgAddSend:
		return g.AddSend(m.NodeID, m.SendID, m.Value, m.PreFader)
	case MsgRemoveSend:
		return g.RemoveSend(m.NodeID, m.SendID)
	case MsgSetTrackClips:
		return g.SetClips(m.NodeID, m.Clips)
	case MsgAddTrackClip:
		return g.AddClip(m.NodeID, m.Clip)
	case MsgSetTimelineState:
		if err := m.Timeline.Validate(); err != nil {
			return err
		}
		e.timeline = m.Timeline
		return nil
	case NumMessageKinds:
	}
	return fmt.Errorf("unknown message kind %v", m.Kind)
}
