package engine

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/echosdaw/echos"
	"github.com/echosdaw/echos/event"
)

type (
	// Poster accepts messages for the audio thread. Post routes a message by
	// its kind; Defer always uses the non-real-time queue, keeping the
	// message in order with the structural edits around it. Pending is the
	// number of non-real-time messages not yet applied.
	Poster interface {
		Post(m Message) error
		Defer(m Message) error
		Pending() int
	}

	// Mountable is something that follows the events of a bus until
	// unmounted.
	Mountable interface {
		Mount(bus *event.Bus)
		Unmount()
	}

	// SyncController mirrors domain events into engine messages.
	SyncController struct {
		poster Poster

		mu      sync.Mutex
		cancels []func()

		// targets holds the nodes, inserts and sends that queued structural
		// messages will create. Real-time messages addressing them wait in the
		// non-real-time queue.
		targetsMu sync.Mutex
		targets   map[string]struct{}

		posted   atomic.Uint64
		rejected atomic.Uint64
		log      *zap.Logger
	}
)

var _ Mountable = (*SyncController)(nil)

func NewSyncController(poster Poster, log *zap.Logger) *SyncController {
	if log == nil {
		log = zap.NewNop()
	}
	return &SyncController{poster: poster, targets: map[string]struct{}{}, log: log.Named("sync")}
}

// Mount subscribes to bus. A controller follows one bus at a time; mounting
// again moves it.
func (s *SyncController) Mount(bus *event.Bus) {
	s.Unmount()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range event.NumKinds {
		s.cancels = append(s.cancels, bus.Subscribe(k, s.handle))
	}
}

func (s *SyncController) Unmount() {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

// Posted and Rejected count the messages the controller sent and the ones
// the engine refused because a queue was full.
func (s *SyncController) Posted() uint64   { return s.posted.Load() }
func (s *SyncController) Rejected() uint64 { return s.rejected.Load() }

func (s *SyncController) handle(e event.Event) {
	switch e.Kind {
	case event.ProjectLoaded:
		s.post(ClearProject())
		if e.Project != nil {
			s.load(e.Project)
		}
	case event.ProjectClosed:
		s.post(ClearProject())
	case event.NodeAdded:
		s.post(AddNode(e.NodeID, e.NodeKind))
	case event.NodeRemoved:
		s.post(RemoveNode(e.NodeID))
	case event.NodeRenamed:
	case event.ConnectionAdded:
		s.post(AddConnection(e.Connection))
	case event.ConnectionRemoved:
		s.post(RemoveConnection(e.Connection))
	case event.InsertAdded:
		s.post(AddPlugin(e.NodeID, e.InstanceID, e.PluginID, e.Index))
	case event.InsertRemoved:
		s.post(RemovePlugin(e.NodeID, e.InstanceID))
	case event.InsertMoved:
		s.post(MovePlugin(e.NodeID, e.InstanceID, e.Index))
	case event.PluginEnabledChanged:
		s.post(SetPluginBypass(e.NodeID, e.InstanceID, !e.Enabled))
	case event.ParameterChanged:
		s.post(SetParameter(e.NodeID, e.Path, e.Value))
	case event.ClipAdded:
		s.post(AddTrackClip(e.NodeID, e.Clip))
	case event.ClipRemoved, event.NotesAdded, event.NotesRemoved:
		s.post(SetTrackClips(e.NodeID, e.Clips))
	case event.SendAdded:
		s.post(AddSend(e.NodeID, e.SendID, e.Value, e.PreFader))
		s.post(AddConnection(sendConnection(e.NodeID, e.SendID, e.Target)))
	case event.SendRemoved:
		s.post(RemoveConnection(sendConnection(e.NodeID, e.SendID, e.Target)))
		s.post(RemoveSend(e.NodeID, e.SendID))
	case event.TimelineStateChanged:
		s.post(SetTimelineState(e.Timeline))
	case event.NumKinds:
	}
}

func sendConnection(node, send, target string) echos.Connection {
	return echos.Connection{Source: node, SourcePort: echos.SendPort(send), Dest: target, DestPort: echos.MainInPort}
}

// load rebuilds the whole render graph from a project snapshot. Everything
// goes through the non-real-time queue so parameters land after the nodes
// they address.
func (s *SyncController) load(p *echos.ProjectState) {
	for _, n := range p.Nodes {
		s.deferred(AddNode(n.ID, n.Kind))
		for i, ins := range n.Inserts {
			s.deferred(AddPlugin(n.ID, ins.ID, ins.PluginID, i))
			for name, v := range ins.Parameters {
				s.deferred(SetParameter(n.ID, fmt.Sprintf("plugin.%s.%s", ins.ID, name), v))
			}
			if !ins.Enabled {
				s.deferred(SetPluginBypass(n.ID, ins.ID, true))
			}
		}
		s.deferred(SetParameter(n.ID, "mixer.volume", n.VolumeDB))
		s.deferred(SetParameter(n.ID, "mixer.pan", n.Pan))
		if n.Muted {
			s.deferred(SetParameter(n.ID, "mixer.muted", 1))
		}
		if n.Kind == echos.InstrumentNode && len(n.Clips) > 0 {
			s.deferred(SetTrackClips(n.ID, n.Clips))
		}
	}
	for _, c := range p.Connections {
		s.deferred(AddConnection(c))
	}
	for _, n := range p.Nodes {
		for _, snd := range n.Sends {
			s.deferred(AddSend(n.ID, snd.ID, snd.LevelDB, snd.PreFader))
			s.deferred(AddConnection(sendConnection(n.ID, snd.ID, snd.Target)))
		}
	}
	s.deferred(SetTimelineState(p.Timeline))
}

// post sends m by its kind, except that a real-time message addressing a
// node, insert or send still waiting to be created queues behind its
// creation.
func (s *SyncController) post(m Message) {
	if s.track(m) {
		s.deferred(m)
		return
	}
	s.result(m, s.poster.Post(m))
}

func (s *SyncController) deferred(m Message) {
	s.track(m)
	s.result(m, s.poster.Defer(m))
}

// track records what m creates and reports whether m is a real-time message
// for something not created yet.
func (s *SyncController) track(m Message) bool {
	s.targetsMu.Lock()
	defer s.targetsMu.Unlock()
	if s.poster.Pending() == 0 {
		clear(s.targets)
	}
	switch m.Kind {
	case MsgAddNode:
		s.targets[m.NodeID] = struct{}{}
	case MsgAddPlugin:
		s.targets[insertTarget(m.NodeID, m.InstanceID)] = struct{}{}
	case MsgAddSend:
		s.targets[sendTarget(m.NodeID, m.SendID)] = struct{}{}
	}
	if !m.Kind.RealTime() || len(s.targets) == 0 {
		return false
	}
	if _, ok := s.targets[m.NodeID]; ok {
		return true
	}
	var key string
	switch m.Kind {
	case MsgSetPluginBypass:
		key = insertTarget(m.NodeID, m.InstanceID)
	case MsgSetParameter:
		section, rest, _ := strings.Cut(m.Path, ".")
		id, _, _ := strings.Cut(rest, ".")
		switch section {
		case "plugin":
			key = insertTarget(m.NodeID, id)
		case "send":
			key = sendTarget(m.NodeID, id)
		}
	}
	_, ok := s.targets[key]
	return ok
}

func insertTarget(node, instance string) string { return node + "/plugin/" + instance }
func sendTarget(node, send string) string       { return node + "/send/" + send }

func (s *SyncController) result(m Message, err error) {
	if err != nil {
		s.rejected.Add(1)
		s.log.Error("message dropped", zap.Stringer("kind", m.Kind), zap.String("node", m.NodeID), zap.Error(err))
		return
	}
	s.posted.Add(1)
}
