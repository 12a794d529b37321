package project

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/echosdaw/echos"
	"github.com/echosdaw/echos/event"
)

type (
	// Router owns the tracks of a project and the connections between them.
	// It refuses connections between missing or incompatible ports and
	// connections that would close a cycle, counting sends as connections.
	Router struct {
		tracks   []*Track
		conns    []echos.Connection
		registry echos.PluginRegistry
		bus      *event.Bus
		quiet    bool
		log      *zap.Logger
	}

	// RemovedNode is what RemoveNode took out of the router, enough to put
	// it back with RestoreNode.
	RemovedNode struct {
		Track       *Track
		Index       int
		Connections []echos.Connection
		// Incoming are the sends of other tracks that fed the removed one.
		Incoming []*Send
	}
)

func newRouter(bus *event.Bus, registry echos.PluginRegistry, log *zap.Logger) *Router {
	return &Router{bus: bus, registry: registry, log: log.Named("router")}
}

func (r *Router) publish(e event.Event) {
	if r.quiet || r.bus == nil {
		return
	}
	r.bus.Publish(e)
}

// Tracks lists the tracks in creation order.
func (r *Router) Tracks() []*Track { return slices.Clone(r.tracks) }

func (r *Router) Track(id string) (*Track, bool) {
	i := r.index(id)
	if i < 0 {
		return nil, false
	}
	return r.tracks[i], true
}

func (r *Router) index(id string) int {
	return slices.IndexFunc(r.tracks, func(t *Track) bool { return t.id == id })
}

func (r *Router) mustTrack(id string) (*Track, error) {
	t, ok := r.Track(id)
	if !ok {
		return nil, fmt.Errorf("track %v: %w", id, echos.ErrNodeNotFound)
	}
	return t, nil
}

// Connections lists the connections between main ports. Sends are listed by
// their tracks.
func (r *Router) Connections() []echos.Connection { return slices.Clone(r.conns) }

// AddTrack creates a track with a fresh id.
func (r *Router) AddTrack(kind echos.NodeKind, name string) (*Track, error) {
	return r.AddTrackWithID(uuid.NewString(), kind, name)
}

func (r *Router) AddTrackWithID(id string, kind echos.NodeKind, name string) (*Track, error) {
	if kind < 0 || kind >= echos.NumNodeKinds {
		return nil, fmt.Errorf("add track %q: invalid kind %v", name, kind)
	}
	if _, ok := r.Track(id); ok {
		return nil, fmt.Errorf("add track %v: %w", id, echos.ErrNodeExists)
	}
	t := newTrack(r, id, name, kind)
	r.tracks = append(r.tracks, t)
	t.announce()
	return t, nil
}

// RemoveNode removes a track with every connection and send touching it.
func (r *Router) RemoveNode(id string) (RemovedNode, error) {
	i := r.index(id)
	if i < 0 {
		return RemovedNode{}, fmt.Errorf("remove node %v: %w", id, echos.ErrNodeNotFound)
	}
	t := r.tracks[i]
	rm := RemovedNode{Track: t, Index: i}
	for _, o := range r.tracks {
		if o == t {
			continue
		}
		for _, s := range o.sends {
			if s.target == id {
				rm.Incoming = append(rm.Incoming, s)
			}
		}
	}
	for _, s := range rm.Incoming {
		r.dropSend(s)
	}
	for _, c := range r.conns {
		if c.Source == id || c.Dest == id {
			rm.Connections = append(rm.Connections, c)
		}
	}
	for _, c := range rm.Connections {
		r.dropConnection(c)
	}
	r.tracks = slices.Delete(r.tracks, i, i+1)
	r.publish(event.Event{Kind: event.NodeRemoved, NodeID: id, NodeKind: t.kind, Name: t.name})
	return rm, nil
}

// RestoreNode puts back what RemoveNode removed.
func (r *Router) RestoreNode(rm RemovedNode) error {
	t := rm.Track
	if _, ok := r.Track(t.id); ok {
		return fmt.Errorf("restore node %v: %w", t.id, echos.ErrNodeExists)
	}
	for _, s := range t.sends {
		if _, err := r.mustTrack(s.target); err != nil {
			return fmt.Errorf("restore node %v: send %v: %w", t.id, s.id, err)
		}
	}
	i := min(max(rm.Index, 0), len(r.tracks))
	r.tracks = slices.Insert(r.tracks, i, t)
	t.announce()
	for _, s := range t.sends {
		s.announce()
	}
	for _, c := range rm.Connections {
		if err := r.Connect(c); err != nil {
			return fmt.Errorf("restore node %v: %w", t.id, err)
		}
	}
	for _, s := range rm.Incoming {
		if err := r.addSend(s); err != nil {
			return fmt.Errorf("restore node %v: %w", t.id, err)
		}
	}
	return nil
}

// Connect adds a connection from an audio output to an audio input. Empty
// ports mean the main ones.
func (r *Router) Connect(c echos.Connection) error {
	c = c.Normalize()
	src, err := r.mustTrack(c.Source)
	if err != nil {
		return fmt.Errorf("connect %v: %w", c, err)
	}
	dst, err := r.mustTrack(c.Dest)
	if err != nil {
		return fmt.Errorf("connect %v: %w", c, err)
	}
	if _, ok := echos.SendID(c.SourcePort); ok {
		return fmt.Errorf("connect %v: send ports are connected by their sends: %w", c, echos.ErrPortMismatch)
	}
	sp, ok := src.Port(c.SourcePort)
	if !ok || sp.Direction != echos.PortOutput {
		return fmt.Errorf("connect %v: %w: %v has no output %v", c, echos.ErrPortNotFound, c.Source, c.SourcePort)
	}
	dp, ok := dst.Port(c.DestPort)
	if !ok || dp.Direction != echos.PortInput {
		return fmt.Errorf("connect %v: %w: %v has no input %v", c, echos.ErrPortNotFound, c.Dest, c.DestPort)
	}
	if sp.Type != dp.Type {
		return fmt.Errorf("connect %v: %w: %v to %v", c, echos.ErrPortMismatch, sp.Type, dp.Type)
	}
	if slices.Contains(r.conns, c) {
		return fmt.Errorf("connect %v: %w", c, echos.ErrDuplicateConnection)
	}
	if r.reachable(c.Dest, c.Source) {
		return fmt.Errorf("connect %v: %w", c, echos.ErrCycle)
	}
	r.conns = append(r.conns, c)
	r.publish(event.Event{Kind: event.ConnectionAdded, Connection: c})
	return nil
}

func (r *Router) Disconnect(c echos.Connection) error {
	c = c.Normalize()
	if !slices.Contains(r.conns, c) {
		return fmt.Errorf("disconnect %v: %w", c, echos.ErrConnectionNotFound)
	}
	r.dropConnection(c)
	return nil
}

func (r *Router) dropConnection(c echos.Connection) {
	r.conns = slices.DeleteFunc(r.conns, func(o echos.Connection) bool { return o == c })
	r.publish(event.Event{Kind: event.ConnectionRemoved, Connection: c})
}

// reachable reports whether to can be reached from from along connections
// and sends.
func (r *Router) reachable(from, to string) bool {
	seen := map[string]bool{}
	stack := []string{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == to {
			return true
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, c := range r.conns {
			if c.Source == id {
				stack = append(stack, c.Dest)
			}
		}
		if t, ok := r.Track(id); ok {
			for _, s := range t.sends {
				stack = append(stack, s.target)
			}
		}
	}
	return false
}

// AddSend creates a send from one track to the input of another.
func (r *Router) AddSend(trackID, target string, levelDB float64, preFader bool) (*Send, error) {
	t, err := r.mustTrack(trackID)
	if err != nil {
		return nil, fmt.Errorf("add send: %w", err)
	}
	s := t.newSend(uuid.NewString(), target, levelDB, preFader)
	if err := r.addSend(s); err != nil {
		return nil, err
	}
	return s, nil
}

// addSend validates and attaches a send to its track, new or restored.
func (r *Router) addSend(s *Send) error {
	t := s.track
	if _, ok := r.Track(t.id); !ok {
		return fmt.Errorf("add send %v: %w: %v", s.id, echos.ErrNodeNotFound, t.id)
	}
	if _, ok := t.Send(s.id); ok {
		return fmt.Errorf("add send %v: already on %v", s.id, t.id)
	}
	dst, err := r.mustTrack(s.target)
	if err != nil {
		return fmt.Errorf("add send %v: %w", s.id, err)
	}
	if p, ok := dst.Port(echos.MainInPort); !ok || p.Type != echos.AudioPort {
		return fmt.Errorf("add send %v: %w: %v has no audio input", s.id, echos.ErrPortNotFound, s.target)
	}
	if s.target == t.id || r.reachable(s.target, t.id) {
		return fmt.Errorf("add send %v from %v to %v: %w", s.id, t.id, s.target, echos.ErrCycle)
	}
	t.sends = append(t.sends, s)
	s.announce()
	return nil
}

// RemoveSend detaches a send and returns it so that RestoreSend can put it
// back.
func (r *Router) RemoveSend(trackID, sendID string) (*Send, error) {
	t, err := r.mustTrack(trackID)
	if err != nil {
		return nil, fmt.Errorf("remove send: %w", err)
	}
	s, ok := t.Send(sendID)
	if !ok {
		return nil, fmt.Errorf("remove send %v from %v: %w", sendID, trackID, ErrSendNotFound)
	}
	r.dropSend(s)
	return s, nil
}

func (r *Router) RestoreSend(s *Send) error { return r.addSend(s) }

func (r *Router) dropSend(s *Send) {
	t := s.track
	t.sends = slices.DeleteFunc(t.sends, func(o *Send) bool { return o == s })
	r.publish(event.Event{Kind: event.SendRemoved, NodeID: t.id, SendID: s.id, Target: s.target})
}
