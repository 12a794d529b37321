// Package graph implements the render graph: the nodes, their connections
// and the processing order used to render one block of audio.
//
// A Graph is owned by a single goroutine, the audio callback. It takes no
// locks; everything that mutates it is funneled through the engine's message
// queues.
package graph

import (
	"fmt"
	"slices"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/echosdaw/echos"
)

type (
	Graph struct {
		host      echos.PluginHost
		blockSize int

		nodes       map[string]*Node
		insertion   []*Node
		connections []echos.Connection
		order       []*Node
		sinks       []*Node
		owner       map[string]*Node // plugin instance id -> node

		master echos.AudioBuffer
		stats  Stats
		cycle  atomic.Bool
		log    *zap.Logger
	}

	// Stats counts what the graph holds and what has happened to it.
	// LiveDropped is the number of live MIDI events that did not fit in the
	// buffer of their node.
	Stats struct {
		Nodes              int
		Connections        int
		Plugins            int
		LatencySamples     int
		BlocksProcessed    uint64
		NodesAdded         uint64
		NodesRemoved       uint64
		ConnectionsAdded   uint64
		ConnectionsRemoved uint64
		PluginsAdded       uint64
		PluginsRemoved     uint64
		PluginsMoved       uint64
		LiveDropped        uint64
		CycleDetected      bool
	}
)

// New creates an empty graph rendering blocks of blockSize frames. Plugin
// instances are created and released through host.
func New(host echos.PluginHost, blockSize int, log *zap.Logger) *Graph {
	if log == nil {
		log = zap.NewNop()
	}
	return &Graph{
		host:      host,
		blockSize: blockSize,
		nodes:     make(map[string]*Node),
		owner:     make(map[string]*Node),
		master:    echos.NewAudioBuffer(blockSize),
		log:       log.Named("graph"),
	}
}

func (g *Graph) BlockSize() int { return g.blockSize }

func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// AddNode adds a node of the given kind. Adding an id that already exists
// does nothing.
func (g *Graph) AddNode(id string, kind echos.NodeKind) error {
	if _, ok := g.nodes[id]; ok {
		return nil
	}
	if kind < 0 || kind >= echos.NumNodeKinds {
		return fmt.Errorf("add node %v: invalid kind %v", id, kind)
	}
	n := newNode(id, kind, g.blockSize, g.log)
	g.nodes[id] = n
	g.insertion = append(g.insertion, n)
	g.stats.NodesAdded++
	g.rebuild()
	return nil
}

// RemoveNode removes the node, every connection touching it and releases
// all of its plugin instances.
func (g *Graph) RemoveNode(id string) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("remove node %v: %w", id, echos.ErrNodeNotFound)
	}
	g.connections = slices.DeleteFunc(g.connections, func(c echos.Connection) bool {
		return c.Source == id || c.Dest == id
	})
	for _, inst := range n.instances() {
		g.release(inst)
	}
	delete(g.nodes, id)
	g.insertion = slices.DeleteFunc(g.insertion, func(m *Node) bool { return m == n })
	g.stats.NodesRemoved++
	g.rebuild()
	return nil
}

// AddConnection adds the edge c. It fails without changing anything if an
// endpoint is missing, the edge exists or the edge would close a cycle.
func (g *Graph) AddConnection(c echos.Connection) error {
	c = c.Normalize()
	if _, ok := g.nodes[c.Source]; !ok {
		return fmt.Errorf("connect %v: %w: %v", c, echos.ErrNodeNotFound, c.Source)
	}
	if _, ok := g.nodes[c.Dest]; !ok {
		return fmt.Errorf("connect %v: %w: %v", c, echos.ErrNodeNotFound, c.Dest)
	}
	if slices.Contains(g.connections, c) {
		return fmt.Errorf("connect %v: %w", c, echos.ErrDuplicateConnection)
	}
	if g.reachable(c.Dest, c.Source) {
		return fmt.Errorf("connect %v: %w", c, echos.ErrCycle)
	}
	g.connections = append(g.connections, c)
	g.stats.ConnectionsAdded++
	g.rebuild()
	return nil
}

func (g *Graph) RemoveConnection(c echos.Connection) error {
	c = c.Normalize()
	i := slices.Index(g.connections, c)
	if i < 0 {
		return fmt.Errorf("disconnect %v: %w", c, echos.ErrConnectionNotFound)
	}
	g.connections = slices.Delete(g.connections, i, i+1)
	g.stats.ConnectionsRemoved++
	g.rebuild()
	return nil
}

// reachable reports whether to can be reached from from by following
// connections.
func (g *Graph) reachable(from, to string) bool {
	if from == to {
		return true
	}
	visited := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range g.connections {
			if c.Source != cur || visited[c.Dest] {
				continue
			}
			if c.Dest == to {
				return true
			}
			visited[c.Dest] = true
			stack = append(stack, c.Dest)
		}
	}
	return false
}

func (g *Graph) Connections() []echos.Connection {
	return slices.Clone(g.connections)
}

// AddPlugin creates an instance of pluginID and inserts it into the node at
// index. If the host cannot create the instance nothing changes.
func (g *Graph) AddPlugin(nodeID, instanceID, pluginID string, index int) error {
	n, ok := g.nodes[nodeID]
	if !ok {
		return fmt.Errorf("add plugin %v: %w: %v", instanceID, echos.ErrNodeNotFound, nodeID)
	}
	if _, ok := g.owner[instanceID]; ok {
		return fmt.Errorf("add plugin %v: instance already in the graph", instanceID)
	}
	inst, err := g.host.CreateInstance(instanceID, pluginID)
	if err != nil {
		return fmt.Errorf("add plugin %v to %v: %w", instanceID, nodeID, err)
	}
	if replaced := n.addPlugin(inst, index); replaced != nil {
		g.release(replaced)
	}
	g.owner[instanceID] = n
	g.stats.PluginsAdded++
	return nil
}

func (g *Graph) RemovePlugin(nodeID, instanceID string) error {
	n, ok := g.nodes[nodeID]
	if !ok {
		return fmt.Errorf("remove plugin %v: %w: %v", instanceID, echos.ErrNodeNotFound, nodeID)
	}
	inst := n.removePlugin(instanceID)
	if inst == nil {
		return fmt.Errorf("remove plugin %v from %v: %w", instanceID, nodeID, echos.ErrPluginNotFound)
	}
	g.release(inst)
	g.stats.PluginsRemoved++
	return nil
}

func (g *Graph) MovePlugin(nodeID, instanceID string, index int) error {
	n, ok := g.nodes[nodeID]
	if !ok {
		return fmt.Errorf("move plugin %v: %w: %v", instanceID, echos.ErrNodeNotFound, nodeID)
	}
	if !n.movePlugin(instanceID, index) {
		return fmt.Errorf("move plugin %v in %v: %w", instanceID, nodeID, echos.ErrPluginNotFound)
	}
	g.stats.PluginsMoved++
	return nil
}

func (g *Graph) release(inst echos.PluginInstance) {
	delete(g.owner, inst.ID())
	if err := g.host.ReleaseInstance(inst.ID()); err != nil {
		g.log.Warn("could not release plugin instance", zap.String("instance", inst.ID()), zap.Error(err))
	}
}

// SetParameter sets a parameter of a node, see Node.SetParameter for the
// path syntax.
func (g *Graph) SetParameter(nodeID, path string, value float64) error {
	n, ok := g.nodes[nodeID]
	if !ok {
		return fmt.Errorf("set %v: %w: %v", path, echos.ErrNodeNotFound, nodeID)
	}
	return n.SetParameter(path, value)
}

func (g *Graph) SetPluginBypass(nodeID, instanceID string, bypassed bool) error {
	n, ok := g.nodes[nodeID]
	if !ok {
		return fmt.Errorf("bypass %v: %w: %v", instanceID, echos.ErrNodeNotFound, nodeID)
	}
	return n.setBypass(instanceID, bypassed)
}

// AddSend registers a send on a node. The send carries signal once a
// connection from its send port exists.
func (g *Graph) AddSend(nodeID, sendID string, levelDB float64, preFader bool) error {
	n, ok := g.nodes[nodeID]
	if !ok {
		return fmt.Errorf("add send %v: %w: %v", sendID, echos.ErrNodeNotFound, nodeID)
	}
	n.sends[sendID] = &send{level: float32(echos.DBToGain(levelDB)), pre: preFader}
	return nil
}

func (g *Graph) RemoveSend(nodeID, sendID string) error {
	n, ok := g.nodes[nodeID]
	if !ok {
		return fmt.Errorf("remove send %v: %w: %v", sendID, echos.ErrNodeNotFound, nodeID)
	}
	delete(n.sends, sendID)
	return nil
}

func (g *Graph) SetClips(nodeID string, clips []echos.Clip) error {
	n, err := g.instrumentNode(nodeID)
	if err != nil {
		return err
	}
	n.scheduler.setClips(clips)
	return nil
}

func (g *Graph) AddClip(nodeID string, clip echos.Clip) error {
	n, err := g.instrumentNode(nodeID)
	if err != nil {
		return err
	}
	n.scheduler.addClip(clip)
	return nil
}

// QueueMIDI adds live events to the next block rendered by an instrument
// node. They are merged with the events of its clips. Events beyond the
// capacity of the node's buffer are dropped and counted.
func (g *Graph) QueueMIDI(nodeID string, events []echos.MIDIEvent) error {
	n, err := g.instrumentNode(nodeID)
	if err != nil {
		return err
	}
	if room := cap(n.live) - len(n.live); len(events) > room {
		g.stats.LiveDropped += uint64(len(events) - room)
		events = events[:room]
	}
	n.live = append(n.live, events...)
	return nil
}

// DropLive discards the live events no block has rendered yet. The engine
// calls it for every block it does not render.
func (g *Graph) DropLive() {
	for _, n := range g.insertion {
		n.live = n.live[:0]
	}
}

func (g *Graph) instrumentNode(id string) (*Node, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("instrument %v: %w", id, echos.ErrNodeNotFound)
	}
	if n.kind != echos.InstrumentNode {
		return nil, fmt.Errorf("instrument %v: node is %v", id, n.kind)
	}
	return n, nil
}

// Clear removes every node and connection and releases every plugin.
func (g *Graph) Clear() {
	for _, n := range g.insertion {
		for _, inst := range n.instances() {
			g.release(inst)
		}
	}
	g.stats.NodesRemoved += uint64(len(g.nodes))
	clear(g.nodes)
	g.insertion = g.insertion[:0]
	g.connections = g.connections[:0]
	g.rebuild()
}

// TotalLatency is the largest latency of any node in samples.
func (g *Graph) TotalLatency() int {
	latency := 0
	for _, n := range g.insertion {
		latency = max(latency, n.latency)
	}
	return latency
}

func (g *Graph) PluginCount() int {
	count := 0
	for _, n := range g.insertion {
		count += n.pluginCount()
	}
	return count
}

// ProcessOrder returns the node ids in the order they are rendered.
func (g *Graph) ProcessOrder() []string {
	ret := make([]string, len(g.order))
	for i, n := range g.order {
		ret[i] = n.id
	}
	return ret
}

// CycleDetected reports whether the last order computation found a cycle
// and fell back to insertion order. It is safe to call from any goroutine.
func (g *Graph) CycleDetected() bool { return g.cycle.Load() }

func (g *Graph) Stats() Stats {
	s := g.stats
	s.Nodes = len(g.nodes)
	s.Connections = len(g.connections)
	s.Plugins = g.PluginCount()
	s.LatencySamples = g.TotalLatency()
	s.CycleDetected = g.cycle.Load()
	return s
}

// ProcessBlock renders every node in processing order and returns the sum
// of the sink nodes. The returned buffer is reused by the next call.
func (g *Graph) ProcessBlock(ctx echos.TransportContext) echos.AudioBuffer {
	g.master.Clear()
	for _, n := range g.order {
		for i := range n.inputs {
			in := &n.inputs[i]
			if in.sendID == "" {
				n.inBufs[i] = in.src.out
				continue
			}
			buf, gain := in.src.tap(in.sendID)
			in.scaled.CopyFrom(buf)
			in.scaled.Scale(gain, gain)
			n.inBufs[i] = in.scaled
		}
		n.Process(ctx, n.inBufs)
	}
	for _, n := range g.sinks {
		g.master.Add(n.out)
	}
	g.stats.BlocksProcessed++
	return g.master
}

// rebuild recomputes the processing order, the inputs of every node and the
// sink list. It allocates and must only run on structural changes.
func (g *Graph) rebuild() {
	order, ok := kahn(g.insertion, g.connections)
	if !ok {
		g.log.Error("cycle in render graph, falling back to insertion order",
			zap.Int("nodes", len(g.insertion)), zap.Int("ordered", len(order)))
		order = slices.Clone(g.insertion)
	}
	g.cycle.Store(!ok)
	g.order = order
	g.sinks = g.sinks[:0]
	for _, n := range g.insertion {
		n.inputs = n.inputs[:0]
	}
	hasOutput := make(map[string]bool, len(g.nodes))
	for _, c := range g.connections {
		src, dst := g.nodes[c.Source], g.nodes[c.Dest]
		hasOutput[c.Source] = true
		in := input{src: src}
		if id, ok := echos.SendID(c.SourcePort); ok {
			in.sendID = id
			in.scaled = echos.NewAudioBuffer(g.blockSize)
		}
		dst.inputs = append(dst.inputs, in)
	}
	for _, n := range g.insertion {
		n.inBufs = make([]echos.AudioBuffer, len(n.inputs))
		if !hasOutput[n.id] {
			g.sinks = append(g.sinks, n)
		}
	}
}

// kahn orders nodes so that every connection points forward. Nodes with no
// pending inputs are taken in insertion order. ok is false if some nodes
// could not be ordered because they are on a cycle.
func kahn(nodes []*Node, connections []echos.Connection) (order []*Node, ok bool) {
	indegree := make(map[string]int, len(nodes))
	for _, c := range connections {
		indegree[c.Dest]++
	}
	queue := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		if indegree[n.id] == 0 {
			queue = append(queue, n)
		}
	}
	byID := make(map[string]*Node, len(nodes))
	for _, n := range nodes {
		byID[n.id] = n
	}
	order = make([]*Node, 0, len(nodes))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, c := range connections {
			if c.Source != n.id {
				continue
			}
			indegree[c.Dest]--
			if indegree[c.Dest] == 0 {
				queue = append(queue, byID[c.Dest])
			}
		}
	}
	return order, len(order) == len(nodes)
}
