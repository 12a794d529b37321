package graph

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/echosdaw/echos"
)

type (
	// Node is one unit of audio processing in the graph. Which variant it is
	// is decided by its kind: instrument nodes render their clips through an
	// instrument plugin, all other kinds sum their inputs. Every variant then
	// runs its plugin chain, volume and pan.
	Node struct {
		id   string
		kind echos.NodeKind

		chain      []*slot
		instrument *slot      // instrument nodes only
		scheduler  *scheduler // instrument nodes only
		live       []echos.MIDIEvent
		latency    int

		volume float32
		pan    float32
		muted  bool
		sends  map[string]*send

		in, pre, out echos.AudioBuffer
		scratch      [2]echos.AudioBuffer

		// filled by the graph whenever the topology changes
		inputs []input
		inBufs []echos.AudioBuffer

		failing bool
		log     *zap.Logger
	}

	slot struct {
		inst     echos.PluginInstance
		bypassed bool
	}

	send struct {
		level float32
		pre   bool
	}

	input struct {
		src    *Node
		sendID string
		scaled echos.AudioBuffer // only for send inputs
	}
)

const liveCapacity = 256

func newNode(id string, kind echos.NodeKind, blockSize int, log *zap.Logger) *Node {
	n := &Node{
		id:      id,
		kind:    kind,
		volume:  1,
		sends:   make(map[string]*send),
		in:      echos.NewAudioBuffer(blockSize),
		pre:     echos.NewAudioBuffer(blockSize),
		out:     echos.NewAudioBuffer(blockSize),
		scratch: [2]echos.AudioBuffer{echos.NewAudioBuffer(blockSize), echos.NewAudioBuffer(blockSize)},
		log:     log.With(zap.String("node", id)),
	}
	if kind == echos.InstrumentNode {
		n.scheduler = newScheduler()
		n.live = make([]echos.MIDIEvent, 0, liveCapacity)
	}
	return n
}

func (n *Node) ID() string                { return n.id }
func (n *Node) Kind() echos.NodeKind      { return n.kind }
func (n *Node) LatencySamples() int       { return n.latency }
func (n *Node) Output() echos.AudioBuffer { return n.out }

// Process renders one block from the given inputs and returns the node's
// output buffer, which stays valid until the next call.
func (n *Node) Process(ctx echos.TransportContext, inputs []echos.AudioBuffer) echos.AudioBuffer {
	if n.muted {
		n.live = n.live[:0]
		n.pre.Clear()
		n.out.Clear()
		return n.out
	}
	var err error
	switch n.kind {
	case echos.InstrumentNode:
		err = n.renderInstrument(ctx)
	case echos.EffectNode, echos.BusNode, echos.AudioTrackNode:
		n.in.Clear()
		for _, b := range inputs {
			n.in.Add(b)
		}
	default:
		panic(fmt.Sprintf("graph: unhandled node kind %v", n.kind))
	}
	var result echos.AudioBuffer
	if err == nil {
		result, err = n.runChain(ctx)
	}
	if err != nil {
		if !n.failing {
			n.log.Warn("node failed, emitting silence", zap.Error(err))
			n.failing = true
		}
		n.pre.Clear()
		n.out.Clear()
		return n.out
	}
	n.failing = false
	n.pre.CopyFrom(result)
	n.out.CopyFrom(result)
	l, r := n.gains()
	n.out.Scale(l, r)
	return n.out
}

func (n *Node) renderInstrument(ctx echos.TransportContext) error {
	events := n.scheduler.block(ctx)
	if len(n.live) > 0 {
		events = n.scheduler.merge(n.live, ctx.BlockSize)
		n.live = n.live[:0]
	}
	if n.instrument == nil || n.instrument.bypassed {
		n.in.Clear()
		return nil
	}
	return runPlugin(n.instrument.inst, ctx, events, echos.AudioBuffer{}, n.in)
}

// runChain passes n.in through every active plugin, ping-ponging between
// the scratch buffers, and returns the buffer holding the result.
func (n *Node) runChain(ctx echos.TransportContext) (echos.AudioBuffer, error) {
	cur, next := n.in, 0
	for _, s := range n.chain {
		if s.bypassed {
			continue
		}
		dst := n.scratch[next]
		if err := runPlugin(s.inst, ctx, nil, cur, dst); err != nil {
			return cur, fmt.Errorf("plugin %v: %w", s.inst.ID(), err)
		}
		cur, next = dst, 1-next
	}
	return cur, nil
}

func runPlugin(inst echos.PluginInstance, ctx echos.TransportContext, events []echos.MIDIEvent, in, out echos.AudioBuffer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin %v panicked: %v", inst.ID(), r)
		}
	}()
	return inst.Process(ctx, events, in, out)
}

// gains returns the per-channel gain of volume and pan. A centered pan
// leaves both channels at the volume; otherwise the constant-power law maps
// pan -1..1 to an angle 0..pi/2.
func (n *Node) gains() (float32, float32) {
	if n.pan == 0 {
		return n.volume, n.volume
	}
	angle := (float64(n.pan) + 1) * math.Pi / 4
	return n.volume * float32(math.Cos(angle)), n.volume * float32(math.Sin(angle))
}

// tap returns the signal a send port carries and its gain.
func (n *Node) tap(sendID string) (echos.AudioBuffer, float32) {
	s, ok := n.sends[sendID]
	if !ok {
		return n.out, 0
	}
	if s.pre {
		return n.pre, s.level
	}
	return n.out, s.level
}

// SetParameter sets a mixer, send or plugin parameter addressed by path.
func (n *Node) SetParameter(path string, value float64) error {
	section, rest, _ := strings.Cut(path, ".")
	switch section {
	case "mixer":
		switch rest {
		case "volume":
			n.volume = float32(echos.DBToGain(value))
		case "pan":
			n.pan = float32(min(max(value, -1), 1))
		case "muted":
			n.muted = value != 0
		default:
			return fmt.Errorf("unknown mixer parameter %q", rest)
		}
		return nil
	case "send":
		id, param, _ := strings.Cut(rest, ".")
		s, ok := n.sends[id]
		if !ok {
			return fmt.Errorf("node %v has no send %v", n.id, id)
		}
		switch param {
		case "level":
			s.level = float32(echos.DBToGain(value))
		case "pre":
			s.pre = value != 0
		default:
			return fmt.Errorf("unknown send parameter %q", param)
		}
		return nil
	case "plugin":
		id, param, ok := strings.Cut(rest, ".")
		if !ok {
			return fmt.Errorf("malformed plugin parameter path %q", path)
		}
		s := n.slot(id)
		if s == nil {
			return fmt.Errorf("node %v: %w: %v", n.id, echos.ErrPluginNotFound, id)
		}
		return s.inst.SetParameter(param, value)
	}
	return fmt.Errorf("unknown parameter path %q", path)
}

func (n *Node) slot(instanceID string) *slot {
	if n.instrument != nil && n.instrument.inst.ID() == instanceID {
		return n.instrument
	}
	for _, s := range n.chain {
		if s.inst.ID() == instanceID {
			return s
		}
	}
	return nil
}

func (n *Node) setBypass(instanceID string, bypassed bool) error {
	s := n.slot(instanceID)
	if s == nil {
		return fmt.Errorf("node %v: %w: %v", n.id, echos.ErrPluginNotFound, instanceID)
	}
	s.bypassed = bypassed
	return nil
}

// chainOffset is the number of insert positions taken by the instrument
// slot in front of the chain.
func (n *Node) chainOffset() int {
	if n.instrument != nil {
		return 1
	}
	return 0
}

// addPlugin inserts inst at the given insert index. On instrument nodes an
// instrument plugin takes the instrument slot instead, and the instance it
// replaces is returned so that it can be released.
func (n *Node) addPlugin(inst echos.PluginInstance, index int) (replaced echos.PluginInstance) {
	if n.kind == echos.InstrumentNode && inst.IsInstrument() {
		if n.instrument != nil {
			replaced = n.instrument.inst
			n.log.Warn("replacing instrument", zap.String("old", replaced.ID()), zap.String("new", inst.ID()))
		}
		n.instrument = &slot{inst: inst}
		n.updateLatency()
		return replaced
	}
	i := min(max(index-n.chainOffset(), 0), len(n.chain))
	n.chain = slices.Insert(n.chain, i, &slot{inst: inst})
	n.updateLatency()
	return nil
}

func (n *Node) removePlugin(instanceID string) echos.PluginInstance {
	if n.instrument != nil && n.instrument.inst.ID() == instanceID {
		inst := n.instrument.inst
		n.instrument = nil
		n.updateLatency()
		return inst
	}
	i := slices.IndexFunc(n.chain, func(s *slot) bool { return s.inst.ID() == instanceID })
	if i < 0 {
		return nil
	}
	inst := n.chain[i].inst
	n.chain = slices.Delete(n.chain, i, i+1)
	n.updateLatency()
	return inst
}

func (n *Node) movePlugin(instanceID string, index int) bool {
	i := slices.IndexFunc(n.chain, func(s *slot) bool { return s.inst.ID() == instanceID })
	if i < 0 {
		return false
	}
	s := n.chain[i]
	n.chain = slices.Delete(n.chain, i, i+1)
	j := min(max(index-n.chainOffset(), 0), len(n.chain))
	n.chain = slices.Insert(n.chain, j, s)
	return true
}

func (n *Node) updateLatency() {
	n.latency = 0
	if n.instrument != nil {
		n.latency += n.instrument.inst.LatencySamples()
	}
	for _, s := range n.chain {
		n.latency += s.inst.LatencySamples()
	}
}

// instances lists every plugin instance owned by the node, instrument first.
func (n *Node) instances() []echos.PluginInstance {
	ret := make([]echos.PluginInstance, 0, len(n.chain)+1)
	if n.instrument != nil {
		ret = append(ret, n.instrument.inst)
	}
	for _, s := range n.chain {
		ret = append(ret, s.inst)
	}
	return ret
}

func (n *Node) pluginCount() int { return len(n.chain) + n.chainOffset() }

func (n *Node) String() string {
	return n.id + " (" + n.kind.String() + ", " + strconv.Itoa(n.pluginCount()) + " plugins)"
}
