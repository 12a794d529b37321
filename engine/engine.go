// Package engine owns the audio callback. It drains the message queues,
// advances the transport clock and asks the render graph for one block at a
// time. Everything outside the callback talks to the engine through Post and
// the transport methods; none of them block.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/echosdaw/echos"
	"github.com/echosdaw/echos/graph"
)

// Status is the state of the transport.
type Status int32

const (
	Stopped Status = iota
	Playing
	Paused
)

func (s Status) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	}
	return fmt.Sprintf("Status(%d)", int32(s))
}

// ErrBusy is returned by the operations that need exclusive use of the
// render graph while the audio callback is running.
var ErrBusy = errors.New("engine is busy")

type (
	Options struct {
		SampleRate   int
		BlockSize    int
		RTQueueSize  int
		NRTQueueSize int
		// Registerer receives the engine metrics. Nil disables them.
		Registerer prometheus.Registerer
	}

	Engine struct {
		sampleRate int
		blockSize  int

		graph    *graph.Graph
		timeline echos.TimelineState // replica, owned by the callback
		rt, nrt  *Queue

		status     atomic.Int32
		beat       atomic.Uint64 // float64 bits
		tempo      atomic.Uint64 // float64 bits
		wasPlaying bool

		busy    atomic.Bool
		block   echos.AudioBuffer
		pos     int
		silence echos.AudioBuffer
		readBuf echos.AudioBuffer

		blocks     atomic.Uint64
		load       atomic.Uint64 // float64 bits
		peak       atomic.Uint64 // float64 bits
		dropped    atomic.Uint64
		appliedRT  atomic.Uint64
		appliedNRT atomic.Uint64
		failed     atomic.Uint64
		graphStats atomic.Pointer[graph.Stats]
		latency    atomic.Int64
		meter      meter

		metrics *metrics
		log     *zap.Logger
	}

	// Stats is a snapshot of the engine counters.
	Stats struct {
		Blocks        uint64
		CPULoad       float64
		PeakCPULoad   float64
		DroppedFrames uint64
		AppliedRT     uint64
		AppliedNRT    uint64
		Failed        uint64
		Rejected      uint64
		RTPending     int
		NRTPending    int
		// Graph is the state of the render graph after the last structural
		// change the engine applied.
		Graph graph.Stats
	}
)

const defaultQueueSize = 1024

// New creates a stopped engine with an empty render graph whose plugins are
// created through host.
func New(host echos.PluginHost, opts Options, log *zap.Logger) (*Engine, error) {
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", opts.SampleRate)
	}
	if opts.BlockSize <= 0 {
		return nil, fmt.Errorf("invalid block size %d", opts.BlockSize)
	}
	if opts.RTQueueSize <= 0 {
		opts.RTQueueSize = defaultQueueSize
	}
	if opts.NRTQueueSize <= 0 {
		opts.NRTQueueSize = defaultQueueSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	m, err := newMetrics(opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("engine metrics: %w", err)
	}
	e := &Engine{
		sampleRate: opts.SampleRate,
		blockSize:  opts.BlockSize,
		graph:      graph.New(host, opts.BlockSize, log),
		timeline:   echos.DefaultTimelineState(),
		rt:         NewQueue(opts.RTQueueSize),
		nrt:        NewQueue(opts.NRTQueueSize),
		silence:    echos.NewAudioBuffer(opts.BlockSize),
		pos:        opts.BlockSize,
		metrics:    m,
		log:        log.Named("engine"),
	}
	e.tempo.Store(math.Float64bits(echos.DefaultTempo.BPM))
	e.publishGraph()
	return e, nil
}

func (e *Engine) SampleRate() int { return e.sampleRate }
func (e *Engine) BlockSize() int  { return e.blockSize }

// Post hands m over to the audio callback. Real-time messages are applied at
// the next block; the others wait until the transport is not playing. Post
// never blocks and fails with ErrQueueFull when the queue is full.
func (e *Engine) Post(m Message) error {
	q := e.nrt
	if m.Kind.RealTime() {
		q = e.rt
	}
	if err := q.Push(m); err != nil {
		e.metrics.rejectedMessage()
		return fmt.Errorf("post %v: %w", m.Kind, err)
	}
	return nil
}

// Defer posts m to the non-real-time queue whatever its kind.
func (e *Engine) Defer(m Message) error {
	if err := e.nrt.Push(m); err != nil {
		e.metrics.rejectedMessage()
		return fmt.Errorf("defer %v: %w", m.Kind, err)
	}
	return nil
}

// Pending is the number of non-real-time messages waiting to be applied.
func (e *Engine) Pending() int { return e.nrt.Len() }

// Play starts the transport. The first block after Play also applies the
// pending non-real-time messages, so structural edits posted before it are
// heard right away; edits posted later wait for the transport to stop.
func (e *Engine) Play() { e.status.Store(int32(Playing)) }

func (e *Engine) Pause() {
	e.status.CompareAndSwap(int32(Playing), int32(Paused))
}

// Stop stops the transport and rewinds it to beat zero.
func (e *Engine) Stop() {
	e.status.Store(int32(Stopped))
	e.beat.Store(0)
}

// Seek moves the transport to beat, clamped to zero.
func (e *Engine) Seek(beat float64) {
	e.beat.Store(math.Float64bits(max(beat, 0)))
}

func (e *Engine) Status() Status { return Status(e.status.Load()) }

func (e *Engine) Beat() float64 { return math.Float64frombits(e.beat.Load()) }

// Tempo is the tempo used for the last rendered block.
func (e *Engine) Tempo() float64 { return math.Float64frombits(e.tempo.Load()) }

// Process fills out with audio. It is the audio callback: it renders as many
// blocks as out needs, carrying partial blocks over to the next call. A call
// that overlaps Render or Inspect outputs silence.
func (e *Engine) Process(out echos.AudioBuffer, status echos.CallbackStatus) {
	if !e.busy.CompareAndSwap(false, true) {
		out.Clear()
		return
	}
	defer e.busy.Store(false)
	frames := out.Frames()
	if status.Underflow {
		e.dropped.Add(uint64(frames))
		e.metrics.droppedFrames(frames)
	}
	e.fill(out)
}

func (e *Engine) fill(out echos.AudioBuffer) {
	for written := 0; written < out.Frames(); {
		if e.pos >= e.blockSize {
			e.block = e.render()
			e.pos = 0
		}
		n := copy(out[0][written:], e.block[0][e.pos:])
		copy(out[1][written:written+n], e.block[1][e.pos:e.pos+n])
		written += n
		e.pos += n
	}
}

// render runs one audio callback cycle and returns the block. The returned
// buffer is reused by the next call.
func (e *Engine) render() echos.AudioBuffer {
	start := time.Now()
	e.drain(e.rt)
	playing := Status(e.status.Load()) == Playing
	if !playing || !e.wasPlaying {
		if e.drain(e.nrt) > 0 {
			e.publishGraph()
		}
	}
	e.wasPlaying = playing
	out := e.silence
	if !playing {
		e.graph.DropLive()
	}
	if playing {
		bits := e.beat.Load()
		beat := math.Float64frombits(bits)
		ctx := echos.TransportContext{
			Beat:       beat,
			SampleRate: e.sampleRate,
			BlockSize:  e.blockSize,
			Tempo:      e.timeline.TempoAt(beat),
		}
		out = e.graph.ProcessBlock(ctx)
		// a seek or stop from the control side wins over the advance
		e.beat.CompareAndSwap(bits, math.Float64bits(beat+ctx.BlockBeats()))
		e.tempo.Store(math.Float64bits(ctx.Tempo))
	}
	e.meter.measure(out)
	e.account(time.Since(start))
	return out
}

// drain applies every pending message of q and returns how many there were.
func (e *Engine) drain(q *Queue) int {
	n := 0
	for {
		m, ok := q.Pop()
		if !ok {
			return n
		}
		n++
		err := e.apply(m)
		e.metrics.applied(m.Kind.RealTime(), err)
		switch {
		case err != nil:
			e.failed.Add(1)
			e.log.Warn("message not applied", zap.Stringer("kind", m.Kind), zap.String("node", m.NodeID), zap.Error(err))
		case m.Kind.RealTime():
			e.appliedRT.Add(1)
		default:
			e.appliedNRT.Add(1)
		}
	}
}

func (e *Engine) account(elapsed time.Duration) {
	load := elapsed.Seconds() * float64(e.sampleRate) / float64(e.blockSize)
	e.load.Store(math.Float64bits(load))
	for {
		old := e.peak.Load()
		if load <= math.Float64frombits(old) || e.peak.CompareAndSwap(old, math.Float64bits(load)) {
			break
		}
	}
	e.blocks.Add(1)
	e.metrics.block(load, e.peakLoad())
}

// publishGraph stores a snapshot of the graph for readers outside the
// callback. It allocates and only runs after structural changes.
func (e *Engine) publishGraph() {
	s := e.graph.Stats()
	e.graphStats.Store(&s)
	e.latency.Store(int64(s.LatencySamples))
	e.metrics.graph(s.Nodes, s.LatencySamples, s.CycleDetected)
}

// Levels are the peak and RMS levels of the last block.
func (e *Engine) Levels() Levels { return e.meter.levels() }

// CPULoad is the time spent rendering the last block divided by the block
// duration.
func (e *Engine) CPULoad() float64 { return math.Float64frombits(e.load.Load()) }

func (e *Engine) peakLoad() float64 { return math.Float64frombits(e.peak.Load()) }

func (e *Engine) Stats() Stats {
	s := Stats{
		Blocks:        e.blocks.Load(),
		CPULoad:       e.CPULoad(),
		PeakCPULoad:   e.peakLoad(),
		DroppedFrames: e.dropped.Load(),
		AppliedRT:     e.appliedRT.Load(),
		AppliedNRT:    e.appliedNRT.Load(),
		Failed:        e.failed.Load(),
		Rejected:      e.rt.Rejected() + e.nrt.Rejected(),
		RTPending:     e.rt.Len(),
		NRTPending:    e.nrt.Len(),
	}
	if g := e.graphStats.Load(); g != nil {
		s.Graph = *g
	}
	return s
}

// ResetStats clears the peak load and the dropped frame count.
func (e *Engine) ResetStats() {
	e.peak.Store(0)
	e.dropped.Store(0)
	e.metrics.resetPeak()
}

// Latency is the total output latency in seconds: one block, the largest
// plugin latency in the graph and the latency the device reports.
func (e *Engine) Latency(device time.Duration) float64 {
	samples := float64(e.blockSize) + float64(e.latency.Load())
	return samples/float64(e.sampleRate) + device.Seconds()
}

// Inspect runs f with exclusive access to the render graph. The audio
// callback outputs silence while f runs. f must not keep the graph.
func (e *Engine) Inspect(f func(g *graph.Graph)) error {
	if !e.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer e.busy.Store(false)
	f(e.graph)
	return nil
}

// Render plays the project offline from beat zero and returns the given
// duration of audio. Pending messages are applied first. The transport is
// stopped when Render returns.
func (e *Engine) Render(ctx context.Context, seconds float64) (echos.AudioBuffer, error) {
	if seconds < 0 {
		return echos.AudioBuffer{}, fmt.Errorf("render: negative duration %v", seconds)
	}
	if !e.busy.CompareAndSwap(false, true) {
		return echos.AudioBuffer{}, fmt.Errorf("render: %w", ErrBusy)
	}
	defer e.busy.Store(false)
	defer e.Stop()
	e.Stop()
	e.pos = e.blockSize
	e.wasPlaying = false
	e.Play()
	frames := int(math.Round(seconds * float64(e.sampleRate)))
	out := echos.NewAudioBuffer(frames)
	for i := 0; i < frames; i += e.blockSize {
		if err := ctx.Err(); err != nil {
			return echos.AudioBuffer{}, fmt.Errorf("render: %w", err)
		}
		end := min(i+e.blockSize, frames)
		e.fill(echos.AudioBuffer{out[0][i:end], out[1][i:end]})
	}
	e.pos = e.blockSize
	return out, nil
}

var _ io.Reader = (*Engine)(nil)

// Read renders len(p)/8 frames as interleaved little-endian float32 stereo,
// the format an oto player pulls.
func (e *Engine) Read(p []byte) (int, error) {
	frames := len(p) / 8
	if e.readBuf.Frames() < frames {
		e.readBuf = echos.NewAudioBuffer(frames)
	}
	buf := echos.AudioBuffer{e.readBuf[0][:frames], e.readBuf[1][:frames]}
	e.Process(buf, echos.CallbackStatus{})
	for i := range frames {
		putFloat32(p[i*8:], buf[0][i])
		putFloat32(p[i*8+4:], buf[1][i])
	}
	return frames * 8, nil
}

func putFloat32(b []byte, v float32) {
	u := math.Float32bits(v)
	b[0] = byte(u)
	b[1] = byte(u >> 8)
	b[2] = byte(u >> 16)
	b[3] = byte(u >> 24)
}
