package engine

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics mirrors the engine statistics into prometheus collectors. A nil
// *metrics is valid and records nothing. All setters are atomic and safe to
// call from the audio callback.
type metrics struct {
	cpuLoad    prometheus.Gauge
	peakLoad   prometheus.Gauge
	blocks     prometheus.Counter
	dropped    prometheus.Counter
	appliedRT  prometheus.Counter
	appliedNRT prometheus.Counter
	failed     prometheus.Counter
	rejected   prometheus.Counter
	nodes      prometheus.Gauge
	latency    prometheus.Gauge
	cycle      prometheus.Gauge
	collectors []prometheus.Collector
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	if reg == nil {
		return nil, nil
	}
	applied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "echos", Subsystem: "engine", Name: "messages_applied_total",
		Help: "Messages applied on the audio thread, by queue.",
	}, []string{"queue"})
	m := &metrics{
		cpuLoad: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "echos", Subsystem: "engine", Name: "cpu_load",
			Help: "Fraction of the block time spent rendering the last block.",
		}),
		peakLoad: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "echos", Subsystem: "engine", Name: "peak_cpu_load",
			Help: "Highest cpu_load since the statistics were reset.",
		}),
		blocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "echos", Subsystem: "engine", Name: "blocks_total",
			Help: "Audio callbacks served.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "echos", Subsystem: "engine", Name: "dropped_frames_total",
			Help: "Frames lost to output underflow.",
		}),
		appliedRT:  applied.WithLabelValues("rt"),
		appliedNRT: applied.WithLabelValues("nrt"),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "echos", Subsystem: "engine", Name: "messages_failed_total",
			Help: "Messages that could not be applied.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "echos", Subsystem: "engine", Name: "messages_rejected_total",
			Help: "Messages dropped because a queue was full.",
		}),
		nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "echos", Subsystem: "graph", Name: "nodes",
			Help: "Nodes in the render graph.",
		}),
		latency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "echos", Subsystem: "graph", Name: "latency_samples",
			Help: "Largest node latency in the render graph.",
		}),
		cycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "echos", Subsystem: "graph", Name: "cycle_fallback",
			Help: "1 if the render graph fell back to insertion order because of a cycle.",
		}),
	}
	m.collectors = []prometheus.Collector{m.cpuLoad, m.peakLoad, m.blocks, m.dropped, applied, m.failed, m.rejected, m.nodes, m.latency, m.cycle}
	for i, c := range m.collectors {
		if err := reg.Register(c); err != nil {
			for _, r := range m.collectors[:i] {
				reg.Unregister(r)
			}
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				return nil, errors.New("engine metrics are already registered")
			}
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) block(load, peak float64) {
	if m == nil {
		return
	}
	m.blocks.Inc()
	m.cpuLoad.Set(load)
	m.peakLoad.Set(peak)
}

func (m *metrics) droppedFrames(n int) {
	if m == nil {
		return
	}
	m.dropped.Add(float64(n))
}

func (m *metrics) applied(realtime bool, err error) {
	if m == nil {
		return
	}
	switch {
	case err != nil:
		m.failed.Inc()
	case realtime:
		m.appliedRT.Inc()
	default:
		m.appliedNRT.Inc()
	}
}

func (m *metrics) rejectedMessage() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

func (m *metrics) graph(nodes, latency int, cycle bool) {
	if m == nil {
		return
	}
	m.nodes.Set(float64(nodes))
	m.latency.Set(float64(latency))
	if cycle {
		m.cycle.Set(1)
	} else {
		m.cycle.Set(0)
	}
}

func (m *metrics) resetPeak() {
	if m == nil {
		return
	}
	m.peakLoad.Set(0)
}
