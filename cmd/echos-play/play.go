package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/echosdaw/echos"
	"github.com/echosdaw/echos/engine"
	"github.com/echosdaw/echos/midiin"
)

var playArgs struct {
	duration time.Duration
	tail     time.Duration
	backend  string
	midi     bool
	device   string
}

func playCmd() *ffcli.Command {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	fs.DurationVar(&playArgs.duration, "duration", 0, "how long to play; 0 plays to the end of the last clip")
	fs.DurationVar(&playArgs.tail, "tail", 2*time.Second, "extra time after the last clip for releases and echoes")
	fs.StringVar(&playArgs.backend, "backend", "", "audio backend (oto, portaudio); overrides the config file")
	fs.BoolVar(&playArgs.midi, "midi", false, "play the first instrument track from a MIDI input")
	fs.StringVar(&playArgs.device, "midi-device", "", "open the first MIDI input whose name starts with this prefix")
	return &ffcli.Command{
		Name:       "play",
		ShortUsage: "echos-play play [flags] [project.yml]",
		ShortHelp:  "Play a project on the default audio device",
		FlagSet:    fs,
		Exec:       runPlay,
	}
}

func runPlay(ctx context.Context, args []string) error {
	s, err := newSession(args)
	if err != nil {
		return err
	}
	defer s.close()
	if playArgs.backend != "" {
		s.cfg.Backend = playArgs.backend
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	opts := s.cfg.EngineOptions()
	opts.Registerer = reg
	e, err := engine.New(s.host, opts, s.log)
	if err != nil {
		return err
	}
	s.project.AttachEngine(engine.NewSyncController(e, s.log))

	dev, err := openDevice(s.cfg.Backend, e, s.log)
	if err != nil {
		return err
	}
	defer dev.Close()
	if playArgs.midi {
		in, err := openMIDI(s, e)
		if err != nil {
			return err
		}
		defer in.Close()
	}

	d := playArgs.duration
	if d <= 0 {
		d = time.Duration(length(s.project.Snapshot())*float64(time.Second)) + playArgs.tail
	}
	if err := dev.Start(); err != nil {
		return fmt.Errorf("start %v: %w", s.cfg.Backend, err)
	}
	e.Play()
	s.log.Info("playing",
		zap.String("project", s.project.Name()),
		zap.Duration("duration", d),
		zap.Float64("latency", e.Latency(dev.Latency())))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return watch(ctx, e, d, s.log)
	})
	if s.cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(ctx, s.cfg.MetricsAddr, reg, s.log) })
	}
	err = g.Wait()
	e.Stop()
	if err := dev.Stop(); err != nil {
		s.log.Warn("device did not stop", zap.Error(err))
	}
	st := e.Stats()
	s.log.Info("stopped",
		zap.Uint64("blocks", st.Blocks),
		zap.Float64("peak_cpu_load", st.PeakCPULoad),
		zap.Uint64("dropped_frames", st.DroppedFrames),
		zap.Uint64("failed_messages", st.Failed))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// openMIDI forwards a MIDI input to the first instrument track of the
// project.
func openMIDI(s *session, e *engine.Engine) (*midiin.Input, error) {
	var track string
	for _, t := range s.project.Router().Tracks() {
		if t.Kind() == echos.InstrumentNode {
			track = t.ID()
			break
		}
	}
	if track == "" {
		return nil, errors.New("midi: the project has no instrument track")
	}
	in, err := midiin.Open(playArgs.device, func(ev echos.MIDIEvent) {
		if err := e.Post(engine.SendMIDI(track, []echos.MIDIEvent{ev})); err != nil {
			s.log.Warn("midi dropped", zap.Error(err))
		}
	}, s.log)
	if err != nil {
		if names, lerr := midiin.Devices(); lerr == nil {
			return nil, fmt.Errorf("midi: %w (inputs: %s)", err, strings.Join(names, ", "))
		}
		return nil, fmt.Errorf("midi: %w", err)
	}
	return in, nil
}

// watch waits for d to pass, logging the meters once a second.
func watch(ctx context.Context, e *engine.Engine, d time.Duration, log *zap.Logger) error {
	done := time.NewTimer(d)
	defer done.Stop()
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done.C:
			return nil
		case <-tick.C:
			lv := e.Levels()
			log.Debug("meter",
				zap.Float64("beat", e.Beat()),
				zap.Float64("tempo", e.Tempo()),
				zap.Float64("cpu_load", e.CPULoad()),
				zap.Float64("peak_l_db", engine.DB(lv.Peak[0])),
				zap.Float64("peak_r_db", engine.DB(lv.Peak[1])))
		}
	}
}

func serveMetrics(ctx context.Context, addr string, g prometheus.Gatherer, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()
	log.Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}
