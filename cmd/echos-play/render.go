package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterbourgon/ff/v3/ffcli"
	"go.uber.org/zap"

	"github.com/echosdaw/echos"
	"github.com/echosdaw/echos/engine"
)

var renderArgs struct {
	output  string
	raw     bool
	pcm     bool
	seconds float64
	tail    float64
}

func renderCmd() *ffcli.Command {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	fs.StringVar(&renderArgs.output, "o", "", "output file; defaults to the project name with a .wav or .raw extension")
	fs.BoolVar(&renderArgs.raw, "raw", false, "write headerless interleaved samples instead of a .wav file")
	fs.BoolVar(&renderArgs.pcm, "pcm", false, "convert to 16-bit signed PCM instead of 32-bit float")
	fs.Float64Var(&renderArgs.seconds, "seconds", 0, "length of the render; 0 renders to the end of the last clip")
	fs.Float64Var(&renderArgs.tail, "tail", 2, "extra seconds after the last clip")
	return &ffcli.Command{
		Name:       "render",
		ShortUsage: "echos-play render [flags] [project.yml]",
		ShortHelp:  "Render a project offline to a file",
		FlagSet:    fs,
		Exec:       runRender,
	}
}

func runRender(ctx context.Context, args []string) error {
	s, err := newSession(args)
	if err != nil {
		return err
	}
	defer s.close()
	e, err := engine.New(s.host, s.cfg.EngineOptions(), s.log)
	if err != nil {
		return err
	}
	s.project.AttachEngine(engine.NewSyncController(e, s.log))
	seconds := renderArgs.seconds
	if seconds <= 0 {
		seconds = length(s.project.Snapshot()) + renderArgs.tail
	}
	buf, err := e.Render(ctx, seconds)
	if err != nil {
		return err
	}
	var (
		contents []byte
		ext      string
	)
	if renderArgs.raw {
		contents, err = echos.Raw(buf, renderArgs.pcm)
		ext = ".raw"
	} else {
		contents, err = echos.Wav(buf, e.SampleRate(), renderArgs.pcm)
		ext = ".wav"
	}
	if err != nil {
		return fmt.Errorf("encode %v: %w", ext, err)
	}
	out := renderArgs.output
	if out == "" {
		name := s.project.Name()
		if len(args) > 0 {
			name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		}
		out = name + ext
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("could not create output directory %v: %w", dir, err)
		}
	}
	if err := os.WriteFile(out, contents, 0o644); err != nil {
		return fmt.Errorf("could not write file %v: %w", out, err)
	}
	st := e.Stats()
	s.log.Info("rendered",
		zap.String("file", out),
		zap.Float64("seconds", seconds),
		zap.Float64("peak_cpu_load", st.PeakCPULoad),
		zap.Uint64("failed_messages", st.Failed))
	return nil
}
