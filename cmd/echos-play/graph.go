package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/peterbourgon/ff/v3/ffcli"
	"go.uber.org/zap"

	"github.com/echosdaw/echos"
	"github.com/echosdaw/echos/engine"
	"github.com/echosdaw/echos/graph"
)

var graphArgs struct {
	output string
}

func graphCmd() *ffcli.Command {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	fs.StringVar(&graphArgs.output, "o", "", "write the Graphviz document to this file instead of standard output")
	return &ffcli.Command{
		Name:       "graph",
		ShortUsage: "echos-play graph [flags] [project.yml] | dot -Tsvg > graph.svg",
		ShortHelp:  "Print the render graph of a project in Graphviz format",
		FlagSet:    fs,
		Exec:       runGraph,
	}
}

func runGraph(ctx context.Context, args []string) error {
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
	// a stopped engine applies every queued edit in its next callback
	e.Process(echos.NewAudioBuffer(e.BlockSize()), echos.CallbackStatus{})

	var w io.Writer = os.Stdout
	if graphArgs.output != "" {
		f, err := os.Create(graphArgs.output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	var writeErr, validErr error
	err = e.Inspect(func(g *graph.Graph) {
		validErr = g.Validate()
		writeErr = g.WriteDOT(w)
	})
	if err != nil {
		return err
	}
	if validErr != nil {
		s.log.Error("render graph is inconsistent", zap.Error(validErr))
	}
	if writeErr != nil {
		return fmt.Errorf("write graph: %w", writeErr)
	}
	st := e.Stats()
	s.log.Debug("graph written",
		zap.Int("nodes", st.Graph.Nodes),
		zap.Int("connections", st.Graph.Connections),
		zap.Int("latency_samples", st.Graph.LatencySamples),
		zap.Uint64("failed_messages", st.Failed))
	return nil
}
