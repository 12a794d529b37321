// Command echos-play plays, renders and inspects echos projects.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"go.uber.org/zap"

	"github.com/echosdaw/echos/config"
	"github.com/echosdaw/echos/plugin"
	"github.com/echosdaw/echos/project"
	"github.com/echosdaw/echos/version"
)

var rootArgs struct {
	config  string
	debug   bool
	version bool
}

func main() {
	rootFlags := flag.NewFlagSet("echos-play", flag.ExitOnError)
	rootFlags.StringVar(&rootArgs.config, "config", "", "YAML config file")
	rootFlags.BoolVar(&rootArgs.debug, "debug", false, "log at debug level with a development logger")
	rootFlags.BoolVar(&rootArgs.version, "version", false, "print version and exit")
	root := &ffcli.Command{
		ShortUsage: "echos-play [flags] <subcommand> [subcommand flags] [project.yml]",
		ShortHelp:  "Play, render and inspect echos projects",
		LongHelp:   "Without a project file the subcommands use a built-in demo project.\nEvery flag can also be set with an ECHOS_ prefixed environment variable.",
		FlagSet:    rootFlags,
		Options:    []ff.Option{ff.WithEnvVarPrefix("ECHOS")},
		Subcommands: []*ffcli.Command{
			playCmd(),
			renderCmd(),
			graphCmd(),
			pluginsCmd(),
		},
		Exec: func(ctx context.Context, args []string) error {
			if rootArgs.version {
				fmt.Println(version.String())
				return nil
			}
			return flag.ErrHelp
		},
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := root.ParseAndRun(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "echos-play: %v\n", err)
		os.Exit(1)
	}
}

// session is what every subcommand starts from.
type session struct {
	cfg      config.Config
	log      *zap.Logger
	registry *plugin.Registry
	host     *plugin.Host
	project  *project.Project
}

func newSession(args []string) (*session, error) {
	if len(args) > 1 {
		return nil, fmt.Errorf("expected at most one project file, got %d", len(args))
	}
	cfg, err := config.Load(rootArgs.config)
	if err != nil {
		return nil, err
	}
	log, err := cfg.Logger(rootArgs.debug)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	var cache *plugin.Cache
	if cfg.PluginCache != "" {
		cache = plugin.NewCache(cfg.PluginCache)
	}
	reg := plugin.NewRegistry(cache, log)
	plugin.RegisterBuiltins(reg)
	if err := reg.Load(); err != nil {
		log.Warn("plugin cache not loaded", zap.Error(err))
	}
	s := &session{
		cfg:      cfg,
		log:      log,
		registry: reg,
		host:     plugin.NewHost(reg, cfg.SampleRate, log),
	}
	opts := []project.Option{
		project.WithLogger(log),
		project.WithRegistry(reg),
		project.WithMaxHistory(cfg.MaxHistory),
	}
	if len(args) == 0 {
		s.project, err = demoProject(context.Background(), opts...)
	} else {
		s.project, err = project.OpenFile(args[0], opts...)
	}
	if err != nil {
		log.Sync()
		return nil, err
	}
	return s, nil
}

func (s *session) close() {
	s.project.Close()
	if err := s.registry.Persist(); err != nil {
		s.log.Warn("plugin cache not written", zap.Error(err))
	}
	s.log.Sync()
}
