package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/peterbourgon/ff/v3/ffcli"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var pluginsArgs struct {
	params bool
}

func pluginsCmd() *ffcli.Command {
	fs := flag.NewFlagSet("plugins", flag.ExitOnError)
	fs.BoolVar(&pluginsArgs.params, "params", false, "also list the parameters of each plugin")
	return &ffcli.Command{
		Name:       "plugins",
		ShortUsage: "echos-play plugins [flags]",
		ShortHelp:  "List the plugins known to the registry",
		FlagSet:    fs,
		Exec:       runPlugins,
	}
}

func runPlugins(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("plugins takes no arguments")
	}
	s, err := newSession(nil)
	if err != nil {
		return err
	}
	defer s.close()
	title := cases.Title(language.English)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tTYPE\tIO")
	for _, d := range s.registry.ListAll() {
		kind := "effect"
		if d.IsInstrument {
			kind = "instrument"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\n", d.ID, d.Name, title.String(d.Category), title.String(kind), d.Inputs, d.Outputs)
		if !pluginsArgs.params {
			continue
		}
		for _, p := range d.Parameters {
			fmt.Fprintf(w, "  %s\t%g..%g\t%s\tdefault %g\t\n", p.Name, p.Min, p.Max, p.Unit, p.Default)
		}
	}
	return w.Flush()
}
