package main

import (
	"context"
	"fmt"

	"github.com/echosdaw/echos"
	"github.com/echosdaw/echos/command"
	"github.com/echosdaw/echos/history"
	"github.com/echosdaw/echos/plugin"
	"github.com/echosdaw/echos/project"
)

// demoProject builds a short arpeggio on a sine instrument, routed to a
// master bus with a send into a delay bus. It is built with commands, so its
// history can be undone step by step.
func demoProject(ctx context.Context, opts ...project.Option) (*project.Project, error) {
	p := project.New("demo", opts...)
	lead, leadTrack := command.NewInstrumentTrack(p, "lead", plugin.SineID)
	master := command.NewCreateTrack(p, echos.BusNode, "master")
	echo := command.NewCreateTrack(p, echos.BusNode, "echo")
	if err := run(ctx, p, lead, master, echo); err != nil {
		return nil, err
	}
	clip := command.NewCreateMIDIClip(p, leadTrack.TrackID(), "", "arpeggio", 0, 8)
	if err := run(ctx, p, clip); err != nil {
		return nil, err
	}
	var notes []echos.Note
	for bar := range 2 {
		for i, pitch := range []uint8{57, 60, 64, 69, 64, 60, 57, 52} {
			notes = append(notes, echos.Note{
				Pitch:         pitch + uint8(bar*5),
				Velocity:      100,
				StartBeat:     float64(bar*4) + float64(i)*0.5,
				DurationBeats: 0.45,
			})
		}
	}
	return p, run(ctx, p,
		command.NewAddNotes(p, leadTrack.TrackID(), clip.ClipID(), notes...),
		command.NewAddInsert(p, echo.TrackID(), "delay", plugin.DelayID, 0),
		command.NewSetParameter(p, echo.TrackID(), "plugin.delay.mix", 1),
		command.NewConnect(p, echos.Connection{Source: leadTrack.TrackID(), Dest: master.TrackID()}),
		command.NewConnect(p, echos.Connection{Source: echo.TrackID(), Dest: master.TrackID()}),
		command.NewCreateSend(p, leadTrack.TrackID(), echo.TrackID(), -9, false),
		command.NewSetParameter(p, master.TrackID(), "mixer.volume", -3),
		command.NewSetTempo(p, 0, 110),
	)
}

func run(ctx context.Context, p *project.Project, ops ...history.Operation) error {
	for _, op := range ops {
		if _, err := p.Execute(ctx, op); err != nil {
			return fmt.Errorf("demo: %s: %w", op.Description(), err)
		}
	}
	return nil
}

// length is the time from the start of the project to the end of its last
// clip.
func length(s echos.ProjectState) float64 {
	end := 0.0
	for _, n := range s.Nodes {
		for _, c := range n.Clips {
			end = max(end, c.EndBeat())
		}
	}
	return s.Timeline.BeatsToSeconds(end)
}
