package command

import (
	"context"
	"fmt"

	"github.com/echosdaw/echos"
	"github.com/echosdaw/echos/history"
	"github.com/echosdaw/echos/project"
)

// SetTempo sets the tempo at a beat. Tempo changes at the same beat merge
// into one undo step, and undo restores the whole timeline as it was before
// the first of them.
type SetTempo struct {
	project *project.Project
	beat    float64
	bpm     float64
	before  *echos.TimelineState
}

var (
	_ history.Operation = (*SetTempo)(nil)
	_ history.Merger    = (*SetTempo)(nil)
)

func NewSetTempo(p *project.Project, beat, bpm float64) *SetTempo {
	return &SetTempo{project: p, beat: beat, bpm: bpm}
}

func (c *SetTempo) Execute(context.Context) error {
	tl := c.project.Timeline()
	if c.before == nil {
		s := tl.State()
		c.before = &s
	}
	return tl.SetTempo(c.beat, c.bpm)
}

func (c *SetTempo) Undo(context.Context) error {
	return c.project.Timeline().SetState(*c.before)
}

func (c *SetTempo) Description() string { return fmt.Sprintf("Set tempo to %.2f BPM", c.bpm) }

func (c *SetTempo) CanMerge(other history.Operation) bool {
	o, ok := other.(*SetTempo)
	return ok && o.project == c.project && o.beat == c.beat
}

func (c *SetTempo) Merge(other history.Operation) { c.bpm = other.(*SetTempo).bpm }

type SetTimeSignature struct {
	project     *project.Project
	beat        float64
	numerator   int
	denominator int
	before      *echos.TimelineState
}

func NewSetTimeSignature(p *project.Project, beat float64, numerator, denominator int) *SetTimeSignature {
	return &SetTimeSignature{project: p, beat: beat, numerator: numerator, denominator: denominator}
}

func (c *SetTimeSignature) Execute(context.Context) error {
	tl := c.project.Timeline()
	if c.before == nil {
		s := tl.State()
		c.before = &s
	}
	return tl.SetTimeSignature(c.beat, c.numerator, c.denominator)
}

func (c *SetTimeSignature) Undo(context.Context) error {
	return c.project.Timeline().SetState(*c.before)
}

func (c *SetTimeSignature) Description() string {
	return fmt.Sprintf("Set time signature to %d/%d at beat %v", c.numerator, c.denominator, c.beat)
}
