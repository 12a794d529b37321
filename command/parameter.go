package command

import (
	"context"
	"fmt"

	"github.com/echosdaw/echos/history"
	"github.com/echosdaw/echos/project"
)

// SetParameter sets a track parameter. Consecutive changes of the same
// parameter merge into one undo step.
type SetParameter struct {
	project *project.Project
	trackID string
	path    string
	value   float64
	old     float64
}

var (
	_ history.Operation = (*SetParameter)(nil)
	_ history.Merger    = (*SetParameter)(nil)
)

func NewSetParameter(p *project.Project, trackID, path string, value float64) *SetParameter {
	return &SetParameter{project: p, trackID: trackID, path: path, value: value}
}

func (c *SetParameter) Execute(context.Context) error {
	par, err := c.project.Parameter(c.trackID, c.path)
	if err != nil {
		return err
	}
	c.old = par.Value()
	par.Set(c.value)
	return nil
}

func (c *SetParameter) Undo(context.Context) error {
	par, err := c.project.Parameter(c.trackID, c.path)
	if err != nil {
		return err
	}
	par.Set(c.old)
	return nil
}

func (c *SetParameter) Description() string {
	return fmt.Sprintf("Set %s to %v", c.path, c.value)
}

func (c *SetParameter) CanMerge(other history.Operation) bool {
	o, ok := other.(*SetParameter)
	return ok && o.project == c.project && o.trackID == c.trackID && o.path == c.path
}

func (c *SetParameter) Merge(other history.Operation) {
	c.value = other.(*SetParameter).value
}
