package project

import (
	"math"

	"github.com/echosdaw/echos/event"
)

// Parameter is one automatable value of a track, addressed in the render
// graph by its path.
type Parameter struct {
	name  string
	path  string
	value float64
	min   float64
	max   float64
	def   float64
	track *Track
}

func newParameter(t *Track, name, path string, min, max, def float64) *Parameter {
	return &Parameter{name: name, path: path, value: def, min: min, max: max, def: def, track: t}
}

func (p *Parameter) Name() string     { return p.name }
func (p *Parameter) Path() string     { return p.path }
func (p *Parameter) Value() float64   { return p.value }
func (p *Parameter) Min() float64     { return p.min }
func (p *Parameter) Max() float64     { return p.max }
func (p *Parameter) Default() float64 { return p.def }

// Set clamps v to the parameter range, stores it and announces the change.
// It returns the value stored.
func (p *Parameter) Set(v float64) float64 {
	if math.IsNaN(v) {
		v = p.def
	}
	p.value = min(max(v, p.min), p.max)
	p.announce()
	return p.value
}

func (p *Parameter) announce() {
	p.track.publish(event.Event{Kind: event.ParameterChanged, NodeID: p.track.id, Path: p.path, Value: p.value})
}
