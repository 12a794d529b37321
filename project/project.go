// Package project is the domain model of a session: tracks with their
// mixers, inserts, sends and clips, the connections between them and the
// tempo map. Every mutation is announced on the project's event bus, which
// an attached engine follows to keep its render graph in sync.
//
// A Project is not safe for concurrent use. Changes that should be undoable
// go through Execute, which serializes them.
package project

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/echosdaw/echos"
	"github.com/echosdaw/echos/engine"
	"github.com/echosdaw/echos/event"
	"github.com/echosdaw/echos/history"
)

type (
	Project struct {
		id       uuid.UUID
		name     string
		bus      *event.Bus
		router   *Router
		timeline *Timeline
		history  *history.Manager
		registry echos.PluginRegistry
		attached engine.Mountable
		log      *zap.Logger
	}

	Option func(*options)

	options struct {
		log        *zap.Logger
		registry   echos.PluginRegistry
		maxHistory int
		bus        *event.Bus
	}
)

func WithLogger(log *zap.Logger) Option { return func(o *options) { o.log = log } }

// WithRegistry makes inserts take their parameters from the registry and
// refuse unknown plugins.
func WithRegistry(r echos.PluginRegistry) Option { return func(o *options) { o.registry = r } }

func WithMaxHistory(n int) Option { return func(o *options) { o.maxHistory = n } }

// WithBus publishes on an existing bus instead of a new one.
func WithBus(b *event.Bus) Option { return func(o *options) { o.bus = b } }

// New creates an empty project with the default timeline.
func New(name string, opts ...Option) *Project {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if o.bus == nil {
		o.bus = event.NewBus(o.log)
	}
	p := &Project{
		id:       uuid.New(),
		name:     name,
		bus:      o.bus,
		registry: o.registry,
		history:  history.NewManager(o.maxHistory, o.log),
		log:      o.log.Named("project"),
	}
	p.router = newRouter(p.bus, p.registry, p.log)
	p.timeline = newTimeline(p.router)
	return p
}

func (p *Project) ID() uuid.UUID             { return p.id }
func (p *Project) Name() string              { return p.name }
func (p *Project) SetName(name string)       { p.name = name }
func (p *Project) Bus() *event.Bus           { return p.bus }
func (p *Project) Router() *Router           { return p.router }
func (p *Project) Timeline() *Timeline       { return p.timeline }
func (p *Project) History() *history.Manager { return p.history }

func (p *Project) Track(id string) (*Track, bool) { return p.router.Track(id) }

// Execute runs op through the history so that it can be undone.
func (p *Project) Execute(ctx context.Context, op history.Operation) (*history.Command, error) {
	return p.history.Execute(ctx, op)
}

func (p *Project) Undo(ctx context.Context) error { return p.history.Undo(ctx) }
func (p *Project) Redo(ctx context.Context) error { return p.history.Redo(ctx) }

// Parameter finds a parameter of a track by its graph path.
func (p *Project) Parameter(trackID, path string) (*Parameter, error) {
	t, err := p.router.mustTrack(trackID)
	if err != nil {
		return nil, err
	}
	par, ok := t.Parameter(path)
	if !ok {
		return nil, fmt.Errorf("track %v has no parameter %q", trackID, path)
	}
	return par, nil
}

// AttachEngine makes m follow the project and hands it the whole current
// state. A previously attached engine is unmounted.
func (p *Project) AttachEngine(m engine.Mountable) {
	if p.attached != nil {
		p.attached.Unmount()
	}
	p.attached = m
	m.Mount(p.bus)
	s := p.Snapshot()
	p.bus.Publish(event.Event{Kind: event.ProjectLoaded, Project: &s})
	p.log.Debug("engine attached", zap.Int("tracks", len(s.Nodes)))
}

// Close tells the attached engine that the project is gone and detaches it.
func (p *Project) Close() {
	p.bus.Publish(event.Event{Kind: event.ProjectClosed})
	if p.attached != nil {
		p.attached.Unmount()
		p.attached = nil
	}
}

// Snapshot returns a detached copy of the whole project.
func (p *Project) Snapshot() echos.ProjectState {
	s := echos.ProjectState{
		Name:        p.name,
		Connections: p.router.Connections(),
		Timeline:    p.timeline.State(),
	}
	for _, t := range p.router.tracks {
		s.Nodes = append(s.Nodes, t.state())
	}
	return s
}

// Load replaces the contents of the project with s. Nothing changes if s is
// inconsistent. On success the history is cleared and ProjectLoaded is
// published with the new state.
func (p *Project) Load(s echos.ProjectState) error {
	r := newRouter(p.bus, p.registry, p.log)
	r.quiet = true
	tl := newTimeline(r)
	for _, n := range s.Nodes {
		t, err := r.AddTrackWithID(n.ID, n.Kind, n.Name)
		if err != nil {
			return fmt.Errorf("load %q: %w", s.Name, err)
		}
		if err := t.setState(n); err != nil {
			return fmt.Errorf("load %q: track %v: %w", s.Name, n.ID, err)
		}
	}
	for _, c := range s.Connections {
		if err := r.Connect(c); err != nil {
			return fmt.Errorf("load %q: %w", s.Name, err)
		}
	}
	for _, n := range s.Nodes {
		t, _ := r.Track(n.ID)
		for _, snd := range n.Sends {
			if err := r.addSend(t.newSend(snd.ID, snd.Target, snd.LevelDB, snd.PreFader)); err != nil {
				return fmt.Errorf("load %q: %w", s.Name, err)
			}
		}
	}
	if len(s.Timeline.Tempos) == 0 && len(s.Timeline.TimeSignatures) == 0 {
		s.Timeline = echos.DefaultTimelineState()
	}
	if err := tl.SetState(s.Timeline); err != nil {
		return fmt.Errorf("load %q: %w", s.Name, err)
	}
	r.quiet = false
	p.router, p.timeline, p.name = r, tl, s.Name
	p.history.Clear()
	loaded := p.Snapshot()
	p.bus.Publish(event.Event{Kind: event.ProjectLoaded, Project: &loaded})
	p.log.Info("project loaded", zap.String("name", s.Name), zap.Int("tracks", len(s.Nodes)))
	return nil
}
