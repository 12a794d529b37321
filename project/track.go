package project

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/echosdaw/echos"
	"github.com/echosdaw/echos/event"
)

// Volume range of mixers and sends, in dB.
const (
	MinVolumeDB = echos.SilenceDB
	MaxVolumeDB = 12
)

var (
	ErrClipNotFound   = errors.New("clip not found")
	ErrClipExists     = errors.New("clip already exists")
	ErrNotInstrument  = errors.New("track is not an instrument track")
	ErrHasInstrument  = errors.New("track already has an instrument")
	ErrInsertNotFound = errors.New("insert not found")
	ErrSendNotFound   = errors.New("send not found")
)

type (
	// Track is a node of the project: an instrument, audio or effect track or
	// a bus.
	Track struct {
		id      string
		name    string
		kind    echos.NodeKind
		mixer   Mixer
		inserts []*Insert
		sends   []*Send
		clips   []echos.Clip
		router  *Router
	}

	Mixer struct {
		Volume *Parameter // dB
		Pan    *Parameter // -1 left .. 1 right
		Mute   *Parameter // 0 or 1
	}

	// Insert is a plugin instance in a track's insert chain. On instrument
	// tracks the instrument plugin always sits at index 0.
	Insert struct {
		id         string
		pluginID   string
		instrument bool
		enabled    bool
		params     []*Parameter
		track      *Track
	}

	// Send feeds a copy of a track's signal to the input of another track.
	Send struct {
		id       string
		target   string
		level    *Parameter
		preFader bool
		track    *Track
	}
)

func newTrack(r *Router, id, name string, kind echos.NodeKind) *Track {
	t := &Track{id: id, name: name, kind: kind, router: r}
	t.mixer = Mixer{
		Volume: newParameter(t, "volume", "mixer.volume", MinVolumeDB, MaxVolumeDB, 0),
		Pan:    newParameter(t, "pan", "mixer.pan", -1, 1, 0),
		Mute:   newParameter(t, "mute", "mixer.muted", 0, 1, 0),
	}
	return t
}

func (t *Track) ID() string           { return t.id }
func (t *Track) Name() string         { return t.name }
func (t *Track) Kind() echos.NodeKind { return t.kind }
func (t *Track) Mixer() *Mixer        { return &t.mixer }

func (t *Track) publish(e event.Event) { t.router.publish(e) }

// SetName renames the track. Names are not unique.
func (t *Track) SetName(name string) {
	t.name = name
	t.publish(event.Event{Kind: event.NodeRenamed, NodeID: t.id, Name: name})
}

func (m *Mixer) Muted() bool { return m.Mute.Value() != 0 }

// Ports lists the ports of the track: an audio output, an audio input on
// everything but instrument tracks, a MIDI input on instrument tracks and
// one output per send.
func (t *Track) Ports() []echos.Port {
	var ports []echos.Port
	if t.kind == echos.InstrumentNode {
		ports = append(ports, echos.Port{ID: echos.MIDIInPort, Direction: echos.PortInput, Type: echos.MIDIPort})
	} else {
		ports = append(ports, echos.Port{ID: echos.MainInPort, Direction: echos.PortInput, Type: echos.AudioPort})
	}
	ports = append(ports, echos.Port{ID: echos.MainOutPort, Direction: echos.PortOutput, Type: echos.AudioPort})
	for _, s := range t.sends {
		ports = append(ports, echos.Port{ID: echos.SendPort(s.id), Direction: echos.PortOutput, Type: echos.AudioPort})
	}
	return ports
}

func (t *Track) Port(id string) (echos.Port, bool) {
	for _, p := range t.Ports() {
		if p.ID == id {
			return p, true
		}
	}
	return echos.Port{}, false
}

// Parameter finds a parameter by its graph path.
func (t *Track) Parameter(path string) (*Parameter, bool) {
	for _, p := range t.parameters() {
		if p.path == path {
			return p, true
		}
	}
	return nil, false
}

func (t *Track) parameters() []*Parameter {
	ret := []*Parameter{t.mixer.Volume, t.mixer.Pan, t.mixer.Mute}
	for _, ins := range t.inserts {
		ret = append(ret, ins.params...)
	}
	for _, s := range t.sends {
		ret = append(ret, s.level)
	}
	return ret
}

// Inserts

func (t *Track) Inserts() []*Insert { return slices.Clone(t.inserts) }

func (t *Track) Insert(id string) (*Insert, int, bool) {
	i := slices.IndexFunc(t.inserts, func(ins *Insert) bool { return ins.id == id })
	if i < 0 {
		return nil, -1, false
	}
	return t.inserts[i], i, true
}

func (t *Track) hasInstrument() bool {
	return len(t.inserts) > 0 && t.inserts[0].instrument && t.kind == echos.InstrumentNode
}

// NewInsert creates an insert for pluginID without adding it. The plugin
// must be known to the router's registry, if it has one.
func (t *Track) NewInsert(id, pluginID string) (*Insert, error) {
	ins := &Insert{id: id, pluginID: pluginID, enabled: true, track: t}
	reg := t.router.registry
	if reg == nil {
		return ins, nil
	}
	desc, ok := reg.FindByID(pluginID)
	if !ok {
		return nil, fmt.Errorf("insert %v: %w", pluginID, echos.ErrPluginNotFound)
	}
	ins.instrument = desc.IsInstrument
	for _, p := range desc.Parameters {
		ins.params = append(ins.params, newParameter(t, p.Name, fmt.Sprintf("plugin.%s.%s", id, p.Name), p.Min, p.Max, p.Default))
	}
	return ins, nil
}

// AddInsert puts ins into the chain at index, clamped to the chain. An
// instrument plugin on an instrument track always goes to index 0 and is
// refused if the track already has one. The index used is returned.
func (t *Track) AddInsert(ins *Insert, index int) (int, error) {
	if ins.track != t {
		return 0, fmt.Errorf("insert %v belongs to another track", ins.id)
	}
	if _, _, ok := t.Insert(ins.id); ok {
		return 0, fmt.Errorf("insert %v is already on track %v", ins.id, t.id)
	}
	lo := 0
	if t.hasInstrument() {
		lo = 1
	}
	if t.kind == echos.InstrumentNode && ins.instrument {
		if t.hasInstrument() {
			return 0, fmt.Errorf("insert %v on %v: %w", ins.pluginID, t.id, ErrHasInstrument)
		}
		index, lo = 0, 0
	}
	index = min(max(index, lo), len(t.inserts))
	t.inserts = slices.Insert(t.inserts, index, ins)
	t.publish(event.Event{Kind: event.InsertAdded, NodeID: t.id, InstanceID: ins.id, PluginID: ins.pluginID, Index: index})
	for _, p := range ins.params {
		if p.value != p.def {
			p.announce()
		}
	}
	if !ins.enabled {
		ins.announceEnabled()
	}
	return index, nil
}

// RemoveInsert takes the insert out of the chain and returns it with the
// index it had, so that AddInsert can put it back.
func (t *Track) RemoveInsert(id string) (*Insert, int, error) {
	ins, i, ok := t.Insert(id)
	if !ok {
		return nil, -1, fmt.Errorf("remove %v from %v: %w", id, t.id, ErrInsertNotFound)
	}
	t.inserts = slices.Delete(t.inserts, i, i+1)
	t.publish(event.Event{Kind: event.InsertRemoved, NodeID: t.id, InstanceID: id})
	return ins, i, nil
}

// MoveInsert moves an effect insert to index and returns where it was. The
// instrument of an instrument track cannot move.
func (t *Track) MoveInsert(id string, index int) (int, error) {
	ins, i, ok := t.Insert(id)
	if !ok {
		return -1, fmt.Errorf("move %v in %v: %w", id, t.id, ErrInsertNotFound)
	}
	lo := 0
	if t.hasInstrument() {
		if i == 0 {
			return -1, fmt.Errorf("move %v in %v: the instrument stays first", id, t.id)
		}
		lo = 1
	}
	t.inserts = slices.Delete(t.inserts, i, i+1)
	index = min(max(index, lo), len(t.inserts))
	t.inserts = slices.Insert(t.inserts, index, ins)
	t.publish(event.Event{Kind: event.InsertMoved, NodeID: t.id, InstanceID: id, OldIndex: i, Index: index})
	return i, nil
}

func (i *Insert) ID() string               { return i.id }
func (i *Insert) PluginID() string         { return i.pluginID }
func (i *Insert) IsInstrument() bool       { return i.instrument }
func (i *Insert) Enabled() bool            { return i.enabled }
func (i *Insert) Parameters() []*Parameter { return slices.Clone(i.params) }

func (i *Insert) Parameter(name string) (*Parameter, bool) {
	for _, p := range i.params {
		if p.name == name {
			return p, true
		}
	}
	return nil, false
}

func (i *Insert) SetEnabled(enabled bool) {
	i.enabled = enabled
	i.announceEnabled()
}

func (i *Insert) announceEnabled() {
	i.track.publish(event.Event{Kind: event.PluginEnabledChanged, NodeID: i.track.id, InstanceID: i.id, Enabled: i.enabled})
}

// Sends

func (t *Track) Sends() []*Send { return slices.Clone(t.sends) }

func (t *Track) Send(id string) (*Send, bool) {
	i := slices.IndexFunc(t.sends, func(s *Send) bool { return s.id == id })
	if i < 0 {
		return nil, false
	}
	return t.sends[i], true
}

func (t *Track) newSend(id, target string, levelDB float64, pre bool) *Send {
	s := &Send{id: id, target: target, preFader: pre, track: t}
	s.level = newParameter(t, "level", fmt.Sprintf("send.%s.level", id), MinVolumeDB, MaxVolumeDB, 0)
	s.level.value = min(max(levelDB, MinVolumeDB), MaxVolumeDB)
	return s
}

func (s *Send) ID() string        { return s.id }
func (s *Send) Target() string    { return s.target }
func (s *Send) Level() *Parameter { return s.level }
func (s *Send) PreFader() bool    { return s.preFader }
func (s *Send) Track() *Track     { return s.track }

func (s *Send) SetPreFader(pre bool) {
	s.preFader = pre
	v := 0.0
	if pre {
		v = 1
	}
	s.track.publish(event.Event{Kind: event.ParameterChanged, NodeID: s.track.id, Path: fmt.Sprintf("send.%s.pre", s.id), Value: v})
}

func (s *Send) announce() {
	s.track.publish(event.Event{Kind: event.SendAdded, NodeID: s.track.id, SendID: s.id, Target: s.target, Value: s.level.value, PreFader: s.preFader})
}

// Clips

// Clips returns a copy of the track's clips.
func (t *Track) Clips() []echos.Clip { return echos.CopyClips(t.clips) }

func (t *Track) Clip(id string) (echos.Clip, bool) {
	i := t.clipIndex(id)
	if i < 0 {
		return echos.Clip{}, false
	}
	return t.clips[i].Copy(), true
}

func (t *Track) clipIndex(id string) int {
	return slices.IndexFunc(t.clips, func(c echos.Clip) bool { return c.ID == id })
}

// AddClip adds a copy of c. Only instrument tracks hold clips and clip ids
// are unique within the track.
func (t *Track) AddClip(c echos.Clip) error {
	if t.kind != echos.InstrumentNode {
		return fmt.Errorf("add clip to %v: %w", t.id, ErrNotInstrument)
	}
	if c.DurationBeats <= 0 || c.StartBeat < 0 {
		return fmt.Errorf("add clip to %v: invalid span %v+%v", t.id, c.StartBeat, c.DurationBeats)
	}
	if t.clipIndex(c.ID) >= 0 {
		return fmt.Errorf("add clip %v to %v: %w", c.ID, t.id, ErrClipExists)
	}
	notes := c.Notes
	c.Notes = nil
	c = c.WithNotes(notes...)
	t.clips = append(t.clips, c)
	t.publish(event.Event{Kind: event.ClipAdded, NodeID: t.id, Clip: c.Copy()})
	return nil
}

func (t *Track) RemoveClip(id string) (echos.Clip, error) {
	i := t.clipIndex(id)
	if i < 0 {
		return echos.Clip{}, fmt.Errorf("remove clip %v from %v: %w", id, t.id, ErrClipNotFound)
	}
	c := t.clips[i]
	t.clips = slices.Delete(t.clips, i, i+1)
	t.publish(event.Event{Kind: event.ClipRemoved, NodeID: t.id, Clip: c.Copy(), Clips: t.Clips()})
	return c, nil
}

// AddNotes adds notes to a clip and returns the ones that were not in it
// already.
func (t *Track) AddNotes(clipID string, notes ...echos.Note) ([]echos.Note, error) {
	i := t.clipIndex(clipID)
	if i < 0 {
		return nil, fmt.Errorf("add notes to %v: %w", clipID, ErrClipNotFound)
	}
	var added []echos.Note
	for _, n := range notes {
		if n.DurationBeats <= 0 || n.Pitch > 127 || n.Velocity > 127 {
			return nil, fmt.Errorf("add notes to %v: invalid note %+v", clipID, n)
		}
		if !slices.Contains(t.clips[i].Notes, n) && !slices.Contains(added, n) {
			added = append(added, n)
		}
	}
	t.clips[i] = t.clips[i].WithNotes(added...)
	t.publish(event.Event{Kind: event.NotesAdded, NodeID: t.id, Clip: t.clips[i].Copy(), Notes: slices.Clone(added), Clips: t.Clips()})
	return added, nil
}

// RemoveNotes removes notes from a clip and returns the ones it held.
func (t *Track) RemoveNotes(clipID string, notes ...echos.Note) ([]echos.Note, error) {
	i := t.clipIndex(clipID)
	if i < 0 {
		return nil, fmt.Errorf("remove notes from %v: %w", clipID, ErrClipNotFound)
	}
	var removed []echos.Note
	for _, n := range notes {
		if slices.Contains(t.clips[i].Notes, n) && !slices.Contains(removed, n) {
			removed = append(removed, n)
		}
	}
	t.clips[i] = t.clips[i].WithoutNotes(removed...)
	t.publish(event.Event{Kind: event.NotesRemoved, NodeID: t.id, Clip: t.clips[i].Copy(), Notes: slices.Clone(removed), Clips: t.Clips()})
	return removed, nil
}

// announce publishes the whole state of a track that has just been put
// (back) into the router.
func (t *Track) announce() {
	t.publish(event.Event{Kind: event.NodeAdded, NodeID: t.id, NodeKind: t.kind, Name: t.name})
	for i, ins := range t.inserts {
		t.publish(event.Event{Kind: event.InsertAdded, NodeID: t.id, InstanceID: ins.id, PluginID: ins.pluginID, Index: i})
		for _, p := range ins.params {
			if p.value != p.def {
				p.announce()
			}
		}
		if !ins.enabled {
			ins.announceEnabled()
		}
	}
	for _, p := range []*Parameter{t.mixer.Volume, t.mixer.Pan, t.mixer.Mute} {
		if p.value != p.def {
			p.announce()
		}
	}
	for _, c := range t.clips {
		t.publish(event.Event{Kind: event.ClipAdded, NodeID: t.id, Clip: c.Copy()})
	}
}

func (t *Track) state() echos.NodeState {
	s := echos.NodeState{
		ID:       t.id,
		Name:     t.name,
		Kind:     t.kind,
		VolumeDB: t.mixer.Volume.value,
		Pan:      t.mixer.Pan.value,
		Muted:    t.mixer.Muted(),
		Clips:    t.Clips(),
	}
	for _, ins := range t.inserts {
		is := echos.InsertState{ID: ins.id, PluginID: ins.pluginID, Enabled: ins.enabled}
		if len(ins.params) > 0 {
			is.Parameters = make(map[string]float64, len(ins.params))
			for _, p := range ins.params {
				is.Parameters[p.name] = p.value
			}
		}
		s.Inserts = append(s.Inserts, is)
	}
	for _, snd := range t.sends {
		s.Sends = append(s.Sends, echos.SendState{ID: snd.id, Target: snd.target, LevelDB: snd.level.value, PreFader: snd.preFader})
	}
	return s
}

// setState fills a new track from a snapshot without announcing anything.
func (t *Track) setState(s echos.NodeState) error {
	t.mixer.Volume.value = min(max(s.VolumeDB, MinVolumeDB), MaxVolumeDB)
	t.mixer.Pan.value = min(max(s.Pan, -1), 1)
	if s.Muted {
		t.mixer.Mute.value = 1
	}
	for _, is := range s.Inserts {
		ins, err := t.NewInsert(is.ID, is.PluginID)
		if err != nil {
			return err
		}
		ins.enabled = is.Enabled
		for _, name := range slices.Sorted(maps.Keys(is.Parameters)) {
			p, ok := ins.Parameter(name)
			if !ok {
				if t.router.registry == nil {
					p = newParameter(t, name, fmt.Sprintf("plugin.%s.%s", ins.id, name), -math.MaxFloat64, math.MaxFloat64, 0)
					ins.params = append(ins.params, p)
				} else {
					return fmt.Errorf("insert %v has no parameter %q", is.ID, name)
				}
			}
			p.value = min(max(is.Parameters[name], p.min), p.max)
		}
		t.inserts = append(t.inserts, ins)
	}
	for _, c := range s.Clips {
		if t.kind != echos.InstrumentNode {
			return fmt.Errorf("track %v: %w", t.id, ErrNotInstrument)
		}
		t.clips = append(t.clips, c.Copy())
	}
	return nil
}
