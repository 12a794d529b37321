package command

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/echosdaw/echos"
	"github.com/echosdaw/echos/project"
)

// CreateMIDIClip adds an empty clip to an instrument track.
type CreateMIDIClip struct {
	project *project.Project
	trackID string
	clip    echos.Clip
}

// NewCreateMIDIClip creates the command. An empty clipID gets a new one.
func NewCreateMIDIClip(p *project.Project, trackID, clipID, name string, startBeat, durationBeats float64) *CreateMIDIClip {
	if clipID == "" {
		clipID = uuid.NewString()
	}
	return &CreateMIDIClip{
		project: p,
		trackID: trackID,
		clip:    echos.Clip{ID: clipID, Name: name, StartBeat: startBeat, DurationBeats: durationBeats},
	}
}

// ClipID is the id the clip is created with.
func (c *CreateMIDIClip) ClipID() string { return c.clip.ID }

func (c *CreateMIDIClip) Execute(context.Context) error {
	t, err := track(c.project, c.trackID)
	if err != nil {
		return err
	}
	return t.AddClip(c.clip)
}

func (c *CreateMIDIClip) Undo(context.Context) error {
	t, err := track(c.project, c.trackID)
	if err != nil {
		return err
	}
	_, err = t.RemoveClip(c.clip.ID)
	return err
}

func (c *CreateMIDIClip) Description() string {
	return fmt.Sprintf("Create MIDI clip %q", c.clip.Name)
}

type RemoveClip struct {
	project *project.Project
	trackID string
	clipID  string
	removed echos.Clip
}

func NewRemoveClip(p *project.Project, trackID, clipID string) *RemoveClip {
	return &RemoveClip{project: p, trackID: trackID, clipID: clipID}
}

func (c *RemoveClip) Execute(context.Context) error {
	t, err := track(c.project, c.trackID)
	if err != nil {
		return err
	}
	c.removed, err = t.RemoveClip(c.clipID)
	return err
}

func (c *RemoveClip) Undo(context.Context) error {
	t, err := track(c.project, c.trackID)
	if err != nil {
		return err
	}
	return t.AddClip(c.removed)
}

func (c *RemoveClip) Description() string {
	if c.removed.Name != "" {
		return fmt.Sprintf("Remove clip %q", c.removed.Name)
	}
	return "Remove clip"
}

// AddNotes adds notes to a clip. Undo removes only the notes that were not
// in the clip before.
type AddNotes struct {
	project *project.Project
	trackID string
	clipID  string
	notes   []echos.Note
	added   []echos.Note
}

func NewAddNotes(p *project.Project, trackID, clipID string, notes ...echos.Note) *AddNotes {
	return &AddNotes{project: p, trackID: trackID, clipID: clipID, notes: notes}
}

func (c *AddNotes) Execute(context.Context) error {
	t, err := track(c.project, c.trackID)
	if err != nil {
		return err
	}
	c.added, err = t.AddNotes(c.clipID, c.notes...)
	return err
}

func (c *AddNotes) Undo(context.Context) error {
	t, err := track(c.project, c.trackID)
	if err != nil {
		return err
	}
	_, err = t.RemoveNotes(c.clipID, c.added...)
	return err
}

func (c *AddNotes) Description() string {
	return fmt.Sprintf("Add %s", plural(len(c.notes), "note"))
}

// RemoveNotes removes notes from a clip. Undo puts back only the notes that
// were in the clip.
type RemoveNotes struct {
	project *project.Project
	trackID string
	clipID  string
	notes   []echos.Note
	removed []echos.Note
}

func NewRemoveNotes(p *project.Project, trackID, clipID string, notes ...echos.Note) *RemoveNotes {
	return &RemoveNotes{project: p, trackID: trackID, clipID: clipID, notes: notes}
}

func (c *RemoveNotes) Execute(context.Context) error {
	t, err := track(c.project, c.trackID)
	if err != nil {
		return err
	}
	c.removed, err = t.RemoveNotes(c.clipID, c.notes...)
	return err
}

func (c *RemoveNotes) Undo(context.Context) error {
	t, err := track(c.project, c.trackID)
	if err != nil {
		return err
	}
	_, err = t.AddNotes(c.clipID, c.removed...)
	return err
}

func (c *RemoveNotes) Description() string {
	return fmt.Sprintf("Remove %s", plural(len(c.notes), "note"))
}
