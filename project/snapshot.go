package project

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/echosdaw/echos"
)

// Save writes the project as a YAML document.
func (p *Project) Save(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(p.Snapshot()); err != nil {
		return fmt.Errorf("save %q: %w", p.name, err)
	}
	return enc.Close()
}

// Open reads a YAML document written by Save into a new project.
func Open(r io.Reader, opts ...Option) (*Project, error) {
	s, err := decode(r)
	if err != nil {
		return nil, err
	}
	p := New(s.Name, opts...)
	if err := p.Load(s); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadFrom replaces the contents of the project with a document written by
// Save. An attached engine follows the change.
func (p *Project) LoadFrom(r io.Reader) error {
	s, err := decode(r)
	if err != nil {
		return err
	}
	return p.Load(s)
}

func decode(r io.Reader) (echos.ProjectState, error) {
	var s echos.ProjectState
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return s, fmt.Errorf("open project: %w", err)
	}
	return s, nil
}

// SaveFile writes the project to path. The file is replaced only once the
// whole document has been encoded.
func (p *Project) SaveFile(path string) error {
	var buf bytes.Buffer
	if err := p.Save(&buf); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("save %q: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("save %q: %w", path, err)
	}
	return nil
}

func OpenFile(path string, opts ...Option) (*Project, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open project: %w", err)
	}
	defer f.Close()
	return Open(f, opts...)
}
