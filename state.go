package echos

type (
	// ProjectState is a detached, serializable copy of a whole project.
	ProjectState struct {
		Name        string        `yaml:"name"`
		Nodes       []NodeState   `yaml:"nodes"`
		Connections []Connection  `yaml:"connections,omitempty"`
		Timeline    TimelineState `yaml:"timeline"`
	}

	NodeState struct {
		ID       string        `yaml:"id"`
		Name     string        `yaml:"name"`
		Kind     NodeKind      `yaml:"kind"`
		VolumeDB float64       `yaml:"volume"`
		Pan      float64       `yaml:"pan"`
		Muted    bool          `yaml:"muted,omitempty"`
		Inserts  []InsertState `yaml:"inserts,omitempty"`
		Sends    []SendState   `yaml:"sends,omitempty"`
		Clips    []Clip        `yaml:"clips,omitempty"`
	}

	InsertState struct {
		ID         string             `yaml:"id"`
		PluginID   string             `yaml:"plugin"`
		Enabled    bool               `yaml:"enabled"`
		Parameters map[string]float64 `yaml:"parameters,omitempty"`
	}

	SendState struct {
		ID       string  `yaml:"id"`
		Target   string  `yaml:"target"`
		LevelDB  float64 `yaml:"level"`
		PreFader bool    `yaml:"pre_fader,omitempty"`
	}
)
