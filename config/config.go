// Package config loads the settings shared by the echos commands from a YAML
// file.
package config

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/echosdaw/echos/engine"
)

// Backend names the audio output.
const (
	BackendOto       = "oto"
	BackendPortAudio = "portaudio"
	BackendNone      = "none"
)

type Config struct {
	SampleRate   int    `yaml:"sample_rate"`
	BlockSize    int    `yaml:"block_size"`
	RTQueueSize  int    `yaml:"rt_queue_size"`
	NRTQueueSize int    `yaml:"nrt_queue_size"`
	MaxHistory   int    `yaml:"max_history"`
	PluginCache  string `yaml:"plugin_cache,omitempty"`
	Backend      string `yaml:"backend"`
	LogLevel     string `yaml:"log_level"`
	MetricsAddr  string `yaml:"metrics_addr,omitempty"`
}

func Default() Config {
	return Config{
		SampleRate:   44100,
		BlockSize:    512,
		RTQueueSize:  1024,
		NRTQueueSize: 1024,
		MaxHistory:   100,
		Backend:      BackendOto,
		LogLevel:     "info",
	}
}

// Load reads path over the defaults. A missing file is not an error; the
// defaults are returned.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("config %v: %w", path, err)
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.SampleRate < 8000 || c.SampleRate > 384000 {
		errs = append(errs, fmt.Errorf("sample_rate %d out of range", c.SampleRate))
	}
	if c.BlockSize <= 0 || c.BlockSize > 8192 {
		errs = append(errs, fmt.Errorf("block_size %d out of range", c.BlockSize))
	}
	if c.RTQueueSize <= 0 || c.NRTQueueSize <= 0 {
		errs = append(errs, errors.New("queue sizes must be positive"))
	}
	if c.MaxHistory < 0 {
		errs = append(errs, fmt.Errorf("max_history %d is negative", c.MaxHistory))
	}
	switch c.Backend {
	case BackendOto, BackendPortAudio, BackendNone:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// EngineOptions converts the config into engine options without metrics.
func (c Config) EngineOptions() engine.Options {
	return engine.Options{
		SampleRate:   c.SampleRate,
		BlockSize:    c.BlockSize,
		RTQueueSize:  c.RTQueueSize,
		NRTQueueSize: c.NRTQueueSize,
	}
}

// Logger builds a production logger at the configured level, or a
// development one if debug is set.
func (c Config) Logger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = "console"
	return zc.Build()
}
