package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/echosdaw/echos/config"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}
	want := config.Default()
	want.SampleRate = 48000
	want.Backend = config.BackendNone
	tests := []struct {
		name    string
		path    string
		want    config.Config
		wantErr string
	}{
		{"no path", "", config.Default(), ""},
		{"missing file", filepath.Join(dir, "missing.yaml"), config.Default(), ""},
		{"partial", write("partial.yaml", "sample_rate: 48000\nbackend: none\n"), want, ""},
		{"bad backend", write("backend.yaml", "backend: alsa\n"), config.Config{}, "unknown backend"},
		{"bad level", write("level.yaml", "log_level: loud\n"), config.Config{}, "log_level"},
		{"bad block", write("block.yaml", "block_size: 0\n"), config.Config{}, "block_size"},
		{"bad yaml", write("bad.yaml", "sample_rate: [\n"), config.Config{}, "bad.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := config.Load(tt.path)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load error = %v, want it to mention %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEngineOptions(t *testing.T) {
	c := config.Default()
	opts := c.EngineOptions()
	if opts.SampleRate != c.SampleRate || opts.BlockSize != c.BlockSize || opts.RTQueueSize != c.RTQueueSize {
		t.Fatalf("options %+v do not follow config %+v", opts, c)
	}
	if _, err := c.Logger(false); err != nil {
		t.Fatal(err)
	}
}
