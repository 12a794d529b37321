package plugin

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/echosdaw/echos"
)

// Cache stores plugin descriptors in a YAML file so that a registry does not
// need to rescan plugins on every start.
type Cache struct {
	path string
}

type (
	cacheFile struct {
		Version int          `yaml:"version"`
		Plugins []cacheEntry `yaml:"plugins"`
	}

	cacheEntry struct {
		echos.PluginDescriptor `yaml:",inline"`
		Stamp                  time.Time `yaml:"stamp"`
	}
)

const cacheVersion = 1

func NewCache(path string) *Cache {
	return &Cache{path: path}
}

func (c *Cache) Path() string { return c.path }

// Read returns the cached descriptors. A missing file is an empty cache.
func (c *Cache) Read() ([]echos.PluginDescriptor, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read plugin cache %v: %w", c.path, err)
	}
	var file cacheFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("could not parse plugin cache %v: %w", c.path, err)
	}
	if file.Version != cacheVersion {
		return nil, fmt.Errorf("plugin cache %v has version %d, expected %d", c.path, file.Version, cacheVersion)
	}
	ret := make([]echos.PluginDescriptor, len(file.Plugins))
	for i, e := range file.Plugins {
		ret[i] = e.PluginDescriptor
	}
	return ret, nil
}

// Write replaces the cache file with the given descriptors. The file is
// written next to the target and renamed over it.
func (c *Cache) Write(plugins []echos.PluginDescriptor) error {
	now := time.Now().UTC()
	file := cacheFile{Version: cacheVersion, Plugins: make([]cacheEntry, len(plugins))}
	for i, p := range plugins {
		file.Plugins[i] = cacheEntry{PluginDescriptor: p, Stamp: now}
	}
	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("could not marshal plugin cache: %w", err)
	}
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create plugin cache directory %v: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".plugins-*.yml")
	if err != nil {
		return fmt.Errorf("could not create temporary plugin cache: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write plugin cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not write plugin cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("could not replace plugin cache %v: %w", c.path, err)
	}
	return nil
}
