// Package plugin provides the plugin registry and the in-process plugin host
// used by the render graph, together with a few built-in processors.
package plugin

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/echosdaw/echos"
)

// Registry knows every plugin that can be instantiated. It is an explicitly
// owned service: construct one, Load it from its cache, pass it to whatever
// needs descriptors and Persist it when done.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]echos.PluginDescriptor
	cache   *Cache
	log     *zap.Logger
}

// NewRegistry creates an empty registry. cache may be nil, in which case Load
// and Persist do nothing.
func NewRegistry(cache *Cache, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		plugins: make(map[string]echos.PluginDescriptor),
		cache:   cache,
		log:     log.Named("registry"),
	}
}

func (r *Registry) Register(d echos.PluginDescriptor) error {
	if d.ID == "" {
		return fmt.Errorf("plugin %q has no id", d.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[d.ID] = d
	return nil
}

func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.plugins, id)
}

func (r *Registry) FindByID(id string) (echos.PluginDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.plugins[id]
	return d, ok
}

// ListAll returns every registered plugin sorted by id.
func (r *Registry) ListAll() []echos.PluginDescriptor {
	r.mu.RLock()
	ret := make([]echos.PluginDescriptor, 0, len(r.plugins))
	for _, d := range r.plugins {
		ret = append(ret, d)
	}
	r.mu.RUnlock()
	slices.SortFunc(ret, func(a, b echos.PluginDescriptor) int { return cmp.Compare(a.ID, b.ID) })
	return ret
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Load merges the cached descriptors into the registry. Plugins registered
// before Load take precedence over cached ones.
func (r *Registry) Load() error {
	if r.cache == nil {
		return nil
	}
	cached, err := r.cache.Read()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	loaded := 0
	for _, d := range cached {
		if _, ok := r.plugins[d.ID]; ok {
			continue
		}
		r.plugins[d.ID] = d
		loaded++
	}
	r.log.Debug("loaded plugin cache", zap.String("path", r.cache.Path()), zap.Int("plugins", loaded))
	return nil
}

func (r *Registry) Persist() error {
	if r.cache == nil {
		return nil
	}
	plugins := r.ListAll()
	if err := r.cache.Write(plugins); err != nil {
		return err
	}
	r.log.Debug("persisted plugin cache", zap.String("path", r.cache.Path()), zap.Int("plugins", len(plugins)))
	return nil
}
