package plugin

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/echosdaw/echos"
)

// Factory builds a new instance of the plugin described by desc.
type Factory func(desc echos.PluginDescriptor, instanceID string, sampleRate int) (echos.PluginInstance, error)

// Host is an in-process plugin host. It resolves plugin ids through a
// registry and builds instances with the factory registered for the id.
type Host struct {
	mu         sync.Mutex
	registry   echos.PluginRegistry
	factories  map[string]Factory
	instances  map[string]echos.PluginInstance
	sampleRate int
	log        *zap.Logger
}

// NewHost creates a host that already knows the factories of the built-in
// plugins.
func NewHost(registry echos.PluginRegistry, sampleRate int, log *zap.Logger) *Host {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Host{
		registry:   registry,
		factories:  make(map[string]Factory),
		instances:  make(map[string]echos.PluginInstance),
		sampleRate: sampleRate,
		log:        log.Named("host"),
	}
	for id, f := range builtinFactories {
		h.factories[id] = f
	}
	return h
}

func (h *Host) RegisterFactory(pluginID string, f Factory) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.factories[pluginID] = f
}

func (h *Host) CreateInstance(instanceID, pluginID string) (echos.PluginInstance, error) {
	desc, ok := h.registry.FindByID(pluginID)
	if !ok {
		return nil, fmt.Errorf("create instance %v: %w: %v", instanceID, echos.ErrPluginNotFound, pluginID)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.instances[instanceID]; ok {
		return nil, fmt.Errorf("create instance %v: instance id already in use", instanceID)
	}
	factory, ok := h.factories[pluginID]
	if !ok {
		return nil, fmt.Errorf("create instance %v: no factory for plugin %v", instanceID, pluginID)
	}
	inst, err := factory(desc, instanceID, h.sampleRate)
	if err != nil {
		return nil, fmt.Errorf("create instance %v of %v: %w", instanceID, pluginID, err)
	}
	h.instances[instanceID] = inst
	h.log.Debug("created instance", zap.String("instance", instanceID), zap.String("plugin", pluginID))
	return inst, nil
}

func (h *Host) ReleaseInstance(instanceID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.instances[instanceID]; !ok {
		return fmt.Errorf("release instance %v: %w", instanceID, echos.ErrPluginNotFound)
	}
	delete(h.instances, instanceID)
	h.log.Debug("released instance", zap.String("instance", instanceID))
	return nil
}

func (h *Host) Instance(instanceID string) (echos.PluginInstance, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	inst, ok := h.instances[instanceID]
	return inst, ok
}

// Count is the number of live instances.
func (h *Host) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.instances)
}
