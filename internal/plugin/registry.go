package plugin

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Key identifies a creator in a registry.
type Key struct {
	Namespace string
	Name      string
	Version   string
}

func (k Key) String() string {
	if k.Namespace == "" {
		return k.Name + "@" + k.Version
	}
	return k.Namespace + "::" + k.Name + "@" + k.Version
}

// KeyOf returns the registry key of c.
func KeyOf(c Creator) Key {
	return Key{Namespace: c.PluginNamespace(), Name: c.PluginName(), Version: c.PluginVersion()}
}

// Registry maps plugin keys to creators. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	creators map[Key]Creator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{creators: make(map[Key]Creator)}
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry, creating it on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// Register adds c under its key. Registering a key twice keeps the first
// creator and reports false; it is not an error.
//
// The key is taken when c is registered. Calling c.SetPluginNamespace
// afterwards does not move it; use SetNamespace instead.
func (r *Registry) Register(c Creator) bool {
	key := KeyOf(c)
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.creators[key]; ok {
		if existing != c {
			klog.Warningf("plugin registry: %s already registered, ignoring duplicate creator", key)
		}
		return false
	}
	r.creators[key] = c
	klog.V(1).Infof("plugin registry: registered %s", key)
	return true
}

// SetNamespace moves the creator registered under key into namespace ns and
// re-keys it. The creator is left untouched if ns is already taken.
func (r *Registry) SetNamespace(key Key, ns string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creators[key]
	if !ok {
		return errors.Wrapf(ErrNotFound, "%s", key)
	}
	moved := key
	moved.Namespace = ns
	if moved == key {
		return nil
	}
	if _, taken := r.creators[moved]; taken {
		return errors.Wrapf(ErrConfig, "cannot move %s: %s is already registered", key, moved)
	}
	c.SetPluginNamespace(ns)
	if got := KeyOf(c); got != moved {
		c.SetPluginNamespace(key.Namespace)
		return errors.Wrapf(ErrConfig, "cannot move %s: creator reports %s", key, got)
	}
	delete(r.creators, key)
	r.creators[moved] = c
	klog.V(1).Infof("plugin registry: moved %s to %s", key, moved)
	return nil
}

// Lookup returns the creator for name/version in namespace.
func (r *Registry) Lookup(name, version, namespace string) (Creator, error) {
	key := Key{Namespace: namespace, Name: name, Version: version}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.creators[key]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s", key)
	}
	return c, nil
}

// Keys returns the registered keys, sorted.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	keys := make([]Key, 0, len(r.creators))
	for k := range r.creators {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Find returns every creator registered under name, any version or namespace.
func (r *Registry) Find(name string) []Creator {
	var out []Creator
	for _, k := range r.Keys() {
		if k.Name != name {
			continue
		}
		r.mu.RLock()
		c := r.creators[k]
		r.mu.RUnlock()
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Clear removes every creator. The CLI calls it on exit.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.creators)
}
