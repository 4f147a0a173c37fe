package reader

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor returns a fresh, unopened Reader.
type Constructor func() Reader

// Opener opens the product at path for sensor. Callers own the returned
// reader and must Close it.
type Opener interface {
	Open(sensor, path string) (Reader, error)
}

// Registry maps reader tags to constructors and sensors to reader tags.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
	bindings     map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
		bindings:     make(map[string]string),
	}
}

// Register adds a reader tag. Registering a tag twice replaces it.
func (r *Registry) Register(tag string, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[tag] = c
}

// Bind selects the reader tag used for sensor.
func (r *Registry) Bind(sensor, tag string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.constructors[tag]; !ok {
		return fmt.Errorf("%w: %q for sensor %q", ErrUnknownReader, tag, sensor)
	}
	r.bindings[sensor] = tag
	return nil
}

// Tags returns the registered reader tags in sorted order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.constructors))
	for tag := range r.constructors {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// New returns an unopened reader for sensor.
func (r *Registry) New(sensor string) (Reader, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tag, ok := r.bindings[sensor]
	if !ok {
		return nil, fmt.Errorf("%w: no reader bound to sensor %q", ErrUnknownReader, sensor)
	}
	c, ok := r.constructors[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReader, tag)
	}
	return c(), nil
}

// Open implements Opener. A reader that fails to open is closed before the
// error is returned.
func (r *Registry) Open(sensor, path string) (Reader, error) {
	rd, err := r.New(sensor)
	if err != nil {
		return nil, err
	}
	if err := rd.Open(path); err != nil {
		rd.Close()
		return nil, fmt.Errorf("open %s product %s: %w", sensor, path, err)
	}
	return rd, nil
}
