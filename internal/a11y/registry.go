package a11y

import (
	"io"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type registration struct {
	name   string
	closer io.Closer
}

// Registry owns platform resources that must be released before exit, such as
// observation subscriptions. Resources are closed in reverse registration order.
type Registry struct {
	mu     sync.Mutex
	items  []registration
	closed bool
	logger *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{logger: logger.Named("registry")}
}

// Register adds c under name. Registering after Close closes c immediately.
func (r *Registry) Register(name string, c io.Closer) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return c.Close()
	}
	r.items = append(r.items, registration{name: name, closer: c})
	r.mu.Unlock()
	r.logger.Debug("Registered resource.", zap.String("name", name))
	return nil
}

// Len reports the number of live registrations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Close releases every registered resource and returns the combined errors.
// Subsequent calls are no-ops.
func (r *Registry) Close() error {
	r.mu.Lock()
	items := r.items
	r.items = nil
	r.closed = true
	r.mu.Unlock()

	var err error
	for i := len(items) - 1; i >= 0; i-- {
		it := items[i]
		if cerr := it.closer.Close(); cerr != nil {
			r.logger.Warn("Failed to release resource.", zap.String("name", it.name), zap.Error(cerr))
			err = multierr.Append(err, cerr)
			continue
		}
		r.logger.Debug("Released resource.", zap.String("name", it.name))
	}
	return err
}
