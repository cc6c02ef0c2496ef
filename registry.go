package tasks

import "sync"

// Registry maps task names to their Task definitions, per SPEC_FULL.md §2/§4.2.
type Registry struct {
	mu     sync.RWMutex
	tasks  map[string]*Task
	logger Logger
}

// NewRegistry builds an empty Registry.
func NewRegistry(logger Logger) *Registry {
	if logger == nil {
		logger = NewZerologLogger()
	}
	return &Registry{tasks: make(map[string]*Task), logger: logger}
}

// Register adds a task under its name. Re-registering a name overwrites the
// previous entry and logs a warning rather than failing, per SPEC_FULL.md §7
// ("Registration — duplicate task name → warning, overwrite"), grounded on
// original_source/tasks/__init__.py:set_task.
func (r *Registry) Register(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[t.Name]; exists {
		r.logger.Warn("unknown", "unknown", "registered task overwritten: "+t.Name)
	}
	r.tasks[t.Name] = t
}

// Lookup returns the task registered under name, if any.
func (r *Registry) Lookup(name string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[name]
	return t, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}
