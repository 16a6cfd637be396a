package commandstructure

import (
	"fmt"
	"sort"
	"sync"
)

// CommandRegistry manages the registration and creation of image commands
type CommandRegistry struct {
	mu        sync.RWMutex
	factories map[string]CommandFactory
}

// NewCommandRegistry creates a new command registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		factories: make(map[string]CommandFactory),
	}
}

// Register adds a command factory to the registry
func (r *CommandRegistry) Register(name string, factory CommandFactory) error {
	if name == "" {
		return fmt.Errorf("command name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("command factory cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("command %s is already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Create instantiates a command by name with the given parameters
func (r *CommandRegistry) Create(name string, params map[string]any) (Command, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("unknown command: %s", name)
	}

	command, err := factory(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create command %s: %w", name, err)
	}

	return command, nil
}

// IsRegistered checks if a command with the given name is registered
func (r *CommandRegistry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[name]
	return exists
}

// GetRegisteredNames returns the sorted names of all registered commands
func (r *CommandRegistry) GetRegisteredNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the registry the commands package registers itself into
var DefaultRegistry = NewCommandRegistry()
