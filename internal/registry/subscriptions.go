package registry

import (
	"strings"
	"sync"
)

// ConfigChangedFunc receives the changed configuration key and its new value.
type ConfigChangedFunc func(key, value string) error

// ConfigSubscriptions maps driver module names to configuration change
// callbacks. One callback per module; a later Set replaces the earlier one.
//
// All methods are thread-safe.
type ConfigSubscriptions struct {
	mu    sync.RWMutex
	order []string
	subs  map[string]ConfigChangedFunc
}

// NewConfigSubscriptions creates an empty subscription table.
func NewConfigSubscriptions() *ConfigSubscriptions {
	return &ConfigSubscriptions{subs: make(map[string]ConfigChangedFunc)}
}

// Set inserts or replaces the callback for module.
func (s *ConfigSubscriptions) Set(module string, fn ConfigChangedFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[module]; !ok {
		s.order = append(s.order, module)
	}
	s.subs[module] = fn
}

// Get returns the callback registered for module.
func (s *ConfigSubscriptions) Get(module string) (ConfigChangedFunc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn, ok := s.subs[module]
	return fn, ok
}

// Match returns the first subscription, in registration order, whose
// module name is contained in key.
func (s *ConfigSubscriptions) Match(key string) (string, ConfigChangedFunc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, module := range s.order {
		if strings.Contains(key, module) {
			return module, s.subs[module], true
		}
	}
	return "", nil, false
}

// Len returns the number of subscriptions.
func (s *ConfigSubscriptions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
