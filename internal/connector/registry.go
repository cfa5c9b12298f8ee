package connector

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]Connector)
	registryMu sync.RWMutex
)

// Register adds a connector to the registry.
// Panics if a connector with the same ID is already registered.
func Register(c Connector) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[c.ID]; exists {
		panic(fmt.Sprintf("connector already registered: %s", c.ID))
	}
	registry[c.ID] = c
}

// Get returns a connector by ID.
// Returns false if not found.
func Get(id string) (Connector, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	c, ok := registry[id]
	return c, ok
}

// All returns all registered connectors, sorted by ID for consistent
// ordering.
func All() []Connector {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Connector, 0, len(registry))
	for _, c := range registry {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

// Count returns the number of registered connectors.
func Count() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}
