package kv

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	drivers   = make(map[string]DriverInfo)
	driversMu sync.RWMutex
)

// Register makes a storage driver available by name. It panics when the
// name is empty, the open function is nil or the name is taken.
// Intended to be called from init() functions.
func Register(info DriverInfo) {
	if info.Name == "" {
		panic("kv: driver name must not be empty")
	}
	if info.Open == nil {
		panic(fmt.Sprintf("kv: driver %s: Open must not be nil", info.Name))
	}

	driversMu.Lock()
	defer driversMu.Unlock()

	if _, exists := drivers[info.Name]; exists {
		panic(fmt.Sprintf("kv: driver already registered: %s", info.Name))
	}
	drivers[info.Name] = info
}

// Drivers returns the names of all registered drivers, sorted.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Registered reports whether a driver with the given name exists.
func Registered(name string) bool {
	driversMu.RLock()
	defer driversMu.RUnlock()
	_, ok := drivers[name]
	return ok
}

// Open opens a store with the named driver.
func Open(ctx context.Context, name string, node *yaml.Node, env Env) (Store, error) {
	driversMu.RLock()
	info, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("kv: unknown driver %q (registered: %v)", name, Drivers())
	}

	store, err := info.Open(ctx, node, env)
	if err != nil {
		return nil, fmt.Errorf("kv: opening %s: %w", name, err)
	}
	return store, nil
}
