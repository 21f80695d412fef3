package core

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

var (
	modules   = make(map[string]ModuleInfo)
	modulesMu sync.RWMutex
)

// RegisterModule registers a module by instantiating it to read its ModuleInfo.
// It panics if a module with the same ID is already registered or if the
// module info is invalid. Intended to be called from init() functions.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	if info.ID == "" {
		panic("core: module ID must not be empty")
	}
	if info.New == nil {
		panic(fmt.Sprintf("core: module %s: New function must not be nil", info.ID))
	}

	modulesMu.Lock()
	defer modulesMu.Unlock()

	id := string(info.ID)
	if _, exists := modules[id]; exists {
		panic(fmt.Sprintf("core: module already registered: %s", id))
	}
	modules[id] = info
}

// GetModule returns the ModuleInfo for the given ID, or false if not found.
func GetModule(id string) (ModuleInfo, bool) {
	modulesMu.RLock()
	defer modulesMu.RUnlock()
	info, ok := modules[id]
	return info, ok
}

// GetModules returns all registered modules sorted by ID.
func GetModules() []ModuleInfo {
	return selectModules(func(string) bool { return true })
}

// GetModulesByNamespace returns all modules whose ID starts with the given
// namespace prefix (e.g., "checkpoint" matches "checkpoint.sqlite").
func GetModulesByNamespace(namespace string) []ModuleInfo {
	prefix := namespace + "."
	return selectModules(func(id string) bool { return strings.HasPrefix(id, prefix) })
}

// Drivers returns the sorted names of the modules in namespace, without
// the namespace prefix: "checkpoint" yields ["memory", "sqlite"].
func Drivers(namespace string) []string {
	infos := GetModulesByNamespace(namespace)
	out := make([]string, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.ID.Name())
	}
	return out
}

func selectModules(keep func(id string) bool) []ModuleInfo {
	modulesMu.RLock()
	defer modulesMu.RUnlock()

	var result []ModuleInfo
	for _, id := range slices.Sorted(maps.Keys(modules)) {
		if keep(id) {
			result = append(result, modules[id])
		}
	}
	return result
}

// resetRegistry clears the registry. Only for testing.
func resetRegistry() {
	modulesMu.Lock()
	defer modulesMu.Unlock()
	modules = make(map[string]ModuleInfo)
}
