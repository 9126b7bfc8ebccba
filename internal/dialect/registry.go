package dialect

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownDialect is returned by Get and Unregister for names that are not
// registered.
var ErrUnknownDialect = errors.New("unknown dialect")

var (
	registryMu sync.RWMutex
	registry   = map[string]Dialect{
		Excel.Name:    Excel,
		ExcelTab.Name: ExcelTab,
	}
)

// Register publishes d under name in the process-wide dialect table.
//
// Edge cases:
//   - name must be non-empty after trimming.
//   - d must pass Validate.
//   - An existing entry with the same name is overwritten. Concurrent
//     registrations of one name are last-writer-wins.
//
// The stored copy carries name as its Name.
func Register(name string, d Dialect) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("dialect: Register called with empty name")
	}
	if err := Validate(d); err != nil {
		return fmt.Errorf("dialect: register %q: %w", name, err)
	}
	d.Name = name

	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = d
	return nil
}

// Get looks up a registered dialect by name.
func Get(name string) (Dialect, error) {
	registryMu.RLock()
	d, ok := registry[strings.TrimSpace(name)]
	registryMu.RUnlock()

	if !ok {
		return Dialect{}, fmt.Errorf("dialect: %w: %q", ErrUnknownDialect, name)
	}
	return d, nil
}

// Unregister removes name from the table.
func Unregister(name string) error {
	name = strings.TrimSpace(name)

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[name]; !ok {
		return fmt.Errorf("dialect: %w: %q", ErrUnknownDialect, name)
	}
	delete(registry, name)
	return nil
}

// List returns the registered names in sorted order.
func List() []string {
	registryMu.RLock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	registryMu.RUnlock()

	sort.Strings(out)
	return out
}
