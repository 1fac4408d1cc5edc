// Package builtin holds the mini-apps compiled into the appliance binary and
// the static table mapping manifest names to their entry points. Apps are Go
// functions, not external processes, so registration happens at init time and
// the table is read-only afterwards.
package builtin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/atlanticdynamic/boss/internal/apps/appapi"
)

// Table maps manifest names to registered entry points. The zero value is not
// usable; use Default or NewTable.
type Table struct {
	mu          sync.RWMutex
	entrypoints map[string]appapi.EntryPoint
}

// NewTable creates an empty entry point table.
func NewTable() *Table {
	return &Table{entrypoints: make(map[string]appapi.EntryPoint)}
}

// Register adds an entry point under a manifest name. Registering the same
// name twice is a programming error and panics, like http.HandleFunc.
func (t *Table) Register(name string, ep appapi.EntryPoint) {
	if ep == nil {
		panic(fmt.Sprintf("builtin: nil entry point for %q", name))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.entrypoints[name]; dup {
		panic(fmt.Sprintf("builtin: duplicate entry point %q", name))
	}
	t.entrypoints[name] = ep
}

// Lookup returns the entry point registered under a manifest name.
func (t *Table) Lookup(name string) (appapi.EntryPoint, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ep, ok := t.entrypoints[name]
	return ep, ok
}

// Names returns the registered app names in sorted order.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.entrypoints))
	for name := range t.entrypoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// defaultTable holds the apps compiled into this binary.
var defaultTable = NewTable()

// Default returns the table of compiled-in apps.
func Default() *Table {
	return defaultTable
}

// Register adds an entry point to the default table. Called from init
// functions in this package.
func Register(name string, ep appapi.EntryPoint) {
	defaultTable.Register(name, ep)
}
