// Package platform supplies the I²C buses and IRQ pins the mux service
// runs on. Backends register themselves by name; which ones exist depends
// on build tags.
package platform

import (
	"fmt"
	"sort"
	"sync"

	"typecmux-go/internal/halcore"
)

// Platform is an opened backend.
type Platform struct {
	Name   string
	Device string // embedded config key for this board
	Buses  halcore.I2CBusFactory
	Pins   halcore.PinFactory

	// Sim is set by the sim backend for tests and the CLI.
	Sim any

	closeFn func() error
}

func (p *Platform) Close() error {
	if p.closeFn == nil {
		return nil
	}
	return p.closeFn()
}

type opener func() (*Platform, error)

var (
	mu      sync.Mutex
	openers = map[string]opener{}
)

func register(name string, fn opener) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := openers[name]; ok {
		panic("platform: duplicate backend " + name)
	}
	openers[name] = fn
}

// Open initialises the named backend.
func Open(name string) (*Platform, error) {
	mu.Lock()
	fn, ok := openers[name]
	mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("platform: unknown backend %q (have %v)", name, Names())
	}
	return fn()
}

// Names lists the backends compiled in.
func Names() []string {
	mu.Lock()
	defer mu.Unlock()
	out := make([]string, 0, len(openers))
	for k := range openers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
