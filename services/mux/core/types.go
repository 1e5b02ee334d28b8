// Package core holds the pieces shared by the mux service and the chip
// builders: the builder registry and the per-configuration environment.
package core

import (
	"context"
	"sync"

	"typecmux-go/chipset"
	"typecmux-go/internal/gpioirq"
	"typecmux-go/internal/halcore"
	"typecmux-go/types"
	"typecmux-go/usbmux"
)

// Builder constructs the driver for one chip in a chain.
type Builder interface {
	Build(in BuildInput) (usbmux.Driver, error)
}

type BuildInput struct {
	Ctx   context.Context
	Port  int // USB-C port
	Index int // position in the chain, root = 0
	Chip  types.ChipConfig
	Env   *Env
}

// Completion is an asynchronous Set outcome reported by a driver.
type Completion struct {
	Port  int
	Mux   string
	State usbmux.MuxState
	Err   error
}

// CableSource reports cable metadata per USB-C port.
type CableSource interface {
	Cable(port int) (types.CableRequest, bool)
}

// Starter arms a shared resource once every chain is built. The returned
// func disarms it.
type Starter func(ctx context.Context, w *gpioirq.Worker) (stop func(), err error)

// Env carries the resources shared by every chip built from one board
// config.
type Env struct {
	Buses  halcore.I2CBusFactory
	Pins   halcore.PinFactory
	Power  chipset.Power
	Cables CableSource
	Notify func(Completion)

	mu       sync.Mutex
	shared   map[string]any
	starters []Starter
}

// Shared returns the value stored under key, creating it with mk on first
// use. Builders use it to group instances that share a chip or IRQ line.
func (e *Env) Shared(key string, mk func() any) any {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shared == nil {
		e.shared = map[string]any{}
	}
	if v, ok := e.shared[key]; ok {
		return v
	}
	v := mk()
	e.shared[key] = v
	return v
}

// OnStart queues fn to run after the whole configuration is built.
func (e *Env) OnStart(fn Starter) {
	e.mu.Lock()
	e.starters = append(e.starters, fn)
	e.mu.Unlock()
}

// Start runs the queued starters. On error, already started ones are
// stopped.
func (e *Env) Start(ctx context.Context, w *gpioirq.Worker) (stop func(), err error) {
	e.mu.Lock()
	starters := e.starters
	e.starters = nil
	e.mu.Unlock()

	var stops []func()
	stopAll := func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}
	for _, s := range starters {
		st, err := s(ctx, w)
		if err != nil {
			stopAll()
			return func() {}, err
		}
		stops = append(stops, st)
	}
	return stopAll, nil
}

// Completed forwards c to Notify when set.
func (e *Env) Completed(c Completion) {
	if e.Notify != nil {
		e.Notify(c)
	}
}
