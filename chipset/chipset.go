// Package chipset models the host SoC power state as seen by the mux layer.
package chipset

import (
	"sync"
	"sync/atomic"

	"typecmux-go/internal/logx"
)

// State is a coarse host power state.
type State uint8

const (
	HardOff State = iota // G3: rails down, mux chips unpowered
	SoftOff              // S5
	Suspend              // S3/S0ix
	On                   // S0
)

func (s State) String() string {
	switch s {
	case HardOff:
		return "hard_off"
	case SoftOff:
		return "soft_off"
	case Suspend:
		return "suspend"
	case On:
		return "on"
	}
	return "unknown"
}

// ParseState is the inverse of String.
func ParseState(s string) (State, bool) {
	for st := HardOff; st <= On; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}

// Power is the query surface drivers consume.
type Power interface {
	IsHardOff() bool
	TransitioningToOn() bool
}

// Transition is delivered to listeners after every state change.
type Transition struct {
	From, To State
}

// Model is a concurrency-safe Power implementation driven by the platform.
type Model struct {
	state  atomic.Uint32
	target atomic.Uint32 // == state when not transitioning

	mu        sync.Mutex
	listeners []func(Transition)
}

func NewModel(initial State) *Model {
	m := &Model{}
	m.state.Store(uint32(initial))
	m.target.Store(uint32(initial))
	return m
}

func (m *Model) State() State { return State(m.state.Load()) }

func (m *Model) IsHardOff() bool { return m.State() == HardOff }

// TransitioningToOn reports an in-flight transition whose target is On.
func (m *Model) TransitioningToOn() bool {
	return State(m.target.Load()) == On && m.State() != On
}

// Begin records that the host is moving towards target.
func (m *Model) Begin(target State) { m.target.Store(uint32(target)) }

// Set completes a transition and notifies listeners synchronously.
func (m *Model) Set(s State) {
	from := State(m.state.Swap(uint32(s)))
	m.target.Store(uint32(s))
	if from == s {
		return
	}
	logx.For(logx.ComponentChipset).Debug("transition", "from", from.String(), "to", s.String())
	m.mu.Lock()
	ls := append([]func(Transition){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range ls {
		fn(Transition{From: from, To: s})
	}
}

// OnTransition registers fn for future transitions.
func (m *Model) OnTransition(fn func(Transition)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// AlwaysOn is a Power for boards and tests without power sequencing.
type AlwaysOn struct{}

func (AlwaysOn) IsHardOff() bool         { return false }
func (AlwaysOn) TransitioningToOn() bool { return false }
