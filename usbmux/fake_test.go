package usbmux

import (
	"context"
	"sync"
)

// fakeDriver records every call and returns canned results.
type fakeDriver struct {
	mu       sync.Mutex
	state    MuxState
	sets     []MuxState
	ack      Ack
	setErr   error
	initErr  error
	inits    int
	resets   int
	idle     []bool
	lowPower int
	hpd      []MuxState
	onSet    func()
}

func (f *fakeDriver) Set(s MuxState) (Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = append(f.sets, s)
	if f.onSet != nil {
		f.onSet()
	}
	if f.setErr != nil {
		return AckNotRequired, f.setErr
	}
	f.state = s
	return f.ack, nil
}

func (f *fakeDriver) Get() (MuxState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, nil
}

func (f *fakeDriver) Init(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	return f.initErr
}

func (f *fakeDriver) ChipsetReset() error { f.resets++; return nil }
func (f *fakeDriver) SetIdle(idle bool) error {
	f.idle = append(f.idle, idle)
	return nil
}
func (f *fakeDriver) EnterLowPower() error { f.lowPower++; return nil }
func (f *fakeDriver) HPDUpdate(s MuxState) (Ack, error) {
	f.hpd = append(f.hpd, s)
	return f.ack, nil
}

// setOnly has no optional hooks.
type setOnly struct{ f fakeDriver }

func (s *setOnly) Set(m MuxState) (Ack, error) { return s.f.Set(m) }
func (s *setOnly) Get() (MuxState, error)      { return s.f.Get() }

func desc(port int, d Driver, flags Flags) *Descriptor {
	return &Descriptor{Port: port, Name: "fake", Driver: d, Flags: flags}
}
