package usbmux

import (
	"sync"

	"typecmux-go/chipset"
	"typecmux-go/errcode"
)

// PassThrough is a driver for muxes configured by someone else (the AP, or
// a board with hard-wired lanes). It records the requested state, including
// hot-plug-detect bits, and never touches a bus.
type PassThrough struct {
	power chipset.Power

	mu    sync.Mutex
	state MuxState
}

func NewPassThrough(p chipset.Power) *PassThrough {
	if p == nil {
		p = chipset.AlwaysOn{}
	}
	return &PassThrough{power: p}
}

const hpdBits = HPDLevel | HPDIRQ

// Set keeps the current HPD bits unless s disconnects the port.
func (v *PassThrough) Set(s MuxState) (Ack, error) {
	s = s.CollapseSafe() &^ hpdBits
	if v.power.IsHardOff() && s != None {
		return AckNotRequired, errcode.NotPowered
	}
	v.mu.Lock()
	if s != None {
		s |= v.state & hpdBits
	}
	v.state = s
	v.mu.Unlock()
	return AckNotRequired, nil
}

func (v *PassThrough) Get() (MuxState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state, nil
}

// HPDUpdate replaces the recorded HPD bits.
func (v *PassThrough) HPDUpdate(s MuxState) (Ack, error) {
	if v.power.IsHardOff() && s&hpdBits != 0 {
		return AckNotRequired, errcode.NotPowered
	}
	v.mu.Lock()
	v.state = v.state&^hpdBits | s&hpdBits
	v.mu.Unlock()
	return AckNotRequired, nil
}
