package usbmux

import (
	"context"
)

// Ack says whether a Set is complete on return or confirmed later.
type Ack uint8

const (
	AckNotRequired Ack = iota
	AckRequired
)

func (a Ack) String() string {
	if a == AckRequired {
		return "required"
	}
	return "not_required"
}

// Driver is implemented by every mux/retimer family.
//
// Set must treat SafeMode as None, must return errcode.NotPowered without
// touching the bus while the host is hard-off (unless the desired state is
// None, which succeeds trivially), and must strip polarity before comparing
// modes.
type Driver interface {
	Set(s MuxState) (Ack, error)
	Get() (MuxState, error)
}

// Optional hooks, discovered by type assertion.
type (
	Initializer interface {
		Init(ctx context.Context) error
	}
	ChipsetResetter interface {
		ChipsetReset() error
	}
	IdleSetter interface {
		SetIdle(idle bool) error
	}
	LowPowerEnterer interface {
		EnterLowPower() error
	}
	// HPDUpdater receives hot-plug-detect changes (HPDLevel, HPDIRQ).
	HPDUpdater interface {
		HPDUpdate(s MuxState) (Ack, error)
	}
)

func initDriver(ctx context.Context, d Driver) error {
	if i, ok := d.(Initializer); ok {
		return i.Init(ctx)
	}
	return nil
}

func resetDriver(d Driver) error {
	if r, ok := d.(ChipsetResetter); ok {
		return r.ChipsetReset()
	}
	return nil
}

func idleDriver(d Driver, idle bool) error {
	if i, ok := d.(IdleSetter); ok {
		return i.SetIdle(idle)
	}
	return nil
}

func lowPowerDriver(d Driver) error {
	if l, ok := d.(LowPowerEnterer); ok {
		return l.EnterLowPower()
	}
	return nil
}

func hpdDriver(d Driver, s MuxState) (Ack, error) {
	if h, ok := d.(HPDUpdater); ok {
		return h.HPDUpdate(s)
	}
	return AckNotRequired, nil
}
