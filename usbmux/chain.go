package usbmux

import (
	"context"

	"typecmux-go/errcode"
)

// Chain is the ordered list of muxes that together route one port.
// It is immutable once built.
type Chain struct {
	Port  int
	Muxes []*Descriptor
}

func NewChain(port int, muxes ...*Descriptor) *Chain {
	return &Chain{Port: port, Muxes: muxes}
}

func (c *Chain) Root() *Descriptor {
	if c == nil || len(c.Muxes) == 0 {
		return nil
	}
	return c.Muxes[0]
}

// HasFlag reports whether any mux in the chain carries f.
func (c *Chain) HasFlag(f Flags) bool {
	for _, d := range c.Muxes {
		if d.Flags&f != 0 {
			return true
		}
	}
	return false
}

// SupportsLowPower reports whether any driver can enter low power.
func (c *Chain) SupportsLowPower() bool {
	for _, d := range c.Muxes {
		if _, ok := d.Driver.(LowPowerEnterer); ok {
			return true
		}
	}
	return false
}

func (c *Chain) wrap(op string, err error) error {
	return &errcode.E{C: errcode.MapDriverErr(err), Op: op, Port: c.Port, Err: err}
}

// walk applies fn to every mux in order. A Busy result is remembered and the
// walk continues; any other error stops it and is returned at once.
func (c *Chain) walk(op string, fn func(d *Descriptor) error) error {
	var busy error
	for _, d := range c.Muxes {
		err := fn(d)
		if err == nil {
			continue
		}
		if errcode.Is(err, errcode.Busy) {
			if busy == nil {
				busy = c.wrap(op, err)
			}
			continue
		}
		return c.wrap(op, err)
	}
	return busy
}

// Set applies s to every mux. The returned Ack is AckRequired if any driver
// asked for one.
func (c *Chain) Set(s MuxState) (Ack, error) { return c.set(s, -1, nil) }

// SetSingle applies s to the mux at index only.
func (c *Chain) SetSingle(index int, s MuxState) (Ack, error) {
	if index < 0 || index >= len(c.Muxes) {
		return AckNotRequired, errcode.Wrap(errcode.InvalidArgument, "set_single", c.Port, nil)
	}
	return c.set(s, index, nil)
}

// set walks the chain (or only the mux at index when index >= 0). pause,
// when non-nil, runs after a mux asks for an ack and before the next mux is
// touched.
func (c *Chain) set(s MuxState, index int, pause func()) (Ack, error) {
	ack := AckNotRequired
	i := -1
	err := c.walk("set", func(d *Descriptor) error {
		i++
		if index >= 0 && i != index {
			return nil
		}
		want := d.transform(s)
		a, err := d.Driver.Set(want)
		if err != nil {
			return err
		}
		if d.BoardSet != nil {
			if err := d.BoardSet(d, want); err != nil {
				return err
			}
		}
		if a == AckRequired {
			ack = AckRequired
			if pause != nil && index < 0 && i < len(c.Muxes)-1 {
				pause()
			}
		}
		return nil
	})
	return ack, err
}

// HPDUpdate forwards hot-plug-detect bits to every mux that takes them.
// Flag transforms do not apply.
func (c *Chain) HPDUpdate(s MuxState) (Ack, error) { return c.hpdUpdate(s, nil) }

func (c *Chain) hpdUpdate(s MuxState, pause func()) (Ack, error) {
	s &= HPDLevel | HPDIRQ
	ack := AckNotRequired
	i := -1
	err := c.walk("hpd_update", func(d *Descriptor) error {
		i++
		a, err := hpdDriver(d.Driver, s)
		if err != nil {
			return err
		}
		if a == AckRequired {
			ack = AckRequired
			if pause != nil && i < len(c.Muxes)-1 {
				pause()
			}
		}
		return nil
	})
	return ack, err
}

// Get reads the root mux only; the rest of the chain is kept in lockstep by
// Set.
func (c *Chain) Get() (MuxState, error) {
	d := c.Root()
	if d == nil {
		return None, nil
	}
	s, err := d.Driver.Get()
	if err != nil {
		return None, c.wrap("get", err)
	}
	if d.Flags&FlagPolarityInv != 0 && s != None {
		s ^= PolarityInverted
	}
	return s, nil
}

func (c *Chain) Init(ctx context.Context) error {
	return c.walk("init", func(d *Descriptor) error {
		if err := initDriver(ctx, d.Driver); err != nil {
			return err
		}
		if d.BoardInit != nil {
			return d.BoardInit(d)
		}
		return nil
	})
}

func (c *Chain) ChipsetReset() error {
	return c.walk("chipset_reset", func(d *Descriptor) error { return resetDriver(d.Driver) })
}

// SetIdle only touches muxes flagged CanIdle.
func (c *Chain) SetIdle(idle bool) error {
	return c.walk("set_idle", func(d *Descriptor) error {
		if d.Flags&CanIdle == 0 {
			return nil
		}
		return idleDriver(d.Driver, idle)
	})
}

func (c *Chain) EnterLowPower() error {
	return c.walk("enter_low_power", func(d *Descriptor) error { return lowPowerDriver(d.Driver) })
}

// Names lists the chip names in order (diagnostics).
func (c *Chain) Names() []string {
	out := make([]string, len(c.Muxes))
	for i, d := range c.Muxes {
		out[i] = d.Name
	}
	return out
}
