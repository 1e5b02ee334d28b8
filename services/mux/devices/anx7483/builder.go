package anx7483dev

import (
	"typecmux-go/drivers/anx7483"
	"typecmux-go/errcode"
	"typecmux-go/services/mux/core"
	"typecmux-go/usbmux"
)

func init() { core.RegisterBuilder("anx7483", builder{}) }

type builder struct{}

func (builder) Build(in core.BuildInput) (usbmux.Driver, error) {
	c := in.Chip
	if c.Bus == "" {
		return nil, errcode.InvalidParams
	}
	i2c, ok := in.Env.Buses.ByID(c.Bus)
	if !ok {
		return nil, errcode.UnknownBus
	}
	d := anx7483.New(i2c, in.Env.Power, anx7483.Config{
		Address:       c.Addr,
		DefaultTuning: c.DefaultTuning,
	})
	return &Device{Device: d}, nil
}

// Device exposes lane overrides by pin name for the control surface.
type Device struct {
	*anx7483.Device
}

func (d *Device) TuneEQ(pin string, v uint8) error {
	p, ok := anx7483.ParsePin(pin)
	if !ok {
		return errcode.InvalidArgument
	}
	return d.SetEQ(p, anx7483.EQ(v))
}

func (d *Device) TuneFG(pin string, v uint8) error {
	p, ok := anx7483.ParsePin(pin)
	if !ok {
		return errcode.InvalidArgument
	}
	return d.SetFG(p, anx7483.FG(v))
}
