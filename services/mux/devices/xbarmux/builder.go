package xbarmuxdev

import (
	"context"
	"strconv"

	"typecmux-go/drivers/xbarmux"
	"typecmux-go/errcode"
	"typecmux-go/internal/gpioirq"
	"typecmux-go/services/mux/core"
	"typecmux-go/usbmux"
)

func init() { core.RegisterBuilder("xbarmux", builder{}) }

type builder struct{}

// Build adds the port to the family that owns its interrupt line, creating
// the family on first use.
func (builder) Build(in core.BuildInput) (usbmux.Driver, error) {
	c := in.Chip
	if c.Bus == "" || c.Addr == 0 || c.IRQPin == nil {
		return nil, errcode.InvalidParams
	}
	i2c, ok := in.Env.Buses.ByID(c.Bus)
	if !ok {
		return nil, errcode.UnknownBus
	}
	var fixed *usbmux.MuxState
	if c.Fixed != "" {
		s, ok := usbmux.ParseState(c.Fixed)
		if !ok {
			return nil, errcode.InvalidParams
		}
		fixed = &s
	}
	fam, err := family(in.Env, *c.IRQPin)
	if err != nil {
		return nil, err
	}
	h, err := fam.Add(xbarmux.InstanceConfig{
		Port:      in.Port,
		Bus:       i2c,
		Addr:      c.Addr,
		ChipPort:  c.ChipPort,
		Fixed:     fixed,
		CableMeta: c.CableInfo,
	})
	if err != nil {
		return nil, err
	}
	return fam.Mux(h), nil
}

func family(env *core.Env, pin int) (*xbarmux.Family, error) {
	irq, ok := env.Pins.ByNumber(pin)
	if !ok {
		return nil, errcode.UnknownPin
	}
	name := "xbarmux-irq" + strconv.Itoa(pin)
	v := env.Shared(name, func() any {
		f := xbarmux.NewFamily(xbarmux.FamilyConfig{
			Name:  name,
			IRQ:   irq,
			Power: env.Power,
			Cable: cables{env.Cables},
			Notify: func(c xbarmux.Completion) {
				env.Completed(core.Completion{Port: c.Port, Mux: "xbarmux", State: c.State, Err: c.Err})
			},
		})
		env.OnStart(func(ctx context.Context, w *gpioirq.Worker) (func(), error) {
			return f.Start(ctx, w)
		})
		return f
	})
	return v.(*xbarmux.Family), nil
}

type cables struct{ src core.CableSource }

func (c cables) Cable(port int) (xbarmux.Cable, bool) {
	if c.src == nil {
		return xbarmux.Cable{}, false
	}
	r, ok := c.src.Cable(port)
	if !ok {
		return xbarmux.Cable{}, false
	}
	return xbarmux.Cable{Active: r.Active, Retimer: r.Retimer, Speed: r.Speed}, true
}
