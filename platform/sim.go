package platform

import "typecmux-go/platform/sim"

func init() {
	register("sim", func() (*Platform, error) {
		b := sim.New()
		return &Platform{
			Name:   "sim",
			Device: sim.Device,
			Buses:  b.Buses,
			Pins:   b,
			Sim:    b,
		}, nil
	})
}
