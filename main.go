// Firmware entry point: runs the config and mux services on the board's
// own platform backend, or on the emulated board when none is compiled in.
package main

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"typecmux-go/bus"
	"typecmux-go/platform"
	"typecmux-go/services/config"
	"typecmux-go/services/heartbeat"
	"typecmux-go/services/mux"

	_ "typecmux-go/services/mux/devices/anx7483"
	_ "typecmux-go/services/mux/devices/virtual"
	_ "typecmux-go/services/mux/devices/xbarmux"
)

func pickPlatform() string {
	for _, n := range platform.Names() {
		if n == "rp2" {
			return n
		}
	}
	return "sim"
}

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("boot")

	plat, err := platform.Open(pickPlatform())
	if err != nil {
		println("platform:", err.Error())
		return
	}
	defer plat.Close()

	b := bus.NewBus(64)
	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		mux.Run(ctx, b.NewConnection("usbmux"), mux.Options{Buses: plat.Buses, Pins: plat.Pins})
		return nil
	})
	g.Go(func() error {
		return config.NewConfigService().Run(config.DeviceContext(ctx, plat.Device), b.NewConnection("config"))
	})

	g.Go(func() error {
		hb := &heartbeat.Service{Platform: plat.Name}
		return hb.Run(ctx, b.NewConnection("heartbeat"))
	})

	if err := g.Wait(); err != nil {
		println("stopped:", err.Error())
	}
}
