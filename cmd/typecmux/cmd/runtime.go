package cmd

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"typecmux-go/bus"
	"typecmux-go/chipset"
	"typecmux-go/platform"
	"typecmux-go/services/config"
	"typecmux-go/services/mux"
	"typecmux-go/types"
)

// runtime is one in-process instance of the config and mux services on an
// opened platform.
type runtime struct {
	plat   *platform.Platform
	power  *chipset.Model
	conn   *bus.Connection
	cancel context.CancelFunc
	g      *errgroup.Group
}

func startRuntime(ctx context.Context) (*runtime, error) {
	plat, err := platform.Open(platformName)
	if err != nil {
		return nil, err
	}
	device := deviceName
	if device == "" {
		device = plat.Device
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	b := bus.NewBus(64)
	rt := &runtime{
		plat:   plat,
		power:  chipset.NewModel(chipset.On),
		conn:   b.NewConnection("cli"),
		cancel: cancel,
		g:      g,
	}

	states := rt.conn.Subscribe(mux.TopicState())
	defer rt.conn.Unsubscribe(states)

	g.Go(func() error {
		mux.Run(gctx, b.NewConnection("usbmux"), mux.Options{Buses: plat.Buses, Pins: plat.Pins, Power: rt.power})
		return nil
	})
	g.Go(func() error {
		return config.NewConfigService().Run(config.DeviceContext(gctx, device), b.NewConnection("config"))
	})

	wait, done := context.WithTimeout(gctx, timeout)
	defer done()
	for {
		select {
		case m := <-states.Channel():
			st, _ := m.Payload.(types.ServiceState)
			switch st.Level {
			case "ready":
				return rt, nil
			case "error":
				_ = rt.stop()
				return nil, fmt.Errorf("mux service: %s: %s", st.Status, st.Error)
			}
		case <-wait.Done():
			err := rt.stop()
			if err == nil {
				err = errors.New("mux service did not become ready")
			}
			return nil, err
		}
	}
}

func (rt *runtime) stop() error {
	rt.cancel()
	err := rt.g.Wait()
	if cerr := rt.plat.Close(); err == nil {
		err = cerr
	}
	return err
}

// request sends a control verb and decodes the reply. A reply with OK false
// is returned as an error carrying its code.
func (rt *runtime) request(ctx context.Context, port int, verb string, payload any) (types.Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	m, err := rt.conn.RequestWait(ctx, rt.conn.NewMessage(mux.TopicControl(port, verb), payload, false))
	if err != nil {
		return types.Reply{}, fmt.Errorf("%s port %d: %w", verb, port, err)
	}
	rep, ok := m.Payload.(types.Reply)
	if !ok {
		return types.Reply{}, fmt.Errorf("%s port %d: unexpected reply %T", verb, port, m.Payload)
	}
	if !rep.OK {
		if rep.Detail != "" {
			return rep, fmt.Errorf("%s port %d: %s (%s)", verb, port, rep.Error, rep.Detail)
		}
		return rep, fmt.Errorf("%s port %d: %s", verb, port, rep.Error)
	}
	return rep, nil
}

// withRuntime brackets fn with a started and stopped runtime.
func withRuntime(ctx context.Context, fn func(*runtime) error) error {
	rt, err := startRuntime(ctx)
	if err != nil {
		return err
	}
	err = fn(rt)
	if serr := rt.stop(); err == nil {
		err = serr
	}
	return err
}
