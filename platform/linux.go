//go:build linux && !tinygo

package platform

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"

	"typecmux-go/internal/halcore"
	"typecmux-go/internal/logx"
)

func init() { register("linux", openLinux) }

func openLinux() (*Platform, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	f := &linuxI2CFactory{buses: map[string]i2c.BusCloser{}}
	return &Platform{
		Name:    "linux",
		Device:  "linux",
		Buses:   f,
		Pins:    linuxPinFactory{},
		closeFn: f.close,
	}, nil
}

// ---- I²C ----

// linuxI2CFactory opens buses on first use. "i2cN" maps to /dev/i2c-N;
// any other id is passed to i2creg as is.
type linuxI2CFactory struct {
	mu    sync.Mutex
	buses map[string]i2c.BusCloser
}

func (f *linuxI2CFactory) ByID(id string) (drivers.I2C, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.buses[id]; ok {
		return b, true
	}
	name := strings.TrimPrefix(id, "i2c")
	b, err := i2creg.Open(name)
	if err != nil {
		logx.For(logx.ComponentPlatform).Warn("i2c open failed", "bus", id, "err", err)
		return nil, false
	}
	f.buses[id] = b
	return b, true
}

func (f *linuxI2CFactory) close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var first error
	for id, b := range f.buses {
		if err := b.Close(); err != nil && first == nil {
			first = err
		}
		delete(f.buses, id)
	}
	return first
}

// ---- GPIO ----

type linuxPinFactory struct{}

func (linuxPinFactory) ByNumber(n int) (halcore.IRQPin, bool) {
	p := gpioreg.ByName(strconv.Itoa(n))
	if p == nil {
		return nil, false
	}
	return &linuxPin{p: p}, true
}

// linuxPin delivers edges from a goroutine blocked in WaitForEdge.
type linuxPin struct {
	p    gpio.PinIO
	pull gpio.Pull

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func (l *linuxPin) ConfigureInput(pull halcore.Pull) error {
	l.pull = toPull(pull)
	return l.p.In(l.pull, gpio.NoEdge)
}

func (l *linuxPin) Get() bool   { return l.p.Read() == gpio.High }
func (l *linuxPin) Number() int { return l.p.Number() }

func (l *linuxPin) SetIRQ(edge halcore.Edge, handler func()) error {
	if err := l.ClearIRQ(); err != nil {
		return err
	}
	if err := l.p.In(l.pull, toEdge(edge)); err != nil {
		return err
	}
	stop, done := make(chan struct{}), make(chan struct{})
	l.mu.Lock()
	l.stop, l.done = stop, done
	l.mu.Unlock()
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if l.p.WaitForEdge(100 * time.Millisecond) {
				handler()
			}
		}
	}()
	return nil
}

func (l *linuxPin) ClearIRQ() error {
	l.mu.Lock()
	stop, done := l.stop, l.done
	l.stop, l.done = nil, nil
	l.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return l.p.In(l.pull, gpio.NoEdge)
}

func toPull(p halcore.Pull) gpio.Pull {
	switch p {
	case halcore.PullUp:
		return gpio.PullUp
	case halcore.PullDown:
		return gpio.PullDown
	}
	return gpio.Float
}

func toEdge(e halcore.Edge) gpio.Edge {
	switch e {
	case halcore.EdgeRising:
		return gpio.RisingEdge
	case halcore.EdgeFalling:
		return gpio.FallingEdge
	case halcore.EdgeBoth:
		return gpio.BothEdges
	}
	return gpio.NoEdge
}
