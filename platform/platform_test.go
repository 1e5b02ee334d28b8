package platform

import (
	"testing"

	"typecmux-go/platform/sim"
)

func TestOpenSim(t *testing.T) {
	p, err := Open("sim")
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if p.Device != sim.Device {
		t.Fatalf("device %q", p.Device)
	}
	if _, ok := p.Buses.ByID("i2c1"); !ok {
		t.Fatal("i2c1 missing")
	}
	if _, ok := p.Sim.(*sim.Board); !ok {
		t.Fatalf("sim handle %T", p.Sim)
	}
}

func TestOpenUnknown(t *testing.T) {
	if _, err := Open("nope"); err == nil {
		t.Fatal("expected error")
	}
}
