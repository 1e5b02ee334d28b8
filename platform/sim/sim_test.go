package sim

import (
	"testing"

	"typecmux-go/emul"
)

func TestBoardWiring(t *testing.T) {
	b := New()
	bus, ok := b.Buses.ByID("i2c0")
	if !ok {
		t.Fatal("i2c0 missing")
	}
	r := make([]byte, 1)
	if err := bus.Tx(AddrANX1, []byte{emul.ANXRegChipID}, r); err != nil || r[0] != emul.ANXChipIDBA {
		t.Fatalf("chip id = %#x, %v", r[0], err)
	}
	if _, ok := b.ByNumber(IRQXbar); !ok {
		t.Fatal("irq line missing")
	}
	if _, ok := b.ByNumber(99); ok {
		t.Fatal("unexpected pin")
	}
}
