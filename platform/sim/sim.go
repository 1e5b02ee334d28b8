// Package sim is an emulated board: two redrivers and a two-port crossbar
// chip on emulated I²C buses, sharing one interrupt line.
package sim

import (
	"typecmux-go/emul"
	"typecmux-go/internal/halcore"
)

// Device is the embedded config key that describes this board.
const Device = "sim"

const (
	AddrANX0 = 0x3E
	AddrANX1 = 0x3F
	AddrXbar = 0x40
	IRQXbar  = 7
)

// Board holds the emulated chips so callers can poke at them.
type Board struct {
	Buses halcore.MapI2C
	I2C0  *emul.Bus
	I2C1  *emul.Bus
	ANX0  *emul.Regmap
	ANX1  *emul.Regmap
	Xbar  *emul.Xbar
	Lines map[int]*emul.Line
}

func New() *Board {
	b := &Board{
		I2C0:  emul.NewBus(),
		I2C1:  emul.NewBus(),
		ANX0:  emul.NewANX7483(emul.ANXChipIDAA),
		ANX1:  emul.NewANX7483(emul.ANXChipIDBA),
		Lines: map[int]*emul.Line{IRQXbar: emul.NewLine(IRQXbar)},
	}
	b.Xbar = emul.NewXbar(b.Lines[IRQXbar], true)
	b.Xbar.AutoComplete = true

	b.I2C0.Attach(AddrANX0, b.ANX0)
	b.I2C0.Attach(AddrANX1, b.ANX1)
	b.I2C1.Attach(AddrXbar, b.Xbar)
	b.Buses = halcore.MapI2C{"i2c0": b.I2C0, "i2c1": b.I2C1}
	return b
}

// ByNumber implements halcore.PinFactory over the emulated lines.
func (b *Board) ByNumber(n int) (halcore.IRQPin, bool) {
	l, ok := b.Lines[n]
	if !ok {
		return nil, false
	}
	return l, true
}
