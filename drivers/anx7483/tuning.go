package anx7483

import (
	"strings"

	"typecmux-go/usbmux"
)

// RegWrite is one entry of a tuning table.
type RegWrite struct {
	Reg byte
	Val byte
}

// Revision is the silicon revision read from CHIP_ID.
type Revision uint8

const (
	RevAA Revision = iota
	RevBA
)

func (r Revision) String() string {
	if r == RevBA {
		return "BA"
	}
	return "AA"
}

// Table is the tuning for one mode: a common part followed by a
// revision-specific termination part.
type Table struct {
	Name   string
	Common []RegWrite
	AA     []RegWrite
	BA     []RegWrite
}

// Writes returns the full ordered write list for rev.
func (t *Table) Writes(rev Revision) []RegWrite {
	tail := t.AA
	if rev == RevBA {
		tail = t.BA
	}
	out := make([]RegWrite, 0, len(t.Common)+len(tail))
	out = append(out, t.Common...)
	return append(out, tail...)
}

var TableUSB = &Table{
	Name: "usb",
	Common: []RegWrite{
		{cfg(laneURX1, 2), cfg2Default},
		{cfg(laneURX2, 2), cfg2Default},
		{cfg(laneDRX1, 2), cfg2Default},
		{cfg(laneDRX2, 2), cfg2Default},

		{cfg(laneURX1, 0), cfg0Default},
		{cfg(laneURX2, 0), cfg0Default},
		{cfg(laneDRX1, 0), cfg0Default},
		{cfg(laneDRX2, 0), cfg0Default},

		{cfg(laneURX1, 4), cfg4TermEnable},
		{cfg(laneURX2, 4), cfg4TermEnable},
		{cfg(laneDRX1, 4), cfg4TermEnable},
		{cfg(laneDRX2, 4), cfg4TermEnable},

		{cfg(laneUTX1, 4), cfg4TermDisable},
		{cfg(laneUTX2, 4), cfg4TermDisable},
		{cfg(laneDTX1, 4), cfg4TermDisable},
		{cfg(laneDTX2, 4), cfg4TermDisable},

		{cfg(laneURX1, 1), cfg1Default},
		{cfg(laneURX2, 1), cfg1Default},
		{cfg(laneDRX1, 1), cfg1Default},
		{cfg(laneDRX2, 1), cfg1Default},
	},
	AA: []RegWrite{
		{cfg(laneURX1, 3), cfg3_90OhmOut},
		{cfg(laneURX2, 3), cfg3_90OhmOut},
		{cfg(laneDRX1, 3), cfg3_90OhmOut},
		{cfg(laneDRX2, 3), cfg3_90OhmOut},

		{cfg(laneUTX1, 3), cfg3_90OhmIn},
		{cfg(laneUTX2, 3), cfg3_90OhmIn},
		{cfg(laneDTX1, 3), cfg3_90OhmIn},
		{cfg(laneDTX2, 3), cfg3_90OhmIn},
	},
	BA: []RegWrite{
		{cfg(laneURX1, 3), cfg3BA_90OhmOut},
		{cfg(laneURX2, 3), cfg3BA_90OhmOut},
		{cfg(laneDRX1, 3), cfg3BA_90OhmOut},
		{cfg(laneDRX2, 3), cfg3BA_90OhmOut},

		{cfg(laneUTX1, 3), cfg3BA_90OhmIn},
		{cfg(laneUTX2, 3), cfg3BA_90OhmIn},
		{cfg(laneDTX1, 3), cfg3BA_90OhmIn},
		{cfg(laneDTX2, 3), cfg3BA_90OhmIn},
	},
}

var TableDP = &Table{
	Name: "dp",
	Common: []RegWrite{
		{regAuxSnoopingCtrl, auxSnoopingDefault},

		{cfg(laneURX1, 2), cfg2Default},
		{cfg(laneURX2, 2), cfg2Default},
		{cfg(laneUTX1, 2), cfg2Default},
		{cfg(laneUTX2, 2), cfg2Default},

		{cfg(laneURX1, 0), cfg0Default},
		{cfg(laneURX2, 0), cfg0Default},
		{cfg(laneUTX1, 0), cfg0Default},
		{cfg(laneUTX2, 0), cfg0Default},

		{cfg(laneURX1, 4), cfg4TermDisable},
		{cfg(laneURX2, 4), cfg4TermDisable},
		{cfg(laneUTX1, 4), cfg4TermDisable},
		{cfg(laneUTX2, 4), cfg4TermDisable},
		{cfg(laneDRX1, 4), cfg4TermDisable},
		{cfg(laneDRX2, 4), cfg4TermDisable},
		{cfg(laneDTX1, 4), cfg4TermDisable},
		{cfg(laneDTX2, 4), cfg4TermDisable},

		{cfg(laneURX1, 1), cfg1Default},
		{cfg(laneURX2, 1), cfg1Default},
		{cfg(laneUTX1, 1), cfg1Default},
		{cfg(laneUTX2, 1), cfg1Default},
	},
	AA: []RegWrite{
		{cfg(laneURX1, 3), cfg3_100OhmIn},
		{cfg(laneURX2, 3), cfg3_100OhmIn},
		{cfg(laneUTX1, 3), cfg3_100OhmIn},
		{cfg(laneUTX2, 3), cfg3_100OhmIn},
		{cfg(laneDRX1, 3), cfg3_100OhmIn},
		{cfg(laneDRX2, 3), cfg3_100OhmIn},
		{cfg(laneDTX1, 3), cfg3_100OhmIn},
		{cfg(laneDTX2, 3), cfg3_100OhmIn},
	},
	BA: []RegWrite{
		{cfg(laneURX1, 3), cfg3BA_90OhmOut},
		{cfg(laneURX2, 3), cfg3BA_90OhmOut},
		{cfg(laneUTX1, 3), cfg3BA_90OhmOut},
		{cfg(laneUTX2, 3), cfg3BA_90OhmOut},
		{cfg(laneDRX1, 3), cfg3BA_90OhmIn},
		{cfg(laneDRX2, 3), cfg3BA_90OhmIn},
		{cfg(laneDTX1, 3), cfg3BA_90OhmIn},
		{cfg(laneDTX2, 3), cfg3BA_90OhmIn},

		{regAuxCfg1, auxCfg1Reply},
		{regAuxCfg0, auxCfg0Reply},
	},
}

var TableDock = &Table{
	Name: "dock",
	Common: []RegWrite{
		{regAuxSnoopingCtrl, auxSnoopingDefault},

		{cfg(laneURX1, 2), cfg2Default},
		{cfg(laneDRX1, 2), cfg2Default},
		{cfg(laneURX2, 2), cfg2Default},
		{cfg(laneUTX2, 2), cfg2Default},

		{cfg(laneURX1, 0), cfg0Default},
		{cfg(laneDRX1, 0), cfg0Default},
		{cfg(laneURX2, 0), cfg0Default},
		{cfg(laneUTX2, 0), cfg0Default},

		{cfg(laneURX1, 4), cfg4TermEnable},
		{cfg(laneDRX1, 4), cfg4TermEnable},

		{cfg(laneURX2, 4), cfg4TermDisable},
		{cfg(laneUTX2, 4), cfg4TermDisable},
		{cfg(laneUTX1, 4), cfg4TermDisable},
		{cfg(laneDTX1, 4), cfg4TermDisable},
		{cfg(laneDRX2, 4), cfg4TermDisable},
		{cfg(laneDTX2, 4), cfg4TermDisable},

		{cfg(laneURX1, 1), cfg1Default},
		{cfg(laneDRX1, 1), cfg1Default},
		{cfg(laneURX2, 1), cfg1Default},
		{cfg(laneUTX2, 1), cfg1Default},
	},
	AA: []RegWrite{
		{cfg(laneURX1, 3), cfg3_90OhmIn},
		{cfg(laneURX2, 3), cfg3_100OhmIn},
		{cfg(laneUTX1, 3), cfg3_90OhmIn},
		{cfg(laneUTX2, 3), cfg3_100OhmIn},
		{cfg(laneDRX1, 3), cfg3_90OhmIn},
		{cfg(laneDRX2, 3), cfg3_100OhmIn},
		{cfg(laneDTX1, 3), cfg3_90OhmIn},
		{cfg(laneDTX2, 3), cfg3_100OhmIn},
	},
	BA: []RegWrite{
		{cfg(laneURX1, 3), cfg3BA_90OhmOut},
		{cfg(laneURX2, 3), cfg3BA_90OhmOut},
		{cfg(laneUTX2, 3), cfg3BA_90OhmOut},
		{cfg(laneDRX1, 3), cfg3BA_90OhmOut},
		{cfg(laneUTX1, 3), cfg3BA_90OhmIn},
		{cfg(laneDRX2, 3), cfg3BA_90OhmIn},
		{cfg(laneDTX1, 3), cfg3BA_90OhmIn},
		{cfg(laneDTX2, 3), cfg3BA_90OhmIn},

		{regAuxCfg1, auxCfg1Reply},
		{regAuxCfg0, auxCfg0Reply},
	},
}

// TableDockFlipped mirrors TableDock across the two lane pairs.
var TableDockFlipped = &Table{
	Name: "dock_flip",
	Common: []RegWrite{
		{regAuxSnoopingCtrl, auxSnoopingDefault},

		{cfg(laneURX2, 2), cfg2Default},
		{cfg(laneDRX2, 2), cfg2Default},
		{cfg(laneURX1, 2), cfg2Default},
		{cfg(laneUTX1, 2), cfg2Default},

		{cfg(laneURX2, 0), cfg0Default},
		{cfg(laneDRX2, 0), cfg0Default},
		{cfg(laneURX1, 0), cfg0Default},
		{cfg(laneUTX1, 0), cfg0Default},

		{cfg(laneURX2, 4), cfg4TermEnable},
		{cfg(laneDRX2, 4), cfg4TermEnable},

		{cfg(laneURX1, 4), cfg4TermDisable},
		{cfg(laneUTX1, 4), cfg4TermDisable},
		{cfg(laneUTX2, 4), cfg4TermDisable},
		{cfg(laneDTX2, 4), cfg4TermDisable},
		{cfg(laneDTX1, 4), cfg4TermDisable},
		{cfg(laneDRX1, 4), cfg4TermDisable},

		{cfg(laneURX1, 1), cfg1Default},
		{cfg(laneUTX1, 1), cfg1Default},
		{cfg(laneURX2, 1), cfg1Default},
		{cfg(laneDRX2, 1), cfg1Default},
	},
	AA: []RegWrite{
		{cfg(laneURX1, 3), cfg3_100OhmIn},
		{cfg(laneURX2, 3), cfg3_90OhmIn},
		{cfg(laneUTX1, 3), cfg3_100OhmIn},
		{cfg(laneUTX2, 3), cfg3_90OhmIn},
		{cfg(laneDRX1, 3), cfg3_100OhmIn},
		{cfg(laneDRX2, 3), cfg3_90OhmIn},
		{cfg(laneDTX1, 3), cfg3_100OhmIn},
		{cfg(laneDTX2, 3), cfg3_90OhmIn},
	},
	BA: []RegWrite{
		{cfg(laneURX1, 3), cfg3BA_90OhmOut},
		{cfg(laneURX2, 3), cfg3BA_90OhmOut},
		{cfg(laneUTX1, 3), cfg3BA_90OhmOut},
		{cfg(laneDRX2, 3), cfg3BA_90OhmOut},
		{cfg(laneUTX2, 3), cfg3BA_90OhmIn},
		{cfg(laneDRX1, 3), cfg3BA_90OhmIn},
		{cfg(laneDTX1, 3), cfg3BA_90OhmIn},
		{cfg(laneDTX2, 3), cfg3BA_90OhmIn},

		{regAuxCfg1, auxCfg1Reply},
		{regAuxCfg0, auxCfg0Reply},
	},
}

// SelectTable picks the tuning table for a mode. mode must already have
// polarity stripped and safe mode collapsed. Modes other than USB, DP and
// dock have no table and return nil.
func SelectTable(mode usbmux.MuxState, flipped bool) *Table {
	switch mode {
	case usbmux.USBEnabled:
		return TableUSB
	case usbmux.DPEnabled:
		return TableDP
	case usbmux.Dock:
		if flipped {
			return TableDockFlipped
		}
		return TableDock
	}
	return nil
}

// ---- Per-lane overrides ----

// Pin names a tunable signal path.
type Pin uint8

const (
	PinUTX1 Pin = iota
	PinUTX2
	PinURX1
	PinURX2
	PinDRX1
	PinDRX2
	PinDTX1 // no EQ/FG control
	PinDTX2 // no EQ/FG control
)

var pinNames = [...]string{"utx1", "utx2", "urx1", "urx2", "drx1", "drx2", "dtx1", "dtx2"}

func (p Pin) String() string {
	if int(p) < len(pinNames) {
		return pinNames[p]
	}
	return "unknown"
}

func ParsePin(s string) (Pin, bool) {
	s = strings.ToLower(s)
	for i, n := range pinNames {
		if n == s {
			return Pin(i), true
		}
	}
	return 0, false
}

// lane returns the CFG bank for pins that accept EQ/FG overrides.
func (p Pin) lane() (byte, bool) {
	switch p {
	case PinUTX1:
		return laneUTX1, true
	case PinUTX2:
		return laneUTX2, true
	case PinURX1:
		return laneURX1, true
	case PinURX2:
		return laneURX2, true
	case PinDRX1:
		return laneDRX1, true
	case PinDRX2:
		return laneDRX2, true
	}
	return 0, false
}

// EQ is the 4-bit equalization code written to CFG0[7:4].
type EQ uint8

const (
	EQ2_2dB  EQ = 0x0
	EQ6_0dB  EQ = 0x5
	EQ8_4dB  EQ = 0x8
	EQ10_3dB EQ = 0xB
	EQ12_5dB EQ = 0xF

	EQMax = EQ12_5dB
)

// FG is the 2-bit flat gain code written to CFG2[3:2].
type FG uint8

const (
	FGNeg1_5dB FG = iota
	FG0_3dB
	FG1_2dB
	FG2_2dB

	FGMax = FG2_2dB
)
