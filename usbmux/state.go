// Package usbmux holds the mux state vocabulary, the driver contract that
// every USB-C mux/retimer implements, and the per-port chain and manager
// built on top of it.
package usbmux

import "strings"

// MuxState is a set of routing flags for one USB-C port. Bit values match
// the EC host command ABI.
type MuxState uint8

const (
	None             MuxState = 0
	USBEnabled       MuxState = 1 << 0
	DPEnabled        MuxState = 1 << 1
	PolarityInverted MuxState = 1 << 2
	HPDIRQ           MuxState = 1 << 3
	HPDLevel         MuxState = 1 << 4
	SafeMode         MuxState = 1 << 5
	TBTCompatEnabled MuxState = 1 << 6
	USB4Enabled      MuxState = 1 << 7

	Dock = USBEnabled | DPEnabled
)

// modeBits are the bits that select a connection mode.
const modeBits = USBEnabled | DPEnabled | SafeMode | TBTCompatEnabled | USB4Enabled

func (s MuxState) Has(f MuxState) bool { return s&f == f }

// Mode returns the connection mode with polarity and HPD bits removed.
func (s MuxState) Mode() MuxState { return s & modeBits }

func (s MuxState) Flipped() bool { return s&PolarityInverted != 0 }

// CollapseSafe maps any state carrying SafeMode to None.
func (s MuxState) CollapseSafe() MuxState {
	if s&SafeMode != 0 {
		return None
	}
	return s
}

// WithPolarity sets or clears PolarityInverted.
func (s MuxState) WithPolarity(inverted bool) MuxState {
	if inverted {
		return s | PolarityInverted
	}
	return s &^ PolarityInverted
}

var flagNames = [...]struct {
	f    MuxState
	name string
}{
	{USBEnabled, "usb"},
	{DPEnabled, "dp"},
	{PolarityInverted, "flip"},
	{HPDIRQ, "hpd_irq"},
	{HPDLevel, "hpd_lvl"},
	{SafeMode, "safe"},
	{TBTCompatEnabled, "tbt"},
	{USB4Enabled, "usb4"},
}

// String renders the flags as "usb|dp|flip", or "none".
func (s MuxState) String() string {
	if s == None {
		return "none"
	}
	var parts []string
	for _, fn := range flagNames {
		if s&fn.f != 0 {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseMode maps a mode name to its state. Polarity is not a mode.
func ParseMode(name string) (MuxState, bool) {
	switch strings.ToLower(name) {
	case "none", "":
		return None, true
	case "usb":
		return USBEnabled, true
	case "dp":
		return DPEnabled, true
	case "dock":
		return Dock, true
	case "safe":
		return SafeMode, true
	case "tbt":
		return TBTCompatEnabled, true
	case "usb4":
		return USB4Enabled, true
	}
	return None, false
}

// ParseState accepts either a mode name or a '|' separated flag list as
// produced by String.
func ParseState(s string) (MuxState, bool) {
	if m, ok := ParseMode(s); ok {
		return m, true
	}
	var out MuxState
	for _, part := range strings.Split(s, "|") {
		found := false
		for _, fn := range flagNames {
			if fn.name == part {
				out |= fn.f
				found = true
				break
			}
		}
		if !found {
			return None, false
		}
	}
	return out, true
}
