package usbmux

import "strings"

// Flags are per-instance capability bits.
type Flags uint8

const (
	NotTCPC          Flags = 1 << iota // not a Type-C port controller
	SetWithoutFlip                     // polarity handled elsewhere; never flip on set
	ResetsInG3                         // loses configuration in hard-off
	FlagPolarityInv                    // lanes physically swapped on the board
	CanIdle                            // supports idle mode in suspend
)

var flagKeys = map[string]Flags{
	"not_tcpc":          NotTCPC,
	"set_without_flip":  SetWithoutFlip,
	"resets_in_g3":      ResetsInG3,
	"polarity_inverted": FlagPolarityInv,
	"can_idle":          CanIdle,
}

// ParseFlags maps config flag names to Flags; unknown names are returned.
func ParseFlags(names []string) (Flags, []string) {
	var f Flags
	var unknown []string
	for _, n := range names {
		if v, ok := flagKeys[strings.ToLower(n)]; ok {
			f |= v
		} else {
			unknown = append(unknown, n)
		}
	}
	return f, unknown
}

// Descriptor is the immutable description of one mux instance.
type Descriptor struct {
	Port   int
	Name   string // chip type, for diagnostics
	Bus    string
	Addr   uint16
	Flags  Flags
	Driver Driver

	// Optional board hooks run after the driver's own Init and Set.
	BoardInit func(d *Descriptor) error
	BoardSet  func(d *Descriptor, s MuxState) error
}

// transform applies the descriptor's flag rules to a requested state.
func (d *Descriptor) transform(s MuxState) MuxState {
	if d.Flags&SetWithoutFlip != 0 {
		s &^= PolarityInverted
	}
	if d.Flags&FlagPolarityInv != 0 && s != None {
		s ^= PolarityInverted
	}
	return s
}
