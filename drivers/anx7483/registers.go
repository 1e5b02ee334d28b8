// Package anx7483 drives the ANX7483 linear redriver: mux control over the
// analog status/control register plus table-driven EQ, flat-gain and
// termination tuning.
package anx7483

const (
	// 7-bit I2C address with the ADDR strap low.
	AddressDefault = 0x3E

	regLFPSTimer         = 0x00
	regAnalogStatusCtrl  = 0x07
	regAuxSnoopingCtrl   = 0x13
	regEnableEQFlatSwing = 0x1F
	regChipID            = 0x75
	regAuxCfg0           = 0x76
	regAuxCfg1           = 0x77

	// LFPS_TIMER
	lfpsTimerMask      = 0xF0
	lfpsTimerShift     = 4
	lfpsTimerSlumberHi = 0x3 // delays USB SLUMBER entry

	// ANALOG_STATUS_CTRL
	ctrlUSBEn  = 1 << 0
	ctrlDPEn   = 1 << 1
	ctrlFlipEn = 1 << 2
	ctrlRegEn  = 1 << 4 // register control of the datapath

	// ENABLE_EQ_FLAT_SWING
	eqFlatSwingEn = 1 << 0

	// CHIP_ID revisions
	chipIDAA = 0x0A
	chipIDBA = 0x0B
)

// Per-lane port configuration banks. Each lane has CFG0..CFG4 at base+n.
const (
	laneURX1 = 0x20
	laneURX2 = 0x28
	laneUTX1 = 0x30
	laneUTX2 = 0x38
	laneDRX1 = 0x40
	laneDRX2 = 0x48
	laneDTX1 = 0x50
	laneDTX2 = 0x58
)

func cfg(lane, n byte) byte { return lane + n }

const (
	// CFG0: EQ in bits 7:4
	cfg0EQMask  = 0xF0
	cfg0EQShift = 4
	cfg0Default = 0x95

	cfg1Default = 0x24

	// CFG2: flat gain in bits 3:2
	cfg2FGMask  = 0x0C
	cfg2FGShift = 2
	cfg2Default = 0x46

	// CFG3 termination, AA silicon
	cfg3_90OhmOut = 0x02
	cfg3_90OhmIn  = 0x04
	cfg3_100OhmIn = 0x0C

	// CFG3 termination, BA silicon
	cfg3BA_90OhmOut = 0x82
	cfg3BA_90OhmIn  = 0x86

	cfg4TermEnable  = 0x23
	cfg4TermDisable = 0x22

	auxSnoopingDefault = 0x13
	auxCfg0Reply       = 0x0E
	auxCfg1Reply       = 0x22
)
