package emul

// ANX7483 register addresses as seen on the wire.
const (
	ANXRegLFPSTimer        = 0x00
	ANXRegAnalogStatusCtrl = 0x07
	ANXRegEnableEQ         = 0x1F
	ANXRegChipID           = 0x75

	ANXChipIDAA = 0x0A
	ANXChipIDBA = 0x0B
)

// NewANX7483 returns a regmap loaded with ANX7483 reset values for the
// given CHIP_ID.
func NewANX7483(chipID byte) *Regmap {
	m := NewRegmap()
	m.Default(ANXRegLFPSTimer, 0x11, 0x00)
	m.Default(ANXRegAnalogStatusCtrl, 0x00, 0xE8)
	m.Default(ANXRegEnableEQ, 0x00, 0xFE)
	m.Default(ANXRegChipID, chipID, 0x00)
	return m
}
