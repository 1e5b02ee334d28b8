package anx7483

import (
	"context"
	"testing"
	"time"

	"typecmux-go/chipset"
	"typecmux-go/emul"
	"typecmux-go/errcode"
	"typecmux-go/usbmux"
)

func newTestDevice(t *testing.T, chipID byte, power chipset.Power) (*Device, *emul.Regmap, *emul.Bus) {
	t.Helper()
	bus := emul.NewBus()
	rm := emul.NewANX7483(chipID)
	bus.Attach(AddressDefault, rm)
	d := New(bus, power, Config{WakeRetry: time.Millisecond, WakeTimeout: 10 * time.Millisecond})
	return d, rm, bus
}

func TestInitWaitsForWake(t *testing.T) {
	d, rm, _ := newTestDevice(t, emul.ANXChipIDAA, nil)
	rm.Sleep(3)

	if err := d.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if rm.Reg(regAnalogStatusCtrl)&ctrlRegEn == 0 {
		t.Fatal("register control not enabled")
	}
}

func TestInitTimeout(t *testing.T) {
	d, rm, _ := newTestDevice(t, emul.ANXChipIDAA, nil)
	rm.Sleep(1 << 20)

	err := d.Init(context.Background())
	if !errcode.Is(err, errcode.Timeout) {
		t.Fatalf("got %v, want timeout", err)
	}
}

func TestInitNotPowered(t *testing.T) {
	d, _, bus := newTestDevice(t, emul.ANXChipIDAA, chipset.NewModel(chipset.HardOff))
	if err := d.Init(context.Background()); !errcode.Is(err, errcode.NotPowered) {
		t.Fatalf("got %v", err)
	}
	if len(bus.Log()) != 0 {
		t.Fatal("no bus traffic while hard-off")
	}
}

func TestSetProgramsControl(t *testing.T) {
	d, rm, _ := newTestDevice(t, emul.ANXChipIDAA, nil)

	ack, err := d.Set(usbmux.Dock | usbmux.PolarityInverted)
	if err != nil || ack != usbmux.AckNotRequired {
		t.Fatalf("Set = %v, %v", ack, err)
	}
	want := byte(ctrlRegEn | ctrlUSBEn | ctrlDPEn | ctrlFlipEn)
	if got := rm.Reg(regAnalogStatusCtrl); got != want {
		t.Fatalf("ctrl = %#x, want %#x", got, want)
	}
	// Upper nibble replaced, lower nibble preserved from reset value 0x11.
	if got := rm.Reg(regLFPSTimer); got != 0x31 {
		t.Fatalf("lfps = %#x", got)
	}
	s, err := d.Get()
	if err != nil || s != usbmux.Dock|usbmux.PolarityInverted {
		t.Fatalf("Get = %v, %v", s, err)
	}
}

func TestSetIdempotent(t *testing.T) {
	d, rm, _ := newTestDevice(t, emul.ANXChipIDAA, nil)
	if _, err := d.Set(usbmux.USBEnabled); err != nil {
		t.Fatal(err)
	}
	ctrl, lfps := rm.Reg(regAnalogStatusCtrl), rm.Reg(regLFPSTimer)
	if _, err := d.Set(usbmux.USBEnabled); err != nil {
		t.Fatal(err)
	}
	if rm.Reg(regAnalogStatusCtrl) != ctrl || rm.Reg(regLFPSTimer) != lfps {
		t.Fatal("second Set changed register contents")
	}
}

func TestSafeModeIsNone(t *testing.T) {
	for _, s := range []usbmux.MuxState{
		usbmux.SafeMode,
		usbmux.SafeMode | usbmux.USBEnabled,
		usbmux.SafeMode | usbmux.Dock | usbmux.PolarityInverted,
	} {
		d, rm, _ := newTestDevice(t, emul.ANXChipIDAA, nil)
		if _, err := d.Set(s); err != nil {
			t.Fatal(err)
		}
		if got := rm.Reg(regAnalogStatusCtrl); got != ctrlRegEn {
			t.Fatalf("%v: ctrl = %#x, want none", s, got)
		}
	}
}

func TestPowerGating(t *testing.T) {
	power := chipset.NewModel(chipset.HardOff)
	d, _, bus := newTestDevice(t, emul.ANXChipIDAA, power)

	if _, err := d.Set(usbmux.USBEnabled); !errcode.Is(err, errcode.NotPowered) {
		t.Fatalf("got %v, want not_powered", err)
	}
	if _, err := d.Set(usbmux.None); err != nil {
		t.Fatalf("None while hard-off should succeed: %v", err)
	}
	if s, err := d.Get(); err != nil || s != usbmux.None {
		t.Fatalf("Get while hard-off = %v, %v", s, err)
	}
	if len(bus.Log()) != 0 {
		t.Fatalf("bus touched while hard-off: %v", bus.Log())
	}
}

func TestSetIOErrorSurfaces(t *testing.T) {
	d, rm, _ := newTestDevice(t, emul.ANXChipIDAA, nil)
	rm.FailWrites(true)
	if _, err := d.Set(usbmux.DPEnabled); !errcode.Is(err, errcode.IOError) {
		t.Fatalf("got %v, want io_error", err)
	}
}

func expectWrites(t *testing.T, got []emul.RegWrite, want []RegWrite) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d writes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Reg != want[i].Reg || got[i].Val != want[i].Val {
			t.Fatalf("write %d = %#x:%#x, want %#x:%#x", i, got[i].Reg, got[i].Val, want[i].Reg, want[i].Val)
		}
	}
}

func TestDefaultTuningUSB(t *testing.T) {
	d, rm, _ := newTestDevice(t, emul.ANXChipIDAA, nil)
	if err := d.SetDefaultTuning(usbmux.USBEnabled); err != nil {
		t.Fatal(err)
	}
	want := append([]RegWrite{{regEnableEQFlatSwing, eqFlatSwingEn}}, TableUSB.Writes(RevAA)...)
	expectWrites(t, rm.WriteLog(), want)
	if len(want) != 1+20+8 {
		t.Fatalf("usb table has %d entries", len(want))
	}
}

func TestDefaultTuningRevisionBA(t *testing.T) {
	d, rm, _ := newTestDevice(t, emul.ANXChipIDBA, nil)
	if rev, err := d.Revision(); err != nil || rev != RevBA {
		t.Fatalf("revision %v, %v", rev, err)
	}
	if err := d.SetDefaultTuning(usbmux.DPEnabled | usbmux.PolarityInverted); err != nil {
		t.Fatal(err)
	}
	want := append([]RegWrite{{regEnableEQFlatSwing, eqFlatSwingEn}}, TableDP.Writes(RevBA)...)
	expectWrites(t, rm.WriteLog(), want)
}

func TestDefaultTuningDockFlipped(t *testing.T) {
	d, rm, _ := newTestDevice(t, emul.ANXChipIDAA, nil)
	if err := d.SetDefaultTuning(usbmux.Dock | usbmux.PolarityInverted); err != nil {
		t.Fatal(err)
	}
	flipped := rm.WriteLog()
	expectWrites(t, flipped, append([]RegWrite{{regEnableEQFlatSwing, eqFlatSwingEn}}, TableDockFlipped.Writes(RevAA)...))

	rm.ClearLog()
	if err := d.SetDefaultTuning(usbmux.Dock); err != nil {
		t.Fatal(err)
	}
	expectWrites(t, rm.WriteLog(), append([]RegWrite{{regEnableEQFlatSwing, eqFlatSwingEn}}, TableDock.Writes(RevAA)...))
}

func TestDefaultTuningOtherModesNoop(t *testing.T) {
	for _, s := range []usbmux.MuxState{usbmux.None, usbmux.USB4Enabled, usbmux.TBTCompatEnabled | usbmux.USBEnabled, usbmux.SafeMode | usbmux.Dock} {
		d, rm, _ := newTestDevice(t, emul.ANXChipIDAA, nil)
		if err := d.SetDefaultTuning(s); err != nil {
			t.Fatal(err)
		}
		expectWrites(t, rm.WriteLog(), []RegWrite{{regEnableEQFlatSwing, eqFlatSwingEn}})
	}
}

func TestSelectTable(t *testing.T) {
	if SelectTable(usbmux.Dock, true) == SelectTable(usbmux.Dock, false) {
		t.Fatal("dock tables must differ by polarity")
	}
	if SelectTable(usbmux.USBEnabled, true) != TableUSB || SelectTable(usbmux.DPEnabled, false) != TableDP {
		t.Fatal("usb/dp tables")
	}
	if SelectTable(usbmux.USB4Enabled, false) != nil {
		t.Fatal("usb4 has no table")
	}
}

func TestSetDefaultTuningOnSet(t *testing.T) {
	bus := emul.NewBus()
	rm := emul.NewANX7483(emul.ANXChipIDAA)
	bus.Attach(AddressDefault, rm)
	d := New(bus, nil, Config{DefaultTuning: true})

	if _, err := d.Set(usbmux.USBEnabled); err != nil {
		t.Fatal(err)
	}
	if rm.Reg(regEnableEQFlatSwing) != eqFlatSwingEn {
		t.Fatal("tuning not applied on set")
	}
	if rm.Reg(cfg(laneURX1, 4)) != cfg4TermEnable {
		t.Fatal("usb table not applied")
	}
}

func TestSetEQAndFG(t *testing.T) {
	d, rm, _ := newTestDevice(t, emul.ANXChipIDAA, nil)
	rm.SetReg(cfg(laneUTX2, 0), 0x0A)
	rm.SetReg(cfg(laneDRX1, 2), 0xF3)

	if err := d.SetEQ(PinUTX2, EQ12_5dB); err != nil {
		t.Fatal(err)
	}
	if got := rm.Reg(cfg(laneUTX2, 0)); got != 0xFA {
		t.Fatalf("cfg0 = %#x", got)
	}
	if err := d.SetFG(PinDRX1, FG1_2dB); err != nil {
		t.Fatal(err)
	}
	if got := rm.Reg(cfg(laneDRX1, 2)); got != 0xF3&^cfg2FGMask|byte(FG1_2dB)<<cfg2FGShift {
		t.Fatalf("cfg2 = %#x", got)
	}

	for _, err := range []error{
		d.SetEQ(PinDTX1, EQ2_2dB),
		d.SetFG(Pin(0xFF), FG0_3dB),
		d.SetEQ(PinURX1, EQ(0x10)),
		d.SetFG(PinURX1, FG(4)),
	} {
		if !errcode.Is(err, errcode.InvalidArgument) {
			t.Fatalf("got %v, want invalid_argument", err)
		}
	}
}

func TestParsePin(t *testing.T) {
	p, ok := ParsePin("DRX2")
	if !ok || p != PinDRX2 || p.String() != "drx2" {
		t.Fatal("drx2")
	}
	if _, ok := ParsePin("aux"); ok {
		t.Fatal("aux is not a pin")
	}
}
