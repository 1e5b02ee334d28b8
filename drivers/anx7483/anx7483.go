package anx7483

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"typecmux-go/chipset"
	"typecmux-go/errcode"
	"typecmux-go/internal/logx"
	"typecmux-go/usbmux"
	"typecmux-go/x/mathx"
)

// Config for one ANX7483 instance.
type Config struct {
	Address uint16

	// Wake poll after power-on. Zero selects 30 ms / 5 ms.
	WakeTimeout time.Duration
	WakeRetry   time.Duration

	// DefaultTuning applies SetDefaultTuning after every successful Set.
	DefaultTuning bool
}

// Device is a synchronous usbmux.Driver. Set is complete on return.
type Device struct {
	bus   drivers.I2C
	addr  uint16
	power chipset.Power
	cfg   Config
	log   *slog.Logger

	mu sync.Mutex // guards the buffers and serialises RMW sequences
	w  [2]byte
	r  [1]byte
}

// New constructs a Device. A nil power is treated as always on.
func New(bus drivers.I2C, power chipset.Power, cfg Config) *Device {
	if cfg.Address == 0 {
		cfg.Address = AddressDefault
	}
	if cfg.WakeTimeout <= 0 {
		cfg.WakeTimeout = 30 * time.Millisecond
	}
	if cfg.WakeRetry <= 0 {
		cfg.WakeRetry = 5 * time.Millisecond
	}
	cfg.WakeRetry = mathx.Clamp(cfg.WakeRetry, time.Millisecond, cfg.WakeTimeout)
	if power == nil {
		power = chipset.AlwaysOn{}
	}
	return &Device{
		bus:   bus,
		addr:  cfg.Address,
		power: power,
		cfg:   cfg,
		log:   logx.For(logx.ComponentANX).With("addr", cfg.Address),
	}
}

var _ usbmux.Driver = (*Device)(nil)

// ---- register access (caller holds d.mu) ----

func (d *Device) read(reg byte) (byte, error) {
	d.w[0] = reg
	if err := d.bus.Tx(d.addr, d.w[:1], d.r[:1]); err != nil {
		return 0, errcode.IO("read", err)
	}
	return d.r[0], nil
}

func (d *Device) write(reg, val byte) error {
	d.w[0] = reg
	d.w[1] = val
	return errcode.IO("write", d.bus.Tx(d.addr, d.w[:2], nil))
}

func (d *Device) modifyBitmaskRegister(reg, set, clear byte) error {
	cur, err := d.read(reg)
	if err != nil {
		return err
	}
	return d.write(reg, (cur&^clear)|set)
}

func (d *Device) apply(writes []RegWrite) error {
	for _, w := range writes {
		if err := d.write(w.Reg, w.Val); err != nil {
			return err
		}
	}
	return nil
}

// ---- usbmux.Driver ----

// Init waits for the chip to answer on the bus after power-on and then
// hands the datapath to register control.
func (d *Device) Init(ctx context.Context) error {
	if d.power.IsHardOff() {
		return errcode.NotPowered
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	deadline := time.Now().Add(d.cfg.WakeTimeout)
	var (
		val byte
		err error
	)
	for {
		val, err = d.read(regAnalogStatusCtrl)
		if err == nil || !time.Now().Before(deadline) {
			break
		}
		t := time.NewTimer(d.cfg.WakeRetry)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	if err != nil {
		d.log.Warn("failed to wake mux", "err", err)
		return errcode.Wrap(errcode.Timeout, "init", -1, err)
	}
	return d.write(regAnalogStatusCtrl, val|ctrlRegEn)
}

// Set programs the mux. Safe mode is treated as None.
func (d *Device) Set(s usbmux.MuxState) (usbmux.Ack, error) {
	s = s.CollapseSafe()
	if d.power.IsHardOff() {
		if s == usbmux.None {
			return usbmux.AckNotRequired, nil
		}
		return usbmux.AckNotRequired, errcode.NotPowered
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.modifyBitmaskRegister(regLFPSTimer, lfpsTimerSlumberHi<<lfpsTimerShift, lfpsTimerMask); err != nil {
		return usbmux.AckNotRequired, err
	}
	ctrl := byte(ctrlRegEn)
	if s&usbmux.USBEnabled != 0 {
		ctrl |= ctrlUSBEn
	}
	if s&usbmux.DPEnabled != 0 {
		ctrl |= ctrlDPEn
	}
	if s.Flipped() {
		ctrl |= ctrlFlipEn
	}
	if err := d.write(regAnalogStatusCtrl, ctrl); err != nil {
		return usbmux.AckNotRequired, err
	}
	if d.cfg.DefaultTuning {
		if err := d.defaultTuningLocked(s); err != nil {
			return usbmux.AckNotRequired, err
		}
	}
	return usbmux.AckNotRequired, nil
}

// Get decodes the control register. An unpowered chip reads as None.
func (d *Device) Get() (usbmux.MuxState, error) {
	if d.power.IsHardOff() {
		return usbmux.None, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	reg, err := d.read(regAnalogStatusCtrl)
	if err != nil {
		return usbmux.None, err
	}
	var s usbmux.MuxState
	if reg&ctrlUSBEn != 0 {
		s |= usbmux.USBEnabled
	}
	if reg&ctrlDPEn != 0 {
		s |= usbmux.DPEnabled
	}
	if reg&ctrlFlipEn != 0 {
		s |= usbmux.PolarityInverted
	}
	return s, nil
}

// ---- tuning ----

// Revision reads CHIP_ID. Unknown IDs are treated as AA.
func (d *Device) Revision() (Revision, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.revisionLocked()
}

func (d *Device) revisionLocked() (Revision, error) {
	id, err := d.read(regChipID)
	if err != nil {
		return RevAA, err
	}
	if id == chipIDBA {
		return RevBA, nil
	}
	return RevAA, nil
}

// SetDefaultTuning writes the EQ enable bit and then the table for s.
// States without a table leave tuning untouched. Writes stop at the first
// error with no rollback.
func (d *Device) SetDefaultTuning(s usbmux.MuxState) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.defaultTuningLocked(s)
}

func (d *Device) defaultTuningLocked(s usbmux.MuxState) error {
	rev, err := d.revisionLocked()
	if err != nil {
		return err
	}
	flipped := s.Flipped()
	s = s.CollapseSafe() &^ usbmux.PolarityInverted

	if err := d.write(regEnableEQFlatSwing, eqFlatSwingEn); err != nil {
		return err
	}
	t := SelectTable(s, flipped)
	if t == nil {
		return nil
	}
	d.log.Debug("applying tuning", "table", t.Name, "rev", rev.String())
	return d.apply(t.Writes(rev))
}

// SetEQ overrides the equalization of one lane.
func (d *Device) SetEQ(pin Pin, eq EQ) error {
	lane, ok := pin.lane()
	if !ok || !mathx.Between(eq, 0, EQMax) {
		return errcode.Wrap(errcode.InvalidArgument, "set_eq", -1, nil)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.modifyBitmaskRegister(cfg(lane, 0), byte(eq)<<cfg0EQShift, cfg0EQMask)
}

// SetFG overrides the flat gain of one lane.
func (d *Device) SetFG(pin Pin, fg FG) error {
	lane, ok := pin.lane()
	if !ok || !mathx.Between(fg, 0, FGMax) {
		return errcode.Wrap(errcode.InvalidArgument, "set_fg", -1, nil)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.modifyBitmaskRegister(cfg(lane, 2), byte(fg)<<cfg2FGShift, cfg2FGMask)
}
