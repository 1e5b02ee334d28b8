package xbarmux

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"typecmux-go/chipset"
	"typecmux-go/errcode"
	"typecmux-go/internal/halcore"
	"typecmux-go/internal/hooks"
	"typecmux-go/internal/logx"
	"typecmux-go/usbmux"
	"typecmux-go/x/mathx"
)

// Handle indexes an instance in its Family.
type Handle int

// Cable describes the attached cable for command metadata.
type Cable struct {
	Active  bool
	Retimer bool
	Speed   uint8 // link speed code passed through to the chip
}

// CableInfo supplies cable metadata per USB-C port.
type CableInfo interface {
	Cable(port int) (Cable, bool)
}

// Completion reports the chip's verdict on an issued command.
type Completion struct {
	Port   int
	Handle Handle
	State  usbmux.MuxState // confirmed state (unchanged on failure)
	Err    error           // errcode.Failed on a chip-reported failure
}

// InstanceConfig places one USB-C port on a chip.
type InstanceConfig struct {
	Port      int // USB-C port number
	Bus       drivers.I2C
	Addr      uint16
	ChipPort  uint8            // chip-local port, 0..3
	Fixed     *usbmux.MuxState // hold this state whenever idle
	CableMeta bool             // include cable metadata in commands
}

// PortRuntimeState is the driver-owned record for one instance.
type PortRuntimeState struct {
	XbarReady  bool
	InProgress bool
	Current    usbmux.MuxState
	Next       usbmux.MuxState
	Fixed      *usbmux.MuxState
}

// FamilyConfig configures a Family.
type FamilyConfig struct {
	Name   string
	IRQ    halcore.IRQPin // nil when the line is polled by the caller
	Power  chipset.Power
	Cable  CableInfo
	Notify func(Completion)

	// Rearm schedules HandleInterrupt again while the line stays asserted.
	// Nil installs a hooks.Deferred.
	Rearm      hooks.Scheduler
	RearmDelay time.Duration // default 25 ms

	WakeTimeout time.Duration // default 30 ms
	WakeRetry   time.Duration // default 5 ms
}

type instance struct {
	cfg  InstanceConfig
	chip *chip
	mux  *Mux
}

// chip is one bus address; several instances may share it.
type chip struct {
	bus   drivers.I2C
	addr  uint16
	insts []Handle
	w     [6]byte
	r     [mailboxLen]byte
}

// Family owns every instance behind one interrupt line. All state lives in
// an arena indexed by Handle and is guarded by mu.
type Family struct {
	cfg FamilyConfig
	log *slog.Logger

	mu     sync.Mutex
	insts  []instance
	states []PortRuntimeState
	chips  []*chip
}

func NewFamily(cfg FamilyConfig) *Family {
	if cfg.Name == "" {
		cfg.Name = "xbar"
	}
	if cfg.Power == nil {
		cfg.Power = chipset.AlwaysOn{}
	}
	if cfg.RearmDelay <= 0 {
		cfg.RearmDelay = 25 * time.Millisecond
	}
	if cfg.WakeTimeout <= 0 {
		cfg.WakeTimeout = 30 * time.Millisecond
	}
	if cfg.WakeRetry <= 0 {
		cfg.WakeRetry = 5 * time.Millisecond
	}
	cfg.WakeRetry = mathx.Clamp(cfg.WakeRetry, time.Millisecond, cfg.WakeTimeout)
	f := &Family{cfg: cfg, log: logx.For(logx.ComponentXbar).With("family", cfg.Name)}
	if f.cfg.Rearm == nil {
		f.cfg.Rearm = hooks.NewDeferred(f.HandleInterrupt)
	}
	return f
}

// Add registers an instance and returns its handle.
func (f *Family) Add(ic InstanceConfig) (Handle, error) {
	if ic.ChipPort >= maxPorts {
		return 0, errcode.Wrap(errcode.InvalidArgument, "add", ic.Port, nil)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var c *chip
	for _, cc := range f.chips {
		if cc.bus == ic.Bus && cc.addr == ic.Addr {
			c = cc
			break
		}
	}
	if c == nil {
		c = &chip{bus: ic.Bus, addr: ic.Addr}
		f.chips = append(f.chips, c)
	}
	h := Handle(len(f.insts))
	for _, other := range c.insts {
		if f.insts[other].cfg.ChipPort == ic.ChipPort {
			return 0, errcode.Wrap(errcode.InvalidArgument, "add", ic.Port, nil)
		}
	}
	c.insts = append(c.insts, h)
	in := instance{cfg: ic, chip: c, mux: &Mux{f: f, h: h}}
	f.insts = append(f.insts, in)
	st := PortRuntimeState{}
	if ic.Fixed != nil {
		v := *ic.Fixed
		st.Fixed = &v
	}
	f.states = append(f.states, st)
	return h, nil
}

// Mux returns the usbmux.Driver for h.
func (f *Family) Mux(h Handle) *Mux {
	f.mu.Lock()
	defer f.mu.Unlock()
	if int(h) < 0 || int(h) >= len(f.insts) {
		return nil
	}
	return f.insts[h].mux
}

// State returns a snapshot of the runtime record for h.
func (f *Family) State(h Handle) PortRuntimeState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[h]
}

// ---- bus helpers (f.mu held) ----

func (c *chip) read(reg byte, n int) ([]byte, error) {
	c.w[0] = reg
	if err := c.bus.Tx(c.addr, c.w[:1], c.r[:n]); err != nil {
		return nil, errcode.IO("read", err)
	}
	return c.r[:n], nil
}

func (c *chip) readByte(reg byte) (byte, error) {
	b, err := c.read(reg, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *chip) command(port, mode, flags, speed byte) error {
	c.w = [6]byte{regCommand, cmdLen, port, mode, flags, speed}
	return errcode.IO("command", c.bus.Tx(c.addr, c.w[:6], nil))
}

func (c *chip) modifyPortCtrl(set, clear byte) error {
	cur, err := c.readByte(regPortCtrl)
	if err != nil {
		return err
	}
	c.w[0], c.w[1] = regPortCtrl, (cur&^clear)|set
	return errcode.IO("write", c.bus.Tx(c.addr, c.w[:2], nil))
}

// ---- command path ----

func (f *Family) encode(in *instance, s usbmux.MuxState) (mode, flags, speed byte) {
	if s&usbmux.USBEnabled != 0 {
		mode |= modeUSB
	}
	if s&usbmux.DPEnabled != 0 {
		mode |= modeDP
	}
	if s&usbmux.TBTCompatEnabled != 0 {
		mode |= modeTBT
	}
	if s&usbmux.USB4Enabled != 0 {
		mode |= modeUSB4
	}
	if s.Flipped() {
		flags |= flagPolarity
	}
	if in.cfg.CableMeta && f.cfg.Cable != nil && s != usbmux.None {
		if cb, ok := f.cfg.Cable.Cable(in.cfg.Port); ok {
			if cb.Active {
				flags |= flagActiveCable
			}
			if cb.Retimer {
				flags |= flagRetimer
			}
			speed = cb.Speed
		}
	}
	return mode, flags, speed
}

// setLocked issues a command for h. f.mu must be held.
func (f *Family) setLocked(h Handle, s usbmux.MuxState) (usbmux.Ack, error) {
	in := &f.insts[h]
	st := &f.states[h]
	if !st.XbarReady || st.InProgress {
		return usbmux.AckNotRequired, errcode.Wrap(errcode.Busy, "set", in.cfg.Port, nil)
	}
	mode, flags, speed := f.encode(in, s)
	if err := in.chip.command(in.cfg.ChipPort, mode, flags, speed); err != nil {
		return usbmux.AckNotRequired, &errcode.E{C: errcode.IOError, Op: "set", Port: in.cfg.Port, Err: err}
	}
	st.InProgress = true
	st.Next = s
	return usbmux.AckRequired, nil
}

// ---- init ----

// initChip runs the wake poll against c and seeds XbarReady for every
// instance behind it.
// Reading INT_STATUS clears latched events, so any found are handled here
// rather than lost.
func (f *Family) initChip(ctx context.Context, c *chip) error {
	deadline := time.Now().Add(f.cfg.WakeTimeout)
	for {
		f.mu.Lock()
		v, err := c.readByte(regIntStatus)
		var done []Completion
		if err == nil {
			for _, h := range c.insts {
				f.states[h].XbarReady = v&intReadyLevel != 0
			}
			done = f.handleStatusLocked(c, v, done)
		}
		f.mu.Unlock()
		if err == nil {
			f.notify(done)
			return nil
		}
		if !time.Now().Before(deadline) {
			f.log.Warn("failed to wake chip", "addr", c.addr, "err", err)
			return errcode.Wrap(errcode.Timeout, "init", -1, err)
		}
		t := time.NewTimer(f.cfg.WakeRetry)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// ---- Mux: per-instance usbmux.Driver ----

// Mux is the driver view of one instance.
type Mux struct {
	f *Family
	h Handle
}

var (
	_ usbmux.Driver          = (*Mux)(nil)
	_ usbmux.Initializer     = (*Mux)(nil)
	_ usbmux.ChipsetResetter = (*Mux)(nil)
	_ usbmux.IdleSetter      = (*Mux)(nil)
	_ usbmux.LowPowerEnterer = (*Mux)(nil)
)

func (m *Mux) Handle() Handle { return m.h }

// Set issues a command and returns AckRequired; the outcome arrives via
// the family's Notify callback. Busy means retry later.
func (m *Mux) Set(s usbmux.MuxState) (usbmux.Ack, error) {
	s = s.CollapseSafe()
	if m.f.cfg.Power.IsHardOff() {
		if s == usbmux.None {
			return usbmux.AckNotRequired, nil
		}
		return usbmux.AckNotRequired, errcode.NotPowered
	}
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	return m.f.setLocked(m.h, s)
}

// Get returns the last confirmed state without bus traffic.
func (m *Mux) Get() (usbmux.MuxState, error) {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	return m.f.states[m.h].Current, nil
}

// Init wakes the chip and takes the port out of low power.
func (m *Mux) Init(ctx context.Context) error {
	if m.f.cfg.Power.IsHardOff() {
		return errcode.NotPowered
	}
	m.f.mu.Lock()
	in := &m.f.insts[m.h]
	c, bit := in.chip, lowPowerBit(in.cfg.ChipPort)
	m.f.mu.Unlock()
	if err := m.f.initChip(ctx, c); err != nil {
		return err
	}
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	if err := c.modifyPortCtrl(0, bit); err != nil {
		return err
	}
	m.f.fixedPassLocked()
	return nil
}

// ChipsetReset resets this instance's record only; sibling instances are
// reset through their own ports' chains.
func (m *Mux) ChipsetReset() error { return m.f.chipsetResetOne(m.h) }

// SetIdle flags the chip-local port idle in PORT_CTRL.
func (m *Mux) SetIdle(idle bool) error {
	if m.f.cfg.Power.IsHardOff() {
		return errcode.NotPowered
	}
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	in := &m.f.insts[m.h]
	bit := idleBit(in.cfg.ChipPort)
	if idle {
		return in.chip.modifyPortCtrl(bit, 0)
	}
	return in.chip.modifyPortCtrl(0, bit)
}

// EnterLowPower powers down the port's crossbar lanes. Init undoes it.
func (m *Mux) EnterLowPower() error {
	if m.f.cfg.Power.IsHardOff() {
		return nil
	}
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	in := &m.f.insts[m.h]
	return in.chip.modifyPortCtrl(lowPowerBit(in.cfg.ChipPort), 0)
}
