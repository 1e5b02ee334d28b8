package usbmux

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"typecmux-go/errcode"
	"typecmux-go/internal/logx"
)

// PortConfig is the static topology of one port.
type PortConfig struct {
	Primary   *Chain
	Alternate *Chain // optional second population selected at runtime
}

type port struct {
	mu          sync.Mutex
	active      atomic.Pointer[Chain]
	alternate   *Chain
	initialized bool
	lowPower    bool
}

// Manager serialises mux operations per port and tracks init and low-power
// bookkeeping. Ports are numbered by their index in the config slice.
type Manager struct {
	ports      []*port
	log        *slog.Logger
	acks       *AckGate
	ackTimeout time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithAckGate makes chain walks pause after a mux that asks for an ack
// until g is signalled for the port or timeout passes. A non-positive
// timeout uses DefaultAckTimeout.
func WithAckGate(g *AckGate, timeout time.Duration) Option {
	return func(m *Manager) {
		if timeout <= 0 {
			timeout = DefaultAckTimeout
		}
		m.acks, m.ackTimeout = g, timeout
	}
}

func NewManager(cfg []PortConfig, opts ...Option) *Manager {
	m := &Manager{log: logx.For(logx.ComponentMux)}
	for _, o := range opts {
		o(m)
	}
	for i, pc := range cfg {
		p := &port{alternate: pc.Alternate}
		primary := pc.Primary
		if primary == nil {
			primary = NewChain(i)
		}
		p.active.Store(primary)
		m.ports = append(m.ports, p)
	}
	return m
}

func (m *Manager) Ports() int { return len(m.ports) }

func (m *Manager) port(op string, n int) (*port, error) {
	if n < 0 || n >= len(m.ports) {
		return nil, errcode.Wrap(errcode.InvalidArgument, op, n, nil)
	}
	return m.ports[n], nil
}

// Chain returns the active chain for a port, or nil.
func (m *Manager) Chain(n int) *Chain {
	p, err := m.port("chain", n)
	if err != nil {
		return nil
	}
	return p.active.Load()
}

// Init runs the chain's init hooks. A chain that reports NotPowered is
// parked in low power and re-initialised on the next non-None Set.
func (m *Manager) Init(ctx context.Context, n int) error {
	p, err := m.port("init", n)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return m.initLocked(ctx, n, p)
}

func (m *Manager) initLocked(ctx context.Context, n int, p *port) error {
	err := p.active.Load().Init(ctx)
	switch {
	case err == nil:
		p.initialized, p.lowPower = true, false
	case errcode.Is(err, errcode.NotPowered):
		p.initialized, p.lowPower = true, true
		m.log.Debug("init deferred, host unpowered", "port", n)
		return nil
	default:
		p.initialized = false
		m.log.Warn("mux init failed", "port", n, "err", err)
	}
	return err
}

// Set drives the port to mode with the given connector polarity.
func (m *Manager) Set(ctx context.Context, n int, mode MuxState, polarity bool) (Ack, error) {
	p, err := m.port("set", n)
	if err != nil {
		return AckNotRequired, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return m.setLocked(ctx, n, p, mode, polarity, -1)
}

// SetSingle is Set for the mux at index in the active chain only.
func (m *Manager) SetSingle(ctx context.Context, n, index int, mode MuxState, polarity bool) (Ack, error) {
	p, err := m.port("set_single", n)
	if err != nil {
		return AckNotRequired, err
	}
	if index < 0 || index >= len(p.active.Load().Muxes) {
		return AckNotRequired, errcode.Wrap(errcode.InvalidArgument, "set_single", n, nil)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return m.setLocked(ctx, n, p, mode, polarity, index)
}

// pause returns the hook a chain walk runs after an ack-required mux.
func (m *Manager) pause(ctx context.Context, n int) func() {
	if m.acks == nil {
		return nil
	}
	m.acks.drain(n)
	return func() {
		if !m.acks.wait(ctx, n, m.ackTimeout) {
			m.log.Debug("mux ack not seen, continuing", "port", n, "timeout", m.ackTimeout)
		}
	}
}

func (m *Manager) setLocked(ctx context.Context, n int, p *port, mode MuxState, polarity bool, index int) (Ack, error) {
	if !p.initialized {
		if err := m.initLocked(ctx, n, p); err != nil {
			return AckNotRequired, err
		}
	}
	mode = mode.CollapseSafe() &^ PolarityInverted
	if mode == None && p.lowPower {
		return AckNotRequired, nil
	}
	if err := m.exitLowPowerLocked(ctx, n, p, "set"); err != nil {
		return AckNotRequired, err
	}
	s := mode
	if mode != None {
		s = mode.WithPolarity(polarity)
	}
	chain := p.active.Load()
	ack, err := chain.set(s, index, m.pause(ctx, n))
	if err != nil {
		if !errcode.Is(err, errcode.Busy) {
			m.log.Warn("mux set failed", "port", n, "state", s.String(), "err", err)
		}
		return ack, err
	}
	if s == None && chain.SupportsLowPower() {
		if err := chain.EnterLowPower(); err != nil {
			m.log.Warn("enter low power failed", "port", n, "err", err)
			return ack, err
		}
		p.lowPower = true
	}
	return ack, nil
}

// exitLowPowerLocked re-initialises a port parked in low power.
func (m *Manager) exitLowPowerLocked(ctx context.Context, n int, p *port, op string) error {
	if !p.lowPower {
		return nil
	}
	if err := m.initLocked(ctx, n, p); err != nil {
		return err
	}
	if p.lowPower {
		return errcode.Wrap(errcode.NotPowered, op, n, nil)
	}
	return nil
}

// HPDUpdate forwards hot-plug-detect state (HPDLevel, HPDIRQ) through the
// port's chain, in sequence with sets.
func (m *Manager) HPDUpdate(ctx context.Context, n int, hpd MuxState) (Ack, error) {
	p, err := m.port("hpd_update", n)
	if err != nil {
		return AckNotRequired, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		if err := m.initLocked(ctx, n, p); err != nil {
			return AckNotRequired, err
		}
	}
	if err := m.exitLowPowerLocked(ctx, n, p, "hpd_update"); err != nil {
		return AckNotRequired, err
	}
	ack, err := p.active.Load().hpdUpdate(hpd, m.pause(ctx, n))
	if err != nil && !errcode.Is(err, errcode.Busy) {
		m.log.Warn("hpd update failed", "port", n, "hpd", hpd.String(), "err", err)
	}
	return ack, err
}

// Get returns the root mux state; a port in low power reads as None.
func (m *Manager) Get(ctx context.Context, n int) (MuxState, error) {
	p, err := m.port("get", n)
	if err != nil {
		return None, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return m.getLocked(ctx, n, p)
}

func (m *Manager) getLocked(ctx context.Context, n int, p *port) (MuxState, error) {
	if !p.initialized {
		if err := m.initLocked(ctx, n, p); err != nil {
			return None, err
		}
	}
	if p.lowPower {
		return None, nil
	}
	return p.active.Load().Get()
}

// Flip inverts the polarity of the current state.
func (m *Manager) Flip(ctx context.Context, n int) (Ack, error) {
	p, err := m.port("flip", n)
	if err != nil {
		return AckNotRequired, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := m.getLocked(ctx, n, p)
	if err != nil {
		return AckNotRequired, err
	}
	return m.setLocked(ctx, n, p, s.Mode(), !s.Flipped(), -1)
}

// EnableAlternate swaps in the port's alternate chain. The port is
// re-initialised on its next operation.
func (m *Manager) EnableAlternate(n int) error {
	p, err := m.port("enable_alternate", n)
	if err != nil {
		return err
	}
	if p.alternate == nil {
		return errcode.Wrap(errcode.Unsupported, "enable_alternate", n, nil)
	}
	p.mu.Lock()
	p.active.Store(p.alternate)
	p.initialized, p.lowPower = false, false
	p.mu.Unlock()
	m.log.Info("alternate mux chain enabled", "port", n, "chain", p.alternate.Names())
	return nil
}

// LowPower reports whether the port is parked in low power.
func (m *Manager) LowPower(n int) bool {
	p, err := m.port("low_power", n)
	if err != nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lowPower
}

func (m *Manager) eachPort(fn func(n int, p *port) error) error {
	var errs []error
	for n, p := range m.ports {
		p.mu.Lock()
		err := fn(n, p)
		p.mu.Unlock()
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ChipsetReset forwards a host reset to every initialised port.
func (m *Manager) ChipsetReset() error {
	return m.eachPort(func(n int, p *port) error {
		if !p.initialized {
			return nil
		}
		return p.active.Load().ChipsetReset()
	})
}

// ChipsetSuspend puts idle-capable muxes into idle.
func (m *Manager) ChipsetSuspend() error {
	return m.eachPort(func(n int, p *port) error {
		if !p.initialized || p.lowPower {
			return nil
		}
		return p.active.Load().SetIdle(true)
	})
}

func (m *Manager) ChipsetResume() error {
	return m.eachPort(func(n int, p *port) error {
		if !p.initialized || p.lowPower {
			return nil
		}
		return p.active.Load().SetIdle(false)
	})
}

// ChipsetHardOff forgets init state for ports whose muxes lose power in
// G3, so they are re-initialised on the way back up.
func (m *Manager) ChipsetHardOff() error {
	return m.eachPort(func(n int, p *port) error {
		if p.active.Load().HasFlag(ResetsInG3) {
			p.initialized, p.lowPower = false, false
		}
		return nil
	})
}
