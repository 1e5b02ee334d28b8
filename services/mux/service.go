// Package mux is the port mux service: it builds mux chains from the
// board config, serves the per-port control verbs on the bus, publishes
// port state and completion events, and forwards host power transitions to
// the port manager.
package mux

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"typecmux-go/bus"
	"typecmux-go/chipset"
	"typecmux-go/errcode"
	"typecmux-go/internal/gpioirq"
	"typecmux-go/internal/halcore"
	"typecmux-go/internal/logx"
	"typecmux-go/services/mux/core"
	"typecmux-go/types"
	"typecmux-go/usbmux"
	"typecmux-go/x/timex"
)

// Options wires the service to a platform.
type Options struct {
	Buses halcore.I2CBusFactory
	Pins  halcore.PinFactory
	Power *chipset.Model // nil starts a model in On

	// AckTimeout bounds the pause after an ack-required mux before the
	// next mux in the chain is set. Zero uses usbmux.DefaultAckTimeout.
	AckTimeout time.Duration
}

// -----------------------------------------------------------------------------
// Entry point
// -----------------------------------------------------------------------------

func Run(ctx context.Context, conn *bus.Connection, opt Options) {
	s := newService(conn, opt)
	s.irq.Start(ctx)
	s.loop(ctx)
}

type portEntry struct {
	cfg       types.PortConfig
	alternate bool
	pending   bool
}

type service struct {
	conn  *bus.Connection
	opt   Options
	power *chipset.Model
	log   *slog.Logger
	irq   *gpioirq.Worker

	cables *cableTable
	acks   chan core.Completion
	trans  chan chipset.Transition

	mgr   *usbmux.Manager
	ports []portEntry
	stop  func()
}

func newService(conn *bus.Connection, opt Options) *service {
	s := &service{
		conn:   conn,
		opt:    opt,
		power:  opt.Power,
		log:    logx.For(logx.ComponentService),
		irq:    gpioirq.New(16),
		cables: newCableTable(),
		acks:   make(chan core.Completion, 32),
		trans:  make(chan chipset.Transition, 8),
	}
	if s.power == nil {
		s.power = chipset.NewModel(chipset.On)
	}
	s.power.OnTransition(func(t chipset.Transition) {
		select {
		case s.trans <- t:
		default:
			s.log.Warn("chipset transition dropped", "from", t.From.String(), "to", t.To.String())
		}
	})
	return s
}

// -----------------------------------------------------------------------------
// Main loop
// -----------------------------------------------------------------------------

func (s *service) loop(ctx context.Context) {
	cfgSub := s.conn.Subscribe(TopicConfig())
	ctrlSub := s.conn.Subscribe(ctrlWildcard())
	chipSub := s.conn.Subscribe(TopicChipset())
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(ctrlSub)
	defer s.conn.Unsubscribe(chipSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			if s.stop != nil {
				s.stop()
			}
			s.publishState("stopped", "context_cancelled", nil)
			return

		case msg := <-cfgSub.Channel():
			var cfg types.BoardConfig
			if err := decodeJSON(msg.Payload, &cfg); err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			if err := s.applyConfig(ctx, cfg); err != nil {
				s.log.Error("apply config failed", "err", err)
				s.publishState("error", "apply_config_failed", err)
				continue
			}
			s.publishState("ready", "configured", nil)

		case msg := <-ctrlSub.Channel():
			s.handleControl(ctx, msg)

		case msg := <-chipSub.Channel():
			s.handleChipset(msg)

		case t := <-s.trans:
			s.handleTransition(t)

		case c := <-s.acks:
			s.handleAck(ctx, c)
		}
	}
}

// notify is called from IRQ context (the gpioirq worker or a re-arm
// timer) and must not block.
func (s *service) notify(c core.Completion) {
	select {
	case s.acks <- c:
	default:
		s.log.Warn("ack dropped", "port", c.Port, "mux", c.Mux)
	}
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

func (s *service) applyConfig(ctx context.Context, cfg types.BoardConfig) error {
	// Completions release a chain walk paused on the same port before they
	// reach the service loop.
	gate := usbmux.NewAckGate(len(cfg.Ports))
	env := &core.Env{
		Buses:  s.opt.Buses,
		Pins:   s.opt.Pins,
		Power:  s.power,
		Cables: s.cables,
		Notify: func(c core.Completion) {
			gate.Signal(c.Port)
			s.notify(c)
		},
	}

	pcs := make([]usbmux.PortConfig, len(cfg.Ports))
	for n, pc := range cfg.Ports {
		if len(pc.Chips) == 0 {
			return errcode.Wrap(errcode.InvalidParams, "config", n, nil)
		}
		primary, err := s.buildChain(ctx, env, n, pc.Chips)
		if err != nil {
			return err
		}
		pcs[n].Primary = primary
		if len(pc.Alternate) > 0 {
			if pcs[n].Alternate, err = s.buildChain(ctx, env, n, pc.Alternate); err != nil {
				return err
			}
		}
	}

	// The new chains are complete; retire the old configuration.
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	for n := len(cfg.Ports); n < len(s.ports); n++ {
		s.pubRet(TopicPortInfo(n), nil)
		s.pubRet(TopicPortState(n), nil)
	}

	stop, err := env.Start(ctx, s.irq)
	if err != nil {
		return err
	}
	s.stop = stop
	s.mgr = usbmux.NewManager(pcs, usbmux.WithAckGate(gate, s.opt.AckTimeout))
	s.ports = make([]portEntry, len(cfg.Ports))
	for n, pc := range cfg.Ports {
		s.ports[n] = portEntry{cfg: pc}
		if err := s.mgr.Init(ctx, n); err != nil {
			s.log.Warn("port init failed", "port", n, "err", err)
		}
		s.publishInfo(n)
		s.publishPortState(ctx, n)
	}
	s.log.Info("configured", "ports", len(cfg.Ports))
	return nil
}

func (s *service) buildChain(ctx context.Context, env *core.Env, n int, chips []types.ChipConfig) (*usbmux.Chain, error) {
	descs := make([]*usbmux.Descriptor, 0, len(chips))
	for i, cc := range chips {
		b, ok := core.LookupBuilder(cc.Type)
		if !ok {
			s.log.Error("unknown chip type", "port", n, "type", cc.Type)
			return nil, errcode.Wrap(errcode.InvalidParams, "build", n, nil)
		}
		flags, unknown := usbmux.ParseFlags(cc.Flags)
		if len(unknown) > 0 {
			s.log.Error("unknown mux flags", "port", n, "flags", unknown)
			return nil, errcode.Wrap(errcode.InvalidParams, "build", n, nil)
		}
		drv, err := b.Build(core.BuildInput{Ctx: ctx, Port: n, Index: i, Chip: cc, Env: env})
		if err != nil {
			return nil, errcode.Wrap(errcode.Of(err), "build "+cc.Type, n, err)
		}
		descs = append(descs, &usbmux.Descriptor{
			Port:   n,
			Name:   chipName(cc),
			Bus:    cc.Bus,
			Addr:   cc.Addr,
			Flags:  flags,
			Driver: drv,
		})
	}
	return usbmux.NewChain(n, descs...), nil
}

func chipName(cc types.ChipConfig) string {
	if cc.Name != "" {
		return cc.Name
	}
	return cc.Type
}

// -----------------------------------------------------------------------------
// Publishing
// -----------------------------------------------------------------------------

func (s *service) publishState(level, status string, err error) {
	st := types.ServiceState{Level: level, Status: status, TS: timex.NowMs()}
	if err != nil {
		st.Error = err.Error()
	}
	s.pubRet(TopicState(), st)
}

func (s *service) publishInfo(n int) {
	pe := s.ports[n]
	chips := pe.cfg.Chips
	if pe.alternate {
		chips = pe.cfg.Alternate
	}
	info := types.PortInfo{
		Port:         n,
		HasAlternate: len(pe.cfg.Alternate) > 0,
		Alternate:    pe.alternate,
	}
	for _, cc := range chips {
		info.Chain = append(info.Chain, types.MuxInfo{
			Name:  chipName(cc),
			Type:  cc.Type,
			Bus:   cc.Bus,
			Addr:  cc.Addr,
			Flags: cc.Flags,
		})
	}
	s.pubRet(TopicPortInfo(n), info)
}

// portState reads the port through the manager. Errors leave the state as
// None and are returned for the caller to report.
func (s *service) portState(ctx context.Context, n int) (types.PortState, error) {
	st, err := s.mgr.Get(ctx, n)
	ps := types.PortState{
		Port:     n,
		State:    st.String(),
		Mode:     st.Mode().String(),
		Polarity: st.Flipped(),
		Bits:     uint8(st),
		LowPower: s.mgr.LowPower(n),
		Pending:  s.ports[n].pending,
		TS:       timex.NowMs(),
	}
	return ps, err
}

func (s *service) publishPortState(ctx context.Context, n int) *types.PortState {
	ps, err := s.portState(ctx, n)
	if err != nil {
		s.log.Debug("port state read failed", "port", n, "err", err)
		return nil
	}
	s.pubRet(TopicPortState(n), ps)
	return &ps
}

func (s *service) pubRet(t bus.Topic, p any) {
	s.conn.Publish(s.conn.NewMessage(t, p, true))
}

// -----------------------------------------------------------------------------
// Cable metadata
// -----------------------------------------------------------------------------

// cableTable is read from IRQ context by the command drivers and written
// by the service loop.
type cableTable struct {
	mu sync.RWMutex
	m  map[int]types.CableRequest
}

func newCableTable() *cableTable { return &cableTable{m: map[int]types.CableRequest{}} }

func (c *cableTable) Cable(port int) (types.CableRequest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[port]
	return v, ok
}

func (c *cableTable) set(port int, r types.CableRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r.Clear {
		delete(c.m, port)
		return
	}
	c.m[port] = r
}
