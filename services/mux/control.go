package mux

import (
	"context"

	"typecmux-go/bus"
	"typecmux-go/chipset"
	"typecmux-go/errcode"
	"typecmux-go/services/mux/core"
	"typecmux-go/types"
	"typecmux-go/usbmux"
	"typecmux-go/x/timex"
)

// Optional driver surfaces reached through the tune verbs.
type (
	defaultTuner interface {
		SetDefaultTuning(s usbmux.MuxState) error
	}
	laneTuner interface {
		TuneEQ(pin string, v uint8) error
		TuneFG(pin string, v uint8) error
	}
)

// -----------------------------------------------------------------------------
// Control verbs
// -----------------------------------------------------------------------------

func (s *service) handleControl(ctx context.Context, msg *bus.Message) {
	// usbmux/port/<n>/control/<verb>
	if len(msg.Topic) < 5 {
		return
	}
	n, ok := asInt(msg.Topic[2])
	if !ok {
		s.replyErr(msg, -1, errcode.InvalidTopic)
		return
	}
	verb, _ := msg.Topic[4].(string)
	if s.mgr == nil {
		s.replyErr(msg, n, errcode.NotReady)
		return
	}
	if n < 0 || n >= s.mgr.Ports() {
		s.replyErr(msg, n, errcode.Wrap(errcode.UnknownPort, verb, n, nil))
		return
	}

	switch verb {
	case "set":
		var req types.SetRequest
		if err := decodeJSON(msg.Payload, &req); err != nil {
			s.replyErr(msg, n, errcode.InvalidPayload)
			return
		}
		mode, ok := usbmux.ParseState(req.Mode)
		if !ok {
			s.replyErr(msg, n, errcode.InvalidPayload)
			return
		}
		ack, err := s.mgr.Set(ctx, n, mode, req.Polarity)
		s.replySet(ctx, msg, n, ack, err)

	case "set_single":
		var req types.SetSingleRequest
		if err := decodeJSON(msg.Payload, &req); err != nil {
			s.replyErr(msg, n, errcode.InvalidPayload)
			return
		}
		mode, ok := usbmux.ParseState(req.Mode)
		if !ok {
			s.replyErr(msg, n, errcode.InvalidPayload)
			return
		}
		ack, err := s.mgr.SetSingle(ctx, n, req.Chip, mode, req.Polarity)
		s.replySet(ctx, msg, n, ack, err)

	case "hpd":
		var req types.HPDRequest
		if err := decodeJSON(msg.Payload, &req); err != nil {
			s.replyErr(msg, n, errcode.InvalidPayload)
			return
		}
		var hpd usbmux.MuxState
		if req.Level {
			hpd |= usbmux.HPDLevel
		}
		if req.IRQ {
			hpd |= usbmux.HPDIRQ
		}
		ack, err := s.mgr.HPDUpdate(ctx, n, hpd)
		s.replySet(ctx, msg, n, ack, err)

	case "get":
		ps, err := s.portState(ctx, n)
		if err != nil {
			s.replyErr(msg, n, err)
			return
		}
		s.replyOK(msg, n, "", &ps)

	case "flip":
		ack, err := s.mgr.Flip(ctx, n)
		s.replySet(ctx, msg, n, ack, err)

	case "init":
		if err := s.mgr.Init(ctx, n); err != nil {
			s.replyErr(msg, n, err)
			return
		}
		s.replyOK(msg, n, "", s.publishPortState(ctx, n))

	case "tune":
		var req types.TuneRequest
		if err := decodeJSON(msg.Payload, &req); err != nil {
			s.replyErr(msg, n, errcode.InvalidPayload)
			return
		}
		s.reply(msg, n, s.tune(ctx, n, req))

	case "set_eq":
		var req types.EQRequest
		if err := decodeJSON(msg.Payload, &req); err != nil {
			s.replyErr(msg, n, errcode.InvalidPayload)
			return
		}
		s.reply(msg, n, s.withLaneTuner(n, req.Chip, func(t laneTuner) error {
			return t.TuneEQ(req.Pin, req.EQ)
		}))

	case "set_fg":
		var req types.FGRequest
		if err := decodeJSON(msg.Payload, &req); err != nil {
			s.replyErr(msg, n, errcode.InvalidPayload)
			return
		}
		s.reply(msg, n, s.withLaneTuner(n, req.Chip, func(t laneTuner) error {
			return t.TuneFG(req.Pin, req.FG)
		}))

	case "enable_alternate":
		if err := s.mgr.EnableAlternate(n); err != nil {
			s.replyErr(msg, n, err)
			return
		}
		s.ports[n].alternate = true
		s.ports[n].pending = false
		s.publishInfo(n)
		s.replyOK(msg, n, "", s.publishPortState(ctx, n))

	case "set_cable":
		var req types.CableRequest
		if err := decodeJSON(msg.Payload, &req); err != nil {
			s.replyErr(msg, n, errcode.InvalidPayload)
			return
		}
		s.cables.set(n, req)
		s.replyOK(msg, n, "", nil)

	default:
		s.replyErr(msg, n, errcode.InvalidTopic)
	}
}

func (s *service) replySet(ctx context.Context, msg *bus.Message, n int, ack usbmux.Ack, err error) {
	if err != nil {
		s.replyErr(msg, n, err)
		return
	}
	s.ports[n].pending = ack == usbmux.AckRequired
	ps := s.publishPortState(ctx, n)
	a := ""
	if ack == usbmux.AckRequired {
		a = ack.String()
	}
	s.replyOK(msg, n, a, ps)
}

// tune applies the default tuning tables of every chip in the chain that
// has them, for the requested state or the current one.
func (s *service) tune(ctx context.Context, n int, req types.TuneRequest) error {
	var st usbmux.MuxState
	if req.Mode == "" {
		cur, err := s.mgr.Get(ctx, n)
		if err != nil {
			return err
		}
		st = cur
	} else {
		mode, ok := usbmux.ParseState(req.Mode)
		if !ok {
			return errcode.InvalidPayload
		}
		st = mode
		if mode != usbmux.None {
			st = mode.WithPolarity(req.Polarity)
		}
	}
	if s.power.IsHardOff() {
		return errcode.Wrap(errcode.NotPowered, "tune", n, nil)
	}
	found := false
	for _, d := range s.mgr.Chain(n).Muxes {
		t, ok := d.Driver.(defaultTuner)
		if !ok {
			continue
		}
		found = true
		if err := t.SetDefaultTuning(st); err != nil {
			return errcode.Wrap(errcode.Of(err), "tune", n, err)
		}
	}
	if !found {
		return errcode.Wrap(errcode.Unsupported, "tune", n, nil)
	}
	return nil
}

func (s *service) withLaneTuner(n, chip int, fn func(laneTuner) error) error {
	chain := s.mgr.Chain(n)
	if chip < 0 || chip >= len(chain.Muxes) {
		return errcode.Wrap(errcode.InvalidArgument, "tune", n, nil)
	}
	if s.power.IsHardOff() {
		return errcode.Wrap(errcode.NotPowered, "tune", n, nil)
	}
	t, ok := chain.Muxes[chip].Driver.(laneTuner)
	if !ok {
		return errcode.Wrap(errcode.Unsupported, "tune", n, nil)
	}
	if err := fn(t); err != nil {
		return errcode.Wrap(errcode.Of(err), "tune", n, err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Completions
// -----------------------------------------------------------------------------

func (s *service) handleAck(ctx context.Context, c core.Completion) {
	if s.mgr == nil || c.Port < 0 || c.Port >= len(s.ports) {
		return
	}
	s.ports[c.Port].pending = false
	ev := types.AckEvent{
		Port:  c.Port,
		Mux:   c.Mux,
		State: c.State.String(),
		OK:    c.Err == nil,
		TS:    timex.NowMs(),
	}
	if c.Err != nil {
		ev.Error = string(errcode.Of(c.Err))
	}
	s.conn.Publish(s.conn.NewMessage(TopicPortAck(c.Port), ev, false))
	s.publishPortState(ctx, c.Port)
}

// -----------------------------------------------------------------------------
// Host power
// -----------------------------------------------------------------------------

// handleChipset folds a chipset/state message into the power model. Hooks
// run from handleTransition once the model reports the change. A target of
// On while still off opens the reset window for muxes that must forget
// in-flight commands before the host comes up.
func (s *service) handleChipset(msg *bus.Message) {
	var cs types.ChipsetState
	if err := decodeJSON(msg.Payload, &cs); err != nil {
		s.log.Warn("bad chipset state payload", "err", err)
		return
	}
	st, ok := chipset.ParseState(cs.State)
	if !ok {
		s.log.Warn("unknown chipset state", "state", cs.State)
		return
	}
	s.power.Set(st)
	if cs.Target == "" {
		return
	}
	tgt, ok := chipset.ParseState(cs.Target)
	if !ok || tgt == st {
		return
	}
	s.power.Begin(tgt)
	if s.power.TransitioningToOn() && s.mgr != nil {
		if err := s.mgr.ChipsetReset(); err != nil {
			s.log.Warn("chipset reset hook failed", "err", err)
		}
	}
}

func (s *service) handleTransition(t chipset.Transition) {
	if s.mgr == nil {
		return
	}
	var (
		hook string
		err  error
	)
	switch {
	case t.To == chipset.HardOff:
		hook, err = "hard_off", s.mgr.ChipsetHardOff()
	case t.To == chipset.Suspend && t.From == chipset.On:
		hook, err = "suspend", s.mgr.ChipsetSuspend()
	case t.To == chipset.On && t.From == chipset.Suspend:
		hook, err = "resume", s.mgr.ChipsetResume()
	case t.To == chipset.On:
		hook, err = "reset", s.mgr.ChipsetReset()
	default:
		return
	}
	s.log.Debug("chipset hook", "hook", hook, "from", t.From.String(), "to", t.To.String())
	if err != nil {
		s.log.Warn("chipset hook failed", "hook", hook, "err", err)
	}
}

// -----------------------------------------------------------------------------
// Replies
// -----------------------------------------------------------------------------

func (s *service) reply(msg *bus.Message, n int, err error) {
	if err != nil {
		s.replyErr(msg, n, err)
		return
	}
	s.replyOK(msg, n, "", nil)
}

func (s *service) replyOK(msg *bus.Message, n int, ack string, st *types.PortState) {
	if !msg.CanReply() {
		return
	}
	s.conn.Reply(msg, types.Reply{OK: true, Port: n, Ack: ack, State: st}, false)
}

func (s *service) replyErr(msg *bus.Message, n int, err error) {
	if !msg.CanReply() {
		return
	}
	code := errcode.Of(err)
	if code == errcode.OK {
		code = errcode.Error
	}
	r := types.Reply{OK: false, Port: n, Error: string(code)}
	if err.Error() != string(code) {
		r.Detail = err.Error()
	}
	s.conn.Reply(msg, r, false)
}
