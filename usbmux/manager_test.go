package usbmux

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"typecmux-go/chipset"
	"typecmux-go/errcode"
)

func TestManagerLazyInitAndPolarity(t *testing.T) {
	d := &setOnly{}
	m := NewManager([]PortConfig{{Primary: NewChain(0, desc(0, d, 0))}})
	ctx := context.Background()

	if _, err := m.Set(ctx, 0, DPEnabled, true); err != nil {
		t.Fatal(err)
	}
	if d.f.state != DPEnabled|PolarityInverted {
		t.Fatalf("state %v", d.f.state)
	}
	s, err := m.Get(ctx, 0)
	if err != nil || s != DPEnabled|PolarityInverted {
		t.Fatalf("Get = %v, %v", s, err)
	}

	if _, err := m.Flip(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if d.f.state != DPEnabled {
		t.Fatalf("after flip %v", d.f.state)
	}

	// None never carries polarity.
	if _, err := m.Set(ctx, 0, None, true); err != nil {
		t.Fatal(err)
	}
	if d.f.state != None {
		t.Fatalf("disconnect %v", d.f.state)
	}
}

func TestManagerLowPowerCycle(t *testing.T) {
	d := &fakeDriver{}
	m := NewManager([]PortConfig{{Primary: NewChain(0, desc(0, d, 0))}})
	ctx := context.Background()

	if _, err := m.Set(ctx, 0, USBEnabled, false); err != nil {
		t.Fatal(err)
	}
	if d.inits != 1 {
		t.Fatalf("inits %d", d.inits)
	}
	if _, err := m.Set(ctx, 0, None, false); err != nil {
		t.Fatal(err)
	}
	if !m.LowPower(0) || d.lowPower != 1 {
		t.Fatal("disconnect should enter low power")
	}
	n := len(d.sets)
	if _, err := m.Set(ctx, 0, SafeMode, false); err != nil {
		t.Fatal(err)
	}
	if len(d.sets) != n {
		t.Fatal("safe mode while parked must not touch the chain")
	}
	if s, _ := m.Get(ctx, 0); s != None {
		t.Fatal("parked port reads as none")
	}
	if _, err := m.Set(ctx, 0, Dock, false); err != nil {
		t.Fatal(err)
	}
	if d.inits != 2 || m.LowPower(0) || d.state != Dock {
		t.Fatalf("leaving low power must re-init: inits=%d state=%v", d.inits, d.state)
	}
}

func TestManagerNotPoweredInit(t *testing.T) {
	d := &fakeDriver{initErr: errcode.NotPowered}
	m := NewManager([]PortConfig{{Primary: NewChain(0, desc(0, d, 0))}})
	ctx := context.Background()

	if err := m.Init(ctx, 0); err != nil {
		t.Fatalf("NotPowered init is deferred, got %v", err)
	}
	if !m.LowPower(0) {
		t.Fatal("port should be parked")
	}
	if _, err := m.Set(ctx, 0, USBEnabled, false); !errcode.Is(err, errcode.NotPowered) {
		t.Fatalf("got %v, want not_powered", err)
	}
	if len(d.sets) != 0 {
		t.Fatal("no set while unpowered")
	}
	d.initErr = nil
	if _, err := m.Set(ctx, 0, USBEnabled, false); err != nil {
		t.Fatal(err)
	}
}

func TestManagerInvalidPort(t *testing.T) {
	m := NewManager(nil)
	if _, err := m.Set(context.Background(), 3, USBEnabled, false); !errcode.Is(err, errcode.InvalidArgument) {
		t.Fatalf("got %v", err)
	}
	if m.Chain(-1) != nil {
		t.Fatal("nil chain for bad port")
	}
}

func TestManagerEnableAlternate(t *testing.T) {
	primary := &fakeDriver{}
	alt := &fakeDriver{}
	primaryChain := NewChain(0, desc(0, primary, 0))
	m := NewManager([]PortConfig{
		{Primary: primaryChain, Alternate: NewChain(0, desc(0, alt, 0))},
		{Primary: NewChain(1, desc(1, &fakeDriver{}, 0))},
	})
	ctx := context.Background()

	if err := m.EnableAlternate(1); !errcode.Is(err, errcode.Unsupported) {
		t.Fatalf("port without alternate: %v", err)
	}
	if err := m.EnableAlternate(0); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Set(ctx, 0, USBEnabled, false); err != nil {
		t.Fatal(err)
	}
	if alt.state != USBEnabled || len(primary.sets) != 0 {
		t.Fatal("set must reach the alternate chain only")
	}
	if len(primaryChain.Muxes) != 1 || primaryChain.Muxes[0].Driver != primary {
		t.Fatal("primary chain must not be mutated")
	}
}

func TestManagerChipsetHooks(t *testing.T) {
	g3 := &fakeDriver{}
	keep := &fakeDriver{}
	m := NewManager([]PortConfig{
		{Primary: NewChain(0, desc(0, g3, ResetsInG3|CanIdle))},
		{Primary: NewChain(1, desc(1, keep, 0))},
	})
	ctx := context.Background()
	for p := 0; p < 2; p++ {
		if _, err := m.Set(ctx, p, USBEnabled, false); err != nil {
			t.Fatal(err)
		}
	}

	if err := m.ChipsetSuspend(); err != nil {
		t.Fatal(err)
	}
	if err := m.ChipsetResume(); err != nil {
		t.Fatal(err)
	}
	if len(g3.idle) != 2 || !g3.idle[0] || g3.idle[1] || len(keep.idle) != 0 {
		t.Fatalf("idle calls %v / %v", g3.idle, keep.idle)
	}
	if err := m.ChipsetReset(); err != nil || g3.resets != 1 || keep.resets != 1 {
		t.Fatal("reset must reach initialised ports")
	}

	if err := m.ChipsetHardOff(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if g3.inits != 2 || keep.inits != 1 {
		t.Fatalf("hard-off should only reset G3 ports: %d %d", g3.inits, keep.inits)
	}
}

func TestManagerSetSingle(t *testing.T) {
	a, b := &fakeDriver{}, &fakeDriver{}
	m := NewManager([]PortConfig{{Primary: NewChain(0, desc(0, a, 0), desc(0, b, 0))}})
	ctx := context.Background()

	if _, err := m.SetSingle(ctx, 0, 1, DPEnabled, true); err != nil {
		t.Fatal(err)
	}
	if len(a.sets) != 0 || b.state != DPEnabled|PolarityInverted {
		t.Fatalf("a=%v b=%v", a.sets, b.state)
	}
	if a.inits != 1 {
		t.Fatal("SetSingle initialises the whole chain")
	}
	if _, err := m.SetSingle(ctx, 0, 5, DPEnabled, false); !errcode.Is(err, errcode.InvalidArgument) {
		t.Fatalf("bad index: %v", err)
	}
}

func TestManagerHPDUpdateLeavesLowPower(t *testing.T) {
	d := &fakeDriver{}
	m := NewManager([]PortConfig{{Primary: NewChain(0, desc(0, d, 0))}})
	ctx := context.Background()

	if _, err := m.Set(ctx, 0, None, false); err != nil {
		t.Fatal(err)
	}
	if !m.LowPower(0) {
		t.Fatal("expected low power")
	}
	if _, err := m.HPDUpdate(ctx, 0, HPDLevel); err != nil {
		t.Fatal(err)
	}
	if m.LowPower(0) || d.inits != 2 || len(d.hpd) != 1 || d.hpd[0] != HPDLevel {
		t.Fatalf("lowPower=%v inits=%d hpd=%v", m.LowPower(0), d.inits, d.hpd)
	}
	if _, err := m.HPDUpdate(ctx, 4, HPDLevel); !errcode.Is(err, errcode.InvalidArgument) {
		t.Fatalf("bad port: %v", err)
	}
}

func TestManagerPausesForAck(t *testing.T) {
	gate := NewAckGate(1)
	var acked atomic.Bool
	first := &fakeDriver{ack: AckRequired}
	first.onSet = func() {
		go func() {
			time.Sleep(20 * time.Millisecond)
			acked.Store(true)
			gate.Signal(0)
		}()
	}
	var sawAck bool
	second := &fakeDriver{}
	second.onSet = func() { sawAck = acked.Load() }

	m := NewManager([]PortConfig{{Primary: NewChain(0, desc(0, first, 0), desc(0, second, 0))}},
		WithAckGate(gate, time.Second))
	ack, err := m.Set(context.Background(), 0, USBEnabled, false)
	if err != nil || ack != AckRequired {
		t.Fatalf("Set = %v, %v", ack, err)
	}
	if !sawAck {
		t.Fatal("second mux set before the first acknowledged")
	}
}

func TestManagerAckPauseTimesOut(t *testing.T) {
	gate := NewAckGate(1)
	gate.Signal(0) // stale, from an earlier walk
	first := &fakeDriver{ack: AckRequired}
	second := &fakeDriver{}
	m := NewManager([]PortConfig{{Primary: NewChain(0, desc(0, first, 0), desc(0, second, 0))}},
		WithAckGate(gate, 15*time.Millisecond))

	start := time.Now()
	if _, err := m.Set(context.Background(), 0, USBEnabled, false); err != nil {
		t.Fatal(err)
	}
	if el := time.Since(start); el < 15*time.Millisecond {
		t.Fatalf("walk did not pause: %v", el)
	}
	if second.state != USBEnabled {
		t.Fatal("second mux must still be set after the timeout")
	}
}

func TestPassThroughHPD(t *testing.T) {
	power := chipset.NewModel(chipset.On)
	v := NewPassThrough(power)

	v.Set(Dock)
	v.HPDUpdate(HPDLevel | HPDIRQ | USBEnabled)
	if s, _ := v.Get(); s != Dock|HPDLevel|HPDIRQ {
		t.Fatalf("after hpd %v", s)
	}
	v.Set(DPEnabled | HPDIRQ)
	if s, _ := v.Get(); s != DPEnabled|HPDLevel|HPDIRQ {
		t.Fatalf("set must keep hpd bits: %v", s)
	}
	v.Set(None)
	if s, _ := v.Get(); s != None {
		t.Fatalf("disconnect clears hpd: %v", s)
	}

	power.Set(chipset.HardOff)
	if _, err := v.HPDUpdate(HPDLevel); !errcode.Is(err, errcode.NotPowered) {
		t.Fatalf("hard-off hpd: %v", err)
	}
	if _, err := v.HPDUpdate(None); err != nil {
		t.Fatalf("clearing hpd while off: %v", err)
	}
}
