package config

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"typecmux-go/bus"
	"typecmux-go/types"
)

func TestConfig_PublishEmbedded_RetainedPerKey(t *testing.T) {
	// Override lookup for this test.
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(device string) ([]byte, bool) {
		if device != "pico" {
			return nil, false
		}
		return []byte(`{
			"mode": "dev",
			"debug": true,
			"region": {"code": "eu"}
		}`), true
	}
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	b := bus.NewBus(16)
	conn := b.NewConnection("test-config")
	svc := NewConfigService()

	ctx := DeviceContext(context.Background(), "pico")
	svc.Start(ctx, conn)

	// Subscribe; retained messages should arrive immediately.
	sub := conn.Subscribe(bus.Topic{configPrefix, "#"})

	wantCount := 3 // mode, debug, region
	got := map[string][]byte{}

	deadline := time.Now().Add(600 * time.Millisecond)
	for len(got) < wantCount && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			if len(m.Topic) < 2 {
				t.Fatalf("unexpected topic length: %#v", m.Topic)
			}
			if prefix, _ := m.Topic[0].(string); prefix != configPrefix {
				t.Fatalf("unexpected prefix: %v", m.Topic[0])
			}
			key, ok := m.Topic[1].(string)
			if !ok {
				t.Fatalf("topic[1] type %T, want string", m.Topic[1])
			}
			raw, ok := m.Payload.([]byte)
			if !ok {
				t.Fatalf("payload type %T, want []byte", m.Payload)
			}
			got[key] = raw
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(got) != wantCount {
		t.Fatalf("expected %d retained messages, got %d", wantCount, len(got))
	}

	var mode string
	if err := json.Unmarshal(got["mode"], &mode); err != nil || mode != "dev" {
		t.Fatalf("mode = %q, %v", mode, err)
	}
	var debug bool
	if err := json.Unmarshal(got["debug"], &debug); err != nil || !debug {
		t.Fatalf("debug = %v, %v", debug, err)
	}
	var region struct{ Code string }
	if err := json.Unmarshal(got["region"], &region); err != nil || region.Code != "eu" {
		t.Fatalf("region = %+v, %v", region, err)
	}
}

func TestConfig_PublishConfig_MissingDevice(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test-missing-device")
	svc := NewConfigService()

	if err := svc.publishConfig(context.Background(), conn); err == nil {
		t.Fatal("expected error for missing device ID, got nil")
	}
}

func TestConfig_PublishConfig_NoConfigFound(t *testing.T) {
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(device string) ([]byte, bool) { return nil, false }
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	b := bus.NewBus(4)
	conn := b.NewConnection("test-no-config")
	svc := NewConfigService()

	ctx := DeviceContext(context.Background(), "unknown-device")
	if err := svc.publishConfig(ctx, conn); err == nil {
		t.Fatal("expected error for missing embedded config, got nil")
	}
}

func TestConfig_PublishConfig_NotAnObject(t *testing.T) {
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(string) ([]byte, bool) { return []byte(`[1,2]`), true }
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	conn := bus.NewBus(4).NewConnection("test-array")
	ctx := DeviceContext(context.Background(), "x")
	if err := NewConfigService().publishConfig(ctx, conn); err == nil {
		t.Fatal("expected error for non-object config")
	}
}

// Every embedded board must decode as a usbmux board config.
func TestEmbeddedConfigsDecode(t *testing.T) {
	for _, dev := range Devices() {
		raw, _ := EmbeddedConfigLookup(dev)
		var top struct {
			USBMux types.BoardConfig `json:"usbmux"`
		}
		if err := json.Unmarshal(raw, &top); err != nil {
			t.Fatalf("%s: %v", dev, err)
		}
		if len(top.USBMux.Ports) == 0 {
			t.Fatalf("%s: no ports", dev)
		}
		for n, p := range top.USBMux.Ports {
			if len(p.Chips) == 0 {
				t.Fatalf("%s port %d: empty chain", dev, n)
			}
		}
	}
}
