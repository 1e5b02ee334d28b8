package bus

import (
	"context"
	"sort"
	"testing"
	"time"
)

func portTopic(n int, rest ...any) Topic {
	return T(append([]any{"usbmux", "port", n}, rest...)...)
}

// The mux service serves every verb on every port from one subscription.
func TestControlWildcardMatchesPortVerbs(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")
	ctl := c.Subscribe(Topic{"usbmux", "port", "+", "control", "+"})
	other := c.Subscribe(Topic{"usbmux", "port", "+", "control"})

	tests := []struct {
		topic Topic
		match bool
	}{
		{portTopic(0, "control", "set"), true},
		{portTopic(3, "control", "hpd"), true},
		{portTopic(1, "control"), false},
		{portTopic(1, "state"), false},
		{portTopic(1, "control", "set", "extra"), false},
		{Topic{"usbmux", "chipset"}, false},
	}
	for _, tt := range tests {
		c.Publish(b.NewMessage(tt.topic, tt.topic.String(), false))
		if tt.match {
			expectOneOf(t, ctl, tt.topic.String())
		} else {
			expectNoMessage(t, ctl)
		}
	}
	// Only the bare control topic reaches the shorter pattern.
	expectOneOf(t, other, portTopic(1, "control").String())
	expectNoMessage(t, other)
}

func TestRetainedPortInfo(t *testing.T) {
	b := NewBus(32)
	c := b.NewConnection("test")

	c.Publish(b.NewMessage(portTopic(0, "info"), "anx7483", true))
	c.Publish(b.NewMessage(portTopic(1, "info"), "xbarmux", true))
	c.Publish(b.NewMessage(portTopic(1, "state"), "usb", true))
	c.Publish(b.NewMessage(Topic{"usbmux", "state"}, "ready", true))

	infos := c.Subscribe(Topic{"usbmux", "port", "+", "info"})
	assertUnorderedEqual(t, drainPayloads(t, infos, 2), []string{"anx7483", "xbarmux"})
	expectNoMessage(t, infos)

	all := c.Subscribe(Topic{"usbmux", "#"})
	assertUnorderedEqual(t, drainPayloads(t, all, 4), []string{"anx7483", "xbarmux", "usb", "ready"})

	port1 := c.Subscribe(Topic{"usbmux", "port", 1, "#"})
	assertUnorderedEqual(t, drainPayloads(t, port1, 2), []string{"xbarmux", "usb"})
}

// A nil retained payload forgets the topic; later subscribers see nothing.
func TestRetainedPortStateClear(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	c.Publish(b.NewMessage(portTopic(0, "state"), "dp", true))
	c.Publish(b.NewMessage(portTopic(1, "state"), "usb", true))
	c.Publish(b.NewMessage(portTopic(1, "state"), nil, true))

	s := c.Subscribe(Topic{"usbmux", "port", "+", "state"})
	got := drainPayloads(t, s, 1)
	if got[0] != "dp" {
		t.Fatalf("retained after clear: %v", got)
	}
	expectNoMessage(t, s)
}

func TestRetainedConfigReplaced(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("test")

	c.Publish(b.NewMessage(Topic{"config", "usbmux"}, "old", true))
	c.Publish(b.NewMessage(Topic{"config", "usbmux"}, "new", true))

	s := c.Subscribe(Topic{"config", "usbmux"})
	expectOneOf(t, s, "new")
	expectNoMessage(t, s)
}

// -----------------------------------------------------------------------------
// Request–Reply
// -----------------------------------------------------------------------------

func TestControlRequestWait(t *testing.T) {
	b := NewBus(8)
	cli := b.NewConnection("cli")
	svc := b.NewConnection("usbmux")

	ctl := svc.Subscribe(Topic{"usbmux", "port", "+", "control", "+"})
	defer svc.Unsubscribe(ctl)
	go func() {
		if msg, ok := <-ctl.Channel(); ok {
			verb, _ := msg.Topic[4].(string)
			svc.Reply(msg, verb+" ok", false)
		}
	}()

	req := b.NewMessage(portTopic(2, "control", "flip"), nil, false)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	reply, err := cli.RequestWait(ctx, req)
	if err != nil {
		t.Fatalf("RequestWait: %v", err)
	}
	if got, _ := reply.Payload.(string); got != "flip ok" {
		t.Fatalf("reply payload %#v", reply.Payload)
	}
	if !req.CanReply() || reply.Topic.String() != req.ReplyTo.String() {
		t.Fatalf("reply topic %v, request ReplyTo %v", reply.Topic, req.ReplyTo)
	}
}

func TestControlRequestTimesOutWithoutService(t *testing.T) {
	b := NewBus(8)
	cli := b.NewConnection("cli")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := cli.RequestWait(ctx, b.NewMessage(portTopic(0, "control", "get"), nil, false)); err == nil {
		t.Fatal("expected timeout")
	}
}

func TestReply_NoReplyToIsNoop(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("test")
	s := c.Subscribe(Topic{"#"})

	msg := b.NewMessage(Topic{"usbmux", "chipset"}, nil, false)
	if msg.CanReply() {
		t.Fatal("plain message must not be repliable")
	}
	c.Reply(msg, "x", false)
	expectNoMessage(t, s)
}

// -----------------------------------------------------------------------------
// Topics
// -----------------------------------------------------------------------------

func TestTopic_StringAndAppend(t *testing.T) {
	base := T("usbmux", "port", 2)
	got := base.Append("state")
	if got.String() != "usbmux/port/2/state" {
		t.Fatalf("unexpected topic %q", got.String())
	}
	if base.Len() != 3 {
		t.Fatal("Append must not alias the base topic")
	}
}

func TestTopic_InvalidTokenPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for non-comparable token")
		}
	}()
	_ = T([]byte{1, 2, 3})
}

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

func expectOneOf(t *testing.T, sub *Subscription, want string) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		s, ok := got.Payload.(string)
		if !ok || s != want {
			t.Fatalf("unexpected payload: %v (want %q)", got.Payload, want)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for %q", want)
	}
}

func expectNoMessage(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		t.Fatalf("unexpected message: %#v", got)
	case <-time.After(60 * time.Millisecond):
	}
}

func drainPayloads(t *testing.T, sub *Subscription, n int) []string {
	t.Helper()
	var out []string
	deadline := time.Now().Add(300 * time.Millisecond)
	for len(out) < n && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			s, ok := m.Payload.(string)
			if !ok {
				t.Fatalf("non-string payload: %#v", m.Payload)
			}
			out = append(out, s)
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(out) != n {
		t.Fatalf("expected %d messages, got %d (%v)", n, len(out), out)
	}
	return out
}

func assertUnorderedEqual(t *testing.T, got, want []string) {
	t.Helper()
	sort.Strings(got)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
