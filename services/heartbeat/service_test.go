package heartbeat

import (
	"context"
	"testing"
	"time"

	"typecmux-go/bus"
	"typecmux-go/types"
)

func TestInterval(t *testing.T) {
	cases := []struct {
		in   any
		want time.Duration
		ok   bool
	}{
		{[]byte(`{"interval": 5}`), 5 * time.Second, true},
		{[]byte(`{"interval": 0.5}`), 500 * time.Millisecond, true},
		{[]byte(`{"interval": 0}`), 0, false},
		{[]byte(`{"interval": "x"}`), 0, false},
		{map[string]any{"interval": 5.0}, 0, false},
	}
	for i, c := range cases {
		got, ok := interval(c.in)
		if ok != c.ok || got != c.want {
			t.Fatalf("case %d: got %v,%v want %v,%v", i, got, ok, c.want, c.ok)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	b := bus.NewBus(8)
	pub := b.NewConnection("test")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- (&Service{Platform: "sim"}).Run(ctx, b.NewConnection("heartbeat"))
	}()
	pub.Publish(pub.NewMessage(topicConfigHeartbeat, []byte(`{"interval": 0.01}`), true))
	pub.Publish(pub.NewMessage(topicMuxState, types.ServiceState{Level: "ready"}, true))
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
