// Package heartbeat logs a periodic status line carrying the mux service
// state, so a console on the board shows the firmware is alive.
package heartbeat

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"typecmux-go/bus"
	"typecmux-go/internal/logx"
	"typecmux-go/types"
)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	topicMuxState        = bus.T("usbmux", "state")
)

const defaultInterval = time.Second

type config struct {
	Interval float64 `json:"interval"` // seconds
}

type Service struct {
	Platform string
	log      *slog.Logger
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)
	stSub := conn.Subscribe(topicMuxState)
	defer conn.Unsubscribe(stSub)

	tick := time.NewTicker(defaultInterval)
	defer tick.Stop()

	status := "starting"
	for {
		select {
		case <-ctx.Done():
			s.log.Info("stopping")
			return
		case <-tick.C:
			s.log.Info("heartbeat", "platform", s.Platform, "mux", status)
		case msg := <-stSub.Channel():
			if st, ok := msg.Payload.(types.ServiceState); ok {
				status = st.Level + "/" + st.Status
			}
		case msg := <-cfgSub.Channel():
			if iv, ok := interval(msg.Payload); ok {
				tick.Reset(iv)
				s.log.Info("interval set", "interval", iv)
			}
		}
	}
}

// interval accepts the raw JSON the config service publishes.
func interval(p any) (time.Duration, bool) {
	raw, ok := p.([]byte)
	if !ok {
		return 0, false
	}
	var c config
	if err := json.Unmarshal(raw, &c); err != nil || c.Interval <= 0 {
		return 0, false
	}
	return time.Duration(c.Interval * float64(time.Second)), true
}

// Run logs heartbeats until ctx is cancelled.
func (s *Service) Run(ctx context.Context, conn *bus.Connection) error {
	if s.log == nil {
		s.log = logx.For(logx.ComponentHeartbeat)
	}
	s.serviceLoop(ctx, conn)
	return nil
}
