package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"typecmux-go/bus"
	"typecmux-go/chipset"
	"typecmux-go/platform"
	"typecmux-go/services/config"
	"typecmux-go/types"
)

var targetFlag string

var chipsetCmd = &cobra.Command{
	Use:   "chipset <state>",
	Short: "Report a host power state (on, suspend, soft_off, hard_off)",
	Long: `Publishes a chipset state to the mux service and prints every port
afterwards. --target announces a transition in progress; a target of on
while the host is off resets muxes that track in-flight commands.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, ok := chipset.ParseState(args[0])
		if !ok {
			return fmt.Errorf("unknown chipset state %q", args[0])
		}
		if targetFlag != "" {
			if _, ok := chipset.ParseState(targetFlag); !ok {
				return fmt.Errorf("unknown chipset state %q", targetFlag)
			}
		}
		return withRuntime(cmd.Context(), func(rt *runtime) error {
			rt.conn.Publish(rt.conn.NewMessage(bus.T("chipset", "state"),
				types.ChipsetState{State: args[0], Target: targetFlag}, false))
			if err := rt.waitPower(cmd.Context(), st); err != nil {
				return err
			}
			for _, m := range rt.retained(bus.T("usbmux", "port", "+", "state")) {
				if err := printJSON(cmd.OutOrStdout(), m.Payload); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Serve the mux service until interrupted, printing its events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return withRuntime(ctx, func(rt *runtime) error {
			sub := rt.conn.Subscribe(bus.T("usbmux", "#"))
			defer rt.conn.Unsubscribe(sub)
			for {
				select {
				case <-ctx.Done():
					return nil
				case m := <-sub.Channel():
					if m.Payload == nil {
						continue
					}
					line := map[string]any{"topic": m.Topic.String(), "payload": m.Payload}
					if err := printJSON(cmd.OutOrStdout(), line); err != nil {
						return err
					}
				}
			}
		})
	},
}

var platformsCmd = &cobra.Command{
	Use:   "platforms",
	Short: "List compiled-in platform backends and embedded board configs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		devices := config.Devices()
		sort.Strings(devices)
		return printJSON(cmd.OutOrStdout(), map[string][]string{
			"platforms": platform.Names(),
			"devices":   devices,
		})
	},
}

func init() {
	chipsetCmd.Flags().StringVar(&targetFlag, "target", "", "state the host is transitioning to")
	rootCmd.AddCommand(chipsetCmd, runCmd, platformsCmd)
}

// waitPower polls the power model until the service has folded st in.
func (rt *runtime) waitPower(ctx context.Context, st chipset.State) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for rt.power.State() != st {
		select {
		case <-ctx.Done():
			return fmt.Errorf("chipset state %s not applied", st)
		case <-tick.C:
		}
	}
	return nil
}
