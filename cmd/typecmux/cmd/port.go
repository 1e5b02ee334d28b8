package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"typecmux-go/bus"
	"typecmux-go/services/mux"
	"typecmux-go/types"
)

var (
	flipFlag   bool
	noWaitFlag bool

	cableActive  bool
	cableRetimer bool
	cableSpeed   uint8
	cableClear   bool

	hpdIRQ bool
)

var setCmd = &cobra.Command{
	Use:   "set <port> <mode>",
	Short: "Route a port (none, usb, dp, dock, tbt, usb4, safe)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := portArg(args[0])
		if err != nil {
			return err
		}
		return routeVerb(cmd, n, "set", types.SetRequest{Mode: args[1], Polarity: flipFlag})
	},
}

var flipCmd = &cobra.Command{
	Use:   "flip <port>",
	Short: "Invert the plug orientation of the current route",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := portArg(args[0])
		if err != nil {
			return err
		}
		return routeVerb(cmd, n, "flip", nil)
	},
}

var setSingleCmd = &cobra.Command{
	Use:   "set-single <port> <chip> <mode>",
	Short: "Route one mux of the port's chain, leaving the others as they are",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := portArg(args[0])
		if err != nil {
			return err
		}
		chip, err := strconv.Atoi(args[1])
		if err != nil || chip < 0 {
			return fmt.Errorf("invalid chip index %q", args[1])
		}
		return routeVerb(cmd, n, "set_single", types.SetSingleRequest{Chip: chip, Mode: args[2], Polarity: flipFlag})
	},
}

var hpdCmd = &cobra.Command{
	Use:   "hpd <port> <high|low>",
	Short: "Update DisplayPort hot-plug-detect on the port's chain",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := portArg(args[0])
		if err != nil {
			return err
		}
		var level bool
		switch args[1] {
		case "high", "1":
			level = true
		case "low", "0":
		default:
			return fmt.Errorf("invalid hpd level %q", args[1])
		}
		return routeVerb(cmd, n, "hpd", types.HPDRequest{Level: level, IRQ: hpdIRQ})
	},
}

var getCmd = &cobra.Command{
	Use:   "get <port>",
	Short: "Read back the state of a port",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return simpleVerb(cmd, args[0], "get", nil)
	},
}

var initCmd = &cobra.Command{
	Use:   "init <port>",
	Short: "Re-run chip initialisation for a port",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return simpleVerb(cmd, args[0], "init", nil)
	},
}

var tuneCmd = &cobra.Command{
	Use:   "tune <port> [mode]",
	Short: "Apply default signal tuning (current state when mode is omitted)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := types.TuneRequest{Polarity: flipFlag}
		if len(args) == 2 {
			req.Mode = args[1]
		}
		return simpleVerb(cmd, args[0], "tune", req)
	},
}

var eqCmd = &cobra.Command{
	Use:   "eq <port> <chip> <pin> <value>",
	Short: "Override the equaliser setting of one lane",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		chip, v, err := laneArgs(args[1], args[3], 0x0F)
		if err != nil {
			return err
		}
		return simpleVerb(cmd, args[0], "set_eq", types.EQRequest{Chip: chip, Pin: args[2], EQ: v})
	},
}

var fgCmd = &cobra.Command{
	Use:   "fg <port> <chip> <pin> <value>",
	Short: "Override the flat gain setting of one lane",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		chip, v, err := laneArgs(args[1], args[3], 0x03)
		if err != nil {
			return err
		}
		return simpleVerb(cmd, args[0], "set_fg", types.FGRequest{Chip: chip, Pin: args[2], FG: v})
	},
}

var alternateCmd = &cobra.Command{
	Use:   "alternate <port>",
	Short: "Switch a port to its alternate mux chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return simpleVerb(cmd, args[0], "enable_alternate", nil)
	},
}

var cableCmd = &cobra.Command{
	Use:   "cable <port> <mode>",
	Short: "Record cable metadata, then route the port",
	Long: `Stores discovered cable properties for the port and issues a set, so
that mux commands carrying cable information see them.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := portArg(args[0])
		if err != nil {
			return err
		}
		cable := types.CableRequest{Active: cableActive, Retimer: cableRetimer, Speed: cableSpeed, Clear: cableClear}
		return withRuntime(cmd.Context(), func(rt *runtime) error {
			if _, err := rt.request(cmd.Context(), n, "set_cable", cable); err != nil {
				return err
			}
			return rt.route(cmd.Context(), cmd.OutOrStdout(), n, "set", types.SetRequest{Mode: args[1], Polarity: flipFlag})
		})
	},
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List the configured ports and their mux chains",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(rt *runtime) error {
			infos := rt.retained(bus.T("usbmux", "port", "+", "info"))
			for _, m := range infos {
				if err := printJSON(cmd.OutOrStdout(), m.Payload); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{setCmd, setSingleCmd, tuneCmd, cableCmd} {
		c.Flags().BoolVarP(&flipFlag, "flip", "f", false, "inverted plug orientation")
	}
	for _, c := range []*cobra.Command{setCmd, setSingleCmd, flipCmd, hpdCmd, cableCmd} {
		c.Flags().BoolVar(&noWaitFlag, "no-wait", false, "do not wait for asynchronous completion")
	}
	cableCmd.Flags().BoolVar(&cableActive, "active", false, "active cable")
	cableCmd.Flags().BoolVar(&cableRetimer, "retimer", false, "cable carries a retimer")
	cableCmd.Flags().Uint8Var(&cableSpeed, "speed", 0, "cable speed code")
	hpdCmd.Flags().BoolVar(&hpdIRQ, "irq", false, "signal an HPD IRQ pulse")
	cableCmd.Flags().BoolVar(&cableClear, "clear", false, "forget stored cable metadata")

	rootCmd.AddCommand(setCmd, setSingleCmd, flipCmd, hpdCmd, getCmd, initCmd, tuneCmd, eqCmd, fgCmd, alternateCmd, cableCmd, portsCmd)
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func simpleVerb(cmd *cobra.Command, port, verb string, payload any) error {
	n, err := portArg(port)
	if err != nil {
		return err
	}
	return withRuntime(cmd.Context(), func(rt *runtime) error {
		rep, err := rt.request(cmd.Context(), n, verb, payload)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rep)
	})
}

func routeVerb(cmd *cobra.Command, n int, verb string, payload any) error {
	return withRuntime(cmd.Context(), func(rt *runtime) error {
		return rt.route(cmd.Context(), cmd.OutOrStdout(), n, verb, payload)
	})
}

// route issues set or flip. When the mux acknowledges asynchronously the
// completion event is printed after the reply.
func (rt *runtime) route(ctx context.Context, w io.Writer, n int, verb string, payload any) error {
	acks := rt.conn.Subscribe(mux.TopicPortAck(n))
	defer rt.conn.Unsubscribe(acks)

	rep, err := rt.request(ctx, n, verb, payload)
	if err != nil {
		return err
	}
	if err := printJSON(w, rep); err != nil {
		return err
	}
	if rep.Ack == "" || noWaitFlag {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case m := <-acks.Channel():
		ev, _ := m.Payload.(types.AckEvent)
		if err := printJSON(w, ev); err != nil {
			return err
		}
		if !ev.OK {
			return fmt.Errorf("%s port %d: completion failed: %s", verb, n, ev.Error)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s port %d: no completion: %w", verb, n, ctx.Err())
	}
}

// retained drains the messages a fresh subscription receives at once.
func (rt *runtime) retained(t bus.Topic) []*bus.Message {
	sub := rt.conn.Subscribe(t)
	defer rt.conn.Unsubscribe(sub)
	var out []*bus.Message
	for {
		select {
		case m := <-sub.Channel():
			out = append(out, m)
		default:
			return out
		}
	}
}

func portArg(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return n, nil
}

func laneArgs(chip, value string, limit uint64) (int, uint8, error) {
	c, err := strconv.Atoi(chip)
	if err != nil || c < 0 {
		return 0, 0, fmt.Errorf("invalid chip index %q", chip)
	}
	v, err := strconv.ParseUint(value, 0, 8)
	if err != nil || v > limit {
		return 0, 0, fmt.Errorf("invalid value %q (0..%d)", value, limit)
	}
	return c, uint8(v), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
