package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"typecmux-go/internal/logx"
	"typecmux-go/platform"

	_ "typecmux-go/services/mux/devices/anx7483"
	_ "typecmux-go/services/mux/devices/virtual"
	_ "typecmux-go/services/mux/devices/xbarmux"
)

var (
	// Global flags
	platformName string
	deviceName   string
	logLevel     string
	logFormat    string
	timeout      time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "typecmux",
	Short: "USB-C mux/retimer bring-up tool",
	Long: `Runs the mux service in-process on a selected platform and drives it
through its bus control surface.

Examples:
  typecmux ports                          # Show the configured mux chains
  typecmux set 1 dock --flip              # Route USB+DP, flipped, on port 1
  typecmux get 1                          # Read back port 1
  typecmux eq 0 0 utx1 15                 # Override EQ on a redriver lane
  typecmux --platform linux run           # Serve until interrupted`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		lvl, err := logx.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logx.SetOutput(cmd.ErrOrStderr(), logx.ParseFormat(logFormat))
		logx.SetLevel(lvl)
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&platformName, "platform", "p", "sim", fmt.Sprintf("platform backend %v", platform.Names()))
	pf.StringVar(&deviceName, "device", "", "embedded board config (default: the platform's own)")
	pf.StringVar(&logLevel, "log-level", "warn", "debug, info, warn or error")
	pf.StringVar(&logFormat, "log-format", "text", "text or json")
	pf.DurationVar(&timeout, "timeout", 2*time.Second, "per-request timeout")
}
