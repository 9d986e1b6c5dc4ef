package main

import (
	"fmt"
	"os"

	"github.com/eleven-am/camera-sentinel/internal/bootstrap"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var opts bootstrap.Options

	cmd := &cobra.Command{
		Use:   "sentinel",
		Short: "Watch UniFi Protect cameras and push what a vision model sees",
		Long: `Samples snapshots from cameras while they report motion, classifies them
with a vision model and sends rate limited push notifications.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if code := bootstrap.Run(opts); code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.Test, "test", false, "classify on every tick regardless of motion")
	flags.BoolVar(&opts.Quiet, "quiet", false, "no console log output (the log file is still written)")
	flags.BoolVar(&opts.Notify, "notify", false, "enable Pushover delivery")
	flags.BoolVar(&opts.TestAlarm, "testalarm", false, "send a test alarm and exit")
	flags.DurationVar(&opts.ExitAfter, "exit-after", 0, "exit cleanly after this long, e.g. 24h")
	flags.StringVar(&opts.InstructionsFile, "instructions", "", "instructions file (overrides INSTRUCTIONS_FILE)")

	return cmd
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "failed to load .env:", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
