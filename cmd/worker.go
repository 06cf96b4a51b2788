package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/seaturtle/internal/config"
	"github.com/nextlevelbuilder/seaturtle/internal/logging"
	"github.com/nextlevelbuilder/seaturtle/internal/worker"
)

// workerCmd is the hidden entry point the daemon uses when it re-executes
// the binary as an agent worker. Commands arrive on stdin, events leave on
// stdout, logs go to stderr.
func workerCmd() *cobra.Command {
	var agentID string

	c := &cobra.Command{
		Use:    "worker",
		Short:  "Run a single agent worker process (internal)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.ResolvePath(cfgFile))
			if err != nil {
				return err
			}

			level := cfg.Global.LogLevel
			if verbose {
				level = "debug"
			}
			// No log file here: the daemon already owns it, and stdout is
			// reserved for the event stream.
			closeLog, err := logging.Setup(level, "")
			if err != nil {
				return err
			}
			defer closeLog()

			w, err := worker.New(cfg, agentID, os.Stdout)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return w.Run(ctx, os.Stdin)
		},
	}

	c.Flags().StringVar(&agentID, "agent", "", "agent id to run")
	_ = c.MarkFlagRequired("agent")
	return c
}
