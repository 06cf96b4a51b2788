package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/seaturtle/internal/config"
	"github.com/nextlevelbuilder/seaturtle/internal/daemon"
	"github.com/nextlevelbuilder/seaturtle/internal/logging"
)

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the agent daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
	}
}

func runDaemon() error {
	cfgPath := config.ResolvePath(cfgFile)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level := cfg.Global.LogLevel
	if verbose {
		level = "debug"
	}
	closeLog, err := logging.Setup(level, config.ExpandHome(cfg.Global.LogFile))
	if err != nil {
		return err
	}
	defer closeLog()

	d, err := daemon.New(cfg, cfgPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return d.Run(ctx)
}
