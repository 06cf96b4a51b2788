package cmd

import (
	"fmt"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/seaturtle/internal/config"
	"github.com/nextlevelbuilder/seaturtle/internal/daemon"
)

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.ResolvePath(cfgFile))
			if err != nil {
				return err
			}

			pidPath := cfg.PIDFilePath()
			pid, err := daemon.ReadPIDFile(pidPath)
			if err != nil {
				fmt.Println("seaturtle is not running")
				return nil
			}

			if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
				daemon.RemovePIDFile(pidPath)
				fmt.Println("seaturtle is not running (stale pid file removed)")
				return nil
			}

			fmt.Printf("stopping seaturtle (pid %d)...\n", pid)
			deadline := time.Now().Add(20 * time.Second)
			for time.Now().Before(deadline) {
				if syscall.Kill(pid, 0) != nil {
					fmt.Println("stopped")
					return nil
				}
				time.Sleep(200 * time.Millisecond)
			}
			return fmt.Errorf("daemon did not exit within 20s (pid %d)", pid)
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.ResolvePath(cfgFile))
			if err != nil {
				return err
			}

			pid, err := daemon.ReadPIDFile(cfg.PIDFilePath())
			if err != nil || syscall.Kill(pid, 0) != nil {
				fmt.Println("seaturtle: not running")
				return nil
			}
			fmt.Printf("seaturtle: running (pid %d)\n", pid)
			fmt.Printf("  config: %s\n", config.ResolvePath(cfgFile))
			fmt.Printf("  agents: %d configured\n", len(cfg.Agents))
			return nil
		},
	}
}
