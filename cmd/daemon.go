package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/syncrules/cloudsync/internal/daemon"
	"github.com/syncrules/cloudsync/internal/service"
)

var (
	daemonInterval time.Duration
	daemonPidPath  string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run syncrules continuously in the foreground",
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon and block until interrupted",
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Signal a running daemon to stop",
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether a daemon is currently running",
	RunE:  runDaemonStatus,
}

func init() {
	daemonStartCmd.Flags().DurationVar(&daemonInterval, "interval", 5*time.Minute, "time between reconciliation passes")
	daemonCmd.PersistentFlags().StringVar(&daemonPidPath, "pid-file", "", "path to the daemon PID file (default: ~/.config/syncrules/daemon.pid)")
	daemonCmd.AddCommand(daemonStartCmd, daemonStopCmd, daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}

func pidFile() (*daemon.PIDFile, error) {
	path := daemonPidPath
	if path == "" {
		p, err := daemon.DefaultPIDPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return daemon.NewPIDFile(path), nil
}

func runDaemonStart(c *cobra.Command, args []string) error {
	pf, err := pidFile()
	if err != nil {
		return err
	}
	if err := pf.Write(); err != nil {
		return err
	}
	defer pf.Remove()

	svc, err := service.NewDaemonService(cfg)
	if err != nil {
		return fmt.Errorf("creating daemon service: %w", err)
	}
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := svc.Start(ctx, daemonInterval); err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}

	<-ctx.Done()
	return svc.Stop()
}

func runDaemonStop(c *cobra.Command, args []string) error {
	pf, err := pidFile()
	if err != nil {
		return err
	}
	if err := pf.Kill(); err != nil {
		return fmt.Errorf("stopping daemon: %w", err)
	}
	return pf.Remove()
}

func runDaemonStatus(c *cobra.Command, args []string) error {
	pf, err := pidFile()
	if err != nil {
		return err
	}
	running, err := pf.IsRunning()
	if err != nil {
		fmt.Println("daemon is not running")
		return nil
	}
	if running {
		fmt.Println("daemon is running")
	} else {
		fmt.Println("daemon is not running (stale PID file)")
	}
	return nil
}
