package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"danmu/internal/apiclient"
	"danmu/internal/daemonctl"
)

const (
	startWaitTimeout = 15 * time.Second
	stopGracePeriod  = 20 * time.Second
)

func newStartCommand(ctx *commandContext) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the danmu daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := ctx.startDaemon(cmd, logLevel)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(out, "Daemon already running (pid %d)\n", result.PID)
			default:
				fmt.Fprintf(out, "Daemon started (pid %d)\n", result.PID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for the launched daemon")
	return cmd
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background danmu daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := ctx.stopDaemon(cmd)
			out := cmd.OutOrStdout()
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			printStopResult(cmd, result)
			return nil
		},
	}
}

func newRestartCommand(ctx *commandContext) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Stop the daemon if it is running, then start it again",
		RunE: func(cmd *cobra.Command, args []string) error {
			stopResult, err := ctx.stopDaemon(cmd)
			switch {
			case errors.Is(err, daemonctl.ErrDaemonNotRunning):
			case err != nil:
				return err
			default:
				printStopResult(cmd, stopResult)
			}
			result, err := ctx.startDaemon(cmd, logLevel)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Daemon started (pid %d)\n", result.PID)
			return nil
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for the launched daemon")
	return cmd
}

func printStopResult(cmd *cobra.Command, result daemonctl.StopResult) {
	if result.ForcedKill {
		fmt.Fprintf(cmd.OutOrStdout(), "Daemon did not exit in time; killed pid %d\n", result.PID)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Daemon stopped (pid %d)\n", result.PID)
}

func (c *commandContext) startDaemon(cmd *cobra.Command, logLevel string) (daemonctl.StartResult, error) {
	bind, token, err := c.apiAddress()
	if err != nil {
		return daemonctl.StartResult{}, err
	}
	client, err := apiclient.New(bind, token)
	if err != nil {
		return daemonctl.StartResult{}, err
	}
	exe, err := os.Executable()
	if err != nil {
		return daemonctl.StartResult{}, fmt.Errorf("resolve executable: %w", err)
	}
	var configPath string
	if c.configFlag != nil {
		configPath = strings.TrimSpace(*c.configFlag)
	}
	return daemonctl.EnsureStarted(cmd.Context(), client, exe, daemonctl.LaunchOptions{
		ConfigPath: configPath,
		APIBind:    bind,
		LogLevel:   logLevel,
	}, startWaitTimeout)
}

func (c *commandContext) stopDaemon(cmd *cobra.Command) (daemonctl.StopResult, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return daemonctl.StopResult{}, err
	}
	bind, token, err := c.apiAddress()
	if err != nil {
		return daemonctl.StopResult{}, err
	}
	client, err := apiclient.New(bind, token)
	if err != nil {
		return daemonctl.StopResult{}, err
	}
	return daemonctl.StopAndTerminate(cmd.Context(), client, cfg.PIDPath(), cfg.LockPath(), stopGracePeriod)
}
