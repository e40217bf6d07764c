package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"agentwatch/internal/client"
	"agentwatch/internal/daemon"
	"agentwatch/internal/singleinstance"
)

var (
	flagConfig     string
	flagPort       int
	flagAdminToken string
	flagJSON       bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentwatchd",
		Short: "Observe terminal-multiplexer sessions hosting AI coding agents",
		Long: `agentwatchd watches tmux/Windows Terminal sessions for AI coding agent
activity, detects context-compaction and escalation events, and serves the
resulting model over stdio, WebSocket, and HTTP.

Running with no subcommand starts the daemon in the foreground.`,
		RunE: runStart,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file")
	root.PersistentFlags().IntVar(&flagPort, "port", 3848, "HTTP port used by client subcommands")
	root.PersistentFlags().StringVar(&flagAdminToken, "admin-token", "", "admin token for client subcommands")
	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "print client subcommand output as JSON")

	root.Flags().String("log-level", "", "log level override (trace/debug/info/warn/error)")
	root.Flags().String("log-format", "", "log format override (text/json)")
	root.Flags().String("stdio-pipe", "", "pipe/socket path for the stdio transport")
	root.Flags().Int("ws-port", 3849, "WebSocket port (0 disables)")
	root.Flags().Int("http-port", 3848, "HTTP port (0 disables)")
	root.Flags().Bool("no-single-instance", false, "skip the single-instance lock (testing only)")

	root.AddCommand(
		newStopCmd(),
		newHealthCmd(),
		newStatusCmd(),
		newEventsCmd(),
		newConfigCmd(),
		newSelfTestCmd(),
	)
	return root
}

func runStart(cmd *cobra.Command, args []string) error {
	logLevel, _ := cmd.Flags().GetString("log-level")
	logFormat, _ := cmd.Flags().GetString("log-format")
	pipePath, _ := cmd.Flags().GetString("stdio-pipe")
	wsPort, _ := cmd.Flags().GetInt("ws-port")
	httpPort, _ := cmd.Flags().GetInt("http-port")
	noSingleInstance, _ := cmd.Flags().GetBool("no-single-instance")

	app, err := daemon.Build(daemon.Options{
		ConfigPath:       flagConfig,
		PipePath:         pipePath,
		WSPort:           wsPort,
		HTTPPort:         httpPort,
		NoSingleInstance: noSingleInstance,
		LogLevel:         logLevel,
		LogFormat:        logFormat,
	})
	if err != nil {
		return fmt.Errorf("build daemon: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	app.Logger.Info("shutdown requested")
	return app.Shutdown(5 * time.Second)
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath := singleinstance.RuntimeDir() + "/" + singleinstance.DefaultMutexName() + ".pid"
			raw, err := os.ReadFile(pidPath)
			if err != nil {
				return fmt.Errorf("no running daemon found (%s): %w", pidPath, err)
			}
			pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
			if err != nil {
				return fmt.Errorf("invalid pid file %s: %w", pidPath, err)
			}
			proc, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("find process %d: %w", pid, err)
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("signal process %d: %w", pid, err)
			}
			fmt.Printf("sent SIGTERM to agentwatchd (pid %d)\n", pid)
			return nil
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check daemon liveness",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := rpcClient()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.Healthz(ctx); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show a summary of tracked sessions and panes",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := call(cmd, "stats.summary", nil, &out); err != nil {
				return err
			}
			return printResult(cmd, out)
		},
	}
}

func newEventsCmd() *cobra.Command {
	var limit int
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "List recent detected events",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			params := map[string]any{}
			if limit > 0 {
				params["limit"] = limit
			}
			if err := call(cmd, "events.list", params, &out); err != nil {
				return err
			}
			return printResult(cmd, out)
		},
	}
	eventsCmd.Flags().IntVar(&limit, "limit", 50, "maximum number of events to return")
	return eventsCmd
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the daemon's current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := call(cmd, "config.get", nil, &out); err != nil {
				return err
			}
			return printResult(cmd, out)
		},
	}
}

func newSelfTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "self-test",
		Short: "Run the daemon's internal diagnostics self-test",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := call(cmd, "debug.selfTest", nil, &out); err != nil {
				return err
			}
			return printResult(cmd, out)
		},
	}
}

func rpcClient() *client.Client {
	return client.New(fmt.Sprintf("127.0.0.1:%d", flagPort), flagAdminToken)
}

func call(cmd *cobra.Command, method string, params, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return rpcClient().Call(ctx, method, params, out)
}

func printResult(cmd *cobra.Command, out map[string]any) error {
	if flagJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	for k, v := range out {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", k, v)
	}
	return nil
}
