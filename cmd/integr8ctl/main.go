// Command integr8ctl is the thin CLI over the environment harness: `up`
// starts a persistent shared environment, `test` connects to one
// (starting it first if not already shared) and exits after the
// configured setup. Neither subcommand scaffolds code or generates
// test files — that belongs to framework-specific tooling, not this
// core.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/integr8/internal/config"
	"github.com/cuemby/integr8/internal/environment"
	"github.com/cuemby/integr8/internal/obslog"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "integr8ctl",
	Short:   "Integration test environment harness",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("integr8ctl version %s\nCommit: %s\n", Version, Commit))
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	upCmd.Flags().StringP("file", "f", "", "environment config file (required)")
	_ = upCmd.MarkFlagRequired("file")
	upCmd.Flags().Bool("fast", false, "skip readiness checks when reconnecting to an existing environment")

	testCmd.Flags().StringP("file", "f", "", "environment config file (required)")
	_ = testCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(upCmd, testCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	obslog.Init(obslog.Config{Level: obslog.Level(level), JSONOutput: jsonOutput})
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Start a persistent shared environment and wait for signals",
	RunE: func(cmd *cobra.Command, args []string) error {
		filename, _ := cmd.Flags().GetString("file")
		fast, _ := cmd.Flags().GetBool("fast")

		cfg, err := config.Load(filename)
		if err != nil {
			return err
		}

		env := environment.New(cfg)
		ctx := context.Background()

		fmt.Println("Starting environment...")
		if err := env.Start(ctx, fast); err != nil {
			return fmt.Errorf("environment start failed: %w", err)
		}
		fmt.Println("Environment running. Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nShutting down...")
		report, err := env.Stop(ctx)
		if err != nil {
			return fmt.Errorf("environment stop failed: %w", err)
		}
		if !report.Clean() {
			for _, f := range report.Leaked {
				fmt.Fprintf(os.Stderr, "leaked service %s: %v\n", f.Service, f.Err)
			}
		}
		fmt.Println("Shutdown complete")
		return nil
	},
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Connect to (or start) the environment and report readiness",
	RunE: func(cmd *cobra.Command, args []string) error {
		filename, _ := cmd.Flags().GetString("file")

		cfg, err := config.Load(filename)
		if err != nil {
			return err
		}

		env := environment.New(cfg)
		ctx := context.Background()

		if err := env.Start(ctx, false); err != nil {
			return fmt.Errorf("environment start failed: %w", err)
		}
		if !env.IsReady(ctx) {
			return fmt.Errorf("environment is not ready")
		}
		fmt.Println("Environment ready")
		return nil
	},
}
