package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"convertd/internal/config"
	"convertd/internal/daemon"
	"convertd/internal/logging"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var dryRun bool
	var validateOnly bool

	rootCmd := &cobra.Command{
		Use:           "convertd",
		Short:         "Watches media directories and converts new video files",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, configFlag, dryRun, validateOnly)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Run one scan cycle, recording what would be converted without converting")
	rootCmd.Flags().BoolVar(&validateOnly, "validate-config", false, "Validate the configuration and exit")

	rootCmd.AddCommand(newConfigCommand(&configFlag))
	rootCmd.AddCommand(newStatusCommand(&configFlag))

	return rootCmd
}

func runDaemon(cmd *cobra.Command, configPath string, dryRun, validateOnly bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if validateOnly {
		fmt.Fprintln(cmd.OutOrStdout(), "configuration valid")
		return nil
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger, logCloser, err := logging.New(logging.Options{
		Level:    cfg.Daemon.LogLevel,
		FilePath: cfg.Daemon.LogFile,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()

	d, err := daemon.New(cfg, logger, dryRun)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if dryRun {
		return d.RunOnce(ctx)
	}
	return d.Run(ctx)
}
