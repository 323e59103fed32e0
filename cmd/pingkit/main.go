package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vcf-tools/pingkit/internal/config"
)

var (
	debug      bool
	configFile string

	vmNames    []string
	allVMs     bool
	force      bool
	noProgress bool

	toolCfg *config.ToolConfig
)

var rootCmd = &cobra.Command{
	Use:   "pingkit",
	Short: "Enable ping monitoring for VMs in VCF Operations",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		toolCfg = config.LoadToolConfig(configFile)

		level, err := log.ParseLevel(toolCfg.LogLevel)
		if err != nil {
			level = log.InfoLevel
		}
		log.SetLevel(level)
		if debug {
			log.SetLevel(log.DebugLevel)
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one reconciliation batch",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(vmNames) == 0 && !allVMs {
			return fmt.Errorf("specify --vm-name or --all-vms")
		}
		if len(vmNames) > 0 && allVMs {
			return fmt.Errorf("--vm-name and --all-vms are mutually exclusive")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		driver, err := newSession(toolCfg)
		if err != nil {
			return err
		}
		driver.ShowProgress = !noProgress

		summary, err := driver.Run(ctx, vmNames, force)
		if err != nil {
			return err
		}

		fmt.Printf("Processed %d VMs, applied %d updates in %s\n",
			summary.TotalFound, summary.UpdatesApplied, summary.Elapsed.Round(time.Millisecond))
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the suite API bearer token",
}

var tokenRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force acquisition of a fresh bearer token",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := newCredentialStore(toolCfg)
		if err != nil {
			return err
		}
		if _, err := store.Refresh(); err != nil {
			return err
		}
		fmt.Println("Bearer token refreshed")
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultToolFile, "Path to pingkit tool configuration")

	runCmd.Flags().StringSliceVar(&vmNames, "vm-name", nil, "One or more VM names to process")
	runCmd.Flags().BoolVar(&allVMs, "all-vms", false, "Process all VMs in the environment")
	runCmd.Flags().BoolVar(&force, "force", false, "Force update even if a VM was previously processed")
	runCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the terminal progress bar")

	tokenCmd.AddCommand(tokenRefreshCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(newSchedulerCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.WithError(err).Fatal("Command failed")
	}
}
