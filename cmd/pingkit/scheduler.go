package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/thediveo/enumflag/v2"

	"github.com/vcf-tools/pingkit/internal/reconcile"
	"github.com/vcf-tools/pingkit/internal/scheduler"
	"github.com/vcf-tools/pingkit/internal/scheduler/api"
)

const pidFile = "vm_ping_scheduler.pid"

// IntervalUnit is the enum flag value for --unit.
type IntervalUnit enumflag.Flag

const (
	Minutes IntervalUnit = iota
	Hours
	Days
)

var IntervalUnitIds = map[IntervalUnit][]string{
	Minutes: {scheduler.UnitMinutes},
	Hours:   {scheduler.UnitHours},
	Days:    {scheduler.UnitDays},
}

func (u IntervalUnit) String() string {
	return IntervalUnitIds[u][0]
}

func newSchedulerCmd() *cobra.Command {
	schedCmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Manage the recurring ping monitoring schedule",
	}

	schedCmd.AddCommand(newSchedulerStartCmd())
	schedCmd.AddCommand(newSchedulerStopCmd())
	schedCmd.AddCommand(newSchedulerStatusCmd())
	schedCmd.AddCommand(newSchedulerRunNowCmd())
	schedCmd.AddCommand(newSchedulerConfigureCmd())

	return schedCmd
}

// scheduledRun builds a fresh reconciliation session for every trigger so
// each batch sees the current token and state file.
func scheduledRun(ctx context.Context, names []string, force bool) (*reconcile.Summary, error) {
	driver, err := newSession(toolCfg)
	if err != nil {
		return nil, err
	}
	return driver.Run(ctx, names, force)
}

func newSchedulerStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the scheduler daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sched := scheduler.New(toolCfg.ScheduleFile, pidFile, scheduledRun)
			if err := sched.Start(ctx); err != nil {
				return err
			}

			srv := api.NewServer(toolCfg.StatusAPIPort, sched)
			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start(ctx)
			}()

			select {
			case <-ctx.Done():
				log.Info("Shutdown signal received")
			case err := <-errCh:
				if err != nil {
					log.WithError(err).Error("Status API server exited")
				}
			}

			return sched.Stop()
		},
	}
}

func newSchedulerStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running scheduler daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return scheduler.SignalStop(pidFile)
		},
	}
}

func newSchedulerStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the schedule configuration and daemon state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := scheduler.LoadConfig(toolCfg.ScheduleFile)

			running := "not running"
			if pid, err := scheduler.ReadPID(pidFile); err == nil {
				running = fmt.Sprintf("running (pid %d)", pid)
			}

			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to render schedule config: %w", err)
			}

			fmt.Printf("Scheduler: %s\n%s\n", running, data)
			return nil
		},
	}
}

func newSchedulerRunNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-now",
		Short: "Trigger the scheduled batch immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Prefer handing the run to a live daemon so its schedule
			// record gets updated; fall back to a direct run.
			if summary, err := runViaDaemon(); err == nil {
				fmt.Printf("Processed %d VMs, applied %d updates\n",
					summary.TotalFound, summary.UpdatesApplied)
				return nil
			}

			log.Debug("No reachable scheduler daemon, running batch directly")

			cfg := scheduler.LoadConfig(toolCfg.ScheduleFile)
			summary, err := scheduledRun(cmd.Context(), cfg.VMNames, cfg.ForceUpdate)
			if err != nil {
				return err
			}

			fmt.Printf("Processed %d VMs, applied %d updates in %s\n",
				summary.TotalFound, summary.UpdatesApplied, summary.Elapsed.Round(time.Millisecond))
			return nil
		},
	}
}

func runViaDaemon() (*reconcile.Summary, error) {
	client := &http.Client{Timeout: 10 * time.Minute}
	url := fmt.Sprintf("http://127.0.0.1:%d/api/v1/run", toolCfg.StatusAPIPort)

	resp, err := client.Post(url, "application/json", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon run request returned status %d", resp.StatusCode)
	}

	var summary reconcile.Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, fmt.Errorf("failed to decode daemon run response: %w", err)
	}
	return &summary, nil
}

func newSchedulerConfigureCmd() *cobra.Command {
	var (
		every   int
		unit    IntervalUnit = Days
		cron    string
		names   []string
		all     bool
		force   bool
		enable  bool
		disable bool
	)

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Update the persisted schedule configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if enable && disable {
				return fmt.Errorf("--enable and --disable are mutually exclusive")
			}
			if len(names) > 0 && all {
				return fmt.Errorf("--vm-name and --all-vms are mutually exclusive")
			}

			cfg := scheduler.LoadConfig(toolCfg.ScheduleFile)

			if cmd.Flags().Changed("every") {
				cfg.ScheduleType = scheduler.ScheduleInterval
				cfg.IntervalValue = every
			}
			if cmd.Flags().Changed("unit") {
				cfg.IntervalUnit = unit.String()
			}
			if cmd.Flags().Changed("cron") {
				cfg.ScheduleType = scheduler.ScheduleCron
				cfg.CronExpression = cron
			}
			if cmd.Flags().Changed("vm-name") {
				cfg.VMNames = names
			}
			if all {
				cfg.VMNames = nil
			}
			if cmd.Flags().Changed("force") {
				cfg.ForceUpdate = force
			}
			if enable {
				cfg.Enabled = true
			}
			if disable {
				cfg.Enabled = false
			}

			if cfg.Enabled {
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			cfg.Save(toolCfg.ScheduleFile)
			fmt.Println("Schedule configuration saved")
			return nil
		},
	}

	cmd.Flags().IntVar(&every, "every", 1, "Interval value")
	cmd.Flags().Var(
		enumflag.New(&unit, "unit", IntervalUnitIds, enumflag.EnumCaseInsensitive),
		"unit", "Interval unit: minutes, hours or days")
	cmd.Flags().StringVar(&cron, "cron", "", "Cron expression (stored, not executed)")
	cmd.Flags().StringSliceVar(&names, "vm-name", nil, "VM names to target")
	cmd.Flags().BoolVar(&all, "all-vms", false, "Target all VMs")
	cmd.Flags().BoolVar(&force, "force", false, "Force update on every scheduled run")
	cmd.Flags().BoolVar(&enable, "enable", false, "Enable the schedule")
	cmd.Flags().BoolVar(&disable, "disable", false, "Disable the schedule")

	return cmd
}
