// Package scheduler runs the ping monitoring batch on a recurring cadence.
package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

// Schedule types accepted in the configuration record. Cron expressions are
// stored for forward compatibility but interval is the only cadence this
// scheduler executes.
const (
	ScheduleInterval = "interval"
	ScheduleCron     = "cron"
)

// Interval units accepted in the configuration record.
const (
	UnitMinutes = "minutes"
	UnitHours   = "hours"
	UnitDays    = "days"
)

// Config is the persisted schedule record. The field names mirror the
// original deployment's schedule file so existing files keep working.
type Config struct {
	ScheduleType   string     `json:"schedule_type"`
	IntervalUnit   string     `json:"interval_unit"`
	IntervalValue  int        `json:"interval_value"`
	CronExpression string     `json:"cron_expression"`
	VMNames        []string   `json:"vm_names"`
	ForceUpdate    bool       `json:"force_update"`
	Enabled        bool       `json:"enabled"`
	LastRun        *time.Time `json:"last_run"`
	NextRun        *time.Time `json:"next_run"`
}

// DefaultConfig returns the schedule used when no configuration file exists:
// a disabled daily run over all VMs.
func DefaultConfig() *Config {
	return &Config{
		ScheduleType:   ScheduleInterval,
		IntervalUnit:   UnitDays,
		IntervalValue:  1,
		CronExpression: "0 0 * * *",
		Enabled:        false,
	}
}

// LoadConfig reads the schedule record, falling back to defaults when the
// file is missing or unreadable.
func LoadConfig(path string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).WithField("path", path).Warn("Failed to read schedule config, using defaults")
		}
		return DefaultConfig()
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		log.WithError(err).WithField("path", path).Warn("Malformed schedule config, using defaults")
		return DefaultConfig()
	}

	return cfg
}

// Save writes the schedule record. Failures are logged, not returned; a
// status update that cannot persist must not stop the daemon.
func (c *Config) Save(path string) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		log.WithError(err).Error("Failed to marshal schedule config")
		return
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		log.WithError(err).WithField("path", path).Error("Failed to save schedule config")
	}
}

// Interval converts the configured cadence to a duration.
func (c *Config) Interval() (time.Duration, error) {
	if c.IntervalValue <= 0 {
		return 0, fmt.Errorf("interval value must be positive, got %d", c.IntervalValue)
	}

	switch c.IntervalUnit {
	case UnitMinutes:
		return time.Duration(c.IntervalValue) * time.Minute, nil
	case UnitHours:
		return time.Duration(c.IntervalValue) * time.Hour, nil
	case UnitDays:
		return time.Duration(c.IntervalValue) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown interval unit %q", c.IntervalUnit)
	}
}

// Validate checks whether the record describes a runnable schedule.
func (c *Config) Validate() error {
	switch c.ScheduleType {
	case ScheduleInterval:
		_, err := c.Interval()
		return err
	case ScheduleCron:
		return fmt.Errorf("cron schedules are stored but not executed by this scheduler; use an interval schedule")
	default:
		return fmt.Errorf("unknown schedule type %q", c.ScheduleType)
	}
}
