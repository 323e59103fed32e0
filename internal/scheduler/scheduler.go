package scheduler

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vcf-tools/pingkit/internal/reconcile"
)

// RunFunc executes one batch. The daemon builds a fresh reconciliation
// session per trigger so each run picks up the current token and state.
type RunFunc func(ctx context.Context, names []string, force bool) (*reconcile.Summary, error)

// Scheduler triggers the batch on the configured interval. Only one batch
// runs at a time; a trigger that fires while the previous batch is still
// going is skipped.
type Scheduler struct {
	configPath string
	pidPath    string
	run        RunFunc

	config      *Config
	configMutex sync.Mutex

	stopChan     chan struct{}
	wg           sync.WaitGroup
	isRunning    bool
	runningMutex sync.Mutex
	jobMutex     sync.Mutex
}

// New creates a scheduler over the given schedule config file.
func New(configPath, pidPath string, run RunFunc) *Scheduler {
	return &Scheduler{
		configPath: configPath,
		pidPath:    pidPath,
		run:        run,
		config:     LoadConfig(configPath),
	}
}

// Config returns a copy of the current schedule record. The copy keeps
// status API reads safe against the trigger goroutine's run-time updates.
func (s *Scheduler) Config() Config {
	s.configMutex.Lock()
	defer s.configMutex.Unlock()
	return *s.config
}

// stampRun updates the run timestamps under the config lock and persists
// the record. A nil next leaves NextRun untouched.
func (s *Scheduler) stampRun(last time.Time, next *time.Time) {
	s.configMutex.Lock()
	defer s.configMutex.Unlock()
	s.config.LastRun = &last
	if next != nil {
		s.config.NextRun = next
	}
	s.config.Save(s.configPath)
}

// Start begins the recurring trigger loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.runningMutex.Lock()
	defer s.runningMutex.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	if !s.config.Enabled {
		return fmt.Errorf("schedule is disabled; enable it with the configure command")
	}
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid schedule configuration: %w", err)
	}

	interval, err := s.config.Interval()
	if err != nil {
		return err
	}

	if err := s.writePIDFile(); err != nil {
		return err
	}

	s.stopChan = make(chan struct{})
	s.isRunning = true

	next := time.Now().Add(interval)
	s.configMutex.Lock()
	s.config.NextRun = &next
	s.config.Save(s.configPath)
	s.configMutex.Unlock()

	log.WithFields(log.Fields{
		"interval": interval.String(),
		"next_run": next.Format(time.RFC3339),
	}).Info("🚀 Starting ping monitoring scheduler")

	s.wg.Add(1)
	go s.loop(ctx, interval)

	return nil
}

// Stop shuts the trigger loop down and removes the PID file.
func (s *Scheduler) Stop() error {
	s.runningMutex.Lock()
	defer s.runningMutex.Unlock()

	if !s.isRunning {
		return fmt.Errorf("scheduler is not running")
	}

	log.Info("🛑 Stopping ping monitoring scheduler")

	close(s.stopChan)
	s.wg.Wait()
	s.isRunning = false

	s.removePIDFile()
	return nil
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.trigger(ctx, interval)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context, interval time.Duration) {
	if !s.jobMutex.TryLock() {
		log.Warn("Previous batch still running, skipping this trigger")
		return
	}
	defer s.jobMutex.Unlock()

	now := time.Now()
	next := now.Add(interval)
	s.stampRun(now, &next)

	cfg := s.Config()
	if _, err := s.run(ctx, cfg.VMNames, cfg.ForceUpdate); err != nil {
		log.WithError(err).Error("Scheduled batch failed")
	}
}

// RunNow executes one batch immediately with the configured targets,
// outside the ticker cadence.
func (s *Scheduler) RunNow(ctx context.Context) (*reconcile.Summary, error) {
	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()

	log.Info("Running scheduled batch on demand")

	s.stampRun(time.Now(), nil)

	cfg := s.Config()
	return s.run(ctx, cfg.VMNames, cfg.ForceUpdate)
}

func (s *Scheduler) writePIDFile() error {
	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(s.pidPath, []byte(pid), 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", s.pidPath, err)
	}
	return nil
}

func (s *Scheduler) removePIDFile() {
	if err := os.Remove(s.pidPath); err != nil && !os.IsNotExist(err) {
		log.WithError(err).WithField("path", s.pidPath).Warn("Failed to remove PID file")
	}
}

// ReadPID returns the PID recorded by a running daemon, if any.
func ReadPID(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("failed to parse PID file %s: %w", pidPath, err)
	}
	return pid, nil
}

// SignalStop sends SIGTERM to the daemon recorded in the PID file.
func SignalStop(pidPath string) error {
	pid, err := ReadPID(pidPath)
	if err != nil {
		return fmt.Errorf("no running scheduler found: %w", err)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find scheduler process %d: %w", pid, err)
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal scheduler process %d: %w", pid, err)
	}

	log.WithField("pid", pid).Info("Stop signal sent to scheduler")
	return nil
}
