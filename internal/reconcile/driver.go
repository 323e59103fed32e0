package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"

	"github.com/vcf-tools/pingkit/internal/progress"
	"github.com/vcf-tools/pingkit/internal/state"
	"github.com/vcf-tools/pingkit/internal/vcfops"
)

// checkpointEvery is how many applied updates pass between mid-batch state
// checkpoints.
const checkpointEvery = 10

// Fetcher is the read surface the driver needs from the suite API client.
type Fetcher interface {
	FetchAll(ctx context.Context) ([]vcfops.VMResource, error)
	FetchNamed(ctx context.Context, names []string) ([]vcfops.VMResource, error)
}

// Summary is the aggregate result of one batch run.
type Summary struct {
	RunID          string        `json:"run_id"`
	TotalFound     int           `json:"total_found"`
	UpdatesApplied int           `json:"updates_applied"`
	Elapsed        time.Duration `json:"elapsed"`
}

// Driver runs one batch: resolve the target VM list, reconcile each VM, and
// checkpoint the state store along the way.
type Driver struct {
	engine  *Engine
	fetcher Fetcher
	store   *state.Store

	// ShowProgress renders a terminal progress bar over the VM list.
	ShowProgress bool
}

// NewDriver creates a batch driver.
func NewDriver(engine *Engine, fetcher Fetcher, store *state.Store) *Driver {
	return &Driver{
		engine:  engine,
		fetcher: fetcher,
		store:   store,
	}
}

// Run executes one batch over the named VMs, or over all VMs when names is
// empty. One VM failing never aborts the batch, and the state store is
// checkpointed once more after the loop regardless of how it ended.
func (d *Driver) Run(ctx context.Context, names []string, force bool) (*Summary, error) {
	summary := &Summary{RunID: uuid.New().String()}
	start := time.Now()

	log.WithFields(log.Fields{
		"run_id":       summary.RunID,
		"force_update": force,
	}).Info("🚀 Starting VM ping monitoring batch")

	defer func() {
		d.store.Save()
		summary.Elapsed = time.Since(start)
		log.WithFields(log.Fields{
			"run_id":          summary.RunID,
			"total_found":     summary.TotalFound,
			"updates_applied": summary.UpdatesApplied,
			"elapsed":         summary.Elapsed.Round(time.Millisecond).String(),
		}).Info("Batch complete")
	}()

	vms, err := d.resolve(ctx, names)
	if err != nil {
		log.WithError(err).Error("Failed to fetch VM resources")
		return summary, err
	}

	summary.TotalFound = len(vms)
	if len(vms) == 0 {
		log.Warn("No VMs to process")
		return summary, nil
	}

	var bar *progressbar.ProgressBar
	if d.ShowProgress {
		bar = progress.CountProgressBar("Reconciling VMs", len(vms))
	}

	for i := range vms {
		vm := &vms[i]

		outcome, verr := d.engine.ReconcileVM(ctx, vm, force)
		if verr != nil {
			log.WithError(verr).WithField("vm_name", vm.Name()).Error("Error processing VM")
		} else if outcome.Updated() {
			summary.UpdatesApplied++
			if summary.UpdatesApplied%checkpointEvery == 0 {
				d.store.Save()
			}
		}

		if bar != nil {
			_ = bar.Add(1)
		}
	}

	return summary, nil
}

func (d *Driver) resolve(ctx context.Context, names []string) ([]vcfops.VMResource, error) {
	if len(names) == 0 {
		log.Info("Fetching all VMs")
		return d.fetcher.FetchAll(ctx)
	}

	log.WithField("vm_names", names).Info("Fetching specified VMs")
	return d.fetcher.FetchNamed(ctx, names)
}
