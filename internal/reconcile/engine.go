// Package reconcile decides, per VM, whether the ping monitoring flag needs
// enabling, applies the minimal update, and records the outcome.
package reconcile

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vcf-tools/pingkit/internal/state"
	"github.com/vcf-tools/pingkit/internal/vcfops"
)

// Outcome is the result of one reconciliation pass over one VM.
type Outcome string

const (
	// OutcomeSkippedCached means a prior run already examined this VM and
	// force was not set; nothing was touched.
	OutcomeSkippedCached Outcome = "skipped_cached"
	// OutcomeSkippedAlreadyEnabled means the ping flag is already "true";
	// the processing record was refreshed.
	OutcomeSkippedAlreadyEnabled Outcome = "skipped_already_enabled"
	// OutcomeUpdated means the enable update was applied successfully.
	OutcomeUpdated Outcome = "updated"
	// OutcomeUpdateFailed means the update was attempted and the API
	// rejected it; the processing record was not touched.
	OutcomeUpdateFailed Outcome = "update_failed"
)

// Updated reports whether the outcome counts as an applied update.
func (o Outcome) Updated() bool {
	return o == OutcomeUpdated
}

// Gateway is the write surface the engine needs from the suite API client.
type Gateway interface {
	ApplyUpdate(ctx context.Context, vmID, name string, identifiers []vcfops.ResourceIdentifier) error
}

// Engine evaluates one VM at a time. It is stateless between calls; every
// decision derives from the resource, the force flag, and the state store.
type Engine struct {
	gateway Gateway
	store   *state.Store
}

// NewEngine creates a reconciliation engine.
func NewEngine(gateway Gateway, store *state.Store) *Engine {
	return &Engine{
		gateway: gateway,
		store:   store,
	}
}

// ReconcileVM runs the per-VM state machine. An update failure is logged
// and reported via the outcome, not as an error; the returned error covers
// only structurally unusable resources.
func (e *Engine) ReconcileVM(ctx context.Context, vm *vcfops.VMResource, force bool) (Outcome, error) {
	if err := vm.Validate(); err != nil {
		return "", fmt.Errorf("failed to reconcile resource: %w", err)
	}

	vmID := vm.Identifier
	vmName := vm.Name()

	if !force && e.store.Contains(vmID) {
		log.WithField("vm_name", vmName).Debug("Skipping VM, already processed")
		return OutcomeSkippedCached, nil
	}

	// A VM with no isPingEnabled entry at all is treated as already
	// compliant; the update API has nothing to flip for it.
	value, present := vm.PingEnabledValue()
	if !present || value == "true" {
		log.WithField("vm_name", vmName).Debug("No update needed, ping monitoring already enabled")
		e.store.Put(vmID, vmName, state.ActionAlreadyEnabled)
		return OutcomeSkippedAlreadyEnabled, nil
	}

	log.WithField("vm_name", vmName).Info("🔧 Enabling ping monitoring")

	if err := e.gateway.ApplyUpdate(ctx, vmID, vmName, vm.RequiredIdentifiers()); err != nil {
		log.WithError(err).WithField("vm_name", vmName).Error("Failed to update ping monitoring")
		return OutcomeUpdateFailed, nil
	}

	log.WithField("vm_name", vmName).Info("✅ Ping monitoring enabled")
	e.store.Put(vmID, vmName, state.ActionPingEnabled)
	return OutcomeUpdated, nil
}
