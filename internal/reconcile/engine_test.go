package reconcile

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcf-tools/pingkit/internal/state"
	"github.com/vcf-tools/pingkit/internal/vcfops"
)

type fakeGateway struct {
	updates []string
	failFor map[string]error
}

func (g *fakeGateway) ApplyUpdate(ctx context.Context, vmID, name string, identifiers []vcfops.ResourceIdentifier) error {
	if err, ok := g.failFor[vmID]; ok {
		return err
	}
	g.updates = append(g.updates, vmID)
	return nil
}

func newTestVM(id, name, pingValue string) *vcfops.VMResource {
	return &vcfops.VMResource{
		Identifier: id,
		ResourceKey: vcfops.ResourceKey{
			Name:            name,
			AdapterKindKey:  vcfops.AdapterKindVMware,
			ResourceKindKey: vcfops.ResourceKindVirtualMach,
			ResourceIdentifiers: []vcfops.ResourceIdentifier{
				{IdentifierType: vcfops.IdentifierType{Name: vcfops.IdentifierPingEnabled}, Value: pingValue},
				{IdentifierType: vcfops.IdentifierType{Name: vcfops.IdentifierEntityName}, Value: name},
				{IdentifierType: vcfops.IdentifierType{Name: vcfops.IdentifierObjectID}, Value: "obj-" + id},
				{IdentifierType: vcfops.IdentifierType{Name: vcfops.IdentifierVCID}, Value: "vc-1"},
			},
		},
	}
}

func newTestEngine(t *testing.T) (*Engine, *fakeGateway, *state.Store) {
	t.Helper()
	gateway := &fakeGateway{failFor: map[string]error{}}
	store := state.NewStore(filepath.Join(t.TempDir(), "state.json"))
	return NewEngine(gateway, store), gateway, store
}

func TestReconcileAppliesUpdateWhenDisabled(t *testing.T) {
	engine, gateway, store := newTestEngine(t)
	vm := newTestVM("vm-1", "web01", "false")

	outcome, err := engine.ReconcileVM(context.Background(), vm, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.True(t, outcome.Updated())
	assert.Equal(t, []string{"vm-1"}, gateway.updates)

	record, ok := store.Get("vm-1")
	require.True(t, ok)
	assert.Equal(t, state.ActionPingEnabled, record.Action)
	assert.Equal(t, "web01", record.Name)
}

func TestReconcileSkipsAlreadyEnabled(t *testing.T) {
	engine, gateway, store := newTestEngine(t)
	vm := newTestVM("vm-1", "web01", "true")

	outcome, err := engine.ReconcileVM(context.Background(), vm, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedAlreadyEnabled, outcome)
	assert.Empty(t, gateway.updates)

	record, ok := store.Get("vm-1")
	require.True(t, ok)
	assert.Equal(t, state.ActionAlreadyEnabled, record.Action)
}

func TestReconcileAbsentPingEntryTreatedCompliant(t *testing.T) {
	engine, gateway, store := newTestEngine(t)
	vm := &vcfops.VMResource{
		Identifier:  "vm-1",
		ResourceKey: vcfops.ResourceKey{Name: "bare01"},
	}

	outcome, err := engine.ReconcileVM(context.Background(), vm, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedAlreadyEnabled, outcome)
	assert.Empty(t, gateway.updates)
	assert.True(t, store.Contains("vm-1"))
}

func TestReconcileIdempotentAcrossRuns(t *testing.T) {
	engine, gateway, _ := newTestEngine(t)
	vm := newTestVM("vm-1", "web01", "false")

	outcome, err := engine.ReconcileVM(context.Background(), vm, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)

	// Second pass with the same (still-stale) remote view: the cache wins,
	// no second write goes out.
	outcome, err = engine.ReconcileVM(context.Background(), vm, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedCached, outcome)
	assert.Equal(t, []string{"vm-1"}, gateway.updates)
}

func TestReconcileCachedSkipDoesNotTouchRecord(t *testing.T) {
	engine, _, store := newTestEngine(t)
	vm := newTestVM("vm-1", "web01", "false")

	_, err := engine.ReconcileVM(context.Background(), vm, false)
	require.NoError(t, err)
	before, _ := store.Get("vm-1")

	_, err = engine.ReconcileVM(context.Background(), vm, false)
	require.NoError(t, err)
	after, _ := store.Get("vm-1")
	assert.Equal(t, before, after)
}

func TestReconcileForceReevaluates(t *testing.T) {
	engine, gateway, store := newTestEngine(t)
	vm := newTestVM("vm-1", "web01", "false")

	_, err := engine.ReconcileVM(context.Background(), vm, false)
	require.NoError(t, err)
	first, _ := store.Get("vm-1")

	outcome, err := engine.ReconcileVM(context.Background(), vm, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, []string{"vm-1", "vm-1"}, gateway.updates)

	second, _ := store.Get("vm-1")
	assert.Equal(t, first.FirstProcessed, second.FirstProcessed)
	assert.True(t, !second.LastProcessed.Before(first.LastProcessed))
}

func TestReconcileUpdateFailureLeavesRecordUntouched(t *testing.T) {
	engine, gateway, store := newTestEngine(t)
	gateway.failFor["vm-1"] = fmt.Errorf("suite API returned status 500")
	vm := newTestVM("vm-1", "web01", "false")

	outcome, err := engine.ReconcileVM(context.Background(), vm, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdateFailed, outcome)
	assert.False(t, outcome.Updated())
	assert.False(t, store.Contains("vm-1"))

	// The next pass attempts the update again since nothing was recorded.
	gateway.failFor = map[string]error{}
	outcome, err = engine.ReconcileVM(context.Background(), vm, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
}

func TestReconcileRejectsUnusableResource(t *testing.T) {
	engine, gateway, _ := newTestEngine(t)
	vm := &vcfops.VMResource{}

	_, err := engine.ReconcileVM(context.Background(), vm, false)
	require.Error(t, err)
	assert.Empty(t, gateway.updates)
}
