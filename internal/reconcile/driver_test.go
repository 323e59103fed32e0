package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcf-tools/pingkit/internal/state"
	"github.com/vcf-tools/pingkit/internal/vcfops"
)

type fakeFetcher struct {
	all      []vcfops.VMResource
	fetchErr error
	named    map[string][]vcfops.VMResource
}

func (f *fakeFetcher) FetchAll(ctx context.Context) ([]vcfops.VMResource, error) {
	return f.all, f.fetchErr
}

func (f *fakeFetcher) FetchNamed(ctx context.Context, names []string) ([]vcfops.VMResource, error) {
	var out []vcfops.VMResource
	for _, name := range names {
		out = append(out, f.named[name]...)
	}
	return out, nil
}

func newTestDriver(t *testing.T, fetcher *fakeFetcher) (*Driver, *fakeGateway, *state.Store, string) {
	t.Helper()
	statePath := filepath.Join(t.TempDir(), "state.json")
	gateway := &fakeGateway{failFor: map[string]error{}}
	store := state.NewStore(statePath)
	driver := NewDriver(NewEngine(gateway, store), fetcher, store)
	return driver, gateway, store, statePath
}

func TestRunUpdatesAllStaleVMs(t *testing.T) {
	fetcher := &fakeFetcher{all: []vcfops.VMResource{
		*newTestVM("vm-1", "web01", "false"),
		*newTestVM("vm-2", "web02", "true"),
		*newTestVM("vm-3", "web03", "false"),
	}}
	driver, gateway, _, statePath := newTestDriver(t, fetcher)

	summary, err := driver.Run(context.Background(), nil, false)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalFound)
	assert.Equal(t, 2, summary.UpdatesApplied)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, []string{"vm-1", "vm-3"}, gateway.updates)

	// Terminal checkpoint wrote every record, including the skip.
	data, err := os.ReadFile(statePath)
	require.NoError(t, err)
	var snapshot map[string]state.Record
	require.NoError(t, json.Unmarshal(data, &snapshot))
	assert.Len(t, snapshot, 3)
}

func TestRunOneFailureDoesNotAbortBatch(t *testing.T) {
	fetcher := &fakeFetcher{all: []vcfops.VMResource{
		*newTestVM("vm-1", "web01", "false"),
		{}, // structurally unusable resource
		*newTestVM("vm-3", "web03", "false"),
	}}
	driver, gateway, _, statePath := newTestDriver(t, fetcher)

	summary, err := driver.Run(context.Background(), nil, false)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalFound)
	assert.Equal(t, 2, summary.UpdatesApplied)
	assert.Equal(t, []string{"vm-1", "vm-3"}, gateway.updates)

	_, statErr := os.Stat(statePath)
	assert.NoError(t, statErr)
}

func TestRunFetchFailureStillCheckpoints(t *testing.T) {
	fetcher := &fakeFetcher{fetchErr: fmt.Errorf("connection refused")}
	driver, _, store, statePath := newTestDriver(t, fetcher)
	store.Put("vm-old", "old01", state.ActionPingEnabled)

	summary, err := driver.Run(context.Background(), nil, false)
	require.Error(t, err)
	assert.Equal(t, 0, summary.TotalFound)

	data, rerr := os.ReadFile(statePath)
	require.NoError(t, rerr)
	var snapshot map[string]state.Record
	require.NoError(t, json.Unmarshal(data, &snapshot))
	assert.Len(t, snapshot, 1)
}

func TestRunEmptyListReturnsImmediately(t *testing.T) {
	fetcher := &fakeFetcher{}
	driver, gateway, _, statePath := newTestDriver(t, fetcher)

	summary, err := driver.Run(context.Background(), nil, false)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalFound)
	assert.Equal(t, 0, summary.UpdatesApplied)
	assert.Empty(t, gateway.updates)

	// The terminal checkpoint fires even for an empty batch.
	_, statErr := os.Stat(statePath)
	assert.NoError(t, statErr)
}

func TestRunNamedTargetsInOrder(t *testing.T) {
	fetcher := &fakeFetcher{named: map[string][]vcfops.VMResource{
		"web01": {*newTestVM("vm-1", "web01", "false")},
		"web02": {*newTestVM("vm-2", "web02", "false")},
	}}
	driver, gateway, _, _ := newTestDriver(t, fetcher)

	summary, err := driver.Run(context.Background(), []string{"web01", "web02"}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalFound)
	assert.Equal(t, []string{"vm-1", "vm-2"}, gateway.updates)
}

func TestRunSecondPassSkipsViaCache(t *testing.T) {
	fetcher := &fakeFetcher{all: []vcfops.VMResource{
		*newTestVM("vm-1", "web01", "false"),
	}}
	driver, gateway, _, _ := newTestDriver(t, fetcher)

	summary, err := driver.Run(context.Background(), nil, false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.UpdatesApplied)

	summary, err = driver.Run(context.Background(), nil, false)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.UpdatesApplied)
	assert.Equal(t, []string{"vm-1"}, gateway.updates)
}

func TestRunForceOverridesCache(t *testing.T) {
	fetcher := &fakeFetcher{all: []vcfops.VMResource{
		*newTestVM("vm-1", "web01", "false"),
	}}
	driver, gateway, _, _ := newTestDriver(t, fetcher)

	_, err := driver.Run(context.Background(), nil, false)
	require.NoError(t, err)

	summary, err := driver.Run(context.Background(), nil, true)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.UpdatesApplied)
	assert.Equal(t, []string{"vm-1", "vm-1"}, gateway.updates)
}
