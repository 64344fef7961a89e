package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternvc/lantern/pkg/types"
)

type fakeRunner struct {
	runs  atomic.Int32
	block chan struct{} // when set, Run waits until closed
}

func (f *fakeRunner) Run(ctx context.Context) error {
	f.runs.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func TestStartSync(t *testing.T) {
	store := newTestStore(t)
	runner := &fakeRunner{}
	h := NewSyncHandlers(runner, store)

	req := httptest.NewRequest(http.MethodPost, "/api/sync", nil)
	rec := httptest.NewRecorder()
	h.StartSync(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decodeJSON[SyncAcceptedResponse](t, rec)
	assert.NotEmpty(t, resp.RunID)

	// The run happens off the request goroutine.
	require.Eventually(t, func() bool {
		return runner.runs.Load() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestStartSync_ConflictWhileRunning(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// A run holds the gate.
	require.NoError(t, store.BeginRun(ctx))

	h := NewSyncHandlers(&fakeRunner{}, store)
	req := httptest.NewRequest(http.MethodPost, "/api/sync", nil)
	rec := httptest.NewRecorder()
	h.StartSync(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetSyncStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.BeginRun(ctx))
	require.NoError(t, store.SetSyncStage(ctx, "crm_sync"))

	h := NewSyncHandlers(&fakeRunner{}, store)
	req := httptest.NewRequest(http.MethodGet, "/api/sync/status", nil)
	rec := httptest.NewRecorder()
	h.GetSyncStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	state := decodeJSON[types.SyncState](t, rec)
	assert.Equal(t, types.SyncRunning, state.Status)
	assert.Equal(t, "crm_sync", state.Stage)
}
