package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lengoman/grpc-hub/internal/registry"
)

func TestRun_MarksStaleRecordsOffline(t *testing.T) {
	store := registry.New(nil)
	id, err := store.Register("svc", "", "", "10.0.0.1", "9001", nil, nil)
	require.NoError(t, err)

	// Force the record stale immediately by using a near-zero threshold.
	mon := New(store, Config{Interval: 10 * time.Millisecond, OfflineAfter: time.Nanosecond}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go mon.Run(ctx)

	require.Eventually(t, func() bool {
		rec, err := store.Get(id)
		return err == nil && rec.Status == registry.StatusOffline
	}, 500*time.Millisecond, 10*time.Millisecond)
}

func TestRun_LeavesFreshRecordsAlone(t *testing.T) {
	store := registry.New(nil)
	id, err := store.Register("svc", "", "", "10.0.0.1", "9001", nil, nil)
	require.NoError(t, err)

	mon := New(store, Config{Interval: 10 * time.Millisecond, OfflineAfter: time.Hour}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	mon.Run(ctx)

	rec, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, registry.StatusOnline, rec.Status)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	store := registry.New(nil)
	mon := New(store, Config{Interval: time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mon.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after context cancellation")
	}
}
