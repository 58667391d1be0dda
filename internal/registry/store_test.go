package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) snapshot() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

func TestRegister_AssignsIDAndEmitsEvent(t *testing.T) {
	pub := &recordingPublisher{}
	s := New(pub)

	id, err := s.Register("dividend", "v1", "", "127.0.0.1", "9001", []Method{"GetDividendHistory"}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "dividend", rec.ServiceName)
	assert.Equal(t, "dividend", rec.FQServiceName, "fq_service_name defaults to service_name")
	assert.Equal(t, StatusOnline, rec.Status)

	events := pub.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, EventServiceRegistered, events[0].Type)
}

func TestRegister_ReplacesOnSameNameAddressPort(t *testing.T) {
	s := New(nil)

	id1, err := s.Register("dividend", "v1", "", "10.0.0.1", "9001", nil, nil)
	require.NoError(t, err)

	id2, err := s.Register("dividend", "v2", "", "10.0.0.1", "9001", nil, nil)
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)

	_, err = s.Get(id1)
	assert.Error(t, err, "the original record must be retired")

	rec, err := s.Get(id2)
	require.NoError(t, err)
	assert.Equal(t, "v2", rec.ServiceVersion)

	all := s.List(Filter{Name: "dividend"})
	assert.Len(t, all, 1, "replacement must not leave a duplicate behind")
}

func TestUnregister_RemovesRecordAndEmits(t *testing.T) {
	pub := &recordingPublisher{}
	s := New(pub)

	id, err := s.Register("svc", "", "", "10.0.0.1", "9001", nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.Unregister(id))

	_, err = s.Get(id)
	assert.Error(t, err)

	events := pub.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, EventServiceUnregistered, events[1].Type)
	assert.Equal(t, id, events[1].ServiceID)
}

func TestUnregister_UnknownIDIsNotFound(t *testing.T) {
	s := New(nil)
	err := s.Unregister("does-not-exist")
	assert.Error(t, err)
}

func TestLookupForDispatch_RoundRobinsAcrossInstances(t *testing.T) {
	s := New(nil)
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := s.Register("svc", "", "", "10.0.0.1", string(rune('1'+i)), nil, nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	seen := map[string]bool{}
	for i := 0; i < len(ids); i++ {
		rec, ok := s.LookupForDispatch("svc")
		require.True(t, ok)
		seen[rec.ServiceID] = true
	}
	assert.Len(t, seen, len(ids), "one full cycle must touch every dispatchable instance exactly once")
}

func TestLookupForDispatch_SkipsOffline(t *testing.T) {
	s := New(nil)
	onlineID, err := s.Register("svc", "", "", "10.0.0.1", "9001", nil, nil)
	require.NoError(t, err)
	offlineID, err := s.Register("svc", "", "", "10.0.0.2", "9001", nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.SetStatus(offlineID, StatusOffline))

	for i := 0; i < 5; i++ {
		rec, ok := s.LookupForDispatch("svc")
		require.True(t, ok)
		assert.Equal(t, onlineID, rec.ServiceID)
	}
}

func TestLookupForDispatch_NoneEligibleReturnsFalse(t *testing.T) {
	s := New(nil)
	_, ok := s.LookupForDispatch("nothing-registered")
	assert.False(t, ok)
}

func TestHeartbeat_SelfTransitionDoesNotEmit(t *testing.T) {
	pub := &recordingPublisher{}
	s := New(pub)
	id, err := s.Register("svc", "", "", "10.0.0.1", "9001", nil, nil)
	require.NoError(t, err)

	pub.mu.Lock()
	pub.events = nil
	pub.mu.Unlock()

	require.NoError(t, s.Heartbeat(id, StatusOnline))
	assert.Empty(t, pub.snapshot(), "online->online must not emit status_change")
}

func TestHeartbeat_StatusChangeEmits(t *testing.T) {
	pub := &recordingPublisher{}
	s := New(pub)
	id, err := s.Register("svc", "", "", "10.0.0.1", "9001", nil, nil)
	require.NoError(t, err)

	pub.mu.Lock()
	pub.events = nil
	pub.mu.Unlock()

	require.NoError(t, s.Heartbeat(id, StatusBusy))
	events := pub.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, EventStatusChange, events[0].Type)
	assert.Equal(t, StatusOnline, events[0].PrevStatus)
	assert.Equal(t, StatusBusy, events[0].NextStatus)
}

func TestMarkOfflineIfStale(t *testing.T) {
	pub := &recordingPublisher{}
	s := New(pub)
	id, err := s.Register("svc", "", "", "10.0.0.1", "9001", nil, nil)
	require.NoError(t, err)

	future := time.Now().Add(time.Hour)
	changed, prev := s.MarkOfflineIfStale(id, 30*time.Second, future)
	assert.True(t, changed)
	assert.Equal(t, StatusOnline, prev)

	rec, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, rec.Status)

	changed, _ = s.MarkOfflineIfStale(id, 30*time.Second, future.Add(time.Hour))
	assert.False(t, changed, "already-offline records are not re-marked")
}

func TestConcurrentRegisterIsRaceFree(t *testing.T) {
	s := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.Register("svc", "", "", "10.0.0.1", string(rune(i)), nil, nil)
		}(i)
	}
	wg.Wait()
}
