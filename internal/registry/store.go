package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lengoman/grpc-hub/internal/huberr"
)

// errNotFoundLocal is the sentinel wrapped into huberr.NotFound errors by
// every lookup in this package.
var errNotFoundLocal = huberr.ErrNotFound

// Publisher is the minimal surface the Store needs from the event bus.
// Kept as an interface (rather than a concrete *eventbus.Bus import) so
// the store package has no dependency on the bus's transport concerns,
// mirroring the teacher's registry.OnChange callback decoupling.
type Publisher interface {
	Publish(Event)
}

// noopPublisher discards events; used when a Store is constructed
// without a bus (tests, or standalone use).
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// Filter narrows List to records matching non-empty fields.
type Filter struct {
	Name    string
	Version string
}

// Store is the thread-safe, in-memory registry of ServiceRecords. All
// mutations hold an exclusive lock; reads take a shared lock or copy
// under a brief exclusive lock, per SPEC_FULL §4.1.
type Store struct {
	mu   sync.RWMutex
	byID map[string]*Record
	// order preserves insertion order of the *current* records for List.
	order []string
	byKey map[key]string // (name,address,port) -> service_id, for replacement detection
	// cursor is the per-service-name round-robin cursor (§3 "Round-robin
	// cursor"). It advances on every successful lookup_for_dispatch of
	// that name and is taken modulo the eligible-record count at query
	// time, not stored modulo anything.
	cursor map[string]uint64

	pub Publisher
}

// New creates an empty Store. pub may be nil, in which case events are
// discarded (useful in unit tests that only exercise store invariants).
func New(pub Publisher) *Store {
	if pub == nil {
		pub = noopPublisher{}
	}
	return &Store{
		byID:   make(map[string]*Record),
		byKey:  make(map[key]string),
		cursor: make(map[string]uint64),
		pub:    pub,
	}
}

// Register assigns a fresh service_id, stamps timestamps, sets status
// online, and inserts the record. If (name, address, port) matches an
// existing record, that record is replaced in place and its old id is
// retired — the replacement is never surfaced as an error (§7 Conflict).
func (s *Store) Register(name, version, fqName, address, port string, methods []Method, metadata map[string]string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("service_name is required")
	}
	if address == "" {
		return "", fmt.Errorf("address is required")
	}
	if port == "" {
		return "", fmt.Errorf("port is required")
	}
	if fqName == "" {
		fqName = name
	}

	now := time.Now()
	id := uuid.New().String()
	rec := &Record{
		ServiceID:      id,
		ServiceName:    name,
		ServiceVersion: version,
		FQServiceName:  fqName,
		Address:        address,
		Port:           port,
		Methods:        append([]Method(nil), methods...),
		Metadata:       copyMeta(metadata),
		RegisteredAt:   now,
		LastHeartbeat:  now,
		Status:         StatusOnline,
	}
	k := keyOf(rec)

	s.mu.Lock()
	if oldID, exists := s.byKey[k]; exists {
		s.removeLocked(oldID)
	}
	s.byID[id] = rec
	s.byKey[k] = id
	s.order = append(s.order, id)
	s.mu.Unlock()

	s.pub.Publish(Event{Type: EventServiceRegistered, Record: rec.Clone()})
	return id, nil
}

// Unregister removes a record atomically and emits service_unregistered.
func (s *Store) Unregister(serviceID string) error {
	s.mu.Lock()
	if _, ok := s.byID[serviceID]; !ok {
		s.mu.Unlock()
		return huberr.New(huberr.NotFound, "Unregister", fmt.Errorf("service_id %q: %w", serviceID, errNotFoundLocal))
	}
	s.removeLocked(serviceID)
	s.mu.Unlock()

	s.pub.Publish(Event{Type: EventServiceUnregistered, ServiceID: serviceID})
	return nil
}

// removeLocked deletes a record's id from every index. Caller must hold s.mu.
func (s *Store) removeLocked(id string) {
	rec, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)
	delete(s.byKey, keyOf(rec))
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(serviceID string) (*Record, error) {
	s.mu.RLock()
	rec, ok := s.byID[serviceID]
	s.mu.RUnlock()
	if !ok {
		return nil, huberr.New(huberr.NotFound, "Get", fmt.Errorf("service_id %q: %w", serviceID, errNotFoundLocal))
	}
	return rec.Clone(), nil
}

// List returns a snapshot of records matching filt, in insertion order.
func (s *Store) List(filt Filter) []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Record, 0, len(s.order))
	for _, id := range s.order {
		rec := s.byID[id]
		if filt.Name != "" && rec.ServiceName != filt.Name {
			continue
		}
		if filt.Version != "" && rec.ServiceVersion != filt.Version {
			continue
		}
		out = append(out, rec.Clone())
	}
	return out
}

// LookupForDispatch returns one dispatchable (non-offline) record for
// name, chosen by the per-name round-robin cursor, or false if none
// qualify. The eligibility snapshot and the cursor advance are taken
// under the same lock so two concurrent callers never race past each
// other onto the same instance when alternation is possible (§4.1
// Concurrency).
func (s *Store) LookupForDispatch(name string) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var eligible []*Record
	for _, id := range s.order {
		rec := s.byID[id]
		if rec.ServiceName == name && rec.Dispatchable() {
			eligible = append(eligible, rec)
		}
	}
	if len(eligible) == 0 {
		return nil, false
	}

	idx := s.cursor[name] % uint64(len(eligible))
	s.cursor[name] = s.cursor[name] + 1
	return eligible[idx].Clone(), true
}

// Heartbeat updates last_heartbeat to now and, if status is non-empty,
// applies the status transition, emitting status_change iff the status
// actually changed. Self-transitions never emit.
func (s *Store) Heartbeat(serviceID string, status Status) error {
	s.mu.Lock()
	rec, ok := s.byID[serviceID]
	if !ok {
		s.mu.Unlock()
		return huberr.New(huberr.NotFound, "Heartbeat", fmt.Errorf("service_id %q: %w", serviceID, errNotFoundLocal))
	}
	rec.LastHeartbeat = time.Now()
	prev, changed := applyTransition(rec, status)
	s.mu.Unlock()

	if changed {
		s.pub.Publish(Event{Type: EventStatusChange, ServiceID: serviceID, PrevStatus: prev, NextStatus: rec.Status})
	}
	return nil
}

// SetStatus performs a deliberate external status change with the same
// transition rules and emission policy as Heartbeat, without touching
// last_heartbeat.
func (s *Store) SetStatus(serviceID string, status Status) error {
	s.mu.Lock()
	rec, ok := s.byID[serviceID]
	if !ok {
		s.mu.Unlock()
		return huberr.New(huberr.NotFound, "SetStatus", fmt.Errorf("service_id %q: %w", serviceID, errNotFoundLocal))
	}
	prev, changed := applyTransition(rec, status)
	s.mu.Unlock()

	if changed {
		s.pub.Publish(Event{Type: EventStatusChange, ServiceID: serviceID, PrevStatus: prev, NextStatus: rec.Status})
	}
	return nil
}

// MarkOfflineIfStale is called only by the liveness monitor. It holds
// the store lock only for the transition itself (§4.2: "must not hold
// the store lock for the entire sweep" — the monitor calls this once
// per record, not once for the whole pass).
func (s *Store) MarkOfflineIfStale(serviceID string, threshold time.Duration, now time.Time) (changed bool, prev Status) {
	s.mu.Lock()
	rec, ok := s.byID[serviceID]
	if !ok {
		s.mu.Unlock()
		return false, ""
	}
	if rec.Status == StatusOffline || now.Sub(rec.LastHeartbeat) <= threshold {
		s.mu.Unlock()
		return false, ""
	}
	prev = rec.Status
	rec.Status = StatusOffline
	s.mu.Unlock()

	s.pub.Publish(Event{Type: EventStatusChange, ServiceID: serviceID, PrevStatus: prev, NextStatus: StatusOffline})
	return true, prev
}

// Snapshot returns every record's id and last_heartbeat, used by the
// liveness monitor to decide what to sweep without holding the store
// lock for the whole pass.
func (s *Store) Snapshot() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

// applyTransition applies the status state machine in SPEC_FULL §4.1.
// Caller must hold s.mu. Returns the previous status and whether it
// actually changed (self-transitions return changed=false).
func applyTransition(rec *Record, next Status) (prev Status, changed bool) {
	prev = rec.Status
	if next == "" || next == prev {
		return prev, false
	}
	// Documented explicit transitions: online<->busy, offline->online
	// (via heartbeat/register). MarkOfflineIfStale, the staleness-driven
	// path to offline, bypasses this function. Any other explicit request
	// (e.g. busy->offline from a client) is also applied as a deliberate
	// external status change per SetStatus's contract; no transition is
	// rejected here.
	rec.Status = next
	return prev, true
}

func copyMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
