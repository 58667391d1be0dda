// Package registry provides the in-memory service registry: the
// canonical mapping of service identities to records, the status state
// machine, heartbeat/expiry discipline, and per-service-name
// round-robin dispatch selection.
package registry

import "time"

// Status is a ServiceRecord's liveness state.
type Status string

const (
	// StatusOnline means the record is eligible for dispatch and has
	// reported a recent heartbeat.
	StatusOnline Status = "online"
	// StatusBusy is purely advisory: set only by an explicit client
	// report, never inferred by the hub from concurrency.
	StatusBusy Status = "busy"
	// StatusOffline means the record failed its liveness sweep, or an
	// explicit status report set it offline.
	StatusOffline Status = "offline"
)

// Method is a single method descriptor string as advertised at
// registration time, e.g. "GetDividendHistory(GetDividendHistoryRequest)".
type Method = string

// Record is the atomic unit of the registry: one service instance.
type Record struct {
	ServiceID      string `json:"service_id"`
	ServiceName    string `json:"service_name"`
	ServiceVersion string `json:"service_version"`
	// FQServiceName is the fully-qualified gRPC service name (e.g.
	// "dividend_service.DividendService") used by the Dynamic Proxy to
	// resolve methods via reflection. Defaults to ServiceName when the
	// registrant does not supply one explicitly (see SPEC_FULL §3).
	FQServiceName string            `json:"fq_service_name"`
	Address       string            `json:"address"`
	Port          string            `json:"port"` // textual, per the source's wire contract (see §9: "Port as text")
	Methods       []Method          `json:"methods"`
	Metadata      map[string]string `json:"metadata"`
	RegisteredAt  time.Time         `json:"registered_at"`
	LastHeartbeat time.Time         `json:"last_heartbeat"`
	Status        Status            `json:"status"`
}

// Clone returns a deep-enough copy safe to hand to a caller outside the
// store's lock (mirrors the teacher's registry.Snapshot pattern of
// copying each *Service by value before returning it).
func (r *Record) Clone() *Record {
	cp := *r
	if r.Methods != nil {
		cp.Methods = append([]Method(nil), r.Methods...)
	}
	if r.Metadata != nil {
		cp.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// Dispatchable reports whether the record may be returned by
// lookup_for_dispatch — any status other than offline.
func (r *Record) Dispatchable() bool {
	return r.Status != StatusOffline
}

// key is the (service_name, address, port) triple the store uses to
// detect re-registration and replace the prior record in place.
type key struct {
	name, address, port string
}

func keyOf(r *Record) key {
	return key{name: r.ServiceName, address: r.Address, port: r.Port}
}
