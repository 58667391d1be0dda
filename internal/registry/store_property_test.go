package registry

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_RoundRobinVisitsEveryDispatchableInstance checks S4:
// over one full cycle of lookup_for_dispatch calls, every dispatchable
// instance of a service_name is returned exactly once, regardless of
// how many instances are registered.
func TestProperty_RoundRobinVisitsEveryDispatchableInstance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("round robin visits every instance exactly once per cycle", prop.ForAll(
		func(n int) bool {
			s := New(nil)
			ids := make(map[string]bool, n)
			for i := 0; i < n; i++ {
				id, err := s.Register("svc", "", "", "10.0.0.1", fmt.Sprintf("%d", i), nil, nil)
				if err != nil {
					return false
				}
				ids[id] = true
			}

			seen := make(map[string]int, n)
			for i := 0; i < n; i++ {
				rec, ok := s.LookupForDispatch("svc")
				if !ok {
					return false
				}
				seen[rec.ServiceID]++
			}

			if len(seen) != n {
				return false
			}
			for id := range ids {
				if seen[id] != 1 {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 12),
	))

	properties.TestingRun(t)
}

// TestProperty_ServiceIDsAreUnique checks property 1 (uniqueness): every successful register
// of a distinct (name, address, port) triple yields a distinct
// service_id, and the store never holds two records for the same
// triple.
func TestProperty_ServiceIDsAreUnique(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("distinct triples get distinct ids and no duplicates remain", prop.ForAll(
		func(n int) bool {
			s := New(nil)
			ids := make(map[string]bool, n)
			for i := 0; i < n; i++ {
				id, err := s.Register("svc", "", "", "10.0.0.1", fmt.Sprintf("%d", i), nil, nil)
				if err != nil || ids[id] {
					return false
				}
				ids[id] = true
			}
			return len(s.List(Filter{Name: "svc"})) == n
		},
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}

// TestProperty_ReplacementNeverDuplicates checks S2: re-registering the
// same (name, address, port) triple always replaces, never appends.
func TestProperty_ReplacementNeverDuplicates(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("repeated registration of the same triple never grows the store", prop.ForAll(
		func(times int) bool {
			s := New(nil)
			for i := 0; i < times; i++ {
				if _, err := s.Register("svc", fmt.Sprintf("v%d", i), "", "10.0.0.1", "9001", nil, nil); err != nil {
					return false
				}
			}
			return len(s.List(Filter{Name: "svc"})) == 1
		},
		gen.IntRange(1, 15),
	))

	properties.TestingRun(t)
}
