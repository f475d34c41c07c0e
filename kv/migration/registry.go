package migration

import (
	"fmt"
	"sort"

	"github.com/koniz-dev/grex-sub004/kit/errors"
)

// Registry is the ordered migration catalog for one storage domain. It is
// an explicit, constructed value handed to a Migrator, so tests can
// substitute partial or deliberately broken chains.
type Registry struct {
	specs []Spec
}

// NewRegistry builds a Registry from the provided specs, sorted ascending
// by FromVersion. Validation is deferred to Validate so that a broken
// catalog can still be constructed and inspected.
func NewRegistry(specs ...Spec) *Registry {
	sorted := make([]Spec, len(specs))
	copy(sorted, specs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FromVersion() < sorted[j].FromVersion()
	})
	return &Registry{specs: sorted}
}

// Validate checks the catalog forms a contiguous chain: ascending
// FromVersion values with no duplicates and no gaps. Each catalog package
// runs this from its tests, and the Migrator runs it again before
// executing anything.
func (r *Registry) Validate() error {
	for i, spec := range r.specs {
		if spec.FromVersion() < 0 {
			return &errors.Error{
				Code: ERegistryIntegrity,
				Msg:  fmt.Sprintf("%s has a negative version", describe(spec)),
			}
		}
		if i == 0 {
			continue
		}

		prev := r.specs[i-1]
		switch {
		case spec.FromVersion() == prev.FromVersion():
			return &errors.Error{
				Code: ERegistryIntegrity,
				Msg:  fmt.Sprintf("versions collide: %s and %s", describe(prev), describe(spec)),
			}
		case spec.FromVersion() != prev.FromVersion()+1:
			return &errors.Error{
				Code: ERegistryIntegrity,
				Msg:  fmt.Sprintf("chain gap: nothing migrates %d -> %d", prev.FromVersion()+1, spec.FromVersion()),
			}
		}
	}
	return nil
}

// From returns the pending chain: every migration with FromVersion at or
// above version, ascending. The result is empty once version reaches the
// target; that is the steady state on every startup after the first run.
func (r *Registry) From(version int) []Spec {
	i := sort.Search(len(r.specs), func(i int) bool {
		return r.specs[i].FromVersion() >= version
	})
	return r.specs[i:]
}

// TargetVersion is the version a fully migrated store ends at: the highest
// ToVersion in the catalog, or zero for an empty catalog.
func (r *Registry) TargetVersion() int {
	if len(r.specs) == 0 {
		return 0
	}
	return r.specs[len(r.specs)-1].FromVersion() + 1
}

// Len reports the number of migrations in the catalog.
func (r *Registry) Len() int {
	return len(r.specs)
}
