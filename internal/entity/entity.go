// Package entity is the engine's boundary to the host system's case graph.
// The engine never writes entity tables directly; it hands canonical fields
// to a Creator inside the row's transaction and records what came back.
package entity

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/casewise/migrator/internal/store"
)

// Entity type names used in migration records.
const (
	TypePerson     = "person"
	TypeIntakeUnit = "intake_unit"
	TypeCase       = "case"
	TypeCasePerson = "case_person"
)

// DependencyOrder is the order entity types must be deleted in during
// rollback: associations first, then cases, then the entities cases point
// at. Creation happens in the reverse of this order.
var DependencyOrder = []string{
	TypeCasePerson,
	TypeCase,
	TypeIntakeUnit,
	TypePerson,
}

// Creator is the transactional entity-creation API the engine consumes.
// Every method runs on the caller's DBTX so entity writes commit or roll
// back atomically with the migration record.
type Creator interface {
	// Create builds the entity graph for one row from canonical fields and
	// returns a reference per created entity.
	Create(ctx context.Context, db store.DBTX, tenantID uuid.UUID, fields map[string]any) ([]store.EntityRef, error)

	// StateHash returns a digest of the referenced entities' current field
	// values. Rollback compares it against the snapshot taken at import to
	// detect entities edited since.
	StateHash(ctx context.Context, db store.DBTX, tenantID uuid.UUID, refs []store.EntityRef) (string, error)

	// Delete removes the referenced entities in DependencyOrder. Entities
	// still referenced elsewhere (a shared intake unit) are left in place.
	Delete(ctx context.Context, db store.DBTX, tenantID uuid.UUID, refs []store.EntityRef) error
}

// SortByDependency orders refs for deletion according to DependencyOrder.
// Unknown types sort last.
func SortByDependency(refs []store.EntityRef) []store.EntityRef {
	rank := make(map[string]int, len(DependencyOrder))
	for i, t := range DependencyOrder {
		rank[t] = i
	}
	out := make([]store.EntityRef, len(refs))
	copy(out, refs)
	sort.SliceStable(out, func(i, j int) bool {
		ri, ok := rank[out[i].Type]
		if !ok {
			ri = len(DependencyOrder)
		}
		rj, ok := rank[out[j].Type]
		if !ok {
			rj = len(DependencyOrder)
		}
		return ri < rj
	})
	return out
}
