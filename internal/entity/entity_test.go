package entity

import (
	"testing"

	"github.com/google/uuid"

	"github.com/casewise/migrator/internal/store"
)

func TestDependencyOrder(t *testing.T) {
	// Associations must go before cases, cases before the entities they
	// reference. A regression here breaks rollback's referential integrity.
	want := []string{TypeCasePerson, TypeCase, TypeIntakeUnit, TypePerson}
	if len(DependencyOrder) != len(want) {
		t.Fatalf("DependencyOrder = %v", DependencyOrder)
	}
	for i, typ := range want {
		if DependencyOrder[i] != typ {
			t.Errorf("DependencyOrder[%d] = %s, want %s", i, DependencyOrder[i], typ)
		}
	}
}

func TestSortByDependency(t *testing.T) {
	refs := []store.EntityRef{
		{Type: TypePerson, ID: uuid.New()},
		{Type: TypeCase, ID: uuid.New()},
		{Type: TypeCasePerson, ID: uuid.New()},
		{Type: TypeIntakeUnit, ID: uuid.New()},
	}

	sorted := SortByDependency(refs)
	got := make([]string, len(sorted))
	for i, r := range sorted {
		got[i] = r.Type
	}
	want := []string{TypeCasePerson, TypeCase, TypeIntakeUnit, TypePerson}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sorted order = %v, want %v", got, want)
		}
	}

	// Input order preserved within the same type.
	a, b := uuid.New(), uuid.New()
	same := []store.EntityRef{
		{Type: TypePerson, ID: a},
		{Type: TypePerson, ID: b},
	}
	sorted = SortByDependency(same)
	if sorted[0].ID != a || sorted[1].ID != b {
		t.Error("sort must be stable within a type")
	}
}
