package entity

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/casewise/migrator/internal/store"
)

// PgCreator is the reference Creator for deployments where the case tables
// live in the same database as the migration store.
type PgCreator struct{}

func NewPgCreator() *PgCreator { return &PgCreator{} }

func str(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

func ts(fields map[string]any, key string) *time.Time {
	if v, ok := fields[key].(time.Time); ok {
		return &v
	}
	return nil
}

// Create builds the row's entity graph: reporter and subject persons, the
// intake unit (shared, upserted by name), the case, and the case-person
// associations. Everything runs on the caller's transaction.
func (c *PgCreator) Create(ctx context.Context, db store.DBTX, tenantID uuid.UUID, fields map[string]any) ([]store.EntityRef, error) {
	var refs []store.EntityRef

	caseID := uuid.New()

	var intakeUnitID *uuid.UUID
	if name := str(fields, "intakeUnit"); name != "" {
		id, created, err := c.upsertIntakeUnit(ctx, db, tenantID, name)
		if err != nil {
			return nil, err
		}
		intakeUnitID = &id
		if created {
			refs = append(refs, store.EntityRef{Type: TypeIntakeUnit, ID: id})
		}
	}

	anonymous := false
	if v, ok := fields["anonymous"].(bool); ok {
		anonymous = v
	}

	_, err := db.Exec(ctx, `
		INSERT INTO cases (
			id, tenant_id, case_number, status, category, severity,
			description, intake_unit_id, reported_at, closed_at, anonymous
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		caseID, tenantID, str(fields, "caseNumber"),
		orDefault(str(fields, "status"), "NEW"),
		orDefault(str(fields, "category"), "OTHER"),
		orDefault(str(fields, "severity"), "MEDIUM"),
		str(fields, "description"), intakeUnitID,
		ts(fields, "reportedAt"), ts(fields, "closedAt"), anonymous,
	)
	if err != nil {
		return nil, fmt.Errorf("insert case: %w", err)
	}
	refs = append(refs, store.EntityRef{Type: TypeCase, ID: caseID})

	if name := str(fields, "reporterName"); name != "" && !anonymous {
		personRefs, err := c.attachPerson(ctx, db, tenantID, caseID, name,
			str(fields, "reporterEmail"), str(fields, "reporterPhone"), "reporter")
		if err != nil {
			return nil, err
		}
		refs = append(refs, personRefs...)
	}
	if name := str(fields, "subjectName"); name != "" {
		personRefs, err := c.attachPerson(ctx, db, tenantID, caseID, name, "", "", "subject")
		if err != nil {
			return nil, err
		}
		refs = append(refs, personRefs...)
	}

	return refs, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (c *PgCreator) upsertIntakeUnit(ctx context.Context, db store.DBTX, tenantID uuid.UUID, name string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := db.QueryRow(ctx,
		`SELECT id FROM intake_units WHERE tenant_id = $1 AND name = $2`,
		tenantID, name).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, fmt.Errorf("lookup intake unit: %w", err)
	}

	id = uuid.New()
	if _, err := db.Exec(ctx,
		`INSERT INTO intake_units (id, tenant_id, name) VALUES ($1,$2,$3)`,
		id, tenantID, name); err != nil {
		return uuid.Nil, false, fmt.Errorf("insert intake unit: %w", err)
	}
	return id, true, nil
}

func (c *PgCreator) attachPerson(ctx context.Context, db store.DBTX, tenantID, caseID uuid.UUID, name, email, phone, role string) ([]store.EntityRef, error) {
	personID := uuid.New()
	if _, err := db.Exec(ctx,
		`INSERT INTO persons (id, tenant_id, full_name, email, phone) VALUES ($1,$2,$3,$4,$5)`,
		personID, tenantID, name, email, phone); err != nil {
		return nil, fmt.Errorf("insert person: %w", err)
	}

	assocID := uuid.New()
	if _, err := db.Exec(ctx,
		`INSERT INTO case_persons (id, tenant_id, case_id, person_id, role) VALUES ($1,$2,$3,$4,$5)`,
		assocID, tenantID, caseID, personID, role); err != nil {
		return nil, fmt.Errorf("insert case person: %w", err)
	}

	return []store.EntityRef{
		{Type: TypePerson, ID: personID},
		{Type: TypeCasePerson, ID: assocID},
	}, nil
}

// StateHash digests the current user-visible field values of every
// referenced entity. Refs are hashed in a stable order so the digest does
// not depend on creation order.
func (c *PgCreator) StateHash(ctx context.Context, db store.DBTX, tenantID uuid.UUID, refs []store.EntityRef) (string, error) {
	ordered := make([]store.EntityRef, len(refs))
	copy(ordered, refs)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Type != ordered[j].Type {
			return ordered[i].Type < ordered[j].Type
		}
		return ordered[i].ID.String() < ordered[j].ID.String()
	})

	h := fnv.New64a()
	for _, ref := range ordered {
		digest, err := c.entityDigest(ctx, db, tenantID, ref)
		if err != nil {
			return "", err
		}
		h.Write([]byte(ref.Type))
		h.Write([]byte{0})
		h.Write([]byte(digest))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

func (c *PgCreator) entityDigest(ctx context.Context, db store.DBTX, tenantID uuid.UUID, ref store.EntityRef) (string, error) {
	var query string
	switch ref.Type {
	case TypeCase:
		query = `SELECT concat_ws('|', case_number, status, category, severity, description)
			FROM cases WHERE tenant_id = $1 AND id = $2`
	case TypePerson:
		query = `SELECT concat_ws('|', full_name, email, phone)
			FROM persons WHERE tenant_id = $1 AND id = $2`
	case TypeIntakeUnit:
		query = `SELECT name FROM intake_units WHERE tenant_id = $1 AND id = $2`
	case TypeCasePerson:
		query = `SELECT role FROM case_persons WHERE tenant_id = $1 AND id = $2`
	default:
		return "", fmt.Errorf("unknown entity type %q", ref.Type)
	}

	var digest string
	err := db.QueryRow(ctx, query, tenantID, ref.ID).Scan(&digest)
	if errors.Is(err, pgx.ErrNoRows) {
		// A deleted entity hashes as absent, which rollback treats as a
		// modification.
		return "absent", nil
	}
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", ref.Type, err)
	}
	return digest, nil
}

// Delete removes the row's entities in dependency order. Shared intake
// units survive while another case still points at them.
func (c *PgCreator) Delete(ctx context.Context, db store.DBTX, tenantID uuid.UUID, refs []store.EntityRef) error {
	for _, ref := range SortByDependency(refs) {
		var err error
		switch ref.Type {
		case TypeCasePerson:
			_, err = db.Exec(ctx,
				`DELETE FROM case_persons WHERE tenant_id = $1 AND id = $2`, tenantID, ref.ID)
		case TypeCase:
			_, err = db.Exec(ctx,
				`DELETE FROM cases WHERE tenant_id = $1 AND id = $2`, tenantID, ref.ID)
		case TypeIntakeUnit:
			_, err = db.Exec(ctx, `
				DELETE FROM intake_units
				WHERE tenant_id = $1 AND id = $2
				  AND NOT EXISTS (SELECT 1 FROM cases WHERE intake_unit_id = $2)`,
				tenantID, ref.ID)
		case TypePerson:
			_, err = db.Exec(ctx, `
				DELETE FROM persons
				WHERE tenant_id = $1 AND id = $2
				  AND NOT EXISTS (SELECT 1 FROM case_persons WHERE person_id = $2)`,
				tenantID, ref.ID)
		default:
			err = fmt.Errorf("unknown entity type %q", ref.Type)
		}
		if err != nil {
			return fmt.Errorf("delete %s: %w", ref.Type, err)
		}
	}
	return nil
}

// interface guard
var _ Creator = (*PgCreator)(nil)
