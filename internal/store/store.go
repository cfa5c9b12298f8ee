// Package store persists migration jobs, their per-row records, mapping
// templates, and the audit trail of state transitions. It is the only
// durable state the engine has; everything else is rebuilt from the source
// file.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/casewise/migrator/internal/job"
)

// ErrNotFound is returned when a job, template, or record does not exist
// for the tenant.
var ErrNotFound = errors.New("not found")

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// EntityRef points at one entity created during import.
type EntityRef struct {
	Type string    `json:"type"`
	ID   uuid.UUID `json:"id"`
}

// Record is the durable trace of one imported row: which entities it
// created and the state hash snapshot rollback compares against.
type Record struct {
	ID             uuid.UUID   `json:"id"`
	TenantID       uuid.UUID   `json:"tenantId"`
	JobID          uuid.UUID   `json:"jobId"`
	RowIndex       int         `json:"rowIndex"`
	SourceRecordID string      `json:"sourceRecordId"`
	Entities       []EntityRef `json:"entities"`
	StateHash      string      `json:"stateHash"`
	CreatedAt      time.Time   `json:"createdAt"`
	RolledBackAt   *time.Time  `json:"rolledBackAt,omitempty"`
	SkipReason     string      `json:"skipReason,omitempty"`
}

// Template is a saved, reusable set of field mappings, scoped per tenant.
// Fingerprint is a stable hash of the normalized source headers it was
// saved from, used to suggest templates for similar files.
type Template struct {
	ID          uuid.UUID          `json:"id"`
	TenantID    uuid.UUID          `json:"tenantId"`
	Name        string             `json:"name"`
	Fingerprint string             `json:"fingerprint"`
	Mappings    []job.FieldMapping `json:"mappings"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// Event is one entry in a job's audit trail.
type Event struct {
	ID        int64     `json:"id"`
	JobID     uuid.UUID `json:"jobId"`
	FromState job.State `json:"fromState"`
	ToState   job.State `json:"toState"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is the persistence boundary the engine works against. Methods
// taking a DBTX participate in the caller's transaction; the rest run on
// the pool.
type Store interface {
	// WithTx runs fn inside one transaction, committing on nil error.
	WithTx(ctx context.Context, fn func(DBTX) error) error

	CreateJob(ctx context.Context, j *job.Job, sourcePath string, sourceSize int64) error
	GetJob(ctx context.Context, tenantID, jobID uuid.UUID) (*job.Job, error)
	UpdateJob(ctx context.Context, db DBTX, j *job.Job) error
	ListJobs(ctx context.Context, tenantID uuid.UUID) ([]*job.Job, error)
	SourcePath(ctx context.Context, tenantID, jobID uuid.UUID) (string, error)

	InsertRecord(ctx context.Context, db DBTX, rec *Record) error
	// Records returns a job's records ordered by creation (row order).
	Records(ctx context.Context, tenantID, jobID uuid.UUID) ([]Record, error)
	MarkRecordRolledBack(ctx context.Context, db DBTX, recordID uuid.UUID) error
	MarkRecordSkipped(ctx context.Context, db DBTX, recordID uuid.UUID, reason string) error

	SaveTemplate(ctx context.Context, t *Template) error
	GetTemplate(ctx context.Context, tenantID uuid.UUID, name string) (*Template, error)
	ListTemplates(ctx context.Context, tenantID uuid.UUID) ([]Template, error)
	DeleteTemplate(ctx context.Context, tenantID uuid.UUID, name string) error

	AddEvent(ctx context.Context, db DBTX, ev *Event) error
	Events(ctx context.Context, tenantID, jobID uuid.UUID) ([]Event, error)
}
