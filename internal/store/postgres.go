package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/casewise/migrator/internal/job"
)

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// WithTx runs fn inside one transaction. fn receives the transaction as a
// DBTX so store methods and collaborators can share it.
func (s *Postgres) WithTx(ctx context.Context, fn func(DBTX) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Postgres) CreateJob(ctx context.Context, j *job.Job, sourcePath string, sourceSize int64) error {
	mappings, err := json.Marshal(j.Mappings)
	if err != nil {
		return fmt.Errorf("marshal mappings: %w", err)
	}
	issues, err := json.Marshal(j.IssueSample)
	if err != nil {
		return fmt.Errorf("marshal issue sample: %w", err)
	}

	return s.WithTx(ctx, func(db DBTX) error {
		_, err := db.Exec(ctx, `
			INSERT INTO migration_jobs (
				id, tenant_id, state, connector_id, confidence, file_name,
				mappings, total_rows, valid_rows, error_rows, imported_rows,
				issue_sample, rollback_deadline, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
			j.ID, j.TenantID, j.State, j.ConnectorID, j.Confidence, j.FileName,
			mappings, j.Counters.Total, j.Counters.Valid, j.Counters.Errors,
			j.Counters.Imported, issues, j.RollbackDeadline, j.CreatedAt, j.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}

		_, err = db.Exec(ctx, `
			INSERT INTO source_files (id, tenant_id, job_id, file_name, path, size_bytes, uploaded_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			uuid.New(), j.TenantID, j.ID, j.FileName, sourcePath, sourceSize, j.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert source file: %w", err)
		}
		return nil
	})
}

const jobColumns = `
	id, tenant_id, state, connector_id, confidence, file_name,
	mappings, total_rows, valid_rows, error_rows, imported_rows,
	issue_sample, rollback_deadline, created_at, updated_at`

func scanJob(row pgx.Row) (*job.Job, error) {
	var j job.Job
	var mappings, issues []byte
	err := row.Scan(
		&j.ID, &j.TenantID, &j.State, &j.ConnectorID, &j.Confidence, &j.FileName,
		&mappings, &j.Counters.Total, &j.Counters.Valid, &j.Counters.Errors,
		&j.Counters.Imported, &issues, &j.RollbackDeadline, &j.CreatedAt, &j.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	if len(mappings) > 0 {
		if err := json.Unmarshal(mappings, &j.Mappings); err != nil {
			return nil, fmt.Errorf("unmarshal mappings: %w", err)
		}
	}
	if len(issues) > 0 {
		if err := json.Unmarshal(issues, &j.IssueSample); err != nil {
			return nil, fmt.Errorf("unmarshal issue sample: %w", err)
		}
	}
	return &j, nil
}

func (s *Postgres) GetJob(ctx context.Context, tenantID, jobID uuid.UUID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM migration_jobs WHERE tenant_id = $1 AND id = $2`,
		tenantID, jobID)
	return scanJob(row)
}

func (s *Postgres) UpdateJob(ctx context.Context, db DBTX, j *job.Job) error {
	if db == nil {
		db = s.pool
	}
	mappings, err := json.Marshal(j.Mappings)
	if err != nil {
		return fmt.Errorf("marshal mappings: %w", err)
	}
	issues, err := json.Marshal(j.IssueSample)
	if err != nil {
		return fmt.Errorf("marshal issue sample: %w", err)
	}

	j.UpdatedAt = time.Now().UTC()
	tag, err := db.Exec(ctx, `
		UPDATE migration_jobs SET
			state = $3, connector_id = $4, confidence = $5, mappings = $6,
			total_rows = $7, valid_rows = $8, error_rows = $9, imported_rows = $10,
			issue_sample = $11, rollback_deadline = $12, updated_at = $13
		WHERE tenant_id = $1 AND id = $2`,
		j.TenantID, j.ID, j.State, j.ConnectorID, j.Confidence, mappings,
		j.Counters.Total, j.Counters.Valid, j.Counters.Errors, j.Counters.Imported,
		issues, j.RollbackDeadline, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) ListJobs(ctx context.Context, tenantID uuid.UUID) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM migration_jobs WHERE tenant_id = $1 ORDER BY created_at DESC`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *Postgres) SourcePath(ctx context.Context, tenantID, jobID uuid.UUID) (string, error) {
	var path string
	err := s.pool.QueryRow(ctx,
		`SELECT path FROM source_files WHERE tenant_id = $1 AND job_id = $2`,
		tenantID, jobID).Scan(&path)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("source path: %w", err)
	}
	return path, nil
}

func (s *Postgres) InsertRecord(ctx context.Context, db DBTX, rec *Record) error {
	if db == nil {
		db = s.pool
	}
	entities, err := json.Marshal(rec.Entities)
	if err != nil {
		return fmt.Errorf("marshal entities: %w", err)
	}
	_, err = db.Exec(ctx, `
		INSERT INTO migration_records (
			id, tenant_id, job_id, row_index, source_record_id,
			entities, state_hash, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.ID, rec.TenantID, rec.JobID, rec.RowIndex, rec.SourceRecordID,
		entities, rec.StateHash, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (s *Postgres) Records(ctx context.Context, tenantID, jobID uuid.UUID) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, job_id, row_index, source_record_id,
		       entities, state_hash, created_at, rolled_back_at, skip_reason
		FROM migration_records
		WHERE tenant_id = $1 AND job_id = $2
		ORDER BY row_index ASC`,
		tenantID, jobID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var entities []byte
		var skipReason *string
		if err := rows.Scan(
			&rec.ID, &rec.TenantID, &rec.JobID, &rec.RowIndex, &rec.SourceRecordID,
			&entities, &rec.StateHash, &rec.CreatedAt, &rec.RolledBackAt, &skipReason,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if len(entities) > 0 {
			if err := json.Unmarshal(entities, &rec.Entities); err != nil {
				return nil, fmt.Errorf("unmarshal entities: %w", err)
			}
		}
		if skipReason != nil {
			rec.SkipReason = *skipReason
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Postgres) MarkRecordRolledBack(ctx context.Context, db DBTX, recordID uuid.UUID) error {
	if db == nil {
		db = s.pool
	}
	_, err := db.Exec(ctx,
		`UPDATE migration_records SET rolled_back_at = now() WHERE id = $1`, recordID)
	if err != nil {
		return fmt.Errorf("mark rolled back: %w", err)
	}
	return nil
}

func (s *Postgres) MarkRecordSkipped(ctx context.Context, db DBTX, recordID uuid.UUID, reason string) error {
	if db == nil {
		db = s.pool
	}
	_, err := db.Exec(ctx,
		`UPDATE migration_records SET skip_reason = $2 WHERE id = $1`, recordID, reason)
	if err != nil {
		return fmt.Errorf("mark skipped: %w", err)
	}
	return nil
}

func (s *Postgres) SaveTemplate(ctx context.Context, t *Template) error {
	mappings, err := json.Marshal(t.Mappings)
	if err != nil {
		return fmt.Errorf("marshal mappings: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO mapping_templates (id, tenant_id, name, fingerprint, mappings, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (tenant_id, name)
		DO UPDATE SET fingerprint = EXCLUDED.fingerprint, mappings = EXCLUDED.mappings`,
		t.ID, t.TenantID, t.Name, t.Fingerprint, mappings, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save template: %w", err)
	}
	return nil
}

func (s *Postgres) GetTemplate(ctx context.Context, tenantID uuid.UUID, name string) (*Template, error) {
	var t Template
	var mappings []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, fingerprint, mappings, created_at
		FROM mapping_templates WHERE tenant_id = $1 AND name = $2`,
		tenantID, name).Scan(&t.ID, &t.TenantID, &t.Name, &t.Fingerprint, &mappings, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if err := json.Unmarshal(mappings, &t.Mappings); err != nil {
		return nil, fmt.Errorf("unmarshal mappings: %w", err)
	}
	return &t, nil
}

func (s *Postgres) ListTemplates(ctx context.Context, tenantID uuid.UUID) ([]Template, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, name, fingerprint, mappings, created_at
		FROM mapping_templates WHERE tenant_id = $1 ORDER BY name`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []Template
	for rows.Next() {
		var t Template
		var mappings []byte
		if err := rows.Scan(&t.ID, &t.TenantID, &t.Name, &t.Fingerprint, &mappings, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		if err := json.Unmarshal(mappings, &t.Mappings); err != nil {
			return nil, fmt.Errorf("unmarshal mappings: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (s *Postgres) DeleteTemplate(ctx context.Context, tenantID uuid.UUID, name string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM mapping_templates WHERE tenant_id = $1 AND name = $2`,
		tenantID, name)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) AddEvent(ctx context.Context, db DBTX, ev *Event) error {
	if db == nil {
		db = s.pool
	}
	_, err := db.Exec(ctx, `
		INSERT INTO migration_events (job_id, from_state, to_state, note, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		ev.JobID, ev.FromState, ev.ToState, ev.Note, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *Postgres) Events(ctx context.Context, tenantID, jobID uuid.UUID) ([]Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT e.id, e.job_id, e.from_state, e.to_state, e.note, e.created_at
		FROM migration_events e
		JOIN migration_jobs j ON j.id = e.job_id
		WHERE j.tenant_id = $1 AND e.job_id = $2
		ORDER BY e.id ASC`,
		tenantID, jobID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.JobID, &ev.FromState, &ev.ToState, &ev.Note, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// interface guard
var _ Store = (*Postgres)(nil)
