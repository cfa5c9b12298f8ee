package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/casewise/migrator/internal/connector"
	"github.com/casewise/migrator/internal/job"
	"github.com/casewise/migrator/internal/mapper"
	"github.com/casewise/migrator/internal/rowsource"
	"github.com/casewise/migrator/internal/store"
	"github.com/casewise/migrator/internal/transform"
)

// ConfirmImport is the token a client must echo to start an import.
const ConfirmImport = "IMPORT"

// StartImport begins writing valid rows into the case tables. It requires
// the explicit confirmation token, a complete set of required mappings, and
// a free import slot. Each row commits in its own transaction so a failure
// never poisons the rows around it.
func (s *Service) StartImport(ctx context.Context, tenantID, jobID uuid.UUID, confirm string) (*job.Job, error) {
	if confirm != ConfirmImport {
		return nil, fmt.Errorf("expected %q: %w", ConfirmImport, ErrConfirmationRequired)
	}

	j, err := s.GetJob(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}

	mapped := make(map[string]bool, len(j.Mappings))
	for _, m := range j.Mappings {
		mapped[m.TargetField] = true
	}
	if missing := mapper.MissingRequired(mapped); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrMappingIncomplete, missing)
	}

	conn, ok := connector.Get(j.ConnectorID)
	if !ok {
		return nil, fmt.Errorf("unknown connector %q", j.ConnectorID)
	}

	from := j.State
	if j.State, err = j.State.Transition(job.StateImporting); err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	if err := s.store.UpdateJob(ctx, nil, j); err != nil {
		s.limiter.Release()
		return nil, err
	}
	s.recordEvent(ctx, nil, j.ID, from, job.StateImporting, "import confirmed")

	path, err := s.store.SourcePath(ctx, tenantID, jobID)
	if err != nil {
		s.limiter.Release()
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ImportTimeout)
	active := s.track(j.ID, cancel, job.StateImporting)

	go func() {
		defer s.limiter.Release()
		defer cancel()
		defer s.untrack(active)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("import panicked", "job_id", j.ID, "panic", r)
				s.finishImport(j, job.StateImportFailed, fmt.Sprintf("internal error: %v", r))
			}
		}()
		s.runImport(runCtx, active, j, conn, path)
	}()

	return j, nil
}

func (s *Service) runImport(ctx context.Context, active *activeJob, j *job.Job, conn connector.Connector, path string) {
	stream, err := rowsource.Open(path)
	if err != nil {
		s.finishImport(j, job.StateImportFailed, "source unreadable: "+err.Error())
		return
	}
	defer stream.Close()

	processed := 0
	for {
		row, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.finishImport(j, job.StateImportFailed, "read failed: "+err.Error())
			return
		}
		processed++

		res := transform.TransformRow(row, j.Mappings, conn)
		if !res.Valid() {
			continue
		}

		if err := s.importRow(ctx, j, conn.ID, row, res); err != nil {
			// The row's transaction rolled back; the job carries on.
			j.Counters.Valid--
			j.Counters.Errors++
			j.AddIssue(job.RowIssue{
				RowIndex: row.Index,
				Severity: transform.SeverityError,
				Message:  "import failed: " + err.Error(),
			})
			s.logger.Warn("row import failed", "job_id", j.ID, "row", row.Index, "error", err)
		}

		if processed%s.cfg.ImportCadence == 0 {
			if ctx.Err() != nil {
				s.finishImport(j, job.StateImportFailed,
					fmt.Sprintf("import cancelled after %d rows; imported rows were kept", j.Counters.Imported))
				return
			}
			active.update(Progress{
				JobID:     j.ID,
				Phase:     job.StateImporting,
				Processed: processed,
				Total:     j.Counters.Total,
				Valid:     j.Counters.Valid,
				Errors:    j.Counters.Errors,
				Imported:  j.Counters.Imported,
				Percent:   stream.Progress(),
			})
		}
	}

	if j.Counters.Imported == 0 {
		s.finishImport(j, job.StateImportFailed, "no rows could be imported")
		return
	}

	deadline := time.Now().UTC().Add(s.cfg.RollbackWindow)
	j.RollbackDeadline = &deadline
	s.finishImport(j, job.StateCompleted,
		fmt.Sprintf("%d rows imported; %s", j.Counters.Imported, RollbackWindowNote(deadline)))
}

// importRow commits one row atomically: entities, the migration record with
// its state hash, and the job's counter bump all land in one transaction.
func (s *Service) importRow(ctx context.Context, j *job.Job, connectorID string, row rowsource.Row, res transform.Result) error {
	rowCtx, cancel := context.WithTimeout(ctx, s.cfg.RowTimeout)
	defer cancel()

	imported := j.Counters.Imported
	err := s.store.WithTx(rowCtx, func(db store.DBTX) error {
		refs, err := s.creator.Create(rowCtx, db, j.TenantID, res.Fields)
		if err != nil {
			return err
		}
		hash, err := s.creator.StateHash(rowCtx, db, j.TenantID, refs)
		if err != nil {
			return err
		}

		sourceID, _ := res.Fields["caseNumber"].(string)
		if err := s.store.InsertRecord(rowCtx, db, &store.Record{
			ID:             uuid.New(),
			TenantID:       j.TenantID,
			JobID:          j.ID,
			RowIndex:       row.Index,
			SourceRecordID: sourceID,
			Entities:       refs,
			StateHash:      hash,
			CreatedAt:      time.Now().UTC(),
		}); err != nil {
			return err
		}

		j.Counters.Imported++
		return s.store.UpdateJob(rowCtx, db, j)
	})
	if err != nil {
		// Nothing landed, whether the closure or the commit itself failed;
		// the in-memory counter must not outrun the records that exist.
		j.Counters.Imported = imported
	}
	return err
}

func (s *Service) finishImport(j *job.Job, to job.State, note string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	next, err := j.State.Transition(to)
	if err != nil {
		s.logger.Error("import finish transition rejected", "job_id", j.ID, "error", err)
		return
	}
	from := j.State
	j.State = next
	if err := s.store.UpdateJob(ctx, nil, j); err != nil {
		s.logger.Error("failed to persist import result", "job_id", j.ID, "error", err)
		return
	}
	s.recordEvent(ctx, nil, j.ID, from, next, note)
	s.logger.Info("import finished", "job_id", j.ID, "state", next,
		"imported", j.Counters.Imported, "errors", j.Counters.Errors)
}
