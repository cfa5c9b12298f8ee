package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/casewise/migrator/internal/job"
	"github.com/casewise/migrator/internal/store"
)

// ConfirmRollback is the token a client must echo to roll back an import.
const ConfirmRollback = "ROLLBACK"

// SkipReasonModified marks records whose entities changed after import.
const SkipReasonModified = "modified after import"

// RollbackStatus tells a client whether rollback is still possible.
type RollbackStatus struct {
	Open     bool       `json:"open"`
	Deadline *time.Time `json:"deadline,omitempty"`
	Imported int        `json:"importedRows"`
}

// RollbackReport summarizes what a rollback actually did.
type RollbackReport struct {
	Deleted     int   `json:"deletedRows"`
	Skipped     int   `json:"skippedRows"`
	SkippedList []int `json:"skippedRowIndexes,omitempty"`
}

// GetRollbackStatus reports whether the job's rollback window is open.
func (s *Service) GetRollbackStatus(ctx context.Context, tenantID, jobID uuid.UUID) (*RollbackStatus, error) {
	j, err := s.GetJob(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	return &RollbackStatus{
		Open:     j.RollbackOpen(time.Now().UTC()),
		Deadline: j.RollbackDeadline,
		Imported: j.Counters.Imported,
	}, nil
}

// Rollback deletes the entities a completed import created, newest row
// first so associations go before the rows they reference. Rows whose
// entities were edited after import are left alone and reported as skipped.
// Each record rolls back in its own transaction; a crash mid-way leaves a
// resumable trail, not half-deleted rows.
func (s *Service) Rollback(ctx context.Context, tenantID, jobID uuid.UUID, confirm string) (*RollbackReport, error) {
	if confirm != ConfirmRollback {
		return nil, fmt.Errorf("expected %q: %w", ConfirmRollback, ErrConfirmationRequired)
	}

	j, err := s.GetJob(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if !j.RollbackOpen(now) {
		if j.State == job.StateCompleted {
			return nil, ErrRollbackWindowExpired
		}
		return nil, fmt.Errorf("%s -> %s: %w", j.State, job.StateRolledBack, job.ErrIllegalTransition)
	}

	records, err := s.store.Records(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}

	report := &RollbackReport{}
	// Reverse of creation order.
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if rec.RolledBackAt != nil || rec.SkipReason != "" {
			continue
		}

		rowCtx, cancel := context.WithTimeout(ctx, s.cfg.RowTimeout)
		err := s.store.WithTx(rowCtx, func(db store.DBTX) error {
			hash, err := s.creator.StateHash(rowCtx, db, tenantID, rec.Entities)
			if err != nil {
				return err
			}
			if hash != rec.StateHash {
				report.Skipped++
				report.SkippedList = append(report.SkippedList, rec.RowIndex)
				return s.store.MarkRecordSkipped(rowCtx, db, rec.ID, SkipReasonModified)
			}
			if err := s.creator.Delete(rowCtx, db, tenantID, rec.Entities); err != nil {
				return err
			}
			report.Deleted++
			return s.store.MarkRecordRolledBack(rowCtx, db, rec.ID)
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("rollback row %d: %w", rec.RowIndex, err)
		}
	}

	from := j.State
	if j.State, err = j.State.Transition(job.StateRolledBack); err != nil {
		return nil, err
	}
	j.UpdatedAt = now
	if err := s.store.UpdateJob(ctx, nil, j); err != nil {
		return nil, err
	}
	s.recordEvent(ctx, nil, j.ID, from, job.StateRolledBack,
		fmt.Sprintf("%d rows rolled back, %d skipped", report.Deleted, report.Skipped))

	s.logger.Info("rollback finished", "job_id", j.ID,
		"deleted", report.Deleted, "skipped", report.Skipped)
	return report, nil
}
