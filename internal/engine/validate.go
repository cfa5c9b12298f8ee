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
	"github.com/casewise/migrator/internal/rowsource"
	"github.com/casewise/migrator/internal/transform"
)

// Validate kicks off a full pass over the source file in the background,
// transforming every row and tallying valid/error counts. The job moves to
// validating immediately; the outcome is preview_ready or validation_failed.
func (s *Service) Validate(ctx context.Context, tenantID, jobID uuid.UUID) (*job.Job, error) {
	j, err := s.GetJob(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	conn, ok := connector.Get(j.ConnectorID)
	if !ok {
		return nil, fmt.Errorf("unknown connector %q", j.ConnectorID)
	}

	from := j.State
	if j.State, err = j.State.Transition(job.StateValidating); err != nil {
		return nil, err
	}
	j.Counters = job.Counters{}
	j.IssueSample = nil
	if err := s.store.UpdateJob(ctx, nil, j); err != nil {
		return nil, err
	}
	s.recordEvent(ctx, nil, j.ID, from, job.StateValidating, "validation started")

	path, err := s.store.SourcePath(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ValidateTimeout)
	active := s.track(j.ID, cancel, job.StateValidating)

	go func() {
		defer cancel()
		defer s.untrack(active)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("validation panicked", "job_id", j.ID, "panic", r)
				s.finishValidation(j, job.StateValidationFailed, fmt.Sprintf("internal error: %v", r))
			}
		}()
		s.runValidation(runCtx, active, j, conn, path)
	}()

	return j, nil
}

func (s *Service) runValidation(ctx context.Context, active *activeJob, j *job.Job, conn connector.Connector, path string) {
	stream, err := rowsource.Open(path)
	if err != nil {
		s.finishValidation(j, job.StateValidationFailed, "source unreadable: "+err.Error())
		return
	}
	defer stream.Close()

	for {
		row, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.finishValidation(j, job.StateValidationFailed, "read failed: "+err.Error())
			return
		}

		res := transform.TransformRow(row, j.Mappings, conn)
		j.Counters.Total++
		if res.Valid() {
			j.Counters.Valid++
		} else {
			j.Counters.Errors++
		}
		for _, issue := range res.Issues {
			j.AddIssue(job.RowIssue{
				RowIndex: row.Index,
				Field:    issue.Field,
				Severity: issue.Severity,
				Message:  issue.Message,
			})
		}

		// Checkpoint progress at the batch boundary; cancellation is only
		// observed here so counts stay consistent.
		if j.Counters.Total%s.cfg.ValidateCadence == 0 {
			if ctx.Err() != nil {
				s.finishValidation(j, job.StateValidationFailed, "validation cancelled")
				return
			}
			active.update(Progress{
				JobID:     j.ID,
				Phase:     job.StateValidating,
				Processed: j.Counters.Total,
				Valid:     j.Counters.Valid,
				Errors:    j.Counters.Errors,
				Percent:   stream.Progress(),
			})
			if err := s.store.UpdateJob(ctx, nil, j); err != nil {
				s.logger.Warn("validation checkpoint failed", "job_id", j.ID, "error", err)
			}
		}
	}

	if j.Counters.Valid == 0 {
		s.finishValidation(j, job.StateValidationFailed,
			fmt.Sprintf("no importable rows (%d errors)", j.Counters.Errors))
		return
	}
	s.finishValidation(j, job.StatePreviewReady,
		fmt.Sprintf("%d of %d rows valid", j.Counters.Valid, j.Counters.Total))
}

func (s *Service) finishValidation(j *job.Job, to job.State, note string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	next, err := j.State.Transition(to)
	if err != nil {
		s.logger.Error("validation finish transition rejected", "job_id", j.ID, "error", err)
		return
	}
	from := j.State
	j.State = next
	if err := s.store.UpdateJob(ctx, nil, j); err != nil {
		s.logger.Error("failed to persist validation result", "job_id", j.ID, "error", err)
		return
	}
	s.recordEvent(ctx, nil, j.ID, from, next, note)
	s.logger.Info("validation finished", "job_id", j.ID, "state", next,
		"total", j.Counters.Total, "valid", j.Counters.Valid, "errors", j.Counters.Errors)
}

// PreviewRow shows one source row next to its transformed form.
type PreviewRow struct {
	RowIndex    int               `json:"rowIndex"`
	Source      map[string]string `json:"source"`
	Transformed map[string]any    `json:"transformed"`
	Issues      []transform.Issue `json:"issues,omitempty"`
	Valid       bool              `json:"valid"`
}

// Preview returns the first rows of the file transformed side by side with
// their raw values. Only available once validation has succeeded.
func (s *Service) Preview(ctx context.Context, tenantID, jobID uuid.UUID) ([]PreviewRow, error) {
	j, err := s.GetJob(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	if j.State != job.StatePreviewReady {
		return nil, fmt.Errorf("%s -> preview: %w", j.State, job.ErrIllegalTransition)
	}
	conn, ok := connector.Get(j.ConnectorID)
	if !ok {
		return nil, fmt.Errorf("unknown connector %q", j.ConnectorID)
	}

	path, err := s.store.SourcePath(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	_, rows, err := rowsource.Sample(path, s.cfg.PreviewRows)
	if err != nil {
		return nil, err
	}

	preview := make([]PreviewRow, 0, len(rows))
	for _, row := range rows {
		res := transform.TransformRow(row, j.Mappings, conn)
		preview = append(preview, PreviewRow{
			RowIndex:    row.Index,
			Source:      row.Fields,
			Transformed: res.Fields,
			Issues:      res.Issues,
			Valid:       res.Valid(),
		})
	}
	return preview, nil
}
