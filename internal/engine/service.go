// Package engine orchestrates migration jobs: upload, format detection,
// mapping, validation, preview, import, and rollback. It owns the job
// lifecycle and is the single writer for a job's durable state; persistence
// and entity creation are injected collaborators.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/casewise/migrator/internal/connector"
	"github.com/casewise/migrator/internal/entity"
	"github.com/casewise/migrator/internal/job"
	"github.com/casewise/migrator/internal/mapper"
	"github.com/casewise/migrator/internal/rowsource"
	"github.com/casewise/migrator/internal/store"
)

// Config carries the engine's tunables. Zero values fall back to the
// defaults below.
type Config struct {
	DataDir              string
	SampleRows           int
	PreviewRows          int
	ValidateCadence      int
	ImportCadence        int
	RowTimeout           time.Duration
	ValidateTimeout      time.Duration
	ImportTimeout        time.Duration
	MaxConcurrentImports int
	ImportMaxWait        time.Duration
	RollbackWindow       time.Duration
}

func (c Config) withDefaults() Config {
	if c.DataDir == "" {
		c.DataDir = "data/uploads"
	}
	if c.SampleRows <= 0 {
		c.SampleRows = 50
	}
	if c.PreviewRows <= 0 {
		c.PreviewRows = 20
	}
	if c.ValidateCadence <= 0 {
		c.ValidateCadence = 1000
	}
	if c.ImportCadence <= 0 {
		c.ImportCadence = 100
	}
	if c.RowTimeout <= 0 {
		c.RowTimeout = 5 * time.Second
	}
	if c.ValidateTimeout <= 0 {
		c.ValidateTimeout = 30 * time.Minute
	}
	if c.ImportTimeout <= 0 {
		c.ImportTimeout = 2 * time.Hour
	}
	if c.MaxConcurrentImports <= 0 {
		c.MaxConcurrentImports = DefaultMaxConcurrentImports
	}
	if c.ImportMaxWait <= 0 {
		c.ImportMaxWait = DefaultMaxWaitTime
	}
	if c.RollbackWindow <= 0 {
		c.RollbackWindow = job.DefaultRollbackWindow
	}
	return c
}

// Service provides the orchestration logic for migration jobs.
type Service struct {
	store   store.Store
	creator entity.Creator
	cfg     Config
	logger  *slog.Logger
	limiter *ImportLimiter

	mu     sync.RWMutex
	active map[uuid.UUID]*activeJob
}

type activeJob struct {
	ID       uuid.UUID
	Cancel   context.CancelFunc
	Done     chan struct{}
	Progress Progress

	ListenerMu sync.Mutex
	Listeners  []chan Progress
}

// Progress is a point-in-time snapshot of a background phase.
type Progress struct {
	JobID     uuid.UUID `json:"jobId"`
	Phase     job.State `json:"phase"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Valid     int       `json:"valid"`
	Errors    int       `json:"errors"`
	Imported  int       `json:"imported"`
	Percent   int       `json:"percent"`
	Message   string    `json:"message,omitempty"`
}

// NewService wires the engine with its collaborators.
func NewService(st store.Store, creator entity.Creator, cfg Config, logger *slog.Logger) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		store:   st,
		creator: creator,
		cfg:     cfg,
		logger:  logger,
		limiter: NewImportLimiter(cfg.MaxConcurrentImports, cfg.ImportMaxWait),
		active:  make(map[uuid.UUID]*activeJob),
	}
}

// Limiter exposes the import limiter for graceful shutdown draining.
func (s *Service) Limiter() *ImportLimiter { return s.limiter }

// CreateResult is what an upload returns: the persisted job (already moved
// through detection into the mapping state), the ranked connector
// candidates, and the file's headers for the mapping UI.
type CreateResult struct {
	Job        *job.Job              `json:"job"`
	Candidates []connector.Candidate `json:"candidates"`
	Headers    []string              `json:"headers"`
}

// CreateJob persists an uploaded file, runs format detection once, seeds
// suggested mappings, and leaves the job in the mapping state.
func (s *Service) CreateJob(ctx context.Context, tenantID uuid.UUID, fileName string, r io.Reader, hint string) (*CreateResult, error) {
	jobID := uuid.New()
	now := time.Now().UTC()

	path, size, err := s.persistSource(tenantID, jobID, fileName, r)
	if err != nil {
		return nil, err
	}

	j := &job.Job{
		ID:        jobID,
		TenantID:  tenantID,
		State:     job.StateUploaded,
		FileName:  fileName,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Detection runs once, synchronously: it only reads a sample.
	if j.State, err = j.State.Transition(job.StateDetecting); err != nil {
		return nil, err
	}

	headers, sampleRows, err := rowsource.Sample(path, s.cfg.SampleRows)
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	candidates := connector.Detect(headers, hint)
	best := connector.Best(candidates)
	j.ConnectorID = best.ConnectorID
	j.Confidence = best.Confidence

	if j.State, err = j.State.Transition(job.StateMapping); err != nil {
		return nil, err
	}
	j.Mappings = suggestionsToMappings(mapper.Suggest(headers, columnSamples(headers, sampleRows), nil))

	if err := s.store.CreateJob(ctx, j, path, size); err != nil {
		os.Remove(path)
		return nil, err
	}
	s.recordEvent(ctx, nil, j.ID, job.StateUploaded, job.StateDetecting, "file received: "+fileName)
	s.recordEvent(ctx, nil, j.ID, job.StateDetecting, job.StateMapping,
		fmt.Sprintf("detected %s (%.2f)", best.ConnectorID, best.Confidence))

	s.logger.Info("migration job created",
		"job_id", j.ID, "tenant_id", tenantID, "connector", best.ConnectorID,
		"confidence", best.Confidence, "file", fileName)

	return &CreateResult{Job: j, Candidates: candidates, Headers: headers}, nil
}

func (s *Service) persistSource(tenantID, jobID uuid.UUID, fileName string, r io.Reader) (string, int64, error) {
	dir := filepath.Join(s.cfg.DataDir, tenantID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create upload dir: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		ext = ".csv"
	}
	path := filepath.Join(dir, jobID.String()+ext)

	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create upload file: %w", err)
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("write upload file: %w", err)
	}
	return path, size, nil
}

// GetJob returns the durable job state.
func (s *Service) GetJob(ctx context.Context, tenantID, jobID uuid.UUID) (*job.Job, error) {
	j, err := s.store.GetJob(ctx, tenantID, jobID)
	if err == store.ErrNotFound {
		return nil, ErrJobNotFound
	}
	return j, err
}

// ListJobs returns the tenant's jobs, newest first.
func (s *Service) ListJobs(ctx context.Context, tenantID uuid.UUID) ([]*job.Job, error) {
	return s.store.ListJobs(ctx, tenantID)
}

// Events returns a job's audit trail.
func (s *Service) Events(ctx context.Context, tenantID, jobID uuid.UUID) ([]store.Event, error) {
	return s.store.Events(ctx, tenantID, jobID)
}

// SetConnector overrides the detected source system and resets the
// suggested mappings for the new connector's vocabulary. Legal while
// mapping or after preview (which drops the job back to mapping).
func (s *Service) SetConnector(ctx context.Context, tenantID, jobID uuid.UUID, connectorID string) (*job.Job, error) {
	if _, ok := connector.Get(connectorID); !ok {
		return nil, fmt.Errorf("unknown connector %q", connectorID)
	}

	j, err := s.GetJob(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.backToMapping(ctx, j); err != nil {
		return nil, err
	}

	headers, sampleRows, err := s.sample(ctx, j)
	if err != nil {
		return nil, err
	}

	j.ConnectorID = connectorID
	j.Confidence = 1.0 // user override is definitive
	j.Mappings = suggestionsToMappings(mapper.Suggest(headers, columnSamples(headers, sampleRows), nil))

	if err := s.store.UpdateJob(ctx, nil, j); err != nil {
		return nil, err
	}
	s.recordEvent(ctx, nil, j.ID, j.State, j.State, "connector set to "+connectorID)
	return j, nil
}

// SetMappings replaces the job's field mappings with user-confirmed ones.
func (s *Service) SetMappings(ctx context.Context, tenantID, jobID uuid.UUID, mappings []job.FieldMapping) (*job.Job, error) {
	for _, m := range mappings {
		if _, ok := mapper.TargetByKey(m.TargetField); !ok {
			return nil, fmt.Errorf("unknown target field %q", m.TargetField)
		}
	}

	j, err := s.GetJob(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	if err := s.backToMapping(ctx, j); err != nil {
		return nil, err
	}

	for i := range mappings {
		mappings[i].Origin = job.OriginUserConfirmed
		if mappings[i].Transform == "" {
			if t, ok := mapper.TargetByKey(mappings[i].TargetField); ok {
				mappings[i].Transform = t.Transform
			}
		}
	}
	j.Mappings = mappings

	if err := s.store.UpdateJob(ctx, nil, j); err != nil {
		return nil, err
	}
	s.recordEvent(ctx, nil, j.ID, j.State, j.State, fmt.Sprintf("mappings updated (%d)", len(mappings)))
	return j, nil
}

// backToMapping ensures the job is editable: already mapping, or dropped
// back from preview_ready. Any other state is an illegal transition.
func (s *Service) backToMapping(ctx context.Context, j *job.Job) error {
	if j.State == job.StateMapping {
		return nil
	}
	next, err := j.State.Transition(job.StateMapping)
	if err != nil {
		return err
	}
	s.recordEvent(ctx, nil, j.ID, j.State, next, "returned to mapping")
	j.State = next
	// Stale validation results no longer describe the job.
	j.Counters = job.Counters{}
	j.IssueSample = nil
	return nil
}

func (s *Service) sample(ctx context.Context, j *job.Job) ([]string, []rowsource.Row, error) {
	path, err := s.store.SourcePath(ctx, j.TenantID, j.ID)
	if err != nil {
		return nil, nil, err
	}
	return rowsource.Sample(path, s.cfg.SampleRows)
}

func columnSamples(headers []string, rows []rowsource.Row) map[string][]string {
	samples := make(map[string][]string, len(headers))
	for _, row := range rows {
		for _, h := range headers {
			samples[h] = append(samples[h], row.Fields[h])
		}
	}
	return samples
}

func suggestionsToMappings(suggestions []mapper.Suggestion) []job.FieldMapping {
	mappings := make([]job.FieldMapping, 0, len(suggestions))
	for _, s := range suggestions {
		mappings = append(mappings, job.FieldMapping{
			SourceColumn: s.SourceColumn,
			TargetField:  s.TargetField,
			Transform:    s.Transform,
			Confidence:   s.Confidence,
			Origin:       job.OriginSuggested,
		})
	}
	return mappings
}

// Progress returns the current progress of a job's background phase
// without blocking. Falls back to durable state when nothing is running.
func (s *Service) Progress(ctx context.Context, tenantID, jobID uuid.UUID) (Progress, error) {
	s.mu.RLock()
	active, ok := s.active[jobID]
	s.mu.RUnlock()
	if ok {
		active.ListenerMu.Lock()
		p := active.Progress
		active.ListenerMu.Unlock()
		return p, nil
	}

	j, err := s.GetJob(ctx, tenantID, jobID)
	if err != nil {
		return Progress{}, err
	}
	return progressFromJob(j), nil
}

func progressFromJob(j *job.Job) Progress {
	p := Progress{
		JobID:    j.ID,
		Phase:    j.State,
		Total:    j.Counters.Total,
		Valid:    j.Counters.Valid,
		Errors:   j.Counters.Errors,
		Imported: j.Counters.Imported,
	}
	if j.State.Terminal() || j.State == job.StateCompleted || j.State == job.StatePreviewReady {
		p.Percent = 100
		p.Processed = j.Counters.Total
	}
	return p
}

// Subscribe returns a channel receiving progress updates for a running
// phase. The channel closes when the phase finishes. The job must belong
// to the tenant; a foreign job looks the same as a missing one.
func (s *Service) Subscribe(ctx context.Context, tenantID, jobID uuid.UUID) (<-chan Progress, error) {
	if _, err := s.GetJob(ctx, tenantID, jobID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	active, ok := s.active[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrJobNotFound
	}

	ch := make(chan Progress, 10)
	active.ListenerMu.Lock()
	active.Listeners = append(active.Listeners, ch)
	select {
	case ch <- active.Progress:
	default:
	}
	active.ListenerMu.Unlock()
	return ch, nil
}

// Cancel stops a running validation or import at the next batch boundary.
// Scoped to the owning tenant like every other job operation.
func (s *Service) Cancel(ctx context.Context, tenantID, jobID uuid.UUID) error {
	if _, err := s.GetJob(ctx, tenantID, jobID); err != nil {
		return err
	}

	s.mu.RLock()
	active, ok := s.active[jobID]
	s.mu.RUnlock()
	if !ok {
		return ErrJobNotFound
	}
	active.Cancel()
	return nil
}

// Wait blocks until a job's background phase completes. Mostly for tests
// and callers that need synchronous semantics.
func (s *Service) Wait(jobID uuid.UUID) {
	s.mu.RLock()
	active, ok := s.active[jobID]
	s.mu.RUnlock()
	if ok {
		<-active.Done
	}
}

func (s *Service) track(jobID uuid.UUID, cancel context.CancelFunc, phase job.State) *activeJob {
	active := &activeJob{
		ID:     jobID,
		Cancel: cancel,
		Done:   make(chan struct{}),
		Progress: Progress{
			JobID: jobID,
			Phase: phase,
		},
	}
	s.mu.Lock()
	s.active[jobID] = active
	s.mu.Unlock()
	return active
}

func (s *Service) untrack(active *activeJob) {
	active.ListenerMu.Lock()
	for _, ch := range active.Listeners {
		close(ch)
	}
	active.Listeners = nil
	active.ListenerMu.Unlock()

	close(active.Done)

	s.mu.Lock()
	delete(s.active, active.ID)
	s.mu.Unlock()
}

func (active *activeJob) update(p Progress) {
	active.ListenerMu.Lock()
	active.Progress = p
	for _, ch := range active.Listeners {
		select {
		case ch <- p:
		default:
			// Listener is slow, skip this update.
		}
	}
	active.ListenerMu.Unlock()
}

func (s *Service) recordEvent(ctx context.Context, db store.DBTX, jobID uuid.UUID, from, to job.State, note string) {
	err := s.store.AddEvent(ctx, db, &store.Event{
		JobID:     jobID,
		FromState: from,
		ToState:   to,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("failed to record job event", "job_id", jobID, "error", err)
	}
}
