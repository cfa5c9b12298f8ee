package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/casewise/migrator/internal/job"
	"github.com/casewise/migrator/internal/store"
)

// memStore is an in-memory Store for engine tests. Get* methods return
// copies so the engine's write-then-read behavior matches a real database.
type memStore struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*job.Job
	sources   map[uuid.UUID]string
	records   map[uuid.UUID][]*store.Record
	templates map[string]*store.Template
	events    []store.Event

	// failCommits makes that many WithTx calls fail at commit, after the
	// closure has already returned nil.
	failCommits int
}

func newMemStore() *memStore {
	return &memStore{
		jobs:      make(map[uuid.UUID]*job.Job),
		sources:   make(map[uuid.UUID]string),
		records:   make(map[uuid.UUID][]*store.Record),
		templates: make(map[string]*store.Template),
	}
}

func copyJob(j *job.Job) *job.Job {
	c := *j
	c.Mappings = append([]job.FieldMapping(nil), j.Mappings...)
	c.IssueSample = append([]job.RowIssue(nil), j.IssueSample...)
	return &c
}

// WithTx mimics real transaction semantics: job and record mutations made
// inside fn are rolled back when fn fails, and also when a forced commit
// failure is armed via failCommits.
func (m *memStore) WithTx(ctx context.Context, fn func(store.DBTX) error) error {
	m.mu.Lock()
	jobs := make(map[uuid.UUID]*job.Job, len(m.jobs))
	for id, j := range m.jobs {
		jobs[id] = copyJob(j)
	}
	records := make(map[uuid.UUID][]*store.Record, len(m.records))
	for id, recs := range m.records {
		cp := make([]*store.Record, len(recs))
		for i, r := range recs {
			c := *r
			cp[i] = &c
		}
		records[id] = cp
	}
	m.mu.Unlock()

	rollback := func() {
		m.mu.Lock()
		m.jobs = jobs
		m.records = records
		m.mu.Unlock()
	}

	if err := fn(nil); err != nil {
		rollback()
		return err
	}

	m.mu.Lock()
	fail := m.failCommits > 0
	if fail {
		m.failCommits--
	}
	m.mu.Unlock()
	if fail {
		rollback()
		return errors.New("commit tx: unexpected EOF")
	}
	return nil
}

func (m *memStore) CreateJob(ctx context.Context, j *job.Job, sourcePath string, sourceSize int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = copyJob(j)
	m.sources[j.ID] = sourcePath
	return nil
}

func (m *memStore) GetJob(ctx context.Context, tenantID, jobID uuid.UUID) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok || j.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return copyJob(j), nil
}

func (m *memStore) UpdateJob(ctx context.Context, db store.DBTX, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = copyJob(j)
	return nil
}

func (m *memStore) ListJobs(ctx context.Context, tenantID uuid.UUID) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*job.Job
	for _, j := range m.jobs {
		if j.TenantID == tenantID {
			out = append(out, copyJob(j))
		}
	}
	return out, nil
}

func (m *memStore) SourcePath(ctx context.Context, tenantID, jobID uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path, ok := m.sources[jobID]
	if !ok {
		return "", store.ErrNotFound
	}
	return path, nil
}

func (m *memStore) InsertRecord(ctx context.Context, db store.DBTX, rec *store.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *rec
	m.records[rec.JobID] = append(m.records[rec.JobID], &c)
	return nil
}

func (m *memStore) Records(ctx context.Context, tenantID, jobID uuid.UUID) ([]store.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.records[jobID]
	out := make([]store.Record, len(recs))
	for i, r := range recs {
		out[i] = *r
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowIndex < out[j].RowIndex })
	return out, nil
}

func (m *memStore) findRecord(recordID uuid.UUID) *store.Record {
	for _, recs := range m.records {
		for _, r := range recs {
			if r.ID == recordID {
				return r
			}
		}
	}
	return nil
}

func (m *memStore) MarkRecordRolledBack(ctx context.Context, db store.DBTX, recordID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.findRecord(recordID)
	if r == nil {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	r.RolledBackAt = &now
	return nil
}

func (m *memStore) MarkRecordSkipped(ctx context.Context, db store.DBTX, recordID uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.findRecord(recordID)
	if r == nil {
		return store.ErrNotFound
	}
	r.SkipReason = reason
	return nil
}

func (m *memStore) SaveTemplate(ctx context.Context, t *store.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *t
	m.templates[t.Name] = &c
	return nil
}

func (m *memStore) GetTemplate(ctx context.Context, tenantID uuid.UUID, name string) (*store.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (m *memStore) ListTemplates(ctx context.Context, tenantID uuid.UUID) ([]store.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Template
	for _, t := range m.templates {
		out = append(out, *t)
	}
	return out, nil
}

func (m *memStore) DeleteTemplate(ctx context.Context, tenantID uuid.UUID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.templates, name)
	return nil
}

func (m *memStore) AddEvent(ctx context.Context, db store.DBTX, ev *store.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *ev)
	return nil
}

func (m *memStore) Events(ctx context.Context, tenantID, jobID uuid.UUID) ([]store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Event
	for _, ev := range m.events {
		if ev.JobID == jobID {
			out = append(out, ev)
		}
	}
	return out, nil
}

var _ store.Store = (*memStore)(nil)

// memCreator fakes entity creation: each row gets one entity whose "state"
// is derived from its fields. Tests mutate states to simulate post-import
// edits.
type memCreator struct {
	mu     sync.Mutex
	states map[uuid.UUID]string
	failOn string // caseNumber substring that makes Create fail
}

func newMemCreator() *memCreator {
	return &memCreator{states: make(map[uuid.UUID]string)}
}

func (c *memCreator) Create(ctx context.Context, db store.DBTX, tenantID uuid.UUID, fields map[string]any) ([]store.EntityRef, error) {
	caseNumber, _ := fields["caseNumber"].(string)
	if c.failOn != "" && strings.Contains(caseNumber, c.failOn) {
		return nil, fmt.Errorf("duplicate key value violates unique constraint")
	}
	desc, _ := fields["description"].(string)

	c.mu.Lock()
	defer c.mu.Unlock()
	id := uuid.New()
	c.states[id] = caseNumber + "|" + desc
	return []store.EntityRef{{Type: "case", ID: id}}, nil
}

func (c *memCreator) StateHash(ctx context.Context, db store.DBTX, tenantID uuid.UUID, refs []store.EntityRef) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var parts []string
	for _, ref := range refs {
		state, ok := c.states[ref.ID]
		if !ok {
			state = "absent"
		}
		parts = append(parts, state)
	}
	return strings.Join(parts, ";"), nil
}

func (c *memCreator) Delete(ctx context.Context, db store.DBTX, tenantID uuid.UUID, refs []store.EntityRef) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ref := range refs {
		delete(c.states, ref.ID)
	}
	return nil
}

func (c *memCreator) edit(ref store.EntityRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[ref.ID] = "edited after import"
}

func newTestService(t *testing.T) (*Service, *memStore, *memCreator) {
	t.Helper()
	st := newMemStore()
	creator := newMemCreator()
	svc := NewService(st, creator, Config{
		DataDir:         t.TempDir(),
		ValidateCadence: 2,
		ImportCadence:   2,
	}, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	return svc, st, creator
}

// tenRowCSV has 10 data rows; rows 7 and 9 have an empty description and
// must fail validation.
const tenRowCSV = `Case Number,Status,Severity,Description
C-001,Open,High,Expense fraud in procurement
C-002,Closed,Low,Harassment complaint
C-003,Open,Medium,Conflict of interest disclosure
C-004,In Progress,High,Retaliation after report
C-005,Closed,Low,Data privacy question
C-006,Open,Critical,Bribery allegation
C-007,Open,Low,
C-008,Closed,Medium,Safety incident report
C-009,On Hold,Low,
C-010,Open,Medium,Accounting irregularity
`

func createCSVJob(t *testing.T, svc *Service, tenantID uuid.UUID, csv string) *CreateResult {
	t.Helper()
	res, err := svc.CreateJob(context.Background(), tenantID, "export.csv", strings.NewReader(csv), "")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return res
}

func TestCreateJobDetectsAndSuggests(t *testing.T) {
	svc, _, _ := newTestService(t)
	tenant := uuid.New()

	res := createCSVJob(t, svc, tenant, tenRowCSV)

	if res.Job.State != job.StateMapping {
		t.Fatalf("state = %s, want %s", res.Job.State, job.StateMapping)
	}
	if res.Job.ConnectorID == "" {
		t.Fatal("no connector selected")
	}
	if len(res.Candidates) == 0 {
		t.Fatal("no detection candidates")
	}

	targets := make(map[string]job.FieldMapping)
	for _, m := range res.Job.Mappings {
		targets[m.TargetField] = m
	}
	for _, want := range []string{"caseNumber", "status", "severity", "description"} {
		if _, ok := targets[want]; !ok {
			t.Errorf("missing suggested mapping for %s (got %v)", want, res.Job.Mappings)
		}
	}
	if m := targets["caseNumber"]; m.Confidence < 0.9 {
		t.Errorf("caseNumber confidence = %.2f, want >= 0.9", m.Confidence)
	}
	if m := targets["caseNumber"]; m.Origin != job.OriginSuggested {
		t.Errorf("origin = %s, want %s", m.Origin, job.OriginSuggested)
	}

	// The uploaded file must be persisted under the tenant's directory.
	var found bool
	filepath.WalkDir(svc.cfg.DataDir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			found = true
		}
		return nil
	})
	if !found {
		t.Error("uploaded file was not persisted")
	}
}

func TestCreateJobUnreadableSource(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateJob(context.Background(), uuid.New(), "empty.csv", strings.NewReader(""), "")
	if err == nil {
		t.Fatal("expected error for empty file")
	}
}

func TestValidatePartialFile(t *testing.T) {
	svc, _, _ := newTestService(t)
	tenant := uuid.New()
	res := createCSVJob(t, svc, tenant, tenRowCSV)

	if _, err := svc.Validate(context.Background(), tenant, res.Job.ID); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	svc.Wait(res.Job.ID)

	j, err := svc.GetJob(context.Background(), tenant, res.Job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if j.State != job.StatePreviewReady {
		t.Fatalf("state = %s, want %s", j.State, job.StatePreviewReady)
	}
	if j.Counters.Total != 10 || j.Counters.Valid != 8 || j.Counters.Errors != 2 {
		t.Errorf("counters = %+v, want total=10 valid=8 errors=2", j.Counters)
	}
	if !j.Counters.Consistent() {
		t.Errorf("counters inconsistent: %+v", j.Counters)
	}
	if len(j.IssueSample) == 0 {
		t.Error("expected issue sample entries for the invalid rows")
	}
}

func TestValidateAllRowsInvalid(t *testing.T) {
	svc, _, _ := newTestService(t)
	tenant := uuid.New()
	res := createCSVJob(t, svc, tenant, "Case Number,Description\nC-1,\nC-2,\n")

	if _, err := svc.Validate(context.Background(), tenant, res.Job.ID); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	svc.Wait(res.Job.ID)

	j, _ := svc.GetJob(context.Background(), tenant, res.Job.ID)
	if j.State != job.StateValidationFailed {
		t.Fatalf("state = %s, want %s", j.State, job.StateValidationFailed)
	}
}

func TestPreviewRequiresValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	tenant := uuid.New()
	res := createCSVJob(t, svc, tenant, tenRowCSV)

	if _, err := svc.Preview(context.Background(), tenant, res.Job.ID); !errors.Is(err, job.ErrIllegalTransition) {
		t.Fatalf("Preview before validation: err = %v, want ErrIllegalTransition", err)
	}
}

func TestPreviewShowsTransformedRows(t *testing.T) {
	svc, _, _ := newTestService(t)
	tenant := uuid.New()
	res := createCSVJob(t, svc, tenant, tenRowCSV)

	svc.Validate(context.Background(), tenant, res.Job.ID)
	svc.Wait(res.Job.ID)

	preview, err := svc.Preview(context.Background(), tenant, res.Job.ID)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if len(preview) != 10 {
		t.Fatalf("preview rows = %d, want 10", len(preview))
	}
	first := preview[0]
	if first.Source["Case Number"] != "C-001" {
		t.Errorf("source value = %q", first.Source["Case Number"])
	}
	if first.Transformed["caseNumber"] != "C-001" {
		t.Errorf("transformed caseNumber = %v", first.Transformed["caseNumber"])
	}
	if !first.Valid {
		t.Errorf("row 0 should be valid, issues: %v", first.Issues)
	}
	// Row 7 (index 6) has the empty description.
	if preview[6].Valid {
		t.Error("row with empty description should be invalid")
	}
}

func runToCompleted(t *testing.T, svc *Service, tenant uuid.UUID, csv string) *job.Job {
	t.Helper()
	res := createCSVJob(t, svc, tenant, csv)
	if _, err := svc.Validate(context.Background(), tenant, res.Job.ID); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	svc.Wait(res.Job.ID)
	if _, err := svc.StartImport(context.Background(), tenant, res.Job.ID, ConfirmImport); err != nil {
		t.Fatalf("StartImport: %v", err)
	}
	svc.Wait(res.Job.ID)
	j, err := svc.GetJob(context.Background(), tenant, res.Job.ID)
	if err != nil {
		t.Fatal(err)
	}
	return j
}

func TestImportPartialFile(t *testing.T) {
	svc, st, _ := newTestService(t)
	tenant := uuid.New()

	j := runToCompleted(t, svc, tenant, tenRowCSV)

	if j.State != job.StateCompleted {
		t.Fatalf("state = %s, want %s", j.State, job.StateCompleted)
	}
	if j.Counters.Imported != 8 {
		t.Errorf("imported = %d, want 8", j.Counters.Imported)
	}
	if j.RollbackDeadline == nil {
		t.Fatal("rollback deadline not set")
	}
	if until := time.Until(*j.RollbackDeadline); until < 6*24*time.Hour {
		t.Errorf("rollback window too short: %v", until)
	}

	recs, _ := st.Records(context.Background(), tenant, j.ID)
	if len(recs) != 8 {
		t.Fatalf("records = %d, want 8", len(recs))
	}
	for _, r := range recs {
		if r.StateHash == "" {
			t.Error("record missing state hash")
		}
		if len(r.Entities) == 0 {
			t.Error("record missing entity refs")
		}
	}
}

func TestImportRequiresConfirmation(t *testing.T) {
	svc, _, _ := newTestService(t)
	tenant := uuid.New()
	res := createCSVJob(t, svc, tenant, tenRowCSV)
	svc.Validate(context.Background(), tenant, res.Job.ID)
	svc.Wait(res.Job.ID)

	for _, confirm := range []string{"", "import", "yes", "CONFIRM"} {
		if _, err := svc.StartImport(context.Background(), tenant, res.Job.ID, confirm); !errors.Is(err, ErrConfirmationRequired) {
			t.Errorf("confirm %q: err = %v, want ErrConfirmationRequired", confirm, err)
		}
	}
}

func TestImportRequiresPreviewReady(t *testing.T) {
	svc, _, _ := newTestService(t)
	tenant := uuid.New()
	res := createCSVJob(t, svc, tenant, tenRowCSV)

	_, err := svc.StartImport(context.Background(), tenant, res.Job.ID, ConfirmImport)
	if !errors.Is(err, job.ErrIllegalTransition) {
		t.Fatalf("err = %v, want ErrIllegalTransition", err)
	}
}

func TestImportRowFailureDoesNotStopJob(t *testing.T) {
	svc, st, creator := newTestService(t)
	creator.failOn = "C-004"
	tenant := uuid.New()

	j := runToCompleted(t, svc, tenant, tenRowCSV)

	if j.State != job.StateCompleted {
		t.Fatalf("state = %s, want %s", j.State, job.StateCompleted)
	}
	if j.Counters.Imported != 7 {
		t.Errorf("imported = %d, want 7 (one row fails at the database)", j.Counters.Imported)
	}
	if !j.Counters.Consistent() {
		t.Errorf("counters inconsistent: %+v", j.Counters)
	}

	recs, _ := st.Records(context.Background(), tenant, j.ID)
	if len(recs) != 7 {
		t.Errorf("records = %d, want 7", len(recs))
	}
}

func TestImportCommitFailureDoesNotOvercount(t *testing.T) {
	svc, st, _ := newTestService(t)
	tenant := uuid.New()
	res := createCSVJob(t, svc, tenant, tenRowCSV)
	if _, err := svc.Validate(context.Background(), tenant, res.Job.ID); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	svc.Wait(res.Job.ID)

	// The first row's transaction fails at commit, after the closure has
	// already bumped the imported counter in memory.
	st.mu.Lock()
	st.failCommits = 1
	st.mu.Unlock()

	if _, err := svc.StartImport(context.Background(), tenant, res.Job.ID, ConfirmImport); err != nil {
		t.Fatalf("StartImport: %v", err)
	}
	svc.Wait(res.Job.ID)

	j, err := svc.GetJob(context.Background(), tenant, res.Job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if j.State != job.StateCompleted {
		t.Fatalf("state = %s, want %s", j.State, job.StateCompleted)
	}

	recs, _ := st.Records(context.Background(), tenant, j.ID)
	if j.Counters.Imported != len(recs) {
		t.Errorf("imported = %d but %d records exist", j.Counters.Imported, len(recs))
	}
	if j.Counters.Imported != 7 {
		t.Errorf("imported = %d, want 7 (one commit fails)", j.Counters.Imported)
	}
	if !j.Counters.Consistent() {
		t.Errorf("counters inconsistent: %+v", j.Counters)
	}
}

func TestRollback(t *testing.T) {
	svc, st, creator := newTestService(t)
	tenant := uuid.New()
	j := runToCompleted(t, svc, tenant, tenRowCSV)

	// Wrong token first.
	if _, err := svc.Rollback(context.Background(), tenant, j.ID, "rollback"); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("err = %v, want ErrConfirmationRequired", err)
	}

	// Edit one imported entity so its hash no longer matches.
	recs, _ := st.Records(context.Background(), tenant, j.ID)
	creator.edit(recs[2].Entities[0])

	report, err := svc.Rollback(context.Background(), tenant, j.ID, ConfirmRollback)
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if report.Deleted != 7 || report.Skipped != 1 {
		t.Errorf("report = %+v, want deleted=7 skipped=1", report)
	}
	if len(report.SkippedList) != 1 || report.SkippedList[0] != recs[2].RowIndex {
		t.Errorf("skipped rows = %v, want [%d]", report.SkippedList, recs[2].RowIndex)
	}

	j, _ = svc.GetJob(context.Background(), tenant, j.ID)
	if j.State != job.StateRolledBack {
		t.Fatalf("state = %s, want %s", j.State, job.StateRolledBack)
	}

	recs, _ = st.Records(context.Background(), tenant, j.ID)
	var rolledBack, skipped int
	for _, r := range recs {
		switch {
		case r.RolledBackAt != nil:
			rolledBack++
		case r.SkipReason == SkipReasonModified:
			skipped++
		}
	}
	if rolledBack != 7 || skipped != 1 {
		t.Errorf("records: rolledBack=%d skipped=%d, want 7/1", rolledBack, skipped)
	}

	// A second rollback is illegal: the job is terminal.
	if _, err := svc.Rollback(context.Background(), tenant, j.ID, ConfirmRollback); !errors.Is(err, job.ErrIllegalTransition) {
		t.Errorf("second rollback: err = %v, want ErrIllegalTransition", err)
	}
}

func TestRollbackWindowExpired(t *testing.T) {
	svc, st, _ := newTestService(t)
	tenant := uuid.New()
	j := runToCompleted(t, svc, tenant, tenRowCSV)

	st.mu.Lock()
	past := time.Now().UTC().Add(-time.Hour)
	st.jobs[j.ID].RollbackDeadline = &past
	st.mu.Unlock()

	if _, err := svc.Rollback(context.Background(), tenant, j.ID, ConfirmRollback); !errors.Is(err, ErrRollbackWindowExpired) {
		t.Fatalf("err = %v, want ErrRollbackWindowExpired", err)
	}

	status, err := svc.GetRollbackStatus(context.Background(), tenant, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if status.Open {
		t.Error("status.Open = true for expired window")
	}
}

func TestSetMappingsAfterPreviewReturnsToMapping(t *testing.T) {
	svc, _, _ := newTestService(t)
	tenant := uuid.New()
	res := createCSVJob(t, svc, tenant, tenRowCSV)
	svc.Validate(context.Background(), tenant, res.Job.ID)
	svc.Wait(res.Job.ID)

	j, err := svc.SetMappings(context.Background(), tenant, res.Job.ID, []job.FieldMapping{
		{SourceColumn: "Case Number", TargetField: "caseNumber"},
		{SourceColumn: "Description", TargetField: "description"},
	})
	if err != nil {
		t.Fatalf("SetMappings: %v", err)
	}
	if j.State != job.StateMapping {
		t.Fatalf("state = %s, want %s", j.State, job.StateMapping)
	}
	// Stale validation counters must be cleared.
	if j.Counters.Total != 0 {
		t.Errorf("counters not reset: %+v", j.Counters)
	}
	for _, m := range j.Mappings {
		if m.Origin != job.OriginUserConfirmed {
			t.Errorf("origin = %s, want %s", m.Origin, job.OriginUserConfirmed)
		}
		if m.Transform == "" {
			t.Errorf("transform not filled for %s", m.TargetField)
		}
	}
}

func TestSetMappingsRejectsUnknownTarget(t *testing.T) {
	svc, _, _ := newTestService(t)
	tenant := uuid.New()
	res := createCSVJob(t, svc, tenant, tenRowCSV)

	_, err := svc.SetMappings(context.Background(), tenant, res.Job.ID, []job.FieldMapping{
		{SourceColumn: "Case Number", TargetField: "nonsense"},
	})
	if err == nil || !strings.Contains(err.Error(), "unknown target field") {
		t.Fatalf("err = %v, want unknown target field", err)
	}
}

func TestImportBlockedWithoutRequiredMapping(t *testing.T) {
	svc, _, _ := newTestService(t)
	tenant := uuid.New()
	res := createCSVJob(t, svc, tenant, tenRowCSV)

	// Drop the description mapping, validate, then try to import.
	var kept []job.FieldMapping
	for _, m := range res.Job.Mappings {
		if m.TargetField != "description" {
			kept = append(kept, m)
		}
	}
	if _, err := svc.SetMappings(context.Background(), tenant, res.Job.ID, kept); err != nil {
		t.Fatal(err)
	}
	svc.Validate(context.Background(), tenant, res.Job.ID)
	svc.Wait(res.Job.ID)

	_, err := svc.StartImport(context.Background(), tenant, res.Job.ID, ConfirmImport)
	if !errors.Is(err, ErrMappingIncomplete) {
		t.Fatalf("err = %v, want ErrMappingIncomplete", err)
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	svc, _, _ := newTestService(t)
	tenant := uuid.New()
	res := createCSVJob(t, svc, tenant, tenRowCSV)

	tmpl, err := svc.SaveTemplate(context.Background(), tenant, res.Job.ID, "navex-quarterly")
	if err != nil {
		t.Fatalf("SaveTemplate: %v", err)
	}
	if tmpl.Fingerprint == "" {
		t.Error("template has no fingerprint")
	}

	// A second upload of the same shape applies the template outright.
	res2 := createCSVJob(t, svc, tenant, tenRowCSV)
	j, err := svc.ApplyTemplate(context.Background(), tenant, res2.Job.ID, "navex-quarterly")
	if err != nil {
		t.Fatalf("ApplyTemplate: %v", err)
	}
	var templated int
	for _, m := range j.Mappings {
		if m.Origin == job.OriginUserConfirmed && m.Confidence == 1.0 {
			templated++
		}
	}
	if templated == 0 {
		t.Error("no mappings came from the template")
	}

	matches, err := svc.MatchTemplates(context.Background(), tenant, res2.Job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Score != 1.0 {
		t.Errorf("matches = %+v, want one exact match", matches)
	}

	if err := svc.DeleteTemplate(context.Background(), tenant, "navex-quarterly"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ApplyTemplate(context.Background(), tenant, res2.Job.ID, "navex-quarterly"); err == nil {
		t.Error("applying a deleted template should fail")
	}
}

func TestTenantIsolation(t *testing.T) {
	svc, _, _ := newTestService(t)
	tenantA, tenantB := uuid.New(), uuid.New()
	res := createCSVJob(t, svc, tenantA, tenRowCSV)

	if _, err := svc.GetJob(context.Background(), tenantB, res.Job.ID); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("cross-tenant access: err = %v, want ErrJobNotFound", err)
	}
}

func TestSubscribeAndCancelTenantScoped(t *testing.T) {
	svc, _, _ := newTestService(t)
	tenantA, tenantB := uuid.New(), uuid.New()
	res := createCSVJob(t, svc, tenantA, tenRowCSV)

	// Another tenant can neither watch nor stop the job; a foreign job
	// looks exactly like a missing one.
	if _, err := svc.Subscribe(context.Background(), tenantB, res.Job.ID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("cross-tenant subscribe: err = %v, want ErrJobNotFound", err)
	}
	if err := svc.Cancel(context.Background(), tenantB, res.Job.ID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("cross-tenant cancel: err = %v, want ErrJobNotFound", err)
	}

	// The owner of an idle job gets not-found too, never a hang.
	if _, err := svc.Subscribe(context.Background(), tenantA, res.Job.ID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("idle subscribe: err = %v, want ErrJobNotFound", err)
	}

	// The owner can cancel a running phase. The phase may already have
	// finished by the time Cancel lands, which also reports not-found.
	if _, err := svc.Validate(context.Background(), tenantA, res.Job.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.Cancel(context.Background(), tenantA, res.Job.ID); err != nil && !errors.Is(err, ErrJobNotFound) {
		t.Errorf("owner cancel: %v", err)
	}
	svc.Wait(res.Job.ID)
}

func TestProgressFallsBackToDurableState(t *testing.T) {
	svc, _, _ := newTestService(t)
	tenant := uuid.New()
	j := runToCompleted(t, svc, tenant, tenRowCSV)

	p, err := svc.Progress(context.Background(), tenant, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if p.Phase != job.StateCompleted || p.Imported != 8 || p.Percent != 100 {
		t.Errorf("progress = %+v", p)
	}
}

func TestEventsRecordLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t)
	tenant := uuid.New()
	j := runToCompleted(t, svc, tenant, tenRowCSV)

	events, err := svc.Events(context.Background(), tenant, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	var sawCompleted bool
	for _, ev := range events {
		if ev.ToState == job.StateCompleted {
			sawCompleted = true
		}
	}
	if !sawCompleted {
		t.Errorf("no completion event in %d events", len(events))
	}
}

func TestImportLimiter(t *testing.T) {
	l := NewImportLimiter(1, 50*time.Millisecond)

	if !l.TryAcquire() {
		t.Fatal("first TryAcquire should succeed")
	}
	if l.TryAcquire() {
		t.Fatal("second TryAcquire should fail at capacity 1")
	}
	if err := l.Acquire(context.Background()); !errors.Is(err, ErrTooManyImports) {
		t.Fatalf("Acquire at capacity: err = %v, want ErrTooManyImports", err)
	}

	l.Release()
	if l.ActiveCount() != 0 {
		t.Errorf("active = %d after release", l.ActiveCount())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.WaitForDrain(ctx); err != nil {
		t.Errorf("WaitForDrain: %v", err)
	}
}

func TestForUser(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{ErrConfirmationRequired, "JOB003"},
		{ErrRollbackWindowExpired, "RBK001"},
		{ErrMappingIncomplete, "MAP001"},
		{ErrJobNotFound, "JOB002"},
		{ErrTooManyImports, "JOB004"},
		{job.ErrIllegalTransition, "JOB001"},
		{errors.New("pq: duplicate key value violates unique constraint"), "ROW001"},
		{errors.New("something completely different"), "ERR000"},
	}
	for _, tt := range tests {
		if got := ForUser(tt.err); got.Code != tt.code {
			t.Errorf("ForUser(%v).Code = %s, want %s", tt.err, got.Code, tt.code)
		}
	}
	if msg := ForUser(nil); msg.Code != "" {
		t.Errorf("ForUser(nil) = %+v", msg)
	}
}
