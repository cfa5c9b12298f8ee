package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/casewise/migrator/internal/job"
	"github.com/casewise/migrator/internal/mapper"
	"github.com/casewise/migrator/internal/store"
)

// SaveTemplate persists the job's current mappings as a reusable template
// under the given name. Saving again with the same name overwrites.
func (s *Service) SaveTemplate(ctx context.Context, tenantID, jobID uuid.UUID, name string) (*store.Template, error) {
	if name == "" {
		return nil, fmt.Errorf("template name must not be empty")
	}

	j, err := s.GetJob(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	if len(j.Mappings) == 0 {
		return nil, fmt.Errorf("job has no mappings to save")
	}

	headers, _, err := s.sample(ctx, j)
	if err != nil {
		return nil, err
	}

	t := &store.Template{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Name:        name,
		Fingerprint: store.Fingerprint(headers),
		Mappings:    j.Mappings,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.SaveTemplate(ctx, t); err != nil {
		return nil, err
	}
	s.recordEvent(ctx, nil, j.ID, j.State, j.State, "mappings saved as template "+name)
	return t, nil
}

// ApplyTemplate re-runs suggestion for the job with the named template as a
// preset. Columns the template covers map with full confidence; the rest
// fall through the normal tiers.
func (s *Service) ApplyTemplate(ctx context.Context, tenantID, jobID uuid.UUID, name string) (*job.Job, error) {
	t, err := s.store.GetTemplate(ctx, tenantID, name)
	if err == store.ErrNotFound {
		return nil, fmt.Errorf("template %q not found", name)
	}
	if err != nil {
		return nil, err
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

	preset := make(mapper.Preset, len(t.Mappings))
	for _, m := range t.Mappings {
		preset[m.SourceColumn] = m.TargetField
	}

	suggestions := mapper.Suggest(headers, columnSamples(headers, sampleRows), preset)
	mappings := make([]job.FieldMapping, 0, len(suggestions))
	for _, sg := range suggestions {
		origin := job.OriginSuggested
		if sg.Strategy == mapper.StrategyTemplate {
			origin = job.OriginUserConfirmed
		}
		mappings = append(mappings, job.FieldMapping{
			SourceColumn: sg.SourceColumn,
			TargetField:  sg.TargetField,
			Transform:    sg.Transform,
			Confidence:   sg.Confidence,
			Origin:       origin,
		})
	}
	j.Mappings = mappings

	if err := s.store.UpdateJob(ctx, nil, j); err != nil {
		return nil, err
	}
	s.recordEvent(ctx, nil, j.ID, j.State, j.State, "template applied: "+name)
	return j, nil
}

// MatchTemplates ranks the tenant's saved templates against the job's
// source headers so the UI can offer the closest one.
func (s *Service) MatchTemplates(ctx context.Context, tenantID, jobID uuid.UUID) ([]store.TemplateMatch, error) {
	j, err := s.GetJob(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	headers, _, err := s.sample(ctx, j)
	if err != nil {
		return nil, err
	}
	templates, err := s.store.ListTemplates(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return store.MatchTemplates(templates, headers), nil
}

// ListTemplates returns the tenant's saved templates.
func (s *Service) ListTemplates(ctx context.Context, tenantID uuid.UUID) ([]store.Template, error) {
	return s.store.ListTemplates(ctx, tenantID)
}

// DeleteTemplate removes a saved template by name.
func (s *Service) DeleteTemplate(ctx context.Context, tenantID uuid.UUID, name string) error {
	return s.store.DeleteTemplate(ctx, tenantID, name)
}
