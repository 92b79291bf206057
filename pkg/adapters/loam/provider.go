package loam

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/loam"
)

// Provider adapts a Loam repository of flow documents to ports.FlowProvider.
// Each Markdown, JSON or YAML document holds one flow in its frontmatter.
type Provider struct {
	Repo *loam.TypedRepository[FlowMetadata]
}

// New creates a new Loam flow provider.
func New(repo *loam.TypedRepository[FlowMetadata]) *Provider {
	return &Provider{
		Repo: repo,
	}
}

// FindActiveByTrigger scans the repository for the project's active flow
// with the given trigger keyword.
func (p *Provider) FindActiveByTrigger(ctx context.Context, projectID, tenantID, keyword string) (*domain.Flow, error) {
	flows, err := p.ListFlows(ctx)
	if err != nil {
		return nil, err
	}
	for i := range flows {
		f := &flows[i]
		if f.ProjectID != projectID || !f.IsActive() || !f.MatchesTrigger(keyword) {
			continue
		}
		if tenantID != "" && f.TenantID != "" && f.TenantID != tenantID {
			continue
		}
		return f, nil
	}
	return nil, fmt.Errorf("%w: trigger %q in project %s", domain.ErrFlowNotFound, keyword, projectID)
}

// FindByID returns the flow whatever its status.
func (p *Provider) FindByID(ctx context.Context, flowID string) (*domain.Flow, error) {
	flows, err := p.ListFlows(ctx)
	if err != nil {
		return nil, err
	}
	for i := range flows {
		if flows[i].ID == flowID {
			return &flows[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrFlowNotFound, flowID)
}

// ListFlows decodes every document of the repository, sorted by id.
func (p *Provider) ListFlows(ctx context.Context) ([]domain.Flow, error) {
	docs, err := p.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string)
	flows := make([]domain.Flow, 0, len(docs))
	for _, doc := range docs {
		f := toFlow(doc.ID, doc.Data)

		// Collision Detection
		if existingPath, ok := seen[f.ID]; ok {
			return nil, fmt.Errorf("collision detected: flow '%s' is defined in both '%s' and '%s'", f.ID, existingPath, doc.ID)
		}
		seen[f.ID] = doc.ID
		flows = append(flows, f)
	}
	sort.Slice(flows, func(i, j int) bool { return flows[i].ID < flows[j].ID })
	return flows, nil
}

func toFlow(docID string, meta FlowMetadata) domain.Flow {
	id := meta.ID
	if id == "" {
		id = docID
	}

	// Documents without a status are live; flows are switched off explicitly.
	status := domain.FlowStatus(strings.ToLower(meta.Status))
	if status == "" {
		status = domain.FlowActive
	}

	return domain.Flow{
		ID:             trimExtension(id),
		TenantID:       meta.TenantID,
		ProjectID:      meta.ProjectID,
		Name:           meta.Name,
		Status:         status,
		TriggerKeyword: meta.TriggerKeyword,
		Nodes:          meta.Nodes,
		Edges:          meta.Edges,
	}
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}

// Watch implements ports.Watchable.
func (p *Provider) Watch(ctx context.Context) (<-chan struct{}, error) {
	events, err := p.Repo.Watch(ctx, "**/*.{md,json,yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan struct{}, 1)

	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				// Coalesce bursts: one pending signal is enough to invalidate.
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()

	return ch, nil
}
