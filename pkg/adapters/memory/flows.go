package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/chatflow/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Flows implements ports.FlowProvider using an in-memory map.
// Safe for concurrent use; flows can be replaced at runtime with Put.
type Flows struct {
	mu    sync.RWMutex
	flows map[string]domain.Flow
	order []string
}

// NewFlows creates a provider seeded with the given flows.
func NewFlows(flows ...domain.Flow) *Flows {
	p := &Flows{flows: make(map[string]domain.Flow)}
	for _, f := range flows {
		p.Put(f)
	}
	return p
}

// NewFlowsFromYAML decodes a YAML document holding either one flow or a
// list of flows. This keeps test fixtures and local demos readable.
func NewFlowsFromYAML(data []byte) (*Flows, error) {
	var list []domain.Flow
	if err := yaml.Unmarshal(data, &list); err != nil {
		var single domain.Flow
		if err2 := yaml.Unmarshal(data, &single); err2 != nil {
			return nil, fmt.Errorf("failed to decode flows: %w", err)
		}
		list = []domain.Flow{single}
	}
	for _, f := range list {
		if f.ID == "" {
			return nil, fmt.Errorf("flow missing id")
		}
	}
	return NewFlows(list...), nil
}

// Put adds or replaces a flow.
func (p *Flows) Put(f domain.Flow) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.flows[f.ID]; !exists {
		p.order = append(p.order, f.ID)
	}
	p.flows[f.ID] = f
}

// FindActiveByTrigger returns the first active flow, in insertion order,
// of the project whose keyword matches.
func (p *Flows) FindActiveByTrigger(ctx context.Context, projectID, tenantID, keyword string) (*domain.Flow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, id := range p.order {
		f := p.flows[id]
		if f.ProjectID != projectID || !f.IsActive() || !f.MatchesTrigger(keyword) {
			continue
		}
		if tenantID != "" && f.TenantID != "" && f.TenantID != tenantID {
			continue
		}
		return &f, nil
	}
	return nil, fmt.Errorf("%w: trigger %q in project %s", domain.ErrFlowNotFound, domain.NormalizeKeyword(keyword), projectID)
}

// FindByID returns a flow whatever its status.
func (p *Flows) FindByID(ctx context.Context, flowID string) (*domain.Flow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	f, ok := p.flows[flowID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrFlowNotFound, flowID)
	}
	return &f, nil
}

// ListFlows returns all flows sorted by id.
func (p *Flows) ListFlows(ctx context.Context) ([]domain.Flow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]domain.Flow, 0, len(p.flows))
	for _, f := range p.flows {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
