package loam

import (
	"github.com/aretw0/chatflow/pkg/domain"
)

// FlowMetadata is the frontmatter of a flow document.
// The document body is free-form and kept as the flow description.
type FlowMetadata struct {
	ID             string        `json:"id" mapstructure:"id"`
	Name           string        `json:"name" mapstructure:"name"`
	TenantID       string        `json:"tenantId" mapstructure:"tenantId"`
	ProjectID      string        `json:"projectId" mapstructure:"projectId"`
	Status         string        `json:"status" mapstructure:"status"`
	TriggerKeyword string        `json:"triggerKeyword" mapstructure:"triggerKeyword"`
	Nodes          []domain.Node `json:"nodes" mapstructure:"nodes"`
	Edges          []domain.Edge `json:"edges" mapstructure:"edges"`
}
