package domain_test

import (
	"testing"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFlow() *domain.Flow {
	return &domain.Flow{
		ID:             "welcome",
		Status:         domain.FlowActive,
		TriggerKeyword: "  Hello ",
		Nodes: []domain.Node{
			{ID: "greet", Kind: domain.KindSendText, Data: map[string]any{"text": "hi"}},
			{ID: "s", Kind: domain.KindStart},
			{ID: "old", Kind: domain.KindLegacyText, Data: map[string]any{"text": "legacy"}},
			{ID: "greet", Kind: domain.KindSendText, Data: map[string]any{"text": "shadowed"}},
		},
		Edges: []domain.Edge{
			{Source: "s", SourceHandle: "a", Target: "greet"},
			{Source: "old", SourceHandle: "reply", Target: "greet"},
		},
	}
}

func TestFlow_MatchesTrigger(t *testing.T) {
	f := sampleFlow()
	assert.True(t, f.MatchesTrigger("hello"))
	assert.True(t, f.MatchesTrigger(" HELLO\n"))
	assert.False(t, f.MatchesTrigger("hell"))
}

func TestFlow_EntryNode(t *testing.T) {
	f := sampleFlow()

	n, ok := f.EntryNode(domain.KindStart)
	require.True(t, ok)
	assert.Equal(t, "s", n.ID, "first start node wins over declaration order")

	f.Nodes = f.Nodes[:1]
	n, ok = f.EntryNode(domain.KindStart)
	require.True(t, ok)
	assert.Equal(t, "greet", n.ID, "falls back to the first declared node")

	empty := &domain.Flow{}
	_, ok = empty.EntryNode(domain.KindStart)
	assert.False(t, ok)
}

func TestFlow_NodeFirstDeclaredWins(t *testing.T) {
	n, ok := sampleFlow().Node("greet")
	require.True(t, ok)
	assert.Equal(t, "hi", n.Data["text"])
}

func TestFlow_Edges(t *testing.T) {
	f := sampleFlow()

	next, ok := f.Next("s")
	require.True(t, ok)
	assert.Equal(t, "greet", next)

	_, ok = f.Next("old")
	assert.False(t, ok, "strict kinds only follow the a handle")

	next, ok = f.LegacyNext("old")
	require.True(t, ok)
	assert.Equal(t, "greet", next)
}

func TestFlow_Lint(t *testing.T) {
	f := sampleFlow()
	f.Nodes = append(f.Nodes, domain.Node{ID: "x", Kind: "carousel"})
	f.Edges = append(f.Edges, domain.Edge{Source: "greet", SourceHandle: "a", Target: "missing"})

	var msgs []string
	for _, issue := range f.Lint() {
		msgs = append(msgs, issue.String())
	}
	assert.Contains(t, msgs, "greet: duplicate node id")
	assert.Contains(t, msgs, `x: unknown node type "carousel"`)
	assert.Contains(t, msgs, `greet: edge "a" points to unknown node "missing"`)
}

func TestFlow_LintClean(t *testing.T) {
	f := &domain.Flow{
		Nodes: []domain.Node{
			{ID: "s", Kind: domain.KindStart},
			{ID: "t", Kind: domain.KindSendText, Data: map[string]any{"text": "ok"}},
		},
		Edges: []domain.Edge{{Source: "s", SourceHandle: "a", Target: "t"}},
	}
	assert.Empty(t, f.Lint())
}
