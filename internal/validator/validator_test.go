package validator

import (
	"testing"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/dsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issueNodes(issues []domain.LintIssue) []string {
	var ids []string
	for _, i := range issues {
		ids = append(ids, i.NodeID)
	}
	return ids
}

func TestValidateFlow(t *testing.T) {
	// Scenario A: valid flow, start -> cond -> (ok | ko)
	b := dsl.New("valid").Project("p1").Trigger("go")
	b.Start("start").Go("cond")
	b.Conditional("cond", `user_input == "sim"`).True("ok").False("ko")
	b.Text("ok", "Yes")
	b.Text("ko", "No")
	flow, err := b.Build()
	require.NoError(t, err)

	assert.Empty(t, ValidateFlow(&flow, nil), "Scenario A (Valid) failed")

	// Scenario B: broken conditions and an orphan node
	broken := domain.Flow{
		ID:             "broken",
		TriggerKeyword: "x",
		Nodes: []domain.Node{
			{ID: "start", Kind: domain.KindStart},
			{ID: "bad", Kind: domain.KindConditional, Data: map[string]any{"condition": `user_input ==`}},
			{ID: "unknown", Kind: domain.KindConditional, Data: map[string]any{"condition": `shout(user_input)`}},
			{ID: "orphan", Kind: domain.KindSendText, Data: map[string]any{"text": "never"}},
		},
		Edges: []domain.Edge{
			{Source: "start", SourceHandle: domain.HandleNext, Target: "bad"},
			{Source: "bad", SourceHandle: domain.HandleTrue, Target: "unknown"},
		},
	}

	issues := ValidateFlow(&broken, nil)
	assert.ElementsMatch(t, []string{"bad", "unknown", "orphan"}, issueNodes(issues))
}

func TestUnreachable_FallbackNodesCount(t *testing.T) {
	f := domain.Flow{
		Nodes: []domain.Node{
			{ID: "start", Kind: domain.KindStart},
			{ID: "pick", Kind: domain.KindSendButtons},
			{ID: "sorry", Kind: domain.KindFallback},
			{ID: "after", Kind: domain.KindSendText},
		},
		Edges: []domain.Edge{
			{Source: "start", SourceHandle: domain.HandleNext, Target: "pick"},
			{Source: "sorry", SourceHandle: domain.HandleNext, Target: "after"},
		},
	}
	assert.Empty(t, Unreachable(&f))
}

func TestSummary(t *testing.T) {
	lines := Summary("f1", []domain.LintIssue{{NodeID: "n", Message: "boom"}, {Message: "global"}})
	assert.Equal(t, []string{"f1: n: boom", "f1: global"}, lines)
}
