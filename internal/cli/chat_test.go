package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/aretw0/chatflow/internal/config"
	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const menuFlow = `---
id: menu
projectId: proj-1
tenantId: tenant-1
triggerKeyword: menu
nodes:
  - id: start
    type: start
  - id: pick
    type: sendButtons
    data:
      body: "Do you want to proceed?"
      buttons:
        - id: "yes"
          title: "Yes"
        - id: "no"
          title: "No"
  - id: great
    type: sendText
    data:
      text: "Great! You moved forward."
edges:
  - source: start
    sourceHandle: a
    target: pick
  - source: pick
    sourceHandle: "yes"
    target: great
---
`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := testutils.FlowsDir(t, map[string]string{"menu.md": menuFlow})

	cfg := config.Default()
	cfg.FlowsDir = dir
	return cfg
}

func TestRunChat(t *testing.T) {
	cfg := testConfig(t)
	in := strings.NewReader("menu\n/tap yes\n/session\n/quit\nnever read\n")
	var out bytes.Buffer

	err := RunChat(context.Background(), cfg, logging.NewNop(), ChatOptions{
		ContactID: "local", PhoneNumberID: "sim", ProjectID: "proj-1", TenantID: "tenant-1",
		In: in, Out: &out,
	})
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, "Do you want to proceed?")
	assert.Contains(t, got, "- **Yes** `yes`")
	assert.Contains(t, got, "Great! You moved forward.")
	assert.Contains(t, got, ">>> Session ended (completed) at 'great' node.")
	assert.Contains(t, got, `"currentFlowId": "menu"`)
	assert.NotContains(t, got, "never read")
}

func TestRunChat_NoFlowMatched(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer

	err := RunChat(context.Background(), cfg, logging.NewNop(), ChatOptions{
		ContactID: "local", PhoneNumberID: "sim", ProjectID: "proj-1",
		In: strings.NewReader("hello\n"), Out: &out,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), cfg.NotUnderstoodText)
	assert.Contains(t, out.String(), ">>> no flow matched")
}

func TestBuildStack_EncryptionKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.EncryptionKey = "not-base64!"

	_, err := BuildStack(cfg, logging.NewNop())
	assert.Error(t, err)
}
