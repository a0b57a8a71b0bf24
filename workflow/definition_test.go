package workflow

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}

const sampleYAML = `
name: nightly-report
description: fetch, aggregate and render the nightly report
steps:
  - name: fetch_orders
    timeout: 5s
    retries: 2
  - name: fetch_users
  - name: aggregate
    depends_on: [fetch_orders, fetch_users]
  - name: notify
    work: send_notification
    depends_on: [aggregate]
    critical: false
`

func sampleRegistry() *WorkRegistry {
	registry := NewWorkRegistry()
	registry.Register("fetch_orders", constWork([]string{"o1", "o2"}))
	registry.Register("fetch_users", constWork([]string{"u1"}))
	registry.Register("aggregate", func(ctx context.Context, results map[string]any) (any, error) {
		orders := results["fetch_orders"].([]string)
		users := results["fetch_users"].([]string)
		return len(orders) + len(users), nil
	})
	registry.Register("send_notification", constWork("sent"))
	return registry
}

// ---------------------------------------------------------------------------
// Parsing & validation
// ---------------------------------------------------------------------------

func TestDefinitionFromYAML(t *testing.T) {
	t.Parallel()
	def, err := DefinitionFromYAML(sampleYAML)
	require.NoError(t, err)

	assert.Equal(t, "nightly-report", def.Name)
	require.Len(t, def.Steps, 4)
	assert.Equal(t, Duration(5*time.Second), def.Steps[0].Timeout)
	assert.Equal(t, 2, def.Steps[0].Retries)
	assert.Equal(t, []string{"fetch_orders", "fetch_users"}, def.Steps[2].DependsOn)
	require.NotNil(t, def.Steps[3].Critical)
	assert.False(t, *def.Steps[3].Critical)
}

func TestDefinition_Validate_UnknownDependency(t *testing.T) {
	t.Parallel()
	_, err := DefinitionFromYAML(`
name: broken
steps:
  - name: a
    depends_on: [ghost]
`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownDependency)
}

func TestDefinition_Validate_DuplicateName(t *testing.T) {
	t.Parallel()
	def := &Definition{
		Name: "dup",
		Steps: []StepDefinition{
			{Name: "a"},
			{Name: "a"},
		},
	}
	err := def.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateStep)
}

func TestDefinition_Validate_NegativeRetries(t *testing.T) {
	t.Parallel()
	def := &Definition{
		Name:  "neg",
		Steps: []StepDefinition{{Name: "a", Retries: -1}},
	}
	assert.Error(t, def.Validate())
}

func TestDefinitionFromYAML_InvalidDuration(t *testing.T) {
	t.Parallel()
	_, err := DefinitionFromYAML(`
name: bad-duration
steps:
  - name: a
    timeout: not-a-duration
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

// ---------------------------------------------------------------------------
// Build & execute
// ---------------------------------------------------------------------------

func TestDefinition_Build_CriticalDefaultsToTrue(t *testing.T) {
	t.Parallel()
	def, err := DefinitionFromYAML(sampleYAML)
	require.NoError(t, err)

	steps, err := def.Build(sampleRegistry())
	require.NoError(t, err)
	require.Len(t, steps, 4)

	assert.True(t, steps[0].Critical)
	assert.False(t, steps[3].Critical)
	assert.Equal(t, 5*time.Second, steps[0].Timeout)
}

func TestDefinition_Build_UnregisteredWork(t *testing.T) {
	t.Parallel()
	def := &Definition{
		Name:  "missing",
		Steps: []StepDefinition{{Name: "a", Work: "nowhere"}},
	}
	_, err := def.Build(NewWorkRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"nowhere" is not registered`)
}

func TestDefinition_BuildAndExecute(t *testing.T) {
	t.Parallel()
	def, err := DefinitionFromYAML(sampleYAML)
	require.NoError(t, err)

	steps, err := def.Build(sampleRegistry())
	require.NoError(t, err)

	results, err := Execute(context.Background(), steps, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, results["aggregate"])
	assert.Equal(t, "sent", results["notify"])
}

// ---------------------------------------------------------------------------
// Round trips
// ---------------------------------------------------------------------------

func TestDefinition_YAMLRoundTrip(t *testing.T) {
	t.Parallel()
	def, err := DefinitionFromYAML(sampleYAML)
	require.NoError(t, err)

	encoded, err := def.ToYAML()
	require.NoError(t, err)

	decoded, err := DefinitionFromYAML(encoded)
	require.NoError(t, err)
	assert.Equal(t, def, decoded)
}

func TestDefinition_JSONRoundTrip(t *testing.T) {
	t.Parallel()
	def, err := DefinitionFromYAML(sampleYAML)
	require.NoError(t, err)

	encoded, err := def.ToJSON()
	require.NoError(t, err)

	decoded, err := DefinitionFromJSON(encoded)
	require.NoError(t, err)
	assert.Equal(t, def, decoded)
}

func TestLoadDefinitionFromYAMLFile(t *testing.T) {
	t.Parallel()
	path := t.TempDir() + "/graph.yaml"
	require.NoError(t, writeTestFile(path, sampleYAML))

	def, err := LoadDefinitionFromYAMLFile(path)
	require.NoError(t, err)
	assert.Equal(t, "nightly-report", def.Name)
}

func TestLoadDefinitionFromYAMLFile_Missing(t *testing.T) {
	t.Parallel()
	_, err := LoadDefinitionFromYAMLFile(t.TempDir() + "/absent.yaml")
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

func TestWorkRegistry_List(t *testing.T) {
	t.Parallel()
	registry := NewWorkRegistry()
	registry.Register("zeta", noopWork)
	registry.Register("alpha", noopWork)

	assert.Equal(t, []string{"alpha", "zeta"}, registry.List())

	_, ok := registry.Get("alpha")
	assert.True(t, ok)
	_, ok = registry.Get("ghost")
	assert.False(t, ok)
}
