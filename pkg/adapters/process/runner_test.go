package process_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitel/journey/pkg/adapters/process"
)

func TestRunner_Execute(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("tests use sh")
	}

	runner := process.NewRunner()
	runner.Register("activate_service", "sh", "-c", `echo "{\"circuit_id\": \"cct-42\", \"plan\": \"$JOURNEY_ARG_PLAN\"}"`)

	t.Run("executes registered action and parses JSON output", func(t *testing.T) {
		result, err := runner.Execute(context.Background(), "activate_service", map[string]any{
			"plan": "fiber-600",
		})
		require.NoError(t, err)
		assert.Equal(t, "cct-42", result["circuit_id"])
		assert.Equal(t, "fiber-600", result["plan"])
	})

	t.Run("rejects unregistered actions", func(t *testing.T) {
		_, err := runner.Execute(context.Background(), "rm_minus_rf", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not registered")
	})

	t.Run("plain output lands under the output key", func(t *testing.T) {
		runner.Register("ping", "echo", "pong")
		result, err := runner.Execute(context.Background(), "ping", nil)
		require.NoError(t, err)
		assert.Equal(t, "pong", result["output"])
	})

	t.Run("failures carry stderr", func(t *testing.T) {
		runner.Register("broken", "sh", "-c", "echo oops >&2; exit 3")
		_, err := runner.Execute(context.Background(), "broken", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "oops")
	})

	t.Run("data arrives on stdin as JSON", func(t *testing.T) {
		runner.Register("cat", "sh", "-c", "cat")
		result, err := runner.Execute(context.Background(), "cat", map[string]any{"ticket_id": "T-9"})
		require.NoError(t, err)
		assert.Equal(t, "T-9", result["ticket_id"])
	})
}

func TestRunner_Subsystem(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("tests use sh")
	}

	runner := process.NewRunner(process.WithActions([]process.ActionConfig{
		{
			Name:           "create_ticket",
			Command:        "sh",
			Args:           []string{"-c", `echo "{\"ticket_id\": \"T-1\"}"`},
			RequiredFields: []string{"customer_id"},
		},
	}))

	sub := runner.Subsystem("ticketing")
	assert.Equal(t, "ticketing", sub.Name)

	spec, ok := sub.Actions["create_ticket"]
	require.True(t, ok)
	assert.Equal(t, []string{"customer_id"}, spec.RequiredFields)

	result, err := spec.Handler(context.Background(), map[string]any{"customer_id": "c-7"})
	require.NoError(t, err)
	assert.Equal(t, "T-1", result["ticket_id"])
}

func TestLoadActions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "actions.yaml")
	yaml := `
actions:
  - name: activate_service
    command: provision-cli
    args: ["--activate"]
    required_fields: [plan]
  - name: ""
    command: ignored
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	actions, err := process.LoadActions(path)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "activate_service", actions[0].Name)
	assert.Equal(t, []string{"--activate"}, actions[0].Args)
	assert.Equal(t, []string{"plan"}, actions[0].RequiredFields)

	missing, err := process.LoadActions(filepath.Join(dir, "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}
