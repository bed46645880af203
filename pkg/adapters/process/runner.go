// Package process bridges subsystem actions to allow-listed local commands.
// It lets an operations team wire integration steps to existing scripts
// (provisioning CLIs, ticketing helpers) without writing Go handlers.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/orbitel/journey/pkg/registry"
)

type registeredAction struct {
	command        string
	args           []string
	env            map[string]string
	requiredFields []string
}

// Runner executes subsystem actions as local processes.
// It follows a strict registry pattern: only registered actions run.
type Runner struct {
	actions map[string]registeredAction
	baseDir string
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithActions populates the allow-list from a loaded config.
func WithActions(actions []ActionConfig) RunnerOption {
	return func(r *Runner) {
		for _, a := range actions {
			r.actions[a.Name] = registeredAction{
				command:        a.Command,
				args:           a.Args,
				env:            a.Environment,
				requiredFields: a.RequiredFields,
			}
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// NewRunner creates a process runner with an empty allow-list.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		actions: make(map[string]registeredAction),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list.
func (r *Runner) Register(action string, command string, args ...string) {
	r.actions[action] = registeredAction{
		command: command,
		args:    args,
	}
}

// Subsystem exposes the runner as a named subsystem for the dispatch
// registry. Each registered action becomes a subsystem action backed by
// its command.
func (r *Runner) Subsystem(name string) registry.Subsystem {
	actions := make(map[string]registry.ActionSpec, len(r.actions))
	for action, reg := range r.actions {
		action := action
		actions[action] = registry.ActionSpec{
			RequiredFields: reg.requiredFields,
			Handler: func(ctx context.Context, data map[string]any) (map[string]any, error) {
				return r.Execute(ctx, action, data)
			},
		}
	}
	return registry.Subsystem{Name: name, Actions: actions}
}

// Execute runs a registered action. The handoff data is passed to the
// process as JSON on stdin and as JOURNEY_ARG_* environment variables.
// Stdout is parsed as a JSON object when possible; otherwise it is
// returned under the "output" key.
func (r *Runner) Execute(ctx context.Context, action string, data map[string]any) (map[string]any, error) {
	reg, ok := r.actions[action]
	if !ok {
		return nil, fmt.Errorf("process action not registered: %s", action)
	}

	cmd := exec.CommandContext(ctx, reg.command, reg.args...)
	cmd.Dir = r.baseDir

	// Data goes through env vars rather than command flags. This prevents
	// flag injection from journey context values.
	env := make([]string, 0, len(reg.env)+len(data))
	for k, v := range reg.env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	for k, v := range data {
		var val string
		switch v.(type) {
		case string, int, int64, float64, bool:
			val = fmt.Sprintf("%v", v)
		case nil:
			val = ""
		default:
			if raw, err := json.Marshal(v); err == nil {
				val = string(raw)
			} else {
				val = fmt.Sprintf("%v", v)
			}
		}
		env = append(env, fmt.Sprintf("JOURNEY_ARG_%s=%s", strings.ToUpper(k), val))
	}
	cmd.Env = append(cmd.Environ(), env...)

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal handoff data: %w", err)
	}
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("execution failed: %v. Stderr: %s", err, stderr.String())
	}

	trimmed := strings.TrimSpace(stdout.String())
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		var result map[string]any
		if jsonErr := json.Unmarshal([]byte(trimmed), &result); jsonErr == nil {
			return result, nil
		}
	}

	return map[string]any{"output": trimmed}, nil
}
