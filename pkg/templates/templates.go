// Package templates loads and validates journey templates from YAML files
// or generic maps, the shapes they arrive in from disk and from API payloads.
package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/orbitel/journey/pkg/domain"
)

// LoadBytes parses a single YAML document into a validated template.
func LoadBytes(data []byte) (*domain.JourneyTemplate, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return FromMap(raw)
}

// LoadFile reads and parses one template file.
func LoadFile(path string) (*domain.JourneyTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}
	tpl, err := LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tpl, nil
}

// LoadDir loads every .yaml/.yml file in dir, sorted by file name so load
// order is stable across platforms.
func LoadDir(dir string) ([]*domain.JourneyTemplate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read template dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	templates := make([]*domain.JourneyTemplate, 0, len(paths))
	for _, p := range paths {
		tpl, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	return templates, nil
}

// FromMap decodes a generic map into a validated template. Duration fields
// accept Go duration strings ("30s", "5m") as well as integer nanoseconds.
func FromMap(raw map[string]any) (*domain.JourneyTemplate, error) {
	var tpl domain.JourneyTemplate
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     &tpl,
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, fmt.Errorf("build decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	if err := Validate(&tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// Validate checks the structural rules a template must satisfy before the
// engine will accept it. All violations are reported at once.
func Validate(tpl *domain.JourneyTemplate) error {
	var problems []string

	if tpl.ID == "" {
		problems = append(problems, "template id is required")
	}
	if len(tpl.Steps) == 0 {
		problems = append(problems, "template needs at least one step")
	}

	seenIDs := make(map[string]bool, len(tpl.Steps))
	seenOrders := make(map[int]string, len(tpl.Steps))
	for i, s := range tpl.Steps {
		where := fmt.Sprintf("step %d (%s)", i+1, s.ID)

		if s.ID == "" {
			problems = append(problems, fmt.Sprintf("step %d: id is required", i+1))
		} else if seenIDs[s.ID] {
			problems = append(problems, fmt.Sprintf("%s: duplicate step id", where))
		}
		seenIDs[s.ID] = true

		if s.Order <= 0 {
			problems = append(problems, fmt.Sprintf("%s: order must be positive", where))
		} else if prev, dup := seenOrders[s.Order]; dup {
			problems = append(problems, fmt.Sprintf("%s: order %d already used by step %s", where, s.Order, prev))
		} else {
			seenOrders[s.Order] = s.ID
		}

		switch s.Type {
		case domain.StepManual, domain.StepAutomated, domain.StepNotification:
		case domain.StepIntegration:
			if s.Target == "" {
				problems = append(problems, fmt.Sprintf("%s: integration steps need a target subsystem", where))
			}
			if s.Action == "" {
				problems = append(problems, fmt.Sprintf("%s: integration steps need an action", where))
			}
		case domain.StepApproval:
			if s.Action == "" {
				problems = append(problems, fmt.Sprintf("%s: approval steps need an action", where))
			}
		case "":
			problems = append(problems, fmt.Sprintf("%s: type is required", where))
		default:
			problems = append(problems, fmt.Sprintf("%s: unknown step type %q", where, s.Type))
		}

		for _, c := range s.Conditions {
			if c.Field == "" {
				problems = append(problems, fmt.Sprintf("%s: condition field is required", where))
			}
			if !domain.KnownOperator(c.Operator) {
				problems = append(problems, fmt.Sprintf("%s: unknown operator %q", where, c.Operator))
			}
		}
	}

	for _, trg := range tpl.Triggers {
		if trg.EventType == "" {
			problems = append(problems, fmt.Sprintf("trigger %s: event_type is required", trg.ID))
		}
		if trg.TemplateID != "" && trg.TemplateID != tpl.ID {
			problems = append(problems, fmt.Sprintf("trigger %s: references template %q instead of %q", trg.ID, trg.TemplateID, tpl.ID))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("template %s invalid:\n- %s", tpl.ID, strings.Join(problems, "\n- "))
	}
	return nil
}
