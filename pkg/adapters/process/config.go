package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ActionConfig declares one command-backed subsystem action.
type ActionConfig struct {
	Name           string            `yaml:"name" json:"name"`
	Command        string            `yaml:"command" json:"command"`
	Args           []string          `yaml:"args" json:"args"`
	Environment    map[string]string `yaml:"env" json:"env"`
	RequiredFields []string          `yaml:"required_fields" json:"required_fields"`
	Description    string            `yaml:"description" json:"description"`
}

// ConfigFile represents the structure of an actions.yaml file.
type ConfigFile struct {
	Actions []ActionConfig `yaml:"actions" json:"actions"`
}

// LoadActions reads a configuration file (YAML or JSON) and returns the
// declared actions. A missing file yields no actions.
func LoadActions(path string) ([]ActionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read actions config: %w", err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse actions config: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse actions config: %w", err)
		}
	}

	out := cfg.Actions[:0]
	for _, a := range cfg.Actions {
		if a.Name == "" {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
