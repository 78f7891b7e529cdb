package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config describes how candidate code is executed.
type Config struct {
	// Command is the interpreter invocation; the script path is appended.
	Command []string `yaml:"command" json:"command"`
	// FileName is the script written into the workspace.
	FileName string `yaml:"file_name" json:"file_name"`
	// Timeout bounds a single run. Zero means no limit.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// Grace is how long an interrupted script may take to exit before it is killed.
	Grace time.Duration `yaml:"grace" json:"grace"`
	// Env holds extra KEY=VALUE pairs appended to the inherited environment.
	Env []string `yaml:"env" json:"env"`
}

// DefaultConfig runs runfile.py with python3 for at most one hour.
func DefaultConfig() Config {
	return Config{
		Command:  []string{"python3"},
		FileName: "runfile.py",
		Timeout:  time.Hour,
		Grace:    5 * time.Second,
	}
}

// LoadConfig reads an interpreter configuration file (YAML or JSON) over the defaults.
// A missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read interpreter config: %w", err)
	}

	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	}

	if len(cfg.Command) == 0 {
		return cfg, fmt.Errorf("interpreter config %s: empty command", path)
	}
	return cfg, nil
}
