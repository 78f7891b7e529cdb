package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/botasky11/totml/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration of a totml run or server.
type Config struct {
	Experiment ExperimentConfig `yaml:"experiment" json:"experiment"`
	Agent      AgentConfig      `yaml:"agent" json:"agent"`
	Exec       ExecConfig       `yaml:"exec" json:"exec"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Backend    BackendConfig    `yaml:"backend" json:"backend"`
	Preview    PreviewConfig    `yaml:"preview" json:"preview"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Log        LogConfig        `yaml:"log" json:"log"`
}

// ExperimentConfig describes the task and the run length.
type ExperimentConfig struct {
	Name         string `yaml:"name" json:"name" validate:"max=255"`
	Goal         string `yaml:"goal" json:"goal"`
	Eval         string `yaml:"eval" json:"eval"`
	DataDir      string `yaml:"data_dir" json:"data_dir"`
	WorkspaceDir string `yaml:"workspace_dir" json:"workspace_dir" validate:"required"`
	Steps        int    `yaml:"steps" json:"steps" validate:"min=1,max=1000"`
}

// ModelConfig selects a backend model.
type ModelConfig struct {
	Model       string   `yaml:"model" json:"model" validate:"required"`
	Temperature *float64 `yaml:"temp" json:"temp" validate:"omitempty,min=0,max=2"`
}

// AgentConfig tunes the search and prompt construction.
type AgentConfig struct {
	NumDrafts        int         `yaml:"num_drafts" json:"num_drafts" validate:"min=0"`
	DebugProb        float64     `yaml:"debug_prob" json:"debug_prob" validate:"min=0,max=1"`
	MaxDebugDepth    int         `yaml:"max_debug_depth" json:"max_debug_depth" validate:"min=0"`
	Code             ModelConfig `yaml:"code" json:"code"`
	Feedback         ModelConfig `yaml:"feedback" json:"feedback"`
	ExposePrediction bool        `yaml:"expose_prediction" json:"expose_prediction"`
	KFoldValidation  int         `yaml:"k_fold_validation" json:"k_fold_validation" validate:"min=1"`
	DataPreview      bool        `yaml:"data_preview" json:"data_preview"`
	// Seed fixes the agent's random source; 0 picks a random seed.
	Seed          uint64 `yaml:"seed" json:"seed"`
	PromptsDir    string `yaml:"prompts_dir" json:"prompts_dir"`
	PromptVersion string `yaml:"prompt_version" json:"prompt_version"`
}

// ExecConfig configures the code sandbox.
type ExecConfig struct {
	Command  []string      `yaml:"command" json:"command" validate:"min=1,dive,required"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
	FileName string        `yaml:"file_name" json:"file_name" validate:"required"`
	Env      []string      `yaml:"env" json:"env"`
}

// StoreConfig selects the experiment store.
type StoreConfig struct {
	Kind          string `yaml:"kind" json:"kind" validate:"oneof=memory file redis badger"`
	Path          string `yaml:"path" json:"path" validate:"required_if=Kind file,required_if=Kind badger"`
	RedisAddr     string `yaml:"redis_addr" json:"redis_addr" validate:"required_if=Kind redis"`
	RedisPassword string `yaml:"redis_password" json:"redis_password"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db" validate:"min=0"`
	Prefix        string `yaml:"prefix" json:"prefix"`
	// TTL expires stored experiments (redis and badger); 0 keeps them forever.
	TTL time.Duration `yaml:"ttl" json:"ttl" validate:"min=0"`
	// EncryptionKey is a base64 AES-256 key; when set, task, code and journal
	// are encrypted at rest.
	EncryptionKey string `yaml:"encryption_key" json:"encryption_key" validate:"omitempty,base64"`
	// Redact masks credentials in terminal output before it is stored.
	Redact bool `yaml:"redact" json:"redact"`
}

// BackendConfig tunes calls to the generative backend.
type BackendConfig struct {
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens" validate:"min=0"`
	RateLimit   float64       `yaml:"rate_limit" json:"rate_limit" validate:"min=0"`
	Burst       int           `yaml:"burst" json:"burst" validate:"min=0"`
	MaxRetries  int           `yaml:"max_retries" json:"max_retries" validate:"min=0,max=10"`
	RetryBase   time.Duration `yaml:"retry_base" json:"retry_base" validate:"min=0"`
	HTTPTimeout time.Duration `yaml:"http_timeout" json:"http_timeout" validate:"min=0"`
}

// PreviewConfig tunes the data overview.
type PreviewConfig struct {
	Exclude []string `yaml:"exclude" json:"exclude"`
	MaxLen  int      `yaml:"max_len" json:"max_len" validate:"min=0"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr" validate:"required"`
}

// LogConfig configures the application logger.
type LogConfig struct {
	Level  string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"oneof=text json"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	temp := 0.5
	feedbackTemp := 0.5
	return Config{
		Experiment: ExperimentConfig{
			Name:         "experiment",
			DataDir:      "./input",
			WorkspaceDir: "./workspaces",
			Steps:        20,
		},
		Agent: AgentConfig{
			NumDrafts:       5,
			DebugProb:       0.5,
			MaxDebugDepth:   3,
			Code:            ModelConfig{Model: "gpt-4o", Temperature: &temp},
			Feedback:        ModelConfig{Model: "gpt-4o-mini", Temperature: &feedbackTemp},
			KFoldValidation: 5,
			DataPreview:     true,
			PromptVersion:   "default",
		},
		Exec: ExecConfig{
			Command:  []string{"python3"},
			Timeout:  time.Hour,
			FileName: "runfile.py",
		},
		Store: StoreConfig{
			Kind:   "file",
			Path:   "./workspaces/experiments",
			Prefix: "totml",
			Redact: true,
		},
		Backend: BackendConfig{
			RateLimit:   2,
			Burst:       1,
			MaxRetries:  5,
			RetryBase:   time.Second,
			HTTPTimeout: 10 * time.Minute,
		},
		Preview: PreviewConfig{
			Exclude: []string{"**/.*", "**/__pycache__/**"},
			MaxLen:  6000,
		},
		Server: ServerConfig{Addr: ":8080"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds a configuration with priority env > file > defaults and
// validates the result. An empty path skips the file. Environment values
// that do not parse fail the load alongside any invalid field.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	envErrs := applyEnv(&cfg, os.LookupEnv)

	err := cfg.Validate()
	if len(envErrs) == 0 {
		return cfg, err
	}
	aggr := &AggregateError{Errors: envErrs}
	if verrs := ValidationErrors(err); verrs != nil {
		aggr.Errors = append(aggr.Errors, verrs...)
	} else if err != nil {
		aggr.Errors = append(aggr.Errors, err)
	}
	return cfg, aggr
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		return json.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnv overrides fields from TOTML_* variables. Values that do not parse
// are reported as validation errors keyed by the field they target.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) []error {
	var errs []error
	invalid := func(env, field, value, want string) {
		errs = append(errs, &ValidationError{
			Key:    field,
			Reason: fmt.Sprintf("%s must be %s", env, want),
			Value:  value,
		})
	}
	str := func(env string, dst *string) {
		if v, ok := lookup(env); ok && v != "" {
			*dst = v
		}
	}
	integer := func(env, field string, dst *int) {
		if v, ok := lookup(env); ok {
			i, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				invalid(env, field, v, "an integer")
				return
			}
			*dst = i
		}
	}
	float := func(env, field string, dst *float64) {
		if v, ok := lookup(env); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				invalid(env, field, v, "a number")
				return
			}
			*dst = f
		}
	}
	duration := func(env, field string, dst *time.Duration) {
		if v, ok := lookup(env); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				invalid(env, field, v, "a duration such as 90s")
				return
			}
			*dst = d
		}
	}

	str("TOTML_EXPERIMENT_NAME", &cfg.Experiment.Name)
	str("TOTML_GOAL", &cfg.Experiment.Goal)
	str("TOTML_EVAL", &cfg.Experiment.Eval)
	str("TOTML_DATA_DIR", &cfg.Experiment.DataDir)
	str("TOTML_WORKSPACE_DIR", &cfg.Experiment.WorkspaceDir)
	integer("TOTML_STEPS", "experiment.steps", &cfg.Experiment.Steps)

	integer("TOTML_NUM_DRAFTS", "agent.num_drafts", &cfg.Agent.NumDrafts)
	float("TOTML_DEBUG_PROB", "agent.debug_prob", &cfg.Agent.DebugProb)
	integer("TOTML_MAX_DEBUG_DEPTH", "agent.max_debug_depth", &cfg.Agent.MaxDebugDepth)
	str("TOTML_CODE_MODEL", &cfg.Agent.Code.Model)
	str("TOTML_FEEDBACK_MODEL", &cfg.Agent.Feedback.Model)
	if v, ok := lookup("TOTML_SEED"); ok {
		seed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			invalid("TOTML_SEED", "agent.seed", v, "a non-negative integer")
		} else {
			cfg.Agent.Seed = seed
		}
	}

	duration("TOTML_EXEC_TIMEOUT", "exec.timeout", &cfg.Exec.Timeout)

	str("TOTML_STORE", &cfg.Store.Kind)
	str("TOTML_STORE_PATH", &cfg.Store.Path)
	str("TOTML_REDIS_ADDR", &cfg.Store.RedisAddr)
	str("TOTML_REDIS_PASSWORD", &cfg.Store.RedisPassword)
	str("TOTML_STORE_KEY", &cfg.Store.EncryptionKey)

	float("TOTML_RATE_LIMIT", "backend.rate_limit", &cfg.Backend.RateLimit)
	integer("TOTML_MAX_TOKENS", "backend.max_tokens", &cfg.Backend.MaxTokens)

	str("TOTML_ADDR", &cfg.Server.Addr)
	str("TOTML_LOG_LEVEL", &cfg.Log.Level)
	str("TOTML_LOG_FORMAT", &cfg.Log.Format)
	return errs
}

// Snapshot flattens the settings worth persisting alongside an experiment.
func (c Config) Snapshot() map[string]any {
	return map[string]any{
		"steps":           c.Experiment.Steps,
		"num_drafts":      c.Agent.NumDrafts,
		"debug_prob":      c.Agent.DebugProb,
		"max_debug_depth": c.Agent.MaxDebugDepth,
		"code_model":      c.Agent.Code.Model,
		"feedback_model":  c.Agent.Feedback.Model,
		"exec_timeout":    c.Exec.Timeout.String(),
		"seed":            c.Agent.Seed,
	}
}

// Task returns the experiment task described by the configuration.
func (c Config) Task() domain.Task {
	return domain.Task{
		Goal:    c.Experiment.Goal,
		Eval:    c.Experiment.Eval,
		DataDir: c.Experiment.DataDir,
	}
}
