package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/botasky11/totml"
	"github.com/botasky11/totml/internal/logging"
	"github.com/botasky11/totml/pkg/config"
	"golang.org/x/term"
)

// Overrides are command-line values applied on top of the loaded configuration.
// Zero values leave the configuration untouched.
type Overrides struct {
	Goal     string
	Eval     string
	DataDir  string
	Steps    int
	Store    string
	LogLevel string
}

// LoadConfig reads path (optional), applies the overrides and validates.
func LoadConfig(path string, o Overrides) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if o.Goal != "" {
		cfg.Experiment.Goal = o.Goal
	}
	if o.Eval != "" {
		cfg.Experiment.Eval = o.Eval
	}
	if o.DataDir != "" {
		cfg.Experiment.DataDir = o.DataDir
	}
	if o.Steps > 0 {
		cfg.Experiment.Steps = o.Steps
	}
	if o.Store != "" {
		cfg.Store.Kind = o.Store
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	return cfg, cfg.Validate()
}

// NewLogger builds the application logger on stderr, keeping stdout for results.
func NewLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewWithWriter(os.Stderr, level, cfg.Format), nil
}

// OpenEngine builds the engine for cfg.
func OpenEngine(cfg config.Config, logger *slog.Logger, opts ...totml.Option) (*totml.Engine, error) {
	opts = append([]totml.Option{totml.WithLogger(logger)}, opts...)
	eng, err := totml.New(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	return eng, nil
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// TerminalWidth returns the width of w, or 0 when unknown.
func TerminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}
