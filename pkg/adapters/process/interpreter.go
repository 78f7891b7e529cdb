package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/botasky11/totml/internal/logging"
	"github.com/botasky11/totml/pkg/domain"
)

// Interpreter runs candidate code as a script inside a workspace directory.
// It implements ports.Interpreter.
type Interpreter struct {
	cfg       Config
	workspace string
	logger    *slog.Logger
}

// Option configures the interpreter.
type Option func(*Interpreter)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interpreter) {
		i.logger = logger
	}
}

// WithConfig replaces the default execution settings.
func WithConfig(cfg Config) Option {
	return func(i *Interpreter) {
		i.cfg = cfg
	}
}

// NewInterpreter creates an interpreter rooted at workspace.
func NewInterpreter(workspace string, opts ...Option) *Interpreter {
	i := &Interpreter{
		cfg:       DefaultConfig(),
		workspace: workspace,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ScriptPath returns where the code is written.
func (i *Interpreter) ScriptPath() string {
	return filepath.Join(i.workspace, i.cfg.FileName)
}

// Run writes code to the workspace and executes it.
//
// Exceptions, non-zero exits and timeouts are reported in the result. The
// error return is reserved for an unusable sandbox (no interpreter, workspace
// not writable) or a cancelled ctx.
func (i *Interpreter) Run(ctx context.Context, code string, resetSession bool) (domain.ExecutionResult, error) {
	if len(i.cfg.Command) == 0 {
		return domain.ExecutionResult{}, errors.New("interpreter command is empty")
	}
	if err := os.MkdirAll(i.workspace, 0o755); err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("failed to prepare workspace: %w", err)
	}

	script := i.ScriptPath()
	if resetSession {
		if err := os.Remove(script); err != nil && !os.IsNotExist(err) {
			return domain.ExecutionResult{}, fmt.Errorf("failed to reset session: %w", err)
		}
	}
	if err := os.WriteFile(script, []byte(code), 0o644); err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("failed to write script: %w", err)
	}

	runCtx := ctx
	if i.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, i.cfg.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, i.cfg.Command[1:]...), i.cfg.FileName)
	cmd := exec.CommandContext(runCtx, i.cfg.Command[0], args...)
	cmd.Dir = i.workspace
	cmd.Env = append(cmd.Environ(), i.cfg.Env...)
	if runtime.GOOS != "windows" {
		cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	}
	cmd.WaitDelay = i.cfg.Grace

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	i.logger.Debug("executing script", "command", i.cfg.Command, "script", script, "reset", resetSession)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("failed to start interpreter: %w", err)
	}
	waitErr := cmd.Wait()
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		return domain.ExecutionResult{}, ctx.Err()
	}

	res := domain.ExecutionResult{Duration: elapsed}
	timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded)

	switch {
	case timedOut:
		fmt.Fprintf(&out, "TimeoutError: Execution exceeded the time limit of %s\n", i.cfg.Timeout)
		res.Exception = &domain.ExceptionInfo{
			Type:    "TimeoutError",
			Message: fmt.Sprintf("execution exceeded the time limit of %s", i.cfg.Timeout),
		}
	case waitErr != nil:
		res.Exception = parseTraceback(out.String())
		if res.Exception == nil {
			res.Exception = &domain.ExceptionInfo{Type: "ProcessExit", Message: waitErr.Error()}
		}
	}

	limit := "unlimited"
	if i.cfg.Timeout > 0 {
		limit = i.cfg.Timeout.String()
	}
	fmt.Fprintf(&out, "Execution time: %s (time limit is %s).", elapsed.Round(time.Millisecond), limit)
	res.TermOut = out.String()

	if res.Exception != nil {
		i.logger.Info("script raised", "type", res.Exception.Type, "duration", elapsed)
	}
	return res, nil
}
