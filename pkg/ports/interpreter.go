package ports

import (
	"context"

	"github.com/botasky11/totml/pkg/domain"
)

// Interpreter executes generated code in a sandbox.
// Faults raised by the code are reported in the result; the error return is
// reserved for infrastructure failures (sandbox unavailable, I/O).
type Interpreter interface {
	Run(ctx context.Context, code string, resetSession bool) (domain.ExecutionResult, error)
}

// ExecFunc adapts a plain function to the Interpreter interface.
type ExecFunc func(ctx context.Context, code string, resetSession bool) (domain.ExecutionResult, error)

// Run calls f.
func (f ExecFunc) Run(ctx context.Context, code string, resetSession bool) (domain.ExecutionResult, error) {
	return f(ctx, code, resetSession)
}
