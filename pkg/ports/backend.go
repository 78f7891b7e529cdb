package ports

import (
	"context"

	"github.com/botasky11/totml/pkg/domain"
)

// FunctionSpec describes a structured response the backend must produce.
type FunctionSpec struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	JSONSchema  map[string]any `json:"json_schema" yaml:"json_schema"`
}

// QueryRequest is a single call to the generative backend.
type QueryRequest struct {
	System      domain.Prompt
	User        domain.Prompt
	Model       string
	Temperature *float64
	MaxTokens   int
	// Func, when set, asks for a structured object instead of free text.
	Func *FunctionSpec
}

// QueryResponse carries either free text or the structured object.
// Object is nil when the backend could not produce a well-formed object.
type QueryResponse struct {
	Text   string
	Object map[string]any
}

// Backend is the generative model collaborator.
type Backend interface {
	// Query returns an error only for transport failures. A structured
	// request answered with unusable output yields a nil Object instead.
	Query(ctx context.Context, req QueryRequest) (QueryResponse, error)
}
