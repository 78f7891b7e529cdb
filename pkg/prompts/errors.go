package prompts

import "errors"

var (
	// ErrTemplateNotFound is returned when no template file has the requested name.
	ErrTemplateNotFound = errors.New("prompt template not found")
	// ErrKeyNotFound is returned when a dotted key does not resolve inside a template.
	ErrKeyNotFound = errors.New("prompt key not found")
	// ErrWrongType is returned when a key resolves to a value of an unexpected shape.
	ErrWrongType = errors.New("prompt value has unexpected type")
)
