package domain

import "errors"

// ErrStructural is the parent of every journal invariant violation.
// Structural errors are programmer errors and must reach the caller.
var ErrStructural = errors.New("journal structural violation")

// ErrUnknownParent is returned when a node references a parent that is not in the journal.
var ErrUnknownParent = errors.New("parent node not in journal")

// ErrDuplicateNode is returned when a node with the same ID is appended twice.
var ErrDuplicateNode = errors.New("node already in journal")

// ErrNodeLifecycle is returned when a node is mutated out of order
// (e.g. reviewed before execution, or absorbed twice).
var ErrNodeLifecycle = errors.New("invalid node lifecycle transition")

// ErrInvalidConfig is returned for corrupt search-policy configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// ErrExperimentNotFound is returned when an experiment ID cannot be found in the store.
var ErrExperimentNotFound = errors.New("experiment not found")

// ErrExperimentRunning is returned when an operation needs an experiment that
// is not being run by this process.
var ErrExperimentRunning = errors.New("experiment is running")
