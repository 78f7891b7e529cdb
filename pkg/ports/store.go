package ports

import (
	"context"

	"github.com/botasky11/totml/pkg/domain"
)

// ExperimentStore persists experiment records, journal included.
// This allows long searches to be resumed and inspected from other processes.
type ExperimentStore interface {
	// Save persists the experiment, replacing any previous record with the same ID.
	Save(ctx context.Context, exp *domain.Experiment) error

	// Load retrieves an experiment.
	// Returns domain.ErrExperimentNotFound if the experiment does not exist.
	Load(ctx context.Context, id string) (*domain.Experiment, error)

	// Delete removes an experiment. Deleting a missing experiment is not an error.
	Delete(ctx context.Context, id string) error

	// List returns the IDs of all stored experiments.
	List(ctx context.Context) ([]string, error)
}
