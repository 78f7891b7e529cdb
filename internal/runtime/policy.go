package runtime

import (
	"fmt"
	"math"

	"github.com/botasky11/totml/pkg/domain"
)

// Rand is the random source consumed by the agent.
// *math/rand/v2.Rand satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

// SearchConfig tunes the search policy.
type SearchConfig struct {
	// NumDrafts is the number of independent drafts produced before any
	// improvement or debugging.
	NumDrafts int
	// DebugProb is the probability of attempting a debug step once drafts are done.
	DebugProb float64
	// MaxDebugDepth is the deepest buggy node still eligible for debugging.
	MaxDebugDepth int
}

// Validate reports corrupt configuration as ErrInvalidConfig.
func (c SearchConfig) Validate() error {
	if c.NumDrafts < 0 {
		return fmt.Errorf("%w: num_drafts must be >= 0, got %d", domain.ErrInvalidConfig, c.NumDrafts)
	}
	if math.IsNaN(c.DebugProb) || c.DebugProb < 0 || c.DebugProb > 1 {
		return fmt.Errorf("%w: debug_prob must be in [0,1], got %v", domain.ErrInvalidConfig, c.DebugProb)
	}
	if c.MaxDebugDepth < 0 {
		return fmt.Errorf("%w: max_debug_depth must be >= 0, got %d", domain.ErrInvalidConfig, c.MaxDebugDepth)
	}
	return nil
}

// Decide selects the next action from the journal state.
//
// Rules, first match wins:
//  1. fewer drafts than NumDrafts: draft.
//  2. with probability DebugProb: debug a uniformly chosen buggy leaf whose
//     depth is within MaxDebugDepth, if any.
//  3. no good nodes: draft.
//  4. improve the best good node.
//
// The random source is drawn once for rule 2 and once more only when a
// debug candidate is picked.
func Decide(j *domain.Journal, cfg SearchConfig, r Rand) (domain.Decision, error) {
	if err := cfg.Validate(); err != nil {
		return domain.Decision{}, err
	}

	if len(j.DraftNodes()) < cfg.NumDrafts {
		return domain.Decision{Action: domain.ActionDraft}, nil
	}

	if r.Float64() < cfg.DebugProb {
		if candidates := debuggable(j, cfg.MaxDebugDepth); len(candidates) > 0 {
			return domain.Decision{Action: domain.ActionDebug, Parent: candidates[r.IntN(len(candidates))]}, nil
		}
	}

	best := j.BestNode(true)
	if best == nil {
		return domain.Decision{Action: domain.ActionDraft}, nil
	}
	return domain.Decision{Action: domain.ActionImprove, Parent: best}, nil
}

func debuggable(j *domain.Journal, maxDepth int) []*domain.Node {
	var out []*domain.Node
	for _, n := range j.BuggyNodes() {
		if n.DebugDepth <= maxDepth && j.IsLeaf(n.ID) {
			out = append(out, n)
		}
	}
	return out
}
