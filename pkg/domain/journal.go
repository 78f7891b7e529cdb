package domain

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Journal is the append-only tree of every node produced by one experiment.
//
// Nodes live in an arena indexed by step; parent links are stored as IDs and
// children are served from a reverse index. A single writer appends while any
// number of readers may observe a growing journal.
type Journal struct {
	mu       sync.RWMutex
	nodes    []*Node
	index    map[string]int
	children map[string][]string
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{
		index:    make(map[string]int),
		children: make(map[string][]string),
	}
}

// Append inserts the node and assigns it the next step.
// It fails only on structural violations, which wrap ErrStructural.
func (j *Journal) Append(n *Node) error {
	if n == nil {
		return fmt.Errorf("%w: nil node", ErrStructural)
	}

	if n.Stage != StageReviewed {
		return fmt.Errorf("%w: %w: node %s appended in stage %q", ErrStructural, ErrNodeLifecycle, n.ID, n.Stage)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, exists := j.index[n.ID]; exists {
		return fmt.Errorf("%w: %w: %s", ErrStructural, ErrDuplicateNode, n.ID)
	}

	wantDepth := 0
	if n.ParentID != "" {
		pi, ok := j.index[n.ParentID]
		if !ok {
			return fmt.Errorf("%w: %w: node %s references %s", ErrStructural, ErrUnknownParent, n.ID, n.ParentID)
		}
		if parent := j.nodes[pi]; parent.Buggy {
			wantDepth = parent.DebugDepth + 1
		}
	}
	if n.DebugDepth != wantDepth {
		return fmt.Errorf("%w: node %s has debug depth %d, parent chain implies %d", ErrStructural, n.ID, n.DebugDepth, wantDepth)
	}

	n.Step = len(j.nodes)
	j.index[n.ID] = n.Step
	j.nodes = append(j.nodes, n)
	if n.ParentID != "" {
		j.children[n.ParentID] = append(j.children[n.ParentID], n.ID)
	}
	return nil
}

// Len returns the number of nodes.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.nodes)
}

// Get returns the node with the given ID.
func (j *Journal) Get(id string) (*Node, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	i, ok := j.index[id]
	if !ok {
		return nil, false
	}
	return j.nodes[i], true
}

// Parent returns the parent of n, or nil for drafts.
func (j *Journal) Parent(n *Node) *Node {
	if n == nil || n.ParentID == "" {
		return nil
	}
	p, _ := j.Get(n.ParentID)
	return p
}

// Children returns the direct children of the node, in creation order.
func (j *Journal) Children(id string) []*Node {
	j.mu.RLock()
	defer j.mu.RUnlock()
	ids := j.children[id]
	out := make([]*Node, 0, len(ids))
	for _, cid := range ids {
		out = append(out, j.nodes[j.index[cid]])
	}
	return out
}

// IsLeaf reports whether no node references id as its parent.
func (j *Journal) IsLeaf(id string) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.children[id]) == 0
}

// Nodes returns every node in step order.
func (j *Journal) Nodes() []*Node {
	return j.filter(func(*Node) bool { return true })
}

// DraftNodes returns the nodes without a parent.
func (j *Journal) DraftNodes() []*Node {
	return j.filter(func(n *Node) bool { return n.ParentID == "" })
}

// BuggyNodes returns the nodes reviewed as buggy.
func (j *Journal) BuggyNodes() []*Node {
	return j.filter(func(n *Node) bool { return n.Buggy })
}

// GoodNodes returns the nodes reviewed as not buggy.
func (j *Journal) GoodNodes() []*Node {
	return j.filter(func(n *Node) bool { return !n.Buggy })
}

func (j *Journal) filter(keep func(*Node) bool) []*Node {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]*Node, 0, len(j.nodes))
	for _, n := range j.nodes {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}

// BestNode returns the node with the best metric, judged under each
// candidate's own polarity. Ties keep the earliest step. It returns nil when
// the candidate set is empty.
func (j *Journal) BestNode(onlyGood bool) *Node {
	candidates := j.Nodes()
	if onlyGood {
		candidates = j.GoodNodes()
	}
	return bestOf(candidates)
}

func bestOf(nodes []*Node) *Node {
	var best *Node
	for _, n := range nodes {
		if best == nil || n.Metric.Better(best.Metric) {
			best = n
		}
	}
	return best
}

const summarySeparator = "\n-------------------------------\n"

// GenerateSummary condenses the good attempts so far for future prompts.
// Buggy attempts are only counted; their code and analysis are left out.
func (j *Journal) GenerateSummary() string {
	var parts []string
	for _, n := range j.GoodNodes() {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Design: %s\n", n.Plan)
		fmt.Fprintf(&sb, "Results: %s\n", n.Analysis)
		if v, ok := n.Metric.Value(); ok {
			fmt.Fprintf(&sb, "Validation Metric: %v\n", v)
		} else {
			sb.WriteString("Validation Metric: None\n")
		}
		parts = append(parts, sb.String())
	}

	if buggy := len(j.BuggyNodes()); buggy > 0 {
		parts = append(parts, fmt.Sprintf("Buggy attempts so far: %d (details omitted)\n", buggy))
	}

	return strings.Join(parts, summarySeparator)
}

// JournalSnapshot is the serialisable form of a journal.
type JournalSnapshot struct {
	Nodes []Node `json:"nodes"`
}

// Snapshot copies the current nodes.
func (j *Journal) Snapshot() JournalSnapshot {
	nodes := j.Nodes()
	snap := JournalSnapshot{Nodes: make([]Node, len(nodes))}
	for i, n := range nodes {
		snap.Nodes[i] = *n
	}
	return snap
}

// RestoreJournal rebuilds a journal from a snapshot, re-checking every invariant.
func RestoreJournal(snap JournalSnapshot) (*Journal, error) {
	nodes := make([]Node, len(snap.Nodes))
	copy(nodes, snap.Nodes)
	sort.SliceStable(nodes, func(a, b int) bool { return nodes[a].Step < nodes[b].Step })

	j := NewJournal()
	for i := range nodes {
		n := nodes[i]
		if n.Step != i {
			return nil, fmt.Errorf("%w: snapshot step %d found at position %d", ErrStructural, n.Step, i)
		}
		if err := j.Append(&n); err != nil {
			return nil, err
		}
	}
	return j, nil
}
