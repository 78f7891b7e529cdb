package domain

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// NodeKind describes how a node was generated.
type NodeKind string

const (
	// KindDraft is an independent starting solution (no parent).
	KindDraft NodeKind = "draft"
	// KindImprove refines a known-good parent.
	KindImprove NodeKind = "improve"
	// KindDebug attempts to fix a known-buggy parent.
	KindDebug NodeKind = "debug"
)

// NodeStage tracks the one-way lifecycle of a node.
type NodeStage string

const (
	StageCreated  NodeStage = "created"
	StageExecuted NodeStage = "executed"
	StageReviewed NodeStage = "reviewed"
)

// Node is one candidate solution attempt in the experiment tree.
//
// A node is built with its plan and code, absorbs execution telemetry exactly
// once, then the review verdict exactly once. Once appended to a Journal it
// must be treated as read-only.
type Node struct {
	ID        string    `json:"id"`
	Step      int       `json:"step"`
	CreatedAt time.Time `json:"created_at"`

	Plan     string `json:"plan"`
	Code     string `json:"code"`
	CodeHash string `json:"code_hash"`

	// ParentID is empty for drafts. Children are indexed by the Journal.
	ParentID   string   `json:"parent_id,omitempty"`
	Kind       NodeKind `json:"kind"`
	DebugDepth int      `json:"debug_depth"`

	Stage NodeStage `json:"stage"`

	// Execution telemetry.
	TermOut   string         `json:"term_out,omitempty"`
	ExecTime  time.Duration  `json:"exec_time"`
	Exception *ExceptionInfo `json:"exception,omitempty"`

	// Review telemetry.
	Analysis string      `json:"analysis,omitempty"`
	Buggy    bool        `json:"is_buggy"`
	Metric   MetricValue `json:"metric"`
}

// NewNode creates a node for the given plan and code.
// The kind and debug depth are derived from the parent: no parent is a draft,
// a buggy parent makes a debug attempt, otherwise an improvement.
func NewNode(plan, code string, parent *Node) *Node {
	n := &Node{
		ID:        strings.ReplaceAll(uuid.NewString(), "-", ""),
		Step:      -1,
		CreatedAt: time.Now(),
		Plan:      plan,
		Code:      code,
		CodeHash:  HashCode(code),
		Kind:      KindDraft,
		Stage:     StageCreated,
	}

	if parent != nil {
		n.ParentID = parent.ID
		if parent.Buggy {
			n.Kind = KindDebug
			n.DebugDepth = parent.DebugDepth + 1
		} else {
			n.Kind = KindImprove
		}
	}

	return n
}

// HashCode returns the hex blake3 digest of a code string.
func HashCode(code string) string {
	sum := blake3.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// IsDraft reports whether the node has no parent.
func (n *Node) IsDraft() bool { return n.ParentID == "" }

// IsBuggy reports the review verdict.
func (n *Node) IsBuggy() bool { return n.Buggy }

// AbsorbExecResult records execution telemetry. It is valid exactly once,
// before the review.
func (n *Node) AbsorbExecResult(res ExecutionResult) error {
	if n.Stage != StageCreated {
		return fmt.Errorf("%w: node %s absorbing execution in stage %q", ErrNodeLifecycle, n.ID, n.Stage)
	}
	n.TermOut = res.TermOut
	n.ExecTime = res.Duration
	n.Exception = res.Exception
	n.Stage = StageExecuted
	return nil
}

// AbsorbReview records the review verdict. It is valid exactly once, after
// the execution telemetry.
func (n *Node) AbsorbReview(analysis string, buggy bool, metric MetricValue) error {
	if n.Stage != StageExecuted {
		return fmt.Errorf("%w: node %s absorbing review in stage %q", ErrNodeLifecycle, n.ID, n.Stage)
	}
	n.Analysis = analysis
	n.Buggy = buggy
	n.Metric = metric
	n.Stage = StageReviewed
	return nil
}

// TrimmedTermOut returns the terminal output shortened for inclusion in prompts.
func (n *Node) TrimmedTermOut() string {
	return TrimLong(n.TermOut, 5100, 2500)
}

// TrimLong keeps the first and last k characters of s when it exceeds threshold.
// Lengths count runes, so multi-byte output is never split mid-character.
func TrimLong(s string, threshold, k int) string {
	n := utf8.RuneCountInString(s)
	if n <= threshold || 2*k >= n {
		return s
	}
	runes := []rune(s)
	cut := n - 2*k
	return fmt.Sprintf("%s\n ... [%d characters truncated] ... \n%s", string(runes[:k]), cut, string(runes[n-k:]))
}
