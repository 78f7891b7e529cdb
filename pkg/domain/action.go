package domain

// Action is the step the search policy asks the agent to take next.
type Action string

const (
	// ActionDraft generates an independent solution with no parent.
	ActionDraft Action = "draft"
	// ActionImprove refines the current best good node.
	ActionImprove Action = "improve"
	// ActionDebug attempts to fix a buggy leaf.
	ActionDebug Action = "debug"
)

// Decision is the output of the search policy. Parent is nil for drafts.
type Decision struct {
	Action Action
	Parent *Node
}
