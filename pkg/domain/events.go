package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventDecision        EventType = "policy_decision"
	EventExtractionRetry EventType = "extraction_retry"
	EventNodeExecuted    EventType = "node_executed"
	EventReviewMalformed EventType = "review_malformed"
	EventNodeAppended    EventType = "node_appended"

	EventExperimentStarted   EventType = "experiment_started"
	EventExperimentStep      EventType = "experiment_step"
	EventExperimentCompleted EventType = "experiment_completed"
	EventExperimentFailed    EventType = "experiment_failed"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp    time.Time `json:"timestamp"`
	Type         EventType `json:"type"`
	ExperimentID string    `json:"experiment_id,omitempty"`
}

// NewEventBase stamps an event with the current time.
func NewEventBase(t EventType, experimentID string) EventBase {
	return EventBase{Timestamp: time.Now(), Type: t, ExperimentID: experimentID}
}

// DecisionEvent reports the outcome of the search policy.
type DecisionEvent struct {
	EventBase
	Action   Action `json:"action"`
	ParentID string `json:"parent_id,omitempty"`
}

// GenerationEvent reports a failed plan+code extraction attempt.
type GenerationEvent struct {
	EventBase
	Action  Action `json:"action"`
	Attempt int    `json:"attempt"`
}

// NodeEvent reports a node passing a stage of the step cycle.
type NodeEvent struct {
	EventBase
	Node *Node `json:"node"`
	// Duplicate is set when another journal node already has identical code.
	Duplicate bool `json:"duplicate,omitempty"`
}

// ExperimentEvent reports experiment-level progress to streams and stores.
type ExperimentEvent struct {
	EventBase
	Status     string   `json:"status"`
	Step       int      `json:"step"`
	TotalSteps int      `json:"total_steps"`
	Progress   float64  `json:"progress"`
	NodeID     string   `json:"node_id,omitempty"`
	Buggy      bool     `json:"is_buggy,omitempty"`
	BestMetric *float64 `json:"best_metric,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// LifecycleHooks defines callbacks for agent observability.
// Every hook is optional.
type LifecycleHooks struct {
	OnDecision        func(context.Context, *DecisionEvent)
	OnExtractionRetry func(context.Context, *GenerationEvent)
	OnNodeExecuted    func(context.Context, *NodeEvent)
	OnReviewMalformed func(context.Context, *NodeEvent)
	OnNodeAppended    func(context.Context, *NodeEvent)
}

// MergeHooks fans every callback out to each of the given hook sets in order.
func MergeHooks(sets ...LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnDecision: func(ctx context.Context, e *DecisionEvent) {
			for _, h := range sets {
				if h.OnDecision != nil {
					h.OnDecision(ctx, e)
				}
			}
		},
		OnExtractionRetry: func(ctx context.Context, e *GenerationEvent) {
			for _, h := range sets {
				if h.OnExtractionRetry != nil {
					h.OnExtractionRetry(ctx, e)
				}
			}
		},
		OnNodeExecuted: func(ctx context.Context, e *NodeEvent) {
			for _, h := range sets {
				if h.OnNodeExecuted != nil {
					h.OnNodeExecuted(ctx, e)
				}
			}
		},
		OnReviewMalformed: func(ctx context.Context, e *NodeEvent) {
			for _, h := range sets {
				if h.OnReviewMalformed != nil {
					h.OnReviewMalformed(ctx, e)
				}
			}
		},
		OnNodeAppended: func(ctx context.Context, e *NodeEvent) {
			for _, h := range sets {
				if h.OnNodeAppended != nil {
					h.OnNodeAppended(ctx, e)
				}
			}
		},
	}
}
