package observability

import (
	"context"
	"log/slog"

	"github.com/botasky11/totml/pkg/domain"
)

// LoggingHooks logs every lifecycle event at debug level, and appended nodes at info.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnDecision: func(ctx context.Context, e *domain.DecisionEvent) {
			logger.DebugContext(ctx, "policy_decision", "experiment", e.ExperimentID, "action", e.Action, "parent", e.ParentID)
		},
		OnExtractionRetry: func(ctx context.Context, e *domain.GenerationEvent) {
			logger.DebugContext(ctx, "extraction_retry", "experiment", e.ExperimentID, "action", e.Action, "attempt", e.Attempt)
		},
		OnNodeExecuted: func(ctx context.Context, e *domain.NodeEvent) {
			attrs := []any{"experiment", e.ExperimentID, "node", e.Node.ID, "exec_time", e.Node.ExecTime}
			if e.Node.Exception != nil {
				attrs = append(attrs, "exception", e.Node.Exception.Type)
			}
			logger.DebugContext(ctx, "node_executed", attrs...)
		},
		OnReviewMalformed: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "review_malformed", "experiment", e.ExperimentID, "node", e.Node.ID)
		},
		OnNodeAppended: func(ctx context.Context, e *domain.NodeEvent) {
			logger.InfoContext(ctx, "node_appended",
				"experiment", e.ExperimentID,
				"node", e.Node.ID,
				"step", e.Node.Step,
				"kind", e.Node.Kind,
				"buggy", e.Node.Buggy,
				"metric", e.Node.Metric.String(),
				"duplicate", e.Duplicate,
			)
		},
	}
}
