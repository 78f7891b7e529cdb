package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/botasky11/totml/pkg/domain"
	"github.com/botasky11/totml/pkg/ports"
	"github.com/botasky11/totml/pkg/prompts"
	"github.com/mitchellh/mapstructure"
)

const (
	invalidReviewAnalysis = "Error: Invalid API response received. Unable to parse execution results."
	defaultReviewSummary  = "No summary provided"
)

// reviewResponse mirrors the submit_review function spec.
type reviewResponse struct {
	IsBug         bool    `mapstructure:"is_bug"`
	Summary       *string `mapstructure:"summary"`
	Metric        any     `mapstructure:"metric"`
	LowerIsBetter *bool   `mapstructure:"lower_is_better"`
}

// review asks the feedback model to judge the execution and records the
// verdict on the node. Only backend transport errors are returned.
func (a *Agent) review(ctx context.Context, n *domain.Node) error {
	intro, err := a.prompts.Get(prompts.AgentTemplate, "introduction.review", nil)
	if err != nil {
		return fmt.Errorf("build review prompt: %w", err)
	}

	spec := a.reviewSpec
	resp, err := a.backend.Query(ctx, ports.QueryRequest{
		System: domain.Prompt{
			{Title: "Introduction", Body: intro},
			{Title: "Task description", Body: a.task},
			{Title: "Implementation", Body: wrapCode(n.Code, "python")},
			{Title: "Execution output", Body: wrapCode(n.TrimmedTermOut(), "")},
		},
		Model:       a.cfg.Feedback.Model,
		Temperature: a.cfg.Feedback.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
		Func:        &spec,
	})
	if err != nil {
		return fmt.Errorf("review query: %w", err)
	}

	analysis, buggy, metric, ok := judge(resp.Object, n.Exception != nil)
	if !ok {
		a.logger.Warn("backend returned an invalid review", "node", n.ID, "text", resp.Text)
		a.emitNode(ctx, a.hooks.OnReviewMalformed, domain.EventReviewMalformed, n)
	}
	return n.AbsorbReview(analysis, buggy, metric)
}

// judge turns a structured review into a verdict. ok is false when the
// object is missing or does not decode, in which case the node is buggy.
//
// A node is buggy when the reviewer says so, when execution raised, or
// when no usable metric was reported.
func judge(obj map[string]any, raised bool) (analysis string, buggy bool, metric domain.MetricValue, ok bool) {
	if obj == nil {
		return invalidReviewAnalysis, true, domain.WorstMetric(), false
	}

	var r reviewResponse
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &r,
	})
	if err != nil {
		return invalidReviewAnalysis, true, domain.WorstMetric(), false
	}
	if err := dec.Decode(obj); err != nil {
		return invalidReviewAnalysis, true, domain.WorstMetric(), false
	}

	analysis = defaultReviewSummary
	if r.Summary != nil {
		analysis = *r.Summary
	}

	value, hasMetric := numericMetric(r.Metric)
	buggy = r.IsBug || raised || !hasMetric
	if buggy {
		return analysis, true, domain.WorstMetric(), true
	}

	lowerIsBetter := true
	if r.LowerIsBetter != nil {
		lowerIsBetter = *r.LowerIsBetter
	}
	return analysis, false, domain.NewMetric(value, !lowerIsBetter), true
}

// numericMetric accepts any finite number; everything else is absent.
func numericMetric(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case int32:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
