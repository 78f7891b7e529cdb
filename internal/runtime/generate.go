package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/botasky11/totml/pkg/domain"
	"github.com/botasky11/totml/pkg/ports"
	"github.com/botasky11/totml/pkg/prompts"
)

// generate builds the role prompt for the decision and turns the completion
// into a fresh node.
func (a *Agent) generate(ctx context.Context, d domain.Decision) (*domain.Node, error) {
	var (
		p   domain.Prompt
		err error
	)
	switch d.Action {
	case domain.ActionDraft:
		p, err = a.draftPrompt()
	case domain.ActionImprove:
		p, err = a.improvePrompt(d.Parent)
	case domain.ActionDebug:
		p, err = a.debugPrompt(d.Parent)
	default:
		return nil, fmt.Errorf("unknown action %q", d.Action)
	}
	if err != nil {
		return nil, fmt.Errorf("build %s prompt: %w", d.Action, err)
	}

	plan, code, err := a.planAndCodeQuery(ctx, d.Action, p)
	if err != nil {
		return nil, err
	}
	return domain.NewNode(plan, code, d.Parent), nil
}

// planAndCodeQuery asks for a plan followed by a code block, retrying when
// either part is missing. Once retries are exhausted the plan is empty and
// the raw completion becomes the code.
func (a *Agent) planAndCodeQuery(ctx context.Context, action domain.Action, p domain.Prompt) (string, string, error) {
	var completion string
	for attempt := 1; attempt <= a.cfg.ExtractionRetries; attempt++ {
		resp, err := a.backend.Query(ctx, ports.QueryRequest{
			System:      p,
			Model:       a.cfg.Code.Model,
			Temperature: a.cfg.Code.Temperature,
			MaxTokens:   a.cfg.MaxTokens,
		})
		if err != nil {
			return "", "", fmt.Errorf("plan+code query: %w", err)
		}
		completion = resp.Text

		code := extractCode(completion)
		plan := extractPlan(completion)
		if code != "" && plan != "" {
			return plan, code, nil
		}

		a.logger.Warn("plan+code extraction failed, retrying", "action", action, "attempt", attempt)
		if a.hooks.OnExtractionRetry != nil {
			a.hooks.OnExtractionRetry(ctx, &domain.GenerationEvent{
				EventBase: domain.NewEventBase(domain.EventExtractionRetry, a.experimentID),
				Action:    action,
				Attempt:   attempt,
			})
		}
	}

	a.logger.Warn("final plan+code extraction attempt failed, using raw completion", "action", action)
	return "", completion, nil
}

func (a *Agent) draftPrompt() (domain.Prompt, error) {
	intro, err := a.prompts.Get(prompts.AgentTemplate, "introduction.draft", nil)
	if err != nil {
		return nil, err
	}
	sketch, err := a.prompts.GetList(prompts.AgentTemplate, "guidelines.solution_sketch", nil)
	if err != nil {
		return nil, err
	}
	instructions, err := a.instructions(domain.Section{Title: "Solution sketch guideline", Items: sketch}, true)
	if err != nil {
		return nil, err
	}

	p := domain.Prompt{
		{Title: "Introduction", Body: intro},
		{Title: "Task description", Body: a.task},
		{Title: "Memory", Body: a.journal.GenerateSummary()},
		instructions,
	}
	return a.withDataOverview(p), nil
}

func (a *Agent) improvePrompt(parent *domain.Node) (domain.Prompt, error) {
	intro, err := a.prompts.Get(prompts.AgentTemplate, "introduction.improve", nil)
	if err != nil {
		return nil, err
	}
	sketch, err := a.prompts.GetList(prompts.AgentTemplate, "guidelines.improvement", nil)
	if err != nil {
		return nil, err
	}
	instructions, err := a.instructions(domain.Section{Title: "Solution improvement sketch guideline", Items: sketch}, false)
	if err != nil {
		return nil, err
	}

	return domain.Prompt{
		{Title: "Introduction", Body: intro},
		{Title: "Task description", Body: a.task},
		{Title: "Memory", Body: a.journal.GenerateSummary()},
		instructions,
		{Title: "Previous solution", Children: []domain.Section{
			{Title: "Code", Body: wrapCode(parent.Code, "python")},
		}},
	}, nil
}

func (a *Agent) debugPrompt(parent *domain.Node) (domain.Prompt, error) {
	intro, err := a.prompts.Get(prompts.AgentTemplate, "introduction.debug", nil)
	if err != nil {
		return nil, err
	}
	sketch, err := a.prompts.GetList(prompts.AgentTemplate, "guidelines.bugfix", nil)
	if err != nil {
		return nil, err
	}
	instructions, err := a.instructions(domain.Section{Title: "Bugfix improvement sketch guideline", Items: sketch}, false)
	if err != nil {
		return nil, err
	}

	p := domain.Prompt{
		{Title: "Introduction", Body: intro},
		{Title: "Task description", Body: a.task},
		{Title: "Previous (buggy) implementation", Body: wrapCode(parent.Code, "python")},
		{Title: "Execution output", Body: wrapCode(parent.TrimmedTermOut(), "")},
		instructions,
	}
	return a.withDataOverview(p), nil
}

// instructions assembles the shared instruction block around the
// role-specific sketch guideline. Only drafts list the installed packages.
func (a *Agent) instructions(sketch domain.Section, withEnvironment bool) (domain.Section, error) {
	respFmt, err := a.prompts.Get(prompts.AgentTemplate, "response_format", nil)
	if err != nil {
		return domain.Section{}, err
	}
	impl, err := a.implementationGuideline()
	if err != nil {
		return domain.Section{}, err
	}

	s := domain.Section{Title: "Instructions", Children: []domain.Section{
		{Title: "Response format", Body: respFmt},
		sketch,
		{Title: "Implementation guideline", Items: impl},
	}}

	if withEnvironment {
		env, err := a.prompts.EnvironmentPrompt(prompts.AgentTemplate, a.rng.Shuffle)
		if err != nil {
			return domain.Section{}, err
		}
		s.Children = append(s.Children, domain.Section{Title: "Installed Packages", Body: env})
	}
	return s, nil
}

func (a *Agent) implementationGuideline() ([]string, error) {
	vars := map[string]any{}
	if a.cfg.ExecTimeout > 0 {
		vars["timeout"] = naturalDuration(a.cfg.ExecTimeout)
	}
	lines, err := a.prompts.GetList(prompts.AgentTemplate, "guidelines.implementation", vars)
	if err != nil {
		return nil, err
	}

	if a.cfg.ExposePrediction {
		s, err := a.prompts.Get(prompts.AgentTemplate, "guidelines.implementation_optional.expose_prediction", nil)
		if err != nil {
			return nil, err
		}
		lines = append(lines, s)
	}
	if a.cfg.KFoldValidation > 1 {
		s, err := a.prompts.Get(prompts.AgentTemplate, "guidelines.implementation_optional.k_fold_validation",
			map[string]any{"k_fold": a.cfg.KFoldValidation})
		if err != nil {
			return nil, err
		}
		lines = append(lines, s)
	}
	return lines, nil
}

func (a *Agent) withDataOverview(p domain.Prompt) domain.Prompt {
	if a.cfg.DataPreview && a.hasPreview {
		return p.Add("Data Overview", a.dataPreview)
	}
	return p
}

// naturalDuration renders d in its largest whole unit, e.g. "1 hour" or "90 seconds".
func naturalDuration(d time.Duration) string {
	units := []struct {
		size time.Duration
		name string
	}{
		{24 * time.Hour, "day"},
		{time.Hour, "hour"},
		{time.Minute, "minute"},
		{time.Second, "second"},
	}
	for _, u := range units {
		if d >= u.size && d%u.size == 0 {
			n := int64(d / u.size)
			if n == 1 {
				return fmt.Sprintf("1 %s", u.name)
			}
			return fmt.Sprintf("%d %ss", n, u.name)
		}
	}
	return d.String()
}
