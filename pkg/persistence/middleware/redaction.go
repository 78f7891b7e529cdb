package middleware

import (
	"context"
	"regexp"

	"github.com/botasky11/totml/pkg/domain"
	"github.com/botasky11/totml/pkg/ports"
)

// Mask replaces every redacted value.
const Mask = "***"

// DefaultSecretPatterns match common API credential shapes that generated
// code may print to the terminal.
var DefaultSecretPatterns = []string{
	`sk-[A-Za-z0-9_\-]{16,}`,
	`(?i)(api[_-]?key|secret|token|password)\s*[=:]\s*\S+`,
	`AKIA[0-9A-Z]{16}`,
}

type redactionMiddleware struct {
	next     ports.ExperimentStore
	patterns []*regexp.Regexp
}

// NewRedactionMiddleware creates a middleware that masks matches of the
// patterns in node terminal output, exception messages and string config
// values before they are stored.
func NewRedactionMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		patterns[i] = re
	}
	return func(next ports.ExperimentStore) ports.ExperimentStore {
		return &redactionMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *redactionMiddleware) Save(ctx context.Context, exp *domain.Experiment) error {
	// Work on a copy: the caller keeps using its record.
	cloned := exp.Clone()
	for i := range cloned.Journal.Nodes {
		n := &cloned.Journal.Nodes[i]
		n.TermOut = m.mask(n.TermOut)
		if n.Exception != nil {
			exc := *n.Exception
			exc.Message = m.mask(exc.Message)
			n.Exception = &exc
		}
	}
	maskMap(cloned.Config, m.mask)
	return m.next.Save(ctx, cloned)
}

func (m *redactionMiddleware) Load(ctx context.Context, id string) (*domain.Experiment, error) {
	return m.next.Load(ctx, id)
}

func (m *redactionMiddleware) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

func (m *redactionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *redactionMiddleware) mask(s string) string {
	for _, p := range m.patterns {
		s = p.ReplaceAllString(s, Mask)
	}
	return s
}

func maskMap(values map[string]any, mask func(string) string) {
	for k, v := range values {
		switch v := v.(type) {
		case string:
			values[k] = mask(v)
		case map[string]any:
			nested := make(map[string]any, len(v))
			for nk, nv := range v {
				nested[nk] = nv
			}
			maskMap(nested, mask)
			values[k] = nested
		}
	}
}
