package domain_test

import (
	"testing"

	"github.com/botasky11/totml/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestPrompt_Markdown(t *testing.T) {
	p := domain.Prompt{
		{Title: "Introduction", Body: "You are a Kaggle grandmaster."},
		{Title: "Instructions", Children: []domain.Section{
			{Title: "Response format", Body: "Plan then code."},
			{Title: "Installed Packages", Items: []string{"numpy", "pandas"}},
		}},
	}

	want := "# Introduction\n\nYou are a Kaggle grandmaster.\n\n" +
		"# Instructions\n\n" +
		"## Response format\n\nPlan then code.\n\n" +
		"## Installed Packages\n\n- numpy\n- pandas\n"

	assert.Equal(t, want, p.Markdown())
	assert.False(t, p.IsEmpty())
	assert.True(t, domain.Prompt{}.IsEmpty())
}
