package runtime

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

// codeLanguages lists the fence info strings accepted as solution code.
var codeLanguages = map[string]bool{"": true, "python": true, "py": true, "python3": true}

// extractCode joins every python (or untagged) fenced block of a completion.
// It returns "" when the completion has no such block.
func extractCode(completion string) string {
	src := []byte(completion)
	doc := markdown.Parser().Parse(text.NewReader(src))

	var blocks []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fence, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		if !codeLanguages[strings.ToLower(string(fence.Language(src)))] {
			return ast.WalkSkipChildren, nil
		}

		var sb strings.Builder
		lines := fence.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			sb.Write(seg.Value(src))
		}
		if code := strings.TrimSpace(sb.String()); code != "" {
			blocks = append(blocks, code)
		}
		return ast.WalkSkipChildren, nil
	})

	return strings.Join(blocks, "\n\n")
}

// extractPlan returns the prose preceding the first code fence, or "" when
// the completion has no fence.
func extractPlan(completion string) string {
	i := strings.Index(completion, "```")
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(completion[:i])
}

// wrapCode fences code for inclusion in a prompt.
func wrapCode(code, lang string) string {
	return "```" + lang + "\n" + code + "\n```"
}
