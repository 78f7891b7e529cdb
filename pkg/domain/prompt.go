package domain

import (
	"fmt"
	"strings"
)

// Section is one titled part of a prompt. Body is free text; Items render as
// a bullet list; Children nest one heading level deeper.
type Section struct {
	Title    string
	Body     string
	Items    []string
	Children []Section
}

// Prompt is an ordered list of sections.
type Prompt []Section

// Add appends a text section and returns the prompt for chaining.
func (p Prompt) Add(title, body string) Prompt {
	return append(p, Section{Title: title, Body: body})
}

// Markdown compiles the prompt. Top-level sections use "#" headings.
func (p Prompt) Markdown() string {
	var sb strings.Builder
	for _, s := range p {
		writeSection(&sb, s, 1)
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func writeSection(sb *strings.Builder, s Section, level int) {
	if s.Title != "" {
		fmt.Fprintf(sb, "%s %s\n\n", strings.Repeat("#", level), s.Title)
	}
	if body := strings.TrimSpace(s.Body); body != "" {
		sb.WriteString(body)
		sb.WriteString("\n\n")
	}
	for _, item := range s.Items {
		fmt.Fprintf(sb, "- %s\n", item)
	}
	if len(s.Items) > 0 {
		sb.WriteString("\n")
	}
	for _, c := range s.Children {
		writeSection(sb, c, level+1)
	}
}

// IsEmpty reports whether the prompt renders to nothing.
func (p Prompt) IsEmpty() bool {
	return strings.TrimSpace(p.Markdown()) == ""
}
