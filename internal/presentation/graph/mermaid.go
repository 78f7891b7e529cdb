package graph

import (
	"fmt"
	"strings"

	"github.com/botasky11/totml/pkg/domain"
)

// TreeOverlay marks nodes to highlight on the tree.
type TreeOverlay struct {
	BestNodeID string
}

// GenerateMermaid produces a Mermaid flowchart of the experiment tree.
// Shapes follow the node kind:
// - Draft: ([Stadium])
// - Improve: [Rectangle]
// - Debug: {{Hexagon}}
// Edges into debug nodes are dotted. Every node gets the buggy or good class;
// the overlay adds the best class.
func GenerateMermaid(nodes []domain.Node, overlay *TreeOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, node := range nodes {
		safeID := sanitizeMermaidID(node.ID)

		opener, closer := "[", "]"
		switch node.Kind {
		case domain.KindDraft:
			opener, closer = "([", "])"
		case domain.KindDebug:
			opener, closer = "{{", "}}"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, label(node), closer)

		if node.ParentID != "" {
			arrow := "-->"
			if node.Kind == domain.KindDebug {
				arrow = "-.->"
			}
			fmt.Fprintf(&sb, "    %s %s %s\n", sanitizeMermaidID(node.ParentID), arrow, safeID)
		}
	}

	sb.WriteString("\n    %% Verdict Styles\n")
	// Force black text (color:#000) for contrast on both light and dark themes.
	sb.WriteString("    classDef good fill:#e8f5e9,stroke:#2e7d32,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef buggy fill:#ffebee,stroke:#c62828,stroke-width:1px,color:#000;\n")
	sb.WriteString("    classDef best fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
	for _, node := range nodes {
		class := "good"
		if node.Buggy {
			class = "buggy"
		}
		fmt.Fprintf(&sb, "    class %s %s;\n", sanitizeMermaidID(node.ID), class)
	}
	if overlay != nil && overlay.BestNodeID != "" {
		fmt.Fprintf(&sb, "    class %s best;\n", sanitizeMermaidID(overlay.BestNodeID))
	}

	return sb.String()
}

func label(n domain.Node) string {
	l := fmt.Sprintf("#%d %s", n.Step, n.Kind)
	switch v, ok := n.Metric.Value(); {
	case n.Buggy:
		l += " <br/> bug"
	case ok:
		l += fmt.Sprintf(" <br/> %.4g", v)
	}
	return l
}

// sanitizeMermaidID prefixes IDs so hex IDs starting with a digit stay valid.
func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return "n_" + s
}
