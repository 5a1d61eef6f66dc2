// Package graph renders machine definitions as Mermaid flowcharts, with an
// optional execution overlay.
package graph

import (
	"fmt"
	"strings"

	"github.com/switchyard-dev/switchyard/internal/compiler"
	"github.com/switchyard-dev/switchyard/pkg/domain"
)

// GraphOverlay contains dynamic state data to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// GenerateMermaid produces Mermaid flowchart syntax for a machine.
// Semantic styling:
//   - init:    ((circle))
//   - state:   [rectangle]
//   - task:    [/parallelogram/]
//   - tool:    [[subroutine]]
//   - context: [(database)]
//
// @auto edges are dotted; guard expressions become edge labels. Visited and
// current nodes from the overlay are highlighted.
func GenerateMermaid(g *domain.Graph, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for i := range g.Nodes {
		node := &g.Nodes[i]
		if node.Kind() == domain.KindNote {
			continue
		}
		safeID := sanitizeMermaidID(node.Name)

		opener, closer := "[", "]"
		switch node.Kind() {
		case domain.KindInit:
			opener, closer = "((", "))"
		case domain.KindTask:
			opener, closer = "[/", "/]"
		case domain.KindTool:
			opener, closer = "[[", "]]"
		case domain.KindContext:
			opener, closer = "[(", ")]"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, node.Name, closer))
	}

	for _, e := range g.Edges {
		from := sanitizeMermaidID(e.Source)
		to := sanitizeMermaidID(e.Target)
		if from == "" || to == "" {
			continue
		}
		spec := compiler.ParseEdge(e)

		arrow := "-->"
		if spec.Auto {
			arrow = "-.->"
		}
		if label := edgeLabel(spec); label != "" {
			// Escape double quotes for Mermaid labels
			safeLabel := strings.ReplaceAll(label, "\"", "'")
			arrow = fmt.Sprintf("-- \"%s\" -->", safeLabel)
			if spec.Auto {
				arrow = fmt.Sprintf("-. \"%s\" .->", safeLabel)
			}
		}
		sb.WriteString(fmt.Sprintf("    %s %s %s\n", from, arrow, to))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text for high contrast regardless of theme
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, name := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(name)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}
		if overlay.CurrentNode != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode)))
		}
	}

	return sb.String()
}

// OverlayFromState builds an overlay from the first path of a snapshot.
func OverlayFromState(state *domain.ExecutionState) *GraphOverlay {
	if state == nil || len(state.Paths) == 0 {
		return nil
	}
	path := state.Paths[0]
	overlay := &GraphOverlay{CurrentNode: path.CurrentNode}
	for _, t := range path.History {
		overlay.VisitedNodes = append(overlay.VisitedNodes, t.To)
	}
	return overlay
}

func edgeLabel(spec compiler.EdgeSpec) string {
	if spec.Guard != "" {
		if spec.Negate {
			return "unless: " + spec.Guard
		}
		return "when: " + spec.Guard
	}
	if spec.Verb != "" {
		if len(spec.Fields) > 0 {
			return spec.Verb + "[" + strings.Join(spec.Fields, ", ") + "]"
		}
		return spec.Verb
	}
	return ""
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
