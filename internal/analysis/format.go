package analysis

import (
	"fmt"
	"strings"

	"github.com/shineIB/flowsync/internal/models"
)

// FormatDiagram renders the node and edge sets as the readable
// description the review prompt expects.
func FormatDiagram(nodes []models.Node, edges []models.Edge) string {
	lines := []string{"## Nodes (Components):"}

	for _, node := range nodes {
		nodeType := node.Type
		if nodeType == "" {
			nodeType = models.NodeDefault
		}
		label := "Unnamed"
		if l, ok := node.Data["label"].(string); ok && l != "" {
			label = l
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s (id: %s)", nodeType, label, node.ID))
	}

	lines = append(lines, "", "## Edges (Connections):")

	for _, edge := range edges {
		lines = append(lines, fmt.Sprintf("- %s --connects to--> %s", edge.Source, edge.Target))
	}
	if len(edges) == 0 {
		lines = append(lines, "- No connections defined")
	}

	return strings.Join(lines, "\n")
}
