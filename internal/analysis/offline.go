package analysis

import (
	"fmt"
	"strings"

	"github.com/shineIB/flowsync/internal/models"
)

// offlineReport produces a deterministic review when no Gemini API key
// is configured, so the analyze endpoint stays useful in development.
func offlineReport(nodes []models.Node, edges []models.Edge) string {
	nodeCount := len(nodes)
	edgeCount := len(edges)

	typeCounts := make(map[string]int)
	var typeOrder []string
	hasDatabase := false
	hasGateway := false
	for _, n := range nodes {
		nodeType := n.Type
		if nodeType == "" {
			nodeType = models.NodeDefault
		}
		if typeCounts[nodeType] == 0 {
			typeOrder = append(typeOrder, nodeType)
		}
		typeCounts[nodeType]++
		switch nodeType {
		case models.NodeDatabase:
			hasDatabase = true
		case models.NodeGateway:
			hasGateway = true
		}
	}

	var typeSummary []string
	for _, t := range typeOrder {
		typeSummary = append(typeSummary, fmt.Sprintf("%s: %d", t, typeCounts[t]))
	}
	summary := strings.Join(typeSummary, ", ")
	if summary == "" {
		summary = "Default nodes"
	}

	var b strings.Builder
	fmt.Fprintf(&b, `## Security Analysis Report

**Architecture Overview:**
- Total Components: %d
- Total Connections: %d
- Component Types: %s

---

### 1. Security Assessment

`, nodeCount, edgeCount, summary)

	if nodeCount == 0 {
		b.WriteString("**Empty Architecture**: No components to analyze. Add nodes to your diagram.\n\n")
	} else {
		if hasDatabase {
			b.WriteString(`**Database Detected**: Ensure proper encryption at rest and in transit.
   - Recommendation: Use TLS 1.3 for connections
   - Enable audit logging for all database access

`)
		}
		if hasGateway {
			b.WriteString(`**API/Gateway Detected**: Implement proper authentication.
   - Recommendation: Use OAuth 2.0 or JWT tokens
   - Add rate limiting to prevent DDoS attacks

`)
		}
		if edgeCount == 0 && nodeCount > 1 {
			b.WriteString(`**Isolated Components**: Multiple nodes without connections may indicate:
   - Incomplete architecture diagram
   - Potential security silos

`)
		}
	}

	risk := "LOW"
	switch {
	case nodeCount > 0 && edgeCount == 0:
		risk = "HIGH"
	case nodeCount < 5:
		risk = "MEDIUM"
	}

	fmt.Fprintf(&b, `### 2. Best Practices Recommendations

1. **Network Segmentation**: Ensure proper VPC/subnet isolation
2. **Authentication**: Implement MFA for all user-facing components
3. **Monitoring**: Add centralized logging
4. **Secrets Management**: Keep credentials out of the diagram metadata

### 3. Compliance Notes

- **GDPR**: Ensure data processing consent and right to deletion
- **SOC2**: Implement access controls and audit trails

### 4. Risk Rating

**Overall Risk: %s**

*Note: This is an offline analysis. Configure a Gemini API key for AI-powered insights.*
`, risk)

	return b.String()
}
