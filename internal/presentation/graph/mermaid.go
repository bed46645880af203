// Package graph renders journey templates as Mermaid flowcharts for
// documentation and the validate/graph CLI commands.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/orbitel/journey/pkg/domain"
)

// Overlay highlights a running journey's position on the template graph.
type Overlay struct {
	CompletedSteps []string
	CurrentStep    string
}

// GenerateMermaid produces Mermaid flowchart syntax for a template.
// Step shapes carry semantics:
//   - manual: [Rectangle]
//   - automated: [[Subroutine]]
//   - integration: [/Parallelogram/]
//   - approval: {Diamond}
//   - notification: (Rounded)
func GenerateMermaid(tpl *domain.JourneyTemplate, overlay *Overlay) string {
	steps := append([]domain.Step(nil), tpl.Steps...)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })

	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, step := range steps {
		safeID := sanitizeID(step.ID)

		opener, closer := "[", "]"
		switch step.Type {
		case domain.StepAutomated:
			opener, closer = "[[", "]]"
		case domain.StepIntegration:
			opener, closer = "[/", "/]"
		case domain.StepApproval:
			opener, closer = "{", "}"
		case domain.StepNotification:
			opener, closer = "(", ")"
		}

		label := step.Name
		if label == "" {
			label = step.ID
		}
		if step.Type == domain.StepIntegration && step.Target != "" {
			label = fmt.Sprintf("%s <br/> → %s", label, step.Target)
		}
		if step.EstimatedDuration > 0 {
			label = fmt.Sprintf("%s <br/> ⏱ %s", label, step.EstimatedDuration)
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, escapeLabel(label), closer))
	}

	for i := 0; i+1 < len(steps); i++ {
		from := sanitizeID(steps[i].ID)
		to := sanitizeID(steps[i+1].ID)

		arrow := "-->"
		if conds := steps[i+1].Conditions; len(conds) > 0 {
			arrow = fmt.Sprintf("-- \"%s\" -->", escapeLabel(describeConditions(conds)))
		}
		sb.WriteString(fmt.Sprintf("    %s %s %s\n", from, arrow, to))
	}

	if overlay != nil {
		writeOverlay(&sb, overlay)
	}

	return sb.String()
}

func writeOverlay(sb *strings.Builder, overlay *Overlay) {
	for _, id := range overlay.CompletedSteps {
		sb.WriteString(fmt.Sprintf("    style %s fill:#d4edda,stroke:#28a745\n", sanitizeID(id)))
	}
	if overlay.CurrentStep != "" {
		sb.WriteString(fmt.Sprintf("    style %s fill:#fff3cd,stroke:#ffc107,stroke-width:2px\n",
			sanitizeID(overlay.CurrentStep)))
	}
}

func describeConditions(conds []domain.Condition) string {
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		switch c.Operator {
		case domain.OpExists, domain.OpNotExists:
			parts = append(parts, fmt.Sprintf("%s %s", c.Field, c.Operator))
		default:
			parts = append(parts, fmt.Sprintf("%s %s %v", c.Field, c.Operator, c.Value))
		}
	}
	return strings.Join(parts, " AND ")
}

func sanitizeID(id string) string {
	r := strings.NewReplacer("-", "_", " ", "_", ".", "_", "/", "_", ":", "_")
	return r.Replace(id)
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
