package export

import (
	"fmt"
	"strings"
)

// MarkdownExporter renders the memory state as readable markdown, most
// general knowledge first.
type MarkdownExporter struct{}

func (e *MarkdownExporter) Export(data ExportData) (string, error) {
	var b strings.Builder
	b.WriteString("# Memory Export\n\n")

	if len(data.Rules) > 0 {
		b.WriteString("## Rules\n\n")
		for _, r := range data.Rules {
			fmt.Fprintf(&b, "- **When** %s **then** %s _(confidence %.2f)_\n",
				r.Condition, r.Consequence, r.Confidence)
		}
		b.WriteString("\n")
	}

	if len(data.Patterns) > 0 {
		b.WriteString("## Patterns\n\n")
		for _, p := range data.Patterns {
			fmt.Fprintf(&b, "- %s _(seen %d times, confidence %.2f)_\n",
				p.Signature, p.Frequency, p.Confidence)
		}
		b.WriteString("\n")
	}

	if len(data.Episodes) > 0 {
		b.WriteString("## Episodes\n\n")
		for _, ep := range data.Episodes {
			fmt.Fprintf(&b, "- %s _(%s)_\n", ep.Summary, ep.CreatedAt.Format("2006-01-02"))
		}
		b.WriteString("\n")
	}

	if len(data.Items) > 0 {
		b.WriteString("## Working Context\n\n")
		for _, it := range data.Items {
			fmt.Fprintf(&b, "- %s\n", it.Content)
		}
		b.WriteString("\n")
	}

	return b.String(), nil
}
