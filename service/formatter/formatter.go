package formatter

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/sentinelops/gatekeeper/model/decision"
)

// Target selects the output representation.
type Target string

const (
	// TargetMarkdown renders the guardian review document.
	TargetMarkdown Target = "markdown"

	// TargetJSON renders the structured machine representation.
	TargetJSON Target = "json"

	// TargetPath renders the stable relative archive path for the record.
	TargetPath Target = "path"
)

const notProvided = "not provided"

// Format renders the record for the given target. Unknown targets fall back
// to markdown so the function stays total.
func Format(record *decision.Record, target Target) string {
	switch target {
	case TargetJSON:
		return JSON(record)
	case TargetPath:
		return Path(record)
	default:
		return Markdown(record)
	}
}

// Path returns the stable relative file path under which the rendered record
// is archived, e.g. decisions/healing/<id>.md.
func Path(record *decision.Record) string {
	return path.Join("decisions", string(record.Type), record.ID+".md")
}

// JSON returns the structured representation. Marshalling a valid record
// cannot fail; the error branch keeps the function total regardless.
func JSON(record *decision.Record) string {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"id":%q,"error":%q}`, record.ID, err.Error())
	}
	return string(data)
}

// Markdown renders the guardian decision request document.
func Markdown(record *decision.Record) string {
	var b strings.Builder

	title := string(record.Type)
	if title != "" {
		title = strings.ToUpper(title[:1]) + title[1:]
	}
	fmt.Fprintf(&b, "## Guardian Decision Request: %s\n\n", title)

	fmt.Fprintf(&b, "**Decision ID:** %s  \n", orNotProvided(record.ID))
	fmt.Fprintf(&b, "**Decision Type:** %s  \n", record.Type)
	fmt.Fprintf(&b, "**Priority:** %s  \n", record.Priority)
	fmt.Fprintf(&b, "**Confidence:** %.2f  \n", record.Confidence)
	fmt.Fprintf(&b, "**Requested By:** %s  \n", orNotProvided(record.Source))
	fmt.Fprintf(&b, "**Created:** %s\n\n", formatTime(record.CreatedAt))

	b.WriteString("### Proposed Action\n\n")
	fmt.Fprintf(&b, "%s\n\n", orNotProvided(record.ProposedAction))

	b.WriteString("### Reasoning\n\n")
	fmt.Fprintf(&b, "%s\n\n", orNotProvided(record.Reasoning))

	b.WriteString("### Risk Assessment\n\n")
	writeRisk(&b, record.Risk)

	b.WriteString("### Guardian Response\n\n")
	b.WriteString("**Decision:** [Approve | Reject]\n\n")
	b.WriteString("**Reasoning:**\n\n")
	b.WriteString("_Record your reasoning here; it becomes part of the audit trail._\n")

	return b.String()
}

func writeRisk(b *strings.Builder, risk *decision.RiskAssessment) {
	if risk == nil {
		fmt.Fprintf(b, "%s\n\n", notProvided)
		return
	}
	fmt.Fprintf(b, "- **Blast Radius:** %s\n", orNotProvided(risk.BlastRadius))
	fmt.Fprintf(b, "- **Reversible:** %s\n", yesNo(risk.Reversible))
	fmt.Fprintf(b, "- **Data Risk:** %s\n", yesNo(risk.DataRisk))
	if risk.AffectedSystems > 0 {
		fmt.Fprintf(b, "- **Affected Systems:** %d\n", risk.AffectedSystems)
	} else {
		fmt.Fprintf(b, "- **Affected Systems:** %s\n", notProvided)
	}
	if len(risk.Factors) == 0 {
		b.WriteString("- **Factors:** none reported\n\n")
		return
	}
	b.WriteString("- **Factors:**\n")
	for _, factor := range risk.Factors {
		detail := factor.Detail
		if detail == "" {
			detail = notProvided
		}
		marker := ""
		if factor.Blocking {
			marker = " (blocking)"
		}
		fmt.Fprintf(b, "  - %s%s: %s\n", factor.Name, marker, detail)
	}
	b.WriteString("\n")
}

func orNotProvided(value string) string {
	if value == "" {
		return notProvided
	}
	return value
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return notProvided
	}
	return t.UTC().Format(time.RFC3339)
}
