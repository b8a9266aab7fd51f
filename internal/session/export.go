package session

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/clio-agent/clio/pkg/types"
)

// ExportReadOnly renders a session's transcript as redaction-applied,
// pretty-printed plain text, suitable for handing to another person without
// exposing secrets the agent happened to read off disk or fetch from the
// network (spec §4.3.4) or the broker's internal bookkeeping. Service.Export
// and the CLI's session export command return it; internal/sharing only
// issues tokens and serves nothing.
func (p *Processor) ExportReadOnly(ctx context.Context, sessionID string) (string, error) {
	messages, err := p.loadMessages(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("load messages: %w", err)
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].Time.Created < messages[j].Time.Created
	})

	var b strings.Builder
	fmt.Fprintf(&b, "# Session %s\n\n", sessionID)

	for _, msg := range messages {
		parts, err := p.loadParts(ctx, msg.ID)
		if err != nil {
			return "", fmt.Errorf("load parts for message %s: %w", msg.ID, err)
		}
		if len(parts) == 0 {
			continue
		}

		fmt.Fprintf(&b, "## %s\n\n", strings.ToUpper(msg.Role))
		for _, part := range parts {
			p.writeExportPart(&b, part)
		}
		b.WriteString("\n")
	}

	return b.String(), nil
}

// writeExportPart appends one part's redacted, human-readable rendering to b.
// Unknown/structural part kinds (step markers) are skipped — they carry no
// reader-facing content.
func (p *Processor) writeExportPart(b *strings.Builder, part types.Part) {
	switch pt := part.(type) {
	case *types.TextPart:
		if pt.Text == "" {
			return
		}
		fmt.Fprintf(b, "%s\n\n", p.redactor.Redact(pt.Text))
	case *types.ReasoningPart:
		if pt.Text == "" {
			return
		}
		fmt.Fprintf(b, "> (reasoning) %s\n\n", p.redactor.Redact(pt.Text))
	case *types.ToolPart:
		fmt.Fprintf(b, "**tool: %s** (%s)\n", pt.Tool, pt.State.Status)
		if pt.State.Output != "" {
			fmt.Fprintf(b, "```\n%s\n```\n", p.redactor.Redact(pt.State.Output))
		}
		if pt.State.Error != "" {
			fmt.Fprintf(b, "error: %s\n", p.redactor.Redact(pt.State.Error))
		}
		b.WriteString("\n")
	case *types.FilePart:
		fmt.Fprintf(b, "[attachment: %s]\n\n", pt.Filename)
	}
}
