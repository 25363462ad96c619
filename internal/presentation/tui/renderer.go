package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/aretw0/formbridge/pkg/domain"
)

// Renderer turns markdown into terminal output.
type Renderer func(markdown string) (string, error)

// NewRenderer returns a glamour renderer that follows the terminal background.
// If glamour cannot be initialized, markdown is returned unchanged.
func NewRenderer() Renderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(0),
	)
	if err != nil {
		return Plain
	}
	return r.Render
}

// Plain returns markdown unchanged. Used for non-terminal output.
func Plain(markdown string) (string, error) {
	return markdown, nil
}

// ParametersMarkdown formats an ordered parameter list as a markdown table.
// Duplicate names are listed under the table.
func ParametersMarkdown(title string, params []domain.Parameter) string {
	var sb strings.Builder
	if title != "" {
		fmt.Fprintf(&sb, "## %s\n\n", title)
	}
	if len(params) == 0 {
		sb.WriteString("_No parameters._\n")
		return sb.String()
	}

	sb.WriteString("| # | Parameter | Value | Direction |\n")
	sb.WriteString("|---|-----------|-------|-----------|\n")
	for i, p := range params {
		fmt.Fprintf(&sb, "| %d | %s | %s | %s |\n", i+1, escapeCell(p.Name), escapeCell(p.Value), p.Direction)
	}

	if dups := domain.DuplicateNames(params); len(dups) > 0 {
		fmt.Fprintf(&sb, "\n> Sent more than once: %s\n", strings.Join(dups, ", "))
	}
	return sb.String()
}

func escapeCell(s string) string {
	if s == "" {
		return "` `"
	}
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
