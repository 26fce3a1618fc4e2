// Package report renders run summaries for the terminal and delivers them
// by email.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/crossval/crossval/internal/orchestrator"
	"github.com/crossval/crossval/internal/validation"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("8"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	partialStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Render returns the styled terminal summary for a run.
func Render(s *orchestrator.Summary) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Validation Summary"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("started %s, took %s",
		s.StartedAt.Format("2006-01-02 15:04:05"), s.Duration.Round(time.Second))))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render(fmt.Sprintf("%-30s %-8s %12s %12s %12s %10s %10s",
		"TABLE", "STATUS", "TOTAL", "MATCHED", "MISMATCHED", "MISSING", "EXTRA")))
	b.WriteString("\n")
	for _, r := range s.Results {
		line := fmt.Sprintf("%-30s %-8s %12d %12d %12d %10d %10d",
			r.TableName, r.Status, r.TotalRows, r.MatchedRows, r.MismatchedRows,
			r.MissingInTarget, r.ExtraInTarget)
		b.WriteString(statusStyle(r.Status).Render(line))
		b.WriteString("\n")
		if r.ErrorMessage != "" {
			b.WriteString(dimStyle.Render("    " + r.ErrorMessage))
			b.WriteString("\n")
		}
	}
	for _, t := range s.Skipped {
		b.WriteString(dimStyle.Render(fmt.Sprintf("%-30s skipped", t)))
		b.WriteString("\n")
	}
	return b.String()
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case validation.StatusSuccess:
		return successStyle
	case validation.StatusPartial:
		return partialStyle
	default:
		return failedStyle
	}
}

// PlainText returns the unstyled summary used as the email body.
func PlainText(s *orchestrator.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Data validation run of %s completed in %s.\n\n",
		s.StartedAt.Format("2006-01-02 15:04:05"), s.Duration.Round(time.Second))
	fmt.Fprintf(&b, "%-30s %-8s %12s %12s %12s %10s %10s\n",
		"TABLE", "STATUS", "TOTAL", "MATCHED", "MISMATCHED", "MISSING", "EXTRA")
	for _, r := range s.Results {
		fmt.Fprintf(&b, "%-30s %-8s %12d %12d %12d %10d %10d\n",
			r.TableName, r.Status, r.TotalRows, r.MatchedRows, r.MismatchedRows,
			r.MissingInTarget, r.ExtraInTarget)
		if r.ErrorMessage != "" {
			fmt.Fprintf(&b, "    error: %s\n", r.ErrorMessage)
		}
	}
	for _, t := range s.Skipped {
		fmt.Fprintf(&b, "%-30s skipped\n", t)
	}
	return b.String()
}

// Subject builds the email subject line, flagging runs with findings.
func Subject(s *orchestrator.Summary) string {
	state := "clean"
	if s.AnyFailed() {
		state = "FAILURES"
	} else {
		for _, r := range s.Results {
			if r.Status == validation.StatusPartial {
				state = "discrepancies"
				break
			}
		}
	}
	return fmt.Sprintf("Data validation %s: %s", s.StartedAt.Format("2006-01-02"), state)
}
