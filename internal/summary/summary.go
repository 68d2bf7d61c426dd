// Package summary renders the end-of-run report printed on stdout.
package summary

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fyrsmithlabs/qaflow/internal/pipeline"
)

const (
	successHeadline = "All workflow steps completed successfully!"
	failureHeadline = "Workflow completed with errors."
	notAvailable    = "N/A"
)

// Printer renders run summaries. Styles degrade to plain text when the
// writer is not a terminal.
type Printer struct {
	w        io.Writer
	headline lipgloss.Style
	ok       lipgloss.Style
	bad      lipgloss.Style
	label    lipgloss.Style
	dim      lipgloss.Style
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:        w,
		headline: r.NewStyle().Bold(true),
		ok:       r.NewStyle().Foreground(lipgloss.Color("46")).Bold(true),
		bad:      r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		label:    r.NewStyle().Foreground(lipgloss.Color("45")),
		dim:      r.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

// Print writes the summary for a finished run.
func (p *Printer) Print(state pipeline.RunState) error {
	_, err := io.WriteString(p.w, p.Render(state))
	return err
}

// Render returns the summary text for state.
func (p *Printer) Render(state pipeline.RunState) string {
	var b strings.Builder
	b.WriteString("\n")

	if state.FullySucceeded() {
		b.WriteString(p.ok.Render(successHeadline) + "\n")
		for _, path := range state.FinalReportPaths {
			b.WriteString("   " + p.label.Render("Report:") + " " + path + "\n")
		}
	} else {
		b.WriteString(p.bad.Render(failureHeadline) + "\n")
		if state.OverallError != "" {
			b.WriteString("   " + p.label.Render("Overall Error:") + " " + state.OverallError + "\n")
		}
		for _, id := range pipeline.AllStages() {
			st := state.Status(id)
			if st.Succeeded() {
				continue
			}
			msg := st.Error
			if msg == "" {
				msg = notAvailable
			}
			b.WriteString(fmt.Sprintf("   %s %s\n", p.label.Render(id.Label()+" Error:"), msg))
		}
	}

	if state.FinishedAt != nil && !state.StartedAt.IsZero() {
		elapsed := state.FinishedAt.Sub(state.StartedAt)
		b.WriteString(p.dim.Render(fmt.Sprintf("   Run %s finished in %s", state.RunID, FormatElapsed(elapsed))) + "\n")
	}
	return b.String()
}

// FormatElapsed formats d as "Xh Ym", "Xm Ys" or "Xs".
func FormatElapsed(d time.Duration) string {
	seconds := int64(d.Round(time.Second) / time.Second)
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}
