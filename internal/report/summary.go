package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

// maxFailuresShown caps the failure listing in the terminal summary; the
// report files always carry every entry.
const maxFailuresShown = 10

// Summary renders a compact terminal summary of run.
func Summary(run Run) string {
	stats := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Download summary"),
		fmt.Sprintf("total      %d", run.Total),
		okStyle.Render(fmt.Sprintf("succeeded  %d", run.Succeeded)),
		failStyle.Render(fmt.Sprintf("failed     %d", run.Failed)),
		fmt.Sprintf("rate       %.1f%%", run.SuccessRate*100),
	)
	var b strings.Builder
	b.WriteString(boxStyle.Render(stats))
	b.WriteString("\n")

	failed := run.FailedEntries()
	for i, e := range failed {
		if i == maxFailuresShown {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  ... %d more in report", len(failed)-maxFailuresShown)))
			b.WriteString("\n")
			break
		}
		b.WriteString(failStyle.Render("  ✗ "))
		b.WriteString(e.URL)
		b.WriteString(dimStyle.Render("  " + e.Error))
		b.WriteString("\n")
	}
	return b.String()
}

// PrintSummary writes Summary(run) to w.
func PrintSummary(w io.Writer, run Run) error {
	_, err := io.WriteString(w, Summary(run))
	return err
}
