package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/okian/promptelo/internal/domain/judge"
	"github.com/okian/promptelo/internal/domain/model"
)

var (
	colorAccent = lipgloss.Color("#20B9B4")
	colorMuted  = lipgloss.Color("241")
	colorGold   = lipgloss.Color("#F4D03F")
	colorWarn   = lipgloss.Color("#E74C3C")
)

// DefaultWidth is the content column width used when none is given.
const DefaultWidth = 100

// Terminal prints a styled leaderboard followed by the best candidate.
// Styling degrades to plain text when w is not a terminal.
func Terminal(w io.Writer, res *model.Result, width int) error {
	if width <= 0 {
		width = DefaultWidth
	}
	r := lipgloss.NewRenderer(w)
	title := r.NewStyle().Bold(true).Foreground(colorAccent)
	muted := r.NewStyle().Foreground(colorMuted)
	leader := r.NewStyle().Bold(true).Foreground(colorGold)
	warn := r.NewStyle().Foreground(colorWarn)
	box := r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorAccent).
		Padding(0, 1).
		Width(width)

	var b strings.Builder
	b.WriteString(title.Render("LEADERBOARD (ELO)"))
	b.WriteString("\n")
	b.WriteString(muted.Render(fmt.Sprintf("rounds=%d matches=%d termination=%s",
		res.RoundsPlayed, len(res.Matches), res.Termination)))
	b.WriteString("\n")
	if len(res.Failures) > 0 {
		b.WriteString(warn.Render(fmt.Sprintf("skipped matches=%d", len(res.Failures))))
		b.WriteString("\n")
	}

	for i, c := range res.Standings {
		row := fmt.Sprintf("%2d. %-4s ELO=%.1f  %s", i+1, c.ID, c.Rating, oneLine(judge.Truncate(c.Content, width)))
		if i == 0 {
			row = leader.Render(row)
		}
		b.WriteString(row)
		b.WriteString("\n")
	}

	if best, ok := res.Best(); ok {
		b.WriteString("\n")
		b.WriteString(title.Render("BEST PROMPT"))
		b.WriteString("\n")
		b.WriteString(box.Render(best.Content))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
