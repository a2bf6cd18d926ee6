package ui

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle         = lipgloss.NewStyle().Bold(true)
	selectedTitleStyle = titleStyle.Foreground(lipgloss.Color("212"))

	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	barFilled = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	barEmpty  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))

	votedMark = lipgloss.NewStyle().Foreground(lipgloss.Color("114")).Render("✓")
	likedMark = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Render("♥")
)

// bar renders a fixed-width vote share bar.
func bar(pct, width int) string {
	filled := pct * width / 100
	if filled > width {
		filled = width
	}
	out := ""
	for i := 0; i < width; i++ {
		if i < filled {
			out += barFilled.Render("█")
		} else {
			out += barEmpty.Render("░")
		}
	}
	return out
}
