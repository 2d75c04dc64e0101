package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
)

// Styles holds the lipgloss styles used to render dialogs.
type Styles struct {
	Dialog  lipgloss.Style
	Banner  lipgloss.Style
	Title   lipgloss.Style
	Message lipgloss.Style
	Icon    lipgloss.Style
	Spinner lipgloss.Style
	Log     lipgloss.Style
}

// DefaultStyles returns the default dialog styles.
func DefaultStyles() Styles {
	return Styles{
		Dialog: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(0, 1),
		Banner: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("11")).
			Padding(0, 1),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")),
		Message: lipgloss.NewStyle(),
		Icon: lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("7")),
		Spinner: lipgloss.NewStyle().
			Foreground(lipgloss.Color("13")),
		Log: lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")),
	}
}

// iconStyle returns the icon style with bg as background, if set.
func (s Styles) iconStyle(bg string) lipgloss.Style {
	if bg == "" {
		return s.Icon
	}
	return s.Icon.Background(lipgloss.Color(bg))
}

var animations = []spinner.Spinner{
	spinner.Dot,
	spinner.Line,
	spinner.MiniDot,
	spinner.Jump,
	spinner.Pulse,
	spinner.Points,
	spinner.Globe,
	spinner.Moon,
	spinner.Meter,
}

// spinnerFor maps an animation code to a spinner. Unknown codes wrap around.
func spinnerFor(animation int) spinner.Spinner {
	if animation < 0 {
		animation = -animation
	}
	return animations[animation%len(animations)]
}
