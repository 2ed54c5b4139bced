// Package styles contains Lip Gloss style definitions for the run view.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	TextPrimaryColor   = lipgloss.AdaptiveColor{Light: "#333333", Dark: "#CCCCCC"}
	TextSecondaryColor = lipgloss.AdaptiveColor{Light: "#AAAAAA", Dark: "#BBBBBB"}
	TextMutedColor     = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#696969"}

	BorderDefaultColor = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#696969"}

	StatusSuccessColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	StatusWarningColor = lipgloss.AdaptiveColor{Light: "#FECA57", Dark: "#FECA57"}
	StatusErrorColor   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}
	StatusActiveColor  = lipgloss.AdaptiveColor{Light: "#54A0FF", Dark: "#54A0FF"}

	SpinnerColor = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#FFF"}

	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(TextPrimaryColor)

	HintStyle = lipgloss.NewStyle().Foreground(TextMutedColor)

	OutputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderDefaultColor)

	ErrorStyle = lipgloss.NewStyle().Foreground(StatusErrorColor).Bold(true)
)

// StatusStyle colors a run state label. Failed and cancelled runs use the
// error and warning colors, completed runs the success color, and everything
// still moving the active color.
func StatusStyle(terminal, failed, cancelled bool) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	switch {
	case failed:
		return base.Foreground(StatusErrorColor)
	case cancelled:
		return base.Foreground(StatusWarningColor)
	case terminal:
		return base.Foreground(StatusSuccessColor)
	default:
		return base.Foreground(StatusActiveColor)
	}
}
