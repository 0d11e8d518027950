package tui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	colorGreen  = lipgloss.Color("40")  // switch on, listening
	colorYellow = lipgloss.Color("220") // transitional states
	colorRed    = lipgloss.Color("196") // errors
	colorCyan   = lipgloss.Color("39")  // addresses
	colorGray   = lipgloss.Color("244") // labels
	colorWhite  = lipgloss.Color("255") // values
	colorDim    = lipgloss.Color("240") // secondary text
)

// Text styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite)

	hintStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	// Label style for field names
	labelStyle = lipgloss.NewStyle().
			Width(20).
			Foreground(colorGray)

	valueStyle = lipgloss.NewStyle().
			Foreground(colorWhite)

	statusOnlineStyle = lipgloss.NewStyle().
				Foreground(colorGreen).
				Bold(true)

	statusConnectingStyle = lipgloss.NewStyle().
				Foreground(colorYellow)

	statusOfflineStyle = lipgloss.NewStyle().
				Foreground(colorRed)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	urlStyle = lipgloss.NewStyle().
			Foreground(colorCyan)

	statsHeaderStyle = lipgloss.NewStyle().
				Foreground(colorGray).
				Width(8)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(colorWhite).
			Width(8)

	switchOnStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true).
			Width(4)

	switchOffStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			Width(4)

	durationStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	levelInfoStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Width(6)

	levelWarnStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Width(6)

	levelErrorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Width(6)
)

// StateText returns the styled session state.
func StateText(state string) string {
	switch state {
	case "listening":
		return statusOnlineStyle.Render(state)
	case "idle":
		return statusOfflineStyle.Render(state)
	default:
		return statusConnectingStyle.Render(state)
	}
}

// SwitchText returns the styled switch position.
func SwitchText(on bool) string {
	if on {
		return switchOnStyle.Render("on")
	}
	return switchOffStyle.Render("off")
}

// NetworkText returns the styled network availability.
func NetworkText(up bool) string {
	if up {
		return statusOnlineStyle.Render("up")
	}
	return statusOfflineStyle.Render("down")
}

// LevelText returns the styled log level.
func LevelText(level string) string {
	switch level {
	case "warn":
		return levelWarnStyle.Render(level)
	case "error":
		return levelErrorStyle.Render(level)
	default:
		return levelInfoStyle.Render(level)
	}
}
