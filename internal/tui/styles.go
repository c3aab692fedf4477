package tui

import (
	"github.com/charmbracelet/lipgloss"

	"shieldflow/internal/sim"
)

// Adaptive colors that work on light and dark terminals.
var (
	colorBlue      = lipgloss.AdaptiveColor{Light: "#1F5FBF", Dark: "#5FA8FF"}
	colorGreen     = lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}
	colorRed       = lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#FF4672"}
	colorAmber     = lipgloss.AdaptiveColor{Light: "#FF8C00", Dark: "#FFA500"}
	colorSubtle    = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}
	colorFg        = lipgloss.AdaptiveColor{Light: "#1A1A2E", Dark: "#FFFDF5"}
	colorDimFg     = lipgloss.AdaptiveColor{Light: "#A49FA5", Dark: "#777777"}
	colorBorder    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	colorSelection = lipgloss.AdaptiveColor{Light: "#DCE8F8", Dark: "#16243A"}
)

// Solid fills for the load bar; progress takes plain color strings.
const (
	loadLowColor  = "#04B575"
	loadMidColor  = "#FFA500"
	loadHighColor = "#FF4672"
)

// Header styles.
var (
	logoStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue).
			PaddingRight(2)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue).
			Underline(true).
			Padding(0, 2)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(colorDimFg).
				Padding(0, 2)
)

// Connection status pill styles.
var (
	securedPillStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FFFFFF")).
				Background(colorGreen).
				Padding(0, 1)

	exposedPillStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FFFFFF")).
				Background(colorRed).
				Padding(0, 1)

	busyPillStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(colorAmber).
			Padding(0, 1)
)

// Footer / help bar styles.
var (
	helpBarStyle = lipgloss.NewStyle().
			Foreground(colorDimFg).
			Padding(0, 1)

	helpKeyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(colorDimFg)

	helpSepStyle = lipgloss.NewStyle().
			Foreground(colorSubtle)
)

// General content styles.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue).
			MarginBottom(1)

	successStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorAmber)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDimFg)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 2)

	cardTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue).
			MarginBottom(1)

	cardLabelStyle = lipgloss.NewStyle().
			Foreground(colorDimFg).
			Width(14)

	cardValueStyle = lipgloss.NewStyle().
			Foreground(colorFg)

	premiumStyle = lipgloss.NewStyle().
			Foreground(colorAmber).
			Bold(true)
)

// stateStyle colours the dashboard status label.
func stateStyle(state sim.State) lipgloss.Style {
	switch state {
	case sim.Connected:
		return successStyle
	case sim.Connecting, sim.Disconnecting:
		return lipgloss.NewStyle().Foreground(colorAmber).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	}
}

// severityStyle colours a connection log line.
func severityStyle(sev sim.Severity) lipgloss.Style {
	switch sev {
	case sim.SeveritySuccess:
		return lipgloss.NewStyle().Foreground(colorGreen)
	case sim.SeverityWarning:
		return lipgloss.NewStyle().Foreground(colorAmber)
	case sim.SeverityError:
		return lipgloss.NewStyle().Foreground(colorRed)
	default:
		return lipgloss.NewStyle().Foreground(colorFg)
	}
}

// loadColor maps a server load to green, amber or red.
func loadColor(percent int) string {
	switch {
	case percent < 50:
		return loadLowColor
	case percent < 80:
		return loadMidColor
	default:
		return loadHighColor
	}
}

// Spinner style.
var spinnerStyle = lipgloss.NewStyle().Foreground(colorBlue)

// Notification styles.
var (
	notifSuccessStyle = lipgloss.NewStyle().
				Foreground(colorGreen).
				Bold(true).
				Padding(0, 1)

	notifErrorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true).
			Padding(0, 1)
)
