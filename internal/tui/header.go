package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"shieldflow/internal/sim"
)

var tabNames = []string{"Dashboard", "Servers", "Assistant", "Settings"}

// headerPill is the text of the status pill: the tunnel IP while connected,
// a warning otherwise.
func headerPill(state sim.State, ip string) string {
	switch state {
	case sim.Connected:
		return " " + ip + " "
	case sim.Connecting:
		return " CONNECTING "
	case sim.Disconnecting:
		return " DISCONNECTING "
	default:
		return " Real IP Exposed "
	}
}

func renderHeader(activeTab int, state sim.State, ip string, width int) string {
	// Logo.
	logo := logoStyle.Render("🛡 SHIELDFLOW")

	// Status pill.
	label := headerPill(state, ip)
	var pill string
	switch {
	case state == sim.Connected:
		pill = securedPillStyle.Render(label)
	case state.Busy():
		pill = busyPillStyle.Render(label)
	default:
		pill = exposedPillStyle.Render(label)
	}

	// Tabs.
	var tabs []string
	for i, name := range tabNames {
		if i == activeTab {
			tabs = append(tabs, activeTabStyle.Render(name))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(name))
		}
	}
	tabBar := lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)

	// First row: logo + pill right-aligned.
	gap := width - lipgloss.Width(logo) - lipgloss.Width(pill)
	if gap < 1 {
		gap = 1
	}
	topRow := logo + strings.Repeat(" ", gap) + pill

	return lipgloss.JoinVertical(lipgloss.Left, topRow, tabBar, separator(width))
}

func renderFooter(helpText string, width int) string {
	return lipgloss.JoinVertical(lipgloss.Left, separator(width), helpBarStyle.Render(helpText))
}

func separator(width int) string {
	return lipgloss.NewStyle().
		Foreground(colorBorder).
		Render(strings.Repeat("─", max(width, 0)))
}

func renderHelpBar(showFull bool) string {
	if showFull {
		return renderFullHelp()
	}
	return renderShortHelp()
}

func renderShortHelp() string {
	var parts []string
	for _, b := range keys.ShortHelp() {
		if !b.Enabled() {
			continue
		}
		parts = append(parts, helpKeyStyle.Render(b.Help().Key)+" "+helpDescStyle.Render(b.Help().Desc))
	}
	return strings.Join(parts, helpSepStyle.Render(" | "))
}

func renderFullHelp() string {
	var lines []string
	for _, group := range keys.FullHelp() {
		var parts []string
		for _, b := range group {
			if !b.Enabled() {
				continue
			}
			parts = append(parts, helpKeyStyle.Render(b.Help().Key)+" "+helpDescStyle.Render(b.Help().Desc))
		}
		lines = append(lines, strings.Join(parts, helpSepStyle.Render("  ")))
	}
	return strings.Join(lines, "\n")
}
