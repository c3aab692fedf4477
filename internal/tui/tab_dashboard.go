package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"

	"shieldflow/internal/sim"
)

const emptyLogText = "Ready to connect..."

type dashboardModel struct {
	width  int
	height int
}

func newDashboardModel() dashboardModel {
	return dashboardModel{}
}

func (dm *dashboardModel) setSize(w, h int) {
	dm.width = w
	dm.height = h
}

func (dm *dashboardModel) View(snap sim.Snapshot, s spinner.Model) string {
	w := dm.width - 4
	if w < 40 {
		w = 40
	}

	status := dm.statusCard(snap, s)
	traffic := dm.trafficCard(snap)

	// Side by side if wide enough.
	var top string
	if dm.width > 90 {
		half := (w - 4) / 2
		top = lipgloss.JoinHorizontal(lipgloss.Top,
			cardStyle.Width(half).Render(status),
			"  ",
			cardStyle.Width(half).Render(traffic),
		)
	} else {
		top = lipgloss.JoinVertical(lipgloss.Left,
			cardStyle.Width(w).Render(status),
			cardStyle.Width(w).Render(traffic),
		)
	}

	logLines := dm.height - lipgloss.Height(top) - 4
	logs := cardStyle.Width(w).Render(renderLog(snap.Logs, logLines, w-6))

	return forceHeight(lipgloss.JoinVertical(lipgloss.Left, top, logs), dm.width, dm.height)
}

func (dm *dashboardModel) statusCard(snap sim.Snapshot, s spinner.Model) string {
	label := stateStyle(snap.State).Render(snap.State.Label())
	if snap.State.Busy() {
		label = s.View() + " " + label
	}

	server := snap.Server
	location := server.Location()
	if server.Flag != "" {
		location = server.Flag + " " + location
	}

	rows := []string{
		cardTitleStyle.Render("Connection"),
		row("Status", label),
		row("Server", location),
		row("Protocol", string(snap.Preferences.Protocol)),
		row("Kill Switch", onOff(snap.Preferences.KillSwitch)),
		row("Session", sessionClock(snap)),
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (dm *dashboardModel) trafficCard(snap sim.Snapshot) string {
	down := make([]float64, len(snap.Traffic))
	up := make([]float64, len(snap.Traffic))
	for i, t := range snap.Traffic {
		down[i] = t.DownloadMbps
		up[i] = t.UploadMbps
	}
	latest := snap.Latest()

	width := len(snap.Traffic)
	if width == 0 {
		width = sim.DefaultWindow
	}

	downStyle := lipgloss.NewStyle().Foreground(colorGreen)
	upStyle := lipgloss.NewStyle().Foreground(colorBlue)

	rows := []string{
		cardTitleStyle.Render("Traffic"),
		row("↓ Download", FormatRate(latest.DownloadMbps)),
		downStyle.Render(sparkline(down, sim.MaxDownloadMbps, width)),
		row("↑ Upload", FormatRate(latest.UploadMbps)),
		upStyle.Render(sparkline(up, sim.MaxUploadMbps, width)),
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// renderLog shows the newest entries first, at most lines of them.
func renderLog(entries []sim.LogEntry, lines, width int) string {
	var b strings.Builder
	b.WriteString(cardTitleStyle.Render("Connection Log"))
	b.WriteString("\n")

	if len(entries) == 0 {
		b.WriteString(dimStyle.Render(emptyLogText))
		return b.String()
	}

	if lines < 1 {
		lines = 1
	}
	if len(entries) > lines {
		entries = entries[:lines]
	}
	for i, e := range entries {
		ts := dimStyle.Render(fmt.Sprintf("[%s]", e.Timestamp))
		msg := severityStyle(e.Severity).Render(truncate(e.Message, max(width-11, 10)))
		b.WriteString(ts + " " + msg)
		if i < len(entries)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// sessionClock shows the running duration only while the tunnel is up.
func sessionClock(snap sim.Snapshot) string {
	if snap.State != sim.Connected {
		return clockPlaceholder
	}
	return FormatClock(snap.Duration)
}

func row(label, value string) string {
	return cardLabelStyle.Render(label+":") + " " + cardValueStyle.Render(value)
}
