package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"shieldflow/internal/sim"
	"shieldflow/internal/storage/models"
)

type serversModel struct {
	table   table.Model
	load    progress.Model
	servers []*models.Server
	width   int
	height  int
}

func serverColumns(locationWidth, featureWidth int) []table.Column {
	return []table.Column{
		{Title: " ", Width: 2},
		{Title: "Location", Width: locationWidth},
		{Title: "Load", Width: 6},
		{Title: "Ping", Width: 7},
		{Title: "Premium", Width: 8},
		{Title: "Features", Width: featureWidth},
	}
}

func newServersModel() serversModel {
	t := table.New(
		table.WithColumns(serverColumns(28, 22)),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorBorder).
		BorderBottom(true).
		Bold(true).
		Foreground(colorBlue)
	s.Selected = s.Selected.
		Foreground(colorFg).
		Background(colorSelection).
		Bold(true)
	t.SetStyles(s)

	p := progress.New(
		progress.WithSolidFill(loadLowColor),
		progress.WithoutPercentage(),
	)

	return serversModel{
		table: t,
		load:  p,
	}
}

func (sm *serversModel) setSize(w, h int) {
	sm.width = w
	sm.height = h

	// Table plus a blank line and the load bar below it.
	th := h - 3
	if th < 1 {
		th = 1
	}
	sm.table.SetHeight(th)

	if w > 80 {
		rest := w - 2 - 6 - 7 - 8 - 12
		sm.table.SetColumns(serverColumns(rest/2, rest-rest/2))
	}
	sm.load.Width = clamp(w/3, 10, 40)
}

func (sm *serversModel) setServers(servers []*models.Server, selectedID string) {
	sm.servers = servers

	rows := make([]table.Row, len(servers))
	for i, s := range servers {
		marker := ""
		if s.ID == selectedID {
			marker = "●"
		}
		premium := ""
		if s.Premium {
			premium = "★"
		}
		location := s.Location()
		if s.Flag != "" {
			location = s.Flag + " " + location
		}
		rows[i] = table.Row{
			marker,
			truncate(location, 40),
			fmt.Sprintf("%d%%", s.LoadPercent),
			fmt.Sprintf("%dms", s.PingMS),
			premium,
			strings.Join(s.Features, ", "),
		}
	}
	sm.table.SetRows(rows)
}

// markSelected moves the selection marker without reloading the catalog.
func (sm *serversModel) markSelected(selectedID string) {
	sm.setServers(sm.servers, selectedID)
}

func (sm *serversModel) selectedServer() *models.Server {
	idx := sm.table.Cursor()
	if idx >= 0 && idx < len(sm.servers) {
		return sm.servers[idx]
	}
	return nil
}

func (sm *serversModel) Update(msg tea.Msg, root *Model) tea.Cmd {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, keys.Enter) {
			server := sm.selectedServer()
			if server == nil {
				return nil
			}
			if root.snapshot.State != sim.Disconnected {
				root.setNotification("Disconnect before changing server", true)
				return nil
			}
			return selectServer(root.app, *server)
		}
	}

	var cmd tea.Cmd
	sm.table, cmd = sm.table.Update(msg)
	return cmd
}

func (sm *serversModel) View() string {
	if len(sm.servers) == 0 {
		return forceHeight(dimStyle.Render("No servers in the catalog. Import one with `shieldflow servers import`."), sm.width, sm.height)
	}

	var b strings.Builder
	b.WriteString(sm.table.View())
	b.WriteString("\n\n")

	if server := sm.selectedServer(); server != nil {
		sm.load.FullColor = loadColor(server.LoadPercent)
		label := lipgloss.NewStyle().Foreground(lipgloss.Color(loadColor(server.LoadPercent))).
			Render(fmt.Sprintf(" %d%% load", server.LoadPercent))
		b.WriteString(" " + sm.load.ViewAs(float64(server.LoadPercent)/100) + label)
		if server.Premium {
			b.WriteString("  " + premiumStyle.Render("★ Premium"))
		}
	}

	return forceHeight(b.String(), sm.width, sm.height)
}
