package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"shieldflow/internal/app"
	"shieldflow/internal/sim"
)

// Tab indices.
const (
	tabDashboard = 0
	tabServers   = 1
	tabAssistant = 2
	tabSettings  = 3
	tabCount     = 4
)

// Model is the root BubbleTea model.
type Model struct {
	// Dependencies.
	app    *app.App
	events *events

	// Dimensions.
	width  int
	height int

	// Navigation.
	activeTab int
	showHelp  bool

	// Latest copy of the simulator state; every view renders from it.
	snapshot sim.Snapshot

	// Tab models.
	dashboardTab dashboardModel
	serversTab   serversModel
	assistantTab assistantModel
	settingsTab  settingsModel

	// Notification.
	notification    string
	notificationErr bool
	notifVersion    int

	// Spinner for busy states.
	spinner spinner.Model
}

// Deps holds all dependencies injected into the TUI.
type Deps struct {
	App *app.App
}

// NewModel creates a new root Model and subscribes it to the simulator.
func NewModel(deps Deps) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	return &Model{
		app:          deps.App,
		events:       subscribe(deps.App.Simulator),
		activeTab:    tabDashboard,
		snapshot:     deps.App.Simulator.Snapshot(),
		spinner:      s,
		dashboardTab: newDashboardModel(),
		serversTab:   newServersModel(),
		assistantTab: newAssistantModel(),
		settingsTab:  newSettingsModel(),
	}
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		loadServers(m.app.Storage),
		waitForEvent(m.events),
		clockTick(),
		m.spinner.Tick,
	}
	if m.snapshot.Preferences.AutoConnect {
		cmds = append(cmds, func() tea.Msg { return autoConnectMsg{} })
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	prevNotifVersion := m.notifVersion

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		ch := m.contentHeight()
		m.dashboardTab.setSize(msg.Width, ch)
		m.serversTab.setSize(msg.Width, ch)
		m.assistantTab.setSize(msg.Width, ch)
		m.settingsTab.setSize(msg.Width, ch)
		return m, nil

	case tea.KeyMsg:
		if cmd, handled := m.handleGlobalKey(msg); handled {
			return m, cmd
		}

	// Data loading.
	case serversLoadedMsg:
		if msg.err != nil {
			m.setNotification(fmt.Sprintf("Failed to load servers: %v", msg.err), true)
		} else {
			m.serversTab.setServers(msg.servers, m.snapshot.Server.ID)
		}

	// Simulator.
	case simChangedMsg:
		m.refresh()
		if msg.change != nil {
			m.notifyStateChange(*msg.change)
		}
		cmds = append(cmds, waitForEvent(m.events))
	case clockTickMsg:
		m.refresh()
		cmds = append(cmds, clockTick())
	case autoConnectMsg:
		if m.snapshot.State == sim.Disconnected && m.app.Toggle() {
			m.setNotification("Auto-connecting to "+m.snapshot.Server.Country, false)
		}

	// Server selection.
	case serverSelectedMsg:
		switch {
		case msg.err != nil:
			m.setNotification(fmt.Sprintf("Failed to save selection: %v", msg.err), true)
		case !msg.ok:
			m.setNotification("Disconnect before changing server", true)
		case msg.applied:
			m.setNotification("Applied recommendation: "+msg.name, false)
		default:
			m.setNotification("Selected "+msg.name, false)
		}
		m.refresh()
		m.serversTab.markSelected(m.snapshot.Server.ID)

	// Assistant.
	case recommendResultMsg:
		m.assistantTab.setResult(msg)
		if msg.err != nil {
			m.setNotification(fmt.Sprintf("Assistant: %v", msg.err), true)
		}

	// Settings.
	case settingSavedMsg:
		if msg.err != nil {
			m.setNotification(fmt.Sprintf("Save failed: %v", msg.err), true)
		} else {
			m.setNotification(fmt.Sprintf("Saved %s", msg.key), false)
		}
		m.refresh()

	// Notification.
	case clearNotificationMsg:
		if msg.version == m.notifVersion {
			m.notification = ""
			m.notificationErr = false
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	// Schedule notification auto-clear when a new notification was set.
	if m.notifVersion > prevNotifVersion && m.notification != "" {
		cmds = append(cmds, clearNotification(4*time.Second, m.notifVersion))
	}

	// Delegate to active tab.
	switch m.activeTab {
	case tabServers:
		cmds = append(cmds, m.serversTab.Update(msg, m))
	case tabAssistant:
		cmds = append(cmds, m.assistantTab.Update(msg, m))
	case tabSettings:
		cmds = append(cmds, m.settingsTab.Update(msg, m))
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	header := renderHeader(m.activeTab, m.snapshot.State, m.snapshot.Server.IP, m.width)

	var content string
	switch m.activeTab {
	case tabDashboard:
		content = m.dashboardTab.View(m.snapshot, m.spinner)
	case tabServers:
		content = m.serversTab.View()
	case tabAssistant:
		content = m.assistantTab.View(m.spinner)
	case tabSettings:
		content = m.settingsTab.View(m.snapshot.Preferences)
	}

	var notif string
	if m.notification != "" {
		if m.notificationErr {
			notif = notifErrorStyle.Render("! " + m.notification)
		} else {
			notif = notifSuccessStyle.Render("* " + m.notification)
		}
	}

	footer := renderFooter(renderHelpBar(m.showHelp), m.width)

	parts := []string{header}
	if notif != "" {
		parts = append(parts, notif)
	}
	parts = append(parts, content, footer)
	output := lipgloss.JoinVertical(lipgloss.Left, parts...)

	// Force exactly m.height lines to prevent BubbleTea rendering drift.
	return forceHeight(output, m.width, m.height)
}

// forceHeight ensures the string has exactly `height` lines, each padded to `width`.
// This prevents BubbleTea from leaving ghost lines when switching tabs.
func forceHeight(s string, width, height int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	blank := strings.Repeat(" ", max(width, 0))
	for len(lines) < height {
		lines = append(lines, blank)
	}
	return strings.Join(lines, "\n")
}

func (m *Model) contentHeight() int {
	overhead := 5
	if m.showHelp {
		overhead += 2
	}
	h := m.height - overhead
	if h < 1 {
		h = 1
	}
	return h
}

func (m *Model) refresh() {
	m.snapshot = m.app.Simulator.Snapshot()
}

func (m *Model) notifyStateChange(c sim.StateChange) {
	switch {
	case c.To == sim.Connected:
		m.setNotification("Connected to "+c.Server.Location(), false)
	case c.From == sim.Disconnecting && c.To == sim.Disconnected:
		m.setNotification("Disconnected after "+FormatClock(c.Duration), false)
	}
}

// handleGlobalKey processes keys that work on every tab. handled is false
// when the key should go to the active tab instead.
func (m *Model) handleGlobalKey(msg tea.KeyMsg) (cmd tea.Cmd, handled bool) {
	// Don't intercept while typing a query.
	if m.activeTab == tabAssistant && m.assistantTab.editing {
		return nil, false
	}

	switch {
	case key.Matches(msg, keys.Quit):
		m.events.close()
		return tea.Quit, true

	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
		ch := m.contentHeight()
		m.dashboardTab.setSize(m.width, ch)
		m.serversTab.setSize(m.width, ch)
		m.assistantTab.setSize(m.width, ch)
		m.settingsTab.setSize(m.width, ch)
		return nil, true

	case key.Matches(msg, keys.TabNext):
		m.activeTab = (m.activeTab + 1) % tabCount
		return nil, true

	case key.Matches(msg, keys.TabPrev):
		m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
		return nil, true

	case key.Matches(msg, keys.Toggle):
		if !m.app.Toggle() {
			m.setNotification("Please wait, "+strings.ToLower(m.snapshot.State.Label()), true)
			return clearNotification(4*time.Second, m.notifVersion), true
		}
		m.refresh()
		return nil, true

	case key.Matches(msg, keys.Disconnect):
		if m.app.Simulator.Disconnect() {
			m.refresh()
		}
		return nil, true

	case key.Matches(msg, keys.Apply):
		rec := m.assistantTab.last
		if rec == nil {
			m.setNotification("Ask the assistant first", true)
			return clearNotification(4*time.Second, m.notifVersion), true
		}
		return applyRecommendation(m.app, rec.Server), true
	}

	return nil, false
}

func (m *Model) setNotification(text string, isErr bool) {
	m.notification = text
	m.notificationErr = isErr
	m.notifVersion++
}

// NewProgram creates a bubbletea program with alt screen.
func NewProgram(deps Deps) *tea.Program {
	return tea.NewProgram(NewModel(deps), tea.WithAltScreen())
}
