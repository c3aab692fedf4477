package tui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"shieldflow/internal/storage"
	"shieldflow/internal/storage/models"
)

// settingDef defines a setting's display metadata. Every setting is a
// choice cycled with enter or the arrows.
type settingDef struct {
	key         string
	label       string
	description string
	choices     []string
	value       func(models.Preferences) string
}

var settingDefs = []settingDef{
	{
		key:         storage.SettingProtocol,
		label:       "Protocol",
		description: "Tunnel protocol used for the next connection",
		choices:     protocolChoices(),
		value:       func(p models.Preferences) string { return string(p.Protocol) },
	},
	{
		key:         storage.SettingKillSwitch,
		label:       "Kill Switch",
		description: "Block traffic if the tunnel drops",
		choices:     []string{"true", "false"},
		value:       func(p models.Preferences) string { return strconv.FormatBool(p.KillSwitch) },
	},
	{
		key:         storage.SettingAutoConnect,
		label:       "Auto-connect",
		description: "Connect to the selected server on start-up",
		choices:     []string{"true", "false"},
		value:       func(p models.Preferences) string { return strconv.FormatBool(p.AutoConnect) },
	},
}

func protocolChoices() []string {
	choices := make([]string, len(models.Protocols))
	for i, p := range models.Protocols {
		choices[i] = string(p)
	}
	return choices
}

type settingsModel struct {
	cursor int
	width  int
	height int
}

func newSettingsModel() settingsModel {
	return settingsModel{}
}

func (sm *settingsModel) setSize(w, h int) {
	sm.width = w
	sm.height = h
}

func (sm *settingsModel) currentDef() settingDef {
	if sm.cursor >= 0 && sm.cursor < len(settingDefs) {
		return settingDefs[sm.cursor]
	}
	return settingDefs[0]
}

func (sm *settingsModel) Update(msg tea.Msg, root *Model) tea.Cmd {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if sm.cursor > 0 {
				sm.cursor--
			}
		case key.Matches(msg, keys.Down):
			if sm.cursor < len(settingDefs)-1 {
				sm.cursor++
			}
		case key.Matches(msg, keys.Enter):
			return sm.cycleChoice(root, 1)
		}
		switch msg.String() {
		case "left", "h":
			return sm.cycleChoice(root, -1)
		case "right", "l":
			return sm.cycleChoice(root, 1)
		}
	}
	return nil
}

// cycleChoice moves to the next/prev choice and saves it.
func (sm *settingsModel) cycleChoice(root *Model, dir int) tea.Cmd {
	def := sm.currentDef()
	idx := choiceIndex(def, def.value(root.snapshot.Preferences))
	idx = (idx + dir + len(def.choices)) % len(def.choices)
	return saveSetting(root.app, def.key, def.choices[idx])
}

func choiceIndex(def settingDef, current string) int {
	for i, c := range def.choices {
		if c == current {
			return i
		}
	}
	return 0
}

func (sm *settingsModel) View(prefs models.Preferences) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Settings"))
	b.WriteString("\n\n")

	for i, def := range settingDefs {
		val := def.value(prefs)

		if i == sm.cursor {
			label := lipgloss.NewStyle().Bold(true).Foreground(colorBlue).Width(18).Render("> " + def.label)
			b.WriteString(label + renderChoices(def, val) + "\n")
			b.WriteString(lipgloss.NewStyle().
				Foreground(colorDimFg).
				PaddingLeft(2).
				Render("  "+def.description+"  (enter/arrows to change)") + "\n")
			continue
		}

		label := lipgloss.NewStyle().Foreground(colorFg).Width(18).Render("  " + def.label)
		b.WriteString(label + lipgloss.NewStyle().Foreground(colorDimFg).Render(val) + "\n")
	}

	return forceHeight(b.String(), sm.width, sm.height)
}

// renderChoices renders the choice selector with the active choice highlighted.
func renderChoices(def settingDef, current string) string {
	var parts []string
	for _, c := range def.choices {
		if c == current {
			parts = append(parts, lipgloss.NewStyle().
				Bold(true).
				Foreground(colorBlue).
				Render("["+c+"]"))
		} else {
			parts = append(parts, lipgloss.NewStyle().
				Foreground(colorDimFg).
				Render(" "+c+" "))
		}
	}
	return strings.Join(parts, " ")
}
