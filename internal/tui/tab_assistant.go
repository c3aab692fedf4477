package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"shieldflow/internal/recommend"
)

const customQueryLabel = "Ask something else..."

type assistantModel struct {
	cursor  int // Index into recommend.Presets; len(Presets) is the custom query row
	editing bool
	input   textinput.Model
	asking  bool
	query   string
	last    *recommend.Recommendation
	width   int
	height  int
}

func newAssistantModel() assistantModel {
	ti := textinput.New()
	ti.CharLimit = 200
	ti.Placeholder = "e.g. stream football from the UK"
	ti.Prompt = "> "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(colorBlue)
	ti.TextStyle = lipgloss.NewStyle().Foreground(colorFg)

	return assistantModel{input: ti}
}

func (am *assistantModel) setSize(w, h int) {
	am.width = w
	am.height = h
	am.input.Width = w / 2
}

func (am *assistantModel) setResult(msg recommendResultMsg) {
	am.asking = false
	if msg.err == nil {
		am.last = msg.rec
	}
}

func (am *assistantModel) Update(msg tea.Msg, root *Model) tea.Cmd {
	if am.editing {
		return am.updateEditing(msg, root)
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if am.cursor > 0 {
				am.cursor--
			}
		case key.Matches(msg, keys.Down):
			if am.cursor < len(recommend.Presets) {
				am.cursor++
			}
		case key.Matches(msg, keys.Enter):
			if am.cursor < len(recommend.Presets) {
				return am.ask(root, recommend.Presets[am.cursor])
			}
			am.editing = true
			am.input.Focus()
			return textinput.Blink
		}
	}
	return nil
}

func (am *assistantModel) updateEditing(msg tea.Msg, root *Model) tea.Cmd {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Back):
			am.editing = false
			am.input.Blur()
			return nil
		case key.Matches(msg, keys.Enter):
			query := strings.TrimSpace(am.input.Value())
			if query == "" {
				return nil
			}
			am.editing = false
			am.input.Blur()
			am.input.Reset()
			return am.ask(root, query)
		}
	}

	var cmd tea.Cmd
	am.input, cmd = am.input.Update(msg)
	return cmd
}

func (am *assistantModel) ask(root *Model, query string) tea.Cmd {
	if am.asking {
		return nil
	}
	am.asking = true
	am.query = query
	return askAssistant(root.app.Recommend, query)
}

func (am *assistantModel) View(s spinner.Model) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("AI Server Assistant"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Describe what you need and get a server suggestion."))
	b.WriteString("\n\n")

	for i, preset := range recommend.Presets {
		b.WriteString(am.option(i, preset) + "\n")
	}
	if am.editing {
		b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(colorBlue).Render("> ") + am.input.View() + "\n")
	} else {
		b.WriteString(am.option(len(recommend.Presets), customQueryLabel) + "\n")
	}
	b.WriteString("\n")

	switch {
	case am.asking:
		b.WriteString(s.View() + " Asking about \"" + am.query + "\"...")
	case am.last != nil:
		b.WriteString(am.resultCard())
	}

	return forceHeight(b.String(), am.width, am.height)
}

func (am *assistantModel) option(i int, text string) string {
	if i == am.cursor {
		return lipgloss.NewStyle().Bold(true).Foreground(colorBlue).Render("> " + text)
	}
	return lipgloss.NewStyle().Foreground(colorFg).Render("  " + text)
}

func (am *assistantModel) resultCard() string {
	rec := am.last
	location := rec.Server.Location()
	if rec.Server.Flag != "" {
		location = rec.Server.Flag + " " + location
	}

	rows := []string{
		cardTitleStyle.Render("Recommendation"),
		row("Query", rec.Query),
		row("Server", location),
	}
	if rec.Fallback {
		rows = append(rows, row("Reason", warningStyle.Render("Service unavailable, suggesting the default server")))
	} else if rec.Reason != "" {
		rows = append(rows, row("Reason", rec.Reason))
	}
	rows = append(rows, "", dimStyle.Render("Press 'a' to apply"))

	w := am.width - 4
	if w < 40 {
		w = 40
	}
	return cardStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
