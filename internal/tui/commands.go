package tui

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"shieldflow/internal/app"
	"shieldflow/internal/recommend"
	"shieldflow/internal/sim"
	"shieldflow/internal/storage"
	"shieldflow/internal/storage/models"
)

// eventBufferSize bounds the simulator events waiting for the model. Events
// beyond it are dropped; the next snapshot still carries the state.
const eventBufferSize = 64

// events bridges simulator observers to the bubbletea loop. Observers run
// on whatever goroutine drives the simulator, so they never block and never
// call Program.Send.
type events struct {
	ch    chan simChangedMsg
	done  chan struct{}
	once  sync.Once
	unsub []func()
}

func subscribe(s *sim.Simulator) *events {
	e := &events{
		ch:   make(chan simChangedMsg, eventBufferSize),
		done: make(chan struct{}),
	}
	e.unsub = append(e.unsub,
		s.OnStateChange(func(c sim.StateChange) { e.push(simChangedMsg{change: &c}) }),
		s.OnLogAppended(func(sim.LogEntry) { e.push(simChangedMsg{}) }),
		s.OnTrafficSample(func(sim.TrafficSample) { e.push(simChangedMsg{}) }),
	)
	return e
}

func (e *events) push(msg simChangedMsg) {
	select {
	case e.ch <- msg:
	default:
	}
}

func (e *events) close() {
	e.once.Do(func() {
		for _, unsub := range e.unsub {
			unsub()
		}
		close(e.done)
	})
}

// waitForEvent blocks until the simulator reports something.
func waitForEvent(e *events) tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-e.ch:
			return msg
		case <-e.done:
			return nil
		}
	}
}

// loadServers fetches the whole catalog.
func loadServers(store storage.Storage) tea.Cmd {
	return func() tea.Msg {
		servers, err := store.GetAllServers(context.Background(), storage.ServerFilter{})
		return serversLoadedMsg{servers: servers, err: err}
	}
}

// clockTick refreshes the session clock once a second.
func clockTick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return clockTickMsg{}
	})
}

// selectServer makes server the current selection and persists it.
func selectServer(a *app.App, server models.Server) tea.Cmd {
	return func() tea.Msg {
		ok, err := a.SelectServer(context.Background(), server)
		return serverSelectedMsg{name: server.Country, ok: ok, err: err}
	}
}

// applyRecommendation selects a recommended server and persists it.
func applyRecommendation(a *app.App, server models.Server) tea.Cmd {
	return func() tea.Msg {
		ok, err := a.ApplyRecommendation(context.Background(), server)
		return serverSelectedMsg{name: server.Country, applied: true, ok: ok, err: err}
	}
}

// askAssistant queries the recommendation service.
func askAssistant(svc *recommend.Service, query string) tea.Cmd {
	return func() tea.Msg {
		rec, err := svc.Ask(context.Background(), query)
		return recommendResultMsg{rec: rec, err: err}
	}
}

// saveSetting validates and saves a single preference.
func saveSetting(a *app.App, key, value string) tea.Cmd {
	return func() tea.Msg {
		err := a.SetSetting(context.Background(), key, value)
		return settingSavedMsg{key: key, err: err}
	}
}

// clearNotification returns a command that fires after a delay.
func clearNotification(d time.Duration, version int) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return clearNotificationMsg{version: version}
	})
}
