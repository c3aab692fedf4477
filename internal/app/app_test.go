package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"shieldflow/internal/sim"
	"shieldflow/internal/storage"
	"shieldflow/internal/storage/models"
	pkgerrors "shieldflow/pkg/errors"
)

func newTestApp(t *testing.T) (*App, *clockwork.FakeClock) {
	t.Helper()
	dir := t.TempDir()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	a, err := New(Options{
		ConfigFile: filepath.Join(dir, "config.yaml"),
		DBFile:     filepath.Join(dir, "shieldflow.db"),
		LogFile:    filepath.Join(dir, "shieldflow.log"),
		LogLevel:   "debug",
		Clock:      clock,
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a, clock
}

func TestNew_WiresDefaults(t *testing.T) {
	a, _ := newTestApp(t)

	snap := a.Simulator.Snapshot()
	assert.Equal(t, sim.Disconnected, snap.State)
	assert.Equal(t, "us-east-1", snap.Server.ID)
	assert.Equal(t, models.DefaultPreferences(), snap.Preferences)
	assert.Equal(t, "debug", a.Config.LogLevel)
	assert.NotNil(t, a.Pruner)
	assert.NotNil(t, a.Recommend)
}

func TestSetSetting(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, a.SetSetting(ctx, storage.SettingProtocol, "OpenVPN"))
	require.NoError(t, a.SetSetting(ctx, storage.SettingKillSwitch, "false"))
	require.NoError(t, a.SetSetting(ctx, storage.SettingAutoConnect, "true"))

	prefs, err := a.LoadPreferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Preferences{Protocol: models.ProtocolOpenVPN, KillSwitch: false, AutoConnect: true}, prefs)
	assert.Equal(t, prefs, a.Simulator.Snapshot().Preferences)

	err = a.SetSetting(ctx, storage.SettingProtocol, "PPTP")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidPreference)
	err = a.SetSetting(ctx, storage.SettingKillSwitch, "maybe")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidPreference)
	err = a.SetSetting(ctx, "colour", "red")
	assert.ErrorIs(t, err, pkgerrors.ErrSettingNotFound)
	err = a.SetSetting(ctx, storage.SettingSelectedServer, "xx-none-1")
	assert.ErrorIs(t, err, pkgerrors.ErrServerNotFound)

	require.NoError(t, a.SetSetting(ctx, storage.SettingSelectedServer, "jp-tok-1"))
	server, err := a.SelectedServer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "jp-tok-1", server.ID)
}

func TestSelectedServer_FallsBackToFirst(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, a.Storage.SetSetting(ctx, storage.SettingSelectedServer, "gone-1"))
	server, err := a.SelectedServer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", server.ID)
}

func TestToggle_RecordsSession(t *testing.T) {
	a, clock := newTestApp(t)
	ctx := context.Background()

	advance := func(d time.Duration) {
		clock.Advance(d)
		a.Scheduler.RunDue()
	}

	server, err := a.Storage.GetServer(ctx, "uk-lon-1")
	require.NoError(t, err)
	ok, err := a.SelectServer(ctx, *server)
	require.NoError(t, err)
	require.True(t, ok)

	require.True(t, a.Toggle())
	assert.False(t, a.Toggle(), "busy while connecting")
	advance(2 * time.Second)
	require.Equal(t, sim.Connected, a.Simulator.State())

	ok, err = a.SelectServer(ctx, *server)
	require.NoError(t, err)
	assert.False(t, ok, "selection is locked while connected")

	advance(10 * time.Second)
	require.True(t, a.Toggle())
	advance(1500 * time.Millisecond)

	sessions, err := a.Storage.GetSessionHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "uk-lon-1", sessions[0].ServerID)
	assert.Equal(t, 10, sessions[0].DurationSec)

	selected, err := a.Storage.GetSetting(ctx, storage.SettingSelectedServer)
	require.NoError(t, err)
	assert.Equal(t, "uk-lon-1", selected)
}

func TestRecoverSessions_LeavesAnotherAppsSessionOpen(t *testing.T) {
	dir := t.TempDir()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	open := func() *App {
		a, err := New(Options{
			ConfigFile: filepath.Join(dir, "config.yaml"),
			DBFile:     filepath.Join(dir, "shieldflow.db"),
			LogFile:    filepath.Join(dir, "shieldflow.log"),
			Clock:      clock,
		})
		require.NoError(t, err)
		return a
	}
	ctx := context.Background()

	first := open()
	defer first.Close()
	advance := func(d time.Duration) {
		clock.Advance(d)
		first.Scheduler.RunDue()
	}

	require.True(t, first.Toggle())
	advance(2 * time.Second)
	advance(10 * time.Second)

	// A second command against the same database while the session is live.
	second := open()
	require.NoError(t, second.RecoverSessions(ctx))
	require.NoError(t, second.Close())

	require.True(t, first.Simulator.Disconnect())
	advance(1500 * time.Millisecond)

	history, err := first.Storage.GetSessionHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].EndedAt)
	assert.Equal(t, 10, history[0].DurationSec)
	assert.True(t, history[0].EndedAt.Equal(clock.Now()))
}

func TestClose_WithoutStartingPruner(t *testing.T) {
	a, _ := newTestApp(t)
	require.NotNil(t, a.Pruner)
	assert.False(t, a.Pruner.IsRunning())

	require.NoError(t, a.StartBackground(context.Background()))
	assert.True(t, a.Pruner.IsRunning())
	require.NoError(t, a.Close())
	assert.False(t, a.Pruner.IsRunning())
}
