package cli

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shieldflow/internal/app"
	"shieldflow/internal/storage/models"
	pkgerrors "shieldflow/pkg/errors"
)

// setupHome points every default path at a fresh directory.
func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("SHIELDFLOW_HOME", home)
	t.Setenv("API_KEY", "")
	return home
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	closeApp()
	return buf.String(), err
}

// useFakeClock makes every app built by the commands run on a fake clock.
func useFakeClock(t *testing.T) *clockwork.FakeClock {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	appClock = clock
	t.Cleanup(func() { appClock = nil })
	return clock
}

type sessionResult struct {
	out string
	err error
}

// advanceUntil moves the clock forward in small steps until done delivers.
func advanceUntil(t *testing.T, clock *clockwork.FakeClock, done <-chan sessionResult) sessionResult {
	t.Helper()
	for range 30000 {
		select {
		case res := <-done:
			return res
		case <-time.After(time.Millisecond):
			clock.Advance(20 * time.Millisecond)
		}
	}
	t.Fatal("session did not finish")
	return sessionResult{}
}

func TestServersList(t *testing.T) {
	setupHome(t)

	out, err := execute(t, "servers", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "us-east-1")
	assert.Contains(t, out, "Total: 6 servers")
	assert.Contains(t, out, "●")
}

func TestServersImport(t *testing.T) {
	home := setupHome(t)

	file := filepath.Join(home, "catalog.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`servers:
  - id: de-fra-1
    country: Germany
    city: Frankfurt
    ip: 45.83.12.9
    load_percent: 31
    ping_ms: 28
    features: [P2P]
`), 0644))

	out, err := execute(t, "servers", "import", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 servers")

	out, err = execute(t, "servers", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "de-fra-1")
	assert.NotContains(t, out, "us-east-1")
	assert.Contains(t, out, "Total: 1 servers")
}

func TestSettingsSetAndList(t *testing.T) {
	setupHome(t)

	_, err := execute(t, "settings", "set", "protocol", "OpenVPN")
	require.NoError(t, err)

	out, err := execute(t, "settings", "get", "protocol")
	require.NoError(t, err)
	assert.Equal(t, "OpenVPN\n", out)

	out, err = execute(t, "settings")
	require.NoError(t, err)
	assert.Contains(t, out, "OpenVPN")
	assert.Contains(t, out, "kill_switch")

	_, err = execute(t, "settings", "set", "protocol", "PPTP")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidPreference)
}

func TestRecommendFallback(t *testing.T) {
	setupHome(t)

	out, err := execute(t, "recommend", "low", "ping", "gaming")
	require.NoError(t, err)
	assert.Contains(t, out, "Recommendation service unavailable")
	assert.Contains(t, out, "Server:")

	out, err = execute(t, "history", "recommendations")
	require.NoError(t, err)
	assert.Contains(t, out, "low ping gaming")
	assert.Contains(t, out, "(fallback)")
}

func TestHistoryEmpty(t *testing.T) {
	setupHome(t)

	out, err := execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions yet.")
}

func TestConnectFor(t *testing.T) {
	setupHome(t)
	clock := useFakeClock(t)
	t.Cleanup(func() { connectCmd.Flags().Set("for", "0") })

	done := make(chan sessionResult, 1)
	go func() {
		out, err := execute(t, "connect", "sg-sin-1", "--for", "3s")
		done <- sessionResult{out, err}
	}()
	res := advanceUntil(t, clock, done)
	require.NoError(t, res.err)

	assert.Contains(t, res.out, "Connecting to Singapore (Singapore)...")
	assert.Contains(t, res.out, "Protocol: IKEv2")
	assert.Contains(t, res.out, "Encrypted tunnel established. IP: 120.33.1.55")
	assert.Contains(t, res.out, "Initiating disconnect sequence...")
	assert.Contains(t, res.out, "Disconnected successfully.")
	assert.Contains(t, res.out, "Session: 00:00:03 on Singapore (Singapore)")

	out, err := execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "sg-sin-1")
	assert.Contains(t, out, "00:00:03")
	assert.NotContains(t, out, "live")

	out, err = execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "(sg-sin-1)")
	assert.Contains(t, out, "Last session: sg-sin-1 via IKEv2")
	assert.Contains(t, out, "Duration:   00:00:03")
}

func TestRunSession_InterruptWhileConnecting(t *testing.T) {
	setupHome(t)
	clock := useFakeClock(t)

	a, err := app.New(app.Options{Clock: clock})
	require.NoError(t, err)
	appInstance = a
	t.Cleanup(closeApp)

	server, err := a.Storage.GetServer(context.Background(), "de-fra-1")
	require.NoError(t, err)

	// Interrupted before the tunnel is up; the disconnect waits for it.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	buf := new(bytes.Buffer)
	cmd := &cobra.Command{}
	cmd.SetOut(buf)

	done := make(chan sessionResult, 1)
	go func() {
		err := runSession(ctx, cmd, *server, models.DefaultPreferences(), 0, false)
		done <- sessionResult{buf.String(), err}
	}()
	res := advanceUntil(t, clock, done)
	require.NoError(t, res.err)

	assert.Contains(t, res.out, "Encrypted tunnel established.")
	assert.Contains(t, res.out, "Initiating disconnect sequence...")
	assert.Contains(t, res.out, "Session: 00:00:00 on Germany (Frankfurt)")
}

func TestCompletion(t *testing.T) {
	home := setupHome(t)

	out, err := execute(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "bash completion V2 for shieldflow")

	out, err = execute(t, "completion", "zsh")
	require.NoError(t, err)
	assert.Contains(t, out, "#compdef shieldflow")

	_, err = execute(t, "completion", "powershell")
	assert.Error(t, err)

	// Generating a script never opens the database.
	var dbs []string
	filepath.WalkDir(home, func(path string, d fs.DirEntry, err error) error {
		if err == nil && strings.HasSuffix(path, ".db") {
			dbs = append(dbs, path)
		}
		return nil
	})
	assert.Empty(t, dbs)
}
