package sim

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"shieldflow/internal/sched"
	"shieldflow/internal/storage/models"
)

var (
	t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	usEast = models.Server{
		ID: "us-east-1", Country: "United States", City: "New York",
		IP: "104.23.11.90", LoadPercent: 62, PingMS: 45, Features: []string{"Streaming", "P2P"},
	}
	deFra = models.Server{
		ID: "de-fra-1", Country: "Germany", City: "Frankfurt",
		IP: "190.12.44.11", LoadPercent: 30, PingMS: 102, Features: []string{"Privacy", "No-Log"},
	}
	prefs = models.DefaultPreferences()
)

// fixedRandom returns a constant value.
type fixedRandom float64

func (f fixedRandom) Float64() float64 { return float64(f) }

type harness struct {
	t     *testing.T
	clock *clockwork.FakeClock
	sched *sched.Scheduler
	sim   *Simulator

	changes []StateChange
	entries []LogEntry
	samples []TrafficSample
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	clock := clockwork.NewFakeClockAt(t0)
	s := sched.New(clock)
	opts = append([]Option{WithRandom(fixedRandom(0.5)), WithLogger(zaptest.NewLogger(t))}, opts...)
	h := &harness{
		t:     t,
		clock: clock,
		sched: s,
		sim:   New(DefaultConfig(), s, opts...),
	}
	h.sim.OnStateChange(func(c StateChange) { h.changes = append(h.changes, c) })
	h.sim.OnLogAppended(func(e LogEntry) { h.entries = append(h.entries, e) })
	h.sim.OnTrafficSample(func(ts TrafficSample) { h.samples = append(h.samples, ts) })
	t.Cleanup(h.sim.Close)
	return h
}

// advance moves the fake clock forward and fires whatever became due.
func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.sched.RunDue()
}

func (h *harness) connected() {
	h.t.Helper()
	require.True(h.t, h.sim.Connect(usEast, prefs))
	h.advance(2 * time.Second)
	require.Equal(h.t, Connected, h.sim.State())
}

func (h *harness) messages() []string {
	out := make([]string, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.Message
	}
	return out
}

// allowed lists the transitions of the lifecycle table.
var allowed = map[[2]State]bool{
	{Disconnected, Connecting}:    true,
	{Connecting, Connected}:       true,
	{Connected, Disconnecting}:    true,
	{Disconnecting, Disconnected}: true,
}

func TestNew_StartsDisconnectedWithZeroWindow(t *testing.T) {
	h := newHarness(t, WithServer(usEast))

	snap := h.sim.Snapshot()
	assert.Equal(t, Disconnected, snap.State)
	assert.Equal(t, usEast.ID, snap.Server.ID)
	assert.Equal(t, prefs, snap.Preferences)
	assert.Nil(t, snap.Session)
	assert.Zero(t, snap.Duration)
	assert.Empty(t, snap.Logs)
	require.Len(t, snap.Traffic, DefaultWindow)
	for _, sample := range snap.Traffic {
		assert.Zero(t, sample.DownloadMbps)
		assert.Zero(t, sample.UploadMbps)
	}
	assert.Zero(t, h.sched.Pending())
}

func TestConnect_FollowsLifecycle(t *testing.T) {
	h := newHarness(t)

	require.True(t, h.sim.Connect(usEast, prefs))
	assert.Equal(t, Connecting, h.sim.State())
	assert.Equal(t, []string{
		"Connecting to United States (New York)...",
		"Protocol: IKEv2",
	}, h.messages())
	assert.Equal(t, 1, h.sched.Pending())

	h.advance(1999 * time.Millisecond)
	assert.Equal(t, Connecting, h.sim.State())

	h.advance(time.Millisecond)
	assert.Equal(t, Connected, h.sim.State())
	require.Len(t, h.entries, 3)
	assert.Equal(t, "Encrypted tunnel established. IP: 104.23.11.90", h.entries[2].Message)
	assert.Equal(t, SeveritySuccess, h.entries[2].Severity)
	assert.Equal(t, 2, h.sched.Pending(), "duration and traffic timers")

	snap := h.sim.Snapshot()
	require.NotNil(t, snap.Session)
	assert.True(t, snap.Session.StartTime.Equal(t0.Add(2*time.Second)))

	require.Len(t, h.changes, 2)
	assert.Equal(t, Disconnected, h.changes[0].From)
	assert.Equal(t, Connecting, h.changes[0].To)
	assert.Equal(t, Connected, h.changes[1].To)
	assert.Equal(t, usEast.ID, h.changes[1].Server.ID)
	assert.Equal(t, models.ProtocolIKEv2, h.changes[1].Protocol)
}

func TestConnect_ExactlyOneTunnelEntry(t *testing.T) {
	h := newHarness(t)
	h.connected()
	h.advance(10 * time.Second)

	count := 0
	for _, e := range h.sim.Snapshot().Logs {
		if strings.HasPrefix(e.Message, "Encrypted tunnel established") {
			count++
			assert.Contains(t, e.Message, usEast.IP)
		}
	}
	assert.Equal(t, 1, count)
}

func TestDuration_CountsTicks(t *testing.T) {
	h := newHarness(t)
	h.connected()

	for i := 1; i <= 5; i++ {
		h.advance(time.Second)
		assert.Equal(t, i, h.sim.Snapshot().Duration)
	}

	// A late driver catches up from the fixed origin.
	h.advance(10 * time.Second)
	assert.Equal(t, 15, h.sim.Snapshot().Duration)
}

func TestTraffic_SamplesWhileConnected(t *testing.T) {
	h := newHarness(t)

	h.advance(5 * time.Second)
	assert.Empty(t, h.samples, "no samples at rest")

	h.connected()
	h.advance(3 * time.Second)
	require.Len(t, h.samples, 3)
	for _, sample := range h.samples {
		assert.InDelta(t, 60.0, sample.DownloadMbps, 1e-9)
		assert.InDelta(t, 20.0, sample.UploadMbps, 1e-9)
	}

	snap := h.sim.Snapshot()
	require.Len(t, snap.Traffic, DefaultWindow)
	assert.Zero(t, snap.Traffic[DefaultWindow-4].DownloadMbps)
	assert.InDelta(t, 60.0, snap.Latest().DownloadMbps, 1e-9)
}

func TestDisconnect_ResetsDurationAndWindow(t *testing.T) {
	h := newHarness(t)
	h.connected()
	h.advance(7 * time.Second)

	require.True(t, h.sim.Disconnect())
	assert.Equal(t, Disconnecting, h.sim.State())
	assert.Equal(t, 1, h.sched.Pending(), "periodic timers stop synchronously")
	assert.Equal(t, "Initiating disconnect sequence...", h.entries[len(h.entries)-1].Message)

	samples := len(h.samples)
	h.advance(time.Second)
	assert.Equal(t, samples, len(h.samples), "no ticks while disconnecting")
	assert.Equal(t, 7, h.sim.Snapshot().Duration)

	h.advance(500 * time.Millisecond)
	snap := h.sim.Snapshot()
	assert.Equal(t, Disconnected, snap.State)
	assert.Zero(t, snap.Duration)
	assert.Nil(t, snap.Session)
	require.Len(t, snap.Traffic, DefaultWindow)
	for _, sample := range snap.Traffic {
		assert.Zero(t, sample.DownloadMbps)
		assert.Zero(t, sample.UploadMbps)
	}
	assert.Equal(t, "Disconnected successfully.", snap.Logs[0].Message)
	assert.Equal(t, SeverityWarning, snap.Logs[0].Severity)
	assert.Zero(t, h.sched.Pending())

	last := h.changes[len(h.changes)-1]
	assert.Equal(t, Disconnected, last.To)
	assert.Equal(t, 7, last.Duration)
}

func TestInvalidIntents_AreNoOps(t *testing.T) {
	h := newHarness(t)

	assert.False(t, h.sim.Disconnect())
	assert.Empty(t, h.entries)
	assert.Empty(t, h.changes)
	assert.Zero(t, h.sched.Pending())

	h.connected()
	entries, changes, pending := len(h.entries), len(h.changes), h.sched.Pending()

	assert.False(t, h.sim.Connect(deFra, prefs))
	assert.False(t, h.sim.SelectServer(deFra))
	assert.False(t, h.sim.ApplyRecommendation(deFra))
	assert.Equal(t, entries, len(h.entries))
	assert.Equal(t, changes, len(h.changes))
	assert.Equal(t, pending, h.sched.Pending())
	assert.Equal(t, usEast.ID, h.sim.Snapshot().Server.ID)
}

func TestDisconnectWhileConnecting_IsIgnored(t *testing.T) {
	h := newHarness(t)

	require.True(t, h.sim.Connect(usEast, prefs))
	h.advance(time.Second)
	assert.False(t, h.sim.Disconnect())
	assert.Equal(t, Connecting, h.sim.State())

	h.advance(time.Second)
	assert.Equal(t, Connected, h.sim.State())
}

func TestRapidToggles_LeaveNoLeakedTimers(t *testing.T) {
	h := newHarness(t)

	h.sim.Connect(usEast, prefs)
	h.sim.Disconnect()
	h.sim.Connect(deFra, prefs)
	h.advance(500 * time.Millisecond)
	h.sim.Disconnect()
	h.sim.Connect(deFra, prefs)
	assert.Equal(t, 1, h.sched.Pending(), "one delayed transition")

	h.advance(1500 * time.Millisecond)
	assert.Equal(t, Connected, h.sim.State())
	assert.Equal(t, 2, h.sched.Pending(), "one pair of periodic timers")
	assert.Equal(t, usEast.ID, h.sim.Snapshot().Server.ID)

	// Quick reconnect: old ticks must not reach the new session.
	require.True(t, h.sim.Disconnect())
	h.advance(1500 * time.Millisecond)
	require.True(t, h.sim.Connect(deFra, prefs))
	h.advance(2 * time.Second)
	assert.Equal(t, 2, h.sched.Pending())

	h.advance(3 * time.Second)
	assert.Equal(t, 3, h.sim.Snapshot().Duration)
}

func TestRandomIntentSequences_FollowTable(t *testing.T) {
	h := newHarness(t)
	steps := []func(){
		func() { h.sim.Connect(usEast, prefs) },
		func() { h.sim.Disconnect() },
		func() { h.advance(700 * time.Millisecond) },
		func() { h.advance(1300 * time.Millisecond) },
		func() { h.sim.SelectServer(deFra) },
	}

	// A fixed pseudo-random walk over the intents.
	x := uint32(7)
	for i := 0; i < 500; i++ {
		x = x*1664525 + 1013904223
		steps[int(x>>16)%len(steps)]()

		state := h.sim.State()
		require.GreaterOrEqual(t, int(state), int(Disconnected))
		require.LessOrEqual(t, int(state), int(Disconnecting))
		require.LessOrEqual(t, h.sched.Pending(), 2)
		if state.Busy() {
			require.Equal(t, 1, h.sched.Pending())
		}
	}

	for i, c := range h.changes {
		assert.True(t, allowed[[2]State{c.From, c.To}], "change %d: %s -> %s", i, c.From, c.To)
		if i > 0 {
			assert.Equal(t, h.changes[i-1].To, c.From)
		}
	}
}

func TestLog_KeepsNewestFifty(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < 60; i++ {
		h.sim.Log(fmt.Sprintf("entry %d", i), SeverityInfo)
	}

	logs := h.sim.Snapshot().Logs
	require.Len(t, logs, 50)
	for i, e := range logs {
		assert.Equal(t, fmt.Sprintf("entry %d", 59-i), e.Message)
	}
}

func TestSelectServer(t *testing.T) {
	h := newHarness(t, WithServer(usEast))

	require.True(t, h.sim.SelectServer(deFra))
	assert.Equal(t, deFra.ID, h.sim.Snapshot().Server.ID)
	assert.Equal(t, "Selected server: Germany", h.entries[0].Message)

	require.True(t, h.sim.ApplyRecommendation(usEast))
	assert.Equal(t, "Applied AI recommendation: United States", h.entries[1].Message)
	assert.Equal(t, SeveritySuccess, h.entries[1].Severity)
}

func TestSetPreferences_AllowedInAnyState(t *testing.T) {
	h := newHarness(t)
	h.connected()

	next := models.Preferences{Protocol: models.ProtocolWireGuard, KillSwitch: false, AutoConnect: true}
	h.sim.SetPreferences(next)
	assert.Equal(t, next, h.sim.Snapshot().Preferences)
	assert.Equal(t, "Preferences updated: protocol=WireGuard, kill switch=off, auto-connect=on",
		h.entries[len(h.entries)-1].Message)
	assert.Equal(t, Connected, h.sim.State())
	assert.Equal(t, 2, h.sched.Pending())
}

func TestClose_CancelsEverythingIdempotently(t *testing.T) {
	h := newHarness(t)
	h.connected()
	h.advance(3 * time.Second)

	h.sim.Close()
	h.sim.Close()
	assert.Zero(t, h.sched.Pending())

	snap := h.sim.Snapshot()
	assert.True(t, snap.Closed)
	assert.Equal(t, Disconnected, snap.State)
	assert.Zero(t, snap.Duration)

	last := h.changes[len(h.changes)-1]
	assert.Equal(t, Connected, last.From)
	assert.Equal(t, Disconnected, last.To)
	assert.Equal(t, 3, last.Duration)

	entries := len(h.entries)
	assert.False(t, h.sim.Connect(usEast, prefs))
	h.sim.Log("ignored", SeverityInfo)
	h.advance(time.Minute)
	assert.Equal(t, entries, len(h.entries))
}

func TestClose_WhileConnecting(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.sim.Connect(usEast, prefs))

	h.sim.Close()
	assert.Zero(t, h.sched.Pending())
	h.advance(5 * time.Second)
	assert.Equal(t, Disconnected, h.sim.State())
}

func TestObservers_MayReenter(t *testing.T) {
	h := newHarness(t)

	// Disconnect as soon as the tunnel is up.
	h.sim.OnStateChange(func(c StateChange) {
		if c.To == Connected {
			h.sim.Disconnect()
		}
	})

	h.sim.Connect(usEast, prefs)
	h.advance(2 * time.Second)
	assert.Equal(t, Disconnecting, h.sim.State())

	// Events are delivered in mutation order.
	var tos []State
	for _, c := range h.changes {
		tos = append(tos, c.To)
	}
	assert.Equal(t, []State{Connecting, Connected, Disconnecting}, tos)
}

func TestObservers_Unsubscribe(t *testing.T) {
	h := newHarness(t)

	count := 0
	unsubscribe := h.sim.OnLogAppended(func(LogEntry) { count++ })
	h.sim.Log("one", SeverityInfo)
	unsubscribe()
	h.sim.Log("two", SeverityInfo)
	assert.Equal(t, 1, count)
}

func TestState_Labels(t *testing.T) {
	assert.Equal(t, "Unsecured", Disconnected.Label())
	assert.Equal(t, "Connecting...", Connecting.Label())
	assert.Equal(t, "Secured", Connected.Label())
	assert.Equal(t, "Disconnecting...", Disconnecting.Label())
	assert.Equal(t, "CONNECTED", Connected.String())
}
