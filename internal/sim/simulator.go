// Package sim simulates the lifecycle of a VPN connection. Nothing here
// touches the network: every transition is a scheduled entry on a
// sched.Scheduler and every traffic figure comes from a random source.
package sim

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"shieldflow/internal/sched"
	"shieldflow/internal/storage/models"
)

// Config holds the simulator timings.
type Config struct {
	ConnectDelay    time.Duration
	DisconnectDelay time.Duration
	TickInterval    time.Duration
	TrafficWindow   int
	LogCapacity     int
}

// DefaultConfig returns the dashboard's reference timings.
func DefaultConfig() Config {
	return Config{
		ConnectDelay:    2000 * time.Millisecond,
		DisconnectDelay: 1500 * time.Millisecond,
		TickInterval:    time.Second,
		TrafficWindow:   DefaultWindow,
		LogCapacity:     DefaultLogCapacity,
	}
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithRandom sets the source used for traffic samples.
func WithRandom(r Random) Option {
	return func(s *Simulator) { s.rnd = r }
}

// WithLogger sets the diagnostics logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Simulator) { s.logger = l }
}

// WithServer sets the initially selected server.
func WithServer(server models.Server) Option {
	return func(s *Simulator) { s.server = server }
}

// WithPreferences sets the initial preferences.
func WithPreferences(p models.Preferences) Option {
	return func(s *Simulator) { s.prefs = p }
}

type observer[T any] struct {
	id int
	fn func(T)
}

// event is one queued observer notification.
type event struct {
	change *StateChange
	entry  *LogEntry
	sample *TrafficSample
}

// Simulator owns the connection state, the session, the traffic window and
// the log. All mutations go through one lock; timer callbacks carry the epoch
// they were scheduled in and are dropped once the state has moved on.
type Simulator struct {
	cfg    Config
	sched  *sched.Scheduler
	rnd    Random
	logger *zap.Logger

	mu       sync.Mutex
	state    State
	epoch    uint64
	server   models.Server
	prefs    models.Preferences
	session  *Session
	duration int
	traffic  *TrafficWindow
	logs     *LogSink
	closed   bool

	pending      *sched.Timer // Outstanding delayed transition
	durationTick *sched.Timer
	trafficTick  *sched.Timer

	nextObserver int
	stateObs     []observer[StateChange]
	logObs       []observer[LogEntry]
	trafficObs   []observer[TrafficSample]

	outbox      []event
	dispatching bool
}

// New creates a Disconnected simulator that schedules on s.
func New(cfg Config, s *sched.Scheduler, opts ...Option) *Simulator {
	def := DefaultConfig()
	if cfg.ConnectDelay <= 0 {
		cfg.ConnectDelay = def.ConnectDelay
	}
	if cfg.DisconnectDelay <= 0 {
		cfg.DisconnectDelay = def.DisconnectDelay
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}

	sim := &Simulator{
		cfg:   cfg,
		sched: s,
		state: Disconnected,
		prefs: models.DefaultPreferences(),
	}
	for _, opt := range opts {
		opt(sim)
	}
	if sim.rnd == nil {
		sim.rnd = newRandom()
	}
	if sim.logger == nil {
		sim.logger = zap.NewNop()
	}
	sim.traffic = NewTrafficWindow(cfg.TrafficWindow, sim.rnd)
	sim.logs = NewLogSink(cfg.LogCapacity, s.Clock().Now)
	return sim
}

// Connect starts connecting to server. It returns false, and does nothing,
// unless the simulator is Disconnected.
func (s *Simulator) Connect(server models.Server, prefs models.Preferences) bool {
	s.mu.Lock()
	if s.closed || s.state != Disconnected {
		s.mu.Unlock()
		return false
	}

	s.server = server
	s.prefs = prefs
	s.enter(Connecting, s.sched.Clock().Now())
	s.record(fmt.Sprintf("Connecting to %s...", server.Location()), SeverityInfo)
	s.record(fmt.Sprintf("Protocol: %s", prefs.Protocol), SeverityInfo)

	epoch := s.epoch
	s.pending = s.sched.After(s.cfg.ConnectDelay, func(at time.Time) {
		s.completeConnect(epoch, at)
	})
	s.logger.Debug("connecting", zap.String("server", server.ID), zap.String("protocol", string(prefs.Protocol)))
	s.mu.Unlock()

	s.flush()
	return true
}

func (s *Simulator) completeConnect(epoch uint64, at time.Time) {
	s.mu.Lock()
	if s.closed || epoch != s.epoch || s.state != Connecting {
		s.mu.Unlock()
		return
	}

	s.pending = nil
	s.session = &Session{StartTime: at}
	s.duration = 0
	s.enter(Connected, at)
	s.record(fmt.Sprintf("Encrypted tunnel established. IP: %s", s.server.IP), SeveritySuccess)

	epoch = s.epoch
	s.durationTick = s.sched.Every(s.cfg.TickInterval, func(at time.Time) {
		s.tickDuration(epoch, at)
	})
	s.trafficTick = s.sched.Every(s.cfg.TickInterval, func(at time.Time) {
		s.tickTraffic(epoch, at)
	})
	s.logger.Debug("connected", zap.String("server", s.server.ID), zap.Time("at", at))
	s.mu.Unlock()

	s.flush()
}

func (s *Simulator) tickDuration(epoch uint64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || epoch != s.epoch || s.state != Connected {
		return
	}
	s.duration = s.session.Elapsed(at)
}

func (s *Simulator) tickTraffic(epoch uint64, at time.Time) {
	s.mu.Lock()
	if s.closed || epoch != s.epoch || s.state != Connected {
		s.mu.Unlock()
		return
	}
	sample := s.traffic.Sample(at)
	s.outbox = append(s.outbox, event{sample: &sample})
	s.mu.Unlock()

	s.flush()
}

// Disconnect starts tearing down the session. It returns false, and does
// nothing, unless the simulator is Connected. A disconnect requested while
// Connecting is ignored.
func (s *Simulator) Disconnect() bool {
	s.mu.Lock()
	if s.closed || s.state != Connected {
		s.mu.Unlock()
		return false
	}

	s.stopTicks()
	s.enter(Disconnecting, s.sched.Clock().Now())
	s.record("Initiating disconnect sequence...", SeverityInfo)

	epoch := s.epoch
	s.pending = s.sched.After(s.cfg.DisconnectDelay, func(at time.Time) {
		s.completeDisconnect(epoch, at)
	})
	s.logger.Debug("disconnecting", zap.String("server", s.server.ID), zap.Int("duration", s.duration))
	s.mu.Unlock()

	s.flush()
	return true
}

func (s *Simulator) completeDisconnect(epoch uint64, at time.Time) {
	s.mu.Lock()
	if s.closed || epoch != s.epoch || s.state != Disconnecting {
		s.mu.Unlock()
		return
	}

	s.pending = nil
	final := s.duration
	s.session = nil
	s.duration = 0
	s.traffic.Reset()
	s.record("Disconnected successfully.", SeverityWarning)
	s.enterWithDuration(Disconnected, at, final)
	s.logger.Debug("disconnected", zap.String("server", s.server.ID), zap.Int("duration", final))
	s.mu.Unlock()

	s.flush()
}

// SelectServer changes the selected server. Only allowed while Disconnected.
func (s *Simulator) SelectServer(server models.Server) bool {
	s.mu.Lock()
	if s.closed || s.state != Disconnected {
		s.mu.Unlock()
		return false
	}
	s.server = server
	s.record(fmt.Sprintf("Selected server: %s", server.Country), SeverityInfo)
	s.mu.Unlock()

	s.flush()
	return true
}

// ApplyRecommendation selects a recommended server. Only allowed while
// Disconnected.
func (s *Simulator) ApplyRecommendation(server models.Server) bool {
	s.mu.Lock()
	if s.closed || s.state != Disconnected {
		s.mu.Unlock()
		return false
	}
	s.server = server
	s.record(fmt.Sprintf("Applied AI recommendation: %s", server.Country), SeveritySuccess)
	s.mu.Unlock()

	s.flush()
	return true
}

// SetPreferences replaces the preferences. Allowed in every state; the new
// values only show up in the log.
func (s *Simulator) SetPreferences(next models.Preferences) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.prefs = next
	s.record(fmt.Sprintf("Preferences updated: protocol=%s, kill switch=%s, auto-connect=%s",
		next.Protocol, onOff(next.KillSwitch), onOff(next.AutoConnect)), SeverityInfo)
	s.mu.Unlock()

	s.flush()
}

// Log records a message from outside the simulator.
func (s *Simulator) Log(message string, severity Severity) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.record(message, severity)
	s.mu.Unlock()

	s.flush()
}

// Close cancels every outstanding timer and forces the simulator to
// Disconnected. Later intents are no-ops. Safe to call more than once.
func (s *Simulator) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.stopTicks()
	if s.state != Disconnected {
		final := s.duration
		s.session = nil
		s.duration = 0
		s.traffic.Reset()
		s.enterWithDuration(Disconnected, s.sched.Clock().Now(), final)
	}
	s.closed = true
	s.mu.Unlock()

	s.flush()
}

// Snapshot returns a copy of the observable state.
func (s *Simulator) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:       s.state,
		Server:      s.server,
		Preferences: s.prefs,
		Duration:    s.duration,
		Traffic:     s.traffic.Samples(),
		Logs:        s.logs.Entries(),
		Closed:      s.closed,
	}
	if s.session != nil {
		session := *s.session
		snap.Session = &session
	}
	return snap
}

// State returns the current state.
func (s *Simulator) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnStateChange registers fn for every transition. The returned func
// unregisters it.
func (s *Simulator) OnStateChange(fn func(StateChange)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextObserver++
	id := s.nextObserver
	s.stateObs = append(s.stateObs, observer[StateChange]{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.stateObs = removeObserver(s.stateObs, id)
	}
}

// OnLogAppended registers fn for every new log entry.
func (s *Simulator) OnLogAppended(fn func(LogEntry)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextObserver++
	id := s.nextObserver
	s.logObs = append(s.logObs, observer[LogEntry]{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.logObs = removeObserver(s.logObs, id)
	}
}

// OnTrafficSample registers fn for every traffic sample.
func (s *Simulator) OnTrafficSample(fn func(TrafficSample)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextObserver++
	id := s.nextObserver
	s.trafficObs = append(s.trafficObs, observer[TrafficSample]{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.trafficObs = removeObserver(s.trafficObs, id)
	}
}

func removeObserver[T any](list []observer[T], id int) []observer[T] {
	out := list[:0:0]
	for _, o := range list {
		if o.id != id {
			out = append(out, o)
		}
	}
	return out
}

// enter moves to the next state. Caller holds mu.
func (s *Simulator) enter(to State, at time.Time) {
	s.enterWithDuration(to, at, s.duration)
}

func (s *Simulator) enterWithDuration(to State, at time.Time, duration int) {
	change := StateChange{
		From:     s.state,
		To:       to,
		At:       at,
		Server:   s.server,
		Protocol: s.prefs.Protocol,
		Duration: duration,
	}
	s.state = to
	s.epoch++
	s.outbox = append(s.outbox, event{change: &change})
}

// record appends to the log. Caller holds mu.
func (s *Simulator) record(message string, severity Severity) {
	entry := s.logs.Record(message, severity)
	s.outbox = append(s.outbox, event{entry: &entry})
}

// stopTicks cancels both periodic timers. Caller holds mu.
func (s *Simulator) stopTicks() {
	if s.durationTick != nil {
		s.durationTick.Stop()
		s.durationTick = nil
	}
	if s.trafficTick != nil {
		s.trafficTick.Stop()
		s.trafficTick = nil
	}
}

// flush delivers queued events in order, outside the lock. Observers may call
// back into the simulator; events they cause are delivered by the outermost
// flush once the current batch is done.
func (s *Simulator) flush() {
	s.mu.Lock()
	if s.dispatching {
		s.mu.Unlock()
		return
	}
	s.dispatching = true
	for len(s.outbox) > 0 {
		batch := s.outbox
		s.outbox = nil
		stateObs := s.stateObs
		logObs := s.logObs
		trafficObs := s.trafficObs
		s.mu.Unlock()

		for _, ev := range batch {
			switch {
			case ev.change != nil:
				for _, o := range stateObs {
					o.fn(*ev.change)
				}
			case ev.entry != nil:
				for _, o := range logObs {
					o.fn(*ev.entry)
				}
			case ev.sample != nil:
				for _, o := range trafficObs {
					o.fn(*ev.sample)
				}
			}
		}

		s.mu.Lock()
	}
	s.dispatching = false
	s.mu.Unlock()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
