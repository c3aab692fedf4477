package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"shieldflow/internal/config"
	"shieldflow/internal/history"
	"shieldflow/internal/logging"
	"shieldflow/internal/paths"
	"shieldflow/internal/recommend"
	"shieldflow/internal/sched"
	"shieldflow/internal/sim"
	"shieldflow/internal/storage"
	"shieldflow/internal/storage/models"
	"shieldflow/internal/storage/sqlite"
	pkgerrors "shieldflow/pkg/errors"
)

// App represents the application context
type App struct {
	Storage   storage.Storage
	Config    *config.Config
	Logger    *zap.Logger
	Clock     clockwork.Clock
	Scheduler *sched.Scheduler
	Simulator *sim.Simulator
	Recorder  *history.Recorder
	Pruner    *history.Pruner
	Recommend *recommend.Service

	Paths Paths
}

// Paths are the files the app was opened with.
type Paths struct {
	ConfigFile string
	DBFile     string
	LogFile    string
}

// Options override the default locations and log level.
type Options struct {
	ConfigFile string
	DBFile     string
	LogFile    string
	LogLevel   string
	Clock      clockwork.Clock // Real clock when nil
}

// New creates a new application instance
func New(opts Options) (*App, error) {
	var err error
	p := Paths{ConfigFile: opts.ConfigFile, DBFile: opts.DBFile, LogFile: opts.LogFile}

	if p.ConfigFile == "" {
		if p.ConfigFile, err = paths.DefaultConfigFile(); err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
	}
	if p.DBFile == "" {
		if p.DBFile, err = paths.DefaultDBFile(); err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
	}
	if p.LogFile == "" {
		if p.LogFile, err = paths.DefaultLogFile(); err != nil {
			return nil, fmt.Errorf("failed to get cache directory: %w", err)
		}
	}

	cfg, err := config.Load(p.ConfigFile)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}

	logger, err := logging.New(cfg.LogLevel, p.LogFile)
	if err != nil {
		return nil, err
	}

	// Initialize storage
	store, err := sqlite.New(p.DBFile)
	if err != nil {
		logger.Sync()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	app := &App{
		Storage: store,
		Config:  cfg,
		Logger:  logger,
		Clock:   clock,
		Paths:   p,
	}

	if err := app.init(context.Background()); err != nil {
		app.Close()
		return nil, err
	}

	logger.Info("started",
		zap.String("config", p.ConfigFile),
		zap.String("db", p.DBFile),
		zap.String("level", cfg.LogLevel))
	return app, nil
}

func (a *App) init(ctx context.Context) error {
	prefs, err := a.LoadPreferences(ctx)
	if err != nil {
		return fmt.Errorf("failed to load preferences: %w", err)
	}
	server, err := a.SelectedServer(ctx)
	if err != nil {
		return fmt.Errorf("failed to load selected server: %w", err)
	}

	a.Scheduler = sched.New(a.Clock)
	a.Simulator = sim.New(a.Config.Simulator(), a.Scheduler,
		sim.WithLogger(a.Logger.Named("sim")),
		sim.WithServer(*server),
		sim.WithPreferences(prefs),
	)

	a.Recorder = history.NewRecorder(a.Storage, a.Logger.Named("history"))
	a.Recorder.Attach(a.Simulator)

	if a.Config.HistoryRetention > 0 {
		a.Pruner = history.NewPruner(a.Storage, a.Config.HistoryRetention, a.Config.PruneInterval,
			a.Clock, a.Logger.Named("history"))
	}

	rc := a.Config.Recommend
	client := recommend.NewClient(recommend.ClientConfig{
		Endpoint:        rc.Endpoint,
		Model:           rc.Model,
		APIKey:          rc.APIKey(),
		Timeout:         rc.Timeout,
		DefaultServerID: rc.DefaultServerID,
	}, a.Storage, a.Logger.Named("recommend"))
	a.Recommend = recommend.NewService(client, a.Storage, a.Simulator, rc.DefaultServerID, a.Logger.Named("recommend"))

	return nil
}

// RecoverSessions closes sessions left open by processes that exited without
// ending them. Commands that run the simulator call it before connecting.
func (a *App) RecoverSessions(ctx context.Context) error {
	if err := a.Recorder.Recover(ctx, a.Clock.Now()); err != nil {
		return fmt.Errorf("failed to recover session history: %w", err)
	}
	return nil
}

// StartBackground starts the history pruner when retention is configured.
func (a *App) StartBackground(ctx context.Context) error {
	if a.Pruner == nil {
		return nil
	}
	return a.Pruner.Start(ctx)
}

// Close closes the application and releases resources
func (a *App) Close() error {
	if a.Simulator != nil {
		a.Simulator.Close()
	}
	if a.Pruner != nil && a.Pruner.IsRunning() {
		if err := a.Pruner.Stop(); err != nil {
			a.Logger.Warn("failed to stop pruner", zap.Error(err))
		}
	}
	var err error
	if a.Storage != nil {
		err = a.Storage.Close()
	}
	if a.Logger != nil {
		a.Logger.Sync()
	}
	return err
}

// LoadPreferences reads the preferences from the settings table. Missing keys
// keep their defaults.
func (a *App) LoadPreferences(ctx context.Context) (models.Preferences, error) {
	prefs := models.DefaultPreferences()
	settings, err := a.Storage.GetAllSettings(ctx)
	if err != nil {
		return prefs, err
	}

	if v, ok := settings[storage.SettingProtocol]; ok {
		p := models.Protocol(v)
		if !p.Valid() {
			return prefs, &pkgerrors.PreferenceError{Key: storage.SettingProtocol, Value: v, Err: pkgerrors.ErrInvalidPreference}
		}
		prefs.Protocol = p
	}
	if v, ok := settings[storage.SettingKillSwitch]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return prefs, &pkgerrors.PreferenceError{Key: storage.SettingKillSwitch, Value: v, Err: pkgerrors.ErrInvalidPreference}
		}
		prefs.KillSwitch = b
	}
	if v, ok := settings[storage.SettingAutoConnect]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return prefs, &pkgerrors.PreferenceError{Key: storage.SettingAutoConnect, Value: v, Err: pkgerrors.ErrInvalidPreference}
		}
		prefs.AutoConnect = b
	}
	return prefs, nil
}

// SavePreferences writes prefs to the settings table and hands them to the
// simulator.
func (a *App) SavePreferences(ctx context.Context, prefs models.Preferences) error {
	if !prefs.Protocol.Valid() {
		return &pkgerrors.PreferenceError{Key: storage.SettingProtocol, Value: string(prefs.Protocol), Err: pkgerrors.ErrInvalidPreference}
	}

	tx, err := a.Storage.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	values := map[string]string{
		storage.SettingProtocol:    string(prefs.Protocol),
		storage.SettingKillSwitch:  strconv.FormatBool(prefs.KillSwitch),
		storage.SettingAutoConnect: strconv.FormatBool(prefs.AutoConnect),
	}
	for k, v := range values {
		if err := tx.SetSetting(ctx, k, v); err != nil {
			return fmt.Errorf("failed to save %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if a.Simulator != nil {
		a.Simulator.SetPreferences(prefs)
	}
	return nil
}

// SetSetting validates and stores a single preference by key.
func (a *App) SetSetting(ctx context.Context, key, value string) error {
	prefs, err := a.LoadPreferences(ctx)
	if err != nil {
		return err
	}

	switch key {
	case storage.SettingProtocol:
		prefs.Protocol = models.Protocol(value)
	case storage.SettingKillSwitch, storage.SettingAutoConnect:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return &pkgerrors.PreferenceError{Key: key, Value: value, Err: pkgerrors.ErrInvalidPreference}
		}
		if key == storage.SettingKillSwitch {
			prefs.KillSwitch = b
		} else {
			prefs.AutoConnect = b
		}
	case storage.SettingSelectedServer:
		if _, err := a.Storage.GetServer(ctx, value); err != nil {
			return err
		}
		return a.Storage.SetSetting(ctx, key, value)
	default:
		return fmt.Errorf("%w: %s", pkgerrors.ErrSettingNotFound, key)
	}
	return a.SavePreferences(ctx, prefs)
}

// SelectedServer returns the stored selection, falling back to the first
// server of the catalog.
func (a *App) SelectedServer(ctx context.Context) (*models.Server, error) {
	id, err := a.Storage.GetSetting(ctx, storage.SettingSelectedServer)
	if err == nil {
		server, err := a.Storage.GetServer(ctx, id)
		if err == nil {
			return server, nil
		}
		if !errors.Is(err, pkgerrors.ErrServerNotFound) {
			return nil, err
		}
	} else if !errors.Is(err, pkgerrors.ErrSettingNotFound) {
		return nil, err
	}

	servers, err := a.Storage.GetAllServers(ctx, storage.ServerFilter{})
	if err != nil {
		return nil, err
	}
	if len(servers) == 0 {
		return nil, pkgerrors.ErrCatalogEmpty
	}
	return servers[0], nil
}

// SelectServer selects server in the simulator and remembers it. Only
// allowed while Disconnected.
func (a *App) SelectServer(ctx context.Context, server models.Server) (bool, error) {
	if !a.Simulator.SelectServer(server) {
		return false, nil
	}
	return true, a.Storage.SetSetting(ctx, storage.SettingSelectedServer, server.ID)
}

// ApplyRecommendation selects a recommended server and remembers it.
func (a *App) ApplyRecommendation(ctx context.Context, server models.Server) (bool, error) {
	if !a.Simulator.ApplyRecommendation(server) {
		return false, nil
	}
	return true, a.Storage.SetSetting(ctx, storage.SettingSelectedServer, server.ID)
}

// Toggle connects when Disconnected and disconnects when Connected, using the
// current selection and preferences.
func (a *App) Toggle() bool {
	snap := a.Simulator.Snapshot()
	switch snap.State {
	case sim.Disconnected:
		return a.Simulator.Connect(snap.Server, snap.Preferences)
	case sim.Connected:
		return a.Simulator.Disconnect()
	default:
		return false
	}
}
