package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"shieldflow/internal/sim"
	"shieldflow/internal/storage"
	"shieldflow/internal/storage/models"
	pkgerrors "shieldflow/pkg/errors"
)

// Presets are the example queries offered by the assistant.
var Presets = []string{
	"Watch Netflix US",
	"Low ping gaming",
	"Maximum Privacy",
	"P2P File Sharing",
}

// Recommender is satisfied by *Client.
type Recommender interface {
	Recommend(ctx context.Context, query string) Result
}

// Sink receives the user-visible log lines. *sim.Simulator satisfies it.
type Sink interface {
	Log(message string, severity sim.Severity)
}

// Store is the part of storage the service needs.
type Store interface {
	GetServer(ctx context.Context, id string) (*models.Server, error)
	GetAllServers(ctx context.Context, filter storage.ServerFilter) ([]*models.Server, error)
	RecordRecommendation(ctx context.Context, rec *models.Recommendation) error
}

// Recommendation is a resolved answer.
type Recommendation struct {
	Query    string
	Server   models.Server
	Reason   string
	Fallback bool
}

// Service resolves answers against the catalog, reports them to the
// connection log and keeps a history.
type Service struct {
	client          Recommender
	store           Store
	sink            Sink
	defaultServerID string
	logger          *zap.Logger
	now             func() time.Time
}

// NewService creates a recommendation service. sink may be nil.
func NewService(client Recommender, store Store, sink Sink, defaultServerID string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		client:          client,
		store:           store,
		sink:            sink,
		defaultServerID: defaultServerID,
		logger:          logger,
		now:             time.Now,
	}
}

// Ask recommends a server for query. Only an empty query or an empty
// catalog is an error; service failures resolve to the default server.
func (s *Service) Ask(ctx context.Context, query string) (*Recommendation, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, pkgerrors.ErrEmptyQuery
	}

	res := s.client.Recommend(ctx, query)

	server, err := s.resolve(ctx, res.ServerID)
	if err != nil {
		return nil, err
	}

	rec := &Recommendation{
		Query:    query,
		Server:   *server,
		Reason:   res.Reason,
		Fallback: res.Fallback,
	}

	if s.sink != nil {
		if res.Fallback {
			s.sink.Log("Recommendation service unavailable", sim.SeverityWarning)
		} else {
			s.sink.Log(fmt.Sprintf("AI Recommended: %s for \"%s\"", server.Country, query), sim.SeveritySuccess)
		}
	}

	err = s.store.RecordRecommendation(ctx, &models.Recommendation{
		Query:     query,
		ServerID:  server.ID,
		Reason:    res.Reason,
		Fallback:  res.Fallback,
		CreatedAt: s.now(),
	})
	if err != nil {
		s.logger.Warn("failed to record recommendation", zap.Error(err))
	}

	return rec, nil
}

// resolve looks id up in the catalog. Unknown ids fall back to the default
// server, then to the first server of the catalog.
func (s *Service) resolve(ctx context.Context, id string) (*models.Server, error) {
	for _, candidate := range []string{id, s.defaultServerID} {
		if candidate == "" {
			continue
		}
		server, err := s.store.GetServer(ctx, candidate)
		if err == nil {
			return server, nil
		}
		if !errors.Is(err, pkgerrors.ErrServerNotFound) {
			return nil, err
		}
		s.logger.Debug("recommended server not in catalog", zap.String("server", candidate))
	}

	servers, err := s.store.GetAllServers(ctx, storage.ServerFilter{})
	if err != nil {
		return nil, err
	}
	if len(servers) == 0 {
		return nil, pkgerrors.ErrCatalogEmpty
	}
	return servers[0], nil
}
