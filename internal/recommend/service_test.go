package recommend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"shieldflow/internal/sim"
	"shieldflow/internal/storage/sqlite"
	pkgerrors "shieldflow/pkg/errors"
)

type fixedRecommender Result

func (f fixedRecommender) Recommend(ctx context.Context, query string) Result {
	return Result(f)
}

type line struct {
	message  string
	severity sim.Severity
}

type recordingSink struct {
	lines []line
}

func (r *recordingSink) Log(message string, severity sim.Severity) {
	r.lines = append(r.lines, line{message, severity})
}

func newTestStore(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAsk_Success(t *testing.T) {
	store := newTestStore(t)
	sink := &recordingSink{}
	svc := NewService(fixedRecommender{ServerID: "jp-tok-1", Reason: "Anime catalog"}, store, sink, "us-east-1", zaptest.NewLogger(t))

	rec, err := svc.Ask(context.Background(), "  anime in HD ")
	require.NoError(t, err)
	assert.Equal(t, "jp-tok-1", rec.Server.ID)
	assert.Equal(t, "Anime catalog", rec.Reason)
	assert.False(t, rec.Fallback)

	require.Len(t, sink.lines, 1)
	assert.Equal(t, line{`AI Recommended: Japan for "anime in HD"`, sim.SeveritySuccess}, sink.lines[0])

	history, err := store.GetRecommendationHistory(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "anime in HD", history[0].Query)
	assert.Equal(t, "jp-tok-1", history[0].ServerID)
}

func TestAsk_FallbackLogsOneWarning(t *testing.T) {
	store := newTestStore(t)
	sink := &recordingSink{}
	svc := NewService(fixedRecommender{ServerID: "us-east-1", Reason: FallbackReason, Fallback: true}, store, sink, "us-east-1", nil)

	rec, err := svc.Ask(context.Background(), "Watch Netflix US")
	require.NoError(t, err)
	assert.True(t, rec.Fallback)
	assert.Equal(t, "us-east-1", rec.Server.ID)
	assert.Equal(t, "service unavailable", rec.Reason)

	assert.Equal(t, []line{{"Recommendation service unavailable", sim.SeverityWarning}}, sink.lines)

	history, err := store.GetRecommendationHistory(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Fallback)
}

func TestAsk_UnknownServerUsesDefault(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(fixedRecommender{ServerID: "mars-1", Reason: "closest"}, store, nil, "de-fra-1", nil)

	rec, err := svc.Ask(context.Background(), "privacy")
	require.NoError(t, err)
	assert.Equal(t, "de-fra-1", rec.Server.ID)
}

func TestAsk_DefaultMissingUsesFirstServer(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(fixedRecommender{ServerID: "mars-1"}, store, nil, "nowhere-1", nil)

	rec, err := svc.Ask(context.Background(), "privacy")
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", rec.Server.ID)
}

func TestAsk_EmptyCatalog(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.DeleteAllServers(context.Background()))
	svc := NewService(fixedRecommender{ServerID: "us-east-1"}, store, nil, "us-east-1", nil)

	_, err := svc.Ask(context.Background(), "privacy")
	assert.ErrorIs(t, err, pkgerrors.ErrCatalogEmpty)
}

func TestAsk_EmptyQuery(t *testing.T) {
	store := newTestStore(t)
	sink := &recordingSink{}
	svc := NewService(fixedRecommender{ServerID: "us-east-1"}, store, sink, "us-east-1", nil)

	_, err := svc.Ask(context.Background(), "   ")
	assert.ErrorIs(t, err, pkgerrors.ErrEmptyQuery)
	assert.Empty(t, sink.lines)
}

func TestAsk_WithClientAgainstDeadService(t *testing.T) {
	store := newTestStore(t)
	sink := &recordingSink{}
	client := NewClient(ClientConfig{Endpoint: "http://127.0.0.1:1", Model: "m", APIKey: "k"}, store, zaptest.NewLogger(t))
	svc := NewService(client, store, sink, "us-east-1", nil)

	rec, err := svc.Ask(context.Background(), "gaming")
	require.NoError(t, err)
	assert.True(t, rec.Fallback)
	assert.Equal(t, "us-east-1", rec.Server.ID)
	assert.Len(t, sink.lines, 1)
}
