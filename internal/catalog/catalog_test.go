package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"shieldflow/internal/storage"
	"shieldflow/internal/storage/models"
	"shieldflow/internal/storage/sqlite"
	pkgerrors "shieldflow/pkg/errors"
)

const sample = `
servers:
  - id: nl-ams-1
    country: Netherlands
    city: Amsterdam
    flag: "🇳🇱"
    ip: 31.13.1.1
    load_percent: 20
    ping_ms: 30
    premium: true
    features: [P2P, No-Log]
  - id: ca-tor-1
    country: Canada
    city: Toronto
    ip: 142.1.1.1
    load_percent: 55
    ping_ms: 70
`

func TestParse(t *testing.T) {
	servers, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, servers, 2)

	assert.Equal(t, models.Server{
		ID: "nl-ams-1", Country: "Netherlands", City: "Amsterdam", Flag: "🇳🇱",
		IP: "31.13.1.1", LoadPercent: 20, PingMS: 30, Premium: true,
		Features: []string{"P2P", "No-Log"},
	}, servers[0])
	assert.Empty(t, servers[1].Features)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"empty document", "", pkgerrors.ErrCatalogEmpty},
		{"no servers", "servers: []\n", pkgerrors.ErrCatalogEmpty},
		{"unknown field", "servers:\n  - id: a\n    colour: red\n", pkgerrors.ErrCatalogInvalid},
		{"missing id", "servers:\n  - country: X\n    city: Y\n    ip: 1.1.1.1\n", pkgerrors.ErrCatalogInvalid},
		{"bad ip", "servers:\n  - id: a\n    country: X\n    city: Y\n    ip: nope\n", pkgerrors.ErrCatalogInvalid},
		{"bad load", "servers:\n  - id: a\n    country: X\n    city: Y\n    ip: 1.1.1.1\n    load_percent: 140\n", pkgerrors.ErrCatalogInvalid},
		{"duplicate", "servers:\n  - {id: a, country: X, city: Y, ip: 1.1.1.1}\n  - {id: a, country: X, city: Y, ip: 1.1.1.2}\n", pkgerrors.ErrCatalogInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.data))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseFile_WrapsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("servers: []\n"), 0600))

	_, err := ParseFile(path)
	var catErr *pkgerrors.CatalogError
	require.ErrorAs(t, err, &catErr)
	assert.Equal(t, path, catErr.Path)
	assert.ErrorIs(t, err, pkgerrors.ErrCatalogEmpty)
}

func TestImport_ReplacesCatalog(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	servers, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.NoError(t, Import(ctx, db, servers))

	stored, err := db.GetAllServers(ctx, storage.ServerFilter{})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "nl-ams-1", stored[0].ID)
	assert.Equal(t, "ca-tor-1", stored[1].ID)

	selected, err := db.GetSetting(ctx, storage.SettingSelectedServer)
	require.NoError(t, err)
	assert.Equal(t, "nl-ams-1", selected, "selection moves off a removed server")
}

func TestImport_InvalidLeavesCatalogUntouched(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	err = Import(ctx, db, []models.Server{{ID: "x", Country: "X", City: "Y", IP: "bad"}})
	assert.ErrorIs(t, err, pkgerrors.ErrCatalogInvalid)

	stored, err := db.GetAllServers(ctx, storage.ServerFilter{})
	require.NoError(t, err)
	assert.Len(t, stored, 6)
}
