// Package catalog reads server catalogs from YAML files and loads them into
// storage.
package catalog

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
	"shieldflow/internal/storage"
	"shieldflow/internal/storage/models"
	pkgerrors "shieldflow/pkg/errors"
)

// File is the on-disk catalog format.
//
//	servers:
//	  - id: us-east-1
//	    country: United States
//	    city: New York
//	    ip: 104.23.11.90
//	    load_percent: 62
//	    ping_ms: 45
//	    features: [Streaming, P2P]
type File struct {
	Servers []models.Server `yaml:"servers"`
}

// Parse decodes and validates a catalog.
func Parse(r io.Reader) ([]models.Server, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, pkgerrors.ErrCatalogEmpty
		}
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrCatalogInvalid, err)
	}
	if err := Validate(f.Servers); err != nil {
		return nil, err
	}
	return f.Servers, nil
}

// ParseFile reads a catalog from path.
func ParseFile(path string) ([]models.Server, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &pkgerrors.CatalogError{Path: path, Err: err}
	}
	defer f.Close()

	servers, err := Parse(f)
	if err != nil {
		return nil, &pkgerrors.CatalogError{Path: path, Err: err}
	}
	return servers, nil
}

// Validate checks every server of a catalog.
func Validate(servers []models.Server) error {
	if len(servers) == 0 {
		return pkgerrors.ErrCatalogEmpty
	}

	seen := make(map[string]bool, len(servers))
	for i, s := range servers {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("%w: server #%d has no id", pkgerrors.ErrCatalogInvalid, i+1)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate server id %q", pkgerrors.ErrCatalogInvalid, s.ID)
		}
		seen[s.ID] = true

		if s.Country == "" || s.City == "" {
			return fmt.Errorf("%w: server %q needs a country and a city", pkgerrors.ErrCatalogInvalid, s.ID)
		}
		if net.ParseIP(s.IP) == nil {
			return fmt.Errorf("%w: server %q has invalid ip %q", pkgerrors.ErrCatalogInvalid, s.ID, s.IP)
		}
		if s.LoadPercent < 0 || s.LoadPercent > 100 {
			return fmt.Errorf("%w: server %q load must be 0-100", pkgerrors.ErrCatalogInvalid, s.ID)
		}
		if s.PingMS < 0 {
			return fmt.Errorf("%w: server %q has negative ping", pkgerrors.ErrCatalogInvalid, s.ID)
		}
	}
	return nil
}

// Import replaces the stored catalog with servers in one transaction. The
// selected server setting is moved to the first server when it no longer
// exists.
func Import(ctx context.Context, store storage.Storage, servers []models.Server) error {
	if err := Validate(servers); err != nil {
		return err
	}

	tx, err := store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := tx.DeleteAllServers(ctx); err != nil {
		return fmt.Errorf("failed to clear catalog: %w", err)
	}
	for i := range servers {
		if servers[i].Features == nil {
			servers[i].Features = []string{}
		}
		if err := tx.UpsertServer(ctx, &servers[i]); err != nil {
			return err
		}
	}

	selected, err := tx.GetSetting(ctx, storage.SettingSelectedServer)
	if err == nil {
		if _, err := tx.GetServer(ctx, selected); err != nil {
			if err := tx.SetSetting(ctx, storage.SettingSelectedServer, servers[0].ID); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit catalog: %w", err)
	}
	return nil
}
