package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"ifrs17-training-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// CatalogLoader loads module JSONB from Postgres, ordered by module id.
type CatalogLoader struct {
	pool *pgxpool.Pool
}

func NewCatalogLoader(pool *pgxpool.Pool) *CatalogLoader {
	return &CatalogLoader{pool: pool}
}

func (l *CatalogLoader) LoadCatalog(ctx context.Context) (domain.Catalog, error) {
	rows, err := l.pool.Query(ctx, `SELECT data FROM modules ORDER BY id`)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("load catalog: %w", err)
	}
	defer rows.Close()

	var catalog domain.Catalog
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return domain.Catalog{}, fmt.Errorf("scan module: %w", err)
		}
		var module domain.Module
		if err := json.Unmarshal(raw, &module); err != nil {
			return domain.Catalog{}, fmt.Errorf("unmarshal module: %w", err)
		}
		catalog.Modules = append(catalog.Modules, module)
	}
	if err := rows.Err(); err != nil {
		return domain.Catalog{}, fmt.Errorf("load catalog: %w", err)
	}
	return catalog, nil
}
