package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/iris-bridge/pkg/bootstrap"
)

const seedLogPrefix = "db:seed"

// SeedFeatures writes the seed file's features for instance in one
// transaction. Existing rows are kept unless overwrite is set. It returns the
// number of rows written.
func SeedFeatures(ctx context.Context, pool *pgxpool.Pool, instance string, cfg *bootstrap.SeedConfig, overwrite bool) (int, error) {
	if cfg == nil || len(cfg.Features) == 0 {
		slog.Info(fmt.Sprintf("%s - no features to seed", seedLogPrefix))
		return 0, nil
	}
	slog.Info(fmt.Sprintf("%s - Seeding %d features of %s into instance %s", seedLogPrefix, len(cfg.Features), cfg.Name, instance))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s - begin tx: %w", seedLogPrefix, err)
	}
	defer tx.Rollback(ctx)

	conflict := `DO NOTHING`
	if overwrite {
		conflict = `DO UPDATE SET
		   feature_values = EXCLUDED.feature_values,
		   description = COALESCE(EXCLUDED.description, iris_feature_config.description),
		   revision = iris_feature_config.revision + 1,
		   modified = NOW()`
	}

	written := 0
	for _, f := range cfg.Features {
		var desc *string
		if f.Description != "" {
			d := f.Description
			desc = &d
		}
		tag, err := tx.Exec(ctx,
			`INSERT INTO iris_feature_config (instance, feature_type, feature_values, description)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (instance, feature_type) `+conflict,
			instance, f.Type, nonNil(f.Values), desc)
		if err != nil {
			return 0, fmt.Errorf("%s - insert feature %d: %w", seedLogPrefix, f.Type, err)
		}
		written += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%s - commit: %w", seedLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Seeded %d features", seedLogPrefix, written))
	return written, nil
}
