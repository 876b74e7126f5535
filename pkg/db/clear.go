package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearFeatures removes stored feature configuration. An empty instance clears
// every instance. The schema is kept.
func ClearFeatures(ctx context.Context, pool *pgxpool.Pool, instance string) (int64, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if instance == "" {
		slog.Info(fmt.Sprintf("%s - Clearing all feature configuration", clearLogPrefix))
		tag, err = pool.Exec(ctx, `DELETE FROM iris_feature_config`)
	} else {
		slog.Info(fmt.Sprintf("%s - Clearing feature configuration of instance %s", clearLogPrefix, instance))
		tag, err = pool.Exec(ctx, `DELETE FROM iris_feature_config WHERE instance = $1`, instance)
	}
	if err != nil {
		return 0, fmt.Errorf("%s - delete failed: %w", clearLogPrefix, err)
	}

	n := tag.RowsAffected()
	slog.Info(fmt.Sprintf("%s - Removed %d feature rows", clearLogPrefix, n))
	return n, nil
}
