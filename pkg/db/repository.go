package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoLogPrefix = "db:repository"

const featureColumns = `instance, feature_type, feature_values, description, revision, created, modified`

// Repository provides database access for feature configuration.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// GetFeature returns the stored configuration, or nil when none exists.
func (r *Repository) GetFeature(ctx context.Context, instance string, featureType int32) (*FeatureConfig, error) {
	slog.Debug(fmt.Sprintf("%s - GetFeature instance=%s type=%d", repoLogPrefix, instance, featureType))

	row := r.pool.QueryRow(ctx,
		`SELECT `+featureColumns+`
		 FROM iris_feature_config
		 WHERE instance = $1 AND feature_type = $2`, instance, featureType)

	f, err := scanFeature(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - GetFeature failed: %w", repoLogPrefix, err)
	}
	return f, nil
}

// UpsertFeature stores values for a feature type, bumping its revision.
func (r *Repository) UpsertFeature(ctx context.Context, params UpsertFeatureParams) (*FeatureConfig, error) {
	slog.Debug(fmt.Sprintf("%s - UpsertFeature instance=%s type=%d", repoLogPrefix, params.Instance, params.Type))

	row := r.pool.QueryRow(ctx,
		`INSERT INTO iris_feature_config (instance, feature_type, feature_values, description)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (instance, feature_type) DO UPDATE SET
		   feature_values = EXCLUDED.feature_values,
		   description = COALESCE(EXCLUDED.description, iris_feature_config.description),
		   revision = iris_feature_config.revision + 1,
		   modified = NOW()
		 RETURNING `+featureColumns,
		params.Instance, params.Type, nonNil(params.Values), params.Description)

	f, err := scanFeature(row)
	if err != nil {
		return nil, fmt.Errorf("%s - UpsertFeature failed: %w", repoLogPrefix, err)
	}
	return f, nil
}

// ListFeatures returns every stored feature of instance ordered by type.
func (r *Repository) ListFeatures(ctx context.Context, instance string) ([]FeatureConfig, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+featureColumns+`
		 FROM iris_feature_config
		 WHERE instance = $1
		 ORDER BY feature_type`, instance)
	if err != nil {
		return nil, fmt.Errorf("%s - ListFeatures failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []FeatureConfig
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, fmt.Errorf("%s - ListFeatures scan failed: %w", repoLogPrefix, err)
		}
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - ListFeatures rows failed: %w", repoLogPrefix, err)
	}
	return out, nil
}

// DeleteFeature removes one feature type. It reports whether a row existed.
func (r *Repository) DeleteFeature(ctx context.Context, instance string, featureType int32) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM iris_feature_config WHERE instance = $1 AND feature_type = $2`, instance, featureType)
	if err != nil {
		return false, fmt.Errorf("%s - DeleteFeature failed: %w", repoLogPrefix, err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanFeature(row pgx.Row) (*FeatureConfig, error) {
	var f FeatureConfig
	if err := row.Scan(&f.Instance, &f.Type, &f.Values, &f.Description, &f.Revision, &f.Created, &f.Modified); err != nil {
		return nil, err
	}
	f.Values = nonNil(f.Values)
	return &f, nil
}

// nonNil keeps an empty array distinct from SQL NULL.
func nonNil(v []int32) []int32 {
	if v == nil {
		return []int32{}
	}
	return v
}
