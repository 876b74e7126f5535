//go:build integration

package db

import (
	"context"
	"os"
	"reflect"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/iris-bridge/pkg/bootstrap"
)

const dbIntegrationPrefix = "db:integration_test"

// setupIntegrationPool connects to DATABASE_URL, applies the embedded
// migrations and clears the test instance. The test is skipped without a URL.
func setupIntegrationPool(t *testing.T, instance string) (context.Context, *pgxpool.Pool) {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("db:integration_test - DATABASE_URL not set, skipping")
	}
	ctx := context.Background()

	pool, err := NewPool(ctx, url)
	if err != nil {
		t.Fatalf("%s - NewPool failed: %v", dbIntegrationPrefix, err)
	}
	t.Cleanup(pool.Close)

	migrations, err := LoadMigrations("")
	if err != nil {
		t.Fatalf("%s - LoadMigrations failed: %v", dbIntegrationPrefix, err)
	}
	if err := RunMigrations(ctx, pool, migrations); err != nil {
		t.Fatalf("%s - RunMigrations failed: %v", dbIntegrationPrefix, err)
	}
	if _, err := ClearFeatures(ctx, pool, instance); err != nil {
		t.Fatalf("%s - ClearFeatures failed: %v", dbIntegrationPrefix, err)
	}
	return ctx, pool
}

func TestRepository_UpsertGetList(t *testing.T) {
	ctx, pool := setupIntegrationPool(t, "it-repo")
	repo := NewRepository(pool)

	got, err := repo.GetFeature(ctx, "it-repo", 1)
	if err != nil || got != nil {
		t.Fatalf("%s - GetFeature before set = %v, %v", dbIntegrationPrefix, got, err)
	}

	f, err := repo.UpsertFeature(ctx, UpsertFeatureParams{Instance: "it-repo", Type: 1, Values: []int32{10, 20}})
	if err != nil {
		t.Fatalf("%s - UpsertFeature failed: %v", dbIntegrationPrefix, err)
	}
	if f.Revision != 1 || !reflect.DeepEqual(f.Values, []int32{10, 20}) {
		t.Errorf("%s - first upsert = %+v", dbIntegrationPrefix, f)
	}

	f, err = repo.UpsertFeature(ctx, UpsertFeatureParams{Instance: "it-repo", Type: 1, Values: nil})
	if err != nil {
		t.Fatalf("%s - second UpsertFeature failed: %v", dbIntegrationPrefix, err)
	}
	if f.Revision != 2 || f.Values == nil || len(f.Values) != 0 {
		t.Errorf("%s - second upsert = %+v", dbIntegrationPrefix, f)
	}

	repo.UpsertFeature(ctx, UpsertFeatureParams{Instance: "it-repo", Type: 0, Values: []int32{-1}})
	list, err := repo.ListFeatures(ctx, "it-repo")
	if err != nil {
		t.Fatalf("%s - ListFeatures failed: %v", dbIntegrationPrefix, err)
	}
	if len(list) != 2 || list[0].Type != 0 || list[1].Type != 1 {
		t.Errorf("%s - ListFeatures = %+v", dbIntegrationPrefix, list)
	}

	deleted, err := repo.DeleteFeature(ctx, "it-repo", 0)
	if err != nil || !deleted {
		t.Errorf("%s - DeleteFeature = %v, %v", dbIntegrationPrefix, deleted, err)
	}
}

func TestSeedFeatures_KeepsExistingUnlessOverwrite(t *testing.T) {
	ctx, pool := setupIntegrationPool(t, "it-seed")
	repo := NewRepository(pool)

	repo.UpsertFeature(ctx, UpsertFeatureParams{Instance: "it-seed", Type: 1, Values: []int32{99}})
	cfg := &bootstrap.SeedConfig{Name: "it", Features: []bootstrap.FeatureSeed{
		{Type: 1, Values: []int32{1}},
		{Type: 2, Values: []int32{2}, Description: "two"},
	}}

	n, err := SeedFeatures(ctx, pool, "it-seed", cfg, false)
	if err != nil {
		t.Fatalf("%s - SeedFeatures failed: %v", dbIntegrationPrefix, err)
	}
	if n != 1 {
		t.Errorf("%s - seeded %d rows, want 1", dbIntegrationPrefix, n)
	}
	f, _ := repo.GetFeature(ctx, "it-seed", 1)
	if f == nil || f.Values[0] != 99 {
		t.Errorf("%s - existing row overwritten: %+v", dbIntegrationPrefix, f)
	}

	if _, err := SeedFeatures(ctx, pool, "it-seed", cfg, true); err != nil {
		t.Fatalf("%s - SeedFeatures overwrite failed: %v", dbIntegrationPrefix, err)
	}
	f, _ = repo.GetFeature(ctx, "it-seed", 1)
	if f == nil || f.Values[0] != 1 {
		t.Errorf("%s - overwrite not applied: %+v", dbIntegrationPrefix, f)
	}
}
