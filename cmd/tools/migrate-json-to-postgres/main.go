// Command migrate-json-to-postgres replays a JSON datastore into Postgres,
// preserving identifiers, and verifies the row counts afterwards.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"docsplatform/internal/observability/logging"
	"docsplatform/internal/storage"
)

func main() {
	jsonPath := flag.String("json", "data/store.json", "path to the JSON datastore to migrate")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	flag.Parse()

	logger := logging.New(logging.Config{Level: "info", Format: "text"})

	dsn := firstNonEmpty(*postgresDSN, os.Getenv("DOCSPLATFORM_POSTGRES_DSN"), os.Getenv("DATABASE_URL"))
	if dsn == "" {
		logger.Error("postgres DSN required", "hint", "set --postgres-dsn, DOCSPLATFORM_POSTGRES_DSN, or DATABASE_URL")
		os.Exit(1)
	}

	if err := migrate(context.Background(), logger, *jsonPath, dsn); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func migrate(ctx context.Context, logger *slog.Logger, jsonPath, dsn string) error {
	snapshot, err := storage.LoadSnapshotFromJSON(jsonPath)
	if err != nil {
		return err
	}
	counts := snapshot.Counts()
	logger.Info("loaded JSON snapshot", "path", jsonPath, "users", counts.Users, "projects", counts.Projects, "builds", counts.Builds)

	repo, err := storage.NewPostgresRepository(dsn, storage.WithPostgresAutoMigrate(true))
	if err != nil {
		return fmt.Errorf("open postgres repository: %w", err)
	}
	defer func() {
		if closer, ok := repo.(interface{ Close(context.Context) error }); ok {
			_ = closer.Close(context.Background())
		}
	}()

	if err := storage.ImportSnapshotToPostgres(ctx, repo, snapshot); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	if err := verifyCounts(ctx, dsn, counts); err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	logger.Info("migration completed", "users", counts.Users, "projects", counts.Projects, "versions", counts.Versions, "builds", counts.Builds)
	return nil
}

func countChecks(counts storage.SnapshotCounts) []struct {
	table    string
	expected int
} {
	return []struct {
		table    string
		expected int
	}{
		{"users", counts.Users},
		{"organizations", counts.Organizations},
		{"teams", counts.Teams},
		{"remote_organizations", counts.RemoteOrganizations},
		{"remote_repositories", counts.RemoteRepositories},
		{"remote_repository_relations", counts.RemoteRepositoryRelations},
		{"projects", counts.Projects},
		{"project_relationships", counts.Relationships},
		{"versions", counts.Versions},
		{"builds", counts.Builds},
		{"redirects", counts.Redirects},
		{"environment_variables", counts.EnvironmentVariables},
		{"notifications", counts.Notifications},
	}
}

func verifyCounts(ctx context.Context, dsn string, counts storage.SnapshotCounts) error {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("parse verification config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open verification connection: %w", err)
	}
	defer pool.Close()

	for _, check := range countChecks(counts) {
		var actual int
		if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+check.table).Scan(&actual); err != nil {
			return fmt.Errorf("query %s: %w", check.table, err)
		}
		if actual != check.expected {
			return fmt.Errorf("mismatch for %s: expected %d, got %d", check.table, check.expected, actual)
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
