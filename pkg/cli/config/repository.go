package config

import (
	"context"
	"log/slog"

	"github.com/Dev-Marygold/Laffey/pkg/domain/interfaces"
	"github.com/Dev-Marygold/Laffey/pkg/repository/firestore"
	"github.com/Dev-Marygold/Laffey/pkg/repository/memory"
	"github.com/Dev-Marygold/Laffey/pkg/repository/sqlite"
	"github.com/Dev-Marygold/Laffey/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
	BackendChromem   = "chromem"
)

// Repository holds CLI flags for the fact and identity store
type Repository struct {
	backend          string
	sqlitePath       string
	projectID        string
	databaseID       string
	collectionPrefix string
}

func (r *Repository) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "repository-backend",
			Usage:       "Fact store backend (sqlite, firestore or memory)",
			Category:    "Storage",
			Value:       BackendSQLite,
			Sources:     cli.EnvVars("LAFFEY_REPOSITORY_BACKEND"),
			Destination: &r.backend,
		},
		&cli.StringFlag{
			Name:        "sqlite-path",
			Usage:       "SQLite database file for the sqlite backend",
			Category:    "Storage",
			Value:       "laffey.db",
			Sources:     cli.EnvVars("LAFFEY_SQLITE_PATH"),
			Destination: &r.sqlitePath,
		},
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Usage:       "Firestore Project ID (required when using a firestore backend)",
			Category:    "Storage",
			Sources:     cli.EnvVars("LAFFEY_FIRESTORE_PROJECT_ID"),
			Destination: &r.projectID,
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Usage:       "Firestore Database ID",
			Category:    "Storage",
			Sources:     cli.EnvVars("LAFFEY_FIRESTORE_DATABASE_ID"),
			Destination: &r.databaseID,
		},
		&cli.StringFlag{
			Name:        "firestore-collection-prefix",
			Usage:       "Prefix of every Firestore collection name",
			Category:    "Storage",
			Sources:     cli.EnvVars("LAFFEY_FIRESTORE_COLLECTION_PREFIX"),
			Destination: &r.collectionPrefix,
		},
	}
}

func (r Repository) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("backend", r.backend),
		slog.String("sqlite_path", r.sqlitePath),
		slog.String("project_id", r.projectID),
		slog.String("database_id", r.databaseID),
		slog.String("collection_prefix", r.collectionPrefix),
	)
}

func (r *Repository) ProjectID() string        { return r.projectID }
func (r *Repository) DatabaseID() string       { return r.databaseID }
func (r *Repository) CollectionPrefix() string { return r.collectionPrefix }

func (r *Repository) requireFirestore() error {
	if r.projectID == "" {
		return goerr.New("--firestore-project-id is required when using a firestore backend")
	}
	return nil
}

// Configure opens the configured backend. The caller closes it.
func (r *Repository) Configure(ctx context.Context) (interfaces.Repository, error) {
	switch r.backend {
	case BackendSQLite:
		repo, err := sqlite.New(ctx, r.sqlitePath)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize sqlite repository")
		}
		logging.Default().Info("Using SQLite repository", "path", r.sqlitePath)
		return repo, nil

	case BackendFirestore:
		if err := r.requireFirestore(); err != nil {
			return nil, err
		}
		repo, err := firestore.New(ctx, r.projectID, r.databaseID, firestore.WithCollectionPrefix(r.collectionPrefix))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize firestore repository")
		}
		logging.Default().Info("Using Firestore repository",
			"project_id", r.projectID,
			"database_id", r.databaseID,
		)
		return repo, nil

	case BackendMemory:
		logging.Default().Warn("Using in-memory repository, facts are lost on exit")
		return memory.New(), nil

	default:
		return nil, goerr.New("invalid repository backend", goerr.V("backend", r.backend))
	}
}
