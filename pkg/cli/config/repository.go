package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/interfaces"
	"github.com/anishgillella/Voice-Receptionist/pkg/repository/chromem"
	"github.com/anishgillella/Voice-Receptionist/pkg/repository/firestore"
	"github.com/anishgillella/Voice-Receptionist/pkg/repository/memory"
	"github.com/anishgillella/Voice-Receptionist/pkg/repository/sqlite"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/logging"
)

// Repository holds CLI flags for repository backend configuration
type Repository struct {
	backend          string
	sqlitePath       string
	projectID        string
	databaseID       string
	collectionPrefix string
	vectorBackend    string
	chromemPath      string
}

// Flags returns CLI flags for repository configuration
func (r *Repository) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "repository-backend",
			Usage:       "Repository backend type (memory, sqlite or firestore)",
			Category:    "Repository",
			Value:       "sqlite",
			Sources:     cli.EnvVars("RECEPTIONIST_REPOSITORY_BACKEND"),
			Destination: &r.backend,
		},
		&cli.StringFlag{
			Name:        "sqlite-path",
			Usage:       "SQLite database file (sqlite backend)",
			Category:    "Repository",
			Value:       "receptionist.db",
			Sources:     cli.EnvVars("RECEPTIONIST_SQLITE_PATH"),
			Destination: &r.sqlitePath,
		},
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Usage:       "Firestore Project ID (required when using firestore backend)",
			Category:    "Repository",
			Sources:     cli.EnvVars("RECEPTIONIST_FIRESTORE_PROJECT_ID"),
			Destination: &r.projectID,
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Usage:       "Firestore Database ID",
			Category:    "Repository",
			Sources:     cli.EnvVars("RECEPTIONIST_FIRESTORE_DATABASE_ID"),
			Destination: &r.databaseID,
		},
		&cli.StringFlag{
			Name:        "firestore-collection-prefix",
			Usage:       "Prefix for every Firestore collection name",
			Category:    "Repository",
			Sources:     cli.EnvVars("RECEPTIONIST_FIRESTORE_COLLECTION_PREFIX"),
			Destination: &r.collectionPrefix,
		},
		&cli.StringFlag{
			Name:        "vector-backend",
			Usage:       "Vector store (native uses the repository backend, chromem uses an embedded index)",
			Category:    "Repository",
			Value:       "native",
			Sources:     cli.EnvVars("RECEPTIONIST_VECTOR_BACKEND"),
			Destination: &r.vectorBackend,
		},
		&cli.StringFlag{
			Name:        "chromem-path",
			Usage:       "Directory for a persistent chromem index; empty keeps it in memory",
			Category:    "Repository",
			Sources:     cli.EnvVars("RECEPTIONIST_CHROMEM_PATH"),
			Destination: &r.chromemPath,
		},
	}
}

func (r Repository) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("backend", r.backend),
		slog.String("vector_backend", r.vectorBackend),
		slog.String("project_id", r.projectID),
		slog.String("database_id", r.databaseID),
	)
}

// ProjectID returns the Firestore project ID
func (r *Repository) ProjectID() string {
	return r.projectID
}

// DatabaseID returns the Firestore database ID
func (r *Repository) DatabaseID() string {
	return r.databaseID
}

// CollectionPrefix returns the Firestore collection prefix
func (r *Repository) CollectionPrefix() string {
	return r.collectionPrefix
}

// Configure initializes a repository whose embedding store rejects vectors
// that are not dimension long. The caller is responsible for calling Close()
// on the returned repository.
func (r *Repository) Configure(ctx context.Context, dimension int) (interfaces.Repository, error) {
	base, err := r.base(ctx, dimension)
	if err != nil {
		return nil, err
	}

	switch r.vectorBackend {
	case "native", "":
		return base, nil

	case "chromem":
		store, err := chromem.New(r.chromemPath, chromem.WithDimension(dimension))
		if err != nil {
			_ = base.Close()
			return nil, goerr.Wrap(err, "failed to initialize chromem vector store")
		}
		logging.Default().Info("Using chromem vector store", "path", r.chromemPath)
		return chromem.Wrap(base, store), nil

	default:
		_ = base.Close()
		return nil, goerr.Wrap(ErrInvalidConfig, "invalid vector backend", goerr.V("backend", r.vectorBackend))
	}
}

func (r *Repository) base(ctx context.Context, dimension int) (interfaces.Repository, error) {
	switch r.backend {
	case "firestore":
		if r.projectID == "" {
			return nil, goerr.Wrap(ErrInvalidConfig, "firestore-project-id is required when using firestore backend")
		}
		repo, err := firestore.New(ctx, r.projectID,
			firestore.WithDatabaseID(r.databaseID),
			firestore.WithCollectionPrefix(r.collectionPrefix),
			firestore.WithDimension(dimension),
		)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize firestore repository")
		}
		logging.Default().Info("Using Firestore repository",
			"project_id", r.projectID,
			"database_id", r.databaseID,
		)
		return repo, nil

	case "sqlite":
		repo, err := sqlite.New(ctx, r.sqlitePath, sqlite.WithDimension(dimension))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize sqlite repository")
		}
		logging.Default().Info("Using SQLite repository", "path", r.sqlitePath)
		return repo, nil

	case "memory":
		logging.Default().Info("Using in-memory repository (development mode)")
		return memory.New(memory.WithDimension(dimension)), nil

	default:
		return nil, goerr.Wrap(ErrInvalidConfig, "invalid repository backend", goerr.V("backend", r.backend))
	}
}
