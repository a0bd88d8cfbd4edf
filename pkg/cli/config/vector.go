package config

import (
	"context"
	"log/slog"
	"os"

	"github.com/Dev-Marygold/Laffey/pkg/domain/interfaces"
	"github.com/Dev-Marygold/Laffey/pkg/repository/chromem"
	"github.com/Dev-Marygold/Laffey/pkg/repository/firestore"
	"github.com/Dev-Marygold/Laffey/pkg/repository/memory"
	"github.com/Dev-Marygold/Laffey/pkg/service/llm"
	"github.com/Dev-Marygold/Laffey/pkg/service/vectorindex"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// Vector holds CLI flags for the episodic memory backend. Firestore settings
// are shared with Repository.
type Vector struct {
	backend     string
	chromemPath string
	boost       float64
}

func (x *Vector) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "vector-backend",
			Usage:       "Episodic memory backend (chromem, firestore or memory)",
			Category:    "Storage",
			Value:       BackendChromem,
			Sources:     cli.EnvVars("LAFFEY_VECTOR_BACKEND"),
			Destination: &x.backend,
		},
		&cli.StringFlag{
			Name:        "chromem-path",
			Usage:       "Directory of the persistent chromem database",
			Category:    "Storage",
			Value:       "laffey-memory",
			Sources:     cli.EnvVars("LAFFEY_CHROMEM_PATH"),
			Destination: &x.chromemPath,
		},
		&cli.FloatFlag{
			Name:        "learned-boost",
			Usage:       "Score multiplier of learned knowledge",
			Category:    "Storage",
			Value:       vectorindex.DefaultLearnedBoost,
			Sources:     cli.EnvVars("LAFFEY_LEARNED_BOOST"),
			Destination: &x.boost,
		},
	}
}

func (x Vector) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("backend", x.backend),
		slog.String("chromem_path", x.chromemPath),
		slog.Float64("learned_boost", x.boost),
	)
}

// Opener returns the function that opens the backend
func (x *Vector) Opener(repo *Repository) (vectorindex.Opener, error) {
	switch x.backend {
	case BackendChromem:
		path := x.chromemPath
		return func(ctx context.Context) (interfaces.VectorStore, error) {
			store, err := chromem.New(path)
			if err != nil {
				return nil, err
			}
			return store, nil
		}, nil

	case BackendFirestore:
		if err := repo.requireFirestore(); err != nil {
			return nil, err
		}
		projectID, databaseID, prefix := repo.ProjectID(), repo.DatabaseID(), repo.CollectionPrefix()
		return func(ctx context.Context) (interfaces.VectorStore, error) {
			store, err := firestore.NewVectorStore(ctx, projectID, databaseID, firestore.WithVectorCollectionPrefix(prefix))
			if err != nil {
				return nil, err
			}
			return store, nil
		}, nil

	case BackendMemory:
		return func(ctx context.Context) (interfaces.VectorStore, error) {
			return memory.NewVectorStore(), nil
		}, nil

	default:
		return nil, goerr.New("invalid vector backend", goerr.V("backend", x.backend))
	}
}

// Configure creates the index. The backend opens in the background.
func (x *Vector) Configure(ctx context.Context, repo *Repository, embedder llm.Embedder) (*vectorindex.Index, error) {
	open, err := x.Opener(repo)
	if err != nil {
		return nil, err
	}

	index, err := vectorindex.New(ctx, open, embedder, vectorindex.WithLearnedBoost(x.boost))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create vector index")
	}
	return index, nil
}

// Reset destroys every stored memory of the backend and reopens it empty
func (x *Vector) Reset(ctx context.Context, repo *Repository) (int, error) {
	switch x.backend {
	case BackendChromem:
		if err := os.RemoveAll(x.chromemPath); err != nil {
			return 0, goerr.Wrap(err, "failed to remove chromem database", goerr.V("path", x.chromemPath))
		}
		store, err := chromem.New(x.chromemPath)
		if err != nil {
			return 0, err
		}
		return 0, store.Close()

	default:
		open, err := x.Opener(repo)
		if err != nil {
			return 0, err
		}
		store, err := open(ctx)
		if err != nil {
			return 0, goerr.Wrap(err, "failed to open vector backend")
		}
		defer func() { _ = store.Close() }()

		n, err := store.DeleteAll(ctx)
		if err != nil {
			return 0, goerr.Wrap(err, "failed to delete stored memories")
		}
		return n, nil
	}
}
