package cli

import (
	"context"

	"github.com/Dev-Marygold/Laffey/pkg/cli/config"
	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/Dev-Marygold/Laffey/pkg/utils/logging"
	"github.com/m-mizutani/fireconf"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func cmdMigrate() *cli.Command {
	var repoCfg config.Repository
	var dryRun bool

	flags := append(repoCfg.Flags(), &cli.BoolFlag{
		Name:        "dry-run",
		Usage:       "Preview changes without applying",
		Destination: &dryRun,
	})

	return &cli.Command{
		Name:    "migrate",
		Aliases: []string{"m"},
		Usage:   "Migrate Firestore indexes of the fact store and episodic memory",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			if repoCfg.ProjectID() == "" {
				return goerr.Wrap(config.ErrMissingRequired, "--firestore-project-id is required for migration")
			}

			logger.Info("Migrate configuration",
				"repository", repoCfg,
				"dryRun", dryRun)

			indexConfig := getIndexConfig(repoCfg.CollectionPrefix())

			client, err := fireconf.NewClient(ctx, repoCfg.ProjectID(), repoCfg.DatabaseID())
			if err != nil {
				return goerr.Wrap(err, "failed to create fireconf client")
			}
			defer func() {
				if err := client.Close(); err != nil {
					logger.Error("failed to close fireconf client", "error", err.Error())
				}
			}()

			if dryRun {
				logger.Info("Dry run mode - previewing changes")
				plan, err := client.GetMigrationPlan(ctx, indexConfig)
				if err != nil {
					return goerr.Wrap(err, "failed to create migration plan")
				}

				if len(plan.Steps) == 0 {
					logger.Info("No changes required")
					return nil
				}

				for _, step := range plan.Steps {
					logger.Info("Migration step",
						"collection", step.Collection,
						"operation", step.Operation,
						"description", step.Description,
						"destructive", step.Destructive)
				}
				return nil
			}

			logger.Info("Applying migrations")
			if err := client.Migrate(ctx, indexConfig); err != nil {
				return goerr.Wrap(err, "failed to apply migrations")
			}
			logger.Info("Migrations applied successfully")
			return nil
		},
	}
}

func prefixed(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "_" + name
}

// episodeVectorIndex is a vector index over Embedding, optionally
// pre-filtered by one metadata field
func episodeVectorIndex(metaKey string) fireconf.Index {
	var fields []fireconf.IndexField
	if metaKey != "" {
		fields = append(fields, fireconf.IndexField{Path: "Metadata." + metaKey, Order: fireconf.OrderAscending})
	}
	fields = append(fields, fireconf.IndexField{
		Path: "Embedding",
		Vector: &fireconf.VectorConfig{
			Dimension: model.EmbeddingDimension,
		},
	})
	return fireconf.Index{Fields: fields}
}

// getIndexConfig returns the Firestore index configuration
func getIndexConfig(prefix string) *fireconf.Config {
	return &fireconf.Config{
		Collections: []fireconf.Collection{
			{
				Name: prefixed(prefix, "episodes"),
				Indexes: []fireconf.Index{
					episodeVectorIndex(""),
					// recall of one speaker's memories
					episodeVectorIndex(model.MetaSpeakerID),
					// learned knowledge search and listing
					episodeVectorIndex(model.MetaMemoryKind),
					episodeVectorIndex(model.MetaChannelID),
				},
			},
			{
				Name: prefixed(prefix, "semantic_facts"),
				Indexes: []fireconf.Index{
					{
						Fields: []fireconf.IndexField{
							{Path: "Subject", Order: fireconf.OrderAscending},
							{Path: "Kind", Order: fireconf.OrderAscending},
						},
					},
				},
			},
		},
	}
}
