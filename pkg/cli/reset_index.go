package cli

import (
	"context"

	"github.com/Dev-Marygold/Laffey/pkg/cli/config"
	"github.com/Dev-Marygold/Laffey/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func cmdResetIndex() *cli.Command {
	var repoCfg config.Repository
	var vectorCfg config.Vector
	var yes bool

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "yes",
			Aliases:     []string{"y"},
			Usage:       "Skip the confirmation prompt",
			Destination: &yes,
		},
	}
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, vectorCfg.Flags()...)

	return &cli.Command{
		Name:  "reset-index",
		Usage: "Destroy every episodic memory and recreate the vector backend (stop the server first)",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()
			logger.Info("Reset index configuration", "vector", vectorCfg, "repository", repoCfg)

			if !yes {
				ok, err := confirm(c.Root().Reader, c.Root().Writer,
					"This deletes every episodic memory and learned knowledge. Type 'yes' to continue: ")
				if err != nil {
					return err
				}
				if !ok {
					printWarn(c.Root().Writer, "Aborted")
					return nil
				}
			}

			n, err := vectorCfg.Reset(ctx, &repoCfg)
			if err != nil {
				return goerr.Wrap(err, "failed to reset vector backend")
			}

			logger.Info("Vector backend reset", "deleted", n)
			printOK(c.Root().Writer, "Vector backend reset (%d records deleted)", n)
			return nil
		},
	}
}
