package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dev-Marygold/Laffey/pkg/cli/config"
	httpctrl "github.com/Dev-Marygold/Laffey/pkg/controller/http"
	"github.com/Dev-Marygold/Laffey/pkg/service/persona"
	"github.com/Dev-Marygold/Laffey/pkg/service/worker"
	"github.com/Dev-Marygold/Laffey/pkg/service/workingmemory"
	"github.com/Dev-Marygold/Laffey/pkg/usecase"
	"github.com/Dev-Marygold/Laffey/pkg/utils/async"
	"github.com/Dev-Marygold/Laffey/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 10 * time.Second

func cmdServe() *cli.Command {
	var addr string
	var agentCfg config.Agent
	var llmCfg config.LLM
	var repoCfg config.Repository
	var vectorCfg config.Vector
	var slackCfg config.Slack

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("LAFFEY_ADDR"),
			Destination: &addr,
		},
	}

	flags = append(flags, agentCfg.Flags()...)
	flags = append(flags, llmCfg.Flags()...)
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, vectorCfg.Flags()...)
	flags = append(flags, slackCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the agent: Slack events, admin API and background consolidation",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			if err := agentCfg.Validate(); err != nil {
				return err
			}
			if err := slackCfg.Validate(); err != nil {
				return err
			}

			logger.Info("Serve configuration",
				"addr", addr,
				"agent", agentCfg,
				"llm", llmCfg,
				"repository", repoCfg,
				"vector", vectorCfg,
				"slack", slackCfg,
			)

			identitySeed, err := agentCfg.IdentitySeed()
			if err != nil {
				return err
			}

			llmSvc, err := llmCfg.Configure(ctx)
			if err != nil {
				return err
			}

			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logger.Error("failed to close repository", "error", err.Error())
				}
			}()

			// The backend opens in the background; replies work without
			// episodic memory until it is ready.
			index, err := vectorCfg.Configure(ctx, &repoCfg, llmSvc)
			if err != nil {
				return err
			}
			defer func() {
				if err := index.Close(); err != nil {
					logger.Error("failed to close vector index", "error", err.Error())
				}
			}()

			var personaSource persona.Source
			if loc := agentCfg.PersonaLocation(); loc != "" {
				personaSource, err = persona.ParseSource(loc)
				if err != nil {
					return goerr.Wrap(err, "invalid persona location", goerr.V("location", loc))
				}
			}
			personaSvc := persona.New(ctx, personaSource)

			watchCtx, stopWatch := context.WithCancel(ctx)
			defer stopWatch()
			if err := personaSvc.Watch(watchCtx); err != nil {
				logger.Warn("persona hot reload is disabled", "error", err.Error())
			}

			slackSvc, err := slackCfg.Configure()
			if err != nil {
				return err
			}

			wm := workingmemory.New(workingmemory.WithCapacity(agentCfg.WorkingMemorySize()))

			ucOpts := []usecase.Option{
				usecase.WithAgentConfig(agentCfg.AgentConfig()),
				usecase.WithPersona(personaSvc),
				usecase.WithCreatorName(agentCfg.CreatorName()),
				usecase.WithLLMLimiter(llmCfg.Limiter()),
				usecase.WithSlackService(slackSvc),
			}
			if identitySeed != nil {
				ucOpts = append(ucOpts, usecase.WithIdentitySeed(identitySeed))
			}

			uc, err := usecase.New(ctx, repo, wm, index, llmSvc, ucOpts...)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize use cases")
			}

			var consolidationWorker *worker.ConsolidationWorker
			if interval := agentCfg.ConsolidationInterval(); interval > 0 {
				consolidationWorker = worker.NewConsolidationWorker(uc.Consolidation, interval)
				if err := consolidationWorker.Start(ctx); err != nil {
					return goerr.Wrap(err, "failed to start consolidation worker")
				}
			} else {
				logger.Info("Background consolidation is disabled")
			}

			httpOpts := []httpctrl.Options{
				httpctrl.WithSlackWebhook(httpctrl.NewSlackWebhookHandler(uc.Slack), slackCfg.SigningSecret()),
			}
			if token := agentCfg.AdminToken(); token != "" {
				httpOpts = append(httpOpts, httpctrl.WithAdmin(uc.Admin, token))
			} else {
				logger.Warn("--admin-token is not set, admin API is disabled")
			}

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(httpOpts...),
				ReadHeaderTimeout: 30 * time.Second,
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logger.Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				if consolidationWorker != nil {
					consolidationWorker.Stop()
				}
				return err

			case sig := <-sigCh:
				logger.Info("Received shutdown signal", "signal", sig)

				if consolidationWorker != nil {
					consolidationWorker.Stop()
				}

				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				// Replies are generated after the webhook has answered Slack
				if !async.Wait(shutdownTimeout) {
					logger.Warn("Shutdown timed out while replies were still in flight")
				}

				logger.Info("Server shutdown completed")
				return nil
			}
		},
	}
}
