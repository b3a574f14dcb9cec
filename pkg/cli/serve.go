package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	httpctrl "github.com/anishgillella/Voice-Receptionist/pkg/controller/http"
	"github.com/anishgillella/Voice-Receptionist/pkg/service/worker"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/async"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/logging"
)

func cmdServe() *cli.Command {
	var addr string
	var webhookSecret string
	var concurrency int64
	var recoveryInterval time.Duration
	var recoveryGrace time.Duration
	var recoveryMaxReembed int
	var engCfg engineConfig

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("RECEPTIONIST_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "webhook-secret",
			Usage:       "Shared secret for signed conversation webhooks; empty accepts unsigned requests",
			Sources:     cli.EnvVars("RECEPTIONIST_WEBHOOK_SECRET"),
			Destination: &webhookSecret,
		},
		&cli.Int64Flag{
			Name:        "process-concurrency",
			Usage:       "Conversations processed in parallel in the background",
			Value:       8,
			Sources:     cli.EnvVars("RECEPTIONIST_PROCESS_CONCURRENCY"),
			Destination: &concurrency,
		},
		&cli.DurationFlag{
			Name:        "recovery-interval",
			Usage:       "How often conversations stuck before indexing are retried; 0 disables",
			Value:       5 * time.Minute,
			Sources:     cli.EnvVars("RECEPTIONIST_RECOVERY_INTERVAL"),
			Destination: &recoveryInterval,
		},
		&cli.DurationFlag{
			Name:        "recovery-grace",
			Usage:       "Conversations updated more recently than this are left to the ingestion path",
			Value:       2 * time.Minute,
			Sources:     cli.EnvVars("RECEPTIONIST_RECOVERY_GRACE"),
			Destination: &recoveryGrace,
		},
		&cli.IntFlag{
			Name:        "recovery-max-reembed",
			Usage:       "Failed indexing passes after which a conversation is no longer re-embedded automatically",
			Value:       worker.DefaultMaxReembedAttempts,
			Sources:     cli.EnvVars("RECEPTIONIST_RECOVERY_MAX_REEMBED"),
			Destination: &recoveryMaxReembed,
		},
	}
	flags = append(flags, engCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if concurrency <= 0 {
				concurrency = 1
			}
			eng, err := engCfg.Build(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			if webhookSecret == "" {
				logging.Default().Warn("Webhook signature verification is disabled")
			}

			var recovery *worker.RecoveryWorker
			if recoveryInterval > 0 {
				recovery = worker.NewRecoveryWorker(eng.uc.Conversation, recoveryInterval, recoveryGrace,
					worker.WithMaxReembedAttempts(recoveryMaxReembed))
				if err := recovery.Start(ctx); err != nil {
					return goerr.Wrap(err, "failed to start recovery worker")
				}
			}

			pool := async.NewPool(concurrency)
			handler := httpctrl.New(eng.uc,
				httpctrl.WithWebhookSecret(webhookSecret),
				httpctrl.WithProcessPool(pool),
			)
			server := &http.Server{
				Addr:              addr,
				Handler:           handler,
				ReadHeaderTimeout: 30 * time.Second,
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				if recovery != nil {
					recovery.Stop()
				}

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}
				// Conversations already acknowledged finish before the stores close
				if err := pool.Wait(shutdownCtx, concurrency); err != nil {
					logging.Default().Warn("background processing did not drain", logging.ErrAttr(err))
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
