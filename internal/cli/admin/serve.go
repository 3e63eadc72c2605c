package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/talentboard/supportbot/internal/api/handlers"
	"github.com/talentboard/supportbot/internal/events"
	"github.com/talentboard/supportbot/internal/jobs"
	"github.com/talentboard/supportbot/internal/openai"
	"github.com/talentboard/supportbot/internal/server"
	"github.com/talentboard/supportbot/internal/service"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the supportbot API server, the sync job worker and, when
SUPPORTBOT_AMQP_URL is set, the source change event consumer.`,
		RunE: runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides SUPPORTBOT_PORT)")
	cmd.Flags().Bool("rebuild", false, "Rebuild the knowledge store before serving")
	addAppFlags(cmd)

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := appOptionsFromFlags(cmd)
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	cfg, log := a.cfg, a.log
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	generator, err := openai.NewChatGenerator(a.openAIConfig())
	if err != nil {
		return fmt.Errorf("failed to create chat generator: %w", err)
	}
	answers := service.NewAnswerService(a.retriever, generator, cfg.SupportContact, log)

	// An empty in-memory store has nothing to answer from.
	rebuild, _ := cmd.Flags().GetBool("rebuild")
	if rebuild || opts.memory {
		reports, err := a.sync.RebuildAll(ctx)
		logReports(log, reports)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("initial rebuild interrupted: %w", err)
			}
			log.Warn("initial rebuild finished with errors", zap.Error(err))
		}
	}

	syncWorker := jobs.NewSyncWorker(a.jobs, a.sync, cfg.JobTimeout, log)
	worker := jobs.NewWorker(syncWorker, cfg.WorkerPollInterval, log)
	go worker.Start(ctx)

	if cfg.HasAMQP() {
		conn, err := events.Dial(ctx, cfg.AMQPURL)
		if err != nil {
			return fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		defer conn.Close()

		consumer := events.NewConsumer(conn, cfg.AMQPQueue, a.sync, log)
		go func() {
			if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("change event consumer stopped", zap.Error(err))
			}
		}()
	}

	routerCfg := server.RouterConfig{
		Log:            log,
		APIKeys:        cfg.APIKeys,
		RequestTimeout: cfg.RequestTimeout,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		ChatHandler:    handlers.NewChatHandlerWithLog(answers, a.retriever, a.chatLogs),
		SourcesHandler: handlers.NewSourcesHandler(a.sync, a.jobs),
		ChatLogHandler: handlers.NewChatLogHandler(a.chatLogs),
	}
	if a.pool != nil {
		routerCfg.Health = a.pool
	}
	if len(cfg.APIKeys) == 0 {
		log.Warn("no API keys configured, authentication is disabled")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.NewRouter(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		worker.Stop()
		return fmt.Errorf("server failed: %w", err)
	}

	worker.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited")
	return nil
}
