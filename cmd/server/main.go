package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chatlane/messaging-ingestion-service/internal/automation"
	"github.com/chatlane/messaging-ingestion-service/internal/httpapi"
	"github.com/chatlane/messaging-ingestion-service/internal/monitoring"
	"github.com/chatlane/messaging-ingestion-service/internal/service"
	"github.com/chatlane/messaging-ingestion-service/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var (
		port             = flag.Int("port", 8080, "HTTP port")
		dbHost           = flag.String("db-host", "localhost", "Database host (empty runs on the in-memory store)")
		dbPort           = flag.Int("db-port", 5432, "Database port")
		dbUser           = flag.String("db-user", "admin", "Database user")
		dbPass           = flag.String("db-pass", "securepassword", "Database password")
		dbName           = flag.String("db-name", "messaging", "Database name")
		redisAddr        = flag.String("redis-addr", "", "Redis address for cache and task queue (empty disables both)")
		defaultWorkspace = flag.String("default-workspace", "", "Workspace id for inbound channels with no connection match (empty rejects such messages)")
		verifyToken      = flag.String("verify-token", os.Getenv("WHATSAPP_VERIFY_TOKEN"), "Webhook verification token")
		concurrency      = flag.Int("worker-concurrency", 10, "Automation worker concurrency")
	)
	flag.Parse()

	ctx := context.Background()

	var fallback uuid.UUID
	if *defaultWorkspace != "" {
		parsed, err := uuid.Parse(*defaultWorkspace)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid default workspace id")
		}
		fallback = parsed
	}

	var (
		workspaces    store.WorkspaceRepository
		contacts      store.ContactRepository
		conversations store.ConversationRepository
		messages      store.MessageRepository
		automations   store.AutomationRepository
	)

	if *dbHost != "" {
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			*dbHost, *dbPort, *dbUser, *dbPass, *dbName)
		pg, err := store.New(ctx, dsn)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer pg.Close()
		workspaces = pg.Workspaces
		contacts = pg.Contacts
		conversations = pg.Conversations
		messages = pg.Messages
		automations = pg.Automations
	} else {
		log.Warn().Msg("No database configured; using in-memory store")
		mem := store.NewMemory()
		workspaces = mem.Workspaces
		contacts = mem.Contacts
		conversations = mem.Conversations
		messages = mem.Messages
		automations = mem.Automations
	}

	var rdb *redis.Client
	if *redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: *redisAddr})
		defer rdb.Close()
		workspaces = store.NewCachedWorkspaces(workspaces, rdb)
	}

	monitoring.InitMetrics()

	executor := automation.NewExecutor(contacts, conversations, messages, automations)

	var dispatcher automation.Dispatcher
	var workerServer *asynq.Server
	if *redisAddr != "" {
		asynqDispatcher := automation.NewAsynqDispatcher(*redisAddr)
		defer asynqDispatcher.Close()
		dispatcher = asynqDispatcher

		workerServer = automation.NewWorkerServer(*redisAddr, *concurrency)
		mux := asynq.NewServeMux()
		automation.RegisterHandlers(mux, executor)
		go func() {
			log.Info().Str("queue", automation.TaskTypeRun).Msg("Starting automation worker")
			if err := workerServer.Run(mux); err != nil {
				log.Fatal().Err(err).Msg("Automation worker stopped")
			}
		}()
	} else {
		workerDispatcher := automation.NewWorkerDispatcher(executor, 64)
		defer workerDispatcher.Close()
		dispatcher = workerDispatcher
	}

	identity := service.NewIdentityResolver(workspaces, contacts, fallback)
	tracker := service.NewConversationTracker(conversations)
	engine := automation.NewEngine(automations)
	pipeline := service.NewPipeline(identity, tracker, messages, engine, dispatcher)

	server := httpapi.New(pipeline, *verifyToken)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: server.Router(),
	}

	go func() {
		log.Info().Msgf("Starting Messaging Ingestion Service on port %d", *port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown error")
	}
	if workerServer != nil {
		workerServer.Shutdown()
	}
	log.Info().Msg("Server exiting")
}
