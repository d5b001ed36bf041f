package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/parkfair/contest-service/internal/api/http"
	"github.com/parkfair/contest-service/internal/api/http/handlers"
	"github.com/parkfair/contest-service/internal/approval"
	"github.com/parkfair/contest-service/internal/collaborator"
	"github.com/parkfair/contest-service/internal/config"
	"github.com/parkfair/contest-service/internal/events"
	"github.com/parkfair/contest-service/internal/letter"
	"github.com/parkfair/contest-service/internal/lifecycle"
	"github.com/parkfair/contest-service/internal/observability"
	"github.com/parkfair/contest-service/internal/persistence"
	"github.com/parkfair/contest-service/internal/repository"
	"github.com/parkfair/contest-service/internal/repository/memory"
	"github.com/parkfair/contest-service/internal/service"
	"github.com/parkfair/contest-service/internal/sweep"
	"github.com/parkfair/contest-service/internal/worker"
)

type repositories struct {
	tickets  repository.TicketRepository
	evidence repository.EvidenceRepository
	letters  repository.LetterRepository
	audit    repository.AuditRepository
	accounts repository.AccountRepository
	plates   repository.PlateRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if !pg.InMemory() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	repos := buildRepositories(pg)
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	notificationService.RegisterHandlers()

	textGen := collaborator.NewHTTPTextGenerator(cfg.Collaborator)
	mailer := collaborator.NewHTTPMailDispatcher(cfg.Collaborator, logger)
	notifier := collaborator.NewLogNotifier(cfg.Notification, logger)
	composer := letter.NewComposer(textGen, cfg.Collaborator.Timeout(), logger)
	tokens := approval.NewTokenManager(cfg.Contest.ApprovalTokenSecret, cfg.Contest.ApprovalTokenTTLHrs)

	machine := lifecycle.NewMachine(lifecycle.Dependencies{
		TicketRepo:   repos.tickets,
		EvidenceRepo: repos.evidence,
		LetterRepo:   repos.letters,
		AuditRepo:    repos.audit,
		AccountRepo:  repos.accounts,
		Composer:     composer,
		Mailer:       mailer,
		Notifier:     notifier,
		Tokens:       tokens,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
		Paused:       cfg.Contest.Paused,
	})

	startWorkers(ctx, cfg, repos, machine, redis, logger)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	markSeen := func(key string, ttl time.Duration) bool {
		return redis.MarkSeen(ctx, key, ttl)
	}
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Webhooks: handlers.NewEvidenceWebhookHandler(
			machine,
			repos.tickets,
			repos.accounts,
			repos.audit,
			cfg.Collaborator.WebhookSigningKey,
			markSeen,
			logger,
		),
		Approvals: handlers.NewApprovalHandler(tokens, machine),
		Tickets: handlers.NewTicketsHandler(repos.tickets, repos.evidence, repos.letters, repos.audit,
			collaborator.NewHTTPBlobStore(cfg.Collaborator)),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

func buildRepositories(pg *persistence.Postgres) repositories {
	if pg.InMemory() {
		return repositories{
			tickets:  memory.NewTicketRepository(),
			evidence: memory.NewEvidenceRepository(),
			letters:  memory.NewLetterRepository(),
			audit:    memory.NewAuditRepository(),
			accounts: memory.NewAccountRepository(),
			plates:   memory.NewPlateRepository(),
		}
	}
	pool := pg.PoolHandle()
	return repositories{
		tickets:  repository.NewTicketRepository(pool),
		evidence: repository.NewEvidenceRepository(pool),
		letters:  repository.NewLetterRepository(pool),
		audit:    repository.NewAuditRepository(pool),
		accounts: repository.NewAccountRepository(pool),
		plates:   repository.NewPlateRepository(pool),
	}
}

func startWorkers(
	ctx context.Context,
	cfg *config.Config,
	repos repositories,
	machine *lifecycle.Machine,
	redis *persistence.Redis,
	logger *zap.Logger,
) {
	worker.StartDeadlineWorker(ctx, machine,
		time.Duration(cfg.Contest.DeadlineCheckMin)*time.Minute, logger)

	source, err := collaborator.NewHTTPViolationSource(cfg.Collaborator)
	if err != nil {
		logger.Warn("violation source unconfigured; detection sweep disabled", zap.Error(err))
		return
	}
	sweeper := sweep.New(sweep.Options{
		Plates:       repos.plates,
		Tickets:      repos.tickets,
		Source:       source,
		Machine:      machine,
		Logger:       logger,
		LookbackDays: cfg.Contest.LookbackDays,
		PlateSpacing: cfg.Contest.PlateSpacing(),
	})
	worker.StartSweepWorker(ctx, sweeper, redis,
		time.Duration(cfg.Contest.SweepIntervalMin)*time.Minute, cfg.Contest.Paused, logger)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
