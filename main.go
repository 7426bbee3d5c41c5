package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	"eventapi/config"
	"eventapi/credentials"
	"eventapi/db"
	"eventapi/jobs"
	"eventapi/mailer"
	"eventapi/middlewares"
	"eventapi/models"
	"eventapi/realtime"
	"eventapi/routes"
	"eventapi/services"
	"eventapi/storage"
	"eventapi/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	log := newLogger(cfg)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ===== stores =====
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	sqldb, err := db.OpenPostgres(connectCtx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer sqldb.Close()

	mg, err := db.ConnectMongo(connectCtx, cfg.MongoURI)
	if err != nil {
		return err
	}
	defer func() { _ = mg.Disconnect(context.Background()) }()
	mdb := mg.Database(cfg.MongoDB)
	if err := db.EnsureIndexes(connectCtx, mdb); err != nil {
		return err
	}

	rdb, err := db.ConnectRedis(connectCtx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer rdb.Close()

	users := models.NewSQLUserRepository(sqldb)
	events := models.NewMongoEventRepository(mdb.Collection(db.CollEvents))
	participants := models.NewMongoParticipantRepository(mdb.Collection(db.CollParticipants))
	proposals := models.NewMongoProposalRepository(mdb.Collection(db.CollProposals))
	notifications := models.NewMongoNotificationRepository(mdb.Collection(db.CollNotifications))
	audits := models.NewMongoAuditRepository(mdb.Collection(db.CollAudit))
	feedback := models.NewMongoFeedbackRepository(mdb.Collection(db.CollFeedback))

	// ===== outbound services =====
	var mail mailer.Mailer = &mailer.Recorder{}
	if cfg.SMTPHost != "" {
		mail = mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
	} else {
		log.Warn("SMTP_HOST not set, emails are kept in memory")
	}

	var store storage.Store = storage.NewMemoryStore()
	if cfg.S3Bucket != "" {
		s3, err := storage.NewS3Store(connectCtx, cfg.S3Bucket, cfg.S3Region, cfg.S3Endpoint)
		if err != nil {
			return err
		}
		store = s3
	} else {
		log.Warn("S3_BUCKET not set, uploads are kept in memory")
	}

	var relay realtime.Relay = realtime.NoopRelay{}
	if cfg.NATSURL != "" {
		nr, err := realtime.NewNATSRelay(cfg.NATSURL)
		if err != nil {
			return err
		}
		relay = nr
	}
	defer relay.Close()

	hub := realtime.NewHub(cfg.InstanceID, realtime.NewRedisPresence(rdb, 2*time.Minute), relay)
	if err := hub.Start(); err != nil {
		return err
	}
	defer hub.Close()

	// ===== pass issuance =====
	issuer := credentials.NewIssuer(participants, mail, store, cfg.OrgName)
	worker := credentials.NewWorker(participants, issuer, credentials.WorkerConfig{
		Workers:     cfg.IssuanceWorkers,
		MaxAttempts: cfg.IssuanceMaxAttempts,
	})
	if err := worker.Start(ctx); err != nil {
		return err
	}

	// ===== services =====
	tokens := utils.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	cache := utils.NewCacheInvalidator(rdb)
	auditor := services.NewAuditor(audits, rdb)
	notifier := services.NewNotifier(notifications, hub)

	deps := &routes.Deps{
		Tokens: tokens,
		Redis:  rdb,
		Events: events,
		Auth:   services.NewAuthService(users, tokens),
		EventSvc: services.NewEventService(services.EventDeps{
			Events:       events,
			Participants: participants,
			Proposals:    proposals,
			Store:        store,
			Auditor:      auditor,
			Cache:        cache,
		}),
		Participants: services.NewParticipantService(services.ParticipantDeps{
			Participants: participants,
			Events:       events,
			Feedback:     feedback,
			Issuance:     worker,
			Notifier:     notifier,
			Auditor:      auditor,
			Push:         hub,
			Cache:        cache,
		}),
		Proposals:     services.NewProposalService(proposals, notifier, auditor),
		Notifications: notifier,
		Audit:         auditor,
		Feedback:      services.NewFeedbackService(feedback, participants, tokens, auditor),
		Sockets:       hub,
		Health: func(ctx context.Context) map[string]error {
			return map[string]error{
				"postgres": sqldb.PingContext(ctx),
				"mongo":    mg.Ping(ctx, nil),
				"redis":    rdb.Ping(ctx).Err(),
			}
		},
	}

	// ===== scheduled jobs =====
	var sched *jobs.Scheduler
	if cfg.JobsEnabled {
		sched = jobs.NewScheduler()
		reminder := &jobs.ReviewReminder{
			Events:       events,
			Participants: participants,
			Mail:         mail,
			Tokens:       tokens,
			BaseURL:      cfg.ReviewBaseURL,
			OrgName:      cfg.OrgName,
		}
		if err := sched.Add("review-reminder", cfg.ReviewCron, reminder.Run); err != nil {
			return err
		}
		if err := sched.Add("audit-spill-flush", "@every 1m", jobs.AuditSpillFlush(auditor)); err != nil {
			return err
		}
		// picks up passes that found the issuance queue full
		if err := sched.Add("pass-recovery", "@every 5m", worker.Recover); err != nil {
			return err
		}
		sched.Start()
	}

	// ===== http =====
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	server := gin.New()
	server.Use(gin.Recovery(), middlewares.RequestLogger(log), middlewares.ErrorHandler(log))
	routes.RegisterRoutes(server, deps)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.HTTPAddr, "instance", cfg.InstanceID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	log.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "error", err)
	}
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			log.Warn("scheduler stop", "error", err)
		}
	}
	if err := worker.Stop(shutdownCtx); err != nil {
		log.Warn("issuance worker stop", "error", err)
	}
	return nil
}
