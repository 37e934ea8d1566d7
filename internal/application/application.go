package application

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/helpdesk-micro/tracker-service/internal/classifier"
	"github.com/helpdesk-micro/tracker-service/internal/config"
	"github.com/helpdesk-micro/tracker-service/internal/database"
	"github.com/helpdesk-micro/tracker-service/internal/dispatch"
	"github.com/helpdesk-micro/tracker-service/internal/handler"
	"github.com/helpdesk-micro/tracker-service/internal/jobs"
	"github.com/helpdesk-micro/tracker-service/internal/kafka"
	"github.com/helpdesk-micro/tracker-service/internal/logger"
	"github.com/helpdesk-micro/tracker-service/internal/queue"
	"github.com/helpdesk-micro/tracker-service/internal/router"
	"github.com/helpdesk-micro/tracker-service/internal/service"
)

// API bundles the HTTP server and the classification worker pool.
type API struct {
	cfg      *config.Config
	log      *logger.Logger
	httpSrv  *http.Server
	queue    *queue.Queue
	producer *kafka.Producer
}

// NewAPI wires the whole service: database, classifier, queue, dispatcher,
// handlers. Migrations run before the first connection is handed to GORM.
func NewAPI(cfg *config.Config, log *logger.Logger) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	ticketSvc := service.NewTicketService(db)
	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicTicket, log)

	clf := classifier.NewOpenAI(log, classifier.NewFallback())
	job := jobs.NewClassifyTicket(ticketSvc, clf, producer, log)
	q := queue.New(cfg.ClassifyQueueSize, job.Run, log)
	dispatcher := dispatch.New(ticketSvc, q, log)

	ticketHandler := handler.NewTicketHandler(ticketSvc, dispatcher, producer, log)

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.New(ticketHandler),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{
		cfg:      cfg,
		log:      log,
		httpSrv:  httpSrv,
		queue:    q,
		producer: producer,
	}, nil
}

// Run starts the workers and the HTTP server and blocks until ctx is
// cancelled, then shuts down gracefully: HTTP first, then the queue drains.
func (a *API) Run(ctx context.Context) error {
	a.queue.Start(a.cfg.ClassifyWorkers)

	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	a.log.Info("HTTP server listening", "addr", a.httpSrv.Addr)
	a.log.Info("endpoints",
		"swagger", base+"/swagger",
		"health", base+"/health",
		"api", base+"/api/tickets",
	)

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("http server", "error", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := a.queue.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("queue did not drain before deadline", "error", err)
	}
	if err := a.producer.Close(); err != nil {
		a.log.Warn("close kafka producer", "error", err)
	}
	return nil
}
