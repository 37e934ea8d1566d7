package cmd

import (
	"fmt"

	"github.com/helpdesk-micro/tracker-service/internal/classifier"
	"github.com/helpdesk-micro/tracker-service/internal/database"
	"github.com/helpdesk-micro/tracker-service/internal/dispatch"
	"github.com/helpdesk-micro/tracker-service/internal/jobs"
	"github.com/helpdesk-micro/tracker-service/internal/logger"
	"github.com/helpdesk-micro/tracker-service/internal/queue"
	"github.com/helpdesk-micro/tracker-service/internal/service"
	"github.com/spf13/cobra"
)

var (
	bulkLimit       int
	bulkOnlyMissing bool
	bulkForce       bool
)

var bulkClassifyCmd = &cobra.Command{
	Use:   "bulk-classify",
	Short: "Queue classification jobs for many tickets at once",
	Long: `Queue classification jobs for many tickets at once.

Examples:
  tracker-service bulk-classify
  tracker-service bulk-classify --limit=200 --only-missing
  tracker-service bulk-classify --force`,
	RunE: runBulkClassify,
}

func init() {
	bulkClassifyCmd.Flags().IntVar(&bulkLimit, "limit", 0, "max tickets to enqueue (0 = no cap)")
	bulkClassifyCmd.Flags().BoolVar(&bulkOnlyMissing, "only-missing", false, "only tickets missing explanation or confidence")
	bulkClassifyCmd.Flags().BoolVar(&bulkForce, "force", false, "reclassify all, ignoring --only-missing")
}

func runBulkClassify(cmd *cobra.Command, args []string) error {
	cfg, err := loadValidConfig()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()

	db, err := database.Open(cfg.DSN())
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	ticketSvc := service.NewTicketService(db)

	clf := classifier.NewOpenAI(log, classifier.NewFallback())
	job := jobs.NewClassifyTicket(ticketSvc, clf, nil, log)
	q := queue.New(cfg.ClassifyQueueSize, job.Run, log)
	q.Start(cfg.ClassifyWorkers)

	dispatcher := dispatch.New(ticketSvc, q, log)
	count, err := dispatcher.Bulk(cmd.Context(), dispatch.BulkOptions{
		OnlyMissing: bulkOnlyMissing,
		Force:       bulkForce,
		Limit:       bulkLimit,
	})
	if err != nil {
		q.Drain()
		return fmt.Errorf("bulk dispatch: %w", err)
	}

	fmt.Printf("Queued %d ticket(s) for classification, waiting for workers...\n", count)
	q.Drain()
	fmt.Printf("Done: %d ticket(s) processed.\n", count)
	return nil
}
