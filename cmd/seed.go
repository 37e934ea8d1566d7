package cmd

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/helpdesk-micro/tracker-service/internal/database"
	"github.com/helpdesk-micro/tracker-service/internal/model"
	"github.com/helpdesk-micro/tracker-service/internal/service"
	"github.com/spf13/cobra"
)

var seedCount int

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert a demo dataset for development",
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().IntVar(&seedCount, "count", 30, "number of random tickets")
}

var seedSubjects = []string{
	"Unable to login to account",
	"Billing discrepancy on last invoice",
	"Password reset not working",
	"App crashes on submit",
	"Charge appeared twice on card",
	"Need help updating profile email",
	"2FA code not received",
	"Cannot upload attachments",
	"Subscription cancellation issue",
	"Unexpected error on checkout",
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadValidConfig()
	if err != nil {
		return err
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	svc := service.NewTicketService(db)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	ctx := cmd.Context()
	statuses := model.Statuses()
	for i := 0; i < seedCount; i++ {
		t := &model.Ticket{
			Subject: seedSubjects[rng.Intn(len(seedSubjects))],
			Body:    strings.Repeat("Steps to reproduce and details provided by the customer. ", 2+rng.Intn(4)),
			Status:  statuses[rng.Intn(len(statuses))],
		}
		// Some tickets come pre-categorized, some pretend-classified.
		if rng.Intn(2) == 0 {
			cat := model.Categories()[rng.Intn(len(model.Categories()))]
			t.Category = &cat
		}
		if rng.Intn(10) < 7 {
			expl := "Keyword match against historical tickets."
			conf := float64(50+rng.Intn(46)) / 100
			t.Explanation = &expl
			t.Confidence = &conf
		}
		if err := svc.Create(ctx, t); err != nil {
			return fmt.Errorf("seed ticket: %w", err)
		}
	}

	// Edge cases that exercise the UI and the override rule.
	longBody := strings.Repeat("This is a long body paragraph. ", 80)
	tech := model.CategoryTechnical
	note := "User provided sample file; reproduces locally."
	if err := svc.Create(ctx, &model.Ticket{
		Subject:  "Bulk import fails when CSV is large",
		Body:     longBody,
		Status:   model.TicketStatusOpen,
		Category: &tech,
		Note:     &note,
	}); err != nil {
		return err
	}

	salesNote := "Escalated to sales."
	if err := svc.Create(ctx, &model.Ticket{
		Subject: "Question about enterprise pricing",
		Body:    "Customer asks about enterprise tier pricing and SLAs.",
		Status:  model.TicketStatusPending,
		Note:    &salesNote,
	}); err != nil {
		return err
	}

	billing := model.CategoryBilling
	expl := "Mentions refund and billing keywords."
	conf := 0.91
	if err := svc.Create(ctx, &model.Ticket{
		Subject:     "Refund request for accidental charge",
		Body:        "Customer was charged twice and requests a refund for the duplicate.",
		Status:      model.TicketStatusClosed,
		Category:    &billing,
		Explanation: &expl,
		Confidence:  &conf,
	}); err != nil {
		return err
	}

	fmt.Printf("Seeded %d ticket(s).\n", seedCount+3)
	return nil
}
