// Package jobs holds the asynchronous units of work that run on the
// classification queue.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/helpdesk-micro/tracker-service/internal/classifier"
	"github.com/helpdesk-micro/tracker-service/internal/errs"
	"github.com/helpdesk-micro/tracker-service/internal/logger"
	"github.com/helpdesk-micro/tracker-service/internal/model"
)

// TicketStore is the slice of the service layer the job needs: re-read by id
// and a single-row partial update.
type TicketStore interface {
	GetByID(ctx context.Context, id string) (*model.Ticket, error)
	UpdateFieldsByID(ctx context.Context, id string, changes map[string]interface{}) error
}

// EventSink receives best-effort lifecycle events (kafka in production).
type EventSink interface {
	ProduceTicketEvent(ctx context.Context, event string, payload map[string]interface{})
}

// ClassifyTicket loads a ticket by id, classifies it and applies the result.
// The job carries only the id: state is re-read at execution time, so a stale
// enqueue can never overwrite a later manual edit. Safe to run twice.
type ClassifyTicket struct {
	store  TicketStore
	clf    classifier.Classifier
	events EventSink
	log    *logger.Logger
	now    func() time.Time
}

func NewClassifyTicket(store TicketStore, clf classifier.Classifier, events EventSink, log *logger.Logger) *ClassifyTicket {
	return &ClassifyTicket{
		store:  store,
		clf:    clf,
		events: events,
		log:    log.With("job", "classify_ticket"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run never returns an error: a missing ticket is a silent skip and any other
// failure is logged and swallowed so one bad ticket cannot take down the
// worker or abort a bulk batch.
func (j *ClassifyTicket) Run(ctx context.Context, ticketID string) {
	t, err := j.store.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, errs.ErrTicketNotFound) {
			j.log.Debug("ticket gone before classification, skipping", "ticket_id", ticketID)
			return
		}
		j.log.Error("load ticket for classification", "ticket_id", ticketID, "error", err)
		return
	}

	res := j.clf.Classify(ctx, t.Subject, t.Body)

	changes := map[string]interface{}{
		"explanation":   res.Explanation,
		"confidence":    res.Confidence,
		"classified_at": j.now(),
	}
	// Override rule: a human-set category wins. The marker is checked on the
	// row as re-read just now, not on whatever state existed at enqueue time.
	if t.ManualCategoryAt == nil {
		changes["category"] = res.Category
	}

	if err := j.store.UpdateFieldsByID(ctx, ticketID, changes); err != nil {
		j.log.Error("persist classification", "ticket_id", ticketID, "error", err)
		return
	}

	j.log.Info("ticket classified",
		"ticket_id", ticketID,
		"category", res.Category,
		"confidence", res.Confidence,
		"manual_override", t.ManualCategoryAt != nil,
	)

	if j.events != nil {
		j.events.ProduceTicketEvent(ctx, "ticket.classified", map[string]interface{}{
			"ticket_id":  ticketID,
			"category":   res.Category,
			"confidence": res.Confidence,
		})
	}
}
