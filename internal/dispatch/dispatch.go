// Package dispatch schedules classification jobs, one ticket or a filtered
// batch at a time.
package dispatch

import (
	"context"

	"github.com/helpdesk-micro/tracker-service/internal/logger"
)

// pageSize bounds each id read so bulk dispatch never loads the whole table
// or holds a cursor across the enqueue loop.
const pageSize = 200

// Enqueuer accepts a ticket id for asynchronous classification.
type Enqueuer interface {
	Enqueue(ticketID string) bool
}

// IDSource pages ticket ids ordered newest-created first.
type IDSource interface {
	IDPage(ctx context.Context, onlyMissing bool, offset, limit int) ([]string, error)
}

type BulkOptions struct {
	// OnlyMissing keeps tickets where explanation or confidence is null.
	OnlyMissing bool
	// Force reclassifies everything, overriding OnlyMissing.
	Force bool
	// Limit caps the number enqueued when positive.
	Limit int
}

type Dispatcher struct {
	source IDSource
	queue  Enqueuer
	log    *logger.Logger
}

func New(source IDSource, queue Enqueuer, log *logger.Logger) *Dispatcher {
	return &Dispatcher{source: source, queue: queue, log: log.With("component", "dispatch")}
}

// Single enqueues exactly one job for the ticket. Fire-and-forget: the caller
// only learns whether the job was accepted, never its outcome.
func (d *Dispatcher) Single(ticketID string) bool {
	ok := d.queue.Enqueue(ticketID)
	if !ok {
		d.log.Warn("classification not accepted", "ticket_id", ticketID)
	}
	return ok
}

// Bulk selects matching tickets in pages and enqueues one job each, returning
// the count enqueued. Selection order is created_at DESC.
func (d *Dispatcher) Bulk(ctx context.Context, opts BulkOptions) (int, error) {
	onlyMissing := opts.OnlyMissing && !opts.Force

	count := 0
	for offset := 0; ; offset += pageSize {
		limit := pageSize
		if opts.Limit > 0 && opts.Limit-count < limit {
			limit = opts.Limit - count
		}
		if limit <= 0 {
			break
		}

		ids, err := d.source.IDPage(ctx, onlyMissing, offset, limit)
		if err != nil {
			return count, err
		}
		for _, id := range ids {
			if !d.queue.Enqueue(id) {
				d.log.Warn("queue refused job during bulk dispatch, stopping", "enqueued", count)
				return count, nil
			}
			count++
		}
		if len(ids) < limit {
			break
		}
	}

	d.log.Info("bulk classification dispatched", "enqueued", count,
		"only_missing", onlyMissing, "force", opts.Force, "limit", opts.Limit)
	return count, nil
}
