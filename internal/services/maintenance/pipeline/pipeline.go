// Package pipeline advances pending maintenance tickets through
// classification.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/upkeephq/upkeep/internal/services/maintenance/classifier"
	"github.com/upkeephq/upkeep/internal/services/maintenance/storage"
)

// Handler classifies one pending ticket and records the outcome.
type Handler struct {
	store      storage.TicketStore
	classifier classifier.Classifier
	clock      func() time.Time
}

// NewHandler builds a classification handler.
func NewHandler(store storage.TicketStore, c classifier.Classifier, clock func() time.Time) *Handler {
	if clock == nil {
		clock = time.Now
	}
	return &Handler{store: store, classifier: c, clock: clock}
}

// Process classifies the ticket with the given id. Tickets that already left
// pending_classification are skipped without mutation, so re-delivery of the
// same ticket id is harmless. Classification failures are recorded on the
// ticket as a terminal state and do not surface as a Process error.
func (h *Handler) Process(ctx context.Context, ticketID string) error {
	if h == nil || h.store == nil {
		return fmt.Errorf("pipeline handler is not configured")
	}
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return fmt.Errorf("ticket id is required")
	}

	record, err := h.store.GetTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load ticket %s: %w", ticketID, err)
	}
	if record.Status != storage.TicketStatusPendingClassification {
		return nil
	}

	if strings.TrimSpace(record.Description) == "" {
		return h.recordFailure(ctx, ticketID, "ticket description is empty")
	}

	if h.classifier == nil {
		return fmt.Errorf("classifier is not configured")
	}
	result, err := h.classifier.Classify(ctx, classifier.Request{
		IssueTitle:  record.IssueTitle,
		Description: record.Description,
	})
	if err != nil {
		return h.recordFailure(ctx, ticketID, err.Error())
	}

	if _, err := h.store.MarkClassified(ctx, ticketID, string(result.Category), result.Urgency, h.clock().UTC()); err != nil {
		if errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrNotFound) {
			// Another consumer settled the ticket first.
			return nil
		}
		return fmt.Errorf("mark ticket %s classified: %w", ticketID, err)
	}
	return nil
}

func (h *Handler) recordFailure(ctx context.Context, ticketID string, reason string) error {
	if _, err := h.store.MarkClassificationFailed(ctx, ticketID, reason, h.clock().UTC()); err != nil {
		if errors.Is(err, storage.ErrConflict) || errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		// The ticket stays pending for manual intervention; losing the
		// failure reason must not crash the loop.
		log.Printf("record classification failure for ticket %s: %v", ticketID, err)
	}
	return nil
}

// Runner polls for pending tickets and feeds them through the handler.
type Runner struct {
	store        storage.TicketStore
	handler      *Handler
	pollInterval time.Duration
	batchSize    int
}

const (
	defaultPollInterval = 5 * time.Second
	defaultBatchSize    = 25
)

// NewRunner builds a polling runner.
func NewRunner(store storage.TicketStore, handler *Handler, pollInterval time.Duration, batchSize int) *Runner {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Runner{store: store, handler: handler, pollInterval: pollInterval, batchSize: batchSize}
}

// Run processes pending tickets until the context is canceled. Delivery is
// at-least-once; the handler's status guard makes duplicates harmless.
func (r *Runner) Run(ctx context.Context) error {
	if r == nil || r.store == nil || r.handler == nil {
		return fmt.Errorf("pipeline runner is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	r.drain(ctx)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.drain(ctx)
		}
	}
}

func (r *Runner) drain(ctx context.Context) {
	pending, err := r.store.ListPendingClassification(ctx, r.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("list pending tickets: %v", err)
		}
		return
	}
	for _, record := range pending {
		if ctx.Err() != nil {
			return
		}
		if err := r.handler.Process(ctx, record.ID); err != nil {
			log.Printf("process ticket %s: %v", record.ID, err)
		}
	}
}
