package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested ticket record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a requested write conflicts with uniqueness
	// constraints or the record's current status.
	ErrConflict = errors.New("record conflict")
)

// TicketStatus identifies one ticket lifecycle state.
type TicketStatus string

const (
	// TicketStatusPendingClassification means the ticket awaits classification.
	TicketStatusPendingClassification TicketStatus = "pending_classification"
	// TicketStatusReadyToDispatch means the ticket has a valid classification.
	TicketStatusReadyToDispatch TicketStatus = "ready_to_dispatch"
	// TicketStatusClassificationFailed means classification failed terminally.
	TicketStatusClassificationFailed TicketStatus = "classification_failed"
)

// TicketRecord stores one maintenance ticket row.
type TicketRecord struct {
	ID                  string
	TenantID            string
	PropertyID          string
	IssueTitle          string
	Description         string
	Category            string // empty until classified
	Urgency             int    // zero until classified
	Status              TicketStatus
	ClassificationError string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	ClassifiedAt        *time.Time
}

// TicketStore persists maintenance ticket state.
type TicketStore interface {
	PutTicket(ctx context.Context, record TicketRecord) error
	GetTicket(ctx context.Context, ticketID string) (TicketRecord, error)
	ListPendingClassification(ctx context.Context, limit int) ([]TicketRecord, error)
	// MarkClassified transitions a pending ticket to ready_to_dispatch with
	// the given classification. It returns ErrConflict when the ticket is no
	// longer pending_classification.
	MarkClassified(ctx context.Context, ticketID string, category string, urgency int, classifiedAt time.Time) (TicketRecord, error)
	// MarkClassificationFailed transitions a pending ticket to the terminal
	// classification_failed state with a failure reason. It returns
	// ErrConflict when the ticket is no longer pending_classification.
	MarkClassificationFailed(ctx context.Context, ticketID string, reason string, failedAt time.Time) (TicketRecord, error)
}
