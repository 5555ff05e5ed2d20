// Package domain models maintenance tickets and their classification
// lifecycle.
package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/upkeephq/upkeep/internal/platform/errors"
	"github.com/upkeephq/upkeep/internal/platform/id"
)

// Status represents the lifecycle state of a maintenance ticket.
type Status string

const (
	// StatusPendingClassification marks a freshly submitted ticket awaiting
	// classification.
	StatusPendingClassification Status = "pending_classification"
	// StatusReadyToDispatch marks a classified ticket ready for contractor
	// dispatch.
	StatusReadyToDispatch Status = "ready_to_dispatch"
	// StatusClassificationFailed marks a terminal classification failure
	// requiring manual intervention.
	StatusClassificationFailed Status = "classification_failed"
)

// Category is a maintenance issue category from the closed classification set.
type Category string

const (
	CategoryPlumbing   Category = "plumbing"
	CategoryElectrical Category = "electrical"
	CategoryHVAC       Category = "hvac"
	CategoryStructural Category = "structural"
	CategoryAppliance  Category = "appliance"
	CategoryGeneral    Category = "general"
)

// Categories lists every valid ticket category.
func Categories() []Category {
	return []Category{
		CategoryPlumbing,
		CategoryElectrical,
		CategoryHVAC,
		CategoryStructural,
		CategoryAppliance,
		CategoryGeneral,
	}
}

const (
	// UrgencyMin means the work can be scheduled anytime.
	UrgencyMin = 1
	// UrgencyMax means the issue requires immediate attention.
	UrgencyMax = 5
)

var (
	// ErrEmptyDescription indicates a ticket description is required.
	ErrEmptyDescription = apperrors.New(apperrors.CodeTicketDescriptionEmpty, "ticket description is required")
)

// Ticket is a tenant-submitted maintenance issue record.
type Ticket struct {
	ID                  string
	TenantID            string
	PropertyID          string
	IssueTitle          string
	Description         string
	Category            Category // empty until classified
	Urgency             int      // zero until classified
	Status              Status
	ClassificationError string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	ClassifiedAt        *time.Time
}

// Classification is a validated category/urgency pair.
type Classification struct {
	Category Category
	Urgency  int
}

// CreateTicketInput captures tenant-provided fields for a new ticket.
type CreateTicketInput struct {
	TenantID    string
	PropertyID  string
	IssueTitle  string
	Description string
}

// NewTicket constructs a pending-classification ticket with a generated id
// and UTC timestamps. The description is required; the title is optional.
func NewTicket(input CreateTicketInput, now func() time.Time, idGenerator func() (string, error)) (Ticket, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	description := strings.TrimSpace(input.Description)
	if description == "" {
		return Ticket{}, ErrEmptyDescription
	}

	ticketID, err := idGenerator()
	if err != nil {
		return Ticket{}, fmt.Errorf("generate ticket id: %w", err)
	}

	createdAt := now().UTC()
	return Ticket{
		ID:          ticketID,
		TenantID:    strings.TrimSpace(input.TenantID),
		PropertyID:  strings.TrimSpace(input.PropertyID),
		IssueTitle:  strings.TrimSpace(input.IssueTitle),
		Description: description,
		Status:      StatusPendingClassification,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}, nil
}

// ValidateClassification normalizes a raw category/urgency pair and rejects
// anything outside the closed category set or the urgency range. Values are
// never coerced: an invalid pair fails classification outright so downstream
// dispatch can trust every classified ticket.
func ValidateClassification(rawCategory string, urgency int) (Classification, error) {
	category := Category(strings.ToLower(strings.TrimSpace(rawCategory)))
	valid := false
	for _, known := range Categories() {
		if category == known {
			valid = true
			break
		}
	}
	if !valid {
		return Classification{}, apperrors.WithMetadata(
			apperrors.CodeTicketInvalidCategory,
			fmt.Sprintf("category %q is not in the classification set", rawCategory),
			map[string]string{"Category": rawCategory},
		)
	}
	if urgency < UrgencyMin || urgency > UrgencyMax {
		return Classification{}, apperrors.WithMetadata(
			apperrors.CodeTicketInvalidUrgency,
			fmt.Sprintf("urgency %d is outside [%d,%d]", urgency, UrgencyMin, UrgencyMax),
			map[string]string{"Urgency": fmt.Sprintf("%d", urgency)},
		)
	}
	return Classification{Category: category, Urgency: urgency}, nil
}
