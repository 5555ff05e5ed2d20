// Package domain models tenant-landlord relationships and the invite
// workflow that establishes them.
package domain

import (
	"time"
)

// InviteStatus represents the lifecycle state of an invite.
type InviteStatus string

const (
	// InviteStatusPending marks an invite awaiting a tenant response.
	InviteStatusPending InviteStatus = "pending"
	// InviteStatusAccepted marks an invite the tenant accepted. Terminal.
	InviteStatusAccepted InviteStatus = "accepted"
	// InviteStatusDeclined marks an invite the tenant rejected. Terminal.
	InviteStatusDeclined InviteStatus = "declined"
)

// Invite is a landlord-issued offer establishing a tenant's membership in a
// property. The landlord and property names are denormalized display
// snapshots and may go stale; the ids are authoritative.
type Invite struct {
	ID           string
	LandlordID   string
	LandlordName string
	PropertyID   string
	PropertyName string
	TenantEmail  string // lower-cased for comparison
	Unit         string
	Status       InviteStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
	AcceptedAt   *time.Time
	RejectedAt   *time.Time
}

// TenantProfile is the tenant-relevant slice of a user profile. A tenant is
// linked to at most one property at a time.
type TenantProfile struct {
	UserID             string
	Email              string
	PropertyID         string // empty means unlinked
	LandlordID         string
	OnboardingComplete bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Property is a landlord-owned rental property with a tenant membership set.
type Property struct {
	ID         string
	LandlordID string
	Name       string
	TenantIDs  []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// LandlordProfile carries a landlord's denormalized relationship sets. The
// invite log is best-effort bookkeeping, not a source of truth.
type LandlordProfile struct {
	UserID        string
	DisplayName   string
	TenantIDs     []string
	ContractorIDs []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
