package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a requested write conflicts with uniqueness constraints.
	ErrConflict = errors.New("record conflict")
)

// InviteStatus identifies one invite lifecycle state.
type InviteStatus string

const (
	// InviteStatusPending means the invite awaits a tenant response.
	InviteStatusPending InviteStatus = "pending"
	// InviteStatusAccepted means the tenant accepted the invite.
	InviteStatusAccepted InviteStatus = "accepted"
	// InviteStatusDeclined means the tenant rejected the invite.
	InviteStatusDeclined InviteStatus = "declined"
)

// InviteRecord stores one invite row.
type InviteRecord struct {
	ID           string
	LandlordID   string
	LandlordName string
	PropertyID   string
	PropertyName string
	TenantEmail  string
	Unit         string
	Status       InviteStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
	AcceptedAt   *time.Time
	RejectedAt   *time.Time
}

// TenantProfileRecord stores one tenant profile row.
type TenantProfileRecord struct {
	UserID             string
	Email              string
	PropertyID         string
	LandlordID         string
	OnboardingComplete bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// PropertyRecord stores one property row with its tenant membership set.
type PropertyRecord struct {
	ID         string
	LandlordID string
	Name       string
	TenantIDs  []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// LandlordProfileRecord stores one landlord profile row with its
// relationship sets.
type LandlordProfileRecord struct {
	UserID        string
	DisplayName   string
	TenantIDs     []string
	ContractorIDs []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// InviteLogRecord stores one append-only landlord invite audit row.
type InviteLogRecord struct {
	LandlordID  string
	TenantEmail string
	Status      InviteStatus
	PropertyID  string
	Unit        string
	CreatedAt   time.Time
}

// Tx exposes the reads and writes available inside one transaction.
type Tx interface {
	GetInvite(ctx context.Context, inviteID string) (InviteRecord, error)
	PutInvite(ctx context.Context, record InviteRecord) error
	GetTenantProfile(ctx context.Context, userID string) (TenantProfileRecord, error)
	PutTenantProfile(ctx context.Context, record TenantProfileRecord) error
	GetProperty(ctx context.Context, propertyID string) (PropertyRecord, error)
	PutProperty(ctx context.Context, record PropertyRecord) error
	GetLandlordProfile(ctx context.Context, userID string) (LandlordProfileRecord, error)
	PutLandlordProfile(ctx context.Context, record LandlordProfileRecord) error
	// AddPropertyTenant and AddLandlordTenant use set-union semantics: adding
	// an already-present tenant id is a no-op, not an error.
	AddPropertyTenant(ctx context.Context, propertyID string, tenantID string) error
	AddLandlordTenant(ctx context.Context, landlordID string, tenantID string) error
	AppendInviteLog(ctx context.Context, record InviteLogRecord) error
}

// RelationshipStore persists tenancy relationship state. Reads and writes
// outside Transact are single-statement and non-transactional.
type RelationshipStore interface {
	Tx
	// Transact runs fn inside one all-or-nothing transaction. Any error from
	// fn rolls back every write made through the provided Tx.
	Transact(ctx context.Context, fn func(tx Tx) error) error
	ListInvitesByTenantEmail(ctx context.Context, tenantEmail string) ([]InviteRecord, error)
	ListInvitesByLandlord(ctx context.Context, landlordID string) ([]InviteRecord, error)
}
