package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	apperrors "github.com/upkeephq/upkeep/internal/platform/errors"
	"github.com/upkeephq/upkeep/internal/platform/id"
	"github.com/upkeephq/upkeep/internal/platform/requestctx"
	"github.com/upkeephq/upkeep/internal/services/tenancy/storage"
)

const (
	placeholderLandlordName = "Your landlord"
	placeholderPropertyName = "your property"
)

// Service implements the invite workflow over a transactional store.
type Service struct {
	store storage.RelationshipStore
	clock func() time.Time
	newID func() (string, error)
}

// NewService builds a tenancy service. clock and newID are optional and
// default to time.Now and the platform id generator.
func NewService(store storage.RelationshipStore, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{store: store, clock: clock, newID: newID}
}

// SendInviteInput captures landlord-provided fields for a new invite.
type SendInviteInput struct {
	PropertyID  string
	TenantEmail string
	Unit        string
}

// SendInvite creates a pending invite from the authenticated landlord to a
// tenant email. Display-name enrichment and the landlord audit log append are
// best-effort: their failures are logged and never block invite creation.
func (s *Service) SendInvite(ctx context.Context, input SendInviteInput) (Invite, error) {
	if s == nil || s.store == nil {
		return Invite{}, fmt.Errorf("tenancy service is not configured")
	}
	identity, ok := requestctx.IdentityFromContext(ctx)
	if !ok {
		return Invite{}, apperrors.New(apperrors.CodeUnauthenticated, "caller identity is required")
	}

	propertyID := strings.TrimSpace(input.PropertyID)
	if propertyID == "" {
		return Invite{}, apperrors.New(apperrors.CodeInviteEmptyPropertyID, "property id is required")
	}
	tenantEmail := strings.TrimSpace(input.TenantEmail)
	if tenantEmail == "" {
		return Invite{}, apperrors.New(apperrors.CodeInviteEmptyTenantEmail, "tenant email is required")
	}
	parsed, err := mail.ParseAddress(tenantEmail)
	if err != nil {
		return Invite{}, apperrors.New(apperrors.CodeInviteInvalidEmail, "tenant email is invalid")
	}
	tenantEmail = strings.ToLower(parsed.Address)

	landlordName := placeholderLandlordName
	if profile, err := s.store.GetLandlordProfile(ctx, identity.UserID); err == nil {
		if name := strings.TrimSpace(profile.DisplayName); name != "" {
			landlordName = name
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		log.Printf("enrich invite landlord name for %s: %v", identity.UserID, err)
	}
	propertyName := placeholderPropertyName
	if property, err := s.store.GetProperty(ctx, propertyID); err == nil {
		if name := strings.TrimSpace(property.Name); name != "" {
			propertyName = name
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		log.Printf("enrich invite property name for %s: %v", propertyID, err)
	}

	inviteID, err := s.newID()
	if err != nil {
		return Invite{}, fmt.Errorf("generate invite id: %w", err)
	}
	now := s.clock().UTC()
	record := storage.InviteRecord{
		ID:           inviteID,
		LandlordID:   identity.UserID,
		LandlordName: landlordName,
		PropertyID:   propertyID,
		PropertyName: propertyName,
		TenantEmail:  tenantEmail,
		Unit:         strings.TrimSpace(input.Unit),
		Status:       storage.InviteStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.PutInvite(ctx, record); err != nil {
		return Invite{}, fmt.Errorf("store invite: %w", err)
	}

	if err := s.store.AppendInviteLog(ctx, storage.InviteLogRecord{
		LandlordID:  identity.UserID,
		TenantEmail: tenantEmail,
		Status:      storage.InviteStatusPending,
		PropertyID:  propertyID,
		Unit:        record.Unit,
		CreatedAt:   now,
	}); err != nil {
		log.Printf("append invite log for landlord %s: %v", identity.UserID, err)
	}

	return inviteFromRecord(record), nil
}

// AcceptInvite accepts an invite on behalf of the authenticated tenant. The
// whole decision sequence runs inside one store transaction: either every
// linkage write commits or none does. Re-accepting an invite whose property
// the tenant is already linked to is a harmless repeat and succeeds without
// touching tenant, property, or landlord records.
func (s *Service) AcceptInvite(ctx context.Context, inviteID string) (Invite, error) {
	if s == nil || s.store == nil {
		return Invite{}, fmt.Errorf("tenancy service is not configured")
	}
	identity, ok := requestctx.IdentityFromContext(ctx)
	if !ok {
		return Invite{}, apperrors.New(apperrors.CodeUnauthenticated, "caller identity is required")
	}
	inviteID = strings.TrimSpace(inviteID)
	if inviteID == "" {
		return Invite{}, apperrors.New(apperrors.CodeInviteEmptyID, "invite id is required")
	}

	var accepted storage.InviteRecord
	err := s.store.Transact(ctx, func(tx storage.Tx) error {
		invite, err := tx.GetInvite(ctx, inviteID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperrors.New(apperrors.CodeNotFound, "invite not found")
			}
			return fmt.Errorf("load invite: %w", err)
		}
		profile, err := tx.GetTenantProfile(ctx, identity.UserID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperrors.New(apperrors.CodeNotFound, "tenant profile not found")
			}
			return fmt.Errorf("load tenant profile: %w", err)
		}
		if invite.TenantEmail != identity.Email {
			return apperrors.New(apperrors.CodeInviteWrongRecipient, "invite is addressed to a different tenant")
		}
		if strings.TrimSpace(invite.PropertyID) == "" || strings.TrimSpace(invite.LandlordID) == "" {
			return apperrors.New(apperrors.CodeInviteIncomplete, "invite is missing its property or landlord reference")
		}
		property, err := tx.GetProperty(ctx, invite.PropertyID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperrors.New(apperrors.CodeNotFound, "property not found")
			}
			return fmt.Errorf("load property: %w", err)
		}

		now := s.clock().UTC()
		if profile.PropertyID != "" {
			if profile.PropertyID != invite.PropertyID {
				return apperrors.New(apperrors.CodeTenantAlreadyLinked, "tenant is already linked to another property")
			}
			// Repeat acceptance for an already-linked tenant: settle the
			// invite if it is still pending and leave every other record
			// untouched.
			if invite.Status == storage.InviteStatusPending {
				invite.Status = storage.InviteStatusAccepted
				invite.UpdatedAt = now
				invite.AcceptedAt = &now
				if err := tx.PutInvite(ctx, invite); err != nil {
					return fmt.Errorf("store accepted invite: %w", err)
				}
			}
			accepted = invite
			return nil
		}
		if invite.Status != storage.InviteStatusPending {
			return apperrors.New(apperrors.CodeInviteNotPending, "invite is no longer pending")
		}

		invite.Status = storage.InviteStatusAccepted
		invite.UpdatedAt = now
		invite.AcceptedAt = &now
		if err := tx.PutInvite(ctx, invite); err != nil {
			return fmt.Errorf("store accepted invite: %w", err)
		}

		profile.PropertyID = invite.PropertyID
		profile.LandlordID = invite.LandlordID
		profile.OnboardingComplete = true
		profile.UpdatedAt = now
		if err := tx.PutTenantProfile(ctx, profile); err != nil {
			return fmt.Errorf("store tenant profile: %w", err)
		}
		if err := tx.AddPropertyTenant(ctx, property.ID, identity.UserID); err != nil {
			return fmt.Errorf("add property tenant: %w", err)
		}
		if _, err := tx.GetLandlordProfile(ctx, invite.LandlordID); err == nil {
			if err := tx.AddLandlordTenant(ctx, invite.LandlordID, identity.UserID); err != nil {
				return fmt.Errorf("add landlord tenant: %w", err)
			}
		} else if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("load landlord profile: %w", err)
		}
		accepted = invite
		return nil
	})
	if err != nil {
		return Invite{}, err
	}
	return inviteFromRecord(accepted), nil
}

// RejectInvite declines an invite on behalf of the authenticated tenant.
func (s *Service) RejectInvite(ctx context.Context, inviteID string) (Invite, error) {
	if s == nil || s.store == nil {
		return Invite{}, fmt.Errorf("tenancy service is not configured")
	}
	identity, ok := requestctx.IdentityFromContext(ctx)
	if !ok {
		return Invite{}, apperrors.New(apperrors.CodeUnauthenticated, "caller identity is required")
	}
	inviteID = strings.TrimSpace(inviteID)
	if inviteID == "" {
		return Invite{}, apperrors.New(apperrors.CodeInviteEmptyID, "invite id is required")
	}

	var declined storage.InviteRecord
	err := s.store.Transact(ctx, func(tx storage.Tx) error {
		invite, err := tx.GetInvite(ctx, inviteID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperrors.New(apperrors.CodeNotFound, "invite not found")
			}
			return fmt.Errorf("load invite: %w", err)
		}
		if invite.TenantEmail != identity.Email {
			return apperrors.New(apperrors.CodeInviteWrongRecipient, "invite is addressed to a different tenant")
		}
		if invite.Status != storage.InviteStatusPending {
			return apperrors.New(apperrors.CodeInviteNotPending, "invite is no longer pending")
		}

		now := s.clock().UTC()
		invite.Status = storage.InviteStatusDeclined
		invite.UpdatedAt = now
		invite.RejectedAt = &now
		if err := tx.PutInvite(ctx, invite); err != nil {
			return fmt.Errorf("store declined invite: %w", err)
		}
		declined = invite
		return nil
	})
	if err != nil {
		return Invite{}, err
	}
	return inviteFromRecord(declined), nil
}

// ListInvites lists the authenticated caller's invites: invites addressed to
// the caller's email plus invites the caller sent as a landlord.
func (s *Service) ListInvites(ctx context.Context) ([]Invite, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("tenancy service is not configured")
	}
	identity, ok := requestctx.IdentityFromContext(ctx)
	if !ok {
		return nil, apperrors.New(apperrors.CodeUnauthenticated, "caller identity is required")
	}

	received, err := s.store.ListInvitesByTenantEmail(ctx, identity.Email)
	if err != nil {
		return nil, fmt.Errorf("list invites by tenant email: %w", err)
	}
	sent, err := s.store.ListInvitesByLandlord(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("list invites by landlord: %w", err)
	}

	invites := make([]Invite, 0, len(received)+len(sent))
	seen := make(map[string]bool, len(received))
	for _, record := range received {
		invites = append(invites, inviteFromRecord(record))
		seen[record.ID] = true
	}
	for _, record := range sent {
		if seen[record.ID] {
			continue
		}
		invites = append(invites, inviteFromRecord(record))
	}
	return invites, nil
}

func inviteFromRecord(record storage.InviteRecord) Invite {
	return Invite{
		ID:           record.ID,
		LandlordID:   record.LandlordID,
		LandlordName: record.LandlordName,
		PropertyID:   record.PropertyID,
		PropertyName: record.PropertyName,
		TenantEmail:  record.TenantEmail,
		Unit:         record.Unit,
		Status:       InviteStatus(record.Status),
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
		AcceptedAt:   record.AcceptedAt,
		RejectedAt:   record.RejectedAt,
	}
}
