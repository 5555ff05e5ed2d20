package domain

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	apperrors "github.com/upkeephq/upkeep/internal/platform/errors"
	"github.com/upkeephq/upkeep/internal/platform/requestctx"
	"github.com/upkeephq/upkeep/internal/services/tenancy/storage"
	tenancysqlite "github.com/upkeephq/upkeep/internal/services/tenancy/storage/sqlite"
)

func openConcurrencyStore(t *testing.T) *tenancysqlite.Store {
	t.Helper()
	store, err := tenancysqlite.Open(filepath.Join(t.TempDir(), "tenancy.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return store
}

func TestAcceptInviteConcurrentAttempts(t *testing.T) {
	t.Parallel()

	store := openConcurrencyStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	seed := func(t *testing.T, inviteID string, tenantPropertyID string) {
		t.Helper()
		if err := store.PutInvite(ctx, storage.InviteRecord{
			ID:           inviteID,
			LandlordID:   "landlord-1",
			LandlordName: "Dana Property Group",
			PropertyID:   "prop-1",
			PropertyName: "Oak Street 12",
			TenantEmail:  "tenant@example.com",
			Status:       storage.InviteStatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}); err != nil {
			t.Fatalf("PutInvite() error = %v", err)
		}
		if err := store.PutTenantProfile(ctx, storage.TenantProfileRecord{
			UserID:     "tenant-1",
			Email:      "tenant@example.com",
			PropertyID: tenantPropertyID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}); err != nil {
			t.Fatalf("PutTenantProfile() error = %v", err)
		}
		if err := store.PutProperty(ctx, storage.PropertyRecord{
			ID:         "prop-1",
			LandlordID: "landlord-1",
			Name:       "Oak Street 12",
			CreatedAt:  now,
			UpdatedAt:  now,
		}); err != nil {
			t.Fatalf("PutProperty() error = %v", err)
		}
		if err := store.PutLandlordProfile(ctx, storage.LandlordProfileRecord{
			UserID:      "landlord-1",
			DisplayName: "Dana Property Group",
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			t.Fatalf("PutLandlordProfile() error = %v", err)
		}
	}

	accept := func(service *Service, inviteID string, attempts int) []error {
		callerCtx := requestctx.WithIdentity(ctx, requestctx.Identity{
			UserID: "tenant-1",
			Email:  "tenant@example.com",
		})
		results := make([]error, attempts)
		var wg sync.WaitGroup
		for slot := range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := service.AcceptInvite(callerCtx, inviteID)
				results[slot] = err
			}()
		}
		wg.Wait()
		return results
	}

	t.Run("unlinked tenant links exactly once", func(t *testing.T) {
		seed(t, "invite-1", "")
		service := NewService(store, func() time.Time { return now }, nil)

		successes := 0
		for _, err := range accept(service, "invite-1", 8) {
			if err == nil {
				successes++
				continue
			}
			var appErr *apperrors.Error
			if !errors.As(err, &appErr) {
				t.Fatalf("concurrent accept returned untyped error: %v", err)
			}
			if appErr.Code != apperrors.CodeInviteNotPending {
				t.Fatalf("concurrent accept error code = %s, want %s", appErr.Code, apperrors.CodeInviteNotPending)
			}
		}
		if successes == 0 {
			t.Fatal("expected at least one accept to succeed")
		}

		invite, err := store.GetInvite(ctx, "invite-1")
		if err != nil {
			t.Fatalf("GetInvite() error = %v", err)
		}
		if invite.Status != storage.InviteStatusAccepted {
			t.Fatalf("invite status = %s, want %s", invite.Status, storage.InviteStatusAccepted)
		}
		profile, err := store.GetTenantProfile(ctx, "tenant-1")
		if err != nil {
			t.Fatalf("GetTenantProfile() error = %v", err)
		}
		if profile.PropertyID != "prop-1" || profile.LandlordID != "landlord-1" || !profile.OnboardingComplete {
			t.Fatalf("tenant profile not fully linked: %+v", profile)
		}
		property, err := store.GetProperty(ctx, "prop-1")
		if err != nil {
			t.Fatalf("GetProperty() error = %v", err)
		}
		if len(property.TenantIDs) != 1 || property.TenantIDs[0] != "tenant-1" {
			t.Fatalf("property tenants = %v, want exactly [tenant-1]", property.TenantIDs)
		}
		landlord, err := store.GetLandlordProfile(ctx, "landlord-1")
		if err != nil {
			t.Fatalf("GetLandlordProfile() error = %v", err)
		}
		if len(landlord.TenantIDs) != 1 || landlord.TenantIDs[0] != "tenant-1" {
			t.Fatalf("landlord tenants = %v, want exactly [tenant-1]", landlord.TenantIDs)
		}
	})

	t.Run("tenant linked elsewhere always fails precondition", func(t *testing.T) {
		seed(t, "invite-2", "prop-other")
		service := NewService(store, func() time.Time { return now }, nil)

		for _, err := range accept(service, "invite-2", 4) {
			if err == nil {
				t.Fatal("expected every accept to fail for a tenant linked elsewhere")
			}
			var appErr *apperrors.Error
			if !errors.As(err, &appErr) {
				t.Fatalf("concurrent accept returned untyped error: %v", err)
			}
			if appErr.Code != apperrors.CodeTenantAlreadyLinked {
				t.Fatalf("concurrent accept error code = %s, want %s", appErr.Code, apperrors.CodeTenantAlreadyLinked)
			}
		}

		invite, err := store.GetInvite(ctx, "invite-2")
		if err != nil {
			t.Fatalf("GetInvite() error = %v", err)
		}
		if invite.Status != storage.InviteStatusPending {
			t.Fatalf("invite status = %s, want %s", invite.Status, storage.InviteStatusPending)
		}
	})
}
