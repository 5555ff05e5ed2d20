package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/upkeephq/upkeep/internal/services/tenancy/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "tenancy.db"))
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

func testNow() time.Time {
	return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestOpenConfiguresConnection(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	var journalMode string
	if err := store.sqlDB.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("read journal_mode: %v", err)
	}
	if !strings.EqualFold(journalMode, "wal") {
		t.Fatalf("journal_mode = %q, want wal", journalMode)
	}

	var busyTimeout int
	if err := store.sqlDB.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatalf("read busy_timeout: %v", err)
	}
	if busyTimeout <= 0 {
		t.Fatalf("busy_timeout = %d, want a positive lock wait", busyTimeout)
	}
}

func pendingInvite(id string) storage.InviteRecord {
	return storage.InviteRecord{
		ID:           id,
		LandlordID:   "landlord-1",
		LandlordName: "Dana Property Group",
		PropertyID:   "prop-1",
		PropertyName: "Oak Street 12",
		TenantEmail:  "tenant@example.com",
		Status:       storage.InviteStatusPending,
		CreatedAt:    testNow(),
		UpdatedAt:    testNow(),
	}
}

func TestStoreInviteRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	record := pendingInvite("invite-1")
	record.TenantEmail = " Tenant@Example.com "
	if err := store.PutInvite(ctx, record); err != nil {
		t.Fatalf("PutInvite() error = %v", err)
	}

	got, err := store.GetInvite(ctx, "invite-1")
	if err != nil {
		t.Fatalf("GetInvite() error = %v", err)
	}
	if got.TenantEmail != "tenant@example.com" {
		t.Errorf("TenantEmail = %q, want lower-cased", got.TenantEmail)
	}
	if got.Status != storage.InviteStatusPending {
		t.Errorf("Status = %q, want pending", got.Status)
	}
	if got.AcceptedAt != nil || got.RejectedAt != nil {
		t.Errorf("pending invite carries response timestamps: %+v", got)
	}

	if _, err := store.GetInvite(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetInvite(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStoreTenantProfileRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	record := storage.TenantProfileRecord{
		UserID:    "tenant-1",
		Email:     "Tenant@Example.com",
		CreatedAt: testNow(),
		UpdatedAt: testNow(),
	}
	if err := store.PutTenantProfile(ctx, record); err != nil {
		t.Fatalf("PutTenantProfile() error = %v", err)
	}

	got, err := store.GetTenantProfile(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("GetTenantProfile() error = %v", err)
	}
	if got.Email != "tenant@example.com" {
		t.Errorf("Email = %q, want lower-cased", got.Email)
	}
	if got.OnboardingComplete {
		t.Error("OnboardingComplete = true, want false")
	}

	got.PropertyID = "prop-1"
	got.LandlordID = "landlord-1"
	got.OnboardingComplete = true
	got.UpdatedAt = testNow().Add(time.Minute)
	if err := store.PutTenantProfile(ctx, got); err != nil {
		t.Fatalf("PutTenantProfile() update error = %v", err)
	}
	updated, err := store.GetTenantProfile(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("GetTenantProfile() after update error = %v", err)
	}
	if updated.PropertyID != "prop-1" || !updated.OnboardingComplete {
		t.Errorf("updated profile = %+v, want linked", updated)
	}
}

func TestStoreMembershipSets(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	if err := store.PutProperty(ctx, storage.PropertyRecord{
		ID: "prop-1", LandlordID: "landlord-1", Name: "Oak Street 12",
		CreatedAt: testNow(), UpdatedAt: testNow(),
	}); err != nil {
		t.Fatalf("PutProperty() error = %v", err)
	}
	if err := store.PutLandlordProfile(ctx, storage.LandlordProfileRecord{
		UserID: "landlord-1", DisplayName: "Dana Property Group",
		CreatedAt: testNow(), UpdatedAt: testNow(),
	}); err != nil {
		t.Fatalf("PutLandlordProfile() error = %v", err)
	}

	// Set semantics: repeat adds are no-ops.
	for i := 0; i < 2; i++ {
		if err := store.AddPropertyTenant(ctx, "prop-1", "tenant-1"); err != nil {
			t.Fatalf("AddPropertyTenant() error = %v", err)
		}
		if err := store.AddLandlordTenant(ctx, "landlord-1", "tenant-1"); err != nil {
			t.Fatalf("AddLandlordTenant() error = %v", err)
		}
	}

	property, err := store.GetProperty(ctx, "prop-1")
	if err != nil {
		t.Fatalf("GetProperty() error = %v", err)
	}
	if len(property.TenantIDs) != 1 || property.TenantIDs[0] != "tenant-1" {
		t.Errorf("property tenants = %v, want [tenant-1]", property.TenantIDs)
	}

	landlord, err := store.GetLandlordProfile(ctx, "landlord-1")
	if err != nil {
		t.Fatalf("GetLandlordProfile() error = %v", err)
	}
	if len(landlord.TenantIDs) != 1 || landlord.TenantIDs[0] != "tenant-1" {
		t.Errorf("landlord tenants = %v, want [tenant-1]", landlord.TenantIDs)
	}
	if len(landlord.ContractorIDs) != 0 {
		t.Errorf("landlord contractors = %v, want empty", landlord.ContractorIDs)
	}
}

func TestStoreTransactRollsBackOnError(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	if err := store.PutInvite(ctx, pendingInvite("invite-1")); err != nil {
		t.Fatalf("PutInvite() error = %v", err)
	}

	failure := fmt.Errorf("linkage check failed")
	err := store.Transact(ctx, func(tx storage.Tx) error {
		invite, err := tx.GetInvite(ctx, "invite-1")
		if err != nil {
			return err
		}
		now := testNow().Add(time.Minute)
		invite.Status = storage.InviteStatusAccepted
		invite.UpdatedAt = now
		invite.AcceptedAt = &now
		if err := tx.PutInvite(ctx, invite); err != nil {
			return err
		}
		if err := tx.AddPropertyTenant(ctx, "prop-1", "tenant-1"); err != nil {
			return err
		}
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("Transact() error = %v, want wrapped failure", err)
	}

	invite, err := store.GetInvite(ctx, "invite-1")
	if err != nil {
		t.Fatalf("GetInvite() error = %v", err)
	}
	if invite.Status != storage.InviteStatusPending || invite.AcceptedAt != nil {
		t.Errorf("invite = %+v, want untouched pending", invite)
	}
	if err := store.PutProperty(ctx, storage.PropertyRecord{
		ID: "prop-1", CreatedAt: testNow(), UpdatedAt: testNow(),
	}); err != nil {
		t.Fatalf("PutProperty() error = %v", err)
	}
	property, err := store.GetProperty(ctx, "prop-1")
	if err != nil {
		t.Fatalf("GetProperty() error = %v", err)
	}
	if len(property.TenantIDs) != 0 {
		t.Errorf("property tenants = %v, want rolled back empty set", property.TenantIDs)
	}
}

func TestStoreTransactCommitsAllWrites(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	if err := store.PutInvite(ctx, pendingInvite("invite-1")); err != nil {
		t.Fatalf("PutInvite() error = %v", err)
	}
	if err := store.PutTenantProfile(ctx, storage.TenantProfileRecord{
		UserID: "tenant-1", Email: "tenant@example.com",
		CreatedAt: testNow(), UpdatedAt: testNow(),
	}); err != nil {
		t.Fatalf("PutTenantProfile() error = %v", err)
	}

	now := testNow().Add(time.Minute)
	err := store.Transact(ctx, func(tx storage.Tx) error {
		invite, err := tx.GetInvite(ctx, "invite-1")
		if err != nil {
			return err
		}
		invite.Status = storage.InviteStatusAccepted
		invite.UpdatedAt = now
		invite.AcceptedAt = &now
		if err := tx.PutInvite(ctx, invite); err != nil {
			return err
		}
		profile, err := tx.GetTenantProfile(ctx, "tenant-1")
		if err != nil {
			return err
		}
		profile.PropertyID = invite.PropertyID
		profile.LandlordID = invite.LandlordID
		profile.OnboardingComplete = true
		profile.UpdatedAt = now
		if err := tx.PutTenantProfile(ctx, profile); err != nil {
			return err
		}
		return tx.AddPropertyTenant(ctx, invite.PropertyID, "tenant-1")
	})
	if err != nil {
		t.Fatalf("Transact() error = %v", err)
	}

	invite, err := store.GetInvite(ctx, "invite-1")
	if err != nil {
		t.Fatalf("GetInvite() error = %v", err)
	}
	if invite.Status != storage.InviteStatusAccepted || invite.AcceptedAt == nil {
		t.Errorf("invite = %+v, want accepted", invite)
	}
	profile, err := store.GetTenantProfile(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("GetTenantProfile() error = %v", err)
	}
	if profile.PropertyID != "prop-1" || !profile.OnboardingComplete {
		t.Errorf("profile = %+v, want linked", profile)
	}
}

func TestStoreListInvites(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	first := pendingInvite("invite-1")
	second := pendingInvite("invite-2")
	second.CreatedAt = testNow().Add(time.Minute)
	second.UpdatedAt = second.CreatedAt
	other := pendingInvite("invite-3")
	other.TenantEmail = "other@example.com"
	other.LandlordID = "landlord-2"
	for _, record := range []storage.InviteRecord{first, second, other} {
		if err := store.PutInvite(ctx, record); err != nil {
			t.Fatalf("PutInvite(%s) error = %v", record.ID, err)
		}
	}

	byEmail, err := store.ListInvitesByTenantEmail(ctx, "Tenant@Example.com")
	if err != nil {
		t.Fatalf("ListInvitesByTenantEmail() error = %v", err)
	}
	if len(byEmail) != 2 || byEmail[0].ID != "invite-2" || byEmail[1].ID != "invite-1" {
		t.Errorf("invites by email = %+v, want invite-2 then invite-1", byEmail)
	}

	byLandlord, err := store.ListInvitesByLandlord(ctx, "landlord-2")
	if err != nil {
		t.Fatalf("ListInvitesByLandlord() error = %v", err)
	}
	if len(byLandlord) != 1 || byLandlord[0].ID != "invite-3" {
		t.Errorf("invites by landlord = %+v, want invite-3", byLandlord)
	}
}

func TestStoreAppendInviteLog(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := store.AppendInviteLog(ctx, storage.InviteLogRecord{
			LandlordID:  "landlord-1",
			TenantEmail: "tenant@example.com",
			Status:      storage.InviteStatusPending,
			PropertyID:  "prop-1",
			Unit:        "4B",
			CreatedAt:   testNow().Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("AppendInviteLog() error = %v", err)
		}
	}

	var count int
	if err := store.sqlDB.QueryRow(`SELECT COUNT(1) FROM landlord_invite_log WHERE landlord_id = ?`, "landlord-1").Scan(&count); err != nil {
		t.Fatalf("count invite log rows: %v", err)
	}
	if count != 2 {
		t.Errorf("invite log rows = %d, want 2", count)
	}
}
