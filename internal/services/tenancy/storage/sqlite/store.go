package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/upkeephq/upkeep/internal/platform/storage/sqlitemigrate"
	"github.com/upkeephq/upkeep/internal/services/tenancy/storage"
	"github.com/upkeephq/upkeep/internal/services/tenancy/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for tenancy relationship state.
type Store struct {
	queries
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a tenancy SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	// _txlock=immediate makes write transactions take the write lock at
	// BEGIN, so two concurrent accept transactions serialize instead of
	// failing at commit; busy_timeout makes the loser wait for the lock.
	dsn := cleanPath + "?_txlock=immediate" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{queries: queries{db: sqlDB}, sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Transact runs fn inside one all-or-nothing SQLite transaction.
func (s *Store) Transact(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if fn == nil {
		return fmt.Errorf("transaction function is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tenancy transaction: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback tenancy transaction: %v", cause, rollbackErr)
		}
		return cause
	}

	if err := fn(&queries{db: tx}); err != nil {
		return rollbackWith(err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tenancy transaction: %w", err)
	}
	return nil
}

// ListInvitesByTenantEmail lists invites addressed to one tenant email,
// newest first.
func (s *Store) ListInvitesByTenantEmail(ctx context.Context, tenantEmail string) ([]storage.InviteRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	tenantEmail = strings.ToLower(strings.TrimSpace(tenantEmail))
	if tenantEmail == "" {
		return nil, fmt.Errorf("tenant email is required")
	}
	return s.listInvites(ctx, "tenant_email = ?", tenantEmail)
}

// ListInvitesByLandlord lists invites one landlord sent, newest first.
func (s *Store) ListInvitesByLandlord(ctx context.Context, landlordID string) ([]storage.InviteRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	landlordID = strings.TrimSpace(landlordID)
	if landlordID == "" {
		return nil, fmt.Errorf("landlord id is required")
	}
	return s.listInvites(ctx, "landlord_id = ?", landlordID)
}

func (s *Store) listInvites(ctx context.Context, where string, arg any) ([]storage.InviteRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, landlord_id, landlord_name, property_id, property_name, tenant_email, unit, status, created_at, updated_at, accepted_at, rejected_at
FROM tenancy_invites
WHERE `+where+`
ORDER BY created_at DESC, id DESC
`, arg)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	defer rows.Close()

	var results []storage.InviteRecord
	for rows.Next() {
		record, scanErr := scanInvite(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan invite row: %w", scanErr)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invite rows: %w", err)
	}
	return results, nil
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements storage.Tx over either the database handle or an open
// transaction.
type queries struct {
	db dbtx
}

// GetInvite loads one invite row by id.
func (q *queries) GetInvite(ctx context.Context, inviteID string) (storage.InviteRecord, error) {
	inviteID = strings.TrimSpace(inviteID)
	if inviteID == "" {
		return storage.InviteRecord{}, fmt.Errorf("invite id is required")
	}

	row := q.db.QueryRowContext(ctx, `
SELECT id, landlord_id, landlord_name, property_id, property_name, tenant_email, unit, status, created_at, updated_at, accepted_at, rejected_at
FROM tenancy_invites
WHERE id = ?
`, inviteID)
	record, err := scanInvite(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.InviteRecord{}, storage.ErrNotFound
		}
		return storage.InviteRecord{}, fmt.Errorf("get invite: %w", err)
	}
	return record, nil
}

// PutInvite upserts one invite row.
func (q *queries) PutInvite(ctx context.Context, record storage.InviteRecord) error {
	normalized, err := normalizeInviteRecord(record)
	if err != nil {
		return err
	}

	var acceptedAt, rejectedAt sql.NullInt64
	if normalized.AcceptedAt != nil {
		acceptedAt = sql.NullInt64{Int64: toMillis(*normalized.AcceptedAt), Valid: true}
	}
	if normalized.RejectedAt != nil {
		rejectedAt = sql.NullInt64{Int64: toMillis(*normalized.RejectedAt), Valid: true}
	}
	_, err = q.db.ExecContext(ctx, `
	INSERT INTO tenancy_invites (
		id, landlord_id, landlord_name, property_id, property_name, tenant_email, unit, status, created_at, updated_at, accepted_at, rejected_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		landlord_id = excluded.landlord_id,
		landlord_name = excluded.landlord_name,
		property_id = excluded.property_id,
		property_name = excluded.property_name,
		tenant_email = excluded.tenant_email,
		unit = excluded.unit,
		status = excluded.status,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		accepted_at = excluded.accepted_at,
		rejected_at = excluded.rejected_at
	`,
		normalized.ID,
		normalized.LandlordID,
		normalized.LandlordName,
		normalized.PropertyID,
		normalized.PropertyName,
		normalized.TenantEmail,
		normalized.Unit,
		normalized.Status,
		toMillis(normalized.CreatedAt),
		toMillis(normalized.UpdatedAt),
		acceptedAt,
		rejectedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("put invite: %w", err)
	}
	return nil
}

// GetTenantProfile loads one tenant profile row by user id.
func (q *queries) GetTenantProfile(ctx context.Context, userID string) (storage.TenantProfileRecord, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return storage.TenantProfileRecord{}, fmt.Errorf("user id is required")
	}

	var record storage.TenantProfileRecord
	var onboarding int
	var createdAt, updatedAt int64
	err := q.db.QueryRowContext(ctx, `
SELECT user_id, email, property_id, landlord_id, onboarding_complete, created_at, updated_at
FROM tenant_profiles
WHERE user_id = ?
`, userID).Scan(
		&record.UserID,
		&record.Email,
		&record.PropertyID,
		&record.LandlordID,
		&onboarding,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.TenantProfileRecord{}, storage.ErrNotFound
		}
		return storage.TenantProfileRecord{}, fmt.Errorf("get tenant profile: %w", err)
	}
	record.OnboardingComplete = onboarding != 0
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// PutTenantProfile upserts one tenant profile row.
func (q *queries) PutTenantProfile(ctx context.Context, record storage.TenantProfileRecord) error {
	record.UserID = strings.TrimSpace(record.UserID)
	record.Email = strings.ToLower(strings.TrimSpace(record.Email))
	record.PropertyID = strings.TrimSpace(record.PropertyID)
	record.LandlordID = strings.TrimSpace(record.LandlordID)
	if record.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if record.Email == "" {
		return fmt.Errorf("email is required")
	}
	if record.CreatedAt.IsZero() || record.UpdatedAt.IsZero() {
		return fmt.Errorf("timestamps are required")
	}

	onboarding := 0
	if record.OnboardingComplete {
		onboarding = 1
	}
	_, err := q.db.ExecContext(ctx, `
	INSERT INTO tenant_profiles (
		user_id, email, property_id, landlord_id, onboarding_complete, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		email = excluded.email,
		property_id = excluded.property_id,
		landlord_id = excluded.landlord_id,
		onboarding_complete = excluded.onboarding_complete,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at
	`,
		record.UserID,
		record.Email,
		record.PropertyID,
		record.LandlordID,
		onboarding,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put tenant profile: %w", err)
	}
	return nil
}

// GetProperty loads one property row with its tenant membership set.
func (q *queries) GetProperty(ctx context.Context, propertyID string) (storage.PropertyRecord, error) {
	propertyID = strings.TrimSpace(propertyID)
	if propertyID == "" {
		return storage.PropertyRecord{}, fmt.Errorf("property id is required")
	}

	var record storage.PropertyRecord
	var createdAt, updatedAt int64
	err := q.db.QueryRowContext(ctx, `
SELECT id, landlord_id, name, created_at, updated_at
FROM properties
WHERE id = ?
`, propertyID).Scan(&record.ID, &record.LandlordID, &record.Name, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.PropertyRecord{}, storage.ErrNotFound
		}
		return storage.PropertyRecord{}, fmt.Errorf("get property: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)

	record.TenantIDs, err = q.memberSet(ctx, `SELECT tenant_id FROM property_tenants WHERE property_id = ? ORDER BY tenant_id`, propertyID)
	if err != nil {
		return storage.PropertyRecord{}, fmt.Errorf("get property tenants: %w", err)
	}
	return record, nil
}

// PutProperty upserts one property row. Tenant membership is managed
// separately through AddPropertyTenant.
func (q *queries) PutProperty(ctx context.Context, record storage.PropertyRecord) error {
	record.ID = strings.TrimSpace(record.ID)
	record.LandlordID = strings.TrimSpace(record.LandlordID)
	record.Name = strings.TrimSpace(record.Name)
	if record.ID == "" {
		return fmt.Errorf("property id is required")
	}
	if record.CreatedAt.IsZero() || record.UpdatedAt.IsZero() {
		return fmt.Errorf("timestamps are required")
	}

	_, err := q.db.ExecContext(ctx, `
	INSERT INTO properties (id, landlord_id, name, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		landlord_id = excluded.landlord_id,
		name = excluded.name,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at
	`, record.ID, record.LandlordID, record.Name, toMillis(record.CreatedAt), toMillis(record.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put property: %w", err)
	}
	return nil
}

// GetLandlordProfile loads one landlord profile row with its tenant and
// contractor sets.
func (q *queries) GetLandlordProfile(ctx context.Context, userID string) (storage.LandlordProfileRecord, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return storage.LandlordProfileRecord{}, fmt.Errorf("user id is required")
	}

	var record storage.LandlordProfileRecord
	var createdAt, updatedAt int64
	err := q.db.QueryRowContext(ctx, `
SELECT user_id, display_name, created_at, updated_at
FROM landlord_profiles
WHERE user_id = ?
`, userID).Scan(&record.UserID, &record.DisplayName, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.LandlordProfileRecord{}, storage.ErrNotFound
		}
		return storage.LandlordProfileRecord{}, fmt.Errorf("get landlord profile: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)

	record.TenantIDs, err = q.memberSet(ctx, `SELECT tenant_id FROM landlord_tenants WHERE landlord_id = ? ORDER BY tenant_id`, userID)
	if err != nil {
		return storage.LandlordProfileRecord{}, fmt.Errorf("get landlord tenants: %w", err)
	}
	record.ContractorIDs, err = q.memberSet(ctx, `SELECT contractor_id FROM landlord_contractors WHERE landlord_id = ? ORDER BY contractor_id`, userID)
	if err != nil {
		return storage.LandlordProfileRecord{}, fmt.Errorf("get landlord contractors: %w", err)
	}
	return record, nil
}

// PutLandlordProfile upserts one landlord profile row. Relationship sets
// are managed separately through AddLandlordTenant.
func (q *queries) PutLandlordProfile(ctx context.Context, record storage.LandlordProfileRecord) error {
	record.UserID = strings.TrimSpace(record.UserID)
	record.DisplayName = strings.TrimSpace(record.DisplayName)
	if record.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if record.CreatedAt.IsZero() || record.UpdatedAt.IsZero() {
		return fmt.Errorf("timestamps are required")
	}

	_, err := q.db.ExecContext(ctx, `
	INSERT INTO landlord_profiles (user_id, display_name, created_at, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		display_name = excluded.display_name,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at
	`, record.UserID, record.DisplayName, toMillis(record.CreatedAt), toMillis(record.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put landlord profile: %w", err)
	}
	return nil
}

// AddPropertyTenant adds one tenant id to a property's membership set.
// Re-adding a present member is a no-op.
func (q *queries) AddPropertyTenant(ctx context.Context, propertyID string, tenantID string) error {
	propertyID = strings.TrimSpace(propertyID)
	tenantID = strings.TrimSpace(tenantID)
	if propertyID == "" || tenantID == "" {
		return fmt.Errorf("property id and tenant id are required")
	}
	_, err := q.db.ExecContext(ctx, `
	INSERT OR IGNORE INTO property_tenants (property_id, tenant_id) VALUES (?, ?)
	`, propertyID, tenantID)
	if err != nil {
		return fmt.Errorf("add property tenant: %w", err)
	}
	return nil
}

// AddLandlordTenant adds one tenant id to a landlord's tenant set.
// Re-adding a present member is a no-op.
func (q *queries) AddLandlordTenant(ctx context.Context, landlordID string, tenantID string) error {
	landlordID = strings.TrimSpace(landlordID)
	tenantID = strings.TrimSpace(tenantID)
	if landlordID == "" || tenantID == "" {
		return fmt.Errorf("landlord id and tenant id are required")
	}
	_, err := q.db.ExecContext(ctx, `
	INSERT OR IGNORE INTO landlord_tenants (landlord_id, tenant_id) VALUES (?, ?)
	`, landlordID, tenantID)
	if err != nil {
		return fmt.Errorf("add landlord tenant: %w", err)
	}
	return nil
}

// AppendInviteLog appends one landlord invite audit row. Rows are never
// updated or deleted.
func (q *queries) AppendInviteLog(ctx context.Context, record storage.InviteLogRecord) error {
	record.LandlordID = strings.TrimSpace(record.LandlordID)
	record.TenantEmail = strings.ToLower(strings.TrimSpace(record.TenantEmail))
	if record.LandlordID == "" {
		return fmt.Errorf("landlord id is required")
	}
	if record.TenantEmail == "" {
		return fmt.Errorf("tenant email is required")
	}
	if record.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	_, err := q.db.ExecContext(ctx, `
	INSERT INTO landlord_invite_log (landlord_id, tenant_email, status, property_id, unit, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`, record.LandlordID, record.TenantEmail, record.Status, record.PropertyID, record.Unit, toMillis(record.CreatedAt))
	if err != nil {
		return fmt.Errorf("append invite log: %w", err)
	}
	return nil
}

func (q *queries) memberSet(ctx context.Context, query string, arg string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

type scanner func(dest ...any) error

func normalizeInviteRecord(record storage.InviteRecord) (storage.InviteRecord, error) {
	record.ID = strings.TrimSpace(record.ID)
	record.LandlordID = strings.TrimSpace(record.LandlordID)
	record.LandlordName = strings.TrimSpace(record.LandlordName)
	record.PropertyID = strings.TrimSpace(record.PropertyID)
	record.PropertyName = strings.TrimSpace(record.PropertyName)
	record.TenantEmail = strings.ToLower(strings.TrimSpace(record.TenantEmail))
	record.Unit = strings.TrimSpace(record.Unit)
	record.Status = storage.InviteStatus(strings.TrimSpace(string(record.Status)))
	if record.ID == "" {
		return storage.InviteRecord{}, fmt.Errorf("invite id is required")
	}
	if record.LandlordID == "" {
		return storage.InviteRecord{}, fmt.Errorf("landlord id is required")
	}
	if record.PropertyID == "" {
		return storage.InviteRecord{}, fmt.Errorf("property id is required")
	}
	if record.TenantEmail == "" {
		return storage.InviteRecord{}, fmt.Errorf("tenant email is required")
	}
	if record.Status == "" {
		return storage.InviteRecord{}, fmt.Errorf("invite status is required")
	}
	if record.CreatedAt.IsZero() || record.UpdatedAt.IsZero() {
		return storage.InviteRecord{}, fmt.Errorf("timestamps are required")
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	if record.AcceptedAt != nil {
		acceptedAt := record.AcceptedAt.UTC()
		record.AcceptedAt = &acceptedAt
	}
	if record.RejectedAt != nil {
		rejectedAt := record.RejectedAt.UTC()
		record.RejectedAt = &rejectedAt
	}
	return record, nil
}

func scanInvite(scan scanner) (storage.InviteRecord, error) {
	var record storage.InviteRecord
	var createdAt, updatedAt int64
	var acceptedAt, rejectedAt sql.NullInt64
	if err := scan(
		&record.ID,
		&record.LandlordID,
		&record.LandlordName,
		&record.PropertyID,
		&record.PropertyName,
		&record.TenantEmail,
		&record.Unit,
		&record.Status,
		&createdAt,
		&updatedAt,
		&acceptedAt,
		&rejectedAt,
	); err != nil {
		return storage.InviteRecord{}, err
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	if acceptedAt.Valid {
		value := fromMillis(acceptedAt.Int64)
		record.AcceptedAt = &value
	}
	if rejectedAt.Valid {
		value := fromMillis(rejectedAt.Int64)
		record.RejectedAt = &value
	}
	return record, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "unique constraint failed")
}
