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
	"github.com/upkeephq/upkeep/internal/services/maintenance/storage"
	"github.com/upkeephq/upkeep/internal/services/maintenance/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for maintenance ticket state.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a maintenance SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)" +
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

	store := &Store{sqlDB: sqlDB}
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

// PutTicket upserts one maintenance ticket row.
func (s *Store) PutTicket(ctx context.Context, record storage.TicketRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeTicketRecord(record)
	if err != nil {
		return err
	}

	var classifiedAt sql.NullInt64
	if normalized.ClassifiedAt != nil {
		classifiedAt = sql.NullInt64{Int64: toMillis(*normalized.ClassifiedAt), Valid: true}
	}
	_, err = s.sqlDB.ExecContext(ctx, `
	INSERT INTO maintenance_tickets (
		id, tenant_id, property_id, issue_title, description, category, urgency, status, classification_error, created_at, updated_at, classified_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		tenant_id = excluded.tenant_id,
		property_id = excluded.property_id,
		issue_title = excluded.issue_title,
		description = excluded.description,
		category = excluded.category,
		urgency = excluded.urgency,
		status = excluded.status,
		classification_error = excluded.classification_error,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		classified_at = excluded.classified_at
	`,
		normalized.ID,
		normalized.TenantID,
		normalized.PropertyID,
		normalized.IssueTitle,
		normalized.Description,
		normalized.Category,
		normalized.Urgency,
		normalized.Status,
		normalized.ClassificationError,
		toMillis(normalized.CreatedAt),
		toMillis(normalized.UpdatedAt),
		classifiedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("put ticket: %w", err)
	}
	return nil
}

// GetTicket loads one ticket row by id.
func (s *Store) GetTicket(ctx context.Context, ticketID string) (storage.TicketRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.TicketRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.TicketRecord{}, fmt.Errorf("storage is not configured")
	}
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return storage.TicketRecord{}, fmt.Errorf("ticket id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, tenant_id, property_id, issue_title, description, category, urgency, status, classification_error, created_at, updated_at, classified_at
FROM maintenance_tickets
WHERE id = ?
`, ticketID)
	record, err := scanTicket(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.TicketRecord{}, storage.ErrNotFound
		}
		return storage.TicketRecord{}, fmt.Errorf("get ticket: %w", err)
	}
	return record, nil
}

// ListPendingClassification lists unclassified tickets oldest-first.
func (s *Store) ListPendingClassification(ctx context.Context, limit int) ([]storage.TicketRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, tenant_id, property_id, issue_title, description, category, urgency, status, classification_error, created_at, updated_at, classified_at
FROM maintenance_tickets
WHERE status = ?
ORDER BY created_at ASC, id ASC
LIMIT ?
`, storage.TicketStatusPendingClassification, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending tickets: %w", err)
	}
	defer rows.Close()

	results := make([]storage.TicketRecord, 0, limit)
	for rows.Next() {
		record, scanErr := scanTicket(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan pending ticket row: %w", scanErr)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending ticket rows: %w", err)
	}
	return results, nil
}

// MarkClassified transitions one pending ticket to ready_to_dispatch. The
// update is conditioned on the current status so a ticket that already left
// pending_classification is never overwritten.
func (s *Store) MarkClassified(ctx context.Context, ticketID string, category string, urgency int, classifiedAt time.Time) (storage.TicketRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.TicketRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.TicketRecord{}, fmt.Errorf("storage is not configured")
	}
	ticketID = strings.TrimSpace(ticketID)
	category = strings.TrimSpace(category)
	if ticketID == "" {
		return storage.TicketRecord{}, fmt.Errorf("ticket id is required")
	}
	if category == "" {
		return storage.TicketRecord{}, fmt.Errorf("category is required")
	}
	if urgency <= 0 {
		return storage.TicketRecord{}, fmt.Errorf("urgency must be greater than zero")
	}
	if classifiedAt.IsZero() {
		return storage.TicketRecord{}, fmt.Errorf("classified at is required")
	}

	now := classifiedAt.UTC()
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE maintenance_tickets
SET status = ?, category = ?, urgency = ?, classification_error = '', updated_at = ?, classified_at = ?
WHERE id = ? AND status = ?
`, storage.TicketStatusReadyToDispatch, category, urgency, toMillis(now), toMillis(now), ticketID, storage.TicketStatusPendingClassification)
	if err != nil {
		return storage.TicketRecord{}, fmt.Errorf("mark ticket classified: %w", err)
	}
	return s.afterStatusTransition(ctx, ticketID, result)
}

// MarkClassificationFailed transitions one pending ticket to the terminal
// classification_failed state with a failure reason.
func (s *Store) MarkClassificationFailed(ctx context.Context, ticketID string, reason string, failedAt time.Time) (storage.TicketRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.TicketRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.TicketRecord{}, fmt.Errorf("storage is not configured")
	}
	ticketID = strings.TrimSpace(ticketID)
	reason = strings.TrimSpace(reason)
	if ticketID == "" {
		return storage.TicketRecord{}, fmt.Errorf("ticket id is required")
	}
	if reason == "" {
		return storage.TicketRecord{}, fmt.Errorf("failure reason is required")
	}
	if failedAt.IsZero() {
		return storage.TicketRecord{}, fmt.Errorf("failed at is required")
	}

	now := failedAt.UTC()
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE maintenance_tickets
SET status = ?, category = '', urgency = 0, classification_error = ?, updated_at = ?
WHERE id = ? AND status = ?
`, storage.TicketStatusClassificationFailed, reason, toMillis(now), ticketID, storage.TicketStatusPendingClassification)
	if err != nil {
		return storage.TicketRecord{}, fmt.Errorf("mark ticket classification failed: %w", err)
	}
	return s.afterStatusTransition(ctx, ticketID, result)
}

func (s *Store) afterStatusTransition(ctx context.Context, ticketID string, result sql.Result) (storage.TicketRecord, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.TicketRecord{}, fmt.Errorf("ticket transition rows affected: %w", err)
	}
	if affected == 0 {
		record, getErr := s.GetTicket(ctx, ticketID)
		if getErr != nil {
			return storage.TicketRecord{}, getErr
		}
		// The row exists but was not pending, so the transition is a no-op.
		return record, storage.ErrConflict
	}
	return s.GetTicket(ctx, ticketID)
}

type scanner func(dest ...any) error

func normalizeTicketRecord(record storage.TicketRecord) (storage.TicketRecord, error) {
	record.ID = strings.TrimSpace(record.ID)
	record.TenantID = strings.TrimSpace(record.TenantID)
	record.PropertyID = strings.TrimSpace(record.PropertyID)
	record.IssueTitle = strings.TrimSpace(record.IssueTitle)
	record.Description = strings.TrimSpace(record.Description)
	record.Category = strings.TrimSpace(record.Category)
	record.Status = storage.TicketStatus(strings.TrimSpace(string(record.Status)))
	record.ClassificationError = strings.TrimSpace(record.ClassificationError)
	if record.ID == "" {
		return storage.TicketRecord{}, fmt.Errorf("ticket id is required")
	}
	if record.Description == "" {
		return storage.TicketRecord{}, fmt.Errorf("ticket description is required")
	}
	if record.Status == "" {
		return storage.TicketRecord{}, fmt.Errorf("ticket status is required")
	}
	if (record.Category == "") != (record.Urgency == 0) {
		return storage.TicketRecord{}, fmt.Errorf("category and urgency must be set together")
	}
	if record.CreatedAt.IsZero() {
		return storage.TicketRecord{}, fmt.Errorf("created_at is required")
	}
	if record.UpdatedAt.IsZero() {
		return storage.TicketRecord{}, fmt.Errorf("updated_at is required")
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	if record.ClassifiedAt != nil {
		classifiedAt := record.ClassifiedAt.UTC()
		record.ClassifiedAt = &classifiedAt
	}
	return record, nil
}

func scanTicket(scan scanner) (storage.TicketRecord, error) {
	var record storage.TicketRecord
	var createdAt int64
	var updatedAt int64
	var classifiedAt sql.NullInt64
	if err := scan(
		&record.ID,
		&record.TenantID,
		&record.PropertyID,
		&record.IssueTitle,
		&record.Description,
		&record.Category,
		&record.Urgency,
		&record.Status,
		&record.ClassificationError,
		&createdAt,
		&updatedAt,
		&classifiedAt,
	); err != nil {
		return storage.TicketRecord{}, err
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	if classifiedAt.Valid {
		value := fromMillis(classifiedAt.Int64)
		record.ClassifiedAt = &value
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
