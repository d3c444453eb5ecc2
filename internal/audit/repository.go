package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrInvalidEntry         = errors.New("action and resource_type are required")
)

type Repository interface {
	InsertEntry(ctx context.Context, e *Entry) error
	ListEntries(ctx context.Context, f Filter) ([]Entry, error)
	InsertNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, recipientID uuid.UUID) ([]Notification, error)
	MarkRead(ctx context.Context, id, recipientID uuid.UUID) error
}

// Execer is the write side; satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type repository struct {
	db   Execer
	read *sqlx.DB
}

// NewRepository writes through pgx and reads through sqlx.
func NewRepository(db Execer, read *sqlx.DB) Repository {
	return &repository{db: db, read: read}
}

func (r *repository) InsertEntry(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate audit entry ID: %w", err)
		}
		e.ID = id
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("repository: failed to encode audit details: %w", err)
	}

	query := `
		INSERT INTO audit_logs (id, user_id, action, resource_type, resource_id, details, ip_address, user_agent, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.Exec(ctx, query,
		e.ID,
		e.UserID,
		string(e.Action),
		e.ResourceType,
		e.ResourceID,
		raw,
		e.IPAddress,
		e.UserAgent,
		e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert audit entry: %w", err)
	}
	return nil
}

type entryRow struct {
	Entry
	RawDetails []byte `db:"details"`
}

func (r *repository) ListEntries(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Username != "" {
		add("u.username ILIKE $%d", "%"+f.Username+"%")
	}
	if f.Action != "" {
		add("a.action = $%d", string(f.Action))
	}
	if f.ResourceType != "" {
		add("a.resource_type = $%d", f.ResourceType)
	}
	if f.From != nil {
		add("a.timestamp >= $%d", *f.From)
	}
	if f.To != nil {
		add("a.timestamp <= $%d", *f.To)
	}

	query := `
		SELECT a.id, a.user_id, COALESCE(u.username, '') AS username, a.action, a.resource_type,
			a.resource_id, a.details, a.ip_address, a.user_agent, a.timestamp
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.user_id`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY a.timestamp DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var rows []entryRow
	if err := r.read.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("repository: failed to select audit entries: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		e := row.Entry
		if len(row.RawDetails) > 0 {
			if err := json.Unmarshal(row.RawDetails, &e.Details); err != nil {
				return nil, fmt.Errorf("repository: failed to decode audit details %s: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *repository) InsertNotification(ctx context.Context, n *Notification) error {
	if n.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate notification ID: %w", err)
		}
		n.ID = id
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Priority == "" {
		n.Priority = PriorityMedium
	}

	query := `
		INSERT INTO notifications (id, recipient_id, notification_type, title, message, priority, read, resource_type, resource_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		n.ID,
		n.RecipientID,
		string(n.Type),
		n.Title,
		n.Message,
		string(n.Priority),
		n.ResourceType,
		n.ResourceID,
		n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert notification: %w", err)
	}
	return nil
}

func (r *repository) ListNotifications(ctx context.Context, recipientID uuid.UUID) ([]Notification, error) {
	query := `
		SELECT id, recipient_id, notification_type, priority, title, message, read, read_at,
			resource_type, resource_id, created_at
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
	`
	notifications := make([]Notification, 0)
	if err := r.read.SelectContext(ctx, &notifications, query, recipientID); err != nil {
		return nil, fmt.Errorf("repository: failed to select notifications for %s: %w", recipientID, err)
	}
	return notifications, nil
}

func (r *repository) MarkRead(ctx context.Context, id, recipientID uuid.UUID) error {
	query := `
		UPDATE notifications
		SET read = TRUE, read_at = COALESCE(read_at, NOW())
		WHERE id = $1 AND recipient_id = $2
	`
	cmdTag, err := r.db.Exec(ctx, query, id, recipientID)
	if err != nil {
		return fmt.Errorf("repository: failed to mark notification %s read: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
