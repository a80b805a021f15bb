package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notification-engine/internal/domain"
	"notification-engine/pkg/xerrors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store aggregates all notification persistence operations. The engine
// treats it as a transactional document interface; the pg implementation
// below is the only real one, tests use in-memory fakes.
type Store interface {
	Insert(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
	InsertMany(ctx context.Context, ns []*domain.Notification) ([]*domain.Notification, error)
	GetByID(ctx context.Context, id, recipientID string) (*domain.Notification, error)
	UpdateDeliveryFlags(ctx context.Context, id string, flags domain.DeliveryFlags) error

	// MarkRead is idempotent; it reports whether the unread->read
	// transition happened on this call.
	MarkRead(ctx context.Context, id, recipientID string, readAt time.Time) (bool, error)
	MarkAllRead(ctx context.Context, recipientID string, readAt time.Time) (int, error)

	DeleteByID(ctx context.Context, id, recipientID string) (bool, error)
	DeleteAllRead(ctx context.Context, recipientID string) (int, error)

	Query(ctx context.Context, recipientID string, filters domain.ListFilters, limit, offset int) ([]*domain.Notification, int, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	PruneExpired(ctx context.Context, recipientID string) (int, error)
}

type pgStore struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) Store {
	return &pgStore{db: db}
}

const notificationColumns = `
	id, recipient_id, type, priority, content, actor, context, metadata,
	attachments, is_read, read_at, created_at, expires_at, realtime_sent, push_sent
`

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	err := row.Scan(
		&n.ID,
		&n.RecipientID,
		&n.Type,
		&n.Priority,
		&n.Content,
		&n.Actor,
		&n.Context,
		&n.Metadata,
		&n.Attachments,
		&n.IsRead,
		&n.ReadAt,
		&n.CreatedAt,
		&n.ExpiresAt,
		&n.Delivery.RealtimeSent,
		&n.Delivery.PushSent,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

const insertQuery = `
	INSERT INTO notifications (
		id, recipient_id, type, priority, content, actor, context,
		metadata, attachments, expires_at, realtime_sent, push_sent
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	RETURNING ` + notificationColumns

func insertArgs(n *domain.Notification) []any {
	return []any{
		n.ID,
		n.RecipientID,
		n.Type,
		n.Priority,
		n.Content,
		n.Actor,
		n.Context,
		n.Metadata,
		n.Attachments,
		n.ExpiresAt,
		n.Delivery.RealtimeSent,
		n.Delivery.PushSent,
	}
}

// Insert implements Store. The ID is assigned here; created_at is set
// by the database exactly once.
func (p *pgStore) Insert(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	created, err := scanNotification(p.db.QueryRow(ctx, insertQuery, insertArgs(n)...))
	if err != nil {
		return nil, fmt.Errorf("insert notification (pg code %s): %w", xerrors.ParsePGErrorCode(err), err)
	}
	return created, nil
}

// InsertMany implements Store with a single batched round trip, keeping
// batch fan-out linear in the number of recipients.
func (p *pgStore) InsertMany(ctx context.Context, ns []*domain.Notification) ([]*domain.Notification, error) {
	if len(ns) == 0 {
		return nil, nil
	}
	batch := &pgx.Batch{}
	for _, n := range ns {
		if n.ID == "" {
			n.ID = uuid.New().String()
		}
		batch.Queue(insertQuery, insertArgs(n)...)
	}

	results := p.db.SendBatch(ctx, batch)
	defer results.Close()

	created := make([]*domain.Notification, 0, len(ns))
	for range ns {
		n, err := scanNotification(results.QueryRow())
		if err != nil {
			return nil, fmt.Errorf("insert notification batch (pg code %s): %w", xerrors.ParsePGErrorCode(err), err)
		}
		created = append(created, n)
	}
	return created, nil
}

// GetByID implements Store.
func (p *pgStore) GetByID(ctx context.Context, id, recipientID string) (*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE id = $1 AND recipient_id = $2`

	n, err := scanNotification(p.db.QueryRow(ctx, query, id, recipientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, err
	}
	return n, nil
}

// UpdateDeliveryFlags implements Store. One follow-up write per record,
// issued after a channel attempt genuinely happened.
func (p *pgStore) UpdateDeliveryFlags(ctx context.Context, id string, flags domain.DeliveryFlags) error {
	query := `
		UPDATE notifications
		SET realtime_sent = $1, push_sent = $2
		WHERE id = $3`

	ct, err := p.db.Exec(ctx, query, flags.RealtimeSent, flags.PushSent, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// MarkRead implements Store. read_at is written only on the first
// transition and never changes afterwards.
func (p *pgStore) MarkRead(ctx context.Context, id, recipientID string, readAt time.Time) (bool, error) {
	query := `
		UPDATE notifications
		SET is_read = true, read_at = $3
		WHERE id = $1 AND recipient_id = $2 AND is_read = false`

	ct, err := p.db.Exec(ctx, query, id, recipientID, readAt)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() > 0 {
		return true, nil
	}

	// No transition: either already read (fine, idempotent) or missing.
	var exists bool
	err = p.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1 AND recipient_id = $2)`,
		id, recipientID,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, xerrors.ErrNotFound
	}
	return false, nil
}

// MarkAllRead implements Store.
func (p *pgStore) MarkAllRead(ctx context.Context, recipientID string, readAt time.Time) (int, error) {
	query := `
		UPDATE notifications
		SET is_read = true, read_at = $2
		WHERE recipient_id = $1 AND is_read = false`

	ct, err := p.db.Exec(ctx, query, recipientID, readAt)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

// DeleteByID implements Store.
func (p *pgStore) DeleteByID(ctx context.Context, id, recipientID string) (bool, error) {
	ct, err := p.db.Exec(ctx,
		`DELETE FROM notifications WHERE id = $1 AND recipient_id = $2`,
		id, recipientID,
	)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// DeleteAllRead implements Store.
func (p *pgStore) DeleteAllRead(ctx context.Context, recipientID string) (int, error) {
	ct, err := p.db.Exec(ctx,
		`DELETE FROM notifications WHERE recipient_id = $1 AND is_read = true`,
		recipientID,
	)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

// Query implements Store. Expired records are excluded here and reaped
// separately by PruneExpired.
func (p *pgStore) Query(ctx context.Context, recipientID string, filters domain.ListFilters, limit, offset int) ([]*domain.Notification, int, error) {
	if limit <= 0 {
		limit = 20
	}

	where := `WHERE recipient_id = $1
		AND (expires_at IS NULL OR expires_at > NOW())`
	args := []any{recipientID}

	if filters.Type != "" {
		args = append(args, filters.Type)
		where += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if filters.UnreadOnly {
		where += " AND is_read = false"
	}

	var total int
	if err := p.db.QueryRow(ctx, `SELECT COUNT(*) FROM notifications `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := `SELECT ` + notificationColumns + `
		FROM notifications ` + where + fmt.Sprintf(`
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var notifications []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		notifications = append(notifications, n)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}
	return notifications, total, nil
}

// CountUnread implements Store.
func (p *pgStore) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := p.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications
		 WHERE recipient_id = $1 AND is_read = false
		   AND (expires_at IS NULL OR expires_at > NOW())`,
		recipientID,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// PruneExpired implements Store. Lazy reaping; callers invoke it
// opportunistically on the list path.
func (p *pgStore) PruneExpired(ctx context.Context, recipientID string) (int, error) {
	ct, err := p.db.Exec(ctx,
		`DELETE FROM notifications
		 WHERE recipient_id = $1 AND expires_at IS NOT NULL AND expires_at <= NOW()`,
		recipientID,
	)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}
