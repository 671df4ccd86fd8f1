package notify

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kaamsetu/kaamsetu/internal/db"
)

// Repository persists the outbound queue in SQLite.
type Repository struct {
	db          *db.DB
	maxAttempts int
}

var _ Queue = (*Repository)(nil)

func NewRepository(d *db.DB, maxAttempts int) *Repository {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Repository{db: d, maxAttempts: maxAttempts}
}

// Enqueue inserts a notification and returns the new ID
func (r *Repository) Enqueue(ctx context.Context, recipient, body string) (int64, error) {
	now := time.Now().UTC().Unix()
	q := `INSERT INTO notifications(recipient, body, status, attempts, max_attempts, created, updated) VALUES(?,?,?,?,?,?,?)`
	res, err := r.db.Exec(ctx, q, recipient, body, "queued", 0, r.maxAttempts, now, now)
	if err != nil {
		return 0, fmt.Errorf("enqueue failed: %w", err)
	}

	return res.LastInsertId()
}

// FetchNext fetches the oldest deliverable notification. Only the head of
// each recipient's queue is eligible, so a message backing off in retry also
// holds back every later message to the same recipient and per-recipient
// order survives retries.
func (r *Repository) FetchNext(ctx context.Context) (*Notification, error) {
	q := `SELECT id, recipient, body, status, attempts, max_attempts, next_try_at, last_error, created, updated
		FROM notifications n
		WHERE (status = 'queued' OR status = 'retry') AND (next_try_at IS NULL OR next_try_at <= ?)
		AND NOT EXISTS (
			SELECT 1 FROM notifications p
			WHERE p.recipient = n.recipient AND p.id < n.id
			AND (p.status = 'queued' OR p.status = 'retry'))
		ORDER BY id ASC LIMIT 1`
	now := time.Now().UTC().Unix()
	row := r.db.QueryRow(ctx, q, now)

	var (
		n         Notification
		nextTry   sql.NullInt64
		lastError sql.NullString
		created   int64
		updated   int64
	)
	if err := row.Scan(&n.ID, &n.Recipient, &n.Body, &n.Status, &n.Attempts, &n.MaxAttempts, &nextTry, &lastError, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, fmt.Errorf("fetch next notification: %w", err)
	}
	n.Created = time.Unix(created, 0)
	n.Updated = time.Unix(updated, 0)
	if nextTry.Valid {
		t := time.Unix(nextTry.Int64, 0)
		n.NextTryAt = &t
	}
	if lastError.Valid {
		n.LastError = lastError.String
	}

	return &n, nil
}

// Update updates status, attempts, next_try_at and last_error
func (r *Repository) Update(ctx context.Context, n *Notification) error {
	var nextTry any
	if n.NextTryAt != nil {
		nextTry = n.NextTryAt.Unix()
	}
	q := `UPDATE notifications SET status = ?, attempts = ?, next_try_at = ?, last_error = ?, updated = ? WHERE id = ?`
	_, err := r.db.Exec(ctx, q, n.Status, n.Attempts, nextTry, n.LastError, time.Now().UTC().Unix(), n.ID)

	return err
}

// MoveToDeadLetter moves a notification to dead_letter_notifications and
// deletes the original
func (r *Repository) MoveToDeadLetter(ctx context.Context, n *Notification) error {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return err
	}

	insert := `INSERT INTO dead_letter_notifications(notification_id, recipient, body, attempts, last_error, failed_at) VALUES(?,?,?,?,?,?)`
	if _, err := tx.ExecContext(ctx, insert, n.ID, n.Recipient, n.Body, n.Attempts, n.LastError, time.Now().UTC().Unix()); err != nil {
		_ = tx.Rollback()
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, n.ID); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}
