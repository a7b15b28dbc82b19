package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cfbotcore/pipeline/internal/queue"
)

// QueueRepo persists the ring queue's full state. The ring has no
// durable row-level diff (links get rewritten across many rows per
// operation), so Save replaces the table wholesale inside a
// transaction — cheap at the queue's expected size (single digits to
// low hundreds of open patches).
type QueueRepo struct {
	db *sql.DB
}

// NewQueueRepo constructs a QueueRepo.
func NewQueueRepo(db *DB) *QueueRepo {
	return &QueueRepo{db: db.conn}
}

// Load rehydrates a Queue from the persisted ring, or returns an empty
// queue.New(name) if none has been saved yet.
func (r *QueueRepo) Load(ctx context.Context, name string) (*queue.Queue, error) {
	var cursorItemID sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT cursor_item_id FROM queue WHERE id = 1`).Scan(&cursorItemID)
	if err == sql.ErrNoRows {
		return queue.New(name), nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load queue row: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, patch_id, message_id, prev_id, next_id, processed_at, ignored_at, last_base_commit_sha
		FROM queue_items`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load queue items: %w", err)
	}
	defer rows.Close()

	var items []*queue.Item
	var maxID int64
	for rows.Next() {
		it := &queue.Item{}
		var prevID, nextID sql.NullInt64
		var processedAt, ignoredAt sql.NullTime
		var lastSHA sql.NullString
		if err := rows.Scan(&it.ID, &it.PatchID, &it.MessageID, &prevID, &nextID, &processedAt, &ignoredAt, &lastSHA); err != nil {
			return nil, fmt.Errorf("sqlite: scan queue item: %w", err)
		}
		if prevID.Valid {
			v := prevID.Int64
			it.Prev = &v
		}
		if nextID.Valid {
			v := nextID.Int64
			it.Next = &v
		}
		if processedAt.Valid {
			t := processedAt.Time
			it.ProcessedAt = &t
		}
		if ignoredAt.Valid {
			t := ignoredAt.Time
			it.IgnoredAt = &t
		}
		it.LastBaseCommitSHA = lastSHA.String
		items = append(items, it)
		if it.ID > maxID {
			maxID = it.ID
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate queue items: %w", err)
	}

	var cursorID *int64
	if cursorItemID.Valid {
		v := cursorItemID.Int64
		cursorID = &v
	}
	return queue.LoadSnapshot(name, items, cursorID, maxID), nil
}

// Save replaces the persisted ring with q's current snapshot.
func (r *QueueRepo) Save(ctx context.Context, q *queue.Queue, name string) error {
	items, cursorID, _ := q.Snapshot()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin queue save tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM queue_items`); err != nil {
		return fmt.Errorf("sqlite: clear queue items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM queue`); err != nil {
		return fmt.Errorf("sqlite: clear queue row: %w", err)
	}

	// Insert every item with NULL links first so foreign keys never
	// point at a not-yet-inserted row, then rewrite the links.
	for _, it := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO queue_items (id, patch_id, message_id, processed_at, ignored_at, last_base_commit_sha)
			VALUES (?, ?, ?, ?, ?, ?)`,
			it.ID, it.PatchID, it.MessageID, it.ProcessedAt, it.IgnoredAt, nullIfEmpty(it.LastBaseCommitSHA),
		); err != nil {
			return fmt.Errorf("sqlite: insert queue item %d: %w", it.ID, err)
		}
	}
	for _, it := range items {
		if it.Prev == nil && it.Next == nil {
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE queue_items SET prev_id = ?, next_id = ? WHERE id = ?`,
			it.Prev, it.Next, it.ID,
		); err != nil {
			return fmt.Errorf("sqlite: link queue item %d: %w", it.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO queue (id, name, cursor_item_id) VALUES (1, ?, ?)`, name, cursorID); err != nil {
		return fmt.Errorf("sqlite: write queue row: %w", err)
	}

	return tx.Commit()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
