package store

import (
	"database/sql"
	"fmt"
	"time"
)

// DayMillis is one decay step: a full day in milliseconds.
const DayMillis = int64(24 * time.Hour / time.Millisecond)

// Item is one tracked key in the items table.
type Item struct {
	ID            int64
	Key           string
	Count         int64
	LastDegradeAt int64 // unix millis
}

// LastDegrade returns LastDegradeAt as a time.Time.
func (it Item) LastDegrade() time.Time {
	return time.UnixMilli(it.LastDegradeAt)
}

// Increment records one access for key. A new key is inserted with count 1;
// an existing key gets count+1 and its degrade timestamp moved to now. Both
// cases are a single statement, so concurrent callers never lose updates.
func (db *DB) Increment(key string, now time.Time) error {
	_, err := db.Exec(`
		INSERT INTO items (key, count, last_degrade_timestamp)
		VALUES (?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET
			count = count + 1,
			last_degrade_timestamp = excluded.last_degrade_timestamp
	`, key, now.UnixMilli())
	if err != nil {
		return fmt.Errorf("increment item: %w", err)
	}
	db.feed.Publish(Change{Op: OpIncrement, Key: key, Rows: 1})
	return nil
}

// GetItem returns the item for key, or nil if not found.
func (db *DB) GetItem(key string) (*Item, error) {
	var it Item
	err := db.QueryRow(`
		SELECT id, key, count, last_degrade_timestamp FROM items WHERE key = ?
	`, key).Scan(&it.ID, &it.Key, &it.Count, &it.LastDegradeAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return &it, nil
}

// RenameItem rewrites the key of the row stored under from, keeping its
// count. A row already stored under to is replaced. Reports whether a row
// was moved; a missing from is not an error.
func (db *DB) RenameItem(from, to string) (bool, error) {
	if from == to {
		return false, nil
	}

	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin rename: %w", err)
	}

	var id int64
	err = tx.QueryRow("SELECT id FROM items WHERE key = ?", from).Scan(&id)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return false, nil
	}
	if err != nil {
		tx.Rollback()
		return false, fmt.Errorf("find rename source: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM items WHERE key = ? AND id != ?", to, id); err != nil {
		tx.Rollback()
		return false, fmt.Errorf("clear rename target: %w", err)
	}
	if _, err := tx.Exec("UPDATE items SET key = ? WHERE id = ?", to, id); err != nil {
		tx.Rollback()
		return false, fmt.Errorf("rename item: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit rename: %w", err)
	}

	db.feed.Publish(Change{Op: OpRename, Key: to, Rows: 1})
	return true, nil
}

// DeleteItem removes the row for key. Reports whether a row existed.
func (db *DB) DeleteItem(key string) (bool, error) {
	result, err := db.Exec("DELETE FROM items WHERE key = ?", key)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return false, nil
	}
	db.feed.Publish(Change{Op: OpDelete, Key: key, Rows: n})
	return true, nil
}

// DecayItems subtracts the number of whole days elapsed since each row's
// last degrade from its count, for rows at least one full day old, and
// resets their degrade timestamp to now. Rows touched within the last day
// are left alone, so repeated calls on the same day decay nothing.
func (db *DB) DecayItems(now time.Time) (int, error) {
	ms := now.UnixMilli()
	result, err := db.Exec(`
		UPDATE items
		SET count = count - ((? - last_degrade_timestamp) / ?),
			last_degrade_timestamp = ?
		WHERE ? - last_degrade_timestamp >= ?
	`, ms, DayMillis, ms, ms, DayMillis)
	if err != nil {
		return 0, fmt.Errorf("decay items: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		db.feed.Publish(Change{Op: OpDecay, Rows: n})
	}
	return int(n), nil
}

// PruneItems deletes rows with a negative count that are not among the top
// keep rows by count.
func (db *DB) PruneItems(keep int) (int, error) {
	result, err := db.Exec(`
		DELETE FROM items
		WHERE count < 0
		AND id NOT IN (
			SELECT id FROM items ORDER BY count DESC, id ASC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune items: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		db.feed.Publish(Change{Op: OpPrune, Rows: n})
	}
	return int(n), nil
}

// TopItems returns up to limit rows ordered by count DESC. Ties keep
// insertion order.
func (db *DB) TopItems(limit int) ([]Item, error) {
	rows, err := db.Query(`
		SELECT id, key, count, last_degrade_timestamp
		FROM items
		ORDER BY count DESC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("top items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Key, &it.Count, &it.LastDegradeAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// CountItems returns the number of tracked keys.
func (db *DB) CountItems() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM items").Scan(&count)
	return count, err
}
