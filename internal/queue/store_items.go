package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Submit validates and inserts a new pending task. When a quota gate is
// installed, a client over its window quota gets a *RateLimitError and
// nothing is stored.
func (s *Store) Submit(ctx context.Context, req NewItem) (*Item, error) {
	ctx = ensureContext(ctx)
	input := strings.TrimSpace(req.Input)
	if input == "" {
		return nil, fmt.Errorf("submit: input is required")
	}
	if len(req.Formats) == 0 {
		return nil, fmt.Errorf("submit: at least one format is required")
	}
	quotaKey := req.QuotaKey
	if quotaKey == "" {
		quotaKey = req.ClientID
	}
	if s.quota != nil && quotaKey != "" {
		if ok, retryAfter := s.quota.Allow(quotaKey); !ok {
			return nil, &RateLimitError{ClientID: quotaKey, RetryAfter: retryAfter}
		}
	}

	options, err := nullableJSON(req.Options)
	if err != nil {
		return nil, fmt.Errorf("encode options: %w", err)
	}
	id := uuid.NewString()
	timestamp := formatTime(s.now())
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO tasks (
            id, client_id, input, formats, options_json, callback_url,
            status, progress, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		id,
		nullableString(req.ClientID),
		input,
		joinList(req.Formats),
		options,
		nullableString(req.CallbackURL),
		StatusPending,
		timestamp,
		timestamp,
	); err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return s.Get(ctx, id)
}

// Get fetches a task by id.
func (s *Store) Get(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+itemColumns+` FROM tasks WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return item, nil
}

// List returns tasks matching filter, newest first unless filter.Oldest.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM tasks`
	var (
		clauses []string
		args    []any
	)
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	if filter.ClientID != "" {
		clauses = append(clauses, "client_id = ?")
		args = append(args, filter.ClientID)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	if filter.Oldest {
		query += " ORDER BY created_at ASC, rowid ASC"
	} else {
		query += " ORDER BY created_at DESC, rowid DESC"
	}
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Delete removes a task and then releases its stored artifacts through the
// registered releaser.
func (s *Store) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	unlock := s.locks.lock(id)
	defer unlock()

	item, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	res, err := s.execWithRetry(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.releaseMu.RLock()
	release := s.release
	s.releaseMu.RUnlock()
	if release != nil {
		if err := release(ctx, item); err != nil {
			return fmt.Errorf("release artifacts for %s: %w", id, err)
		}
	}
	return nil
}

// Stats counts tasks per status.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ByStatus: make(map[Status]int, len(allStatuses))}
	for _, status := range allStatuses {
		stats.ByStatus[status] = 0
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("scan stats: %w", err)
		}
		stats.ByStatus[Status(status)] = count
		stats.Total += count
	}
	return stats, rows.Err()
}
