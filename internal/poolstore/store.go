package poolstore

import (
    "context"
    "database/sql"
    "strings"
    "time"

    "github.com/hamzaKhattat/callerid-pool/pkg/errors"
    "github.com/hamzaKhattat/callerid-pool/pkg/logger"
)

// Store is the MySQL-backed Pool Store adapter (spec §4.2).
type Store struct {
    db *sql.DB
}

// NewStore wraps an already-connected *sql.DB.
func NewStore(db *sql.DB) *Store {
    return &Store{db: db}
}

// QueryCandidates returns active caller-IDs ordered by
// (last_used_at ASC NULLS FIRST, number ASC), as required by spec §4.2.
// An empty areaCode means "any area code" (tier 2).
func (s *Store) QueryCandidates(ctx context.Context, areaCode string, limit int) ([]CallerID, error) {
    var rows *sql.Rows
    var err error

    query := `
        SELECT number, area_code, carrier, hourly_cap, daily_cap,
               last_used_at, active, metadata, created_at, updated_at
        FROM caller_ids
        WHERE active = 1 AND hourly_cap > 0 AND daily_cap > 0`

    args := []interface{}{}
    if areaCode != "" {
        query += " AND area_code = ?"
        args = append(args, areaCode)
    }
    query += " ORDER BY (last_used_at IS NOT NULL), last_used_at ASC, number ASC LIMIT ?"
    args = append(args, limit)

    rows, err = s.db.QueryContext(ctx, query, args...)
    if err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "failed to query candidates")
    }
    defer rows.Close()

    var results []CallerID
    for rows.Next() {
        var c CallerID
        var areaCodeNull sql.NullString
        if err := rows.Scan(&c.Number, &areaCodeNull, &c.Carrier, &c.HourlyCap,
            &c.DailyCap, &c.LastUsedAt, &c.Active, &c.Metadata, &c.CreatedAt, &c.UpdatedAt); err != nil {
            return nil, errors.Wrap(err, errors.ErrDatabase, "failed to scan candidate row")
        }
        c.AreaCode = areaCodeNull.String
        results = append(results, c)
    }
    if err := rows.Err(); err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "failed reading candidate rows")
    }

    return results, nil
}

// GetByNumber fetches one caller-ID, active or not.
func (s *Store) GetByNumber(ctx context.Context, number string) (*CallerID, error) {
    query := `
        SELECT number, area_code, carrier, hourly_cap, daily_cap,
               last_used_at, active, metadata, created_at, updated_at
        FROM caller_ids
        WHERE number = ?`

    var c CallerID
    var areaCodeNull sql.NullString
    err := s.db.QueryRowContext(ctx, query, number).Scan(
        &c.Number, &areaCodeNull, &c.Carrier, &c.HourlyCap, &c.DailyCap,
        &c.LastUsedAt, &c.Active, &c.Metadata, &c.CreatedAt, &c.UpdatedAt,
    )
    if err == sql.ErrNoRows {
        return nil, errors.New(errors.ErrNotFound, "caller-ID not found")
    }
    if err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "failed to get caller-ID")
    }
    c.AreaCode = areaCodeNull.String
    return &c, nil
}

// UpdateLastUsed persists the most recent successful-allocation timestamp.
// A later write for t2 > t1 must never lose to an earlier write for t1
// (spec §4.2 consistency contract); the guard clause enforces that even
// if calls race and land out of order.
func (s *Store) UpdateLastUsed(ctx context.Context, number string, at time.Time) error {
    _, err := s.db.ExecContext(ctx, `
        UPDATE caller_ids
        SET last_used_at = ?, updated_at = NOW()
        WHERE number = ? AND (last_used_at IS NULL OR last_used_at < ?)`,
        at, number, at)
    if err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "failed to update last_used_at")
    }
    return nil
}

// Create adds a new caller-ID to the pool (admin-only).
func (s *Store) Create(ctx context.Context, c *CallerID) error {
    if c.HourlyCap > c.DailyCap {
        return errors.New(errors.ErrInvalidInput, "hourly_cap must not exceed daily_cap")
    }

    var areaCode interface{}
    if c.AreaCode != "" {
        areaCode = c.AreaCode
    }

    _, err := s.db.ExecContext(ctx, `
        INSERT INTO caller_ids (number, area_code, carrier, hourly_cap, daily_cap, active, metadata)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
        c.Number, areaCode, c.Carrier, c.HourlyCap, c.DailyCap, c.Active, c.Metadata)
    if err != nil {
        if strings.Contains(err.Error(), "Duplicate entry") {
            return errors.New(errors.ErrConflict, "caller-ID already exists")
        }
        return errors.Wrap(err, errors.ErrDatabase, "failed to insert caller-ID")
    }
    return nil
}

// Update mutates the static configuration of a caller-ID (admin-only).
func (s *Store) Update(ctx context.Context, c *CallerID) error {
    if c.HourlyCap > c.DailyCap {
        return errors.New(errors.ErrInvalidInput, "hourly_cap must not exceed daily_cap")
    }

    result, err := s.db.ExecContext(ctx, `
        UPDATE caller_ids
        SET carrier = ?, hourly_cap = ?, daily_cap = ?, active = ?, metadata = ?, updated_at = NOW()
        WHERE number = ?`,
        c.Carrier, c.HourlyCap, c.DailyCap, c.Active, c.Metadata, c.Number)
    if err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "failed to update caller-ID")
    }
    rows, _ := result.RowsAffected()
    if rows == 0 {
        return errors.New(errors.ErrNotFound, "caller-ID not found")
    }
    return nil
}

// Deactivate logically removes a caller-ID from the rotation (admin-only).
func (s *Store) Deactivate(ctx context.Context, number string) error {
    result, err := s.db.ExecContext(ctx,
        "UPDATE caller_ids SET active = 0, updated_at = NOW() WHERE number = ?", number)
    if err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "failed to deactivate caller-ID")
    }
    rows, _ := result.RowsAffected()
    if rows == 0 {
        return errors.New(errors.ErrNotFound, "caller-ID not found")
    }
    return nil
}

// Delete physically removes a caller-ID (admin-only).
func (s *Store) Delete(ctx context.Context, number string) error {
    result, err := s.db.ExecContext(ctx, "DELETE FROM caller_ids WHERE number = ?", number)
    if err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "failed to delete caller-ID")
    }
    rows, _ := result.RowsAffected()
    if rows == 0 {
        return errors.New(errors.ErrNotFound, "caller-ID not found")
    }
    return nil
}

// List returns every caller-ID, active or not, for the admin CLI.
func (s *Store) List(ctx context.Context) ([]CallerID, error) {
    rows, err := s.db.QueryContext(ctx, `
        SELECT number, area_code, carrier, hourly_cap, daily_cap,
               last_used_at, active, metadata, created_at, updated_at
        FROM caller_ids
        ORDER BY number ASC`)
    if err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "failed to list caller-IDs")
    }
    defer rows.Close()

    var results []CallerID
    for rows.Next() {
        var c CallerID
        var areaCodeNull sql.NullString
        if err := rows.Scan(&c.Number, &areaCodeNull, &c.Carrier, &c.HourlyCap,
            &c.DailyCap, &c.LastUsedAt, &c.Active, &c.Metadata, &c.CreatedAt, &c.UpdatedAt); err != nil {
            return nil, errors.Wrap(err, errors.ErrDatabase, "failed to scan caller-ID row")
        }
        c.AreaCode = areaCodeNull.String
        results = append(results, c)
    }
    return results, rows.Err()
}

// RecordAllocation appends one row to the allocation history table. It is
// invoked off the allocation critical path by a background writer (see
// internal/allocator.HistoryWriter) so a slow insert never delays a
// dialer waiting on Allocate.
func (s *Store) RecordAllocation(ctx context.Context, h AllocationHistory) error {
    _, err := s.db.ExecContext(ctx, `
        INSERT INTO allocation_history (number, destination, campaign, agent, outcome, latency_ms)
        VALUES (?, ?, ?, ?, ?, ?)`,
        nullableString(h.Number), h.Destination, h.Campaign, h.Agent, h.Outcome, h.LatencyMS)
    if err != nil {
        logger.WithContext(ctx).WithError(err).Warn("failed to record allocation history")
        return errors.Wrap(err, errors.ErrDatabase, "failed to record allocation history")
    }
    return nil
}

func nullableString(s string) interface{} {
    if s == "" {
        return nil
    }
    return s
}
