package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nsavelyev/maitre/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db         *sql.DB
	maxHistory int
}

// NewSQLite creates a new SQLite-backed repository. maxHistory bounds how
// many chat messages are retained per user.
func NewSQLite(dbPath string, maxHistory int) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, maxHistory: maxHistory}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS user_profiles (
		user_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_user ON chat_history(user_id, id);

	CREATE TABLE IF NOT EXISTS pending_bookings (
		user_id TEXT PRIMARY KEY,
		restaurant TEXT NOT NULL DEFAULT '',
		res_date TEXT NOT NULL DEFAULT '',
		res_time TEXT NOT NULL DEFAULT '',
		party_size INTEGER NOT NULL DEFAULT 0,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetProfile retrieves a user's saved profile, or nil if none exists.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	query := `SELECT user_id, name, email, phone, created_at, updated_at FROM user_profiles WHERE user_id = ?`
	row := s.db.QueryRowContext(ctx, query, userID)

	var p domain.Profile
	var createdAt, updatedAt int64
	err := row.Scan(&p.UserID, &p.Name, &p.Email, &p.Phone, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile row: %w", err)
	}

	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}

// SetProfile creates or updates a user's profile.
func (s *SQLiteStore) SetProfile(ctx context.Context, profile *domain.Profile) error {
	now := time.Now().Unix()
	query := `
	INSERT INTO user_profiles (user_id, name, email, phone, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		name = excluded.name,
		email = excluded.email,
		phone = excluded.phone,
		updated_at = excluded.updated_at`

	err := s.withConflictRetry(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, query, profile.UserID, profile.Name, profile.Email, profile.Phone, now, now)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// DeleteProfile removes a user's profile.
func (s *SQLiteStore) DeleteProfile(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_profiles WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}

// AppendHistory records one chat message and prunes entries beyond the
// retention limit.
func (s *SQLiteStore) AppendHistory(ctx context.Context, userID, role, content string) error {
	err := s.withConflictRetry(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx,
			`INSERT INTO chat_history (user_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
			userID, role, content, time.Now().Unix())
		return execErr
	})
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	prune := `
	DELETE FROM chat_history WHERE user_id = ? AND id NOT IN (
		SELECT id FROM chat_history WHERE user_id = ? ORDER BY id DESC LIMIT ?
	)`
	if _, err := s.db.ExecContext(ctx, prune, userID, userID, s.maxHistory); err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	return nil
}

// GetHistory returns up to limit messages for a user, most-recent-last.
func (s *SQLiteStore) GetHistory(ctx context.Context, userID string, limit int) ([]domain.HistoryMessage, error) {
	if limit <= 0 || limit > s.maxHistory {
		limit = s.maxHistory
	}
	query := `
	SELECT role, content, created_at FROM (
		SELECT id, role, content, created_at FROM chat_history
		WHERE user_id = ? ORDER BY id DESC LIMIT ?
	) ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var msgs []domain.HistoryMessage
	for rows.Next() {
		var m domain.HistoryMessage
		var createdAt int64
		if err := rows.Scan(&m.Role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		m.UserID = userID
		m.CreatedAt = time.Unix(createdAt, 0)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return msgs, nil
}

// GetPendingBooking retrieves the in-progress booking, or nil if none exists.
func (s *SQLiteStore) GetPendingBooking(ctx context.Context, userID string) (*domain.BookingRequest, error) {
	query := `SELECT restaurant, res_date, res_time, party_size, name, email, phone FROM pending_bookings WHERE user_id = ?`
	row := s.db.QueryRowContext(ctx, query, userID)

	var b domain.BookingRequest
	err := row.Scan(&b.Restaurant, &b.Date, &b.Time, &b.PartySize, &b.Name, &b.Email, &b.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan pending booking row: %w", err)
	}
	return &b, nil
}

// SetPendingBooking creates or replaces the in-progress booking.
func (s *SQLiteStore) SetPendingBooking(ctx context.Context, userID string, booking *domain.BookingRequest) error {
	query := `
	INSERT INTO pending_bookings (user_id, restaurant, res_date, res_time, party_size, name, email, phone, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		restaurant = excluded.restaurant,
		res_date = excluded.res_date,
		res_time = excluded.res_time,
		party_size = excluded.party_size,
		name = excluded.name,
		email = excluded.email,
		phone = excluded.phone,
		updated_at = excluded.updated_at`

	err := s.withConflictRetry(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, query,
			userID, booking.Restaurant, booking.Date, booking.Time,
			booking.PartySize, booking.Name, booking.Email, booking.Phone,
			time.Now().Unix())
		return execErr
	})
	if err != nil {
		return fmt.Errorf("upsert pending booking: %w", err)
	}
	return nil
}

// ClearPendingBooking removes the in-progress booking for a user.
func (s *SQLiteStore) ClearPendingBooking(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_bookings WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear pending booking: %w", err)
	}
	return nil
}

const (
	conflictRetryAttempts = 3
	conflictRetryBase     = 50 * time.Millisecond
)

// withConflictRetry retries a write with exponential backoff on SQLITE_BUSY
// or "database is locked" errors.
func (s *SQLiteStore) withConflictRetry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i < conflictRetryAttempts; i++ {
		err = fn()
		if err == nil || !isConflictError(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(conflictRetryBase * time.Duration(1<<i)):
		}
	}
	return err
}

// isConflictError checks for SQLite concurrency errors that warrant a retry.
func isConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
