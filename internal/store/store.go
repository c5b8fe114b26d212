// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/nsavelyev/maitre/internal/domain"
)

// Repository defines the interface for persisting user profiles, chat
// history, and in-progress booking fields.
type Repository interface {
	// GetProfile retrieves a user's saved profile, or nil if none exists.
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)

	// SetProfile creates or updates a user's profile.
	SetProfile(ctx context.Context, profile *domain.Profile) error

	// DeleteProfile removes a user's profile. No-op if none exists.
	DeleteProfile(ctx context.Context, userID string) error

	// AppendHistory records one chat message, pruning the oldest entries
	// beyond the configured history limit.
	AppendHistory(ctx context.Context, userID, role, content string) error

	// GetHistory returns up to limit messages for a user, most-recent-last.
	GetHistory(ctx context.Context, userID string, limit int) ([]domain.HistoryMessage, error)

	// GetPendingBooking retrieves the in-progress booking for a user, or
	// nil if none exists.
	GetPendingBooking(ctx context.Context, userID string) (*domain.BookingRequest, error)

	// SetPendingBooking creates or replaces the in-progress booking.
	SetPendingBooking(ctx context.Context, userID string, booking *domain.BookingRequest) error

	// ClearPendingBooking removes the in-progress booking for a user.
	ClearPendingBooking(ctx context.Context, userID string) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
