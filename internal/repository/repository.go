// Package repository defines the persistence interfaces the service layer
// programs against. The sqlite subpackage is the only implementation today;
// keeping the interfaces here means services never import a driver.
package repository

import (
	"context"

	"github.com/jsedeno/anitrack/internal/model"
)

// UserRepository persists accounts and their stats aggregate.
//
// Create and DeleteUser are transactional across the user row and its
// dependents: Create inserts the user together with a zeroed stats row, and
// DeleteUser removes library entries, stats, and the user inside one
// transaction (an explicit application-level cascade — we don't lean on the
// database to do it).
//
// The user-prefixed method names leave room for both repositories to be
// implemented on one sqlite receiver without the accessors colliding.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateProfile(ctx context.Context, user *model.User) error
	DeleteUser(ctx context.Context, id string) error
}

// LibraryRepository persists library entries and keeps the owning user's
// stats row consistent with them.
//
// Every mutation (Insert, Update, Delete) performs the entry write AND a full
// stats recompute over the post-mutation entry set inside one transaction.
// A failure at any point rolls back both, so readers never observe a stats
// row that matches neither the pre- nor the post-mutation library.
type LibraryRepository interface {
	Insert(ctx context.Context, entry *model.LibraryEntry) error
	Update(ctx context.Context, entry *model.LibraryEntry) error
	Delete(ctx context.Context, userID, entryID string) error

	// Reads. Absence is reported as apperror.ErrNotFound by the Get methods;
	// List returns a fully materialized snapshot ordered by UpdatedAt
	// descending so presentation-layer sorts are deterministic.
	GetByID(ctx context.Context, userID, entryID string) (*model.LibraryEntry, error)
	GetByAnimeID(ctx context.Context, userID string, animeID int) (*model.LibraryEntry, error)
	List(ctx context.Context, userID string) ([]model.LibraryEntry, error)
	Stats(ctx context.Context, userID string) (*model.Stats, error)
}
