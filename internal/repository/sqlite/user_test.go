package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/jsedeno/anitrack/internal/apperror"
	"github.com/jsedeno/anitrack/internal/model"
)

// newTestDB returns a DB backed by an in-memory SQLite database.
// Each call gets a fresh, isolated database that vanishes on Close.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser creates a user and fails the test if it errors.
func createTestUser(t *testing.T, db *DB, email string) *model.User {
	t.Helper()
	user := &model.User{
		Username:     "testuser",
		Email:        email,
		PasswordHash: "$2a$04$notarealhashbutlooks.like.one",
	}
	if err := db.Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

func TestUserCreate(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "$2a$04$hash",
	}
	if err := db.Create(context.Background(), user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if user.ID == "" {
		t.Error("Create() did not set user.ID")
	}
	if user.CreatedAt.IsZero() {
		t.Error("Create() did not set user.CreatedAt")
	}

	// Registration must also create the zeroed stats row, atomically.
	stats, err := db.Stats(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("Stats() after Create error = %v", err)
	}
	if stats.TotalAnime != 0 || stats.TotalEpisodes != 0 {
		t.Errorf("new user stats = %+v, want all zero", stats)
	}
}

func TestUserCreate_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "alice@example.com")

	dup := &model.User{
		Username:     "alice2",
		Email:        "alice@example.com",
		PasswordHash: "$2a$04$other",
	}
	err := db.Create(context.Background(), dup)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Create() with duplicate email error = %v, want ErrConflict", err)
	}
}

func TestUserCreate_EmailMatchIsCaseSensitive(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "alice@example.com")

	// Exact-match semantics: a different casing is a different account.
	other := &model.User{
		Username:     "shouty",
		Email:        "ALICE@example.com",
		PasswordHash: "$2a$04$other",
	}
	if err := db.Create(context.Background(), other); err != nil {
		t.Fatalf("Create() with different-case email error = %v", err)
	}
}

func TestGetUserByEmail(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, "bob@example.com")

	user, err := db.GetUserByEmail(context.Background(), "bob@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if user.ID != created.ID {
		t.Errorf("GetUserByEmail() ID = %q, want %q", user.ID, created.ID)
	}

	_, err = db.GetUserByEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("GetUserByEmail() for unknown email error = %v, want ErrNotFound", err)
	}
}

func TestGetUserByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), "no-such-id")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("GetUserByID() error = %v, want ErrNotFound", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "carol@example.com")

	user.Username = "carol-renamed"
	user.Bio = "watches too much anime"
	user.AvatarPath = "data/avatars/" + user.ID + ".jpg"
	if err := db.UpdateProfile(context.Background(), user); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}

	got, err := db.GetUserByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if got.Username != "carol-renamed" || got.Bio != "watches too much anime" {
		t.Errorf("profile not persisted: got %+v", got)
	}
	if got.AvatarPath != user.AvatarPath {
		t.Errorf("AvatarPath = %q, want %q", got.AvatarPath, user.AvatarPath)
	}
}

func TestUpdateProfile_NotFound(t *testing.T) {
	db := newTestDB(t)

	ghost := &model.User{ID: "no-such-id", Username: "ghost"}
	err := db.UpdateProfile(context.Background(), ghost)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("UpdateProfile() error = %v, want ErrNotFound", err)
	}
}

func TestUserDelete_CascadesToStatsAndEntries(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "dave@example.com")

	entry := &model.LibraryEntry{
		UserID:  user.ID,
		AnimeID: 5114,
		Title:   "Fullmetal Alchemist: Brotherhood",
		Status:  model.StatusWatching,
	}
	if err := db.Insert(context.Background(), entry); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if err := db.DeleteUser(context.Background(), user.ID); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}

	if _, err := db.GetUserByID(context.Background(), user.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID() after delete error = %v, want ErrNotFound", err)
	}
	if _, err := db.Stats(context.Background(), user.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Stats() after delete error = %v, want ErrNotFound", err)
	}
	entries, err := db.List(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("List() after delete error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("List() after delete returned %d entries, want 0", len(entries))
	}

	// Second delete: the user is gone.
	if err := db.DeleteUser(context.Background(), user.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second DeleteUser() error = %v, want ErrNotFound", err)
	}
}
