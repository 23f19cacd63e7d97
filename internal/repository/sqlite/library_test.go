package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jsedeno/anitrack/internal/apperror"
	"github.com/jsedeno/anitrack/internal/model"
)

// addTestEntry inserts an entry for the given user and fails the test on error.
func addTestEntry(t *testing.T, db *DB, userID string, animeID int, status model.Status) *model.LibraryEntry {
	t.Helper()
	entry := &model.LibraryEntry{
		UserID:  userID,
		AnimeID: animeID,
		Title:   "test anime",
		Status:  status,
	}
	if err := db.Insert(context.Background(), entry); err != nil {
		t.Fatalf("failed to insert test entry: %v", err)
	}
	return entry
}

// assertStatsInvariant checks total == sum of per-status counts == entry count.
func assertStatsInvariant(t *testing.T, db *DB, userID string) *model.Stats {
	t.Helper()
	stats, err := db.Stats(context.Background(), userID)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	sum := stats.Watching + stats.Completed + stats.PlanToWatch + stats.OnHold + stats.Dropped
	if stats.TotalAnime != sum {
		t.Errorf("stats invariant broken: total=%d, sum of counts=%d", stats.TotalAnime, sum)
	}
	entries, err := db.List(context.Background(), userID)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if stats.TotalAnime != len(entries) {
		t.Errorf("stats invariant broken: total=%d, entries=%d", stats.TotalAnime, len(entries))
	}
	return stats
}

func TestInsert_SetsIDAndRecomputesStats(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "lib@example.com")

	entry := addTestEntry(t, db, user.ID, 5114, model.StatusPlanToWatch)

	if entry.ID == "" {
		t.Error("Insert() did not set entry.ID")
	}
	if entry.AddedAt.IsZero() || entry.UpdatedAt.IsZero() {
		t.Error("Insert() did not set timestamps")
	}

	stats := assertStatsInvariant(t, db, user.ID)
	if stats.TotalAnime != 1 || stats.PlanToWatch != 1 {
		t.Errorf("stats after insert = %+v, want total=1 planToWatch=1", stats)
	}
	if stats.TotalEpisodes != 0 {
		t.Errorf("TotalEpisodes = %d, want 0 (new entries start at episode 0)", stats.TotalEpisodes)
	}
}

func TestInsert_DuplicateAnimeRejected(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "lib@example.com")
	addTestEntry(t, db, user.ID, 5114, model.StatusWatching)

	dup := &model.LibraryEntry{
		UserID:  user.ID,
		AnimeID: 5114,
		Title:   "same anime again",
		Status:  model.StatusDropped,
	}
	err := db.Insert(context.Background(), dup)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Insert() duplicate error = %v, want ErrConflict", err)
	}

	// Existing entry and stats must be untouched by the rejected insert.
	got, err := db.GetByAnimeID(context.Background(), user.ID, 5114)
	if err != nil {
		t.Fatalf("GetByAnimeID() error = %v", err)
	}
	if got.Status != model.StatusWatching {
		t.Errorf("existing entry status = %q, want %q", got.Status, model.StatusWatching)
	}
	stats := assertStatsInvariant(t, db, user.ID)
	if stats.TotalAnime != 1 || stats.Watching != 1 {
		t.Errorf("stats after rejected insert = %+v, want total=1 watching=1", stats)
	}
}

func TestInsert_SameAnimeDifferentUsers(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")

	addTestEntry(t, db, alice.ID, 5114, model.StatusWatching)
	// Uniqueness is per user, not global.
	addTestEntry(t, db, bob.ID, 5114, model.StatusCompleted)

	aliceStats := assertStatsInvariant(t, db, alice.ID)
	bobStats := assertStatsInvariant(t, db, bob.ID)
	if aliceStats.Watching != 1 || bobStats.Completed != 1 {
		t.Errorf("per-user stats wrong: alice=%+v bob=%+v", aliceStats, bobStats)
	}
}

func TestUpdate_RecomputesStats(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "lib@example.com")
	entry := addTestEntry(t, db, user.ID, 5114, model.StatusWatching)

	entry.Status = model.StatusCompleted
	entry.CurrentEpisode = 64
	now := time.Now()
	entry.CompletedAt = &now
	entry.UpdatedAt = now
	if err := db.Update(context.Background(), entry); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	stats := assertStatsInvariant(t, db, user.ID)
	if stats.Watching != 0 || stats.Completed != 1 {
		t.Errorf("stats after update = %+v, want watching=0 completed=1", stats)
	}
	if stats.TotalEpisodes != 64 {
		t.Errorf("TotalEpisodes = %d, want 64", stats.TotalEpisodes)
	}
	// 64 episodes * 24 min / 1440 min per day
	wantDays := 64.0 * 24.0 / 1440.0
	if stats.DaysWatched != wantDays {
		t.Errorf("DaysWatched = %v, want %v", stats.DaysWatched, wantDays)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "lib@example.com")

	ghost := &model.LibraryEntry{
		ID:        "no-such-entry",
		UserID:    user.ID,
		Status:    model.StatusWatching,
		UpdatedAt: time.Now(),
	}
	err := db.Update(context.Background(), ghost)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestUpdate_CannotTouchAnotherUsersEntry(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")
	entry := addTestEntry(t, db, alice.ID, 5114, model.StatusWatching)

	stolen := *entry
	stolen.UserID = bob.ID
	stolen.Status = model.StatusDropped
	err := db.Update(context.Background(), &stolen)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Update() across users error = %v, want ErrNotFound", err)
	}
}

func TestDelete_RecomputesStatsAndIsNotRepeatable(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "lib@example.com")
	entry := addTestEntry(t, db, user.ID, 5114, model.StatusWatching)

	if err := db.Delete(context.Background(), user.ID, entry.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	stats := assertStatsInvariant(t, db, user.ID)
	if stats.TotalAnime != 0 || stats.Watching != 0 || stats.TotalEpisodes != 0 {
		t.Errorf("stats after delete = %+v, want all zero", stats)
	}

	// Removing the same entry again is NotFound and leaves stats unchanged.
	err := db.Delete(context.Background(), user.ID, entry.ID)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("second Delete() error = %v, want ErrNotFound", err)
	}
	after := assertStatsInvariant(t, db, user.ID)
	if *after != *stats {
		t.Errorf("stats changed by failed delete: before=%+v after=%+v", stats, after)
	}
}

func TestList_OrderedByUpdatedAtDescending(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "lib@example.com")

	first := addTestEntry(t, db, user.ID, 1, model.StatusWatching)
	second := addTestEntry(t, db, user.ID, 2, model.StatusWatching)
	third := addTestEntry(t, db, user.ID, 3, model.StatusWatching)

	// Touch the oldest entry so it becomes the most recently updated.
	first.CurrentEpisode = 5
	first.UpdatedAt = time.Now().Add(time.Second)
	if err := db.Update(context.Background(), first); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	entries, err := db.List(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("List() returned %d entries, want 3", len(entries))
	}
	if entries[0].ID != first.ID {
		t.Errorf("List()[0].ID = %q, want most recently updated %q", entries[0].ID, first.ID)
	}
	if entries[1].ID != third.ID || entries[2].ID != second.ID {
		t.Errorf("List() order = [%q %q %q], want [%q %q %q]",
			entries[0].ID, entries[1].ID, entries[2].ID,
			first.ID, third.ID, second.ID)
	}
}

func TestGetByAnimeID_NotFound(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "lib@example.com")

	_, err := db.GetByAnimeID(context.Background(), user.ID, 99999)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("GetByAnimeID() error = %v, want ErrNotFound", err)
	}
}

func TestNullableFieldsRoundTrip(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "lib@example.com")

	episodes := 12
	score := 8
	entry := &model.LibraryEntry{
		UserID:        user.ID,
		AnimeID:       20,
		Title:         "Naruto",
		Status:        model.StatusWatching,
		TotalEpisodes: &episodes,
		Score:         &score,
		Notes:         "rewatch",
	}
	if err := db.Insert(context.Background(), entry); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, err := db.GetByID(context.Background(), user.ID, entry.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.TotalEpisodes == nil || *got.TotalEpisodes != 12 {
		t.Errorf("TotalEpisodes = %v, want 12", got.TotalEpisodes)
	}
	if got.Score == nil || *got.Score != 8 {
		t.Errorf("Score = %v, want 8", got.Score)
	}
	if got.CompletedAt != nil {
		t.Errorf("CompletedAt = %v, want nil", got.CompletedAt)
	}
	if got.Notes != "rewatch" {
		t.Errorf("Notes = %q, want %q", got.Notes, "rewatch")
	}

	// And the nil case stays nil.
	bare := addTestEntry(t, db, user.ID, 21, model.StatusPlanToWatch)
	gotBare, err := db.GetByID(context.Background(), user.ID, bare.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if gotBare.TotalEpisodes != nil || gotBare.Score != nil {
		t.Errorf("bare entry nullables = (%v, %v), want (nil, nil)", gotBare.TotalEpisodes, gotBare.Score)
	}
}
