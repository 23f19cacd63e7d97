package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jsedeno/anitrack/internal/apperror"
	"github.com/jsedeno/anitrack/internal/model"
	"github.com/jsedeno/anitrack/internal/repository"
)

// Score bounds for rated entries.
const (
	MinScore = 1
	MaxScore = 10
)

// LibraryService owns a user's tracked-anime collection and keeps the
// denormalized stats consistent with it.
//
// Every mutation is a read-modify-recompute-write sequence. That sequence is
// not atomic on its own, so the service serializes mutations per user with a
// keyed mutex: two concurrent updates for the same user queue behind each
// other, while different users proceed fully in parallel. No mutable state
// crosses user boundaries.
type LibraryService struct {
	repo   repository.LibraryRepository
	logger *slog.Logger

	mu    sync.Mutex // guards locks
	locks map[string]*sync.Mutex
}

// NewLibraryService creates a LibraryService.
func NewLibraryService(repo repository.LibraryRepository, logger *slog.Logger) *LibraryService {
	return &LibraryService{
		repo:   repo,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// userLock returns the mutex serializing mutations for one user, creating it
// on first use. Locks are never removed; the map grows with the number of
// distinct active users, which is bounded and small per process.
func (s *LibraryService) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// UpdateEntry carries a partial update. Nil means "leave unchanged"; for
// Notes a nil pointer leaves them alone while an empty string clears them.
type UpdateEntry struct {
	Status         *model.Status
	Score          *int
	CurrentEpisode *int
	Notes          *string
}

// Add creates a library entry for an anime from the catalog, starting at
// episode zero. One entry per (user, anime): a second add for the same
// catalog ID is rejected with ErrConflict and changes nothing.
func (s *LibraryService) Add(ctx context.Context, userID string, anime model.CatalogAnime, status model.Status) (*model.LibraryEntry, error) {
	if userID == "" {
		return nil, apperror.NotAuthenticated()
	}
	if anime.ID <= 0 {
		return nil, apperror.ValidationFailed("animeId", "anime id is required")
	}
	if anime.Title == "" {
		return nil, apperror.ValidationFailed("title", "title is required")
	}
	if status == "" {
		status = model.StatusPlanToWatch
	}
	if !status.Valid() {
		return nil, apperror.ValidationFailed("status", fmt.Sprintf("invalid status %q", status))
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	entry := &model.LibraryEntry{
		UserID:         userID,
		AnimeID:        anime.ID,
		Title:          anime.Title,
		ImageURL:       anime.ImageURL,
		Status:         status,
		CurrentEpisode: 0,
		TotalEpisodes:  anime.Episodes,
	}
	if status == model.StatusCompleted {
		now := time.Now()
		entry.CompletedAt = &now
	}

	// Insert and stats recompute commit together in the repository.
	if err := s.repo.Insert(ctx, entry); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		s.logger.Error("failed to add library entry",
			slog.String("userID", userID),
			slog.Int("animeID", anime.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("adding library entry: %w", err)
	}

	s.logger.Info("library entry added",
		slog.String("userID", userID),
		slog.Int("animeID", anime.ID),
		slog.String("status", string(status)),
	)
	return entry, nil
}

// Update applies a partial update to an entry.
//
// Rules, in order:
//   - only supplied fields change;
//   - setting CurrentEpisode to at least TotalEpisodes (when the total is
//     known and positive) force-transitions the entry to completed, even if
//     the caller didn't ask for a status change;
//   - if nothing effective changed, nothing is persisted — UpdatedAt keeps
//     its old value and no stats write happens;
//   - otherwise UpdatedAt is refreshed and the write plus stats recompute
//     commit in one transaction.
func (s *LibraryService) Update(ctx context.Context, userID, entryID string, changes UpdateEntry) (*model.LibraryEntry, error) {
	if userID == "" {
		return nil, apperror.NotAuthenticated()
	}
	if err := validateChanges(changes); err != nil {
		return nil, err
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	entry, err := s.repo.GetByID(ctx, userID, entryID)
	if err != nil {
		return nil, err
	}

	changed := false

	if changes.Status != nil && *changes.Status != entry.Status {
		entry.Status = *changes.Status
		if entry.Status == model.StatusCompleted && entry.CompletedAt == nil {
			now := time.Now()
			entry.CompletedAt = &now
		}
		changed = true
	}
	if changes.Score != nil && (entry.Score == nil || *entry.Score != *changes.Score) {
		v := *changes.Score
		entry.Score = &v
		changed = true
	}
	if changes.Notes != nil && *changes.Notes != entry.Notes {
		entry.Notes = *changes.Notes
		changed = true
	}
	if changes.CurrentEpisode != nil && *changes.CurrentEpisode != entry.CurrentEpisode {
		entry.CurrentEpisode = *changes.CurrentEpisode
		changed = true

		// Auto-complete: reaching the final episode finishes the show.
		if entry.TotalEpisodes != nil && *entry.TotalEpisodes > 0 &&
			entry.CurrentEpisode >= *entry.TotalEpisodes &&
			entry.Status != model.StatusCompleted {
			entry.Status = model.StatusCompleted
			now := time.Now()
			entry.CompletedAt = &now
		}
	}

	if !changed {
		// True no-op: don't touch persistence, don't advance UpdatedAt.
		return entry, nil
	}

	entry.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, entry); err != nil {
		s.logger.Error("failed to update library entry",
			slog.String("userID", userID),
			slog.String("entryID", entryID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating library entry: %w", err)
	}

	s.logger.Info("library entry updated",
		slog.String("userID", userID),
		slog.String("entryID", entryID),
		slog.String("status", string(entry.Status)),
	)
	return entry, nil
}

// Remove deletes an entry. The repository recomputes stats over the
// remaining set in the same transaction, so after Remove returns, stats
// match the post-removal library exactly. Removing an unknown entry is
// ErrNotFound and leaves everything as it was.
func (s *LibraryService) Remove(ctx context.Context, userID, entryID string) error {
	if userID == "" {
		return apperror.NotAuthenticated()
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.repo.Delete(ctx, userID, entryID); err != nil {
		return err
	}

	s.logger.Info("library entry removed",
		slog.String("userID", userID),
		slog.String("entryID", entryID),
	)
	return nil
}

// IsPresent reports whether the user already tracks a catalog ID.
func (s *LibraryService) IsPresent(ctx context.Context, userID string, animeID int) (bool, error) {
	_, err := s.repo.GetByAnimeID(ctx, userID, animeID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("checking library entry: %w", err)
	}
	return true, nil
}

// StatusOf returns the tracked status for a catalog ID, or nil if the anime
// isn't in the library. Absence is not an error.
func (s *LibraryService) StatusOf(ctx context.Context, userID string, animeID int) (*model.Status, error) {
	entry, err := s.Get(ctx, userID, animeID)
	if err != nil || entry == nil {
		return nil, err
	}
	status := entry.Status
	return &status, nil
}

// Get returns the entry for a catalog ID, or nil if not tracked.
func (s *LibraryService) Get(ctx context.Context, userID string, animeID int) (*model.LibraryEntry, error) {
	entry, err := s.repo.GetByAnimeID(ctx, userID, animeID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting library entry: %w", err)
	}
	return entry, nil
}

// List returns the user's library ordered by last update, newest first, as a
// fully materialized snapshot. status filters the result; StatusAll (or the
// empty string) means everything.
func (s *LibraryService) List(ctx context.Context, userID string, status model.Status) ([]model.LibraryEntry, error) {
	entries, err := s.repo.List(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list library",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing library: %w", err)
	}

	if status == "" || status == model.StatusAll {
		return entries, nil
	}

	filtered := make([]model.LibraryEntry, 0, len(entries))
	for _, e := range entries {
		if e.Status == status {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// Stats returns the user's aggregate counters.
func (s *LibraryService) Stats(ctx context.Context, userID string) (*model.Stats, error) {
	stats, err := s.repo.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func validateChanges(changes UpdateEntry) error {
	if changes.Status != nil && !changes.Status.Valid() {
		return apperror.ValidationFailed("status", fmt.Sprintf("invalid status %q", *changes.Status))
	}
	if changes.Score != nil && (*changes.Score < MinScore || *changes.Score > MaxScore) {
		return apperror.ValidationFailed("score",
			fmt.Sprintf("score must be between %d and %d", MinScore, MaxScore))
	}
	if changes.CurrentEpisode != nil && *changes.CurrentEpisode < 0 {
		return apperror.ValidationFailed("currentEpisode", "current episode cannot be negative")
	}
	return nil
}
