package model

import "time"

// Status is the watch state of a library entry.
//
// StatusAll is a filter sentinel for list queries ("show everything") and is
// never persisted on an entry — Valid() rejects it for writes.
type Status string

const (
	StatusWatching    Status = "watching"
	StatusCompleted   Status = "completed"
	StatusPlanToWatch Status = "plan_to_watch"
	StatusOnHold      Status = "on_hold"
	StatusDropped     Status = "dropped"
	StatusAll         Status = "all"
)

// Valid reports whether s is a persistable status. StatusAll and anything
// unknown are not.
func (s Status) Valid() bool {
	switch s {
	case StatusWatching, StatusCompleted, StatusPlanToWatch, StatusOnHold, StatusDropped:
		return true
	}
	return false
}

// LibraryEntry is one tracked anime in a user's library.
//
// At most one entry exists per (UserID, AnimeID) pair — adding an anime that
// is already tracked is rejected as a conflict, not merged.
//
// Score and TotalEpisodes are pointers because "not rated" and "episode count
// unknown" (still airing) are meaningful states distinct from zero.
type LibraryEntry struct {
	ID             string     `json:"id"             db:"id"`
	UserID         string     `json:"-"              db:"user_id"`
	AnimeID        int        `json:"animeId"        db:"anime_id"` // catalog (MyAnimeList) ID
	Title          string     `json:"title"          db:"title"`
	ImageURL       string     `json:"imageUrl"       db:"image_url"`
	Status         Status     `json:"status"         db:"status"`
	CurrentEpisode int        `json:"currentEpisode" db:"current_episode"`
	TotalEpisodes  *int       `json:"totalEpisodes"  db:"total_episodes"`
	Score          *int       `json:"score"          db:"score"` // 1-10, nil = unrated
	Notes          string     `json:"notes"          db:"notes"`
	AddedAt        time.Time  `json:"addedAt"        db:"added_at"`
	CompletedAt    *time.Time `json:"completedAt"    db:"completed_at"`
	UpdatedAt      time.Time  `json:"updatedAt"      db:"updated_at"`
}

// CatalogAnime is the shape the application needs from the external catalog:
// enough to create a library entry plus the fields the browse surface shows.
// The catalog's full schema (genres, studios, airing dates, ...) is
// deliberately not modeled here.
type CatalogAnime struct {
	ID       int      `json:"id"`
	Title    string   `json:"title"`
	ImageURL string   `json:"imageUrl"`
	Episodes *int     `json:"episodes"` // nil when the catalog doesn't know yet
	Score    *float64 `json:"score"`    // community average, nil when unrated
	Synopsis string   `json:"synopsis"`
}
