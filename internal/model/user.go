// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// Identity is local email/password — the email is the login handle and must be
// unique. We generate our own internal string ID (xid) rather than exposing
// the email or a numeric rowid as the primary key.
//
// PasswordHash holds the bcrypt output. bcrypt embeds its own random salt and
// cost in the hash string, so a single column is enough — no separate salt.
// The plaintext password is never stored anywhere.
type User struct {
	ID           string    `json:"id"         db:"id"`
	Username     string    `json:"username"   db:"username"`
	Email        string    `json:"email"      db:"email"`
	PasswordHash string    `json:"-"          db:"password_hash"` // never serialized
	AvatarPath   string    `json:"avatarPath" db:"avatar_path"`   // local file path, may be empty
	Bio          string    `json:"bio"        db:"bio"`
	CreatedAt    time.Time `json:"createdAt"  db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt"  db:"updated_at"`
}

// episodeMinutes is the assumed runtime of one episode, used to derive
// Stats.DaysWatched from the episode total.
const episodeMinutes = 24.0

// Stats is the denormalized per-user aggregate over the library.
//
// Exactly one Stats row exists per user (created empty at registration).
// The counters are always recomputed from the full entry set after every
// library mutation — never patched incrementally — so the invariant
//
//	TotalAnime == Watching+Completed+PlanToWatch+OnHold+Dropped == len(entries)
//
// holds between any two completed operations and cannot drift.
type Stats struct {
	TotalAnime    int     `json:"totalAnime"    db:"total_anime"`
	Watching      int     `json:"watching"      db:"watching"`
	Completed     int     `json:"completed"     db:"completed"`
	PlanToWatch   int     `json:"planToWatch"   db:"plan_to_watch"`
	OnHold        int     `json:"onHold"        db:"on_hold"`
	Dropped       int     `json:"dropped"       db:"dropped"`
	TotalEpisodes int     `json:"totalEpisodes" db:"total_episodes"`
	DaysWatched   float64 `json:"daysWatched"   db:"days_watched"`
}

// Recalculate resets every counter and rebuilds the aggregate from the full
// entry set. O(n) per mutation is a deliberate trade: it eliminates the whole
// class of increment/decrement drift bugs an incremental approach invites.
func (s *Stats) Recalculate(entries []LibraryEntry) {
	s.TotalAnime = len(entries)
	s.Watching = 0
	s.Completed = 0
	s.PlanToWatch = 0
	s.OnHold = 0
	s.Dropped = 0
	s.TotalEpisodes = 0

	for _, e := range entries {
		switch e.Status {
		case StatusWatching:
			s.Watching++
		case StatusCompleted:
			s.Completed++
		case StatusPlanToWatch:
			s.PlanToWatch++
		case StatusOnHold:
			s.OnHold++
		case StatusDropped:
			s.Dropped++
		}
		s.TotalEpisodes += e.CurrentEpisode
	}

	// 24 minutes per episode, 1440 minutes per day.
	s.DaysWatched = float64(s.TotalEpisodes) * episodeMinutes / (60.0 * 24.0)
}
