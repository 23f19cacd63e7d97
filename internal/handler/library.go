package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jsedeno/anitrack/internal/apperror"
	"github.com/jsedeno/anitrack/internal/auth"
	"github.com/jsedeno/anitrack/internal/model"
	"github.com/jsedeno/anitrack/internal/service"
)

// LibraryHandler exposes the user's tracked-anime collection. All routes are
// behind RequireAuth; the user ID always comes from the request context.
type LibraryHandler struct {
	library *service.LibraryService
	logger  *slog.Logger
}

// NewLibraryHandler creates a LibraryHandler.
func NewLibraryHandler(library *service.LibraryService, logger *slog.Logger) *LibraryHandler {
	return &LibraryHandler{library: library, logger: logger}
}

type addEntryRequest struct {
	AnimeID  int          `json:"animeId"`
	Title    string       `json:"title"`
	ImageURL string       `json:"imageUrl"`
	Episodes *int         `json:"episodes"`
	Status   model.Status `json:"status"`
}

type updateEntryRequest struct {
	Status         *model.Status `json:"status"`
	Score          *int          `json:"score"`
	CurrentEpisode *int          `json:"currentEpisode"`
	Notes          *string       `json:"notes"`
}

type listResponse struct {
	Entries []model.LibraryEntry `json:"entries"`
	Total   int                  `json:"total"`
}

// HandleList returns the library, optionally filtered.
//
// HTTP: GET /api/library?status=watching
func (h *LibraryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID := mustUserID(w, r)
	if userID == "" {
		return
	}

	status := model.Status(r.URL.Query().Get("status"))
	if status != "" && status != model.StatusAll && !status.Valid() {
		writeError(w, apperror.ValidationFailed("status", "unknown status filter"))
		return
	}

	entries, err := h.library.List(r.Context(), userID, status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Entries: entries, Total: len(entries)})
}

// HandleStats returns the aggregate counters.
//
// HTTP: GET /api/library/stats
func (h *LibraryHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	userID := mustUserID(w, r)
	if userID == "" {
		return
	}

	stats, err := h.library.Stats(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleAdd tracks a new anime.
//
// HTTP: POST /api/library
func (h *LibraryHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	userID := mustUserID(w, r)
	if userID == "" {
		return
	}

	var req addEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	anime := model.CatalogAnime{
		ID:       req.AnimeID,
		Title:    req.Title,
		ImageURL: req.ImageURL,
		Episodes: req.Episodes,
	}
	entry, err := h.library.Add(r.Context(), userID, anime, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// HandleGetByAnime looks an entry up by catalog ID, for "is this tracked?"
// checks from a detail page. 404 when not tracked.
//
// HTTP: GET /api/library/anime/{animeID}
func (h *LibraryHandler) HandleGetByAnime(w http.ResponseWriter, r *http.Request) {
	userID := mustUserID(w, r)
	if userID == "" {
		return
	}

	animeID, err := strconv.Atoi(chi.URLParam(r, "animeID"))
	if err != nil {
		writeError(w, apperror.ValidationFailed("animeID", "anime id must be a number"))
		return
	}

	entry, err := h.library.Get(r.Context(), userID, animeID)
	if err != nil {
		writeError(w, err)
		return
	}
	if entry == nil {
		writeError(w, apperror.NotFound("library entry", strconv.Itoa(animeID)))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleUpdate applies a partial update to an entry.
//
// HTTP: PATCH /api/library/{id}
func (h *LibraryHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID := mustUserID(w, r)
	if userID == "" {
		return
	}

	var req updateEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	entry, err := h.library.Update(r.Context(), userID, chi.URLParam(r, "id"), service.UpdateEntry{
		Status:         req.Status,
		Score:          req.Score,
		CurrentEpisode: req.CurrentEpisode,
		Notes:          req.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleRemove deletes an entry.
//
// HTTP: DELETE /api/library/{id}
func (h *LibraryHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	userID := mustUserID(w, r)
	if userID == "" {
		return
	}

	if err := h.library.Remove(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// mustUserID pulls the authenticated user from the context, writing a 401 and
// returning "" if it's missing. Behind RequireAuth it never is.
func mustUserID(w http.ResponseWriter, r *http.Request) string {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.NotAuthenticated())
		return ""
	}
	return userID
}
