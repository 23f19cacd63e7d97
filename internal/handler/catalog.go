package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jsedeno/anitrack/internal/apperror"
	"github.com/jsedeno/anitrack/internal/catalog"
)

// CatalogHandler proxies anime search and detail lookups to the external
// catalog, so the browser never talks to Jikan directly (CORS, rate limits,
// and response shaping all stay server-side).
type CatalogHandler struct {
	catalog *catalog.Client
	logger  *slog.Logger
}

// NewCatalogHandler creates a CatalogHandler.
func NewCatalogHandler(client *catalog.Client, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: client, logger: logger}
}

// HandleSearch searches the catalog by title.
//
// HTTP: GET /api/catalog/search?q=fullmetal&page=1
func (h *CatalogHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		parsed, err := strconv.Atoi(p)
		if err != nil || parsed < 1 {
			writeError(w, apperror.ValidationFailed("page", "page must be a positive number"))
			return
		}
		page = parsed
	}

	result, err := h.catalog.Search(r.Context(), query, page)
	if err != nil {
		h.logger.Error("catalog search failed",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"anime":       result.Anime,
		"hasNextPage": result.HasNextPage,
	})
}

// HandleGetAnime fetches one anime's catalog record.
//
// HTTP: GET /api/catalog/anime/{id}
func (h *CatalogHandler) HandleGetAnime(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperror.ValidationFailed("id", "anime id must be a number"))
		return
	}

	anime, err := h.catalog.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, anime)
}
