package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"phototrail/repository"
)

// PhotoHandler serves the read-only photo listing. It is a pure reader of the
// schema the ingestion pipeline produces.
type PhotoHandler struct {
	Repo   *repository.PhotoRepository
	Logger *zap.Logger
}

// ListPhotos handles GET /api/photos?location=<substring>&sort_by=<date|location>.
// No matches is an empty list, never an error.
func (h *PhotoHandler) ListPhotos(w http.ResponseWriter, r *http.Request) {
	filter := repository.PhotoFilter{
		Location: r.URL.Query().Get("location"),
		SortBy:   r.URL.Query().Get("sort_by"),
	}

	photos, err := h.Repo.ListPhotos(filter)
	if err != nil {
		h.Logger.Error("failed to list photos", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, photos)
}

// GetPhoto handles GET /api/photos/{photo_id}.
func (h *PhotoHandler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "photo_id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid photo id", http.StatusBadRequest)
		return
	}

	photo, err := h.Repo.GetByID(uint(id))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.Logger.Error("failed to get photo", zap.Uint64("photo_id", id), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, photo)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
