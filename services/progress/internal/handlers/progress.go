package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/quickwatch/internal/platform/api"
	"github.com/example/quickwatch/internal/platform/httpserver"
	"github.com/example/quickwatch/internal/progress"
)

type listResponse[T any] struct {
	Items []T `json:"items"`
}

func Routes(r chi.Router, store progress.Store, pub *progress.Publisher, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	r.Put("/v1/progress", SaveProgress(store, pub, log))
	r.Get("/v1/progress/{media_type}/{media_id}", GetProgress(store, log))
	r.Get("/v1/progress/{media_type}/{media_id}/all", ListProgress(store, log))
	r.Get("/v1/continue-watching", ContinueWatching(store, log))
}

// SaveProgress stores one entry and announces it to other replicas.
func SaveProgress(store progress.Store, pub *progress.Publisher, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		var e progress.Entry
		if err := api.DecodeJSON(r, &e); err != nil {
			api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
			return
		}
		saved, err := store.Save(r.Context(), e)
		if err != nil {
			writeStoreError(w, log, rid, err)
			return
		}
		pub.Publish(saved)
		api.WriteJSON(w, http.StatusOK, saved)
	}
}

// GetProgress returns the entry for one movie or episode.
func GetProgress(store progress.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		key, ok := keyFromRequest(w, r, rid)
		if !ok {
			return
		}
		e, err := store.Get(r.Context(), key)
		if err != nil {
			writeStoreError(w, log, rid, err)
			return
		}
		if e == nil {
			api.NotFound(w, "NOT_FOUND", "No progress saved", rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, e)
	}
}

// ListProgress returns every saved entry of one title.
func ListProgress(store progress.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		key, ok := keyFromRequest(w, r, rid)
		if !ok {
			return
		}
		items, err := store.ListForMedia(r.Context(), key.MediaID, key.MediaType)
		if err != nil {
			writeStoreError(w, log, rid, err)
			return
		}
		if items == nil {
			items = []progress.Entry{}
		}
		api.WriteJSON(w, http.StatusOK, listResponse[progress.Entry]{Items: items})
	}
}

func ContinueWatching(store progress.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		items, err := store.ContinueWatching(r.Context())
		if err != nil {
			writeStoreError(w, log, rid, err)
			return
		}
		if items == nil {
			items = []progress.ContinueWatchingEntry{}
		}
		api.WriteJSON(w, http.StatusOK, listResponse[progress.ContinueWatchingEntry]{Items: items})
	}
}

func keyFromRequest(w http.ResponseWriter, r *http.Request, rid string) (progress.Key, bool) {
	id, err := strconv.Atoi(strings.TrimSpace(chi.URLParam(r, "media_id")))
	if err != nil {
		api.BadRequest(w, "INVALID_MEDIA_ID", "media_id must be an integer", rid, nil)
		return progress.Key{}, false
	}
	key := progress.Key{
		MediaID:   id,
		MediaType: progress.MediaType(strings.ToLower(chi.URLParam(r, "media_type"))),
	}
	q := r.URL.Query()
	for name, dst := range map[string]*int{"season": &key.Season, "episode": &key.Episode} {
		v := strings.TrimSpace(q.Get(name))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			api.BadRequest(w, "INVALID_QUERY", name+" must be an integer", rid, nil)
			return progress.Key{}, false
		}
		*dst = n
	}
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		api.BadRequest(w, "INVALID_KEY", err.Error(), rid, nil)
		return progress.Key{}, false
	}
	return key, true
}

func writeStoreError(w http.ResponseWriter, log *zap.Logger, rid string, err error) {
	switch {
	case errors.Is(err, progress.ErrInvalidEntry):
		api.BadRequest(w, "INVALID_ENTRY", err.Error(), rid, nil)
	case errors.Is(err, progress.ErrCorruptData):
		log.Error("progress data corrupt", zap.String("request_id", rid), zap.Error(err))
		api.WriteError(w, http.StatusInternalServerError, "CORRUPT_DATA", "Stored progress is unreadable", rid, nil)
	default:
		log.Error("progress store", zap.String("request_id", rid), zap.Error(err))
		api.Internal(w, rid)
	}
}
