package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"vessel-racer/internal/archive"
	"vessel-racer/internal/vessel"
)

const (
	defaultArchiveLimit = 50
	maxArchiveLimit     = 500
)

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *routerHandlers) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Snapshot())
}

func (h *routerHandlers) handleGetVessels(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()
	resp := map[string]interface{}{
		"tick":    snap.Tick,
		"vessels": snap.Vessels,
		"assets":  snap.Assets,
		"pending": snap.Pending,
	}
	if h.archive != nil {
		if n, err := h.archive.Count(r.Context()); err == nil {
			resp["archived"] = n
		}
	}
	writeJSON(w, resp)
}

func (h *routerHandlers) handleGetClients(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()
	writeJSON(w, map[string]interface{}{
		"tick":    snap.Tick,
		"clients": snap.Clients,
	})
}

func (h *routerHandlers) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Snapshot().Events)
}

// archivedVessel is the JSON form of an archive record.
type archivedVessel struct {
	ID         string             `json:"id"`
	Client     uint64             `json:"client"`
	Tick       uint64             `json:"tick"`
	Parts      int                `json:"parts"`
	CreatedAt  time.Time          `json:"createdAt"`
	Definition *vessel.Definition `json:"definition,omitempty"`
}

func toArchived(rec archive.Record, withDefinition bool) archivedVessel {
	out := archivedVessel{
		ID:        rec.ID.String(),
		Client:    uint64(rec.Client),
		Tick:      rec.Tick,
		Parts:     rec.Parts,
		CreatedAt: rec.CreatedAt,
	}
	if withDefinition {
		def := rec.Definition
		out.Definition = &def
	}
	return out
}

func (h *routerHandlers) handleListArchive(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, "archive disabled", http.StatusServiceUnavailable)
		return
	}

	limit := defaultArchiveLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxArchiveLimit)
	}

	recs, err := h.archive.List(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("❌ Archive list failed")
		writeError(w, "archive unavailable", http.StatusInternalServerError)
		return
	}

	out := make([]archivedVessel, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toArchived(rec, false))
	}
	writeJSON(w, out)
}

func (h *routerHandlers) handleGetArchived(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, "archive disabled", http.StatusServiceUnavailable)
		return
	}

	id, err := vessel.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "invalid vessel id", http.StatusBadRequest)
		return
	}

	rec, err := h.archive.Get(r.Context(), id)
	switch {
	case errors.Is(err, archive.ErrNotFound):
		writeError(w, "vessel not found", http.StatusNotFound)
		return
	case err != nil:
		log.Error().Err(err).Str("vessel", id.String()).Msg("❌ Archive read failed")
		writeError(w, "archive unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, toArchived(rec, true))
}

func (h *routerHandlers) handleView(w http.ResponseWriter, r *http.Request) {
	opts := DefaultViewOptions()
	if s := r.URL.Query().Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, "size must be an integer", http.StatusBadRequest)
			return
		}
		opts.Size = n
	}
	if s := r.URL.Query().Get("scale"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f <= 0 {
			writeError(w, "scale must be a positive number", http.StatusBadRequest)
			return
		}
		opts.PixelsPerMeter = f
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := RenderView(w, h.engine.Snapshot(), opts); err != nil {
		log.Warn().Err(err).Msg("⚠️ Debug view render failed")
	}
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
