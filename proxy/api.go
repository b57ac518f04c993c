package proxy

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bodgit/overlay"
	"github.com/bodgit/overlay/cache"
	"github.com/bodgit/overlay/raster"
	"go.uber.org/zap"
)

// maxRequestBytes limits JSON request bodies.
const maxRequestBytes = 1 << 20

var errNoOverlay = errors.New("no such overlay")

type overlayPatch struct {
	Name        *string         `json:"name"`
	Enabled     *bool           `json:"enabled"`
	PixelURL    *string         `json:"pixelUrl"`
	OffsetX     *int            `json:"offsetX"`
	OffsetY     *int            `json:"offsetY"`
	Opacity     *float64        `json:"opacity"`
	ColorFilter map[string]bool `json:"colorFilter"`
}

func (p *overlayPatch) apply(o *overlay.Overlay) {
	if p.Name != nil {
		o.Name = *p.Name
	}
	if p.Enabled != nil {
		o.Enabled = *p.Enabled
	}
	if p.PixelURL != nil {
		o.PixelURL = *p.PixelURL
	}
	if p.OffsetX != nil {
		o.OffsetX = *p.OffsetX
	}
	if p.OffsetY != nil {
		o.OffsetY = *p.OffsetY
	}
	if p.Opacity != nil {
		o.Opacity = *p.Opacity
	}
	if p.ColorFilter != nil {
		if o.ColorFilter == nil {
			o.ColorFilter = make(map[string]bool, len(p.ColorFilter))
		}
		for k, v := range p.ColorFilter {
			o.ColorFilter[k] = v
		}
	}
}

type statsResponse struct {
	Caches []cache.Stats `json:"caches"`
}

type colorsResponse struct {
	Colors         map[string]int `json:"colors"`
	PalettePerfect bool           `json:"palettePerfect"`
}

func (s *Server) api() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/overlays", s.listOverlays)
	mux.HandleFunc("GET /api/overlays/{id}", s.getOverlay)
	mux.HandleFunc("PATCH /api/overlays/{id}", s.patchOverlay)
	mux.HandleFunc("GET /api/overlays/{id}/colors", s.overlayColors)
	mux.HandleFunc("GET /api/settings", s.getSettings)
	mux.HandleFunc("PUT /api/settings", s.putSettings)
	mux.HandleFunc("GET /api/stats", s.stats)
	mux.HandleFunc("GET /api/notices", s.listNotices)
	mux.HandleFunc("POST /api/invalidate", s.invalidate)
	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) *overlay.Overlay {
	o, err := s.store.Overlay(r.PathValue("id"))
	switch {
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err)
	case o == nil:
		s.writeError(w, http.StatusNotFound, errNoOverlay)
	}
	return o
}

func (s *Server) listOverlays(w http.ResponseWriter, r *http.Request) {
	overlays, err := s.store.Overlays()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if overlays == nil {
		overlays = []*overlay.Overlay{}
	}
	s.writeJSON(w, http.StatusOK, overlays)
}

func (s *Server) getOverlay(w http.ResponseWriter, r *http.Request) {
	if o := s.lookup(w, r); o != nil {
		s.writeJSON(w, http.StatusOK, o)
	}
}

func (s *Server) patchOverlay(w http.ResponseWriter, r *http.Request) {
	o := s.lookup(w, r)
	if o == nil {
		return
	}

	var p overlayPatch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&p); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	p.apply(o)

	if err := s.store.UpdateOverlay(o); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.service.InvalidateAll()
	s.logger.Debug("overlay updated", zap.String("overlay", o.ID))
	s.writeJSON(w, http.StatusOK, o)
}

func (s *Server) overlayColors(w http.ResponseWriter, r *http.Request) {
	o := s.lookup(w, r)
	if o == nil {
		return
	}
	if o.Image == nil {
		s.writeJSON(w, http.StatusOK, colorsResponse{Colors: map[string]int{}})
		return
	}

	m, err := raster.DecodeBytes(o.Image.Data)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	perfect, err := s.service.IsPalettePerfect(o.Image)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, colorsResponse{
		Colors:         overlay.ColorStats(m),
		PalettePerfect: perfect,
	})
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Settings()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Settings()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&st); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.SaveSettings(st); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.service.SetMinify(st.Minify)
	s.logger.Debug("settings saved", zap.Stringer("mode", st.Mode))
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, statsResponse{Caches: s.service.CacheStats()})
}

func (s *Server) listNotices(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.notices.List())
}

func (s *Server) invalidate(w http.ResponseWriter, r *http.Request) {
	s.service.InvalidateAll()
	w.WriteHeader(http.StatusNoContent)
}
