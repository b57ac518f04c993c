/*
Package proxy serves the game through a reverse proxy that rewrites tile
images with the configured overlays.

Requests for tile images are forwarded upstream and successful image
responses are handed to an overlay.Service; if anything goes wrong the
original tile is served instead. Pixel requests are watched so the active
overlay can be anchored by clicking a pixel in the game. A small JSON API
under /api/ manages overlays and settings.
*/
package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bodgit/overlay"
	"github.com/bodgit/overlay/tile"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"
)

// Store is the persistence the server needs.
type Store interface {
	overlay.Provider
	Overlay(ref string) (*overlay.Overlay, error)
	UpdateOverlay(o *overlay.Overlay) error
	SetAnchor(id, pixelURL string) error
	SaveSettings(st overlay.Settings) error
}

// Server is an http.Handler proxying to the game backend.
type Server struct {
	upstream *url.URL
	service  *overlay.Service
	store    Store
	logger   *zap.Logger
	notices  *Notices

	proxy   *httputil.ReverseProxy
	handler http.Handler

	// serializes anchor capture
	mu sync.Mutex
}

// NewTransport returns the transport used to reach the backend.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		MaxConnsPerHost:       32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 12 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// New returns a Server forwarding to upstream. A nil notices discards user
// facing warnings.
func New(upstream string, service *overlay.Service, store Store, notices *Notices, logger *zap.Logger) (*Server, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.New("proxy: upstream must be an absolute URL")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notices == nil {
		notices = NewNotices(0)
	}

	s := &Server{
		upstream: u,
		service:  service,
		store:    store,
		logger:   logger,
		notices:  notices,
	}

	s.proxy = &httputil.ReverseProxy{
		Rewrite:        s.rewrite,
		Transport:      NewTransport(),
		ModifyResponse: s.modifyResponse,
		ErrorHandler:   s.errorHandler,
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", gzhttp.GzipHandler(s.api()))
	mux.HandleFunc("/", s.forward)
	s.handler = mux

	return s, nil
}

// SetTransport replaces the transport used to reach the backend.
func (s *Server) SetTransport(rt http.RoundTripper) {
	s.proxy.Transport = rt
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// rewriteKey marks an outgoing tile request whose response is rewritten.
type rewriteKey struct{}

// needsRewrite reports whether tile responses should be intercepted with
// the current settings and overlays. Lookup failures leave tiles alone.
func (s *Server) needsRewrite() bool {
	st, err := s.store.Settings()
	if err != nil {
		s.logger.Warn("cannot read settings", zap.Error(err))
		return false
	}
	overlays, err := s.store.Overlays()
	if err != nil {
		s.logger.Warn("cannot read overlays", zap.Error(err))
		return false
	}
	return overlay.NeedsRewrite(st, overlays)
}

func (s *Server) rewrite(r *httputil.ProxyRequest) {
	r.SetURL(s.upstream)
	r.SetXForwarded()
	if _, ok := tile.MatchTilePath(r.In.URL.Path); ok && s.needsRewrite() {
		// Let the transport negotiate and undo compression so the body can
		// be decoded.
		r.Out.Header.Del("Accept-Encoding")
		r.Out = r.Out.WithContext(context.WithValue(r.Out.Context(), rewriteKey{}, true))
	}
}

func (s *Server) forward(w http.ResponseWriter, r *http.Request) {
	if a, ok := tile.MatchPixelURL(r.URL); ok {
		if err := s.capture(a); err != nil {
			s.logger.Warn("anchor capture failed", zap.Error(err))
		}
	}
	s.proxy.ServeHTTP(w, r)
}

// capture anchors the active overlay at a when auto-capture is on.
func (s *Server) capture(a tile.Anchor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.store.Settings()
	if err != nil {
		return err
	}
	if !st.AutoCapture || st.ActiveOverlay == "" {
		return nil
	}

	o, err := s.store.Overlay(st.ActiveOverlay)
	if err != nil || o == nil {
		return err
	}

	pixelURL := tile.PixelURL(s.upstream.String(), a)
	if o.PixelURL == pixelURL {
		return nil
	}
	if err := s.store.SetAnchor(o.ID, pixelURL); err != nil {
		return err
	}

	st.AutoCapture = false
	if err := s.store.SaveSettings(st); err != nil {
		return err
	}
	s.service.InvalidateAll()

	s.logger.Info("anchor set", zap.String("overlay", o.ID), zap.String("name", o.Name), zap.Stringer("tile", a.Tile), zap.Int("x", a.Pixel.X), zap.Int("y", a.Pixel.Y))
	s.notices.Add("Anchor set for \"" + o.Name + "\" at " + a.Tile.String())
	return nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

func (s *Server) modifyResponse(resp *http.Response) error {
	if rewrite, _ := resp.Request.Context().Value(rewriteKey{}).(bool); !rewrite {
		return nil
	}
	c, ok := tile.MatchTilePath(resp.Request.URL.Path)
	if !ok || resp.StatusCode != http.StatusOK {
		return nil
	}
	if !strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "image") {
		return nil
	}

	limit := int64(s.service.Options().MaxTileBytes)
	if resp.ContentLength > limit {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return err
	}
	if int64(len(body)) > limit {
		resp.Body = readCloser{io.MultiReader(bytes.NewReader(body), resp.Body), resp.Body}
		return nil
	}
	resp.Body.Close()

	out, changed, err := s.service.Process(resp.Request.Context(), s.store, c, body)
	if err != nil {
		s.logger.Warn("tile rewrite failed", zap.Stringer("tile", c), zap.Error(err))
		out, changed = body, false
	}

	resp.Body = io.NopCloser(bytes.NewReader(out))
	if !changed {
		return nil
	}

	resp.Header.Set("Content-Type", "image/png")
	resp.Header.Del("Content-Length")
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("ETag")
	resp.ContentLength = int64(len(out))

	return nil
}

func (s *Server) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Warn("upstream request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
	w.WriteHeader(http.StatusBadGateway)
}
