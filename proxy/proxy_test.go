package proxy

import (
	"encoding/json"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/bodgit/overlay"
	"github.com/bodgit/overlay/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tileSize = 16

func solid(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	m := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(m.Pix); i += 4 {
		m.Pix[i+0], m.Pix[i+1], m.Pix[i+2], m.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	b, err := raster.EncodeBytes(m)
	require.Nil(t, err)
	return b
}

type fixture struct {
	store    *overlay.Store
	service  *overlay.Service
	server   *Server
	upstream *httptest.Server
	notices  *Notices
	tile     []byte

	// Accept-Encoding of the last tile request seen upstream
	encoding atomic.Value
}

func newFixture(t *testing.T, contentType string) *fixture {
	t.Helper()

	f := &fixture{
		tile:    solid(t, tileSize, tileSize, color.NRGBA{0xff, 0xff, 0xff, 0xff}),
		notices: NewNotices(0),
	}

	f.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/files/"):
			f.encoding.Store(r.Header.Get("Accept-Encoding"))
			w.Header().Set("Content-Type", contentType)
			w.Write(f.tile)
		case strings.HasPrefix(r.URL.Path, "/s0/pixel/"):
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"paintedBy":null}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.upstream.Close)

	var err error
	f.store, err = overlay.NewStore(filepath.Join(t.TempDir(), "overlay.db"))
	require.Nil(t, err)
	t.Cleanup(func() { f.store.Close() })

	opts := overlay.DefaultOptions()
	opts.TileSize = tileSize
	opts.MaxOverlayDim = tileSize
	opts.Notify = f.notices.Add
	f.service, err = overlay.New(opts, nil)
	require.Nil(t, err)

	f.server, err = New(f.upstream.URL, f.service, f.store, f.notices, nil)
	require.Nil(t, err)

	return f
}

func (f *fixture) addOverlay(t *testing.T, pixelURL string) *overlay.Overlay {
	t.Helper()
	o, err := f.store.AddOverlay(overlay.Overlay{
		Name:     "Test",
		Enabled:  true,
		PixelURL: pixelURL,
		Opacity:  1,
	}, solid(t, 2, 2, color.NRGBA{0xff, 0x00, 0x00, 0xff}))
	require.Nil(t, err)
	return o
}

func (f *fixture) setMode(t *testing.T, m overlay.Mode) {
	t.Helper()
	st, err := f.store.Settings()
	require.Nil(t, err)
	st.Mode = m
	require.Nil(t, f.store.SaveSettings(st))
}

func (f *fixture) do(t *testing.T, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, httptest.NewRequest(method, target, body))
	return rec
}

func TestTileRewritten(t *testing.T) {
	f := newFixture(t, "image/png")
	f.addOverlay(t, f.upstream.URL+"/s0/pixel/5/7?x=1&y=1")
	f.setMode(t, overlay.ModeAbove)

	rec := f.do(t, http.MethodGet, "/files/s0/tiles/5/7.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.NotEqual(t, f.tile, rec.Body.Bytes())

	m, err := raster.DecodeBytes(rec.Body.Bytes())
	require.Nil(t, err)
	assert.Equal(t, color.NRGBA{0xff, 0x00, 0x00, 0xff}, m.NRGBAAt(1, 1))
	assert.Equal(t, color.NRGBA{0xff, 0xff, 0xff, 0xff}, m.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{0xff, 0xff, 0xff, 0xff}, m.NRGBAAt(3, 3))
}

func TestTileOtherTileUntouched(t *testing.T) {
	f := newFixture(t, "image/png")
	f.addOverlay(t, f.upstream.URL+"/s0/pixel/5/7?x=1&y=1")
	f.setMode(t, overlay.ModeAbove)

	rec := f.do(t, http.MethodGet, "/files/s0/tiles/9/9.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, f.tile, rec.Body.Bytes())
}

func TestTilePassThrough(t *testing.T) {
	tables := []struct {
		name        string
		contentType string
		mode        overlay.Mode
	}{
		{"original mode", "image/png", overlay.ModeOriginal},
		{"not an image", "text/plain", overlay.ModeAbove},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			f := newFixture(t, table.contentType)
			f.addOverlay(t, f.upstream.URL+"/s0/pixel/5/7?x=1&y=1")
			f.setMode(t, table.mode)

			rec := f.do(t, http.MethodGet, "/files/s0/tiles/5/7.png", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, f.tile, rec.Body.Bytes())
			assert.Equal(t, table.contentType, rec.Header().Get("Content-Type"))
		})
	}
}

func (f *fixture) getTile(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Accept-Encoding", "br")
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func TestTileStreamedWhenNothingToDraw(t *testing.T) {
	tables := []struct {
		name    string
		mode    overlay.Mode
		enabled bool
		rewrite bool
	}{
		{"disabled overlay", overlay.ModeAbove, false, false},
		{"original mode", overlay.ModeOriginal, true, false},
		{"enabled overlay", overlay.ModeAbove, true, true},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			f := newFixture(t, "image/png")
			o := f.addOverlay(t, f.upstream.URL+"/s0/pixel/5/7?x=1&y=1")
			o.Enabled = table.enabled
			require.Nil(t, f.store.UpdateOverlay(o))
			f.setMode(t, table.mode)

			rec := f.getTile(t, "/files/s0/tiles/5/7.png")
			require.Equal(t, http.StatusOK, rec.Code)

			if table.rewrite {
				// The client's encoding is dropped so the transport can
				// negotiate one it can decode.
				assert.NotEqual(t, "br", f.encoding.Load())
				assert.NotEqual(t, f.tile, rec.Body.Bytes())
				return
			}
			assert.Equal(t, "br", f.encoding.Load())
			assert.Equal(t, f.tile, rec.Body.Bytes())
			for _, c := range f.service.CacheStats() {
				assert.Equal(t, 0, c.Len, c.Name)
			}
		})
	}
}

func TestTileCorruptServedOriginal(t *testing.T) {
	f := newFixture(t, "image/png")
	f.tile = []byte("not a png")
	f.addOverlay(t, f.upstream.URL+"/s0/pixel/5/7?x=1&y=1")
	f.setMode(t, overlay.ModeBehind)

	rec := f.do(t, http.MethodGet, "/files/s0/tiles/5/7.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "not a png", rec.Body.String())
}

func TestNotFoundPassThrough(t *testing.T) {
	f := newFixture(t, "image/png")
	rec := f.do(t, http.MethodGet, "/nothing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnchorCapture(t *testing.T) {
	f := newFixture(t, "image/png")
	o := f.addOverlay(t, "")
	o.OffsetX, o.OffsetY = 4, 5
	require.Nil(t, f.store.UpdateOverlay(o))

	st, err := f.store.Settings()
	require.Nil(t, err)
	st.AutoCapture = true
	st.ActiveOverlay = o.ID
	require.Nil(t, f.store.SaveSettings(st))

	rec := f.do(t, http.MethodGet, "/s0/pixel/3/4?x=10&y=20", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := f.store.Overlay(o.ID)
	require.Nil(t, err)
	require.NotNil(t, got)
	assert.Equal(t, f.upstream.URL+"/s0/pixel/3/4?x=10&y=20", got.PixelURL)
	assert.Equal(t, 0, got.OffsetX)
	assert.Equal(t, 0, got.OffsetY)

	st, err = f.store.Settings()
	require.Nil(t, err)
	assert.False(t, st.AutoCapture)
	assert.Len(t, f.notices.List(), 1)
}

func TestAnchorCaptureDisabled(t *testing.T) {
	f := newFixture(t, "image/png")
	o := f.addOverlay(t, "")

	f.do(t, http.MethodGet, "/s0/pixel/3/4?x=10&y=20", nil)

	got, err := f.store.Overlay(o.ID)
	require.Nil(t, err)
	assert.Equal(t, "", got.PixelURL)
}

func TestAPIOverlays(t *testing.T) {
	f := newFixture(t, "image/png")
	o := f.addOverlay(t, "")

	rec := f.do(t, http.MethodGet, "/api/overlays", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []*overlay.Overlay
	require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, o.ID, list[0].ID)

	rec = f.do(t, http.MethodPatch, "/api/overlays/"+o.ID, strings.NewReader(`{"offsetX":3,"enabled":false,"colorFilter":{"255,0,0":false}}`))
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := f.store.Overlay(o.ID)
	require.Nil(t, err)
	assert.Equal(t, 3, got.OffsetX)
	assert.False(t, got.Enabled)
	assert.Equal(t, map[string]bool{"255,0,0": false}, got.ColorFilter)

	rec = f.do(t, http.MethodGet, "/api/overlays/"+o.ID+"/colors", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var colors colorsResponse
	require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &colors))
	assert.Equal(t, map[string]int{"255,0,0": 4}, colors.Colors)
	assert.False(t, colors.PalettePerfect)

	rec = f.do(t, http.MethodPatch, "/api/overlays/missing", strings.NewReader(`{}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPatch, "/api/overlays/"+o.ID, strings.NewReader(`{`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIPatchInvalidates(t *testing.T) {
	f := newFixture(t, "image/png")
	o := f.addOverlay(t, f.upstream.URL+"/s0/pixel/5/7?x=1&y=1")
	f.setMode(t, overlay.ModeAbove)

	f.do(t, http.MethodGet, "/files/s0/tiles/5/7.png", nil)
	assert.Equal(t, 1, f.service.CacheStats()[2].Len)

	rec := f.do(t, http.MethodPatch, "/api/overlays/"+o.ID, strings.NewReader(`{"opacity":0.5}`))
	require.Equal(t, http.StatusOK, rec.Code)
	for _, c := range f.service.CacheStats() {
		assert.Equal(t, 0, c.Len, c.Name)
	}
}

func TestAPISettings(t *testing.T) {
	f := newFixture(t, "image/png")

	rec := f.do(t, http.MethodPut, "/api/settings", strings.NewReader(`{"mode":"minify","minify":{"style":"symbols","scheme":"letters"}}`))
	require.Equal(t, http.StatusOK, rec.Code)

	st, err := f.store.Settings()
	require.Nil(t, err)
	assert.Equal(t, overlay.ModeMinify, st.Mode)
	assert.Equal(t, overlay.StyleSymbols, st.Minify.Style)
	assert.Equal(t, f.service.Minify(), st.Minify)

	rec = f.do(t, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"mode":"minify"`)

	rec = f.do(t, http.MethodPut, "/api/settings", strings.NewReader(`{"mode":"sideways"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIStatsAndInvalidate(t *testing.T) {
	f := newFixture(t, "image/png")
	f.addOverlay(t, f.upstream.URL+"/s0/pixel/5/7?x=1&y=1")
	f.setMode(t, overlay.ModeAbove)
	f.do(t, http.MethodGet, "/files/s0/tiles/5/7.png", nil)

	rec := f.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats statsResponse
	require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Len(t, stats.Caches, 4)
	assert.Equal(t, "decode", stats.Caches[0].Name)
	assert.Equal(t, 1, stats.Caches[2].Len)

	rec = f.do(t, http.MethodPost, "/api/invalidate", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	for _, c := range f.service.CacheStats() {
		assert.Equal(t, 0, c.Len, c.Name)
	}
}

func TestAPIGzip(t *testing.T) {
	f := newFixture(t, "image/png")
	for i := 0; i < 20; i++ {
		f.addOverlay(t, "")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/overlays", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
}

func TestNotices(t *testing.T) {
	n := NewNotices(2)
	assert.Empty(t, n.List())
	n.Add("a")
	n.Add("b")
	n.Add("c")
	list := n.List()
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].Message)
	assert.Equal(t, "c", list[1].Message)
}

func TestNewBadUpstream(t *testing.T) {
	_, err := New("not a url", nil, nil, nil, nil)
	assert.NotNil(t, err)
}
