package overlay

import (
	"image"
	"sync/atomic"
	"testing"

	"github.com/bodgit/overlay/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeNothingToDo(t *testing.T) {
	s, calls := newTestService(t, nil)
	original := encode(t, fill(10, 10, white))
	f := &Fragment{Image: fill(1, 1, red)}

	tables := []struct {
		name      string
		fragments []*Fragment
		mode      Mode
	}{
		{"no fragments", nil, ModeAbove},
		{"nil fragments", []*Fragment{nil, nil}, ModeBehind},
		{"empty fragment", []*Fragment{{Image: image.NewNRGBA(image.Rectangle{})}}, ModeAbove},
		{"original mode", []*Fragment{f}, ModeOriginal},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			out, err := s.Compose(original, table.fragments, table.mode)
			require.Nil(t, err)
			assert.Equal(t, &original[0], &out[0])
		})
	}
	assert.Equal(t, int64(0), atomic.LoadInt64(calls))
}

func TestComposeBadTile(t *testing.T) {
	s, _ := newTestService(t, nil)
	_, err := s.Compose([]byte("junk"), []*Fragment{{Image: fill(1, 1, red)}}, ModeAbove)
	assert.NotNil(t, err)
}

func composeBoth(t *testing.T, mode Mode) *image.NRGBA {
	t.Helper()
	s, _ := newTestService(t, nil)

	base := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	base.SetNRGBA(1, 1, blue)
	o := newOverlay(t, "a", fill(2, 2, red), "https://backend.wplace.live/s0/pixel/0/0?x=1&y=1")

	f, err := s.Render(o, 0, 0, mode)
	require.Nil(t, err)
	require.NotNil(t, f)

	out, err := s.Compose(encode(t, base), []*Fragment{f}, mode)
	require.Nil(t, err)

	m, err := raster.DecodeBytes(out)
	require.Nil(t, err)
	return m
}

func TestComposeAbove(t *testing.T) {
	m := composeBoth(t, ModeAbove)
	assert.Equal(t, red, m.NRGBAAt(1, 1))
	assert.Equal(t, red, m.NRGBAAt(2, 2))
	assert.Equal(t, transparent, m.NRGBAAt(0, 0))
	assert.Equal(t, transparent, m.NRGBAAt(3, 3))
}

func TestComposeBehind(t *testing.T) {
	m := composeBoth(t, ModeBehind)
	assert.Equal(t, blue, m.NRGBAAt(1, 1))
	assert.Equal(t, red, m.NRGBAAt(2, 2))
	assert.Equal(t, transparent, m.NRGBAAt(0, 0))
}

func TestComposeOrder(t *testing.T) {
	s, _ := newTestService(t, nil)
	original := encode(t, fill(10, 10, white))

	bottom := &Fragment{Image: fill(2, 2, red)}
	top := &Fragment{Image: fill(1, 1, blue), Offset: image.Pt(1, 1)}

	out, err := s.Compose(original, []*Fragment{bottom, top}, ModeAbove)
	require.Nil(t, err)
	m, err := raster.DecodeBytes(out)
	require.Nil(t, err)

	assert.Equal(t, red, m.NRGBAAt(0, 0))
	assert.Equal(t, blue, m.NRGBAAt(1, 1))
	assert.Equal(t, white, m.NRGBAAt(2, 2))
}

func TestComposeMinify(t *testing.T) {
	s, calls := newTestService(t, nil)
	original := encode(t, fill(10, 10, white))
	o := newOverlay(t, "a", fill(1, 1, red), "https://backend.wplace.live/s0/pixel/0/0?x=0&y=0")

	f, err := s.Render(o, 0, 0, ModeMinify)
	require.Nil(t, err)
	require.NotNil(t, f)

	for i := 0; i < 2; i++ {
		out, err := s.Compose(original, []*Fragment{f}, ModeMinify)
		require.Nil(t, err)

		m, err := raster.DecodeBytes(out)
		require.Nil(t, err)
		scale := s.opts.DotScale
		assert.Equal(t, image.Rect(0, 0, 10*scale, 10*scale), m.Rect)
		assert.Equal(t, red, m.NRGBAAt(scale/2, scale/2))
		assert.Equal(t, white, m.NRGBAAt(0, 0))
		assert.Equal(t, white, m.NRGBAAt(scale-1, scale-1))
	}

	assert.Equal(t, 1, s.bases.Len())
	assert.Equal(t, uint64(1), s.bases.Stats().Hits)
	// One decode for the overlay and one per compose of the tile.
	assert.Equal(t, int64(3), atomic.LoadInt64(calls))
}

func TestComposeMinifyStyleChanged(t *testing.T) {
	s, _ := newTestService(t, nil)
	original := encode(t, fill(10, 10, white))
	o := newOverlay(t, "a", fill(1, 1, red), "https://backend.wplace.live/s0/pixel/0/0?x=0&y=0")

	f, err := s.Render(o, 0, 0, ModeMinify)
	require.Nil(t, err)
	require.NotNil(t, f)

	// Switching style after the fragment was rendered must not change the
	// canvas the fragment is drawn on.
	s.SetMinify(Minify{Style: StyleSymbols})

	out, err := s.Compose(original, []*Fragment{f}, ModeMinify)
	require.Nil(t, err)

	m, err := raster.DecodeBytes(out)
	require.Nil(t, err)
	scale := s.opts.DotScale
	assert.Equal(t, image.Rect(0, 0, 10*scale, 10*scale), m.Rect)
	assert.Equal(t, red, m.NRGBAAt(scale/2, scale/2))
}
