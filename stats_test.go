package overlay

import (
	"image/color"
	"testing"

	"github.com/bodgit/overlay/palette"
	"github.com/stretchr/testify/assert"
)

func TestColorStats(t *testing.T) {
	m := fill(3, 2, red)
	m.SetNRGBA(0, 0, blue)
	m.SetNRGBA(1, 0, transparent)
	m.SetNRGBA(2, 0, color.NRGBA{palette.Sentinel.R, palette.Sentinel.G, palette.Sentinel.B, 0xff})

	stats := ColorStats(m)
	assert.Equal(t, map[string]int{"255,0,0": 3, "0,0,255": 1}, stats)
	assert.Equal(t, map[string]bool{"255,0,0": true, "0,0,255": true}, DefaultFilter(stats))
}

func TestModeText(t *testing.T) {
	for _, m := range []Mode{ModeBehind, ModeAbove, ModeMinify, ModeOriginal} {
		b, err := m.MarshalText()
		assert.Nil(t, err)
		var got Mode
		assert.Nil(t, got.UnmarshalText(b))
		assert.Equal(t, m, got)
	}
	_, err := ParseMode("sideways")
	assert.NotNil(t, err)

	assert.True(t, ModeMinify.Rewrites())
	assert.False(t, ModeOriginal.Rewrites())

	s, err := ParseStyle("SYMBOLS")
	assert.Nil(t, err)
	assert.Equal(t, StyleSymbols, s)
	_, err = ParseStyle("stars")
	assert.NotNil(t, err)
}

func TestOverlayIncluded(t *testing.T) {
	o := &Overlay{ColorFilter: map[string]bool{"255,0,0": false, "0,0,255": true}}
	assert.False(t, o.Included(palette.RGB{R: 0xff}))
	assert.True(t, o.Included(palette.RGB{B: 0xff}))
	assert.True(t, o.Included(palette.RGB{G: 0xff}))
}
