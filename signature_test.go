package overlay

import (
	"strings"
	"testing"

	"github.com/bodgit/overlay/symbol"
	"github.com/bodgit/overlay/tile"
	"github.com/stretchr/testify/assert"
)

func TestSignature(t *testing.T) {
	o := &Overlay{
		ID:      "a",
		Image:   NewImage([]byte("hello")),
		OffsetX: -2,
		OffsetY: 5,
		Opacity: 0.7,
	}

	yes, no := true, false
	assert.Equal(t, "AAF4C61DDCC5E8A2DABEDE0F3B482CD9AEA9434D:5|null|-2|5|0.7|U|-", Signature(o, nil))
	assert.True(t, strings.HasSuffix(Signature(o, &yes), "|P|-"))
	assert.True(t, strings.HasSuffix(Signature(o, &no), "|I|-"))

	o.PixelURL = "https://backend.wplace.live/s0/pixel/1/2?x=3&y=4"
	assert.Contains(t, Signature(o, nil), "|https://backend.wplace.live/s0/pixel/1/2?x=3&y=4|")

	// Including every color is the same as having no filter.
	base := Signature(o, nil)
	o.ColorFilter = map[string]bool{"1,2,3": true}
	assert.Equal(t, base, Signature(o, nil))

	o.ColorFilter["1,2,3"] = false
	excluded := Signature(o, nil)
	assert.NotEqual(t, base, excluded)
	assert.Len(t, excluded[strings.LastIndex(excluded, "|")+1:], 8)

	o.ColorFilter["4,5,6"] = false
	assert.NotEqual(t, excluded, Signature(o, nil))
}

func TestSignatureNoImage(t *testing.T) {
	assert.True(t, strings.HasPrefix(Signature(&Overlay{}, nil), "none|null|"))
}

func TestCacheKey(t *testing.T) {
	o := &Overlay{ID: "a"}
	c := tile.Coord{X: 3, Y: -1}

	tables := []struct {
		name   string
		mode   Mode
		minify Minify
		want   string
	}{
		{"above", ModeAbove, Minify{Style: StyleSymbols}, "ov:a|sig:S|tile:3,-1|mode:above"},
		{"behind", ModeBehind, Minify{}, "ov:a|sig:S|tile:3,-1|mode:behind"},
		{"dots", ModeMinify, Minify{Style: StyleDots, Scheme: symbol.SchemeLetters}, "ov:a|sig:S|tile:3,-1|mode:minify:dots"},
		{"symbols", ModeMinify, Minify{Style: StyleSymbols, Scheme: symbol.SchemeLetters}, "ov:a|sig:S|tile:3,-1|mode:minify:symbols:letters"},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			assert.Equal(t, table.want, CacheKey(o, "S", c, table.mode, table.minify))
		})
	}
}
