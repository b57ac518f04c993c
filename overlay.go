/*
Package overlay renders user images over the map tiles served by Wplace.

Every tile image the game fetches can be rewritten: each enabled overlay that
intersects the tile is rendered into a fragment, either as a translucent
full color preview or, when minified, as a sparse grid of dots or palette
symbols, and the fragments are composited with the original tile.

Decoding, palette classification, rendered fragments and upscaled base tiles
are all memoized by content so repeated requests for the same tile are cheap.
*/
package overlay

import (
	"crypto/sha1"
	"fmt"
	"image"
	"sort"
	"strings"

	"github.com/bodgit/overlay/palette"
	"github.com/bodgit/overlay/tile"
)

// Image is an encoded overlay image and its content identity.
type Image struct {
	ID   string
	Data []byte
}

// NewImage wraps data, deriving its identity from the content.
func NewImage(data []byte) *Image {
	return &Image{
		ID:   fmt.Sprintf("%X", sha1.Sum(data)),
		Data: data,
	}
}

// Overlay is a user image anchored to a world position.
type Overlay struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Enabled  bool    `json:"enabled"`
	ImageURL string  `json:"imageUrl,omitempty"`
	Image    *Image  `json:"-"`
	PixelURL string  `json:"pixelUrl,omitempty"`
	OffsetX  int     `json:"offsetX"`
	OffsetY  int     `json:"offsetY"`
	Opacity  float64 `json:"opacity"`

	// ColorFilter maps "r,g,b" keys to whether that color is drawn. Colors
	// missing from the map are drawn.
	ColorFilter map[string]bool `json:"colorFilter,omitempty"`
}

// Renderable reports whether o has everything needed to be drawn.
func (o *Overlay) Renderable() bool {
	return o != nil && o.Enabled && o.Image != nil && len(o.Image.Data) > 0 && o.PixelURL != ""
}

// Anchor returns the parsed anchor. A malformed pixel URL yields the zero
// anchor.
func (o *Overlay) Anchor() tile.Anchor {
	return tile.ParseAnchor(o.PixelURL)
}

// Offset returns the user adjustment as a point.
func (o *Overlay) Offset() image.Point {
	return image.Pt(o.OffsetX, o.OffsetY)
}

// Included reports whether c passes the color filter.
func (o *Overlay) Included(c palette.RGB) bool {
	v, ok := o.ColorFilter[c.Key()]
	return !ok || v
}

// excluded returns the sorted keys of colors the filter drops.
func (o *Overlay) excluded() []string {
	var keys []string
	for k, v := range o.ColorFilter {
		if !v {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// colorFilter is a per-render lookup of excluded colors that avoids
// formatting a key for every pixel.
type colorFilter map[palette.RGB]struct{}

func (o *Overlay) filter() colorFilter {
	keys := o.excluded()
	if len(keys) == 0 {
		return nil
	}
	f := make(colorFilter, len(keys))
	for _, k := range keys {
		c, err := palette.ParseKey(strings.TrimSpace(k))
		if err != nil {
			continue
		}
		f[c] = struct{}{}
	}
	return f
}

func (f colorFilter) drops(c palette.RGB) bool {
	_, ok := f[c]
	return ok
}

func (o *Overlay) opacity() float64 {
	switch {
	case o.Opacity < 0:
		return 0
	case o.Opacity > 1:
		return 1
	default:
		return o.Opacity
	}
}
