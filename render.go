package overlay

import (
	"fmt"
	"image"
	"math"

	"github.com/bodgit/overlay/palette"
	"github.com/bodgit/overlay/symbol"
	"github.com/bodgit/overlay/tile"
	"go.uber.org/zap"
)

// Symbols are only stamped for pixels more opaque than this.
const symbolAlpha = 0x80

// Fragment is a rendered overlay ready to be drawn onto a tile canvas.
type Fragment struct {
	Image *image.NRGBA
	// Offset is where Image is drawn on the tile canvas, which is upscaled
	// by Scale when Scaled is set.
	Offset image.Point
	Scaled bool
	Scale  int
}

// Bounds returns the area of the tile canvas the fragment covers.
func (f *Fragment) Bounds() image.Rectangle {
	return f.Image.Rect.Sub(f.Image.Rect.Min).Add(f.Offset)
}

// tint returns a table blending each channel value towards white so that
// strength 1 keeps the color and strength 0 is white.
func tint(strength float64) *[256]uint8 {
	var t [256]uint8
	for v := range t {
		t[v] = uint8(math.Round(float64(v)*strength + 255*(1-strength)))
	}
	return &t
}

// Render draws overlay o for the tile at tx, ty in the given mode. A nil
// fragment with a nil error means there is nothing to draw: the overlay is
// disabled, too large, outside the tile, or the mode does not rewrite tiles.
func (s *Service) Render(o *Overlay, tx, ty int, mode Mode) (*Fragment, error) {
	if !o.Renderable() || !mode.Rewrites() {
		return nil, nil
	}
	// Keyed by image as well so replacing the image lifts the restriction.
	large := o.ID + "|" + o.Image.ID
	if s.tooLarge.Has(large) {
		return nil, nil
	}

	w, h, err := s.imageSize(o.Image)
	if err != nil {
		return nil, err
	}
	if w >= s.opts.MaxOverlayDim || h >= s.opts.MaxOverlayDim {
		if s.tooLarge.Add(large) {
			s.warn(fmt.Sprintf("Overlay %q skipped: image too large (must be smaller than %d×%d; got %d×%d).", o.Name, s.opts.MaxOverlayDim, s.opts.MaxOverlayDim, w, h),
				zap.String("overlay", o.ID), zap.Int("width", w), zap.Int("height", h))
		}
		return nil, nil
	}

	m, err := s.decodeImage(o.Image)
	if err != nil {
		return nil, err
	}

	c := tile.Coord{X: tx, Y: ty}
	placed := tile.Place(o.Anchor(), o.Offset(), c, s.opts.TileSize, w, h)

	perfect := s.palettePerfect(o.Image.ID, m)
	minify, glyphs := s.minifyState()
	key := CacheKey(o, Signature(o, &perfect), c, mode, minify)
	if f, ok := s.fragments.Get(key); ok {
		return f, nil
	}

	var f *Fragment
	switch {
	case mode != ModeMinify:
		f = s.renderFull(o, m, placed)
	case minify.Style == StyleSymbols:
		f = s.renderSymbols(o, m, placed, perfect, glyphs)
	default:
		f = s.renderDots(o, m, placed)
	}

	s.fragments.Set(key, f)
	return f, nil
}

// renderFull draws the part of m inside the tile blended towards white by
// the overlay's opacity. Visible pixels become fully opaque; filtered
// pixels and the sentinel become transparent.
func (s *Service) renderFull(o *Overlay, m *image.NRGBA, placed image.Rectangle) *Fragment {
	r := image.Rect(0, 0, s.opts.TileSize, s.opts.TileSize).Intersect(placed)
	if r.Empty() {
		return nil
	}

	lut := tint(o.opacity())
	filter := o.filter()
	out := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))

	for y := 0; y < r.Dy(); y++ {
		si := m.PixOffset(r.Min.X-placed.Min.X, r.Min.Y-placed.Min.Y+y)
		di := out.PixOffset(0, y)
		for x := 0; x < r.Dx(); x, si, di = x+1, si+4, di+4 {
			p := m.Pix[si : si+4 : si+4]
			if p[3] == 0 {
				continue
			}
			c := palette.RGB{R: p[0], G: p[1], B: p[2]}
			if palette.IsSentinel(c) || filter.drops(c) {
				continue
			}
			out.Pix[di+0] = lut[c.R]
			out.Pix[di+1] = lut[c.G]
			out.Pix[di+2] = lut[c.B]
			out.Pix[di+3] = 0xff
		}
	}

	return &Fragment{
		Image:  out,
		Offset: r.Min,
	}
}

// renderDots draws every source pixel as a single dot at the center of its
// block in the upscaled tile, leaving the rest of the block transparent.
func (s *Service) renderDots(o *Overlay, m *image.NRGBA, placed image.Rectangle) *Fragment {
	scale := s.opts.DotScale
	size := s.opts.TileSize * scale
	scaled := image.Rectangle{Min: placed.Min.Mul(scale), Max: placed.Max.Mul(scale)}

	r := image.Rect(0, 0, size, size).Intersect(scaled)
	if r.Empty() {
		return nil
	}

	filter := o.filter()
	center := scale / 2
	out := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))

	for sy := 0; sy < m.Rect.Dy(); sy++ {
		cy := scaled.Min.Y + sy*scale + center
		if cy < r.Min.Y || cy >= r.Max.Y {
			continue
		}
		for sx := 0; sx < m.Rect.Dx(); sx++ {
			cx := scaled.Min.X + sx*scale + center
			if cx < r.Min.X || cx >= r.Max.X {
				continue
			}
			si := m.PixOffset(sx, sy)
			p := m.Pix[si : si+4 : si+4]
			if p[3] == 0 {
				continue
			}
			c := palette.RGB{R: p[0], G: p[1], B: p[2]}
			if palette.IsSentinel(c) || filter.drops(c) {
				continue
			}
			di := out.PixOffset(cx-r.Min.X, cy-r.Min.Y)
			out.Pix[di+0] = c.R
			out.Pix[di+1] = c.G
			out.Pix[di+2] = c.B
			out.Pix[di+3] = 0xff
		}
	}

	return &Fragment{
		Image:  out,
		Offset: r.Min,
		Scaled: true,
		Scale:  scale,
	}
}

// renderSymbols quantizes every visible pixel to the palette and stamps the
// glyph for that color, in the color itself, centered in the pixel's block
// of the upscaled tile.
func (s *Service) renderSymbols(o *Overlay, m *image.NRGBA, placed image.Rectangle, perfect bool, glyphs []symbol.Glyph) *Fragment {
	scale := s.opts.SymbolScale
	r := image.Rect(0, 0, s.opts.TileSize, s.opts.TileSize).Intersect(placed)
	if r.Empty() {
		return nil
	}

	filter := o.filter()
	out := image.NewNRGBA(image.Rect(0, 0, r.Dx()*scale, r.Dy()*scale))
	cx, cy := (scale-symbol.Width)>>1, (scale-symbol.Height)>>1

	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			si := m.PixOffset(x-placed.Min.X, y-placed.Min.Y)
			p := m.Pix[si : si+4 : si+4]
			if p[3] <= symbolAlpha {
				continue
			}
			c := palette.RGB{R: p[0], G: p[1], B: p[2]}
			if palette.IsSentinel(c) || filter.drops(c) {
				continue
			}

			var i int
			if perfect {
				i, _ = palette.Lookup(c)
			} else {
				i = s.quantizer.Index(c)
			}
			if i >= len(glyphs) {
				continue
			}
			g, col := glyphs[i], palette.All[i].RGB

			bx := (x-r.Min.X)*scale + cx
			by := (y-r.Min.Y)*scale + cy
			for gy := 0; gy < symbol.Height; gy++ {
				oy := by + gy
				if oy < 0 || oy >= out.Rect.Dy() {
					continue
				}
				for gx := 0; gx < symbol.Width; gx++ {
					ox := bx + gx
					if ox < 0 || ox >= out.Rect.Dx() || !g.Set(gx, gy) {
						continue
					}
					di := out.PixOffset(ox, oy)
					out.Pix[di+0] = col.R
					out.Pix[di+1] = col.G
					out.Pix[di+2] = col.B
					out.Pix[di+3] = 0xff
				}
			}
		}
	}

	return &Fragment{
		Image:  out,
		Offset: r.Min.Mul(scale),
		Scaled: true,
		Scale:  scale,
	}
}
