package overlay

import (
	"fmt"
	"hash/crc32"
	"image"

	"github.com/bodgit/overlay/raster"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

// Compose merges the fragments with the original tile image and returns the
// encoded result. Fragments are drawn in order so later ones land on top of
// earlier ones. With no fragments the original bytes are returned untouched.
func (s *Service) Compose(original []byte, fragments []*Fragment, mode Mode) ([]byte, error) {
	frags := fragments[:0:0]
	for _, f := range fragments {
		if f != nil && f.Image != nil && !f.Image.Rect.Empty() {
			frags = append(frags, f)
		}
	}
	if len(frags) == 0 || !mode.Rewrites() {
		return original, nil
	}

	base, err := s.decode(original)
	if err != nil {
		return nil, fmt.Errorf("decode tile: %w", err)
	}
	b := base.Bounds()

	var canvas *image.RGBA
	switch mode {
	case ModeMinify:
		// The canvas follows the fragments, which may predate a change
		// of minify style.
		scale := 0
		for _, f := range frags {
			if f.Scaled {
				scale = f.Scale
				break
			}
		}
		if scale == 0 {
			minify, _ := s.minifyState()
			scale = s.scale(minify.Style)
		}
		canvas = raster.CloneRGBA(s.scaledBase(original, base, scale))
		for _, f := range frags {
			if !f.Scaled || f.Scale != scale {
				s.logger.Debug("fragment scale mismatch", zap.Int("scale", f.Scale), zap.Int("canvas", scale))
				continue
			}
			draw.Draw(canvas, f.Bounds(), f.Image, f.Image.Rect.Min, draw.Over)
		}
	case ModeBehind:
		canvas = image.NewRGBA(b)
		for _, f := range frags {
			draw.Draw(canvas, f.Bounds(), f.Image, f.Image.Rect.Min, draw.Over)
		}
		draw.Draw(canvas, b, base, b.Min, draw.Over)
	default:
		canvas = image.NewRGBA(b)
		draw.Draw(canvas, b, base, b.Min, draw.Src)
		for _, f := range frags {
			draw.Draw(canvas, f.Bounds(), f.Image, f.Image.Rect.Min, draw.Over)
		}
	}

	out, err := raster.EncodeBytes(canvas)
	if err != nil {
		return nil, fmt.Errorf("encode tile: %w", err)
	}
	return out, nil
}

// scaledBase returns the original tile upscaled for minify mode. Many
// overlays redraw over the same base tile so the result is cached by the
// tile's content.
func (s *Service) scaledBase(original []byte, base *image.NRGBA, scale int) *image.RGBA {
	b := base.Bounds()
	key := fmt.Sprintf("base:%d:%.*X:%dx%d:%d", len(original), crc32.Size<<1, crc32.ChecksumIEEE(original), b.Dx(), b.Dy(), scale)
	if m, ok := s.bases.Get(key); ok && m != nil {
		return m
	}
	m := raster.Upscale(base, scale)
	s.bases.Set(key, m)
	return m
}
