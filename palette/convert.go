package palette

import (
	"image"
	"image/color"

	"github.com/ericpauley/go-quantize/quantize"
	"golang.org/x/image/draw"
)

// Pixels with less alpha than this are treated as transparent when
// converting.
const alphaThreshold = 0x80

// ConvertOptions controls Convert.
type ConvertOptions struct {
	// MaxColors limits the number of distinct palette colors in the output.
	// Zero means any palette color may be used.
	MaxColors int

	// Dither enables Floyd-Steinberg error diffusion.
	Dither bool
}

// reduce picks at most n colors for m with a median cut and snaps each of
// them to the nearest palette entry, dropping duplicates.
func reduce(m image.Image, n int) color.Palette {
	q := quantize.MedianCutQuantizer{}
	p := make(color.Palette, 0, n)
	seen := make(map[int]struct{})
	for _, c := range q.Quantize(make(color.Palette, 0, n), m) {
		nc := color.NRGBAModel.Convert(c).(color.NRGBA)
		if nc.A < alphaThreshold {
			continue
		}
		i := Nearest(RGB{nc.R, nc.G, nc.B})
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		p = append(p, All[i].RGB)
	}
	if len(p) == 0 {
		return ColorPalette()
	}
	return p
}

// Convert recolors m to the palette. Pixels that are mostly transparent or
// are the sentinel color become fully transparent.
func Convert(m image.Image, o ConvertOptions) *image.NRGBA {
	b := m.Bounds()
	r := image.Rect(0, 0, b.Dx(), b.Dy())

	target := ColorPalette()
	if o.MaxColors > 0 && o.MaxColors < len(target) {
		target = reduce(m, o.MaxColors)
	}

	pm := image.NewPaletted(r, target)
	if o.Dither {
		draw.FloydSteinberg.Draw(pm, r, m, b.Min)
	} else {
		draw.Draw(pm, r, m, b.Min, draw.Src)
	}

	out := image.NewNRGBA(r)
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			c := color.NRGBAModel.Convert(m.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			if c.A < alphaThreshold || IsSentinel(RGB{c.R, c.G, c.B}) {
				continue
			}
			p := target[pm.ColorIndexAt(x, y)].(RGB)
			out.SetNRGBA(x, y, color.NRGBA{p.R, p.G, p.B, 0xff})
		}
	}
	return out
}
