package overlay

import (
	"image"

	"github.com/bodgit/overlay/palette"
)

// ColorStats counts the visible, non-sentinel pixels of m by "r,g,b" key.
func ColorStats(m *image.NRGBA) map[string]int {
	counts := make(map[palette.RGB]int)
	for y := m.Rect.Min.Y; y < m.Rect.Max.Y; y++ {
		i := m.PixOffset(m.Rect.Min.X, y)
		for x := m.Rect.Min.X; x < m.Rect.Max.X; x, i = x+1, i+4 {
			p := m.Pix[i : i+4 : i+4]
			if p[3] == 0 {
				continue
			}
			c := palette.RGB{R: p[0], G: p[1], B: p[2]}
			if palette.IsSentinel(c) {
				continue
			}
			counts[c]++
		}
	}

	stats := make(map[string]int, len(counts))
	for c, n := range counts {
		stats[c.Key()] = n
	}
	return stats
}

// DefaultFilter returns a color filter that includes every color in stats.
func DefaultFilter(stats map[string]int) map[string]bool {
	f := make(map[string]bool, len(stats))
	for k := range stats {
		f[k] = true
	}
	return f
}
