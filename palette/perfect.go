package palette

import "image"

// IsPerfect reports whether every visible pixel of m is exactly a palette
// color. Fully transparent pixels and the sentinel are ignored.
func IsPerfect(m *image.NRGBA) bool {
	b := m.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		i := m.PixOffset(b.Min.X, y)
		for x := b.Min.X; x < b.Max.X; x, i = x+1, i+4 {
			if m.Pix[i+3] == 0 {
				continue
			}
			c := RGB{m.Pix[i], m.Pix[i+1], m.Pix[i+2]}
			if IsSentinel(c) {
				continue
			}
			if _, ok := Lookup(c); !ok {
				return false
			}
		}
	}
	return true
}
