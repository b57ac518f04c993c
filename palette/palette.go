/*
Package palette implements the fixed Wplace color palette and nearest color
resolution against it.

The palette is the concatenation of the free colors followed by the paid
colors. The position of a color in that list is its canonical index, which is
what minified symbol rendering keys on, so the order must never change.

The color 0xDEFACE is reserved by upstream tooling to mean transparent. It is
never matched against the palette and is skipped wherever it appears.
*/
package palette

import (
	"fmt"
	"image/color"
)

// RGB is an opaque 8-bit per channel color.
type RGB struct {
	R, G, B uint8
}

// RGBA implements color.Color. The color is always fully opaque.
func (c RGB) RGBA() (r, g, b, a uint32) {
	r = uint32(c.R)
	r |= r << 8
	g = uint32(c.G)
	g |= g << 8
	b = uint32(c.B)
	b |= b << 8
	return r, g, b, 0xffff
}

// Key returns the "r,g,b" form used by per-color filters.
func (c RGB) Key() string {
	return fmt.Sprintf("%d,%d,%d", c.R, c.G, c.B)
}

// Hex returns the color as #rrggbb.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c RGB) packed() uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

// ParseKey is the inverse of RGB.Key.
func ParseKey(key string) (RGB, error) {
	var r, g, b uint8
	if _, err := fmt.Sscanf(key, "%d,%d,%d", &r, &g, &b); err != nil {
		return RGB{}, fmt.Errorf("palette: invalid color key %q: %w", key, err)
	}
	return RGB{r, g, b}, nil
}

// Color is a named palette entry.
type Color struct {
	Name string
	RGB
}

// Sentinel is the reserved transparency color.
var Sentinel = RGB{0xde, 0xfa, 0xce}

// IsSentinel reports whether c is the reserved transparency color.
func IsSentinel(c RGB) bool {
	return c == Sentinel
}

// Free lists the colors available to every player.
var Free = []Color{
	{"Black", RGB{0, 0, 0}},
	{"Dark Gray", RGB{60, 60, 60}},
	{"Gray", RGB{120, 120, 120}},
	{"Light Gray", RGB{210, 210, 210}},
	{"White", RGB{255, 255, 255}},
	{"Deep Red", RGB{96, 0, 24}},
	{"Red", RGB{237, 28, 36}},
	{"Orange", RGB{255, 127, 39}},
	{"Gold", RGB{246, 170, 9}},
	{"Yellow", RGB{249, 221, 59}},
	{"Light Yellow", RGB{255, 250, 188}},
	{"Dark Green", RGB{14, 185, 104}},
	{"Green", RGB{19, 230, 123}},
	{"Light Green", RGB{135, 255, 94}},
	{"Dark Teal", RGB{12, 129, 110}},
	{"Teal", RGB{16, 174, 166}},
	{"Light Teal", RGB{19, 225, 190}},
	{"Dark Blue", RGB{40, 80, 158}},
	{"Blue", RGB{64, 147, 228}},
	{"Cyan", RGB{96, 247, 242}},
	{"Indigo", RGB{107, 80, 246}},
	{"Light Indigo", RGB{153, 177, 251}},
	{"Dark Purple", RGB{120, 12, 153}},
	{"Purple", RGB{170, 56, 185}},
	{"Light Purple", RGB{224, 159, 249}},
	{"Dark Pink", RGB{203, 0, 122}},
	{"Pink", RGB{236, 31, 128}},
	{"Light Pink", RGB{243, 141, 169}},
	{"Dark Brown", RGB{104, 70, 52}},
	{"Brown", RGB{149, 104, 42}},
	{"Beige", RGB{248, 178, 119}},
}

// Paid lists the colors that have to be unlocked.
var Paid = []Color{
	{"Medium Gray", RGB{170, 170, 170}},
	{"Dark Red", RGB{165, 14, 30}},
	{"Light Red", RGB{250, 128, 114}},
	{"Dark Orange", RGB{228, 92, 26}},
	{"Light Tan", RGB{214, 181, 148}},
	{"Dark Goldenrod", RGB{156, 132, 49}},
	{"Goldenrod", RGB{197, 173, 49}},
	{"Light Goldenrod", RGB{232, 212, 95}},
	{"Dark Olive", RGB{74, 107, 58}},
	{"Olive", RGB{90, 148, 74}},
	{"Light Olive", RGB{132, 197, 115}},
	{"Dark Cyan", RGB{15, 121, 159}},
	{"Light Cyan", RGB{187, 250, 242}},
	{"Light Blue", RGB{125, 199, 255}},
	{"Dark Indigo", RGB{77, 49, 184}},
	{"Dark Slate Blue", RGB{74, 66, 132}},
	{"Slate Blue", RGB{122, 113, 196}},
	{"Light Slate Blue", RGB{181, 174, 241}},
	{"Light Brown", RGB{219, 164, 99}},
	{"Dark Beige", RGB{209, 128, 81}},
	{"Light Beige", RGB{255, 197, 165}},
	{"Dark Peach", RGB{155, 82, 73}},
	{"Peach", RGB{209, 128, 120}},
	{"Light Peach", RGB{250, 182, 164}},
	{"Dark Tan", RGB{123, 99, 82}},
	{"Tan", RGB{156, 132, 107}},
	{"Dark Slate", RGB{51, 57, 65}},
	{"Slate", RGB{109, 117, 141}},
	{"Light Slate", RGB{179, 185, 209}},
	{"Dark Stone", RGB{109, 100, 63}},
	{"Stone", RGB{148, 140, 107}},
	{"Light Stone", RGB{205, 197, 158}},
}

// All is Free followed by Paid; a color's position is its index.
var All = append(append(make([]Color, 0, len(Free)+len(Paid)), Free...), Paid...)

var exact = func() map[uint32]int {
	m := make(map[uint32]int, len(All))
	for i, c := range All {
		// First occurrence wins so indices stay unique per triple
		if _, ok := m[c.packed()]; !ok {
			m[c.packed()] = i
		}
	}
	return m
}()

// Len returns the number of palette entries.
func Len() int {
	return len(All)
}

// Lookup returns the index of c if it is exactly a palette entry.
func Lookup(c RGB) (int, bool) {
	i, ok := exact[c.packed()]
	return i, ok
}

func sqDist(a, b RGB) int {
	dr := int(a.R) - int(b.R)
	dg := int(a.G) - int(b.G)
	db := int(a.B) - int(b.B)
	return dr*dr + dg*dg + db*db
}

// Nearest returns the index of the closest palette color to c by Euclidean
// distance in RGB space. Ties go to the earliest index.
func Nearest(c RGB) int {
	if i, ok := Lookup(c); ok {
		return i
	}
	return nearest(c)
}

func nearest(c RGB) int {
	best, index := int(^uint(0)>>1), 0
	for i, p := range All {
		if d := sqDist(c, p.RGB); d < best {
			best, index = d, i
		}
	}
	return index
}

// ColorPalette returns the palette as a color.Palette in index order.
func ColorPalette() color.Palette {
	p := make(color.Palette, len(All))
	for i, c := range All {
		p[i] = c.RGB
	}
	return p
}
