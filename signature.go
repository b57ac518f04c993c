package overlay

import (
	"fmt"
	"hash/crc32"
	"strconv"
	"strings"

	"github.com/bodgit/overlay/tile"
)

const imageKeyTrim = 64

// Signature summarises every field of o that changes how it renders. perfect
// is nil when the palette classification has not been computed yet.
func Signature(o *Overlay, perfect *bool) string {
	img := "none"
	if o.Image != nil {
		img = fmt.Sprintf("%.*s:%d", imageKeyTrim, o.Image.ID, len(o.Image.Data))
	}

	pixel := o.PixelURL
	if pixel == "" {
		pixel = "null"
	}

	flag := "U"
	if perfect != nil {
		if *perfect {
			flag = "P"
		} else {
			flag = "I"
		}
	}

	filter := "-"
	if ex := o.excluded(); len(ex) > 0 {
		filter = fmt.Sprintf("%.*X", crc32.Size<<1, crc32.ChecksumIEEE([]byte(strings.Join(ex, ";"))))
	}

	return strings.Join([]string{
		img,
		pixel,
		strconv.Itoa(o.OffsetX),
		strconv.Itoa(o.OffsetY),
		strconv.FormatFloat(o.Opacity, 'g', -1, 64),
		flag,
		filter,
	}, "|")
}

// CacheKey identifies the fragment for overlay o with signature sig drawn on
// tile c.
func CacheKey(o *Overlay, sig string, c tile.Coord, mode Mode, m Minify) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ov:%s|sig:%s|tile:%d,%d|mode:%s", o.ID, sig, c.X, c.Y, mode)
	if mode == ModeMinify {
		fmt.Fprintf(&b, ":%s", m.Style)
		if m.Style == StyleSymbols {
			fmt.Fprintf(&b, ":%s", m.Scheme)
		}
	}
	return b.String()
}
