package tile

import (
	"fmt"
	"image"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// DefaultBackend is the game backend serving tiles and pixel information.
const DefaultBackend = "https://backend.wplace.live"

var (
	tilePath  = regexp.MustCompile(`(?i)^/files/(?:.*/)?(\d+)/(\d+)\.png$`)
	pixelPath = regexp.MustCompile(`^/s0/pixel/(\d+)/(\d+)$`)
)

// MatchTilePath reports whether path is a tile image request and returns the
// tile it addresses.
func MatchTilePath(path string) (Coord, bool) {
	m := tilePath.FindStringSubmatch(path)
	if m == nil {
		return Coord{}, false
	}
	x, err := strconv.Atoi(m[1])
	if err != nil {
		return Coord{}, false
	}
	y, err := strconv.Atoi(m[2])
	if err != nil {
		return Coord{}, false
	}
	return Coord{x, y}, true
}

// MatchPixelURL reports whether u is a pixel information request and returns
// the anchor it refers to.
func MatchPixelURL(u *url.URL) (Anchor, bool) {
	if !pixelPath.MatchString(u.Path) {
		return Anchor{}, false
	}
	return anchorFromURL(u), true
}

// ParseAnchor extracts the anchor from a pixel URL of the form
// .../s0/pixel/{tx}/{ty}?x={px}&y={py}. Any part that cannot be parsed is
// taken as zero.
func ParseAnchor(raw string) Anchor {
	u, err := url.Parse(raw)
	if err != nil {
		return Anchor{}
	}
	return anchorFromURL(u)
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func anchorFromURL(u *url.URL) Anchor {
	var a Anchor
	parts := strings.Split(u.Path, "/")
	if len(parts) > 4 {
		a.Tile = Coord{atoi(parts[3]), atoi(parts[4])}
	}
	q := u.Query()
	a.Pixel = image.Pt(atoi(q.Get("x")), atoi(q.Get("y")))
	return a
}

// PixelURL returns the normalised pixel URL for a on the given backend.
func PixelURL(backend string, a Anchor) string {
	return fmt.Sprintf("%s/s0/pixel/%d/%d?x=%d&y=%d", strings.TrimSuffix(backend, "/"), a.Tile.X, a.Tile.Y, a.Pixel.X, a.Pixel.Y)
}
