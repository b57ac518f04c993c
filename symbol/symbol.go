/*
Package symbol implements the small bitmap glyphs stamped into minified tiles.

Every glyph is 5 by 5 pixels stored as a 25-bit mask, bit y*5+x set when the
pixel is drawn. Which glyph a palette color gets depends on the scheme: the
first letter of the color's name, a distinct shape per palette position, or a
repeating digit sequence.
*/
package symbol

import (
	"errors"
	"math/bits"
	"strings"

	"github.com/bodgit/overlay/palette"
)

const (
	Width  = 5
	Height = 5
)

// Glyph is a Width by Height bitmap.
type Glyph uint32

// Set reports whether the pixel at x, y is drawn.
func (g Glyph) Set(x, y int) bool {
	return g>>(uint(y*Width+x))&1 != 0
}

// Scheme selects how glyphs are assigned to palette colors.
type Scheme int

const (
	SchemeSymbols Scheme = iota
	SchemeLetters
	SchemeNumbers
)

var schemeNames = [...]string{
	SchemeSymbols: "symbols",
	SchemeLetters: "letters",
	SchemeNumbers: "numbers",
}

var errScheme = errors.New("symbol: unknown scheme")

func (s Scheme) String() string {
	if s < 0 || int(s) >= len(schemeNames) {
		return "unknown"
	}
	return schemeNames[s]
}

// ParseScheme is the inverse of Scheme.String.
func ParseScheme(s string) (Scheme, error) {
	for i, n := range schemeNames {
		if strings.EqualFold(s, n) {
			return Scheme(i), nil
		}
	}
	return 0, errScheme
}

// MarshalText implements encoding.TextMarshaler.
func (s Scheme) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Scheme) UnmarshalText(b []byte) error {
	v, err := ParseScheme(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func parse(rows ...string) Glyph {
	var g Glyph
	for y, row := range rows {
		for x, c := range row {
			if c == '#' {
				g |= 1 << uint(y*Width+x)
			}
		}
	}
	return g
}

var letters = [26]Glyph{
	parse(".###.", "#...#", "#####", "#...#", "#...#"),
	parse("####.", "#...#", "####.", "#...#", "####."),
	parse(".####", "#....", "#....", "#....", ".####"),
	parse("####.", "#...#", "#...#", "#...#", "####."),
	parse("#####", "#....", "####.", "#....", "#####"),
	parse("#####", "#....", "####.", "#....", "#...."),
	parse(".####", "#....", "#..##", "#...#", ".###."),
	parse("#...#", "#...#", "#####", "#...#", "#...#"),
	parse("#####", "..#..", "..#..", "..#..", "#####"),
	parse("..###", "...#.", "...#.", "#..#.", ".##.."),
	parse("#...#", "#..#.", "###..", "#..#.", "#...#"),
	parse("#....", "#....", "#....", "#....", "#####"),
	parse("#...#", "##.##", "#.#.#", "#...#", "#...#"),
	parse("#...#", "##..#", "#.#.#", "#..##", "#...#"),
	parse(".###.", "#...#", "#...#", "#...#", ".###."),
	parse("####.", "#...#", "####.", "#....", "#...."),
	parse(".###.", "#...#", "#.#.#", "#..#.", ".##.#"),
	parse("####.", "#...#", "####.", "#..#.", "#...#"),
	parse(".####", "#....", ".###.", "....#", "####."),
	parse("#####", "..#..", "..#..", "..#..", "..#.."),
	parse("#...#", "#...#", "#...#", "#...#", ".###."),
	parse("#...#", "#...#", "#...#", ".#.#.", "..#.."),
	parse("#...#", "#...#", "#.#.#", "##.##", "#...#"),
	parse("#...#", ".#.#.", "..#..", ".#.#.", "#...#"),
	parse("#...#", ".#.#.", "..#..", "..#..", "..#.."),
	parse("#####", "...#.", "..#..", ".#...", "#####"),
}

var digits = [10]Glyph{
	parse(".###.", "#..##", "#.#.#", "##..#", ".###."),
	parse("..#..", ".##..", "..#..", "..#..", ".###."),
	parse(".###.", "#...#", "..##.", ".#...", "#####"),
	parse("####.", "....#", ".###.", "....#", "####."),
	parse("#..#.", "#..#.", "#####", "...#.", "...#."),
	parse("#####", "#....", "####.", "....#", "####."),
	parse(".###.", "#....", "####.", "#...#", ".###."),
	parse("#####", "....#", "...#.", "..#..", "..#.."),
	parse(".###.", "#...#", ".###.", "#...#", ".###."),
	parse(".###.", "#...#", ".####", "....#", ".###."),
}

// mirror builds a left/right symmetric glyph from the 15 bits describing its
// three leftmost columns.
func mirror(half uint32) Glyph {
	var g Glyph
	for y := 0; y < Height; y++ {
		for x := 0; x < 3; x++ {
			if half>>(uint(y*3+x))&1 != 0 {
				g |= 1 << uint(y*Width+x)
				g |= 1 << uint(y*Width+Width-1-x)
			}
		}
	}
	return g
}

// shapes generates n distinct symmetric glyphs with a readable amount of ink.
// The sequence is deterministic so a color keeps its shape between runs.
func shapes(n int) []Glyph {
	out := make([]Glyph, 0, n)
	seen := make(map[Glyph]struct{}, n)
	for _, g := range letters {
		seen[g] = struct{}{}
	}
	for _, g := range digits {
		seen[g] = struct{}{}
	}

	// Full period LCG over the 15-bit space
	for half, i := uint32(0x2b5d), 0; len(out) < n && i < 1<<15; i++ {
		half = (half*1105 + 12345) & (1<<15 - 1)
		g := mirror(half)
		if c := bits.OnesCount32(uint32(g)); c < 9 || c > 15 {
			continue
		}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}

var shapeTable = shapes(palette.Len())

// Glyphs returns one glyph per palette index for the scheme.
func Glyphs(s Scheme) []Glyph {
	out := make([]Glyph, palette.Len())
	for i, c := range palette.All {
		switch s {
		case SchemeLetters:
			out[i] = Letter(c.Name, i)
		case SchemeNumbers:
			out[i] = digits[(i+1)%10]
		default:
			out[i] = shapeTable[i]
		}
	}
	return out
}

// Letter returns the glyph for the first letter of name, falling back to
// the shape for index when name does not start with a letter.
func Letter(name string, index int) Glyph {
	if name != "" {
		c := strings.ToUpper(name)[0]
		if c >= 'A' && c <= 'Z' {
			return letters[c-'A']
		}
	}
	return shapeTable[index%len(shapeTable)]
}
