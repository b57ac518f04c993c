package symbol

import (
	"testing"

	"github.com/bodgit/overlay/palette"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	g := parse("#....", ".....", ".....", ".....", "....#")
	assert.True(t, g.Set(0, 0))
	assert.True(t, g.Set(4, 4))
	assert.False(t, g.Set(1, 0))
	assert.Equal(t, Glyph(1|1<<24), g)
}

func TestScheme(t *testing.T) {
	for _, s := range []Scheme{SchemeSymbols, SchemeLetters, SchemeNumbers} {
		p, err := ParseScheme(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, p)
	}
	_, err := ParseScheme("emoji")
	assert.Error(t, err)

	var s Scheme
	require.NoError(t, s.UnmarshalText([]byte("LETTERS")))
	assert.Equal(t, SchemeLetters, s)
}

func TestSymbolsDistinct(t *testing.T) {
	g := Glyphs(SchemeSymbols)
	require.Len(t, g, palette.Len())
	seen := make(map[Glyph]int)
	for i, s := range g {
		assert.NotZero(t, s)
		j, ok := seen[s]
		assert.False(t, ok, "index %d repeats glyph of %d", i, j)
		seen[s] = i
	}
}

func TestLetters(t *testing.T) {
	g := Glyphs(SchemeLetters)
	assert.Equal(t, letters['B'-'A'], g[0]) // Black
	assert.Equal(t, letters['R'-'A'], g[6]) // Red
	assert.Equal(t, shapeTable[3], Letter("", 3))
}

func TestNumbers(t *testing.T) {
	g := Glyphs(SchemeNumbers)
	assert.Equal(t, digits[1], g[0])
	assert.Equal(t, digits[0], g[9])
	assert.Equal(t, digits[1], g[10])
}
