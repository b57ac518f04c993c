package overlay

import (
	"errors"
	"strings"
)

// Mode selects how overlays are composited with the original tile.
type Mode int

const (
	// ModeBehind draws overlays underneath the original tile.
	ModeBehind Mode = iota
	// ModeAbove draws overlays on top of the original tile.
	ModeAbove
	// ModeMinify upscales the tile and marks overlay pixels with dots or
	// symbols.
	ModeMinify
	// ModeOriginal leaves tiles untouched.
	ModeOriginal
)

var modeNames = [...]string{
	ModeBehind:   "behind",
	ModeAbove:    "above",
	ModeMinify:   "minify",
	ModeOriginal: "original",
}

var (
	errMode  = errors.New("overlay: unknown mode")
	errStyle = errors.New("overlay: unknown minify style")
)

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return "unknown"
	}
	return modeNames[m]
}

// Rewrites reports whether tiles are modified in this mode.
func (m Mode) Rewrites() bool {
	return m == ModeBehind || m == ModeAbove || m == ModeMinify
}

// ParseMode is the inverse of Mode.String.
func ParseMode(s string) (Mode, error) {
	for i, n := range modeNames {
		if strings.EqualFold(s, n) {
			return Mode(i), nil
		}
	}
	return 0, errMode
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Style selects the minified representation.
type Style int

const (
	StyleDots Style = iota
	StyleSymbols
)

var styleNames = [...]string{
	StyleDots:    "dots",
	StyleSymbols: "symbols",
}

func (s Style) String() string {
	if s < 0 || int(s) >= len(styleNames) {
		return "unknown"
	}
	return styleNames[s]
}

// ParseStyle is the inverse of Style.String.
func ParseStyle(s string) (Style, error) {
	for i, n := range styleNames {
		if strings.EqualFold(s, n) {
			return Style(i), nil
		}
	}
	return 0, errStyle
}

// MarshalText implements encoding.TextMarshaler.
func (s Style) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Style) UnmarshalText(b []byte) error {
	v, err := ParseStyle(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
