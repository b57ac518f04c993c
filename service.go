package overlay

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/bodgit/overlay/cache"
	"github.com/bodgit/overlay/palette"
	"github.com/bodgit/overlay/raster"
	"github.com/bodgit/overlay/symbol"
	"github.com/bodgit/overlay/tile"
	"go.uber.org/zap"
)

// Options configures a Service.
type Options struct {
	// TileSize is the side length of a world tile in pixels.
	TileSize int
	// MaxOverlayDim is the exclusive upper bound on either dimension of an
	// overlay image.
	MaxOverlayDim int
	// DotScale and SymbolScale are the minify upscale factors.
	DotScale    int
	SymbolScale int
	// LUTBuckets is the per channel size of the color lookup table.
	LUTBuckets int
	// MaxTileBytes is the largest original tile payload that is processed.
	MaxTileBytes int
	// Workers bounds how many overlays are rendered concurrently per tile.
	Workers int

	DecodeCacheSize  int
	PaletteCacheSize int
	OverlayCacheSize int
	BaseCacheSize    int

	// Notify receives user facing warnings, such as an overlay being too
	// large to draw.
	Notify func(string)
}

// DefaultOptions returns the options matching the live game.
func DefaultOptions() Options {
	return Options{
		TileSize:         tile.Size,
		MaxOverlayDim:    1000,
		DotScale:         3,
		SymbolScale:      7,
		LUTBuckets:       palette.DefaultBuckets,
		MaxTileBytes:     15 << (10 * 2),
		Workers:          4,
		DecodeCacheSize:  64,
		PaletteCacheSize: 200,
		OverlayCacheSize: 500,
		BaseCacheSize:    100,
	}
}

func (o Options) validate() error {
	switch {
	case o.TileSize <= 0:
		return errors.New("overlay: tile size must be positive")
	case o.MaxOverlayDim <= 0:
		return errors.New("overlay: maximum overlay dimension must be positive")
	case o.DotScale < 1 || o.SymbolScale < 1:
		return errors.New("overlay: minify scale must be at least 1")
	case o.MaxTileBytes <= 0:
		return errors.New("overlay: maximum tile size must be positive")
	}
	return nil
}

// Minify holds the settings that only matter in ModeMinify.
type Minify struct {
	Style  Style         `json:"style"`
	Scheme symbol.Scheme `json:"scheme"`
}

// Service owns the caches and performs rendering and compositing. A Service
// is safe for concurrent use.
type Service struct {
	opts      Options
	logger    *zap.Logger
	quantizer *palette.Quantizer
	decode    func([]byte) (*image.NRGBA, error)

	images    *cache.Store[string, *image.NRGBA]
	perfect   *cache.Store[string, bool]
	fragments *cache.Store[string, *Fragment]
	bases     *cache.Store[string, *image.RGBA]
	tooLarge  *cache.Set

	mu     sync.RWMutex
	minify Minify
	glyphs []symbol.Glyph
}

// New returns a Service. A nil logger discards all output.
func New(opts Options, logger *zap.Logger) (*Service, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	q, err := palette.NewQuantizer(opts.LUTBuckets)
	if err != nil {
		return nil, err
	}

	s := &Service{
		opts:      opts,
		logger:    logger,
		quantizer: q,
		decode:    raster.DecodeBytes,
		tooLarge:  cache.NewSet(),
		glyphs:    symbol.Glyphs(symbol.SchemeSymbols),
		minify:    Minify{Style: StyleDots, Scheme: symbol.SchemeSymbols},
	}

	if s.images, err = cache.New[string, *image.NRGBA]("decode", opts.DecodeCacheSize); err != nil {
		return nil, fmt.Errorf("decode cache: %w", err)
	}
	if s.perfect, err = cache.New[string, bool]("palette", opts.PaletteCacheSize); err != nil {
		return nil, fmt.Errorf("palette cache: %w", err)
	}
	if s.fragments, err = cache.New[string, *Fragment]("overlay", opts.OverlayCacheSize); err != nil {
		return nil, fmt.Errorf("overlay cache: %w", err)
	}
	if s.bases, err = cache.New[string, *image.RGBA]("base", opts.BaseCacheSize); err != nil {
		return nil, fmt.Errorf("base cache: %w", err)
	}

	return s, nil
}

// Options returns the options the Service was created with.
func (s *Service) Options() Options {
	return s.opts
}

// Minify returns the current minify settings.
func (s *Service) Minify() Minify {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.minify
}

// SetMinify changes the minify settings, invalidating every cache if they
// differ from the current ones.
func (s *Service) SetMinify(m Minify) {
	s.mu.Lock()
	if s.minify == m {
		s.mu.Unlock()
		return
	}
	s.minify = m
	s.glyphs = symbol.Glyphs(m.Scheme)
	s.mu.Unlock()

	s.logger.Debug("minify settings changed", zap.Stringer("style", m.Style), zap.Stringer("scheme", m.Scheme))
	s.InvalidateAll()
}

func (s *Service) minifyState() (Minify, []symbol.Glyph) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.minify, s.glyphs
}

func (s *Service) scale(st Style) int {
	if st == StyleSymbols {
		return s.opts.SymbolScale
	}
	return s.opts.DotScale
}

// InvalidateAll clears every cache and forgets which overlays were too
// large.
func (s *Service) InvalidateAll() {
	s.images.Clear()
	s.perfect.Clear()
	s.fragments.Clear()
	s.bases.Clear()
	s.tooLarge.Clear()
}

// Close releases everything the Service holds.
func (s *Service) Close() error {
	s.InvalidateAll()
	return nil
}

// CacheStats returns a snapshot of every cache.
func (s *Service) CacheStats() []cache.Stats {
	return []cache.Stats{
		s.images.Stats(),
		s.perfect.Stats(),
		s.fragments.Stats(),
		s.bases.Stats(),
	}
}

// imageSize returns the dimensions of img, reading only the image header
// unless it is already decoded.
func (s *Service) imageSize(img *Image) (int, int, error) {
	if m, ok := s.images.Get(img.ID); ok {
		return m.Rect.Dx(), m.Rect.Dy(), nil
	}
	c, err := raster.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		return 0, 0, fmt.Errorf("decode overlay image: %w", err)
	}
	return c.Width, c.Height, nil
}

func (s *Service) decodeImage(img *Image) (*image.NRGBA, error) {
	if m, ok := s.images.Get(img.ID); ok {
		return m, nil
	}
	m, err := s.decode(img.Data)
	if err != nil {
		return nil, fmt.Errorf("decode overlay image: %w", err)
	}
	s.images.Set(img.ID, m)
	return m, nil
}

func (s *Service) palettePerfect(id string, m *image.NRGBA) bool {
	if ok, found := s.perfect.Get(id); found {
		return ok
	}
	ok := palette.IsPerfect(m)
	s.perfect.Set(id, ok)
	return ok
}

// IsPalettePerfect reports whether every visible, non-sentinel pixel of img
// is exactly a palette color. The result is memoized by image identity.
func (s *Service) IsPalettePerfect(img *Image) (bool, error) {
	if ok, found := s.perfect.Get(img.ID); found {
		return ok, nil
	}
	m, err := s.decodeImage(img)
	if err != nil {
		return false, err
	}
	return s.palettePerfect(img.ID, m), nil
}

func (s *Service) warn(msg string, fields ...zap.Field) {
	s.logger.Warn(msg, fields...)
	if s.opts.Notify != nil {
		s.opts.Notify(msg)
	}
}
