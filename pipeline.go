package overlay

import (
	"context"
	"sync"

	"github.com/bodgit/overlay/tile"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Settings is the user configuration that affects tile rewriting.
type Settings struct {
	Mode          Mode   `json:"mode"`
	Minify        Minify `json:"minify"`
	AutoCapture   bool   `json:"autoCapture"`
	ActiveOverlay string `json:"activeOverlay,omitempty"`
}

// DefaultSettings returns the settings used before anything is configured.
func DefaultSettings() Settings {
	return Settings{
		Mode: ModeBehind,
	}
}

// Provider supplies the overlays and settings. Overlays are returned in the
// order they should be layered, first at the bottom.
type Provider interface {
	Overlays() ([]*Overlay, error)
	Settings() (Settings, error)
}

// Renderable returns the overlays that can be drawn, preserving order.
func Renderable(overlays []*Overlay) []*Overlay {
	var out []*Overlay
	for _, o := range overlays {
		if o.Renderable() {
			out = append(out, o)
		}
	}
	return out
}

// NeedsRewrite reports whether tile responses need to be intercepted at all,
// either to draw overlays or to capture an anchor for the active overlay.
func NeedsRewrite(st Settings, overlays []*Overlay) bool {
	if !st.Mode.Rewrites() || len(overlays) == 0 {
		return false
	}
	placing := st.AutoCapture && st.ActiveOverlay != ""
	for _, o := range overlays {
		if o.Enabled && o.Image != nil {
			return true
		}
	}
	return placing
}

type job struct {
	index   int
	overlay *Overlay
}

func (s *Service) feedOverlays(ctx context.Context, overlays []*Overlay) (<-chan job, <-chan error) {
	out := make(chan job)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		for i, o := range overlays {
			if err := ctx.Err(); err != nil {
				errc <- err
				return
			}
			select {
			case out <- job{i, o}:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()
	return out, errc
}

func (s *Service) renderWorker(c tile.Coord, mode Mode, in <-chan job, results []*Fragment) <-chan error {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		var errs error
		for j := range in {
			f, err := s.Render(j.overlay, c.X, c.Y, mode)
			if err != nil {
				s.logger.Debug("render failed", zap.String("overlay", j.overlay.ID), zap.Stringer("tile", c), zap.Error(err))
				errs = multierr.Append(errs, err)
				continue
			}
			results[j.index] = f
		}
		if errs != nil {
			errc <- errs
		}
	}()
	return errc
}

func waitForPipeline(errs ...<-chan error) error {
	var err error
	for e := range mergeErrors(errs...) {
		err = multierr.Append(err, e)
	}
	return err
}

func mergeErrors(cs ...<-chan error) <-chan error {
	var wg sync.WaitGroup
	out := make(chan error, len(cs))
	wg.Add(len(cs))
	for _, c := range cs {
		go func(c <-chan error) {
			for n := range c {
				out <- n
			}
			wg.Done()
		}(c)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// RenderAll renders every overlay for tile c, in parallel, returning the
// fragments in the same order as overlays. Entries are nil where there is
// nothing to draw. Errors from individual overlays are combined.
func (s *Service) RenderAll(ctx context.Context, overlays []*Overlay, c tile.Coord, mode Mode) ([]*Fragment, error) {
	results := make([]*Fragment, len(overlays))

	jobs, errc := s.feedOverlays(ctx, overlays)
	errcList := []<-chan error{errc}

	workers := s.opts.Workers
	if workers > len(overlays) {
		workers = len(overlays)
	}
	for i := 0; i < workers; i++ {
		errcList = append(errcList, s.renderWorker(c, mode, jobs, results))
	}

	if err := waitForPipeline(errcList...); err != nil {
		return nil, err
	}
	return results, nil
}

// Process rewrites the body of the tile image for tile c according to the
// provider's settings and overlays. It returns the new body and whether it
// differs from the original. On error the original body is returned along
// with the error so callers can fall back to it.
func (s *Service) Process(ctx context.Context, p Provider, c tile.Coord, body []byte) ([]byte, bool, error) {
	st, err := p.Settings()
	if err != nil {
		return body, false, err
	}
	if !st.Mode.Rewrites() {
		return body, false, nil
	}
	if len(body) > s.opts.MaxTileBytes {
		s.logger.Debug("tile too large to process", zap.Stringer("tile", c), zap.Int("bytes", len(body)))
		return body, false, nil
	}

	all, err := p.Overlays()
	if err != nil {
		return body, false, err
	}
	overlays := Renderable(all)
	if len(overlays) == 0 {
		return body, false, nil
	}

	s.SetMinify(st.Minify)

	frags, err := s.RenderAll(ctx, overlays, c, st.Mode)
	if err != nil {
		return body, false, err
	}

	drawn := 0
	for _, f := range frags {
		if f != nil {
			drawn++
		}
	}
	if drawn == 0 {
		return body, false, nil
	}

	out, err := s.Compose(body, frags, st.Mode)
	if err != nil {
		return body, false, err
	}

	s.logger.Debug("tile rewritten", zap.Stringer("tile", c), zap.Stringer("mode", st.Mode), zap.Int("fragments", drawn))
	return out, true, nil
}
