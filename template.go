package overlay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var errTemplate = errors.New("overlay: invalid template: missing record.imageUrl")

// Template is a shareable overlay definition referring to its image by URL.
type Template struct {
	Name     string  `json:"name"`
	ImageURL string  `json:"imageUrl"`
	PixelURL string  `json:"pixelUrl"`
	OffsetX  int     `json:"offsetX"`
	OffsetY  int     `json:"offsetY"`
	Opacity  float64 `json:"opacity"`
}

type templateFile struct {
	Record *Template `json:"record"`
}

// ParseTemplate decodes a template document.
func ParseTemplate(r io.Reader) (*Template, error) {
	var f templateFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("overlay: invalid template: %w", err)
	}
	if f.Record == nil || f.Record.ImageURL == "" {
		return nil, errTemplate
	}
	return f.Record, nil
}

// Importer adds overlays from templates published at a URL.
type Importer struct {
	Store  *Store
	Client *http.Client
	// MaxBytes limits the size of any fetched document.
	MaxBytes int64
}

func (i *Importer) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	client := i.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var r io.Reader = resp.Body
	if i.MaxBytes > 0 {
		r = io.LimitReader(r, i.MaxBytes)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: %s: %s", url, resp.Status, b)
	}
	return b, nil
}

// Import fetches the template at url and adds it as an enabled overlay. If an
// overlay already has the same name or image URL nothing is added and nil is
// returned.
func (i *Importer) Import(ctx context.Context, url string) (*Overlay, error) {
	b, err := i.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch template: %w", err)
	}

	t, err := ParseTemplate(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}

	overlays, err := i.Store.Overlays()
	if err != nil {
		return nil, err
	}
	for _, o := range overlays {
		if o.Name == t.Name || o.ImageURL == t.ImageURL {
			return nil, nil
		}
	}

	data, err := i.get(ctx, t.ImageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}

	return i.Store.AddOverlay(Overlay{
		Name:     t.Name,
		Enabled:  true,
		ImageURL: t.ImageURL,
		PixelURL: t.PixelURL,
		OffsetX:  t.OffsetX,
		OffsetY:  t.OffsetY,
		Opacity:  t.Opacity,
	}, data)
}
