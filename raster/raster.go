/*
Package raster implements the tile image wire codec.

Tiles and overlay images arrive as PNG, GIF or JPEG bytes and are decoded to
non-premultiplied RGBA rasters anchored at the origin. Composited tiles are
always written back as PNG.
*/
package raster

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"sync"

	"golang.org/x/image/draw"
)

var errEmpty = errors.New("raster: no image data")

// Decode reads an image from r and returns it as an *image.NRGBA whose
// bounds start at (0, 0).
func Decode(r io.Reader) (*image.NRGBA, error) {
	m, _, err := image.Decode(r)
	if err != nil {
		return nil, err
	}
	return ToNRGBA(m), nil
}

// DecodeBytes is Decode for an in-memory payload.
func DecodeBytes(b []byte) (*image.NRGBA, error) {
	if len(b) == 0 {
		return nil, errEmpty
	}
	return Decode(bytes.NewReader(b))
}

// DecodeConfig returns the color model and dimensions of an image without
// decoding the entire image.
func DecodeConfig(r io.Reader) (image.Config, error) {
	c, _, err := image.DecodeConfig(r)
	return c, err
}

// ToNRGBA converts m to an *image.NRGBA at the origin, returning m itself
// when no conversion is needed.
func ToNRGBA(m image.Image) *image.NRGBA {
	if n, ok := m.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := m.Bounds()
	n := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(n, n.Bounds(), m, b.Min, draw.Src)
	return n
}

// CloneRGBA returns a deep copy of m.
func CloneRGBA(m *image.RGBA) *image.RGBA {
	dup := image.NewRGBA(m.Rect)
	copy(dup.Pix, m.Pix)
	return dup
}

// Upscale returns m enlarged by an integer factor with nearest neighbour
// sampling so every source pixel becomes a scale by scale block.
func Upscale(m image.Image, scale int) *image.RGBA {
	b := m.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
	draw.NearestNeighbor.Scale(dst, dst.Rect, m, b, draw.Src, nil)
	return dst
}

type bufferPool struct {
	p sync.Pool
}

func (b *bufferPool) Get() *png.EncoderBuffer {
	v, _ := b.p.Get().(*png.EncoderBuffer)
	return v
}

func (b *bufferPool) Put(e *png.EncoderBuffer) {
	b.p.Put(e)
}

var encoder = png.Encoder{
	CompressionLevel: png.BestSpeed,
	BufferPool:       new(bufferPool),
}

// Encode writes m to w as a PNG.
func Encode(w io.Writer, m image.Image) error {
	return encoder.Encode(w, m)
}

// EncodeBytes is Encode returning the encoded bytes.
func EncodeBytes(m image.Image) ([]byte, error) {
	b := new(bytes.Buffer)
	if err := Encode(b, m); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
