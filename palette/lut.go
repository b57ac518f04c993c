package palette

import (
	"errors"
	"math/bits"
)

// DefaultBuckets is the number of lookup buckets per channel used when none
// is configured, giving a 32x32x32 table.
const DefaultBuckets = 32

var errBuckets = errors.New("palette: buckets per channel must be a power of two between 1 and 256")

// Quantizer resolves arbitrary colors to palette indices through a lookup
// table addressed by the high bits of each channel.
//
// Every cell holds the nearest palette index of the brightest color in its
// bucket, so colors near a bucket boundary may resolve to a slightly worse
// match than an exhaustive search would give. Colors that are exactly in the
// palette always resolve to their own index.
type Quantizer struct {
	buckets int
	shift   uint
	table   []uint8
}

// NewQuantizer builds the lookup table for the given number of buckets per
// channel.
func NewQuantizer(buckets int) (*Quantizer, error) {
	if buckets < 1 || buckets > 256 || bits.OnesCount(uint(buckets)) != 1 {
		return nil, errBuckets
	}

	q := &Quantizer{
		buckets: buckets,
		shift:   uint(8 - bits.TrailingZeros(uint(buckets))),
		table:   make([]uint8, buckets*buckets*buckets),
	}

	low := uint8(1<<q.shift - 1)
	for r := 0; r < buckets; r++ {
		for g := 0; g < buckets; g++ {
			for b := 0; b < buckets; b++ {
				rep := RGB{
					uint8(r<<q.shift) | low,
					uint8(g<<q.shift) | low,
					uint8(b<<q.shift) | low,
				}
				q.table[(r*buckets+g)*buckets+b] = uint8(nearest(rep))
			}
		}
	}

	return q, nil
}

// Approx returns the table entry for c without checking for an exact match.
func (q *Quantizer) Approx(c RGB) int {
	r := int(c.R >> q.shift)
	g := int(c.G >> q.shift)
	b := int(c.B >> q.shift)
	return int(q.table[(r*q.buckets+g)*q.buckets+b])
}

// Index returns the palette index for c, using the exact map first and the
// lookup table otherwise.
func (q *Quantizer) Index(c RGB) int {
	if i, ok := Lookup(c); ok {
		return i
	}
	return q.Approx(c)
}
