// Package geometry provides the bounding box type and the matching policies
// used to associate detections across the AI, edited and deleted collections.
//
// No stable identifiers exist across those collections; detections are
// identified solely by geometric proximity. All proximity checks in the
// system go through this package so the tolerance policies stay named and
// testable instead of being inlined as ad hoc distance checks.
package geometry

import "math"

// Box is an axis-aligned bounding box in source-image pixel space,
// stored as [x1, y1, x2, y2]. A normalized box satisfies x1 < x2 and
// y1 < y2; every mutation must go through Normalized before the box is
// compared or persisted.
type Box [4]float64

// X1 returns the left edge.
func (b Box) X1() float64 { return b[0] }

// Y1 returns the top edge.
func (b Box) Y1() float64 { return b[1] }

// X2 returns the right edge.
func (b Box) X2() float64 { return b[2] }

// Y2 returns the bottom edge.
func (b Box) Y2() float64 { return b[3] }

// Width returns x2-x1 of the normalized box.
func (b Box) Width() float64 {
	n := b.Normalized()
	return n[2] - n[0]
}

// Height returns y2-y1 of the normalized box.
func (b Box) Height() float64 {
	n := b.Normalized()
	return n[3] - n[1]
}

// Area returns the box area in square pixels.
func (b Box) Area() float64 {
	return b.Width() * b.Height()
}

// IsNormalized reports whether the coordinate ordering invariant holds.
func (b Box) IsNormalized() bool {
	return b[0] < b[2] && b[1] < b[3]
}

// Normalized returns the box with coordinates swapped as needed so that
// x1 < x2 and y1 < y2. Degenerate boxes (zero width or height) are returned
// as-is; callers decide whether to reject them.
func (b Box) Normalized() Box {
	if b[0] > b[2] {
		b[0], b[2] = b[2], b[0]
	}
	if b[1] > b[3] {
		b[1], b[3] = b[3], b[1]
	}
	return b
}

// L1Distance returns the sum of the absolute deltas of all four
// coordinates. This is the distance used to decide whether an edit is still
// meaningfully different from its AI origin and to rank near-by candidates.
func L1Distance(a, b Box) float64 {
	return math.Abs(a[0]-b[0]) + math.Abs(a[1]-b[1]) +
		math.Abs(a[2]-b[2]) + math.Abs(a[3]-b[3])
}
