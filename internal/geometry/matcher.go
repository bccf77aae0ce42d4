package geometry

// The system carries three distinct tolerance policies. They look similar
// but operate at different scales and must not be unified: the fixed epsilon
// decides identity between a stored annotation and an AI prediction, the
// dedupe epsilon decides whether two deletion records describe the same
// event, and the size-adaptive threshold decides whether a human actually
// moved a box. Unifying them changes which edits are treated as no-ops.
const (
	// MatchEpsilon is the fixed per-coordinate tolerance for associating a
	// stored annotation with the AI prediction it originated from.
	MatchEpsilon = 2.0

	// DedupeEpsilon is the tighter tolerance used when deciding whether two
	// records in the same partition describe the same box.
	DedupeEpsilon = 0.5

	// minMoveThreshold is the floor of the size-adaptive move threshold so
	// tiny detections still tolerate a few pixels of handling jitter.
	minMoveThreshold = 10.0

	// moveThresholdScale scales the original box perimeter term of the
	// size-adaptive move threshold.
	moveThresholdScale = 1.5
)

// Matches reports whether two boxes denote the same detection: every one of
// the four coordinate deltas must be strictly below tolerance.
func Matches(a, b Box, tolerance float64) bool {
	a, b = a.Normalized(), b.Normalized()
	for i := range a {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		if d >= tolerance {
			return false
		}
	}
	return true
}

// MoveThreshold returns the size-adaptive distance below which an edit of
// the given original box is treated as a no-op: max(10, 1.5*(w+h)).
// Edits to small detections are detected at finer granularity than edits to
// large ones.
func MoveThreshold(original Box) float64 {
	t := moveThresholdScale * (original.Width() + original.Height())
	if t < minMoveThreshold {
		return minMoveThreshold
	}
	return t
}

// Moved reports whether current differs from original by more than the
// size-adaptive move threshold of the original box, using the L1 sum of the
// coordinate deltas.
func Moved(current, original Box) bool {
	return L1Distance(current.Normalized(), original.Normalized()) > MoveThreshold(original)
}

// ClosestMatch returns the index of the candidate within tolerance of query
// that has the smallest L1 distance, or -1 if no candidate is within
// tolerance. Ties on distance resolve to the earliest candidate in input
// order, so the result is deterministic.
func ClosestMatch(query Box, candidates []Box, tolerance float64) int {
	best := -1
	bestDist := 0.0
	q := query.Normalized()
	for i, c := range candidates {
		if !Matches(q, c, tolerance) {
			continue
		}
		d := L1Distance(q, c.Normalized())
		if best == -1 || d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}
