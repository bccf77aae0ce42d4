package annotation

import "github.com/heatwatch/heatwatch-go/internal/geometry"

// BuildEffectiveSet merges the immutable prediction set with the stored
// edited/added and deleted partitions into the ordered effective detection
// set.
//
// Output order is the user-facing numbering contract ("Error 1", "Error 2",
// ...): AI-originated detections first, in detector output order, followed
// by additions in partition order. The same inputs always produce the same
// output, in the same order.
func BuildEffectiveSet(ai PredictionSet, editedOrAdded, deleted []Entry) []Detection {
	deletedBoxes := make([]geometry.Box, len(deleted))
	for i := range deleted {
		deletedBoxes[i] = deleted[i].Box
	}

	// Entries carrying an origin box are candidate edits of an AI
	// prediction; the rest are pure additions. Each edit entry is consumed
	// by at most one prediction so a duplicated origin cannot spawn two
	// detections.
	var edits []editCandidate
	for i := range editedOrAdded {
		if editedOrAdded[i].OriginalBox != nil {
			edits = append(edits, editCandidate{entry: &editedOrAdded[i]})
		}
	}

	effective := make([]Detection, 0, len(ai.Predictions)+len(editedOrAdded))

	for _, p := range ai.Predictions {
		// A deletion recorded against this prediction suppresses it
		// entirely; the record stays enumerable in the deleted partition.
		if geometry.ClosestMatch(p.Box, deletedBoxes, geometry.MatchEpsilon) >= 0 {
			continue
		}

		if idx := closestEdit(p.Box, edits); idx >= 0 {
			entry := edits[idx].entry
			edits[idx].consumed = true
			if geometry.Matches(entry.Box, p.Box, geometry.MatchEpsilon) {
				// A no-op geometric edit is a note attachment, not a box
				// move: the prediction stays an AI fact with the detector's
				// own class and confidence.
				effective = append(effective, Detection{
					Box:              p.Box,
					Class:            p.Class,
					Confidence:       p.Confidence,
					Origin:           OriginAI,
					OriginBox:        boxRef(p.Box),
					OriginConfidence: p.Confidence,
					Comment:          entry.Comment,
					UserID:           entry.UserID,
					Timestamp:        entry.Timestamp,
				})
				continue
			}
			effective = append(effective, Detection{
				Box:              entry.Box,
				Class:            entry.Class,
				Confidence:       entry.Confidence,
				Origin:           OriginEdited,
				OriginBox:        boxRef(p.Box),
				OriginConfidence: p.Confidence,
				Comment:          entry.Comment,
				UserID:           entry.UserID,
				Timestamp:        entry.Timestamp,
			})
			continue
		}

		effective = append(effective, Detection{
			Box:              p.Box,
			Class:            p.Class,
			Confidence:       p.Confidence,
			Origin:           OriginAI,
			OriginBox:        boxRef(p.Box),
			OriginConfidence: p.Confidence,
		})
	}

	// Pure additions, plus edits whose origin vanished after re-analysis.
	// The latter degrade to additions rather than being dropped: provenance
	// is preserved in the record, freshness is not guaranteed.
	for i := range editedOrAdded {
		entry := &editedOrAdded[i]
		if entry.OriginalBox != nil && editConsumed(edits, entry) {
			continue
		}
		if geometry.ClosestMatch(entry.Box, deletedBoxes, geometry.MatchEpsilon) >= 0 {
			continue
		}
		effective = append(effective, Detection{
			Box:        entry.Box,
			Class:      entry.Class,
			Confidence: entry.Confidence,
			Origin:     OriginAdded,
			Comment:    entry.Comment,
			UserID:     entry.UserID,
			Timestamp:  entry.Timestamp,
		})
	}

	return effective
}

// editCandidate tracks whether an edit entry has already been claimed by a
// prediction during a build.
type editCandidate struct {
	entry    *Entry
	consumed bool
}

// closestEdit returns the index of the unconsumed edit whose origin box is
// within the match epsilon of the prediction box, nearest by L1 distance
// with earliest-first tie-break.
func closestEdit(predBox geometry.Box, edits []editCandidate) int {
	best := -1
	bestDist := 0.0
	for i := range edits {
		if edits[i].consumed {
			continue
		}
		orig := *edits[i].entry.OriginalBox
		if !geometry.Matches(predBox, orig, geometry.MatchEpsilon) {
			continue
		}
		d := geometry.L1Distance(predBox, orig)
		if best == -1 || d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

func editConsumed(edits []editCandidate, entry *Entry) bool {
	for i := range edits {
		if edits[i].entry == entry {
			return edits[i].consumed
		}
	}
	return false
}
