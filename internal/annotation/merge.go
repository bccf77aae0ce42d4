package annotation

import "github.com/heatwatch/heatwatch-go/internal/geometry"

// Partitions holds the two persisted halves of the annotation log: the
// current edited/added records and the deletion records. Together with the
// prediction set they are the three logically-overlapping lists the builder
// materializes on every read.
type Partitions struct {
	EditedOrAdded []Entry
	Deleted       []Entry
}

// MergeSave folds one save's diff into the stored partitions. Entries
// matching a stored record geometrically supersede it in place (last write
// wins); everything else is appended. The prediction set is never touched.
func MergeSave(existing Partitions, diff SaveDiff) Partitions {
	incoming := make([]Entry, 0, len(diff.Edited)+len(diff.Added))
	incoming = append(incoming, diff.Edited...)
	incoming = append(incoming, diff.Added...)

	// A box cannot arrive as both edited and deleted in one save; the edit
	// wins before any merging happens.
	deletions := dropEditConflicts(diff.Deleted, incoming)

	merged := Partitions{
		EditedOrAdded: append([]Entry(nil), existing.EditedOrAdded...),
		Deleted:       append([]Entry(nil), existing.Deleted...),
	}

	// Deletions first, so a record deleted and re-drawn in the same session
	// is removed before its replacement lands.
	for _, del := range deletions {
		if del.DeletedFrom == "" {
			del.DeletedFrom = DeletedFromAI
			for i := range existing.EditedOrAdded {
				if geometry.Matches(del.Box, existing.EditedOrAdded[i].Box, geometry.MatchEpsilon) {
					del.DeletedFrom = DeletedFromEdited
					break
				}
			}
		}

		if del.DeletedFrom == DeletedFromEdited {
			merged.EditedOrAdded = removeMatching(merged.EditedOrAdded, del.Box, geometry.MatchEpsilon)
		}

		if !deletionLogged(merged.Deleted, del) {
			merged.Deleted = append(merged.Deleted, del)
		}
	}

	for _, in := range incoming {
		if in.Type == TypeEdited {
			merged.EditedOrAdded = upsertEdit(merged.EditedOrAdded, in)
		} else {
			merged.EditedOrAdded = upsertAddition(merged.EditedOrAdded, in)
		}
	}

	// A record that is now edited/added must not also remain deleted.
	kept := merged.Deleted[:0]
	for _, del := range merged.Deleted {
		conflict := false
		for i := range merged.EditedOrAdded {
			e := &merged.EditedOrAdded[i]
			if geometry.Matches(del.Box, e.Box, geometry.MatchEpsilon) ||
				(e.OriginalBox != nil && geometry.Matches(del.Box, *e.OriginalBox, geometry.MatchEpsilon)) {
				conflict = true
				break
			}
		}
		if !conflict {
			kept = append(kept, del)
		}
	}
	merged.Deleted = kept

	return merged
}

// upsertEdit replaces the stored record whose original or current box
// matches the incoming edit's origin, or appends when no record matches.
func upsertEdit(stored []Entry, in Entry) []Entry {
	if in.OriginalBox != nil {
		for i := range stored {
			e := &stored[i]
			matchesOriginal := e.OriginalBox != nil &&
				geometry.Matches(*e.OriginalBox, *in.OriginalBox, geometry.MatchEpsilon)
			matchesCurrent := geometry.Matches(e.Box, *in.OriginalBox, geometry.MatchEpsilon)
			if matchesOriginal || matchesCurrent {
				in.DeletedFrom = ""
				stored[i] = in
				return stored
			}
		}
	}
	return append(stored, in)
}

// upsertAddition replaces the stored record at the same position, keeping
// manual detections single-entry as they are re-saved.
func upsertAddition(stored []Entry, in Entry) []Entry {
	for i := range stored {
		if geometry.Matches(stored[i].Box, in.Box, geometry.MatchEpsilon) {
			in.OriginalBox = stored[i].OriginalBox
			in.DeletedFrom = ""
			stored[i] = in
			return stored
		}
	}
	return append(stored, in)
}

// deletionLogged reports whether an equivalent deletion record already
// exists: same box within the dedupe epsilon and same origin bucket.
func deletionLogged(deleted []Entry, del Entry) bool {
	for i := range deleted {
		if geometry.Matches(deleted[i].Box, del.Box, geometry.DedupeEpsilon) &&
			deleted[i].DeletedFrom == del.DeletedFrom {
			return true
		}
	}
	return false
}

func removeMatching(entries []Entry, box geometry.Box, tolerance float64) []Entry {
	kept := entries[:0]
	for _, e := range entries {
		if geometry.Matches(e.Box, box, tolerance) {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}
