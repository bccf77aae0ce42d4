package annotation

import "github.com/heatwatch/heatwatch-go/internal/geometry"

// WorkingDetection is one detection as held by the editing client, carrying
// the source and previous-type metadata assigned when the effective set was
// loaded.
type WorkingDetection struct {
	Box        geometry.Box  `json:"box"`
	Class      Class         `json:"class"`
	Confidence float64       `json:"confidence"`
	Source     Origin        `json:"-"`
	PrevType   EntryType     `json:"-"`
	OriginBox  *geometry.Box `json:"originalBox,omitempty"`
	Comment    string        `json:"comment,omitempty"`
	UserID     string        `json:"userId,omitempty"`
	Timestamp  string        `json:"timestamp,omitempty"`
}

// SaveDiff is the minimal set of new annotation log entries a commit must
// persist.
type SaveDiff struct {
	Added   []Entry
	Edited  []Entry
	Deleted []Entry
}

// ComputeSaveDiff diffs the client's surviving working set against the
// prediction set it was loaded from.
//
// Geometry comparisons against an origin box use the size-adaptive move
// threshold, so a nudge below the threshold is treated as unchanged — unless
// the detection carries a note, in which case an entry with unchanged
// geometry is still emitted so the note is not lost. Deletions are inferred:
// any prediction no surviving working detection claims as its origin is
// recorded as deleted from the AI bucket, carrying the nearest note captured
// at delete time.
func ComputeSaveDiff(working []WorkingDetection, ai PredictionSet, deleteNotes []Entry) SaveDiff {
	var diff SaveDiff

	for i := range working {
		w := &working[i]
		switch {
		case w.Source == OriginAI, w.Source == OriginEdited && w.PrevType == TypeEdited:
			if w.OriginBox == nil {
				// Lost provenance degrades to an addition rather than
				// guessing an origin.
				diff.Added = append(diff.Added, entryFromWorking(w, TypeAdded))
				continue
			}
			if geometry.Moved(w.Box, *w.OriginBox) {
				diff.Edited = append(diff.Edited, entryFromWorking(w, TypeEdited))
			} else if w.Comment != "" {
				// Note attachment on unchanged geometry: keep the origin
				// geometry so the entry stays a no-op move.
				e := entryFromWorking(w, TypeEdited)
				e.Box = (*w.OriginBox).Normalized()
				diff.Edited = append(diff.Edited, e)
			}
		default:
			// Manual detections have no meaningful "unchanged" state.
			diff.Added = append(diff.Added, entryFromWorking(w, TypeAdded))
		}
	}

	// Predictions no longer represented by any surviving working detection
	// were deleted in this session.
	for _, p := range ai.Predictions {
		if survives(p.Box, working) {
			continue
		}
		del := Entry{
			Type:        TypeDeleted,
			Box:         p.Box,
			Class:       p.Class,
			Confidence:  p.Confidence,
			DeletedFrom: DeletedFromAI,
		}
		if note := nearestNote(p.Box, deleteNotes); note != nil {
			del.Comment = note.Comment
			del.UserID = note.UserID
			del.Timestamp = note.Timestamp
		}
		diff.Deleted = append(diff.Deleted, del)
	}

	// A detection cannot be both edited and deleted; the edit wins.
	diff.Deleted = dropEditConflicts(diff.Deleted, diff.Edited)

	return diff
}

func entryFromWorking(w *WorkingDetection, t EntryType) Entry {
	e := Entry{
		Type:       t,
		UserID:     w.UserID,
		Timestamp:  w.Timestamp,
		Comment:    w.Comment,
		Box:        w.Box.Normalized(),
		Class:      w.Class,
		Confidence: w.Confidence,
	}
	if t == TypeEdited && w.OriginBox != nil {
		orig := (*w.OriginBox).Normalized()
		e.OriginalBox = &orig
	}
	return e
}

// survives reports whether any working detection claims the prediction box
// as its origin.
func survives(predBox geometry.Box, working []WorkingDetection) bool {
	for i := range working {
		if working[i].OriginBox != nil &&
			geometry.Matches(predBox, *working[i].OriginBox, geometry.MatchEpsilon) {
			return true
		}
	}
	return false
}

// nearestNote returns the delete-time note closest to box by L1 distance.
func nearestNote(box geometry.Box, notes []Entry) *Entry {
	best := -1
	bestDist := 0.0
	for i := range notes {
		d := geometry.L1Distance(box, notes[i].Box)
		if best == -1 || d < bestDist {
			best = i
			bestDist = d
		}
	}
	if best < 0 {
		return nil
	}
	return &notes[best]
}

// dropEditConflicts removes deletion entries whose box matches the original
// or current box of any edited entry, so a detection is never double-booked
// as both edited and deleted.
func dropEditConflicts(deleted, edited []Entry) []Entry {
	if len(deleted) == 0 || len(edited) == 0 {
		return deleted
	}
	kept := deleted[:0]
	for _, d := range deleted {
		conflict := false
		for i := range edited {
			if geometry.Matches(d.Box, edited[i].Box, geometry.MatchEpsilon) ||
				(edited[i].OriginalBox != nil &&
					geometry.Matches(d.Box, *edited[i].OriginalBox, geometry.MatchEpsilon)) {
				conflict = true
				break
			}
		}
		if !conflict {
			kept = append(kept, d)
		}
	}
	return kept
}
