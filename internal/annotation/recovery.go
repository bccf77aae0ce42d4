package annotation

import (
	stderrors "errors"

	"github.com/heatwatch/heatwatch-go/internal/geometry"
)

// ErrNotDeleted is returned when a recovery request names a box with no
// matching record in the deleted partition.
var ErrNotDeleted = stderrors.New("box not found in deleted list")

// Destination is the bucket a recovered detection returns to.
type Destination string

const (
	// DestinationAI means the deletion record is simply dropped: the
	// suppressed AI prediction reappears on the next build.
	DestinationAI Destination = "ai"
	// DestinationEdited means the record must be re-inserted into the
	// edited/added partition so the builder picks it up again.
	DestinationEdited Destination = "edited"
)

// ResolveDestination decides where a deleted detection belongs. Provenance
// recorded at delete time is authoritative; without it the box is matched
// geometrically against the current predictions, and a miss means the
// detection never was an AI fact.
func ResolveDestination(deleted Entry, ai PredictionSet) Destination {
	switch deleted.DeletedFrom {
	case DeletedFromAI:
		return DestinationAI
	case DeletedFromEdited:
		// Legacy "manual" was folded into "edited" at decode time.
		return DestinationEdited
	}
	boxes := make([]geometry.Box, len(ai.Predictions))
	for i := range ai.Predictions {
		boxes[i] = ai.Predictions[i].Box
	}
	if geometry.ClosestMatch(deleted.Box, boxes, geometry.MatchEpsilon) >= 0 {
		return DestinationAI
	}
	return DestinationEdited
}

// Recovery is the result of resolving a recovery request against the
// deleted partition.
type Recovery struct {
	// Entry is the deletion record being recovered.
	Entry Entry
	// Destination is where the detection returns to.
	Destination Destination
	// RemainingDeleted is the deleted partition with the record removed.
	RemainingDeleted []Entry
}

// Recover locates the deleted record matching box (nearest within the match
// epsilon) and resolves its destination. An explicit destination overrides
// provenance; pass "" to resolve automatically.
func Recover(deleted []Entry, box geometry.Box, explicit Destination, ai PredictionSet) (Recovery, error) {
	boxes := make([]geometry.Box, len(deleted))
	for i := range deleted {
		boxes[i] = deleted[i].Box
	}
	idx := geometry.ClosestMatch(box, boxes, geometry.MatchEpsilon)
	if idx < 0 {
		return Recovery{}, ErrNotDeleted
	}

	rec := Recovery{Entry: deleted[idx]}
	rec.RemainingDeleted = make([]Entry, 0, len(deleted)-1)
	rec.RemainingDeleted = append(rec.RemainingDeleted, deleted[:idx]...)
	rec.RemainingDeleted = append(rec.RemainingDeleted, deleted[idx+1:]...)

	switch explicit {
	case DestinationAI, DestinationEdited:
		rec.Destination = explicit
	default:
		rec.Destination = ResolveDestination(rec.Entry, ai)
	}
	return rec, nil
}

// Reinstate appends the recovered record to the edited/added partition,
// first dropping any stale entry for the same box. The entry is tagged as
// recovered; with no origin box the builder surfaces it as an addition.
func Reinstate(editedOrAdded []Entry, rec Recovery) []Entry {
	out := make([]Entry, 0, len(editedOrAdded)+1)
	for _, e := range editedOrAdded {
		if geometry.Matches(e.Box, rec.Entry.Box, geometry.DedupeEpsilon) {
			continue
		}
		out = append(out, e)
	}
	restored := rec.Entry
	restored.Type = TypeRecovered
	restored.DeletedFrom = ""
	return append(out, restored)
}
