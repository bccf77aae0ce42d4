// Package annotation implements the reconciliation engine for thermal-image
// anomaly annotations. It merges an immutable AI prediction set with the
// append-only record of human edit/add/delete actions into the effective
// detection set consumers render and export, associates human edits to the
// AI detection they originated from by geometric proximity, projects a
// per-detection change log, resolves recovery of deleted detections, and
// computes the minimal save diff for a working set.
//
// Every function here is pure: no I/O, no suspension points. Callers own
// persistence and transport, and may invoke the engine concurrently for
// different images. Within one image the last save wins; concurrent edits
// are not merged.
package annotation

import (
	"strings"

	"github.com/heatwatch/heatwatch-go/internal/geometry"
)

// Class is the anomaly classification assigned by the detector or reviewer.
type Class int

// Detector class values. The numeric values are the detector's label
// indices and are part of the wire contract.
const (
	ClassFaulty            Class = 0
	ClassNormal            Class = 1
	ClassPotentiallyFaulty Class = 2
)

// String returns the display name used in reports.
func (c Class) String() string {
	switch c {
	case ClassFaulty:
		return "Faulty"
	case ClassNormal:
		return "Normal"
	case ClassPotentiallyFaulty:
		return "Potentially Faulty"
	default:
		return "Unknown"
	}
}

// Origin is the provenance of an effective detection.
type Origin int

const (
	// OriginAI marks a detection emitted verbatim from the prediction set.
	OriginAI Origin = iota
	// OriginEdited marks a detection a human derived from an AI prediction.
	OriginEdited
	// OriginAdded marks a detection a human drew from scratch, or an edit
	// whose AI origin no longer exists after re-analysis.
	OriginAdded
)

// String returns the wire value of the origin tag.
func (o Origin) String() string {
	switch o {
	case OriginEdited:
		return "edited"
	case OriginAdded:
		return "added"
	default:
		return "ai"
	}
}

// EntryType is the action recorded by an annotation log entry.
type EntryType string

// Entry types as persisted. TypeRecovered marks an entry re-inserted into
// the edited partition by recovery; the builder treats it like an addition
// unless it carries an origin box.
const (
	TypeEdited    EntryType = "edited"
	TypeAdded     EntryType = "added"
	TypeDeleted   EntryType = "deleted"
	TypeRecovered EntryType = "recovered"
)

// normalizeEntryType folds the loosely-cased historical tags into the
// canonical set, defaulting to added as the original system did.
func normalizeEntryType(s string) EntryType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "edited":
		return TypeEdited
	case "deleted":
		return TypeDeleted
	case "recovered":
		return TypeRecovered
	default:
		return TypeAdded
	}
}

// DeletedFrom records which bucket a detection was deleted out of. It is the
// authoritative provenance consulted first during recovery.
type DeletedFrom string

const (
	DeletedFromAI     DeletedFrom = "ai"
	DeletedFromEdited DeletedFrom = "edited"
)

// normalizeDeletedFrom maps the legacy "manual" value onto "edited" and
// clears anything unrecognized.
func normalizeDeletedFrom(s string) DeletedFrom {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ai":
		return DeletedFromAI
	case "edited", "manual":
		return DeletedFromEdited
	default:
		return ""
	}
}

// Entry is one record of the annotation log: a human edit, addition or
// deletion with its provenance. Entries are created on save and never
// mutated, only superseded by later entries matching the same detection.
type Entry struct {
	Type        EntryType     `json:"type"`
	UserID      string        `json:"userId,omitempty"`
	Timestamp   string        `json:"timestamp,omitempty"`
	Comment     string        `json:"comment,omitempty"`
	Box         geometry.Box  `json:"box"`
	OriginalBox *geometry.Box `json:"originalBox,omitempty"`
	Class       Class         `json:"class"`
	Confidence  float64       `json:"confidence"`
	DeletedFrom DeletedFrom   `json:"deletedFrom,omitempty"`
}

// Prediction is one raw detector output.
type Prediction struct {
	Box        geometry.Box `json:"box"`
	Class      Class        `json:"class"`
	Confidence float64      `json:"confidence"`
}

// PredictionSet is the immutable output of exactly one analysis run for one
// image. It is replaced wholesale whenever the image is re-analyzed; the
// engine never mutates it.
type PredictionSet struct {
	Predictions []Prediction `json:"predictions"`
}

// Detection is one entry of the effective detection set: the materialized,
// currently-visible view of an anomaly after merging all sources.
type Detection struct {
	Box        geometry.Box
	Class      Class
	Confidence float64
	Origin     Origin
	// OriginBox is the AI geometry this detection was derived from; nil for
	// pure additions.
	OriginBox *geometry.Box
	// OriginConfidence is the detector confidence of the origin prediction,
	// kept for the change log when a human edit overwrote Confidence.
	OriginConfidence float64
	Comment          string
	UserID           string
	Timestamp        string
}

// boxRef returns a copy of b so stored pointers do not alias caller memory.
func boxRef(b geometry.Box) *geometry.Box {
	n := b.Normalized()
	return &n
}
