package annotation

import (
	"encoding/json"
	"strings"

	"github.com/heatwatch/heatwatch-go/internal/geometry"
)

// The persisted partitions and the prediction payload are stored as JSON
// text columns written by several generations of clients, so decoding is
// deliberately lenient: a payload that fails to parse is treated as an
// empty collection, and individual records without usable coordinates are
// dropped. A corrupt deletion log must never block rendering AI
// predictions.

// wireEntry mirrors the loosely-typed records found in the stored
// partitions. Numeric fields arrive as either ints or floats and the tags
// are compared case-insensitively.
type wireEntry struct {
	Type        string    `json:"type"`
	UserID      string    `json:"userId"`
	Timestamp   string    `json:"timestamp"`
	Comment     string    `json:"comment"`
	Box         []float64 `json:"box"`
	OriginalBox []float64 `json:"originalBox"`
	Class       float64   `json:"class"`
	Confidence  float64   `json:"confidence"`
	DeletedFrom string    `json:"deletedFrom"`
}

type wirePrediction struct {
	Box        []float64 `json:"box"`
	Class      float64   `json:"class"`
	Confidence float64   `json:"confidence"`
}

type wirePredictionSet struct {
	Predictions []wirePrediction `json:"predictions"`
}

func toBox(coords []float64) (geometry.Box, bool) {
	if len(coords) != 4 {
		return geometry.Box{}, false
	}
	return geometry.Box{coords[0], coords[1], coords[2], coords[3]}.Normalized(), true
}

// DecodeEntries parses one stored annotation partition. Empty or malformed
// input yields nil.
func DecodeEntries(raw string) []Entry {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var wire []wireEntry
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil
	}
	entries := make([]Entry, 0, len(wire))
	for _, w := range wire {
		box, ok := toBox(w.Box)
		if !ok {
			continue
		}
		e := Entry{
			Type:        normalizeEntryType(w.Type),
			UserID:      w.UserID,
			Timestamp:   w.Timestamp,
			Comment:     w.Comment,
			Box:         box,
			Class:       Class(int(w.Class)),
			Confidence:  w.Confidence,
			DeletedFrom: normalizeDeletedFrom(w.DeletedFrom),
		}
		if orig, ok := toBox(w.OriginalBox); ok {
			e.OriginalBox = &orig
		}
		entries = append(entries, e)
	}
	return entries
}

// EncodeEntries serializes a partition for storage. A nil or empty slice
// encodes as an empty JSON array so re-reads stay cheap to distinguish from
// the never-written NULL column.
func EncodeEntries(entries []Entry) (string, error) {
	if entries == nil {
		entries = []Entry{}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodePredictionSet parses the stored detector output. Empty or malformed
// input yields an empty set.
func DecodePredictionSet(raw string) PredictionSet {
	if strings.TrimSpace(raw) == "" {
		return PredictionSet{}
	}
	var wire wirePredictionSet
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return PredictionSet{}
	}
	set := PredictionSet{Predictions: make([]Prediction, 0, len(wire.Predictions))}
	for _, w := range wire.Predictions {
		box, ok := toBox(w.Box)
		if !ok {
			continue
		}
		set.Predictions = append(set.Predictions, Prediction{
			Box:        box,
			Class:      Class(int(w.Class)),
			Confidence: w.Confidence,
		})
	}
	return set
}

// EncodePredictionSet serializes a prediction set for storage.
func EncodePredictionSet(set PredictionSet) (string, error) {
	if set.Predictions == nil {
		set.Predictions = []Prediction{}
	}
	b, err := json.Marshal(set)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
