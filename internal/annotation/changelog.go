package annotation

import "github.com/heatwatch/heatwatch-go/internal/geometry"

// ChangeLogLine is one line of the per-detection audit narrative.
type ChangeLogLine struct {
	// Action is "edited", "added", "recovered" or "detected".
	Action string `json:"action"`
	// Actor is the user who performed the action, or "AI" for the
	// detection line.
	Actor       string        `json:"actor"`
	Timestamp   string        `json:"timestamp,omitempty"`
	Comment     string        `json:"comment,omitempty"`
	Box         geometry.Box  `json:"box"`
	PreviousBox *geometry.Box `json:"previousBox,omitempty"`
	Width       float64       `json:"width"`
	Height      float64       `json:"height"`
	Confidence  float64       `json:"confidence"`
}

// ProjectChangeLog derives the reverse-chronological change narrative for
// one effective detection. imageUploadedAt is the upload timestamp of the
// source image, shown on the "detected by AI" line.
//
// An edited detection yields the human line followed by the AI line; a pure
// addition yields only the human line; an untouched AI detection yields only
// the AI line. A note attached to an unmoved AI box (the no-op edit case)
// yields both, with identical geometry on each.
func ProjectChangeLog(d Detection, imageUploadedAt string) []ChangeLogLine {
	var lines []ChangeLogLine

	humanAction := ""
	switch {
	case d.Origin == OriginEdited:
		humanAction = "edited"
	case d.Origin == OriginAdded:
		humanAction = "added"
	case d.Origin == OriginAI && (d.Comment != "" || d.UserID != ""):
		// AI detection annotated without a geometric change.
		humanAction = "edited"
	}

	if humanAction != "" {
		line := ChangeLogLine{
			Action:     humanAction,
			Actor:      d.UserID,
			Timestamp:  d.Timestamp,
			Comment:    d.Comment,
			Box:        d.Box,
			Width:      d.Box.Width(),
			Height:     d.Box.Height(),
			Confidence: d.Confidence,
		}
		if d.Origin == OriginEdited && d.OriginBox != nil {
			line.PreviousBox = d.OriginBox
		}
		lines = append(lines, line)
	}

	if d.OriginBox != nil || d.Origin == OriginAI {
		aiBox := d.Box
		if d.OriginBox != nil {
			aiBox = *d.OriginBox
		}
		lines = append(lines, ChangeLogLine{
			Action:     "detected",
			Actor:      "AI",
			Timestamp:  imageUploadedAt,
			Box:        aiBox,
			Width:      aiBox.Width(),
			Height:     aiBox.Height(),
			Confidence: d.OriginConfidence,
		})
	}

	return lines
}
