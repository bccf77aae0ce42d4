// annotations.go: effective detection set, annotation save, deletion
// recovery, change log and annotation maintenance handlers.
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/heatwatch/heatwatch-go/internal/annotation"
	"github.com/heatwatch/heatwatch-go/internal/geometry"
)

// initAnnotationRoutes registers annotation-related routes.
func (c *Controller) initAnnotationRoutes() {
	g := c.Group.Group("/inspections/:id")
	g.GET("/detections", c.EffectiveDetections)
	g.GET("/detections/deleted", c.DeletedDetections)
	g.POST("/detections/changelog", c.DetectionChangeLog)
	g.POST("/detections/recover", c.RecoverDetection)
	g.PUT("/annotations", c.SaveAnnotations)
	g.POST("/annotations/save", c.SaveWorkingSet)

	m := c.Group.Group("/annotations")
	m.GET("/stats", c.AnnotationStats)
	m.POST("/cleanup", c.CleanupAnnotations)
}

// DetectionResponse is the wire shape of one effective detection. The type
// tag is present only for non-AI origins; originalBox carries the AI
// geometry a detection was derived from, so a client echoing the set back
// into a save keeps its provenance.
type DetectionResponse struct {
	Box         geometry.Box     `json:"box"`
	Class       annotation.Class `json:"class"`
	Confidence  float64          `json:"confidence"`
	Type        string           `json:"type,omitempty"`
	OriginalBox *geometry.Box    `json:"originalBox,omitempty"`
	Comment     string           `json:"comment,omitempty"`
	UserID      string           `json:"userId,omitempty"`
	Timestamp   string           `json:"timestamp,omitempty"`
}

// DetectionSetResponse wraps the ordered effective set; positions imply the
// user-facing numbering.
type DetectionSetResponse struct {
	Predictions []DetectionResponse `json:"predictions"`
}

func NewDetectionSetResponse(detections []annotation.Detection) DetectionSetResponse {
	out := DetectionSetResponse{Predictions: make([]DetectionResponse, 0, len(detections))}
	for _, d := range detections {
		r := DetectionResponse{
			Box:         d.Box,
			Class:       d.Class,
			Confidence:  d.Confidence,
			OriginalBox: d.OriginBox,
			Comment:     d.Comment,
			UserID:      d.UserID,
			Timestamp:   d.Timestamp,
		}
		if d.Origin != annotation.OriginAI {
			r.Type = d.Origin.String()
		}
		out.Predictions = append(out.Predictions, r)
	}
	return out
}

// EffectiveDetections returns the materialized effective detection set of
// an inspection.
func (c *Controller) EffectiveDetections(ctx echo.Context) error {
	id, err := parseInspectionNo(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid inspection number", http.StatusBadRequest)
	}
	detections, err := c.Service.EffectiveDetections(id)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to build detection set", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, NewDetectionSetResponse(detections))
}

// DeletedDetections returns the deleted entries of an inspection, for the
// recovery view.
func (c *Controller) DeletedDetections(ctx echo.Context) error {
	id, err := parseInspectionNo(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid inspection number", http.StatusBadRequest)
	}
	deleted, err := c.Service.DeletedDetections(id)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to load deleted detections", http.StatusInternalServerError)
	}
	if deleted == nil {
		deleted = []annotation.Entry{}
	}
	return ctx.JSON(http.StatusOK, deleted)
}

// boxRequest is the body of box-addressed operations.
type boxRequest struct {
	Box         geometry.Box `json:"box"`
	Destination string       `json:"destination,omitempty"`
}

// DetectionChangeLog returns the change history of the detection at the
// posted box.
func (c *Controller) DetectionChangeLog(ctx echo.Context) error {
	id, err := parseInspectionNo(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid inspection number", http.StatusBadRequest)
	}
	var req boxRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid change log request", http.StatusBadRequest)
	}
	lines, err := c.Service.ChangeLog(id, req.Box)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to build change log", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, lines)
}

// RecoverDetection restores the deleted detection at the posted box. An
// optional destination ("ai" or "edited") overrides the resolved side.
func (c *Controller) RecoverDetection(ctx echo.Context) error {
	id, err := parseInspectionNo(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid inspection number", http.StatusBadRequest)
	}
	var req boxRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid recovery request", http.StatusBadRequest)
	}
	i, err := c.Service.RecoverDetection(id, req.Box, annotation.Destination(req.Destination))
	if err != nil {
		return c.HandleError(ctx, err, "Failed to recover detection", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, i)
}

// SaveAnnotations folds a precomputed save diff into the annotation log.
func (c *Controller) SaveAnnotations(ctx echo.Context) error {
	id, err := parseInspectionNo(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid inspection number", http.StatusBadRequest)
	}
	var diff annotation.SaveDiff
	if err := ctx.Bind(&diff); err != nil {
		return c.HandleError(ctx, err, "Invalid annotation payload", http.StatusBadRequest)
	}
	i, err := c.Service.SaveAnnotations(id, diff)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to save annotations", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, i)
}

// workingSetRequest is the body of a full working-set save.
type workingSetRequest struct {
	Detections  []annotation.WorkingDetection `json:"detections"`
	DeleteNotes []annotation.Entry            `json:"deleteNotes,omitempty"`
}

// SaveWorkingSet accepts the client's full working detection set and saves
// the derived changes.
func (c *Controller) SaveWorkingSet(ctx echo.Context) error {
	id, err := parseInspectionNo(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid inspection number", http.StatusBadRequest)
	}
	var req workingSetRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid working set payload", http.StatusBadRequest)
	}
	i, err := c.Service.SaveWorkingSet(id, req.Detections, req.DeleteNotes)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to save working set", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, i)
}

// AnnotationStats summarizes stored annotation data, optionally scoped by
// the transformer query parameter.
func (c *Controller) AnnotationStats(ctx echo.Context) error {
	stats, err := c.Service.AnnotationStats(ctx.QueryParam("transformer"))
	if err != nil {
		return c.HandleError(ctx, err, "Failed to compute annotation stats", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, stats)
}

// CleanupAnnotations clears human annotation data, scoped by the optional
// transformer and inspection query parameters.
func (c *Controller) CleanupAnnotations(ctx echo.Context) error {
	var inspectionNo uint
	if raw := ctx.QueryParam("inspection"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return c.HandleError(ctx, err, "Invalid inspection number", http.StatusBadRequest)
		}
		inspectionNo = uint(id)
	}
	cleared, err := c.Service.CleanupAnnotations(ctx.QueryParam("transformer"), inspectionNo)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to clean up annotations", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, map[string]any{"cleared": cleared})
}
