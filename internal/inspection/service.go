// Package inspection implements the application service layer: transformer
// and inspection lifecycle, image handling, detector analysis and the
// annotation reconciliation operations on top of the persisted log.
package inspection

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/heatwatch/heatwatch-go/internal/annotation"
	"github.com/heatwatch/heatwatch-go/internal/conf"
	"github.com/heatwatch/heatwatch-go/internal/datastore"
	"github.com/heatwatch/heatwatch-go/internal/detector"
	"github.com/heatwatch/heatwatch-go/internal/errors"
	"github.com/heatwatch/heatwatch-go/internal/geometry"
	"github.com/heatwatch/heatwatch-go/internal/imagestore"
	"github.com/heatwatch/heatwatch-go/internal/logging"
	"github.com/heatwatch/heatwatch-go/internal/observability"
)

// Inspection workflow states.
const (
	StateInProgress        = "In Progress"
	StateAnalysisPending   = "AI Analysis Pending"
	StateAnalysisCompleted = "AI Analysis Completed"
	StateAnalysisFailed    = "AI Analysis Failed"
)

// Bounds for the detector confidence threshold on reanalysis.
const (
	MinConfidence = 0.1
	MaxConfidence = 1.0
)

const (
	effectiveCacheTTL   = 5 * time.Minute
	effectiveCacheSweep = 10 * time.Minute
	analysisTimeout     = 5 * time.Minute
)

// Service coordinates the datastore, image store, detector and the
// annotation engine.
type Service struct {
	ds       datastore.Interface
	images   *imagestore.Store
	detector detector.Client
	metrics  *observability.Metrics
	settings *conf.Settings

	// effective caches materialized detection sets keyed by inspection
	// number; invalidated on every write to an inspection's annotations.
	effective *gocache.Cache

	log *slog.Logger
}

// New creates the service. metrics may be nil when observability is not
// wanted, e.g. in one-shot CLI use.
func New(ds datastore.Interface, images *imagestore.Store, det detector.Client, metrics *observability.Metrics, settings *conf.Settings) *Service {
	return &Service{
		ds:        ds,
		images:    images,
		detector:  det,
		metrics:   metrics,
		settings:  settings,
		effective: gocache.New(effectiveCacheTTL, effectiveCacheSweep),
		log:       logging.ForService("inspection"),
	}
}

func validationError(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("inspection").
		Category(errors.CategoryValidation).
		Build()
}

// --- transformers ---

// CreateTransformer validates and stores a new transformer record.
func (s *Service) CreateTransformer(t *datastore.Transformer) error {
	if t.TransformerNo == "" {
		return validationError("transformer number is required")
	}
	if _, err := s.ds.GetTransformer(t.TransformerNo); err == nil {
		return validationError("transformer %s already exists", t.TransformerNo)
	}
	return s.ds.SaveTransformer(t)
}

// GetTransformer returns a transformer by number.
func (s *Service) GetTransformer(transformerNo string) (datastore.Transformer, error) {
	return s.ds.GetTransformer(transformerNo)
}

// ListTransformers returns all transformers.
func (s *Service) ListTransformers() ([]datastore.Transformer, error) {
	return s.ds.GetAllTransformers()
}

// UpdateTransformer updates the mutable fields of an existing transformer.
func (s *Service) UpdateTransformer(t *datastore.Transformer) error {
	existing, err := s.ds.GetTransformer(t.TransformerNo)
	if err != nil {
		return err
	}
	// Baseline image fields are managed by the upload path only.
	t.BaselineImagePath = existing.BaselineImagePath
	t.BaselineImageUploadedAt = existing.BaselineImageUploadedAt
	if t.BaselineWeather == "" {
		t.BaselineWeather = existing.BaselineWeather
	}
	return s.ds.SaveTransformer(t)
}

// DeleteTransformer removes a transformer, its inspections and any stored
// images.
func (s *Service) DeleteTransformer(transformerNo string) error {
	t, err := s.ds.GetTransformer(transformerNo)
	if err != nil {
		return err
	}
	inspections, err := s.ds.GetInspectionsByTransformer(transformerNo)
	if err != nil {
		return err
	}
	for i := range inspections {
		s.removeInspectionImage(&inspections[i])
		s.effective.Delete(effectiveKey(inspections[i].InspectionNo))
	}
	if t.BaselineImagePath != "" {
		if err := s.images.Delete(t.BaselineImagePath); err != nil && !errors.Is(err, imagestore.ErrNotFound) {
			s.log.Warn("failed to delete baseline image", "transformer", transformerNo, "error", err)
		}
	}
	return s.ds.DeleteTransformer(transformerNo)
}

// UploadBaselineImage stores a baseline image for a transformer and records
// its upload time and capture conditions.
func (s *Service) UploadBaselineImage(transformerNo string, data []byte, originalName, weather string) (datastore.Transformer, error) {
	t, err := s.ds.GetTransformer(transformerNo)
	if err != nil {
		return datastore.Transformer{}, err
	}
	filename, err := s.images.StoreBaselineImage(transformerNo, data, originalName)
	if err != nil {
		return datastore.Transformer{}, err
	}
	if t.BaselineImagePath != "" {
		if err := s.images.Delete(t.BaselineImagePath); err != nil && !errors.Is(err, imagestore.ErrNotFound) {
			s.log.Warn("failed to delete previous baseline image", "transformer", transformerNo, "error", err)
		}
	}
	now := time.Now()
	t.BaselineImagePath = filename
	t.BaselineImageUploadedAt = &now
	t.BaselineWeather = weather
	if err := s.ds.SaveTransformer(&t); err != nil {
		return datastore.Transformer{}, err
	}
	return t, nil
}

// --- inspections ---

// CreateInspection validates and stores a new inspection record.
func (s *Service) CreateInspection(i *datastore.Inspection) error {
	if i.TransformerNo == "" {
		return validationError("transformer number is required")
	}
	if _, err := s.ds.GetTransformer(i.TransformerNo); err != nil {
		return err
	}
	if i.InspectedAt.IsZero() {
		i.InspectedAt = time.Now()
	}
	if i.State == "" {
		i.State = StateInProgress
	}
	return s.ds.SaveInspection(i)
}

// GetInspection returns an inspection by number.
func (s *Service) GetInspection(inspectionNo uint) (datastore.Inspection, error) {
	return s.ds.GetInspection(inspectionNo)
}

// ListInspections returns all inspections, or the inspections of one
// transformer when transformerNo is non-empty.
func (s *Service) ListInspections(transformerNo string) ([]datastore.Inspection, error) {
	if transformerNo != "" {
		return s.ds.GetInspectionsByTransformer(transformerNo)
	}
	return s.ds.GetAllInspections()
}

// UpdateInspection updates the mutable metadata of an existing inspection.
// Annotation columns and image fields are managed by their own operations.
func (s *Service) UpdateInspection(i *datastore.Inspection) error {
	existing, err := s.ds.GetInspection(i.InspectionNo)
	if err != nil {
		return err
	}
	existing.Branch = i.Branch
	existing.InspectedAt = i.InspectedAt
	existing.Weather = i.Weather
	if i.State != "" {
		existing.State = i.State
	}
	*i = existing
	return s.ds.SaveInspection(i)
}

// DeleteInspection removes an inspection and its stored image.
func (s *Service) DeleteInspection(inspectionNo uint) error {
	i, err := s.ds.GetInspection(inspectionNo)
	if err != nil {
		return err
	}
	s.removeInspectionImage(&i)
	s.effective.Delete(effectiveKey(inspectionNo))
	return s.ds.DeleteInspection(inspectionNo)
}

func (s *Service) removeInspectionImage(i *datastore.Inspection) {
	if i.MaintenanceImagePath == "" {
		return
	}
	if err := s.images.Delete(i.MaintenanceImagePath); err != nil && !errors.Is(err, imagestore.ErrNotFound) {
		s.log.Warn("failed to delete maintenance image", "inspection", i.InspectionNo, "error", err)
	}
}

// UploadMaintenanceImage stores a maintenance image for an inspection,
// resets its annotation state and kicks off detector analysis in the
// background. A new image invalidates all prior annotations.
func (s *Service) UploadMaintenanceImage(inspectionNo uint, data []byte, originalName, weather string) (datastore.Inspection, error) {
	i, err := s.ds.GetInspection(inspectionNo)
	if err != nil {
		return datastore.Inspection{}, err
	}
	filename, err := s.images.StoreMaintenanceImage(inspectionNo, data, originalName)
	if err != nil {
		return datastore.Inspection{}, err
	}
	if i.MaintenanceImagePath != "" {
		if err := s.images.Delete(i.MaintenanceImagePath); err != nil && !errors.Is(err, imagestore.ErrNotFound) {
			s.log.Warn("failed to delete previous maintenance image", "inspection", inspectionNo, "error", err)
		}
	}

	now := time.Now()
	i.MaintenanceImagePath = filename
	i.MaintenanceImageUploadedAt = &now
	i.Weather = weather
	i.State = StateAnalysisPending
	i.AIBoundingBoxes = ""
	i.EditedOrAddedBoxes = ""
	i.DeletedBoxes = ""
	if err := s.ds.SaveInspection(&i); err != nil {
		return datastore.Inspection{}, err
	}
	s.effective.Delete(effectiveKey(inspectionNo))

	go s.analyzeAsync(i.InspectionNo, s.settings.Detector.DefaultConfidence)
	return i, nil
}

// DeleteMaintenanceImage removes an inspection's maintenance image along
// with the analysis results and annotations derived from it, returning the
// inspection to its pre-analysis state.
func (s *Service) DeleteMaintenanceImage(inspectionNo uint) (datastore.Inspection, error) {
	i, err := s.ds.GetInspection(inspectionNo)
	if err != nil {
		return datastore.Inspection{}, err
	}
	if i.MaintenanceImagePath == "" {
		return datastore.Inspection{}, errors.New(imagestore.ErrNotFound).
			Component("inspection").
			Category(errors.CategoryNotFound).
			Context("inspection_no", i.InspectionNo).
			Build()
	}
	s.removeInspectionImage(&i)
	i.MaintenanceImagePath = ""
	i.MaintenanceImageUploadedAt = nil
	i.State = StateInProgress
	i.AIBoundingBoxes = ""
	i.EditedOrAddedBoxes = ""
	i.DeletedBoxes = ""
	if err := s.ds.SaveInspection(&i); err != nil {
		return datastore.Inspection{}, err
	}
	s.effective.Delete(effectiveKey(inspectionNo))
	return i, nil
}

// analyzeAsync runs detector analysis in the background and records the
// outcome in the inspection state.
func (s *Service) analyzeAsync(inspectionNo uint, confidence float64) {
	ctx, cancel := context.WithTimeout(context.Background(), analysisTimeout)
	defer cancel()
	if err := s.analyze(ctx, inspectionNo, confidence, false); err != nil {
		s.log.Error("background analysis failed", "inspection", inspectionNo, "error", err)
	}
}

// Reanalyze re-runs the detector on the current maintenance image with the
// given confidence threshold and replaces the prediction set. Human
// annotations are preserved; the reconciliation on read absorbs the new
// predictions.
func (s *Service) Reanalyze(ctx context.Context, inspectionNo uint, confidence float64) (datastore.Inspection, error) {
	if confidence < MinConfidence || confidence > MaxConfidence {
		return datastore.Inspection{}, validationError("confidence threshold %.2f out of range [%.1f, %.1f]", confidence, MinConfidence, MaxConfidence)
	}
	if err := s.analyze(ctx, inspectionNo, confidence, true); err != nil {
		return datastore.Inspection{}, err
	}
	return s.ds.GetInspection(inspectionNo)
}

func (s *Service) analyze(ctx context.Context, inspectionNo uint, confidence float64, keepAnnotations bool) error {
	i, err := s.ds.GetInspection(inspectionNo)
	if err != nil {
		return err
	}
	if i.MaintenanceImagePath == "" {
		return validationError("inspection %d has no maintenance image", inspectionNo)
	}
	path, err := s.images.Path(i.MaintenanceImagePath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.New(err).
			Component("inspection").
			Category(errors.CategoryFileIO).
			Context("operation", "read_maintenance_image").
			Build()
	}

	start := time.Now()
	predictions, err := s.detector.Analyze(ctx, data, i.MaintenanceImagePath, confidence)
	if s.metrics != nil {
		s.metrics.DetectorDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.DetectorRequests.WithLabelValues("error").Inc()
		}
		i.State = StateAnalysisFailed
		if saveErr := s.ds.SaveInspection(&i); saveErr != nil {
			s.log.Error("failed to record analysis failure", "inspection", inspectionNo, "error", saveErr)
		}
		return err
	}
	if s.metrics != nil {
		s.metrics.DetectorRequests.WithLabelValues("success").Inc()
	}

	encoded, err := annotation.EncodePredictionSet(predictions)
	if err != nil {
		return err
	}
	i.AIBoundingBoxes = encoded
	i.State = StateAnalysisCompleted
	if !keepAnnotations {
		i.EditedOrAddedBoxes = ""
		i.DeletedBoxes = ""
	}
	if err := s.ds.SaveInspection(&i); err != nil {
		return err
	}
	s.effective.Delete(effectiveKey(inspectionNo))
	s.log.Info("analysis completed", "inspection", inspectionNo, "predictions", len(predictions.Predictions), "confidence", confidence)
	return nil
}

// --- annotations ---

func effectiveKey(inspectionNo uint) string {
	return fmt.Sprintf("effective:%d", inspectionNo)
}

func partitionsOf(i *datastore.Inspection) (annotation.PredictionSet, annotation.Partitions) {
	return annotation.DecodePredictionSet(i.AIBoundingBoxes), annotation.Partitions{
		EditedOrAdded: annotation.DecodeEntries(i.EditedOrAddedBoxes),
		Deleted:       annotation.DecodeEntries(i.DeletedBoxes),
	}
}

func (s *Service) savePartitions(i *datastore.Inspection, parts annotation.Partitions) error {
	edited, err := annotation.EncodeEntries(parts.EditedOrAdded)
	if err != nil {
		return err
	}
	deleted, err := annotation.EncodeEntries(parts.Deleted)
	if err != nil {
		return err
	}
	i.EditedOrAddedBoxes = edited
	i.DeletedBoxes = deleted
	if err := s.ds.SaveInspection(i); err != nil {
		return err
	}
	s.effective.Delete(effectiveKey(i.InspectionNo))
	return nil
}

// EffectiveDetections materializes the current effective detection set for
// an inspection: detector output with the annotation log applied.
func (s *Service) EffectiveDetections(inspectionNo uint) ([]annotation.Detection, error) {
	key := effectiveKey(inspectionNo)
	if cached, ok := s.effective.Get(key); ok {
		if s.metrics != nil {
			s.metrics.ReconcileTotal.WithLabelValues("hit").Inc()
		}
		return cached.([]annotation.Detection), nil
	}

	i, err := s.ds.GetInspection(inspectionNo)
	if err != nil {
		return nil, err
	}
	ai, parts := partitionsOf(&i)

	start := time.Now()
	detections := annotation.BuildEffectiveSet(ai, parts.EditedOrAdded, parts.Deleted)
	if s.metrics != nil {
		s.metrics.ReconcileTotal.WithLabelValues("miss").Inc()
		s.metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
		s.metrics.EffectiveSetSize.Observe(float64(len(detections)))
	}
	s.effective.Set(key, detections, gocache.DefaultExpiration)
	return detections, nil
}

// DeletedDetections returns the deleted partition of an inspection's
// annotation log, for review and recovery.
func (s *Service) DeletedDetections(inspectionNo uint) ([]annotation.Entry, error) {
	i, err := s.ds.GetInspection(inspectionNo)
	if err != nil {
		return nil, err
	}
	return annotation.DecodeEntries(i.DeletedBoxes), nil
}

// SaveAnnotations folds a save diff into an inspection's annotation log.
// The detector output is never modified.
func (s *Service) SaveAnnotations(inspectionNo uint, diff annotation.SaveDiff) (datastore.Inspection, error) {
	i, err := s.ds.GetInspection(inspectionNo)
	if err != nil {
		s.countSave("error")
		return datastore.Inspection{}, err
	}
	_, parts := partitionsOf(&i)
	merged := annotation.MergeSave(parts, diff)
	if err := s.savePartitions(&i, merged); err != nil {
		s.countSave("error")
		return datastore.Inspection{}, err
	}
	s.countSave("success")
	s.log.Info("annotations saved",
		"inspection", inspectionNo,
		"added", len(diff.Added), "edited", len(diff.Edited), "deleted", len(diff.Deleted))
	return i, nil
}

// SaveWorkingSet accepts a client's full working detection set, computes the
// save diff against the stored detector output and folds it into the log.
func (s *Service) SaveWorkingSet(inspectionNo uint, working []annotation.WorkingDetection, deleteNotes []annotation.Entry) (datastore.Inspection, error) {
	i, err := s.ds.GetInspection(inspectionNo)
	if err != nil {
		s.countSave("error")
		return datastore.Inspection{}, err
	}
	ai, parts := partitionsOf(&i)
	diff := annotation.ComputeSaveDiff(working, ai, deleteNotes)
	merged := annotation.MergeSave(parts, diff)
	if err := s.savePartitions(&i, merged); err != nil {
		s.countSave("error")
		return datastore.Inspection{}, err
	}
	s.countSave("success")
	s.log.Info("working set saved",
		"inspection", inspectionNo,
		"working", len(working),
		"added", len(diff.Added), "edited", len(diff.Edited), "deleted", len(diff.Deleted))
	return i, nil
}

func (s *Service) countSave(result string) {
	if s.metrics != nil {
		s.metrics.SaveTotal.WithLabelValues(result).Inc()
	}
}

// RecoverDetection moves a deleted detection back into the effective set.
// destination is optional; when empty, the side is resolved from the
// deletion record and the detector output.
func (s *Service) RecoverDetection(inspectionNo uint, box geometry.Box, destination annotation.Destination) (datastore.Inspection, error) {
	i, err := s.ds.GetInspection(inspectionNo)
	if err != nil {
		return datastore.Inspection{}, err
	}
	ai, parts := partitionsOf(&i)

	rec, err := annotation.Recover(parts.Deleted, box, destination, ai)
	if err != nil {
		return datastore.Inspection{}, err
	}

	parts.Deleted = rec.RemainingDeleted
	if rec.Destination == annotation.DestinationEdited {
		parts.EditedOrAdded = annotation.Reinstate(parts.EditedOrAdded, rec)
	}
	// A recovery to the detector side only needs the deletion record gone;
	// the prediction reappears on the next reconciliation.
	if err := s.savePartitions(&i, parts); err != nil {
		return datastore.Inspection{}, err
	}
	if s.metrics != nil {
		s.metrics.RecoveryTotal.WithLabelValues(string(rec.Destination)).Inc()
	}
	s.log.Info("detection recovered", "inspection", inspectionNo, "destination", rec.Destination)
	return i, nil
}

// ChangeLog returns the change history of the effective detection closest
// to box, newest line first.
func (s *Service) ChangeLog(inspectionNo uint, box geometry.Box) ([]annotation.ChangeLogLine, error) {
	i, err := s.ds.GetInspection(inspectionNo)
	if err != nil {
		return nil, err
	}
	detections, err := s.EffectiveDetections(inspectionNo)
	if err != nil {
		return nil, err
	}

	boxes := make([]geometry.Box, len(detections))
	for idx := range detections {
		boxes[idx] = detections[idx].Box
	}
	idx := geometry.ClosestMatch(box, boxes, geometry.MatchEpsilon)
	if idx < 0 {
		return nil, errors.Newf("no detection at box %v", box).
			Component("inspection").
			Category(errors.CategoryNotFound).
			Build()
	}

	uploadedAt := ""
	if i.MaintenanceImageUploadedAt != nil {
		uploadedAt = i.MaintenanceImageUploadedAt.UTC().Format(time.RFC3339)
	}
	return annotation.ProjectChangeLog(detections[idx], uploadedAt), nil
}

// --- maintenance ---

// Stats summarizes stored annotation data, typically consulted before a
// model retraining cleanup.
type Stats struct {
	TotalInspections int64 `json:"totalInspections"`
	WithChanges      int   `json:"inspectionsWithChanges"`
	EditedOrAdded    int   `json:"editedOrAddedEntries"`
	Deleted          int   `json:"deletedEntries"`
}

// AnnotationStats counts inspections carrying human annotation data and the
// log entries they hold, optionally scoped to one transformer.
func (s *Service) AnnotationStats(transformerNo string) (Stats, error) {
	var (
		total   int64
		changed []datastore.Inspection
		err     error
	)
	if transformerNo != "" {
		scoped, err := s.ds.GetInspectionsByTransformer(transformerNo)
		if err != nil {
			return Stats{}, err
		}
		total = int64(len(scoped))
		changed, err = s.ds.InspectionsWithAnnotationChangesByTransformer(transformerNo)
		if err != nil {
			return Stats{}, err
		}
	} else {
		total, err = s.ds.CountInspections()
		if err != nil {
			return Stats{}, err
		}
		changed, err = s.ds.InspectionsWithAnnotationChanges()
		if err != nil {
			return Stats{}, err
		}
	}
	stats := Stats{TotalInspections: total, WithChanges: len(changed)}
	for idx := range changed {
		stats.EditedOrAdded += len(annotation.DecodeEntries(changed[idx].EditedOrAddedBoxes))
		stats.Deleted += len(annotation.DecodeEntries(changed[idx].DeletedBoxes))
	}
	return stats, nil
}

// CleanupAnnotations clears the human annotation partitions. Scope narrows
// from all inspections, to one transformer, to one inspection. Returns the
// number of inspections cleared.
func (s *Service) CleanupAnnotations(transformerNo string, inspectionNo uint) (int64, error) {
	var (
		cleared int64
		err     error
	)
	switch {
	case inspectionNo != 0:
		cleared, err = s.ds.CleanupAnnotationsByInspection(inspectionNo)
		s.effective.Delete(effectiveKey(inspectionNo))
	case transformerNo != "":
		cleared, err = s.ds.CleanupAnnotationsByTransformer(transformerNo)
		s.effective.Flush()
	default:
		cleared, err = s.ds.CleanupAnnotations()
		s.effective.Flush()
	}
	if err != nil {
		return 0, err
	}
	s.log.Info("annotations cleaned up", "transformer", transformerNo, "inspection", inspectionNo, "cleared", cleared)
	return cleared, nil
}
