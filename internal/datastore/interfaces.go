// interfaces.go defines the interface for the database operations.
package datastore

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/heatwatch/heatwatch-go/internal/conf"
	"github.com/heatwatch/heatwatch-go/internal/errors"
	"github.com/heatwatch/heatwatch-go/internal/logging"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.NewStd("record not found")

// Interface abstracts the underlying database implementation.
type Interface interface {
	Open() error
	Close() error

	// Transformers
	SaveTransformer(t *Transformer) error
	GetTransformer(transformerNo string) (Transformer, error)
	GetAllTransformers() ([]Transformer, error)
	DeleteTransformer(transformerNo string) error

	// Inspections
	SaveInspection(i *Inspection) error
	GetInspection(inspectionNo uint) (Inspection, error)
	GetAllInspections() ([]Inspection, error)
	GetInspectionsByTransformer(transformerNo string) ([]Inspection, error)
	DeleteInspection(inspectionNo uint) error
	CountInspections() (int64, error)

	// Annotation maintenance, used after model retraining.
	InspectionsWithAnnotationChanges() ([]Inspection, error)
	InspectionsWithAnnotationChangesByTransformer(transformerNo string) ([]Inspection, error)
	CleanupAnnotations() (int64, error)
	CleanupAnnotationsByTransformer(transformerNo string) (int64, error)
	CleanupAnnotationsByInspection(inspectionNo uint) (int64, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB  *gorm.DB
	log *slog.Logger
}

// New creates a store for the configured database backend.
func New(settings *conf.Settings) Interface {
	return &SQLiteStore{
		Settings:  settings,
		DataStore: DataStore{log: logging.ForService("datastore")},
	}
}

func (ds *DataStore) dbError(err error, operation string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Build()
}

// SaveTransformer inserts or updates a transformer record.
func (ds *DataStore) SaveTransformer(t *Transformer) error {
	if err := ds.DB.Save(t).Error; err != nil {
		return ds.dbError(err, "save_transformer")
	}
	return nil
}

// GetTransformer retrieves a transformer by its number.
func (ds *DataStore) GetTransformer(transformerNo string) (Transformer, error) {
	var t Transformer
	if err := ds.DB.First(&t, "transformer_no = ?", transformerNo).Error; err != nil {
		return Transformer{}, ds.dbError(err, "get_transformer")
	}
	return t, nil
}

// GetAllTransformers retrieves every transformer.
func (ds *DataStore) GetAllTransformers() ([]Transformer, error) {
	var ts []Transformer
	if err := ds.DB.Order("transformer_no").Find(&ts).Error; err != nil {
		return nil, ds.dbError(err, "get_all_transformers")
	}
	return ts, nil
}

// DeleteTransformer removes a transformer and, through the cascade, its
// inspections.
func (ds *DataStore) DeleteTransformer(transformerNo string) error {
	res := ds.DB.Delete(&Transformer{}, "transformer_no = ?", transformerNo)
	if res.Error != nil {
		return ds.dbError(res.Error, "delete_transformer")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveInspection inserts or updates an inspection record.
func (ds *DataStore) SaveInspection(i *Inspection) error {
	if err := ds.DB.Save(i).Error; err != nil {
		return ds.dbError(err, "save_inspection")
	}
	return nil
}

// GetInspection retrieves an inspection by its number.
func (ds *DataStore) GetInspection(inspectionNo uint) (Inspection, error) {
	var i Inspection
	if err := ds.DB.First(&i, "inspection_no = ?", inspectionNo).Error; err != nil {
		return Inspection{}, ds.dbError(err, "get_inspection")
	}
	return i, nil
}

// GetAllInspections retrieves every inspection, newest first.
func (ds *DataStore) GetAllInspections() ([]Inspection, error) {
	var is []Inspection
	if err := ds.DB.Order("inspected_at DESC").Find(&is).Error; err != nil {
		return nil, ds.dbError(err, "get_all_inspections")
	}
	return is, nil
}

// GetInspectionsByTransformer retrieves a transformer's inspections, newest
// first.
func (ds *DataStore) GetInspectionsByTransformer(transformerNo string) ([]Inspection, error) {
	var is []Inspection
	err := ds.DB.Where("transformer_no = ?", transformerNo).
		Order("inspected_at DESC").
		Find(&is).Error
	if err != nil {
		return nil, ds.dbError(err, "get_inspections_by_transformer")
	}
	return is, nil
}

// DeleteInspection removes an inspection record.
func (ds *DataStore) DeleteInspection(inspectionNo uint) error {
	res := ds.DB.Delete(&Inspection{}, "inspection_no = ?", inspectionNo)
	if res.Error != nil {
		return ds.dbError(res.Error, "delete_inspection")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountInspections returns the total number of inspections.
func (ds *DataStore) CountInspections() (int64, error) {
	var n int64
	if err := ds.DB.Model(&Inspection{}).Count(&n).Error; err != nil {
		return 0, ds.dbError(err, "count_inspections")
	}
	return n, nil
}

const annotationChangesCond = "(edited_or_manually_added_boxes IS NOT NULL AND edited_or_manually_added_boxes != '') OR " +
	"(deleted_bounding_boxes IS NOT NULL AND deleted_bounding_boxes != '')"

// InspectionsWithAnnotationChanges retrieves inspections carrying any human
// annotation data.
func (ds *DataStore) InspectionsWithAnnotationChanges() ([]Inspection, error) {
	var is []Inspection
	if err := ds.DB.Where(annotationChangesCond).Find(&is).Error; err != nil {
		return nil, ds.dbError(err, "inspections_with_annotation_changes")
	}
	return is, nil
}

// InspectionsWithAnnotationChangesByTransformer retrieves a transformer's
// inspections carrying any human annotation data.
func (ds *DataStore) InspectionsWithAnnotationChangesByTransformer(transformerNo string) ([]Inspection, error) {
	var is []Inspection
	err := ds.DB.Where("transformer_no = ?", transformerNo).
		Where(annotationChangesCond).
		Find(&is).Error
	if err != nil {
		return nil, ds.dbError(err, "inspections_with_annotation_changes_by_transformer")
	}
	return is, nil
}

// cleanupAnnotations clears the human annotation partitions on the given
// query scope. The detector output column is left untouched.
func (ds *DataStore) cleanupAnnotations(tx *gorm.DB, operation string) (int64, error) {
	res := tx.Model(&Inspection{}).
		Where(annotationChangesCond).
		Updates(map[string]any{
			"edited_or_manually_added_boxes": "",
			"deleted_bounding_boxes":         "",
		})
	if res.Error != nil {
		return 0, ds.dbError(res.Error, operation)
	}
	return res.RowsAffected, nil
}

// CleanupAnnotations clears human annotations on every inspection, used
// after the detection model has been retrained.
func (ds *DataStore) CleanupAnnotations() (int64, error) {
	return ds.cleanupAnnotations(ds.DB, "cleanup_annotations")
}

// CleanupAnnotationsByTransformer clears human annotations for one
// transformer's inspections.
func (ds *DataStore) CleanupAnnotationsByTransformer(transformerNo string) (int64, error) {
	return ds.cleanupAnnotations(
		ds.DB.Where("transformer_no = ?", transformerNo),
		"cleanup_annotations_by_transformer",
	)
}

// CleanupAnnotationsByInspection clears human annotations for a single
// inspection.
func (ds *DataStore) CleanupAnnotationsByInspection(inspectionNo uint) (int64, error) {
	return ds.cleanupAnnotations(
		ds.DB.Where("inspection_no = ?", inspectionNo),
		"cleanup_annotations_by_inspection",
	)
}
