// model.go defines the persisted data model for the application.
package datastore

import "time"

// Transformer represents one monitored transformer unit.
type Transformer struct {
	// TransformerNo is the operator-assigned identifier.
	TransformerNo   string `gorm:"primaryKey;column:transformer_no"`
	Region          string `gorm:"not null"`
	PoleNo          string `gorm:"not null"`
	Type            string `gorm:"not null"`
	LocationDetails string `gorm:"type:text;not null"`

	// Baseline thermal image captured under known-good conditions.
	BaselineImagePath       string
	BaselineImageUploadedAt *time.Time
	BaselineWeather         string

	Inspections []Inspection `gorm:"foreignKey:TransformerNo;references:TransformerNo;constraint:OnDelete:CASCADE"`
}

// Inspection represents one thermal inspection of a transformer. The three
// annotation columns are the persisted layout of the annotation log: the
// immutable detector output, the current edited/added records and the
// deletion records, each stored as JSON text.
type Inspection struct {
	InspectionNo  uint      `gorm:"primaryKey"`
	Branch        string    `gorm:"not null"`
	TransformerNo string    `gorm:"index;not null"`
	InspectedAt   time.Time `gorm:"index;not null"`

	// State carries both workflow status and analysis status, e.g.
	// "In Progress", "AI Analysis Pending", "AI Analysis Completed",
	// "AI Analysis Failed".
	State string

	MaintenanceImagePath       string
	MaintenanceImageUploadedAt *time.Time
	Weather                    string

	// AIBoundingBoxes is the detector output for the current maintenance
	// image: {"predictions":[{box,class,confidence}]}. Replaced wholesale
	// on every (re-)analysis, never edited in place.
	AIBoundingBoxes string `gorm:"type:text"`
	// EditedOrAddedBoxes is the edited/added partition of the annotation
	// log, a JSON array of entries.
	EditedOrAddedBoxes string `gorm:"type:text;column:edited_or_manually_added_boxes"`
	// DeletedBoxes is the deleted partition, a JSON array of entries.
	DeletedBoxes string `gorm:"type:text;column:deleted_bounding_boxes"`
}

// HasAnnotationChanges reports whether any human annotation data is stored.
func (i *Inspection) HasAnnotationChanges() bool {
	return i.EditedOrAddedBoxes != "" || i.DeletedBoxes != ""
}
