package export

import (
	"strings"

	"rtstudyexport/internal/models"
	"rtstudyexport/pkg/geometry"
)

// Tag names read from exportables
const (
	TagPatientName       = "PatientName"
	TagPatientID         = "PatientID"
	TagPatientSex        = "PatientSex"
	TagStudyDate         = "StudyDate"
	TagStudyTime         = "StudyTime"
	TagStudyDescription  = "StudyDescription"
	TagSeriesDescription = "SeriesDescription"
	TagSeriesNumber      = "SeriesNumber"
	TagModality          = "Modality"
)

// Placeholder descriptions written by data sources that have none; they are exported empty
const (
	noStudyDescription  = "No study description"
	noSeriesDescription = "No series description"
)

// Exportable describes one item of the study offered for export
type Exportable struct {
	// Name identifies the item in messages
	Name string

	// Tags holds patient, study and series metadata keyed by tag name
	Tags map[string]string

	// Node is the data behind the item. Image and dose nodes implement VolumeSource,
	// segmentation nodes implement SegmentationSource.
	Node any

	// Directory is the output directory chosen for the export
	Directory string

	// StudyInstanceUID and StudyID identify the study the item belongs to, when known
	StudyInstanceUID string
	StudyID          string

	// SliceInstanceUIDs lists the instance UID of every slice of an image series,
	// in slice order
	SliceInstanceUIDs []string
}

// Tag returns the value of tag name, or "" when it is not set
func (e Exportable) Tag(name string) string {
	if e.Tags == nil {
		return ""
	}
	return e.Tags[name]
}

// Role is what an exportable contributes to the RT study
type Role int

const (
	Unrecognized Role = iota
	Image
	Dose
	Segmentation
)

// String returns the role name
func (r Role) String() string {
	switch r {
	case Image:
		return "image"
	case Dose:
		return "dose"
	case Segmentation:
		return "segmentation"
	default:
		return "unrecognized"
	}
}

// Classifier decides the role of an exportable
type Classifier func(Exportable) Role

// ClassifyByModality assigns roles from the Modality tag: RTDOSE is dose, RTSTRUCT and
// SEG are segmentations and any other modality is an anatomical image.
func ClassifyByModality(e Exportable) Role {
	switch modality := strings.ToUpper(strings.TrimSpace(e.Tag(TagModality))); modality {
	case "":
		return Unrecognized
	case "RTDOSE":
		return Dose
	case "RTSTRUCT", "SEG":
		return Segmentation
	default:
		return Image
	}
}

// VolumeSource converts an image or dose node to an oriented volume
type VolumeSource interface {
	VolumeGrid() (*models.VolumeGrid, error)
}

// SegmentationSource exposes the segments of a segmentation node
type SegmentationSource interface {
	// Name of the segmentation
	Name() string

	// MasterRepresentation is the representation the segments were created in
	MasterRepresentation() models.RepresentationKind

	// Segments in export order
	Segments() []models.Segment

	// ParentTransform maps segmentation space to world space; nil means identity
	ParentTransform() geometry.Transform
}

// Writer serializes a completed export
type Writer interface {
	Write(bundle *models.ExportBundle) error
}

// WriterFunc adapts a function to Writer
type WriterFunc func(bundle *models.ExportBundle) error

// Write implements Writer
func (f WriterFunc) Write(bundle *models.ExportBundle) error {
	return f(bundle)
}
