package models

// StudyMetadata is patient and study level information passed through to the writer
type StudyMetadata struct {
	PatientName      string
	PatientID        string
	PatientSex       string
	StudyDate        string
	StudyTime        string
	StudyDescription string
	StudyInstanceUID string
	StudyID          string
}

// SeriesMetadata is per-series information passed through to the writer
type SeriesMetadata struct {
	Description string
	Number      string
	Modality    string
}

// ExportBundle is the complete normalized RT study handed to a writer
type ExportBundle struct {
	// Image is the normalized anatomical reference image
	Image *VolumeGrid

	// Dose is the normalized dose grid, nil when no dose was exported
	Dose *VolumeGrid

	// Structures are in the order the segments were supplied
	Structures []Structure

	Study           StudyMetadata
	ImageSeries     SeriesMetadata
	DoseSeries      SeriesMetadata
	StructureSeries SeriesMetadata

	// ImageSliceUIDs are the instance UIDs of the reference image slices
	ImageSliceUIDs []string

	// OutputDirectory is where the writer should place its files
	OutputDirectory string
}
