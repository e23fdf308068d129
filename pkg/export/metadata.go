package export

import (
	"math/big"
	"strings"

	"github.com/google/uuid"

	"rtstudyexport/internal/models"
)

// uidRoot is the DICOM root for UIDs derived from a UUID (PS3.5 B.2)
const uidRoot = "2.25."

// NewStudyInstanceUID returns a fresh UID of the form 2.25.<decimal UUID>
func NewStudyInstanceUID() string {
	id := uuid.New()
	return uidRoot + new(big.Int).SetBytes(id[:]).String()
}

// description drops the placeholder text some data sources use for empty descriptions
func description(value, placeholder string) string {
	if strings.TrimSpace(value) == placeholder {
		return ""
	}
	return value
}

// studyMetadata reads patient and study tags from e
func studyMetadata(e *Exportable) models.StudyMetadata {
	return models.StudyMetadata{
		PatientName:      e.Tag(TagPatientName),
		PatientID:        e.Tag(TagPatientID),
		PatientSex:       e.Tag(TagPatientSex),
		StudyDate:        e.Tag(TagStudyDate),
		StudyTime:        e.Tag(TagStudyTime),
		StudyDescription: description(e.Tag(TagStudyDescription), noStudyDescription),
		StudyInstanceUID: e.StudyInstanceUID,
		StudyID:          e.StudyID,
	}
}

// seriesMetadata reads series tags from e; a nil exportable gives empty metadata
// carrying only the default modality.
func seriesMetadata(e *Exportable, defaultModality string) models.SeriesMetadata {
	if e == nil {
		return models.SeriesMetadata{Modality: defaultModality}
	}
	s := models.SeriesMetadata{
		Description: description(e.Tag(TagSeriesDescription), noSeriesDescription),
		Number:      e.Tag(TagSeriesNumber),
		Modality:    e.Tag(TagModality),
	}
	if s.Modality == "" {
		s.Modality = defaultModality
	}
	return s
}
