// Package export assembles a normalized RT study (reference image, dose and structures)
// from a list of exportable items.
package export

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"rtstudyexport/internal/models"
	"rtstudyexport/pkg/contour"
	"rtstudyexport/pkg/logging"
	"rtstudyexport/pkg/normalize"
)

// Params holds the exporter configuration.
type Params struct {
	// Classifier assigns roles to exportables. Defaults to ClassifyByModality.
	Classifier Classifier

	// StrictRoles makes a second exportable for an already assigned role a fatal
	// configuration error. Otherwise the later exportable replaces the earlier one.
	StrictRoles bool

	// GenerateStudyUID creates a study instance UID when the exportables carry none.
	GenerateStudyUID bool

	// WeldTolerance merges surface points closer than this distance before slicing.
	// Zero disables welding.
	WeldTolerance float64

	// Logger receives progress and warnings. Defaults to a stderr logger.
	Logger logrus.FieldLogger
}

// StudyExporter turns exportables into an ExportBundle.
//
// An export runs through the states CollectingRoles, ValidatingPrimaryImage,
// NormalizingGeometry, ProcessingStructures and Assembling before reaching Done. Any
// fatal condition moves it to Failed and the export returns an *Error without a bundle.
type StudyExporter struct {
	params     Params
	log        logrus.FieldLogger
	normalizer *normalize.Normalizer
	extractor  *contour.Extractor
}

// NewStudyExporter creates an exporter with the provided parameters.
func NewStudyExporter(params Params) *StudyExporter {
	if params.Classifier == nil {
		params.Classifier = ClassifyByModality
	}
	log := params.Logger
	if log == nil {
		log = logging.NamedLogger("export", false)
	}
	return &StudyExporter{
		params:     params,
		log:        log,
		normalizer: normalize.NewNormalizer(log),
		extractor:  contour.NewExtractor(log),
	}
}

// Export runs the complete pipeline on exportables. Structures keep the order of the
// segments in the segmentation; nothing is written.
func (x *StudyExporter) Export(exportables []Exportable) (*models.ExportBundle, error) {
	r := &run{StudyExporter: x, state: CollectingRoles}
	bundle, err := r.execute(exportables)
	if err != nil {
		return nil, err
	}
	return bundle, nil
}

// Run exports and hands the bundle to w. The writer is only called after a successful export.
func (x *StudyExporter) Run(exportables []Exportable, w Writer) error {
	bundle, err := x.Export(exportables)
	if err != nil {
		return err
	}
	if w == nil {
		return nil
	}
	if err := w.Write(bundle); err != nil {
		return fmt.Errorf("failed to write export bundle: %w", err)
	}
	return nil
}

// run holds the state of a single export
type run struct {
	*StudyExporter
	state State

	image        *Exportable
	dose         *Exportable
	segmentation *Exportable

	imageGrid *models.VolumeGrid
	doseGrid  *models.VolumeGrid

	structures []models.Structure
}

func (r *run) enter(s State) {
	r.state = s
	r.log.WithField("state", s).Debug("Export state changed")
}

// fail moves the run to Failed and returns the error describing why
func (r *run) fail(kind error, message string, cause error) error {
	e := &Error{Kind: kind, State: r.state, Message: message, Err: cause}
	entry := r.log.WithField("state", r.state)
	if cause != nil {
		entry = entry.WithError(cause)
	}
	entry.Error(message)
	r.state = Failed
	return e
}

func (r *run) execute(exportables []Exportable) (*models.ExportBundle, error) {
	// Step 1: Classify the exportables
	r.log.Info("Step 1: Collecting exportable roles...")
	if err := r.collectRoles(exportables); err != nil {
		return nil, err
	}

	// Step 2: An RT study always has a reference image
	r.enter(ValidatingPrimaryImage)
	r.log.Info("Step 2: Validating primary image...")
	if r.image == nil {
		return nil, r.fail(ErrConfiguration, "Must export the primary anatomical (CT/MR) image", nil)
	}

	// Step 3: Remove shear from image and dose
	r.enter(NormalizingGeometry)
	r.log.Info("Step 3: Normalizing image and dose geometry...")
	if err := r.normalizeVolumes(); err != nil {
		return nil, err
	}

	// Step 4: Masks and contours of every segment
	r.enter(ProcessingStructures)
	r.log.Info("Step 4: Processing structures...")
	if err := r.processStructures(); err != nil {
		return nil, err
	}

	// Step 5: Assemble the bundle
	r.enter(Assembling)
	r.log.Info("Step 5: Assembling export bundle...")
	bundle := r.assemble(exportables)

	r.enter(Done)
	r.log.WithFields(logrus.Fields{
		"structures": len(bundle.Structures),
		"dose":       bundle.Dose != nil,
	}).Info("Export complete")
	return bundle, nil
}

func (r *run) collectRoles(exportables []Exportable) error {
	if len(exportables) == 0 {
		return r.fail(ErrConfiguration, "Exportable list contains no exportables", nil)
	}

	for i := range exportables {
		e := &exportables[i]
		role := r.params.Classifier(*e)

		var slot **Exportable
		switch role {
		case Image:
			slot = &r.image
		case Dose:
			slot = &r.dose
		case Segmentation:
			slot = &r.segmentation
		default:
			r.log.WithField("exportable", e.Name).Warn("Unable to assign supported RT role to exported item")
			continue
		}

		if prev := *slot; prev != nil {
			if r.params.StrictRoles {
				return r.fail(ErrConfiguration,
					fmt.Sprintf("Exportables %s and %s both have the %s role", prev.Name, e.Name, role), nil)
			}
			r.log.WithFields(logrus.Fields{
				"role":     role,
				"replaced": prev.Name,
				"with":     e.Name,
			}).Warn("More than one exportable for role, using the last one")
		}
		*slot = e
		r.log.WithFields(logrus.Fields{"exportable": e.Name, "role": role}).Debug("Assigned role")
	}
	return nil
}

func (r *run) normalizeVolumes() error {
	grid, err := r.normalizedVolume(r.image, "anatomical image")
	if err != nil {
		return err
	}
	r.imageGrid = grid

	if r.dose != nil {
		grid, err := r.normalizedVolume(r.dose, "dose volume")
		if err != nil {
			return err
		}
		r.doseGrid = grid
	}
	return nil
}

// normalizedVolume converts the node of e to a volume and removes shear from its geometry
func (r *run) normalizedVolume(e *Exportable, what string) (*models.VolumeGrid, error) {
	conversionFailed := fmt.Sprintf("Failed to convert %s %s to oriented image data", what, e.Name)

	source, ok := e.Node.(VolumeSource)
	if !ok {
		return nil, r.fail(ErrConversion, conversionFailed, fmt.Errorf("node of type %T is not a volume", e.Node))
	}
	grid, err := source.VolumeGrid()
	if err != nil {
		return nil, r.fail(ErrConversion, conversionFailed, err)
	}
	if grid.Empty() {
		return nil, r.fail(ErrConversion, conversionFailed, normalize.ErrEmptyVolume)
	}

	normalized, err := r.normalizer.Normalize(grid, normalize.Linear)
	if err != nil {
		return nil, r.fail(ErrConversion, fmt.Sprintf("Failed to normalize geometry of %s %s", what, e.Name), err)
	}
	return normalized, nil
}

func (r *run) assemble(exportables []Exportable) *models.ExportBundle {
	first := &exportables[0]
	study := studyMetadata(first)
	if study.StudyInstanceUID == "" {
		entry := r.log.WithField("exportable", first.Name)
		if r.params.GenerateStudyUID {
			study.StudyInstanceUID = NewStudyInstanceUID()
			entry = entry.WithField("uid", study.StudyInstanceUID)
		}
		entry.Warn("No study found for exported item")
	}

	var sliceUIDs []string
	if len(r.image.SliceInstanceUIDs) > 0 {
		sliceUIDs = append(sliceUIDs, r.image.SliceInstanceUIDs...)
	}

	return &models.ExportBundle{
		Image:           r.imageGrid,
		Dose:            r.doseGrid,
		Structures:      r.structures,
		Study:           study,
		ImageSeries:     seriesMetadata(r.image, "CT"),
		DoseSeries:      seriesMetadata(r.dose, "RTDOSE"),
		StructureSeries: seriesMetadata(r.segmentation, "RTSTRUCT"),
		ImageSliceUIDs:  sliceUIDs,
		OutputDirectory: first.Directory,
	}
}
