package export

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtstudyexport/internal/models"
	"rtstudyexport/pkg/geometry"
	"rtstudyexport/pkg/logging"
)

type volumeNode struct {
	grid *models.VolumeGrid
	err  error
}

func (n volumeNode) VolumeGrid() (*models.VolumeGrid, error) { return n.grid, n.err }

type segmentationNode struct {
	name     string
	master   models.RepresentationKind
	segments []models.Segment
	parent   geometry.Transform
}

func (n *segmentationNode) Name() string                                    { return n.name }
func (n *segmentationNode) MasterRepresentation() models.RepresentationKind { return n.master }
func (n *segmentationNode) Segments() []models.Segment                      { return n.segments }
func (n *segmentationNode) ParentTransform() geometry.Transform             { return n.parent }

func filledVolume(name string, extent [6]int, m geometry.Matrix4, value float64) *models.VolumeGrid {
	v := models.NewVolumeGrid(name, extent, m)
	for i := range v.Data {
		v.Data[i] = value
	}
	return v
}

func ctExportable() Exportable {
	return Exportable{
		Name: "CT",
		Tags: map[string]string{
			TagModality:          "CT",
			TagPatientName:       "Doe^Jane",
			TagPatientID:         "P001",
			TagStudyDescription:  "Pelvis",
			TagSeriesDescription: "No series description",
			TagSeriesNumber:      "2",
		},
		Node:              volumeNode{grid: filledVolume("CT", [6]int{0, 9, 0, 9, 0, 4}, geometry.Identity(), 100)},
		Directory:         "/tmp/out",
		StudyInstanceUID:  "1.2.840.1",
		StudyID:           "S1",
		SliceInstanceUIDs: []string{"s0", "s1", "s2", "s3", "s4"},
	}
}

func doseExportable() Exportable {
	return Exportable{
		Name: "Dose",
		Tags: map[string]string{TagModality: "RTDOSE"},
		Node: volumeNode{grid: filledVolume("Dose", [6]int{0, 4, 0, 4, 0, 2}, geometry.ScaleTranslate([3]float64{2, 2, 2}, geometry.Vec3{}), 1.5)},
	}
}

func segExportable(node SegmentationSource) Exportable {
	return Exportable{
		Name: "Structures",
		Tags: map[string]string{TagModality: "RTSTRUCT"},
		Node: node,
	}
}

func boxMesh(min, max geometry.Vec3) *models.ClosedSurfaceMesh {
	mesh := &models.ClosedSurfaceMesh{}
	for c := 0; c < 8; c++ {
		p := min
		if c&1 != 0 {
			p.X = max.X
		}
		if c&2 != 0 {
			p.Y = max.Y
		}
		if c&4 != 0 {
			p.Z = max.Z
		}
		mesh.Points = append(mesh.Points, p)
	}
	mesh.Polys = [][]int{
		{0, 4, 6, 2}, {1, 3, 7, 5},
		{0, 1, 5, 4}, {2, 6, 7, 3},
		{0, 2, 3, 1}, {4, 5, 7, 6},
	}
	return mesh
}

func newTestExporter(params Params) *StudyExporter {
	params.Logger = logging.Discard()
	return NewStudyExporter(params)
}

func requireExportError(t *testing.T, err error, kind error) *Error {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, kind)
	var exportErr *Error
	require.True(t, errors.As(err, &exportErr), "expected *Error, got %T", err)
	return exportErr
}

func TestExportWithoutImageFails(t *testing.T) {
	seg := &segmentationNode{name: "seg", master: models.ClosedSurface}
	exportables := []Exportable{doseExportable(), segExportable(seg)}

	written := false
	writer := WriterFunc(func(*models.ExportBundle) error {
		written = true
		return nil
	})

	exporter := newTestExporter(Params{})
	bundle, err := exporter.Export(exportables)
	assert.Nil(t, bundle)
	exportErr := requireExportError(t, err, ErrConfiguration)
	assert.Equal(t, "Must export the primary anatomical (CT/MR) image", exportErr.Error())
	assert.Equal(t, "Must export the primary anatomical (CT/MR) image", Reason(err))
	assert.Equal(t, ValidatingPrimaryImage, exportErr.State)

	err = exporter.Run(exportables, writer)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.False(t, written, "writer must not run after a failure")
}

func TestExportEmptyList(t *testing.T) {
	_, err := newTestExporter(Params{}).Export(nil)
	exportErr := requireExportError(t, err, ErrConfiguration)
	assert.Equal(t, CollectingRoles, exportErr.State)
	assert.Equal(t, "Exportable list contains no exportables", Reason(err))
}

func TestExportImageOnly(t *testing.T) {
	ct := ctExportable()
	unknown := Exportable{Name: "notes"}

	bundle, err := newTestExporter(Params{}).Export([]Exportable{ct, unknown})
	require.NoError(t, err)
	require.NotNil(t, bundle)

	assert.Same(t, ct.Node.(volumeNode).grid, bundle.Image, "shear-free image is used as is")
	assert.Nil(t, bundle.Dose)
	assert.Empty(t, bundle.Structures)
	assert.Equal(t, []string{"s0", "s1", "s2", "s3", "s4"}, bundle.ImageSliceUIDs)
	assert.Equal(t, "/tmp/out", bundle.OutputDirectory)
	assert.Empty(t, Reason(nil))
}

func TestExportMetadata(t *testing.T) {
	ct := ctExportable()
	ct.Tags[TagStudyDescription] = "No study description"
	ct.StudyInstanceUID = ""

	bundle, err := newTestExporter(Params{GenerateStudyUID: true}).Export([]Exportable{ct, doseExportable()})
	require.NoError(t, err)

	assert.Equal(t, "Doe^Jane", bundle.Study.PatientName)
	assert.Equal(t, "P001", bundle.Study.PatientID)
	assert.Empty(t, bundle.Study.StudyDescription)
	assert.True(t, strings.HasPrefix(bundle.Study.StudyInstanceUID, "2.25."))
	assert.LessOrEqual(t, len(bundle.Study.StudyInstanceUID), 64)

	assert.Empty(t, bundle.ImageSeries.Description)
	assert.Equal(t, "2", bundle.ImageSeries.Number)
	assert.Equal(t, "CT", bundle.ImageSeries.Modality)
	assert.Equal(t, "RTDOSE", bundle.DoseSeries.Modality)
	assert.Equal(t, "RTSTRUCT", bundle.StructureSeries.Modality)
	require.NotNil(t, bundle.Dose)
	assert.Equal(t, 1.5, bundle.Dose.At(2, 2, 1))

	bundle, err = newTestExporter(Params{}).Export([]Exportable{ct})
	require.NoError(t, err)
	assert.Empty(t, bundle.Study.StudyInstanceUID)
}

func TestExportNormalizesShearedImage(t *testing.T) {
	sheared := geometry.Identity()
	sheared[0][1] = 0.5
	ct := ctExportable()
	ct.Node = volumeNode{grid: filledVolume("CT", [6]int{0, 9, 0, 9, 0, 4}, sheared, 100)}

	bundle, err := newTestExporter(Params{}).Export([]Exportable{ct})
	require.NoError(t, err)

	assert.NotSame(t, ct.Node.(volumeNode).grid, bundle.Image)
	hasShear, err := geometry.ContainsShear(bundle.Image.IndexToWorld)
	require.NoError(t, err)
	assert.False(t, hasShear)
}

func TestExportConversionFailures(t *testing.T) {
	degenerate := ctExportable()
	degenerate.Node = volumeNode{grid: filledVolume("CT", [6]int{0, 3, 0, 3, 0, 3},
		geometry.ScaleTranslate([3]float64{1, 0, 1}, geometry.Vec3{}), 1)}

	notVolume := ctExportable()
	notVolume.Node = "pixels"

	failing := ctExportable()
	failing.Node = volumeNode{err: errors.New("unreadable")}

	empty := ctExportable()
	empty.Node = volumeNode{grid: &models.VolumeGrid{Name: "CT", Extent: [6]int{0, 1, 0, 1, 0, 1}}}

	badDose := doseExportable()
	badDose.Node = volumeNode{err: errors.New("truncated")}

	cases := []struct {
		name        string
		exportables []Exportable
		reason      string
	}{
		{"degenerate", []Exportable{degenerate}, "Failed to normalize geometry of anatomical image CT"},
		{"not a volume", []Exportable{notVolume}, "Failed to convert anatomical image CT to oriented image data"},
		{"source error", []Exportable{failing}, "Failed to convert anatomical image CT to oriented image data"},
		{"no samples", []Exportable{empty}, "Failed to convert anatomical image CT to oriented image data"},
		{"dose", []Exportable{ctExportable(), badDose}, "Failed to convert dose volume Dose to oriented image data"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newTestExporter(Params{}).Export(tc.exportables)
			exportErr := requireExportError(t, err, ErrConversion)
			assert.Equal(t, NormalizingGeometry, exportErr.State)
			assert.Equal(t, tc.reason, exportErr.Message)
		})
	}
}

func TestExportRoleConflicts(t *testing.T) {
	first := ctExportable()
	second := ctExportable()
	second.Name = "MR"
	second.Tags = map[string]string{TagModality: "MR"}
	second.Node = volumeNode{grid: filledVolume("MR", [6]int{0, 4, 0, 4, 0, 4}, geometry.Identity(), 7)}

	bundle, err := newTestExporter(Params{}).Export([]Exportable{first, second})
	require.NoError(t, err)
	assert.Equal(t, "MR", bundle.Image.Name, "the last image wins")

	_, err = newTestExporter(Params{StrictRoles: true}).Export([]Exportable{first, second})
	exportErr := requireExportError(t, err, ErrConfiguration)
	assert.Equal(t, CollectingRoles, exportErr.State)
	assert.Contains(t, exportErr.Message, "CT")
	assert.Contains(t, exportErr.Message, "MR")
}

func TestExportMaskResampledToImage(t *testing.T) {
	mask := filledVolume("bladder", [6]int{2, 5, 2, 5, 1, 3}, geometry.Identity(), 3)
	seg := &segmentationNode{
		name:   "seg",
		master: models.BinaryLabelmap,
		segments: []models.Segment{{
			ID:             "Segment_1",
			Name:           "Bladder",
			Color:          models.Color{R: 1},
			Representation: &models.LabelmapRepresentation{Mask: mask},
		}},
	}

	bundle, err := newTestExporter(Params{}).Export([]Exportable{ctExportable(), segExportable(seg)})
	require.NoError(t, err)
	require.Len(t, bundle.Structures, 1)

	st := bundle.Structures[0]
	assert.Equal(t, "Bladder", st.Name)
	require.True(t, st.IsMask())
	assert.Equal(t, bundle.Image.Extent, st.Mask.Extent)
	assert.True(t, st.Mask.IndexToWorld.Equal(bundle.Image.IndexToWorld, 1e-12))

	count := 0
	for _, s := range st.Mask.Data {
		assert.Contains(t, []float64{0, 1}, s)
		if s != 0 {
			count++
		}
	}
	assert.Equal(t, 4*4*3, count)
	assert.Equal(t, 1.0, st.Mask.At(2, 2, 1))
	assert.Equal(t, 0.0, st.Mask.At(1, 2, 1))
	assert.Equal(t, 3.0, mask.At(2, 2, 1), "source mask is left untouched")
}

func TestExportMaskWithParentTransform(t *testing.T) {
	mask := filledVolume("node", [6]int{0, 9, 0, 9, 0, 4}, geometry.Identity(), 0)
	mask.Set(4, 4, 2, 1)
	seg := &segmentationNode{
		name:   "seg",
		master: models.BinaryLabelmap,
		parent: geometry.AffineTransform{Matrix: geometry.ScaleTranslate([3]float64{1, 1, 1}, geometry.Vec3{X: 2, Y: 1})},
		segments: []models.Segment{{
			Name:           "Node",
			Representation: &models.LabelmapRepresentation{Mask: mask},
		}},
	}

	bundle, err := newTestExporter(Params{}).Export([]Exportable{ctExportable(), segExportable(seg)})
	require.NoError(t, err)
	st := bundle.Structures[0]
	assert.Equal(t, 1.0, st.Mask.At(6, 5, 2))
	assert.Equal(t, 0.0, st.Mask.At(4, 4, 2))

	seg.parent = geometry.TransformFunc(func(p geometry.Vec3) geometry.Vec3 { return p.Scale(p.Norm()) })
	_, err = newTestExporter(Params{}).Export([]Exportable{ctExportable(), segExportable(seg)})
	exportErr := requireExportError(t, err, ErrConversion)
	assert.Equal(t, "Failed to apply parent transformation to exported segment Node", exportErr.Message)
}

func TestExportMaskResampleFailure(t *testing.T) {
	// Collapsed first axis: the mask cannot be mapped back to its own indices
	mask := filledVolume("rectum", [6]int{0, 3, 0, 3, 0, 3}, geometry.ScaleTranslate([3]float64{0, 1, 1}, geometry.Vec3{}), 1)
	seg := &segmentationNode{
		name:   "seg",
		master: models.BinaryLabelmap,
		segments: []models.Segment{{
			Name:           "Rectum",
			Representation: &models.LabelmapRepresentation{Mask: mask},
		}},
	}

	bundle, err := newTestExporter(Params{}).Export([]Exportable{ctExportable(), segExportable(seg)})
	assert.Nil(t, bundle)
	exportErr := requireExportError(t, err, ErrGeometryMismatch)
	assert.Equal(t, ProcessingStructures, exportErr.State)
	assert.Contains(t, exportErr.Message, "Rectum")
	assert.ErrorIs(t, err, geometry.ErrDegenerateTransform)
}

func TestExportSurfaceContours(t *testing.T) {
	seg := &segmentationNode{
		name:   "seg",
		master: models.ClosedSurface,
		segments: []models.Segment{
			{
				Name:           "PTV",
				Color:          models.Color{G: 1},
				Representation: &models.ClosedSurfaceRepresentation{Mesh: boxMesh(geometry.Vec3{X: 2, Y: 2, Z: 0.5}, geometry.Vec3{X: 6, Y: 6, Z: 2.5})},
			},
			{
				Name:           "Outside",
				Representation: &models.ClosedSurfaceRepresentation{Mesh: boxMesh(geometry.Vec3{Z: 20}, geometry.Vec3{X: 1, Y: 1, Z: 21})},
			},
		},
	}
	params := Params{WeldTolerance: 1e-6}

	bundle, err := newTestExporter(params).Export([]Exportable{ctExportable(), segExportable(seg)})
	require.NoError(t, err)
	require.Len(t, bundle.Structures, 2)
	for _, st := range bundle.Structures {
		require.NotNil(t, st.WorldMesh, "structure %s", st.Name)
		assert.Len(t, st.WorldMesh.Points, 8, "welded box of %s", st.Name)
	}

	ptv := bundle.Structures[0]
	assert.Equal(t, "PTV", ptv.Name)
	assert.False(t, ptv.IsMask())
	require.Len(t, ptv.Slices, 2)
	assert.Equal(t, 1, ptv.Slices[0].SliceIndex)
	assert.Equal(t, "s1", ptv.Slices[0].SliceInstanceUID)
	assert.Equal(t, 2, ptv.Slices[1].SliceIndex)
	assert.Equal(t, "s2", ptv.Slices[1].SliceInstanceUID)
	for _, sc := range ptv.Slices {
		require.Len(t, sc.Contours, 1)
		assert.True(t, sc.Contours[0].Closed)
	}

	assert.Equal(t, "Outside", bundle.Structures[1].Name)
	assert.Empty(t, bundle.Structures[1].Slices)
}

func TestRunFailedStructureWritesNothing(t *testing.T) {
	seg := &segmentationNode{
		name:   "seg",
		master: models.ClosedSurface,
		segments: []models.Segment{
			{Name: "A", Representation: &models.ClosedSurfaceRepresentation{Mesh: boxMesh(geometry.Vec3{X: 2, Y: 2, Z: 0.5}, geometry.Vec3{X: 6, Y: 6, Z: 2.5})}},
			{Name: "B"},
		},
	}

	written := false
	writer := WriterFunc(func(*models.ExportBundle) error {
		written = true
		return nil
	})

	err := newTestExporter(Params{}).Run([]Exportable{ctExportable(), segExportable(seg)}, writer)
	exportErr := requireExportError(t, err, ErrRepresentation)
	assert.Equal(t, ProcessingStructures, exportErr.State)
	assert.Equal(t, "Failed to get closed surface representation from segment B", Reason(err))
	assert.False(t, written, "a failed export must not reach the writer")
}

func TestExportStructureFailures(t *testing.T) {
	surfaceSeg := func(rep models.Representation) *segmentationNode {
		return &segmentationNode{
			name:     "seg",
			master:   models.ClosedSurface,
			segments: []models.Segment{{Name: "Lung", Representation: rep}},
		}
	}
	labelSeg := &segmentationNode{
		name:     "seg",
		master:   models.BinaryLabelmap,
		segments: []models.Segment{{Name: "Lung", Representation: &models.ClosedSurfaceRepresentation{Mesh: boxMesh(geometry.Vec3{}, geometry.Vec3{X: 1, Y: 1, Z: 1})}}},
	}
	duplicate := surfaceSeg(&models.ClosedSurfaceRepresentation{Mesh: boxMesh(geometry.Vec3{}, geometry.Vec3{X: 1, Y: 1, Z: 1})})
	duplicate.segments = append(duplicate.segments, duplicate.segments[0])

	cases := []struct {
		name   string
		node   any
		kind   error
		reason string
	}{
		{"unsupported master", &segmentationNode{name: "seg", master: models.PlanarContour}, ErrRepresentation,
			"Structure set contains unsupported master representation"},
		{"missing surface", surfaceSeg(nil), ErrRepresentation,
			"Failed to get closed surface representation from segment Lung"},
		{"missing labelmap", labelSeg, ErrRepresentation,
			"Failed to get binary labelmap representation from segment Lung"},
		{"duplicate name", duplicate, ErrConfiguration, "Duplicate structure name Lung"},
		{"not a segmentation", "contours", ErrConfiguration,
			"Failed to get segmentation from exported item Structures"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seg := Exportable{Name: "Structures", Tags: map[string]string{TagModality: "RTSTRUCT"}, Node: tc.node}
			_, err := newTestExporter(Params{}).Export([]Exportable{ctExportable(), seg})
			exportErr := requireExportError(t, err, tc.kind)
			assert.Equal(t, ProcessingStructures, exportErr.State)
			assert.Equal(t, tc.reason, exportErr.Message)
		})
	}
}

func TestClassifyByModality(t *testing.T) {
	cases := map[string]Role{
		"":         Unrecognized,
		"CT":       Image,
		"mr":       Image,
		"PT":       Image,
		"RTDOSE":   Dose,
		"RTSTRUCT": Segmentation,
		"SEG":      Segmentation,
	}
	for modality, want := range cases {
		e := Exportable{Tags: map[string]string{TagModality: modality}}
		assert.Equal(t, want, ClassifyByModality(e), "modality %q", modality)
	}
	assert.Equal(t, Unrecognized, ClassifyByModality(Exportable{}))
}

func TestCustomClassifier(t *testing.T) {
	ct := ctExportable()
	ct.Tags = nil
	classify := func(e Exportable) Role {
		if _, ok := e.Node.(VolumeSource); ok {
			return Image
		}
		return Unrecognized
	}

	bundle, err := newTestExporter(Params{Classifier: classify}).Export([]Exportable{ct})
	require.NoError(t, err)
	assert.NotNil(t, bundle.Image)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ProcessingStructures", ProcessingStructures.String())
	assert.Equal(t, "Failed", Failed.String())
	assert.Equal(t, "segmentation", Segmentation.String())
}
