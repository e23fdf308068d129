package manifest

import (
	"fmt"

	"rtstudyexport/internal/models"
	"rtstudyexport/pkg/export"
	"rtstudyexport/pkg/geometry"
	"rtstudyexport/pkg/stl"
	"rtstudyexport/pkg/surface"
)

// stlWeldTolerance merges the repeated corners of STL facets. Shared corners are
// bit-identical in well-formed files, so the tolerance only absorbs rounding.
const stlWeldTolerance = 1e-6

// volumeNode reads its raw file when the exporter asks for the volume
type volumeNode struct {
	name   string
	path   string
	volume *Volume
}

// VolumeGrid implements export.VolumeSource
func (n *volumeNode) VolumeGrid() (*models.VolumeGrid, error) {
	return n.volume.load(n.name, n.path)
}

// segmentationNode holds segments loaded from the manifest
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

// Exportables converts the manifest items, in order, to exportables. Study tags are
// shared by every item; item tags take precedence. outputDir overrides the manifest's
// output directory when not empty. Surfaces and masks are read here; image and dose
// volumes are read during the export.
func (m *Manifest) Exportables(outputDir string) ([]export.Exportable, error) {
	if outputDir == "" {
		outputDir = m.resolve(m.OutputDirectory)
	}

	exportables := make([]export.Exportable, 0, len(m.Items))
	for _, item := range m.Items {
		tags := make(map[string]string, len(m.Study.Tags)+len(item.Tags))
		for k, v := range m.Study.Tags {
			tags[k] = v
		}
		for k, v := range item.Tags {
			tags[k] = v
		}

		e := export.Exportable{
			Name:              item.Name,
			Tags:              tags,
			Directory:         outputDir,
			StudyInstanceUID:  m.Study.InstanceUID,
			StudyID:           m.Study.ID,
			SliceInstanceUIDs: item.SliceInstanceUIDs,
		}

		if item.Volume != nil {
			e.Node = &volumeNode{name: item.Name, path: m.resolve(item.Volume.File), volume: item.Volume}
		} else {
			node, err := m.segmentation(item.Name, item.Segmentation)
			if err != nil {
				return nil, fmt.Errorf("item %s: %w", item.Name, err)
			}
			e.Node = node
		}
		exportables = append(exportables, e)
	}
	return exportables, nil
}

func (m *Manifest) segmentation(name string, s *Segmentation) (*segmentationNode, error) {
	master, err := parseRepresentation(s.Master)
	if err != nil {
		return nil, err
	}
	node := &segmentationNode{name: name, master: master}

	if len(s.ParentTransform) > 0 {
		parent, err := matrix(s.ParentTransform)
		if err != nil {
			return nil, fmt.Errorf("parent transform: %w", err)
		}
		node.parent = geometry.AffineTransform{Matrix: parent}
	}

	for i, entry := range s.Segments {
		seg := models.Segment{
			ID:    entry.ID,
			Name:  entry.Name,
			Color: models.Color{R: entry.Color[0], G: entry.Color[1], B: entry.Color[2]},
		}
		if seg.ID == "" {
			seg.ID = fmt.Sprintf("Segment_%d", i+1)
		}

		// Segments without data keep a nil representation; the exporter reports them
		switch {
		case entry.Surface != "":
			triangles, err := stl.LoadSTL(m.resolve(entry.Surface))
			if err != nil {
				return nil, fmt.Errorf("segment %s: %w", entry.Name, err)
			}
			mesh := surface.Weld(stl.MeshFromTriangles(triangles), stlWeldTolerance)
			seg.Representation = &models.ClosedSurfaceRepresentation{Mesh: mesh}
		case entry.Mask != nil:
			mask, err := entry.Mask.load(seg.ID, m.resolve(entry.Mask.File))
			if err != nil {
				return nil, fmt.Errorf("segment %s: %w", entry.Name, err)
			}
			seg.Representation = &models.LabelmapRepresentation{Mask: mask}
		}
		node.segments = append(node.segments, seg)
	}
	return node, nil
}
