package export

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"rtstudyexport/internal/models"
	"rtstudyexport/pkg/geometry"
	"rtstudyexport/pkg/normalize"
	"rtstudyexport/pkg/surface"
)

var errNonAffine = errors.New("parent transform is not affine")

func (r *run) processStructures() error {
	if r.segmentation == nil {
		r.log.Info("No segmentation to export")
		return nil
	}

	source, ok := r.segmentation.Node.(SegmentationSource)
	if !ok {
		return r.fail(ErrConfiguration,
			fmt.Sprintf("Failed to get segmentation from exported item %s", r.segmentation.Name),
			fmt.Errorf("node of type %T is not a segmentation", r.segmentation.Node))
	}

	master := source.MasterRepresentation()
	var build func(name string, seg models.Segment, parent geometry.Transform) (models.Structure, error)
	switch master {
	case models.BinaryLabelmap:
		build = r.maskStructure
	case models.ClosedSurface:
		build = r.contourStructure
	default:
		return r.fail(ErrRepresentation, "Structure set contains unsupported master representation",
			fmt.Errorf("segmentation %s uses %s", source.Name(), master))
	}

	segments := source.Segments()
	parent := source.ParentTransform()
	seen := make(map[string]bool, len(segments))
	for _, seg := range segments {
		name := seg.Name
		if name == "" {
			name = seg.ID
		}
		if seen[name] {
			return r.fail(ErrConfiguration, fmt.Sprintf("Duplicate structure name %s", name), nil)
		}
		seen[name] = true

		structure, err := build(name, seg, parent)
		if err != nil {
			return err
		}
		r.structures = append(r.structures, structure)
	}

	r.log.WithFields(logrus.Fields{
		"segmentation":   source.Name(),
		"representation": master,
		"structures":     len(r.structures),
	}).Info("Processed structures")
	return nil
}

// maskStructure brings the labelmap of seg onto the reference image grid
func (r *run) maskStructure(name string, seg models.Segment, parent geometry.Transform) (models.Structure, error) {
	rep, ok := seg.Representation.(*models.LabelmapRepresentation)
	if !ok || rep.Mask.Empty() {
		return models.Structure{}, r.fail(ErrRepresentation,
			fmt.Sprintf("Failed to get binary labelmap representation from segment %s", name), nil)
	}

	toWorld, ok := geometry.AsAffine(parent)
	if !ok {
		return models.Structure{}, r.fail(ErrConversion,
			fmt.Sprintf("Failed to apply parent transformation to exported segment %s", name), errNonAffine)
	}
	// Samples are shared with the source; only the geometry changes
	mask := *rep.Mask
	mask.IndexToWorld = toWorld.Mul(rep.Mask.IndexToWorld)

	aligned := &mask
	if !normalize.GeometriesMatch(aligned, r.imageGrid) || !normalize.ExtentsMatch(aligned, r.imageGrid) {
		r.log.WithField("structure", name).Debug("Resampling mask onto reference image grid")
		resampled, err := normalize.ResampleToReference(aligned, r.imageGrid, normalize.Nearest)
		if err != nil {
			return models.Structure{}, r.fail(ErrGeometryMismatch,
				fmt.Sprintf("Failed to resample segment %s to match anatomical image geometry", name), err)
		}
		aligned = resampled
	}

	return models.Structure{
		Name:  name,
		Color: seg.Color,
		Mask:  binarize(aligned, name),
	}, nil
}

// contourStructure slices the world-space surface of seg along the reference image
func (r *run) contourStructure(name string, seg models.Segment, parent geometry.Transform) (models.Structure, error) {
	rep, ok := seg.Representation.(*models.ClosedSurfaceRepresentation)
	if !ok || rep.Mesh == nil {
		return models.Structure{}, r.fail(ErrRepresentation,
			fmt.Sprintf("Failed to get closed surface representation from segment %s", name), nil)
	}

	mesh := surface.ToWorld(rep.Mesh, parent)
	if r.params.WeldTolerance > 0 {
		mesh = surface.Weld(mesh, r.params.WeldTolerance)
	}

	slices, err := r.extractor.Extract(mesh, r.imageGrid, r.image.SliceInstanceUIDs)
	if err != nil {
		return models.Structure{}, r.fail(ErrConversion,
			fmt.Sprintf("Failed to extract contours of segment %s", name), err)
	}
	if len(slices) == 0 {
		r.log.WithField("structure", name).Warn("Structure does not intersect the reference image")
	}

	return models.Structure{
		Name:      name,
		Color:     seg.Color,
		Slices:    slices,
		WorldMesh: mesh,
	}, nil
}

// binarize returns a copy of v holding 1 where v is non-zero and 0 elsewhere
func binarize(v *models.VolumeGrid, name string) *models.VolumeGrid {
	out := models.NewVolumeGrid(name, v.Extent, v.IndexToWorld)
	for i, s := range v.Data {
		if s != 0 {
			out.Data[i] = 1
		}
	}
	return out
}
