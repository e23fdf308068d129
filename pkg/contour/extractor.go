package contour

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"rtstudyexport/internal/models"
	"rtstudyexport/pkg/geometry"
)

// ErrMalformedMesh is returned for faces referencing points that do not exist
var ErrMalformedMesh = errors.New("malformed surface mesh")

// Extractor produces per-slice contours of world-space surfaces on a reference image
type Extractor struct {
	log logrus.FieldLogger
}

// NewExtractor creates an extractor logging through log
func NewExtractor(log logrus.FieldLogger) *Extractor {
	return &Extractor{log: log}
}

// Extract cuts mesh with the plane of every reference slice the mesh can reach.
//
// The slicing normal is the reference image's through-plane (third) index axis. A slice
// is cut only when its plane offset along the normal lies within the closed range spanned
// by the mesh bounding box; a plane exactly touching the box is still cut. Slices that
// yield no contour are left out, so the result is sparse and ordered by SliceIndex,
// which is relative to the first slice of the reference extent.
//
// sliceUIDs is indexed by relative slice index; missing entries leave the UID empty.
func (e *Extractor) Extract(mesh *models.ClosedSurfaceMesh, ref *models.VolumeGrid, sliceUIDs []string) ([]models.SliceContours, error) {
	if ref == nil || ref.Empty() {
		return nil, fmt.Errorf("reference image has no samples")
	}
	if mesh.Empty() {
		return nil, nil
	}
	if err := validate(mesh); err != nil {
		return nil, err
	}

	normal := ref.IndexToWorld.Column(2).Normalize()
	if normal.Norm() == 0 {
		return nil, fmt.Errorf("reference slice axis: %w", geometry.ErrDegenerateTransform)
	}

	box, _ := mesh.Bounds()
	lo, hi := box.Project(normal)

	var result []models.SliceContours
	first, last := ref.Extent[4], ref.Extent[5]
	for k := first; k <= last; k++ {
		origin := ref.WorldPosition(0, 0, float64(k))
		offset := origin.Dot(normal)
		if offset < lo || offset > hi {
			// No contours outside the surface bounds
			continue
		}

		contours := Cut(mesh, Plane{Origin: origin, Normal: normal})
		if len(contours) == 0 {
			continue
		}

		sliceIndex := k - first
		uid := ""
		if sliceIndex < len(sliceUIDs) {
			uid = sliceUIDs[sliceIndex]
		} else {
			e.log.WithField("slice", sliceIndex).Warn("No instance UID for reference slice")
		}

		e.log.WithFields(logrus.Fields{
			"slice":    sliceIndex,
			"contours": len(contours),
		}).Debug("Extracted slice contours")

		result = append(result, models.SliceContours{
			SliceIndex:       sliceIndex,
			SliceInstanceUID: uid,
			Contours:         contours,
		})
	}
	return result, nil
}

func validate(mesh *models.ClosedSurfaceMesh) error {
	for f, poly := range mesh.Polys {
		for _, idx := range poly {
			if idx < 0 || idx >= len(mesh.Points) {
				return fmt.Errorf("%w: face %d references point %d of %d", ErrMalformedMesh, f, idx, len(mesh.Points))
			}
		}
	}
	return nil
}
