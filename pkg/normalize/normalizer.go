// Package normalize brings oriented volumes into a shear-free geometry and resamples
// grids onto one another.
package normalize

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"rtstudyexport/internal/models"
	"rtstudyexport/pkg/geometry"
)

// Interpolation selects how samples are read between voxel centres
type Interpolation int

const (
	// Nearest keeps sample values intact; used for masks and labelmaps
	Nearest Interpolation = iota
	// Linear blends the eight surrounding samples; used for image and dose intensities
	Linear
)

// ErrEmptyVolume is returned for nil volumes or volumes whose data does not cover their extent
var ErrEmptyVolume = errors.New("volume has no samples")

// Normalizer replaces sheared index-to-world geometry with an equivalent axis-aligned grid
type Normalizer struct {
	log logrus.FieldLogger
}

// NewNormalizer creates a normalizer logging through log
func NewNormalizer(log logrus.FieldLogger) *Normalizer {
	return &Normalizer{log: log}
}

// Normalize returns v itself when its transform is free of shear. Otherwise it returns
// a resampled copy on an axis-aligned grid covering the same physical region, with a
// pure scale+translation transform. Degenerate transforms are reported as errors.
func (n *Normalizer) Normalize(v *models.VolumeGrid, interp Interpolation) (*models.VolumeGrid, error) {
	if v.Empty() {
		return nil, ErrEmptyVolume
	}

	decomposition, err := geometry.DecomposeShear(v.IndexToWorld)
	if err != nil {
		return nil, fmt.Errorf("failed to decompose index-to-world transform of %s: %w", v.Name, err)
	}
	if decomposition.MaxShear() <= geometry.ShearTolerance {
		return v, nil
	}

	n.log.WithFields(logrus.Fields{
		"volume": v.Name,
		"shear":  decomposition.MaxShear(),
	}).Info("Transform contains shear, resampling to axis-aligned grid")

	out, err := ResampleAxisAligned(v, worldAxisSpacing(v.IndexToWorld, decomposition.Spacing), interp)
	if err != nil {
		return nil, err
	}

	nx, ny, nz := out.Dims()
	n.log.WithField("volume", v.Name).Debugf("Resampled to %dx%dx%d voxels", nx, ny, nz)
	return out, nil
}

// axisPermutations lists every assignment of index axes to world axes
var axisPermutations = [6][3]int{
	{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
}

// worldAxisSpacing reorders the per-index-axis spacing so each world axis takes the
// spacing of the index axis pointing most nearly along it. Rotated or permuted volumes
// keep their resolution along every direction.
func worldAxisSpacing(m geometry.Matrix4, spacing [3]float64) [3]float64 {
	best, bestScore := axisPermutations[0], -1.0
	for _, perm := range axisPermutations {
		var score float64
		for world, index := range perm {
			// Direction cosine between world axis and index axis
			score += math.Abs(m[world][index]) / spacing[index]
		}
		if score > bestScore {
			best, bestScore = perm, score
		}
	}

	var out [3]float64
	for world, index := range best {
		out[world] = spacing[index]
	}
	return out
}

// ResampleAxisAligned samples v onto a grid whose axes follow the world axes with the
// given spacing. The grid spans the world bounding box of v's voxel centres and starts at index 0.
func ResampleAxisAligned(v *models.VolumeGrid, spacing [3]float64, interp Interpolation) (*models.VolumeGrid, error) {
	box := v.WorldBounds()

	var extent [6]int
	for axis := 0; axis < 3; axis++ {
		if spacing[axis] <= 0 {
			return nil, fmt.Errorf("%w: non-positive spacing on axis %d", geometry.ErrDegenerateTransform, axis)
		}
		size := (box.Max.Component(axis) - box.Min.Component(axis)) / spacing[axis]
		// Round up so the target covers the source; the tolerance avoids an extra
		// slice from floating point noise when the size is integral
		extent[2*axis+1] = int(math.Ceil(size - 1e-6))
	}

	target := models.NewVolumeGrid(v.Name, extent, geometry.ScaleTranslate(spacing, box.Min))
	if err := resampleInto(target, v, interp); err != nil {
		return nil, err
	}
	return target, nil
}

// ResampleToReference samples src onto the geometry and extent of ref. ref's samples are not read.
func ResampleToReference(src, ref *models.VolumeGrid, interp Interpolation) (*models.VolumeGrid, error) {
	if src.Empty() {
		return nil, ErrEmptyVolume
	}
	if _, err := ref.IndexToWorld.Inverse(); err != nil {
		return nil, fmt.Errorf("reference geometry: %w", err)
	}

	target := models.NewVolumeGrid(src.Name, ref.Extent, ref.IndexToWorld)
	if target.Empty() {
		return nil, fmt.Errorf("reference %s: %w", ref.Name, ErrEmptyVolume)
	}
	if err := resampleInto(target, src, interp); err != nil {
		return nil, err
	}
	return target, nil
}

// GeometriesMatch reports whether a and b share the same index-to-world transform
func GeometriesMatch(a, b *models.VolumeGrid) bool {
	return a.IndexToWorld.Equal(b.IndexToWorld, geometryTolerance)
}

// ExtentsMatch reports whether a and b cover the same index range
func ExtentsMatch(a, b *models.VolumeGrid) bool {
	return a.Extent == b.Extent
}

const geometryTolerance = 1e-6

// resampleInto fills every sample of target by reading src at the same world position
func resampleInto(target, src *models.VolumeGrid, interp Interpolation) error {
	worldToSrc, err := src.IndexToWorld.Inverse()
	if err != nil {
		return fmt.Errorf("source geometry of %s: %w", src.Name, err)
	}

	// Compose target index -> world -> source index once
	targetToSrc := worldToSrc.Mul(target.IndexToWorld)
	s := newSampler(src, interp)

	e := target.Extent
	for k := e[4]; k <= e[5]; k++ {
		for j := e[2]; j <= e[3]; j++ {
			for i := e[0]; i <= e[1]; i++ {
				p := targetToSrc.Apply(geometry.Vec3{X: float64(i), Y: float64(j), Z: float64(k)})
				target.Set(i, j, k, s.sample(p))
			}
		}
	}
	return nil
}
