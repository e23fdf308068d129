package normalize

import (
	"math"

	"rtstudyexport/internal/models"
	"rtstudyexport/pkg/geometry"
)

// boundaryTolerance lets points that land on the outermost voxel centres, up to
// rounding, sample the volume instead of the padding value
const boundaryTolerance = 1e-6

type sampler struct {
	v       *models.VolumeGrid
	interp  Interpolation
	padding float64
}

func newSampler(v *models.VolumeGrid, interp Interpolation) *sampler {
	s := &sampler{v: v, interp: interp}
	if interp == Linear {
		// Pad intensities with the darkest value (air for CT, zero for dose)
		s.padding, _ = v.Range()
	}
	return s
}

func (s *sampler) sample(p geometry.Vec3) float64 {
	if s.interp == Nearest {
		return s.nearest(p)
	}
	return s.linear(p)
}

func (s *sampler) nearest(p geometry.Vec3) float64 {
	i := int(math.Floor(p.X + 0.5))
	j := int(math.Floor(p.Y + 0.5))
	k := int(math.Floor(p.Z + 0.5))
	if !s.v.Contains(i, j, k) {
		return s.padding
	}
	return s.v.At(i, j, k)
}

func (s *sampler) linear(p geometry.Vec3) float64 {
	e := s.v.Extent
	coords := [3]float64{p.X, p.Y, p.Z}

	var base [3]int
	var frac [3]float64
	for axis := 0; axis < 3; axis++ {
		lo, hi := float64(e[2*axis]), float64(e[2*axis+1])
		c := coords[axis]
		if c < lo-boundaryTolerance || c > hi+boundaryTolerance {
			return s.padding
		}
		c = math.Max(lo, math.Min(hi, c))
		b := int(math.Floor(c))
		if b >= e[2*axis+1] {
			// Single-sample axes and the upper boundary interpolate from the last sample
			b = e[2*axis+1]
		}
		base[axis] = b
		frac[axis] = c - float64(b)
	}

	var value float64
	for corner := 0; corner < 8; corner++ {
		w := 1.0
		var idx [3]int
		for axis := 0; axis < 3; axis++ {
			idx[axis] = base[axis]
			if corner>>axis&1 == 1 {
				if frac[axis] == 0 {
					w = 0
					break
				}
				idx[axis]++
				w *= frac[axis]
			} else {
				w *= 1 - frac[axis]
			}
		}
		if w == 0 {
			continue
		}
		value += w * s.v.At(idx[0], idx[1], idx[2])
	}
	return value
}
