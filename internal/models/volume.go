package models

import (
	"math"

	"rtstudyexport/pkg/geometry"
)

// VolumeGrid is a 3D sampled volume (anatomical image, dose or binary mask)
// with an affine index-to-world transform
type VolumeGrid struct {
	// Name is the source node name, used in log and error messages
	Name string

	// Data holds the samples as a 1D array in row-major order:
	// (i,j,k) is stored at (k-kmin)*nx*ny + (j-jmin)*nx + (i-imin)
	Data []float64

	// Extent is the inclusive index range per axis: imin, imax, jmin, jmax, kmin, kmax
	Extent [6]int

	// IndexToWorld maps (i,j,k) index coordinates, extent offsets included, to world coordinates
	IndexToWorld geometry.Matrix4
}

// NewVolumeGrid allocates a zero-filled grid covering extent
func NewVolumeGrid(name string, extent [6]int, indexToWorld geometry.Matrix4) *VolumeGrid {
	v := &VolumeGrid{
		Name:         name,
		Extent:       extent,
		IndexToWorld: indexToWorld,
	}
	if n := v.expectedLen(); n > 0 {
		v.Data = make([]float64, n)
	}
	return v
}

// Dims returns the number of samples along each axis
func (v *VolumeGrid) Dims() (nx, ny, nz int) {
	return v.Extent[1] - v.Extent[0] + 1, v.Extent[3] - v.Extent[2] + 1, v.Extent[5] - v.Extent[4] + 1
}

func (v *VolumeGrid) expectedLen() int {
	nx, ny, nz := v.Dims()
	if nx <= 0 || ny <= 0 || nz <= 0 {
		return 0
	}
	return nx * ny * nz
}

// Empty reports whether the grid has no samples or its data does not cover the extent
func (v *VolumeGrid) Empty() bool {
	if v == nil {
		return true
	}
	n := v.expectedLen()
	return n == 0 || len(v.Data) != n
}

// Contains reports whether index (i,j,k) lies inside the extent
func (v *VolumeGrid) Contains(i, j, k int) bool {
	return i >= v.Extent[0] && i <= v.Extent[1] &&
		j >= v.Extent[2] && j <= v.Extent[3] &&
		k >= v.Extent[4] && k <= v.Extent[5]
}

// Index returns the offset of (i,j,k) in Data
func (v *VolumeGrid) Index(i, j, k int) int {
	nx, ny, _ := v.Dims()
	return (k-v.Extent[4])*nx*ny + (j-v.Extent[2])*nx + (i - v.Extent[0])
}

// At returns the sample at (i,j,k)
func (v *VolumeGrid) At(i, j, k int) float64 {
	return v.Data[v.Index(i, j, k)]
}

// Set stores a sample at (i,j,k)
func (v *VolumeGrid) Set(i, j, k int, value float64) {
	v.Data[v.Index(i, j, k)] = value
}

// WorldPosition returns the world coordinates of continuous index (i,j,k)
func (v *VolumeGrid) WorldPosition(i, j, k float64) geometry.Vec3 {
	return v.IndexToWorld.Apply(geometry.Vec3{X: i, Y: j, Z: k})
}

// Spacing returns the world length of one step along each index axis
func (v *VolumeGrid) Spacing() [3]float64 {
	return [3]float64{
		v.IndexToWorld.Column(0).Norm(),
		v.IndexToWorld.Column(1).Norm(),
		v.IndexToWorld.Column(2).Norm(),
	}
}

// WorldBounds returns the world bounding box of the voxel centres at the extent corners
func (v *VolumeGrid) WorldBounds() geometry.Box {
	corners := make([]geometry.Vec3, 0, 8)
	for c := 0; c < 8; c++ {
		i := float64(v.Extent[c&1])
		j := float64(v.Extent[2+(c>>1)&1])
		k := float64(v.Extent[4+(c>>2)&1])
		corners = append(corners, v.WorldPosition(i, j, k))
	}
	box, _ := geometry.BoundsOf(corners)
	return box
}

// Range returns the minimum and maximum sample values
func (v *VolumeGrid) Range() (min, max float64) {
	if len(v.Data) == 0 {
		return 0, 0
	}
	min, max = math.Inf(1), math.Inf(-1)
	for _, s := range v.Data {
		min = math.Min(min, s)
		max = math.Max(max, s)
	}
	return min, max
}

// Clone returns a deep copy of the grid
func (v *VolumeGrid) Clone() *VolumeGrid {
	out := *v
	out.Data = append([]float64(nil), v.Data...)
	return &out
}
