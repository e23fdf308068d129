package models

import "rtstudyexport/pkg/geometry"

// Color is an RGB display color with components in [0,1]
type Color struct {
	R, G, B float64
}

// Contour is one polyline of a structure on one slice, in world coordinates
type Contour struct {
	Points []geometry.Vec3

	// Closed is false only for chains that end at a hole in the surface
	Closed bool
}

// SliceContours groups the contours of a structure on one reference image slice
type SliceContours struct {
	// SliceIndex is the slice number relative to the first slice of the reference image
	SliceIndex int

	// SliceInstanceUID identifies the reference image slice; empty when unknown
	SliceInstanceUID string

	Contours []Contour
}

// Structure is one exported segment: either a binary mask aligned to the reference
// image or a sparse, slice-ordered set of planar contours
type Structure struct {
	// Name is unique within an export
	Name  string
	Color Color

	// Mask is set for labelmap-based structures, on the reference image grid
	Mask *VolumeGrid

	// Slices is set for surface-based structures, ordered by SliceIndex
	Slices []SliceContours

	// WorldMesh is the world-space surface the slices were cut from
	WorldMesh *ClosedSurfaceMesh
}

// IsMask reports whether the structure carries a voxel mask rather than contours
func (s *Structure) IsMask() bool {
	return s.Mask != nil
}

// ContourCount returns the total number of contours across all slices
func (s *Structure) ContourCount() int {
	n := 0
	for _, sc := range s.Slices {
		n += len(sc.Contours)
	}
	return n
}
