package models

import "rtstudyexport/pkg/geometry"

// ClosedSurfaceMesh is a polygonal surface, ideally a closed 2-manifold, describing
// the boundary of a segmented structure
type ClosedSurfaceMesh struct {
	// Points are the mesh vertices
	Points []geometry.Vec3

	// Polys lists each face as indices into Points
	Polys [][]int
}

// Empty reports whether the mesh has no points or no faces
func (m *ClosedSurfaceMesh) Empty() bool {
	return m == nil || len(m.Points) == 0 || len(m.Polys) == 0
}

// Bounds returns the axis-aligned bounding box of the mesh points
func (m *ClosedSurfaceMesh) Bounds() (geometry.Box, bool) {
	if m == nil {
		return geometry.Box{}, false
	}
	return geometry.BoundsOf(m.Points)
}

// TriangleCount returns the number of triangles after fan triangulation of every face
func (m *ClosedSurfaceMesh) TriangleCount() int {
	n := 0
	for _, p := range m.Polys {
		if len(p) >= 3 {
			n += len(p) - 2
		}
	}
	return n
}

// Clone returns a deep copy of the mesh
func (m *ClosedSurfaceMesh) Clone() *ClosedSurfaceMesh {
	out := &ClosedSurfaceMesh{
		Points: append([]geometry.Vec3(nil), m.Points...),
		Polys:  make([][]int, len(m.Polys)),
	}
	for i, p := range m.Polys {
		out.Polys[i] = append([]int(nil), p...)
	}
	return out
}
