// Package surface prepares closed surface meshes for slicing: it maps them into world
// space and welds coincident vertices so neighbouring faces share edges.
package surface

import (
	"rtstudyexport/internal/models"
	"rtstudyexport/pkg/geometry"
)

// ToWorld returns a new mesh with every point mapped through t. A nil t is the identity.
// Faces are copied unchanged; the input mesh is never modified.
func ToWorld(mesh *models.ClosedSurfaceMesh, t geometry.Transform) *models.ClosedSurfaceMesh {
	if mesh == nil {
		return &models.ClosedSurfaceMesh{}
	}

	out := mesh.Clone()
	if t == nil {
		return out
	}
	for i, p := range out.Points {
		out.Points[i] = t.TransformPoint(p)
	}
	return out
}
