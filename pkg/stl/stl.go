// Package stl reads and writes STL triangle meshes and converts them to and from
// closed surface meshes.
package stl

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	hstl "github.com/hschendel/stl"

	"rtstudyexport/internal/models"
	"rtstudyexport/pkg/geometry"
)

// ErrInvalidSTL is returned for data that is neither binary nor ASCII STL
var ErrInvalidSTL = errors.New("invalid STL data")

// Triangle is one STL facet: a normal, three vertices and the binary attribute word
type Triangle = hstl.Triangle

// Vec3 is a single precision STL vector
type Vec3 = hstl.Vec3

const worldMeshName = "rtexport world-space surface"

// ReadSTL parses binary or ASCII STL data
func ReadSTL(r io.ReadSeeker) ([]Triangle, error) {
	solid, err := hstl.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSTL, err)
	}
	return solid.Triangles, nil
}

// LoadSTL reads the STL file at path
func LoadSTL(path string) ([]Triangle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open STL file: %w", err)
	}
	defer f.Close()

	triangles, err := ReadSTL(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return triangles, nil
}

// WriteSTL writes triangles as binary STL
func WriteSTL(w io.Writer, triangles []Triangle) error {
	return newSolid(triangles).WriteAll(w)
}

// SaveToSTL writes triangles to a binary STL file at path, creating parent directories
func SaveToSTL(path string, triangles []Triangle) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create STL directory: %w", err)
	}
	if err := newSolid(triangles).WriteFile(path); err != nil {
		return fmt.Errorf("failed to write STL file: %w", err)
	}
	return nil
}

func newSolid(triangles []Triangle) *hstl.Solid {
	return &hstl.Solid{
		Name:      worldMeshName,
		Triangles: triangles,
	}
}

// MeshFromTriangles builds a mesh with three fresh points per triangle. STL carries no
// connectivity, so the result should be welded before it is sliced.
func MeshFromTriangles(triangles []Triangle) *models.ClosedSurfaceMesh {
	mesh := &models.ClosedSurfaceMesh{
		Points: make([]geometry.Vec3, 0, 3*len(triangles)),
		Polys:  make([][]int, 0, len(triangles)),
	}
	for _, t := range triangles {
		base := len(mesh.Points)
		for _, v := range t.Vertices {
			mesh.Points = append(mesh.Points, geometry.Vec3{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])})
		}
		mesh.Polys = append(mesh.Polys, []int{base, base + 1, base + 2})
	}
	return mesh
}

// TrianglesFromMesh fan-triangulates every face of mesh and computes facet normals
func TrianglesFromMesh(mesh *models.ClosedSurfaceMesh) []Triangle {
	if mesh.Empty() {
		return nil
	}
	triangles := make([]Triangle, 0, mesh.TriangleCount())
	for _, poly := range mesh.Polys {
		for i := 1; i+1 < len(poly); i++ {
			a, b, c := mesh.Points[poly[0]], mesh.Points[poly[i]], mesh.Points[poly[i+1]]
			n := b.Sub(a).Cross(c.Sub(a)).Normalize()
			triangles = append(triangles, Triangle{
				Normal:   vec32(n),
				Vertices: [3]Vec3{vec32(a), vec32(b), vec32(c)},
			})
		}
	}
	return triangles
}

func vec32(v geometry.Vec3) Vec3 {
	return Vec3{float32(v.X), float32(v.Y), float32(v.Z)}
}
