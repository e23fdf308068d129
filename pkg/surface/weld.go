package surface

import (
	"gonum.org/v1/gonum/spatial/kdtree"

	"rtstudyexport/internal/models"
	"rtstudyexport/pkg/geometry"
)

// Weld merges points closer than tol into one vertex, remaps the faces and drops faces
// that collapse to fewer than three distinct vertices. STL files store every triangle
// with its own copy of each corner; without welding the slicer cannot stitch segments
// from neighbouring triangles into one contour.
func Weld(mesh *models.ClosedSurfaceMesh, tol float64) *models.ClosedSurfaceMesh {
	if mesh.Empty() {
		return &models.ClosedSurfaceMesh{}
	}

	points := make(weldPoints, len(mesh.Points))
	for i, p := range mesh.Points {
		points[i] = weldPoint{Vec3: p, index: i}
	}
	// kdtree.New reorders its input, so build on a copy
	tree := kdtree.New(append(weldPoints(nil), points...), true)

	remap := make([]int, len(points))
	for i := range remap {
		remap[i] = -1
	}

	out := &models.ClosedSurfaceMesh{}
	for _, p := range points {
		if remap[p.index] >= 0 {
			continue
		}
		target := len(out.Points)
		out.Points = append(out.Points, p.Vec3)
		remap[p.index] = target

		keeper := kdtree.NewDistKeeper(tol * tol)
		tree.NearestSet(keeper, p)
		for _, found := range keeper.Heap {
			// The keeper is seeded with a sentinel that carries no point
			if found.Comparable == nil {
				continue
			}
			q := found.Comparable.(weldPoint)
			if remap[q.index] < 0 {
				remap[q.index] = target
			}
		}
	}

	for _, poly := range mesh.Polys {
		face := make([]int, 0, len(poly))
		for _, idx := range poly {
			if idx < 0 || idx >= len(remap) {
				face = nil
				break
			}
			v := remap[idx]
			if len(face) > 0 && face[len(face)-1] == v {
				continue
			}
			face = append(face, v)
		}
		if len(face) > 1 && face[0] == face[len(face)-1] {
			face = face[:len(face)-1]
		}
		if len(face) >= 3 && distinct(face) >= 3 {
			out.Polys = append(out.Polys, face)
		}
	}
	return out
}

func distinct(face []int) int {
	seen := make(map[int]struct{}, len(face))
	for _, v := range face {
		seen[v] = struct{}{}
	}
	return len(seen)
}

// weldPoint is a mesh vertex that remembers its original index
type weldPoint struct {
	geometry.Vec3
	index int
}

// Compare implements the kdtree.Comparable interface
func (p weldPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(weldPoint)
	return p.Component(int(d)) - q.Component(int(d))
}

// Dims returns the number of dimensions for the KD-tree
func (p weldPoint) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two points
func (p weldPoint) Distance(c kdtree.Comparable) float64 {
	d := p.Sub(c.(weldPoint).Vec3)
	return d.Dot(d)
}

// weldPoints is a collection of weldPoint that satisfies kdtree.Interface
type weldPoints []weldPoint

func (p weldPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p weldPoints) Len() int                              { return len(p) }
func (p weldPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p weldPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(weldPlane{weldPoints: p, Dim: d}, kdtree.MedianOfMedians(weldPlane{weldPoints: p, Dim: d}))
}

// weldPlane implements sort.Interface and kdtree.SortSlicer for weldPoints
type weldPlane struct {
	weldPoints
	kdtree.Dim
}

func (p weldPlane) Less(i, j int) bool {
	return p.weldPoints[i].Component(int(p.Dim)) < p.weldPoints[j].Component(int(p.Dim))
}

func (p weldPlane) Slice(start, end int) kdtree.SortSlicer {
	return weldPlane{weldPoints: p.weldPoints[start:end], Dim: p.Dim}
}

func (p weldPlane) Swap(i, j int) {
	p.weldPoints[i], p.weldPoints[j] = p.weldPoints[j], p.weldPoints[i]
}
