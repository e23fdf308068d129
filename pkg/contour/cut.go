// Package contour intersects closed surface meshes with the slice planes of a reference
// image and stitches the intersection segments into ordered planar polylines.
package contour

import (
	"math"

	"rtstudyexport/internal/models"
	"rtstudyexport/pkg/geometry"
)

// planeEpsilon is the distance, in world units, below which a vertex is treated as lying
// on the cutting plane. Snapping avoids slivers and gaps where a surface vertex coincides
// with a slice position.
const planeEpsilon = 1e-6

// Plane is a cutting plane through Origin with unit Normal
type Plane struct {
	Origin geometry.Vec3
	Normal geometry.Vec3
}

// Distance returns the signed distance of p from the plane
func (pl Plane) Distance(p geometry.Vec3) float64 {
	return p.Sub(pl.Origin).Dot(pl.Normal)
}

// project moves p onto the plane along the normal
func (pl Plane) project(p geometry.Vec3) geometry.Vec3 {
	return p.Sub(pl.Normal.Scale(pl.Distance(p)))
}

// nodeKey identifies an intersection point by the mesh entity it came from: a vertex
// lying on the plane (b == -1) or the crossing on edge (a, b) with a < b. Faces sharing
// a vertex or an edge therefore produce the very same node.
type nodeKey struct {
	a, b int
}

func vertexNode(v int) nodeKey { return nodeKey{v, -1} }

func edgeNode(u, v int) nodeKey {
	if u > v {
		u, v = v, u
	}
	return nodeKey{u, v}
}

func (k nodeKey) less(o nodeKey) bool {
	if k.a != o.a {
		return k.a < o.a
	}
	return k.b < o.b
}

// segment is an undirected intersection segment between two nodes
type segment struct {
	from, to nodeKey
}

// cutter holds the per-plane state of one cut
type cutter struct {
	mesh  *models.ClosedSurfaceMesh
	plane Plane
	dist  []float64

	positions map[nodeKey]geometry.Vec3
	seen      map[segment]struct{}
	segments  []segment
}

// Cut intersects mesh with plane and returns the resulting polylines. Faces lying in the
// plane are ignored; an edge lying in the plane is reported once, by the face on the
// positive side, so a surface that merely touches the plane from below yields nothing.
func Cut(mesh *models.ClosedSurfaceMesh, plane Plane) []models.Contour {
	if mesh.Empty() {
		return nil
	}

	c := &cutter{
		mesh:      mesh,
		plane:     plane,
		dist:      make([]float64, len(mesh.Points)),
		positions: make(map[nodeKey]geometry.Vec3),
		seen:      make(map[segment]struct{}),
	}
	for i, p := range mesh.Points {
		d := plane.Distance(p)
		if math.Abs(d) < planeEpsilon {
			d = 0
		}
		c.dist[i] = d
	}

	for _, poly := range mesh.Polys {
		// Fan triangulation; convex faces are the norm for surface meshes
		for i := 1; i+1 < len(poly); i++ {
			c.triangle(poly[0], poly[i], poly[i+1])
		}
	}

	return stitch(c.segments, c.positions, plane.Normal)
}

func sign(d float64) int {
	switch {
	case d > 0:
		return 1
	case d < 0:
		return -1
	default:
		return 0
	}
}

func (c *cutter) triangle(v0, v1, v2 int) {
	v := [3]int{v0, v1, v2}
	var s [3]int
	var zeros []int
	for i := range v {
		s[i] = sign(c.dist[v[i]])
		if s[i] == 0 {
			zeros = append(zeros, i)
		}
	}

	switch len(zeros) {
	case 3:
		// Coplanar face: its boundary is reported by the neighbouring faces
		return
	case 2:
		other := 3 - zeros[0] - zeros[1]
		if s[other] > 0 {
			c.add(c.vertex(v[zeros[0]]), c.vertex(v[zeros[1]]))
		}
	case 1:
		z := zeros[0]
		p, q := (z+1)%3, (z+2)%3
		if s[p] != s[q] {
			c.add(c.vertex(v[z]), c.edge(v[p], v[q]))
		}
	default:
		// Find the vertex alone on its side of the plane
		var lone int
		switch {
		case s[0] == s[1] && s[1] == s[2]:
			return
		case s[0] == s[1]:
			lone = 2
		case s[0] == s[2]:
			lone = 1
		default:
			lone = 0
		}
		p, q := (lone+1)%3, (lone+2)%3
		c.add(c.edge(v[lone], v[p]), c.edge(v[lone], v[q]))
	}
}

func (c *cutter) vertex(v int) nodeKey {
	k := vertexNode(v)
	if _, ok := c.positions[k]; !ok {
		c.positions[k] = c.plane.project(c.mesh.Points[v])
	}
	return k
}

func (c *cutter) edge(u, v int) nodeKey {
	k := edgeNode(u, v)
	if _, ok := c.positions[k]; !ok {
		// Interpolate from the lower index so both faces of the edge agree bit for bit
		a, b := k.a, k.b
		da, db := c.dist[a], c.dist[b]
		t := da / (da - db)
		pa, pb := c.mesh.Points[a], c.mesh.Points[b]
		c.positions[k] = c.plane.project(pa.Add(pb.Sub(pa).Scale(t)))
	}
	return k
}

func (c *cutter) add(from, to nodeKey) {
	if from == to {
		return
	}
	key := segment{from, to}
	if to.less(from) {
		key = segment{to, from}
	}
	if _, dup := c.seen[key]; dup {
		return
	}
	c.seen[key] = struct{}{}
	c.segments = append(c.segments, segment{from, to})
}
