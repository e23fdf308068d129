package geometry

import "math"

// Box is an axis-aligned bounding box in world coordinates.
type Box struct {
	Min, Max Vec3
}

// BoundsOf returns the bounding box of points. ok is false when points is empty.
func BoundsOf(points []Vec3) (box Box, ok bool) {
	if len(points) == 0 {
		return Box{}, false
	}
	box.Min, box.Max = points[0], points[0]
	for _, p := range points[1:] {
		box.Min = Vec3{math.Min(box.Min.X, p.X), math.Min(box.Min.Y, p.Y), math.Min(box.Min.Z, p.Z)}
		box.Max = Vec3{math.Max(box.Max.X, p.X), math.Max(box.Max.Y, p.Y), math.Max(box.Max.Z, p.Z)}
	}
	return box, true
}

// Corners returns the eight corner points of the box.
func (b Box) Corners() [8]Vec3 {
	var c [8]Vec3
	for i := 0; i < 8; i++ {
		p := b.Min
		if i&1 != 0 {
			p.X = b.Max.X
		}
		if i&2 != 0 {
			p.Y = b.Max.Y
		}
		if i&4 != 0 {
			p.Z = b.Max.Z
		}
		c[i] = p
	}
	return c
}

// Project returns the range of signed offsets of the box along direction n.
// For an axis-aligned n this is exactly the box range on that axis.
func (b Box) Project(n Vec3) (lo, hi float64) {
	corners := b.Corners()
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, c := range corners {
		d := c.Dot(n)
		lo = math.Min(lo, d)
		hi = math.Max(hi, d)
	}
	return lo, hi
}
