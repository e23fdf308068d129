package contour

import (
	"rtstudyexport/internal/models"
	"rtstudyexport/pkg/geometry"
)

// stitch joins segments sharing nodes into polylines. Chains starting at odd-degree
// nodes (holes in the surface) come first as open contours; every remaining segment
// belongs to a closed loop. Closed loops are oriented counter-clockwise about normal.
func stitch(segments []segment, positions map[nodeKey]geometry.Vec3, normal geometry.Vec3) []models.Contour {
	if len(segments) == 0 {
		return nil
	}

	adjacency := make(map[nodeKey][]int)
	var order []nodeKey
	for i, s := range segments {
		for _, n := range [2]nodeKey{s.from, s.to} {
			if _, ok := adjacency[n]; !ok {
				order = append(order, n)
			}
			adjacency[n] = append(adjacency[n], i)
		}
	}

	used := make([]bool, len(segments))
	next := func(n nodeKey) (int, bool) {
		for _, si := range adjacency[n] {
			if !used[si] {
				return si, true
			}
		}
		return 0, false
	}
	walk := func(start nodeKey) []nodeKey {
		chain := []nodeKey{start}
		cur := start
		for {
			si, ok := next(cur)
			if !ok {
				return chain
			}
			used[si] = true
			s := segments[si]
			if s.from == cur {
				cur = s.to
			} else {
				cur = s.from
			}
			chain = append(chain, cur)
			if cur == start {
				return chain
			}
		}
	}
	points := func(chain []nodeKey) []geometry.Vec3 {
		out := make([]geometry.Vec3, len(chain))
		for i, n := range chain {
			out[i] = positions[n]
		}
		return out
	}

	var contours []models.Contour
	for _, n := range order {
		if len(adjacency[n])%2 == 0 {
			continue
		}
		if _, ok := next(n); !ok {
			continue
		}
		chain := walk(n)
		if len(chain) >= 2 {
			contours = append(contours, models.Contour{Points: points(chain)})
		}
	}

	for _, n := range order {
		for {
			if _, ok := next(n); !ok {
				break
			}
			chain := walk(n)
			closed := len(chain) > 1 && chain[len(chain)-1] == chain[0]
			if closed {
				chain = chain[:len(chain)-1]
			}
			if closed && len(chain) < 3 {
				continue
			}
			if len(chain) < 2 {
				continue
			}
			c := models.Contour{Points: points(chain), Closed: closed}
			if closed && Area(c, normal) < 0 {
				reverse(c.Points)
			}
			contours = append(contours, c)
		}
	}
	return contours
}

func reverse(p []geometry.Vec3) {
	for i, j := 0, len(p)-1; i < j; i, j = i+1, j-1 {
		p[i], p[j] = p[j], p[i]
	}
}

// Area returns the signed area enclosed by a closed contour, positive when the points
// run counter-clockwise seen from the tip of normal (Newell's method). Open contours
// have no area.
func Area(c models.Contour, normal geometry.Vec3) float64 {
	if !c.Closed || len(c.Points) < 3 {
		return 0
	}
	var sum geometry.Vec3
	for i, p := range c.Points {
		q := c.Points[(i+1)%len(c.Points)]
		sum = sum.Add(p.Cross(q))
	}
	return sum.Dot(normal.Normalize()) / 2
}

// Centroid returns the mean of the contour points
func Centroid(c models.Contour) geometry.Vec3 {
	var sum geometry.Vec3
	if len(c.Points) == 0 {
		return sum
	}
	for _, p := range c.Points {
		sum = sum.Add(p)
	}
	return sum.Scale(1 / float64(len(c.Points)))
}
