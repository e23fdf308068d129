package geometry

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrDegenerateTransform is returned when an affine transform cannot be inverted
// or decomposed (zero-length axis, collapsed volume).
var ErrDegenerateTransform = errors.New("degenerate transform")

// Matrix4 is a row-major 4x4 homogeneous matrix. For index-to-world transforms
// column c (c < 3) holds the world step of index axis c, i.e. direction times spacing,
// and column 3 holds the world position of index (0,0,0).
type Matrix4 [4][4]float64

// Identity returns the 4x4 identity matrix.
func Identity() Matrix4 {
	return Matrix4{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// ScaleTranslate builds a matrix without rotation or shear: index axis c steps by
// spacing[c] along world axis c, and index (0,0,0) sits at origin.
func ScaleTranslate(spacing [3]float64, origin Vec3) Matrix4 {
	return Matrix4{
		{spacing[0], 0, 0, origin.X},
		{0, spacing[1], 0, origin.Y},
		{0, 0, spacing[2], origin.Z},
		{0, 0, 0, 1},
	}
}

// FromAxes builds an index-to-world matrix from an origin, per-axis spacing and
// three (not necessarily orthogonal) axis directions.
func FromAxes(origin Vec3, spacing [3]float64, axes [3]Vec3) Matrix4 {
	m := Identity()
	for c := 0; c < 3; c++ {
		d := axes[c].Normalize().Scale(spacing[c])
		m[0][c], m[1][c], m[2][c] = d.X, d.Y, d.Z
	}
	m[0][3], m[1][3], m[2][3] = origin.X, origin.Y, origin.Z
	return m
}

// Column returns the first three rows of column c.
func (m Matrix4) Column(c int) Vec3 {
	return Vec3{m[0][c], m[1][c], m[2][c]}
}

// Translation returns the world position of index (0,0,0).
func (m Matrix4) Translation() Vec3 {
	return m.Column(3)
}

// Apply transforms p as a homogeneous point (w=1). The bottom row is assumed to be 0 0 0 1.
func (m Matrix4) Apply(p Vec3) Vec3 {
	return Vec3{
		m[0][0]*p.X + m[0][1]*p.Y + m[0][2]*p.Z + m[0][3],
		m[1][0]*p.X + m[1][1]*p.Y + m[1][2]*p.Z + m[1][3],
		m[2][0]*p.X + m[2][1]*p.Y + m[2][2]*p.Z + m[2][3],
	}
}

// Mul returns m * o.
func (m Matrix4) Mul(o Matrix4) Matrix4 {
	var out Matrix4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += m[r][k] * o[k][c]
			}
			out[r][c] = sum
		}
	}
	return out
}

// Dense returns m as a gonum matrix.
func (m Matrix4) Dense() *mat.Dense {
	data := make([]float64, 0, 16)
	for r := 0; r < 4; r++ {
		data = append(data, m[r][:]...)
	}
	return mat.NewDense(4, 4, data)
}

// Linear returns the upper-left 3x3 block (rotation, scale and shear) as a gonum matrix.
func (m Matrix4) Linear() *mat.Dense {
	data := make([]float64, 0, 9)
	for r := 0; r < 3; r++ {
		data = append(data, m[r][:3]...)
	}
	return mat.NewDense(3, 3, data)
}

// Inverse returns the inverse of m. Singular or ill-conditioned matrices yield
// ErrDegenerateTransform.
func (m Matrix4) Inverse() (Matrix4, error) {
	if err := checkAxes(m); err != nil {
		return Matrix4{}, err
	}

	var inv mat.Dense
	if err := inv.Inverse(m.Dense()); err != nil {
		return Matrix4{}, fmt.Errorf("%w: %v", ErrDegenerateTransform, err)
	}

	var out Matrix4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[r][c] = inv.At(r, c)
		}
	}
	return out, nil
}

// Equal reports whether every element of m and o differs by at most tol.
func (m Matrix4) Equal(o Matrix4, tol float64) bool {
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			if math.Abs(m[r][c]-o[r][c]) > tol {
				return false
			}
		}
	}
	return true
}

// checkAxes rejects matrices whose linear part collapses a dimension.
func checkAxes(m Matrix4) error {
	scale := 1.0
	for c := 0; c < 3; c++ {
		n := m.Column(c).Norm()
		if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
			return fmt.Errorf("%w: index axis %d has zero or invalid length", ErrDegenerateTransform, c)
		}
		scale *= n
	}
	if det := mat.Det(m.Linear()); math.Abs(det) < degenerateDeterminant*scale {
		return fmt.Errorf("%w: axes are linearly dependent (det=%g)", ErrDegenerateTransform, det)
	}
	return nil
}
