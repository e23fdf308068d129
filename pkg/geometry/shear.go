package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// ShearTolerance is the largest relative off-diagonal QR term still treated as
	// orthogonal axes. It is fixed, not user configurable.
	ShearTolerance = 1e-6

	// degenerateDeterminant is the smallest |det| relative to the product of axis
	// lengths accepted for an invertible transform.
	degenerateDeterminant = 1e-9
)

// ShearDecomposition splits the linear part of an index-to-world matrix into
// per-axis spacing and the relative shear between axes.
type ShearDecomposition struct {
	// Spacing holds the length of each index axis in world units.
	Spacing [3]float64

	// Shear[i][j] (i < j) is the component of axis j along the orthogonalized axis i,
	// relative to the length of axis j. It is zero for orthogonal axes.
	Shear [3][3]float64
}

// MaxShear returns the largest shear term.
func (d ShearDecomposition) MaxShear() float64 {
	var max float64
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			max = math.Max(max, d.Shear[i][j])
		}
	}
	return max
}

// DecomposeShear factorizes the 3x3 linear part L = Q*R with a QR decomposition.
// Q carries rotation (and possibly a reflection); R is upper triangular and its
// off-diagonal terms measure how far the index axes are from orthogonal.
func DecomposeShear(m Matrix4) (ShearDecomposition, error) {
	var d ShearDecomposition
	if err := checkAxes(m); err != nil {
		return d, err
	}

	var qr mat.QR
	qr.Factorize(m.Linear())
	var r mat.Dense
	qr.RTo(&r)

	for j := 0; j < 3; j++ {
		d.Spacing[j] = m.Column(j).Norm()
		for i := 0; i < j; i++ {
			d.Shear[i][j] = math.Abs(r.At(i, j)) / d.Spacing[j]
		}
	}
	return d, nil
}

// ContainsShear reports whether the transform's index axes are non-orthogonal
// beyond ShearTolerance.
func ContainsShear(m Matrix4) (bool, error) {
	d, err := DecomposeShear(m)
	if err != nil {
		return false, err
	}
	return d.MaxShear() > ShearTolerance, nil
}
