package geometry

import (
	"errors"
	"math"
	"testing"
)

// rotationZ returns an index-to-world matrix rotated by angle around Z with the given spacing
func rotationZ(angle float64, spacing [3]float64) Matrix4 {
	c, s := math.Cos(angle), math.Sin(angle)
	return FromAxes(Vec3{10, -5, 3}, spacing, [3]Vec3{{c, s, 0}, {-s, c, 0}, {0, 0, 1}})
}

// TestContainsShearOrthogonal verifies that rotation and anisotropic scale are not reported as shear
func TestContainsShearOrthogonal(t *testing.T) {
	cases := map[string]Matrix4{
		"identity":    Identity(),
		"anisotropic": ScaleTranslate([3]float64{0.5, 0.5, 2.5}, Vec3{-100, -100, 20}),
		"rotated":     rotationZ(math.Pi/7, [3]float64{0.8, 0.8, 3}),
		"reflected":   ScaleTranslate([3]float64{1, -1, 1}, Vec3{}),
	}

	for name, m := range cases {
		shear, err := ContainsShear(m)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if shear {
			t.Errorf("%s: expected no shear", name)
		}
	}
}

// TestContainsShearSkewed verifies that non-orthogonal axes are detected
func TestContainsShearSkewed(t *testing.T) {
	m := FromAxes(Vec3{}, [3]float64{1, 1, 2}, [3]Vec3{{1, 0, 0}, {0, 1, 0}, {0.2, 0, 1}})

	shear, err := ContainsShear(m)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !shear {
		t.Fatal("Expected shear to be detected for a tilted slice axis")
	}

	d, err := DecomposeShear(m)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if math.Abs(d.Spacing[2]-2) > 1e-12 {
		t.Errorf("Expected z spacing 2, got %f", d.Spacing[2])
	}
	// Axis 2 is tilted by atan(0.2) towards X, so its X component relative to its length is sin(angle)
	want := 0.2 / math.Sqrt(1.04)
	if math.Abs(d.Shear[0][2]-want) > 1e-9 {
		t.Errorf("Expected shear %f, got %f", want, d.Shear[0][2])
	}
}

// TestDecomposeShearDegenerate verifies that collapsed transforms are rejected
func TestDecomposeShearDegenerate(t *testing.T) {
	flat := Identity()
	flat[2][2] = 0

	if _, err := DecomposeShear(flat); !errors.Is(err, ErrDegenerateTransform) {
		t.Errorf("Expected ErrDegenerateTransform, got %v", err)
	}

	dependent := FromAxes(Vec3{}, [3]float64{1, 1, 1}, [3]Vec3{{1, 0, 0}, {0, 1, 0}, {1, 1, 0}})
	if _, err := ContainsShear(dependent); !errors.Is(err, ErrDegenerateTransform) {
		t.Errorf("Expected ErrDegenerateTransform for dependent axes, got %v", err)
	}
}

// TestInverse verifies that Inverse undoes Apply
func TestInverse(t *testing.T) {
	m := rotationZ(0.3, [3]float64{0.7, 1.1, 2.5})
	inv, err := m.Inverse()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	p := Vec3{3, -4, 12}
	back := inv.Apply(m.Apply(p))
	if !back.NearlyEqual(p, 1e-9) {
		t.Errorf("Expected %v, got %v", p, back)
	}

	if !m.Mul(inv).Equal(Identity(), 1e-9) {
		t.Error("Expected m * inverse(m) to be identity")
	}
}

// TestBoxProject verifies bounding box construction and projection onto a direction
func TestBoxProject(t *testing.T) {
	box, ok := BoundsOf([]Vec3{{1, 2, 3}, {-1, 5, 0}, {4, 0, 7}})
	if !ok {
		t.Fatal("Expected bounds for non-empty points")
	}
	if box.Min != (Vec3{-1, 0, 0}) || box.Max != (Vec3{4, 5, 7}) {
		t.Errorf("Unexpected box %+v", box)
	}

	lo, hi := box.Project(Vec3{0, 0, 1})
	if lo != 0 || hi != 7 {
		t.Errorf("Expected z range [0,7], got [%f,%f]", lo, hi)
	}

	if _, ok := BoundsOf(nil); ok {
		t.Error("Expected no bounds for empty point set")
	}
}

// TestAsAffine verifies affine detection through composition
func TestAsAffine(t *testing.T) {
	shift := AffineTransform{Matrix: ScaleTranslate([3]float64{1, 1, 1}, Vec3{0, 0, 5})}
	scale := AffineTransform{Matrix: ScaleTranslate([3]float64{2, 2, 2}, Vec3{})}

	m, ok := AsAffine(Compose(shift, scale))
	if !ok {
		t.Fatal("Expected composition of affine transforms to be affine")
	}
	// shift first, then scale
	got := m.Apply(Vec3{1, 1, 1})
	if !got.NearlyEqual(Vec3{2, 2, 12}, 1e-12) {
		t.Errorf("Expected (2,2,12), got %v", got)
	}

	warp := TransformFunc(func(p Vec3) Vec3 { return Vec3{p.X * p.X, p.Y, p.Z} })
	if _, ok := AsAffine(Compose(shift, warp)); ok {
		t.Error("Expected warp composition to be non-affine")
	}

	if m, ok := AsAffine(nil); !ok || m != Identity() {
		t.Error("Expected nil transform to be identity")
	}
}
