package geometry

// Transform maps points from a node's local space to its parent (usually world) space.
// A nil Transform means identity.
type Transform interface {
	TransformPoint(p Vec3) Vec3
}

// AffineTransform is a linear Transform backed by a 4x4 matrix.
type AffineTransform struct {
	Matrix Matrix4
}

// TransformPoint implements Transform.
func (a AffineTransform) TransformPoint(p Vec3) Vec3 {
	return a.Matrix.Apply(p)
}

// TransformFunc adapts a plain function (e.g. a deformable warp) to Transform.
type TransformFunc func(p Vec3) Vec3

// TransformPoint implements Transform.
func (f TransformFunc) TransformPoint(p Vec3) Vec3 {
	return f(p)
}

// AsAffine returns the matrix of t when it is affine. A nil transform is the identity.
func AsAffine(t Transform) (Matrix4, bool) {
	switch v := t.(type) {
	case nil:
		return Identity(), true
	case AffineTransform:
		return v.Matrix, true
	case *AffineTransform:
		return v.Matrix, true
	case composite:
		m := Identity()
		for _, inner := range v {
			im, ok := AsAffine(inner)
			if !ok {
				return Matrix4{}, false
			}
			m = im.Mul(m)
		}
		return m, true
	default:
		return Matrix4{}, false
	}
}

// composite applies its transforms in order, first to last.
type composite []Transform

func (c composite) TransformPoint(p Vec3) Vec3 {
	for _, t := range c {
		p = t.TransformPoint(p)
	}
	return p
}

// Compose returns a transform applying ts in order (ts[0] first). Nil entries are skipped;
// composing nothing yields nil (identity).
func Compose(ts ...Transform) Transform {
	var c composite
	for _, t := range ts {
		if t != nil {
			c = append(c, t)
		}
	}
	switch len(c) {
	case 0:
		return nil
	case 1:
		return c[0]
	default:
		return c
	}
}
