package model

import (
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// DegenerateEpsilon is the smallest basis column length that Decompose accepts. Shorter columns
	// would divide the rotation block by (nearly) zero.
	DegenerateEpsilon = 1e-6

	// RotationTolerance is the absolute per-component tolerance used by HasEqualRotation.
	RotationTolerance = 1e-4
)

// Transform is an affine 4x4 transform stored column-major, the layout used by glTF and WebGPU.
// Transforms compose by matrix multiplication, which is associative but not commutative.
type Transform struct {
	Matrix mgl32.Mat4
}

// Identity returns the identity transform.
//
// Returns:
//   - Transform: the identity transform
func Identity() Transform {
	return Transform{Matrix: mgl32.Ident4()}
}

// FromMatrix wraps an existing column-major matrix.
//
// Parameters:
//   - m: the column-major 4x4 matrix
//
// Returns:
//   - Transform: the transform backed by m
func FromMatrix(m mgl32.Mat4) Transform {
	return Transform{Matrix: m}
}

// FromColumnMajor builds a transform from 16 floats in column-major order, as stored in a glTF node matrix.
func FromColumnMajor(m [16]float32) Transform {
	return Transform{Matrix: mgl32.Mat4(m)}
}

// FromTRS builds the transform T * R * S from a translation, a unit quaternion (x, y, z, w) and a scale.
// This is the order glTF prescribes for node TRS properties.
//
// Parameters:
//   - translation: the translation (x, y, z)
//   - rotation: the rotation quaternion (x, y, z, w)
//   - scale: the scale (x, y, z)
//
// Returns:
//   - Transform: the composed transform
func FromTRS(translation [3]float32, rotation [4]float32, scale [3]float32) Transform {
	q := mgl32.Quat{W: rotation[3], V: mgl32.Vec3{rotation[0], rotation[1], rotation[2]}}
	t := mgl32.Translate3D(translation[0], translation[1], translation[2])
	s := mgl32.Scale3D(scale[0], scale[1], scale[2])
	return Transform{Matrix: t.Mul4(q.Mat4()).Mul4(s)}
}

// Compose returns a * b. Applied to a point, b acts first and a second, so composing a parent with a
// child's local transform yields the child's transform in the parent's space.
//
// Parameters:
//   - a: the left-hand (outer) transform
//   - b: the right-hand (inner) transform
//
// Returns:
//   - Transform: the product a * b
func Compose(a, b Transform) Transform {
	return Transform{Matrix: a.Matrix.Mul4(b.Matrix)}
}

// Compose returns t * other. See the package-level Compose.
func (t Transform) Compose(other Transform) Transform {
	return Compose(t, other)
}

// Decompose splits the transform into translation, rotation and scale.
//
// The translation is the last matrix column. The scale is the length of each basis column of the
// upper-left 3x3 block, with the z scale negated when the block's determinant is negative so that a
// reflection is carried by the scale instead of the rotation. The rotation is the unit quaternion of the
// basis block after each column has been divided by its scale.
//
// Returns:
//   - [3]float32: the translation (x, y, z)
//   - [4]float32: the rotation quaternion (x, y, z, w)
//   - [3]float32: the scale (x, y, z)
//   - error: common.ErrDegenerateTransform if any basis column is shorter than DegenerateEpsilon
func (t Transform) Decompose() ([3]float32, [4]float32, [3]float32, error) {
	m := t.Matrix
	translation := [3]float32{m[12], m[13], m[14]}

	cols := [3]mgl32.Vec3{m.Col(0).Vec3(), m.Col(1).Vec3(), m.Col(2).Vec3()}
	var scale [3]float32
	for i, c := range cols {
		l := c.Len()
		if l < DegenerateEpsilon || math.IsNaN(float64(l)) || math.IsInf(float64(l), 0) {
			return translation, [4]float32{}, [3]float32{}, fmt.Errorf("%w: basis column %d has length %g", common.ErrDegenerateTransform, i, l)
		}
		scale[i] = l
	}
	if m.Mat3().Det() < 0 {
		scale[2] = -scale[2]
	}

	basis := mgl32.Mat4FromCols(
		cols[0].Mul(1/scale[0]).Vec4(0),
		cols[1].Mul(1/scale[1]).Vec4(0),
		cols[2].Mul(1/scale[2]).Vec4(0),
		mgl32.Vec4{0, 0, 0, 1},
	)
	q := mgl32.Mat4ToQuat(basis).Normalize()

	return translation, [4]float32{q.V[0], q.V[1], q.V[2], q.W}, scale, nil
}

// HasEqualRotation reports whether both transforms decompose to the same rotation, comparing the four
// quaternion components with an absolute tolerance of RotationTolerance. A difference exactly equal to
// the tolerance counts as unequal.
//
// Parameters:
//   - other: the transform to compare against
//
// Returns:
//   - bool: true if every quaternion component differs by less than RotationTolerance
//   - error: common.ErrDegenerateTransform if either transform cannot be decomposed
func (t Transform) HasEqualRotation(other Transform) (bool, error) {
	_, r1, _, err := t.Decompose()
	if err != nil {
		return false, err
	}
	_, r2, _, err := other.Decompose()
	if err != nil {
		return false, err
	}
	return rotationsEqual(r1, r2), nil
}

func rotationsEqual(a, b [4]float32) bool {
	for i := range a {
		if !common.ApproxEqual(a[i], b[i], RotationTolerance) {
			return false
		}
	}
	return true
}

// Position returns the translation part of the transform.
//
// Returns:
//   - mgl32.Vec3: the position
func (t Transform) Position() mgl32.Vec3 {
	return mgl32.Vec3{t.Matrix[12], t.Matrix[13], t.Matrix[14]}
}

// Rotation returns the decomposed orientation.
//
// Returns:
//   - mgl32.Quat: the unit rotation quaternion
//   - error: common.ErrDegenerateTransform if the transform cannot be decomposed
func (t Transform) Rotation() (mgl32.Quat, error) {
	_, r, _, err := t.Decompose()
	if err != nil {
		return mgl32.QuatIdent(), err
	}
	return mgl32.Quat{W: r[3], V: mgl32.Vec3{r[0], r[1], r[2]}}, nil
}

// ApproxEqual reports whether every matrix element of t and other differs by less than tolerance.
func (t Transform) ApproxEqual(other Transform, tolerance float32) bool {
	for i := range t.Matrix {
		if !common.ApproxEqual(t.Matrix[i], other.Matrix[i], tolerance) {
			return false
		}
	}
	return true
}

func (t Transform) String() string {
	translation, rotation, scale, err := t.Decompose()
	if err != nil {
		return fmt.Sprintf("matrix %v (%v)", [16]float32(t.Matrix), err)
	}
	return fmt.Sprintf("translation %v rotation %v scale %v", translation, rotation, scale)
}
