package camera

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/go-gl/mathgl/mgl32"
)

func TestNewCameraDefaults(t *testing.T) {
	c := NewCamera()

	if c.Aspect() != 1 || c.Near() != 0.1 || c.Far() != 100 {
		t.Errorf("defaults aspect=%v near=%v far=%v", c.Aspect(), c.Near(), c.Far())
	}
	if x, y, z := c.Up(); x != 0 || y != 1 || z != 0 {
		t.Errorf("up (%v, %v, %v)", x, y, z)
	}
	if c.ViewMatrix() != mgl32.Ident4() {
		t.Errorf("view %v, want identity", c.ViewMatrix())
	}
	if c.ViewProjectionMatrix() != c.ProjectionMatrix() {
		t.Error("identity view must leave the projection unchanged")
	}
}

func TestWithWorldTransform(t *testing.T) {
	c := NewCamera(
		WithFov(0.8),
		WithAspect(2),
		WithNear(0.1),
		WithFar(50),
		WithWorldTransform(mgl32.Translate3D(0, 0, 5)),
	)

	want := common.Perspective(0.8, 2, 0.1, 50).Mul4(mgl32.Translate3D(0, 0, -5))
	if !c.ViewProjectionMatrix().ApproxEqualThreshold(want, 1e-5) {
		t.Errorf("view projection %v, want %v", c.ViewProjectionMatrix(), want)
	}
}

func TestWithLookAt(t *testing.T) {
	c := NewCamera(WithLookAt(mgl32.Vec3{0, 0, 3}, mgl32.Vec3{}))

	p := c.ViewMatrix().Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	if !p.ApproxEqual(mgl32.Vec4{0, 0, -3, 1}) {
		t.Errorf("target lands at %v in view space", p)
	}
}

func TestWithFraming(t *testing.T) {
	c := NewCamera(WithFov(0.8), WithFraming(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1}))

	eye := c.ViewMatrix().Inv().Col(3).Vec3()
	if !common.ApproxEqual(eye.X(), 0, 1e-4) || !common.ApproxEqual(eye.Y(), 0, 1e-4) || eye.Z() <= 1 {
		t.Errorf("eye %v must sit on +Z outside the box", eye)
	}
	dist := eye.Len()
	if c.Near() <= 0 || c.Near() >= dist || c.Far() <= dist {
		t.Errorf("planes %v..%v do not bracket distance %v", c.Near(), c.Far(), dist)
	}

	// The box center projects to the middle of the image.
	clip := c.ViewProjectionMatrix().Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	if !common.ApproxEqual(clip.X()/clip.W(), 0, 1e-4) || !common.ApproxEqual(clip.Y()/clip.W(), 0, 1e-4) {
		t.Errorf("center projects to %v", clip)
	}
}
