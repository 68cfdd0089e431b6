package camera

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type CameraBuilderOption func(*cameraImpl)

// WithUp sets the camera's up vector. It is read by WithLookAt and WithFraming, so pass it first.
//
// Parameters:
//   - x, y, z: up vector components
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's up vector
func WithUp(x, y, z float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.up = [3]float32{x, y, z}
	}
}

// WithFov sets the camera's vertical field of view in radians.
//
// Parameters:
//   - fov: field of view in radians
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's field of view
func WithFov(fov float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.fov = fov
	}
}

// WithAspect sets the camera's aspect ratio (width / height).
//
// Parameters:
//   - aspect: the aspect ratio to set
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's aspect ratio
func WithAspect(aspect float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.aspect = aspect
	}
}

// WithNear sets the near clipping plane distance.
//
// Parameters:
//   - near: near plane distance
//
// Returns:
//   - CameraBuilderOption: a function that sets the near plane
func WithNear(near float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.near = near
	}
}

// WithFar sets the far clipping plane distance.
//
// Parameters:
//   - far: far plane distance
//
// Returns:
//   - CameraBuilderOption: functional option to set the far plane
func WithFar(far float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.far = far
	}
}

// WithWorldTransform places the camera with its world matrix; the view matrix is its inverse.
//
// Parameters:
//   - world: the camera node's world matrix
//
// Returns:
//   - CameraBuilderOption: functional option to set the view matrix
func WithWorldTransform(world mgl32.Mat4) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.viewMatrix = world.Inv()
	}
}

// WithLookAt points the camera from eye at target using the current up vector.
//
// Parameters:
//   - eye: the camera position
//   - target: the point looked at
//
// Returns:
//   - CameraBuilderOption: functional option to set the view matrix
func WithLookAt(eye, target mgl32.Vec3) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.viewMatrix = mgl32.LookAtV(eye, target, mgl32.Vec3(c.up))
	}
}

// WithFraming places the camera on the +Z axis of the box center, far enough that the box's bounding
// sphere fits in the vertical field of view, and fits the clip planes around it. It reads the field of
// view, so pass WithFov before it.
//
// Parameters:
//   - lo, hi: the box corners
//
// Returns:
//   - CameraBuilderOption: functional option to frame the box
func WithFraming(lo, hi mgl32.Vec3) CameraBuilderOption {
	return func(c *cameraImpl) {
		center := lo.Add(hi).Mul(0.5)
		radius := max(hi.Sub(lo).Len()*0.5, 1e-3)
		distance := radius / float32(math.Sin(float64(c.fov)/2))

		eye := center.Add(mgl32.Vec3{0, 0, distance})
		c.near = max(distance-radius*1.5, distance*0.01)
		c.far = distance + radius*2
		c.viewMatrix = mgl32.LookAtV(eye, center, mgl32.Vec3(c.up))
	}
}
