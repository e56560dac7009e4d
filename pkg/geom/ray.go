package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// RayTriangle intersects the ray orig + t*dir against triangle
// (a, b, c) and returns the ray parameter. Möller–Trumbore; only
// forward hits (t > tiny) count.
func RayTriangle(orig, dir, a, b, c r3.Vec) (float64, bool) {
	const tiny = 1e-12
	e1 := r3.Sub(b, a)
	e2 := r3.Sub(c, a)
	h := r3.Cross(dir, e2)
	det := r3.Dot(e1, h)
	if math.Abs(det) < tiny {
		return 0, false // ray parallel to triangle plane
	}
	inv := 1 / det
	s := r3.Sub(orig, a)
	u := inv * r3.Dot(s, h)
	if u < -tiny || u > 1+tiny {
		return 0, false
	}
	q := r3.Cross(s, e1)
	v := inv * r3.Dot(dir, q)
	if v < -tiny || u+v > 1+tiny {
		return 0, false
	}
	t := inv * r3.Dot(e2, q)
	if t <= 1e-9 {
		return 0, false
	}
	return t, true
}
