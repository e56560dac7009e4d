// Package geom provides the low-level vector geometry used by the
// solid builders: point/triangle queries, plane constructions, polygon
// triangulation and a convex hull fallback. All math is carried on
// gonum's spatial/r3 vectors.
package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Eps is the generic degeneracy threshold for unit-scale quantities.
const Eps = 1e-12

// Clamp limits v to the closed interval [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SafeUnit normalizes v, returning the zero vector (and false) when the
// norm is too small to produce a meaningful direction.
func SafeUnit(v r3.Vec) (r3.Vec, bool) {
	n := r3.Norm(v)
	if n < Eps {
		return r3.Vec{}, false
	}
	return r3.Scale(1/n, v), true
}

// TriangleNormal returns the unnormalized normal of triangle (a, b, c).
// Its magnitude is twice the triangle area.
func TriangleNormal(a, b, c r3.Vec) r3.Vec {
	return r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
}

// TriangleArea returns the area of triangle (a, b, c).
func TriangleArea(a, b, c r3.Vec) float64 {
	return 0.5 * r3.Norm(TriangleNormal(a, b, c))
}

// ClosestOnTriangle returns the point of triangle (a, b, c) closest to p.
// Voronoi-region walk: vertex regions, then edge regions, then interior.
func ClosestOnTriangle(p, a, b, c r3.Vec) r3.Vec {
	ab := r3.Sub(b, a)
	ac := r3.Sub(c, a)
	ap := r3.Sub(p, a)
	d1 := r3.Dot(ab, ap)
	d2 := r3.Dot(ac, ap)
	if d1 <= 0 && d2 <= 0 {
		return a
	}

	bp := r3.Sub(p, b)
	d3 := r3.Dot(ab, bp)
	d4 := r3.Dot(ac, bp)
	if d3 >= 0 && d4 <= d3 {
		return b
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1 / (d1 - d3)
		return r3.Add(a, r3.Scale(v, ab))
	}

	cp := r3.Sub(p, c)
	d5 := r3.Dot(ab, cp)
	d6 := r3.Dot(ac, cp)
	if d6 >= 0 && d5 <= d6 {
		return c
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2 / (d2 - d6)
		return r3.Add(a, r3.Scale(w, ac))
	}

	va := d3*d6 - d5*d4
	if va <= 0 && d4-d3 >= 0 && d5-d6 >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return r3.Add(b, r3.Scale(w, r3.Sub(c, b)))
	}

	denom := 1 / (va + vb + vc)
	v := vb * denom
	w := vc * denom
	return r3.Add(a, r3.Add(r3.Scale(v, ab), r3.Scale(w, ac)))
}

// IntersectThreePlanes solves for the point satisfying n1·x = d1,
// n2·x = d2, n3·x = d3. Returns false when the planes are close to
// parallel (vanishing triple product).
func IntersectThreePlanes(n1 r3.Vec, d1 float64, n2 r3.Vec, d2 float64, n3 r3.Vec, d3 float64) (r3.Vec, bool) {
	u := r3.Cross(n2, n3)
	denom := r3.Dot(n1, u)
	if math.Abs(denom) < 1e-10 {
		return r3.Vec{}, false
	}
	p := r3.Scale(d1, u)
	p = r3.Add(p, r3.Scale(d2, r3.Cross(n3, n1)))
	p = r3.Add(p, r3.Scale(d3, r3.Cross(n1, n2)))
	return r3.Scale(1/denom, p), true
}

// PlaneBasis returns two orthonormal vectors spanning the plane with
// normal n. The pair (u, v, unit(n)) forms a right-handed frame.
func PlaneBasis(n r3.Vec) (u, v r3.Vec) {
	nn, ok := SafeUnit(n)
	if !ok {
		return r3.Vec{X: 1}, r3.Vec{Y: 1}
	}
	ref := r3.Vec{X: 1}
	if math.Abs(nn.X) > 0.9 {
		ref = r3.Vec{Y: 1}
	}
	u, _ = SafeUnit(r3.Cross(nn, ref))
	v = r3.Cross(nn, u)
	return u, v
}

// BestFitPlane fits a plane through the closed loop pts using Newell's
// method. Returns the loop centroid and the unit plane normal; the
// normal defaults to +Z for degenerate loops.
func BestFitPlane(pts []r3.Vec) (origin, normal r3.Vec) {
	if len(pts) == 0 {
		return r3.Vec{}, r3.Vec{Z: 1}
	}
	var n, c r3.Vec
	for i, p := range pts {
		q := pts[(i+1)%len(pts)]
		n.X += (p.Y - q.Y) * (p.Z + q.Z)
		n.Y += (p.Z - q.Z) * (p.X + q.X)
		n.Z += (p.X - q.X) * (p.Y + q.Y)
		c = r3.Add(c, p)
	}
	origin = r3.Scale(1/float64(len(pts)), c)
	normal, ok := SafeUnit(n)
	if !ok {
		normal = r3.Vec{Z: 1}
	}
	return origin, normal
}

// RotateAbout rotates v by angle radians around the (not necessarily
// unit) axis, returning v unchanged if the axis is degenerate.
func RotateAbout(v, axis r3.Vec, angle float64) r3.Vec {
	u, ok := SafeUnit(axis)
	if !ok {
		return v
	}
	return r3.NewRotation(angle, u).Rotate(v)
}
