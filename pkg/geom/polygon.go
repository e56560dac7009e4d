package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// ProjectToPlane maps each 3D point into the 2D coordinates of the
// plane frame (origin, u, v).
func ProjectToPlane(pts []r3.Vec, origin, u, v r3.Vec) []r2.Vec {
	out := make([]r2.Vec, len(pts))
	for i, p := range pts {
		d := r3.Sub(p, origin)
		out[i] = r2.Vec{X: r3.Dot(d, u), Y: r3.Dot(d, v)}
	}
	return out
}

func cross2(a, b r2.Vec) float64 { return a.X*b.Y - a.Y*b.X }

// signedArea2 returns twice the signed area of the 2D loop.
func signedArea2(pts []r2.Vec) float64 {
	var s float64
	for i, p := range pts {
		q := pts[(i+1)%len(pts)]
		s += cross2(p, q)
	}
	return s
}

func pointInTriangle2(p, a, b, c r2.Vec) bool {
	d1 := cross2(r2.Sub(b, a), r2.Sub(p, a))
	d2 := cross2(r2.Sub(c, b), r2.Sub(p, b))
	d3 := cross2(r2.Sub(a, c), r2.Sub(p, c))
	hasNeg := d1 < 0 || d2 < 0 || d3 < 0
	hasPos := d1 > 0 || d2 > 0 || d3 > 0
	return !(hasNeg && hasPos)
}

// EarClip triangulates the simple polygon loop (given as 2D plane
// coordinates) and returns index triples into the loop, wound
// counter-clockwise in the plane. Returns false when the polygon is
// degenerate or self-intersecting enough that no ear can be found.
func EarClip(loop []r2.Vec) ([][3]int, bool) {
	n := len(loop)
	if n < 3 {
		return nil, false
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	// Work on a CCW loop so convexity tests have one sign.
	if signedArea2(loop) < 0 {
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			idx[i], idx[j] = idx[j], idx[i]
		}
	}

	var tris [][3]int
	guard := 0
	for len(idx) > 3 {
		if guard++; guard > n*n {
			return nil, false
		}
		clipped := false
		for i := 0; i < len(idx); i++ {
			i0 := idx[(i+len(idx)-1)%len(idx)]
			i1 := idx[i]
			i2 := idx[(i+1)%len(idx)]
			a, b, c := loop[i0], loop[i1], loop[i2]
			if cross2(r2.Sub(b, a), r2.Sub(c, a)) <= Eps {
				continue // reflex or collinear corner
			}
			ear := true
			for _, j := range idx {
				if j == i0 || j == i1 || j == i2 {
					continue
				}
				if pointInTriangle2(loop[j], a, b, c) {
					ear = false
					break
				}
			}
			if !ear {
				continue
			}
			tris = append(tris, [3]int{i0, i1, i2})
			idx = append(idx[:i], idx[i+1:]...)
			clipped = true
			break
		}
		if !clipped {
			return nil, false
		}
	}
	tris = append(tris, [3]int{idx[0], idx[1], idx[2]})
	return tris, true
}

// FanTriangulate returns the trivial fan triangulation of an n-gon.
// Used as the fallback when ear clipping rejects a noisy cap loop.
func FanTriangulate(n int) [][3]int {
	if n < 3 {
		return nil
	}
	tris := make([][3]int, 0, n-2)
	for i := 1; i < n-1; i++ {
		tris = append(tris, [3]int{0, i, i + 1})
	}
	return tris
}

// LoopIsCCW reports whether the projected loop is counter-clockwise in
// the given plane frame.
func LoopIsCCW(pts []r3.Vec, origin, u, v r3.Vec) bool {
	return signedArea2(ProjectToPlane(pts, origin, u, v)) > 0
}

// AngleBetween returns the angle in [0, pi] between vectors a and b.
func AngleBetween(a, b r3.Vec) float64 {
	ua, oka := SafeUnit(a)
	ub, okb := SafeUnit(b)
	if !oka || !okb {
		return 0
	}
	return math.Acos(Clamp(r3.Dot(ua, ub), -1, 1))
}
