package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ConvexHull computes the convex hull of the point cloud and returns
// outward-wound triangle index triples into pts. Incremental insertion
// with horizon re-stitching. Returns false when the cloud is degenerate
// (fewer than four affinely independent points).
func ConvexHull(pts []r3.Vec) ([][3]int, bool) {
	if len(pts) < 4 {
		return nil, false
	}
	i0, i1, i2, i3, ok := initialTetrahedron(pts)
	if !ok {
		return nil, false
	}

	type face struct {
		v [3]int
		n r3.Vec // outward, unnormalized
	}
	var faces []face

	inner := r3.Scale(0.25, r3.Add(r3.Add(pts[i0], pts[i1]), r3.Add(pts[i2], pts[i3])))
	addFace := func(a, b, c int) {
		n := TriangleNormal(pts[a], pts[b], pts[c])
		if r3.Dot(n, r3.Sub(pts[a], inner)) < 0 {
			b, c = c, b
			n = r3.Scale(-1, n)
		}
		faces = append(faces, face{v: [3]int{a, b, c}, n: n})
	}
	addFace(i0, i1, i2)
	addFace(i0, i1, i3)
	addFace(i0, i2, i3)
	addFace(i1, i2, i3)

	used := map[int]bool{i0: true, i1: true, i2: true, i3: true}
	for pi := range pts {
		if used[pi] {
			continue
		}
		p := pts[pi]

		// Faces that see p get removed; their boundary is the horizon.
		visible := make([]bool, len(faces))
		any := false
		for fi, f := range faces {
			if r3.Dot(f.n, r3.Sub(p, pts[f.v[0]])) > 1e-10*r3.Norm(f.n) {
				visible[fi] = true
				any = true
			}
		}
		if !any {
			continue // p is inside the current hull
		}

		horizon := map[[2]int]int{} // undirected edge -> count among visible faces
		for fi, f := range faces {
			if !visible[fi] {
				continue
			}
			for e := 0; e < 3; e++ {
				a, b := f.v[e], f.v[(e+1)%3]
				if a > b {
					a, b = b, a
				}
				horizon[[2]int{a, b}]++
			}
		}

		kept := faces[:0]
		for fi, f := range faces {
			if !visible[fi] {
				kept = append(kept, f)
			}
		}
		faces = kept
		for e, count := range horizon {
			if count != 1 {
				continue // interior to the visible region
			}
			n := TriangleNormal(pts[e[0]], pts[e[1]], p)
			a, b := e[0], e[1]
			if r3.Dot(n, r3.Sub(p, inner)) < 0 {
				a, b = b, a
				n = r3.Scale(-1, n)
			}
			faces = append(faces, face{v: [3]int{a, b, pi}, n: n})
		}
	}

	out := make([][3]int, len(faces))
	for i, f := range faces {
		out[i] = f.v
	}
	return out, true
}

// initialTetrahedron picks four affinely independent seed points.
func initialTetrahedron(pts []r3.Vec) (a, b, c, d int, ok bool) {
	a = 0
	b = -1
	for i := 1; i < len(pts); i++ {
		if r3.Norm(r3.Sub(pts[i], pts[a])) > 1e-9 {
			b = i
			break
		}
	}
	if b < 0 {
		return 0, 0, 0, 0, false
	}
	c = -1
	for i := 0; i < len(pts); i++ {
		if i == a || i == b {
			continue
		}
		if TriangleArea(pts[a], pts[b], pts[i]) > 1e-12 {
			c = i
			break
		}
	}
	if c < 0 {
		return 0, 0, 0, 0, false
	}
	n := TriangleNormal(pts[a], pts[b], pts[c])
	d = -1
	for i := 0; i < len(pts); i++ {
		if i == a || i == b || i == c {
			continue
		}
		if math.Abs(r3.Dot(n, r3.Sub(pts[i], pts[a]))) > 1e-10 {
			d = i
			break
		}
	}
	if d < 0 {
		return 0, 0, 0, 0, false
	}
	return a, b, c, d, true
}
