package spatial

import (
	"math"

	"github.com/dhconnelly/rtreego"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mmiscool/brep/pkg/geom"
)

// parityDir is the fixed ray direction for inside/outside tests,
// slightly irrational per axis so axis-aligned geometry does not land
// rays on edges.
var parityDir = r3.Unit(r3.Vec{X: 0.577215, Y: 0.618034, Z: 0.539734})

// nearestCandidates bounds the R-tree candidate refinement.
const nearestCandidates = 16

// indexedTriangle is one source triangle in the R-tree.
type indexedTriangle struct {
	a, b, c r3.Vec
	n       r3.Vec // unit normal
	face    int    // source face id
	rect    rtreego.Rect
}

var _ rtreego.Spatial = (*indexedTriangle)(nil)

func (t *indexedTriangle) Bounds() rtreego.Rect { return t.rect }

func triangleRect(a, b, c r3.Vec) (rtreego.Rect, bool) {
	min := r3.Vec{
		X: math.Min(a.X, math.Min(b.X, c.X)),
		Y: math.Min(a.Y, math.Min(b.Y, c.Y)),
		Z: math.Min(a.Z, math.Min(b.Z, c.Z)),
	}
	max := r3.Vec{
		X: math.Max(a.X, math.Max(b.X, c.X)),
		Y: math.Max(a.Y, math.Max(b.Y, c.Y)),
		Z: math.Max(a.Z, math.Max(b.Z, c.Z)),
	}
	const pad = 1e-9 // rtreego rejects zero-extent rects
	rect, err := rtreego.NewRect(
		rtreego.Point{min.X - pad, min.Y - pad, min.Z - pad},
		[]float64{max.X - min.X + 2*pad, max.Y - min.Y + 2*pad, max.Z - min.Z + 2*pad},
	)
	if err != nil {
		return rtreego.Rect{}, false
	}
	return rect, true
}

// TriangleIndex is a bounding-volume hierarchy (R-tree) over one
// solid's triangles with distance and ray-parity queries.
type TriangleIndex struct {
	tree   *rtreego.Rtree
	tris   []indexedTriangle
	bounds r3.Box
	diag   float64
}

// TriangleSource yields the triangles to index. It matches the shape
// of brep.Solid without importing it.
type TriangleSource interface {
	TriangleCount() int
	Triangle(t int) (a, b, c r3.Vec)
	TriangleFace(t int) int
	BoundingBox() r3.Box
}

// NewTriangleIndex builds the R-tree over every triangle of src.
func NewTriangleIndex(src TriangleSource) *TriangleIndex {
	n := src.TriangleCount()
	ix := &TriangleIndex{
		tris:   make([]indexedTriangle, 0, n),
		bounds: src.BoundingBox(),
	}
	ix.diag = r3.Norm(r3.Sub(ix.bounds.Max, ix.bounds.Min))
	spatials := make([]rtreego.Spatial, 0, n)
	for t := 0; t < n; t++ {
		a, b, c := src.Triangle(t)
		un, ok := geom.SafeUnit(geom.TriangleNormal(a, b, c))
		if !ok {
			continue
		}
		rect, ok := triangleRect(a, b, c)
		if !ok {
			continue
		}
		ix.tris = append(ix.tris, indexedTriangle{a: a, b: b, c: c, n: un, face: src.TriangleFace(t), rect: rect})
	}
	for i := range ix.tris {
		spatials = append(spatials, &ix.tris[i])
	}
	ix.tree = rtreego.NewTree(3, 8, 24, spatials...)
	return ix
}

// Len returns the number of indexed triangles.
func (ix *TriangleIndex) Len() int { return len(ix.tris) }

// Bounds returns the source bounding box.
func (ix *TriangleIndex) Bounds() r3.Box { return ix.bounds }

// Nearest returns the surface point closest to p, the unit normal and
// face id of the owning triangle, and the distance. R-tree neighbors
// are refined with exact point-to-triangle distances.
func (ix *TriangleIndex) Nearest(p r3.Vec) (on, normal r3.Vec, face int, dist float64) {
	if len(ix.tris) == 0 {
		return r3.Vec{}, r3.Vec{}, -1, math.Inf(1)
	}
	cands := ix.tree.NearestNeighbors(nearestCandidates, rtreego.Point{p.X, p.Y, p.Z})
	best := math.Inf(1)
	face = -1
	for _, c := range cands {
		tri := c.(*indexedTriangle)
		q := geom.ClosestOnTriangle(p, tri.a, tri.b, tri.c)
		if d := r3.Norm(r3.Sub(p, q)); d < best {
			best = d
			on = q
			normal = tri.n
			face = tri.face
		}
	}
	return on, normal, face, best
}

// RayHits counts forward intersections of the ray from p along dir
// with the indexed surface.
func (ix *TriangleIndex) RayHits(p, dir r3.Vec) int {
	length := ix.diag * 2
	if length == 0 {
		return 0
	}
	end := r3.Add(p, r3.Scale(length, dir))
	min := r3.Vec{X: math.Min(p.X, end.X), Y: math.Min(p.Y, end.Y), Z: math.Min(p.Z, end.Z)}
	max := r3.Vec{X: math.Max(p.X, end.X), Y: math.Max(p.Y, end.Y), Z: math.Max(p.Z, end.Z)}
	rect, err := rtreego.NewRect(
		rtreego.Point{min.X, min.Y, min.Z},
		[]float64{max.X - min.X + 1e-9, max.Y - min.Y + 1e-9, max.Z - min.Z + 1e-9},
	)
	if err != nil {
		return 0
	}
	hits := 0
	for _, c := range ix.tree.SearchIntersect(rect) {
		tri := c.(*indexedTriangle)
		if _, ok := geom.RayTriangle(p, dir, tri.a, tri.b, tri.c); ok {
			hits++
		}
	}
	return hits
}

// FirstRayHit returns the face id of the nearest triangle hit by the
// ray from p along dir, or ok=false when nothing is hit.
func (ix *TriangleIndex) FirstRayHit(p, dir r3.Vec) (face int, dist float64, ok bool) {
	length := ix.diag * 2
	if length == 0 {
		return -1, 0, false
	}
	end := r3.Add(p, r3.Scale(length, dir))
	min := r3.Vec{X: math.Min(p.X, end.X), Y: math.Min(p.Y, end.Y), Z: math.Min(p.Z, end.Z)}
	max := r3.Vec{X: math.Max(p.X, end.X), Y: math.Max(p.Y, end.Y), Z: math.Max(p.Z, end.Z)}
	rect, err := rtreego.NewRect(
		rtreego.Point{min.X, min.Y, min.Z},
		[]float64{max.X - min.X + 1e-9, max.Y - min.Y + 1e-9, max.Z - min.Z + 1e-9},
	)
	if err != nil {
		return -1, 0, false
	}
	best := math.Inf(1)
	face = -1
	for _, c := range ix.tree.SearchIntersect(rect) {
		tri := c.(*indexedTriangle)
		if t, hit := geom.RayTriangle(p, dir, tri.a, tri.b, tri.c); hit && t < best {
			best = t
			face = tri.face
		}
	}
	return face, best, face >= 0
}

// Inside reports whether p is inside the surface by odd ray parity.
func (ix *TriangleIndex) Inside(p r3.Vec) bool {
	return ix.RayHits(p, parityDir)%2 == 1
}

// SignedDistance returns the distance from p to the surface, negative
// inside.
func (ix *TriangleIndex) SignedDistance(p r3.Vec) float64 {
	_, _, _, d := ix.Nearest(p)
	if ix.Inside(p) {
		return -d
	}
	return d
}
