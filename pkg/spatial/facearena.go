// Package spatial provides the query structures the builders lean on:
// an arena of immutable per-face triangle buckets with nearest-point
// kd-trees (fillet section solving), and an R-tree over a whole solid
// with signed-distance and ray-parity queries (shell offsetting).
// Both are built once per builder invocation and passed by reference;
// nothing here is safe for concurrent use.
package spatial

import (
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mmiscool/brep/pkg/geom"
)

// faceTriangle is a kd-tree element: a triangle compared by centroid,
// measured by exact point-to-triangle distance. A faceTriangle with no
// geometry (isPoint) stands in for a query point. The closest point of
// the last Distance call is cached on the element, valid until the
// next query on the same bucket.
type faceTriangle struct {
	a, b, c r3.Vec
	cen     r3.Vec
	n       r3.Vec // unit normal
	isPoint bool

	lastClosest r3.Vec
}

var (
	_ kdtree.Comparable = (*faceTriangle)(nil)
	_ kdtree.Interface  = (*triangleSet)(nil)
)

func (t *faceTriangle) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(*faceTriangle)
	switch d {
	case 0:
		return t.cen.X - q.cen.X
	case 1:
		return t.cen.Y - q.cen.Y
	case 2:
		return t.cen.Z - q.cen.Z
	}
	panic("spatial: bad dimension")
}

func (t *faceTriangle) Dims() int { return 3 }

func (t *faceTriangle) Distance(c kdtree.Comparable) float64 {
	q := c.(*faceTriangle)
	if t.isPoint {
		if q.isPoint {
			return r3.Norm2(r3.Sub(t.cen, q.cen))
		}
		t, q = q, t // measure against the triangle side
	}
	t.lastClosest = geom.ClosestOnTriangle(q.cen, t.a, t.b, t.c)
	return r3.Norm2(r3.Sub(q.cen, t.lastClosest))
}

// triangleSet adapts a triangle slice to kdtree.Interface.
type triangleSet []faceTriangle

func (s triangleSet) Index(i int) kdtree.Comparable { return &s[i] }
func (s triangleSet) Len() int                      { return len(s) }
func (s triangleSet) Slice(start, end int) kdtree.Interface {
	return s[start:end]
}
func (s triangleSet) Pivot(d kdtree.Dim) int {
	p := triPlane{dim: int(d), set: s}
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}

// triPlane sorts a triangleSet along one centroid axis for Pivot.
type triPlane struct {
	dim int
	set triangleSet
}

func (p triPlane) Less(i, j int) bool {
	a, b := p.set[i].cen, p.set[j].cen
	switch p.dim {
	case 0:
		return a.X < b.X
	case 1:
		return a.Y < b.Y
	}
	return a.Z < b.Z
}
func (p triPlane) Swap(i, j int)                 { p.set[i], p.set[j] = p.set[j], p.set[i] }
func (p triPlane) Len() int                      { return len(p.set) }
func (p triPlane) Slice(s, e int) kdtree.SortSlicer { p.set = p.set[s:e]; return p }

// FaceBucket is an immutable triangle bucket for one face with a
// centroid kd-tree for nearest-point queries.
type FaceBucket struct {
	Name string
	set  triangleSet
	tree *kdtree.Tree
}

// NewFaceBucket indexes the given world-space triangles.
func NewFaceBucket(name string, tris [][3]r3.Vec) *FaceBucket {
	set := make(triangleSet, 0, len(tris))
	for _, tri := range tris {
		n, ok := geom.SafeUnit(geom.TriangleNormal(tri[0], tri[1], tri[2]))
		if !ok {
			continue // zero-area source triangle
		}
		set = append(set, faceTriangle{
			a:   tri[0],
			b:   tri[1],
			c:   tri[2],
			cen: r3.Scale(1.0/3.0, r3.Add(tri[0], r3.Add(tri[1], tri[2]))),
			n:   n,
		})
	}
	b := &FaceBucket{Name: name, set: set}
	if len(set) > 0 {
		b.tree = kdtree.New(set, true)
	}
	return b
}

// Len returns the number of indexed triangles.
func (b *FaceBucket) Len() int { return len(b.set) }

// NearestPoint returns the point on the face closest to p and the unit
// normal of the owning triangle.
func (b *FaceBucket) NearestPoint(p r3.Vec) (on, normal r3.Vec, ok bool) {
	if b.tree == nil {
		return r3.Vec{}, r3.Vec{}, false
	}
	got, _ := b.tree.Nearest(&faceTriangle{cen: p, isPoint: true})
	tri := got.(*faceTriangle)
	return tri.lastClosest, tri.n, true
}

// NearestNormal returns the unit normal of the face triangle nearest
// to p.
func (b *FaceBucket) NearestNormal(p r3.Vec) (r3.Vec, bool) {
	_, n, ok := b.NearestPoint(p)
	return n, ok
}

// FaceArena owns the per-face buckets for one builder invocation.
type FaceArena struct {
	buckets map[string]*FaceBucket
}

// NewFaceArena returns an empty arena.
func NewFaceArena() *FaceArena {
	return &FaceArena{buckets: map[string]*FaceBucket{}}
}

// AddFace indexes a face's triangles under its name. Re-adding a name
// replaces the bucket.
func (a *FaceArena) AddFace(name string, tris [][3]r3.Vec) *FaceBucket {
	b := NewFaceBucket(name, tris)
	a.buckets[name] = b
	return b
}

// Bucket returns the bucket for name, or nil.
func (a *FaceArena) Bucket(name string) *FaceBucket { return a.buckets[name] }
