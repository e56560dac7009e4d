package brep

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mmiscool/brep/pkg/geom"
)

// Plain-data topology records consumed from the scene/feature layer.
// They deliberately carry no rendering or scene-graph baggage; a thin
// adapter on the rendering side projects them as needed.

// Circle is optional analytic metadata for a circular or arc boundary.
type Circle struct {
	Center r3.Vec
	Radius float64
}

// Loop is an ordered boundary polyline of a face. Hole loops wind
// opposite to the outer loop.
type Loop struct {
	Points []r3.Vec
	IsHole bool
}

// Face is a logical surface: its world-space triangles, boundary
// description and edge adjacency.
type Face struct {
	Name      string
	Triangles [][3]r3.Vec
	Normal    r3.Vec  // average normal; computed lazily when zero
	Loops     []Loop  // outer/hole loops when the scene layer has them
	Edges     []*Edge // boundary edges, fallback when Loops is empty
	Circle    *Circle // analytic hint for cylindrical faces
}

// Edge is a boundary curve shared between faces.
type Edge struct {
	Name   string
	Points []r3.Vec // ordered polyline in world coordinates
	Closed bool
	Faces  []*Face
	Circle *Circle
}

// AverageNormal returns the stored normal, or the area-weighted mean
// of the face's triangle normals when none was provided.
func (f *Face) AverageNormal() (r3.Vec, bool) {
	if n, ok := geom.SafeUnit(f.Normal); ok {
		return n, true
	}
	var sum r3.Vec
	for _, tri := range f.Triangles {
		sum = r3.Add(sum, geom.TriangleNormal(tri[0], tri[1], tri[2]))
	}
	return geom.SafeUnit(sum)
}

// SegmentCount returns the number of polyline segments on the edge.
func (e *Edge) SegmentCount() int {
	n := len(e.Points)
	if n < 2 {
		return 0
	}
	if e.IsClosed() {
		return n
	}
	return n - 1
}

// IsClosed reports whether the edge forms a loop, either by flag or by
// coincident endpoints.
func (e *Edge) IsClosed() bool {
	if e.Closed {
		return true
	}
	n := len(e.Points)
	if n < 3 {
		return false
	}
	return r3.Norm(r3.Sub(e.Points[0], e.Points[n-1])) < 1e-9
}

// OtherFace returns the face adjacent across the edge from f, or nil.
func (e *Edge) OtherFace(f *Face) *Face {
	for _, g := range e.Faces {
		if g != f {
			return g
		}
	}
	return nil
}
