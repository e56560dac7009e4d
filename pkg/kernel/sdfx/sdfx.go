// Package sdfx implements the kernel.Engine contract on the
// github.com/deadsy/sdfx SDF CAD library. Incoming meshes are lifted
// to signed-distance fields through an R-tree nearest-surface query
// with ray-parity sign; booleans compose the fields and the result is
// re-meshed by marching cubes. It stands in for a native boolean
// engine (Manifold) behind the same interface.
package sdfx

import (
	"errors"
	"fmt"
	"math"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mmiscool/brep/pkg/kernel"
	"github.com/mmiscool/brep/pkg/spatial"
)

// Compile-time interface check.
var _ kernel.Engine = (*Engine)(nil)

// defaultMeshCells controls marching cubes resolution along the
// longest bounding-box axis for boolean results.
const defaultMeshCells = 200

// Engine is the sdfx-backed boolean/level-set engine.
type Engine struct {
	// MeshCells overrides the boolean re-meshing resolution.
	MeshCells int
}

// New returns an Engine with default resolution.
func New() *Engine {
	return &Engine{MeshCells: defaultMeshCells}
}

// meshSource adapts a kernel.Mesh to spatial.TriangleSource.
type meshSource struct {
	m *kernel.Mesh
}

func (s meshSource) TriangleCount() int { return s.m.TriangleCount() }
func (s meshSource) Triangle(t int) (a, b, c r3.Vec) {
	return s.m.Triangle(t)
}
func (s meshSource) TriangleFace(t int) int { return int(s.m.FaceID(t)) }
func (s meshSource) BoundingBox() r3.Box {
	box := r3.Box{
		Min: r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)},
		Max: r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)},
	}
	for i := 0; i < s.m.VertexCount(); i++ {
		v := s.m.Vertex(i)
		box.Min.X = math.Min(box.Min.X, v.X)
		box.Min.Y = math.Min(box.Min.Y, v.Y)
		box.Min.Z = math.Min(box.Min.Z, v.Z)
		box.Max.X = math.Max(box.Max.X, v.X)
		box.Max.Y = math.Max(box.Max.Y, v.Y)
		box.Max.Z = math.Max(box.Max.Z, v.Z)
	}
	return box
}

// meshSDF exposes an indexed mesh as an sdf.SDF3.
type meshSDF struct {
	ix *spatial.TriangleIndex
	bb sdf.Box3
}

func (s *meshSDF) Evaluate(p v3.Vec) float64 {
	return s.ix.SignedDistance(r3.Vec{X: p.X, Y: p.Y, Z: p.Z})
}

func (s *meshSDF) BoundingBox() sdf.Box3 { return s.bb }

func toBox3(b r3.Box, pad float64) sdf.Box3 {
	return sdf.Box3{
		Min: v3.Vec{X: b.Min.X - pad, Y: b.Min.Y - pad, Z: b.Min.Z - pad},
		Max: v3.Vec{X: b.Max.X + pad, Y: b.Max.Y + pad, Z: b.Max.Z + pad},
	}
}

func importMesh(m *kernel.Mesh) (*meshSDF, error) {
	if m == nil || m.IsEmpty() {
		return nil, errors.New("sdfx: empty mesh")
	}
	ix := spatial.NewTriangleIndex(meshSource{m})
	if ix.Len() == 0 {
		return nil, errors.New("sdfx: mesh has no usable triangles")
	}
	bounds := ix.Bounds()
	diag := r3.Norm(r3.Sub(bounds.Max, bounds.Min))
	return &meshSDF{ix: ix, bb: toBox3(bounds, diag*0.05+1e-6)}, nil
}

// fieldSDF exposes a kernel.ScalarField as an sdf.SDF3.
type fieldSDF struct {
	f  kernel.ScalarField
	bb sdf.Box3
}

func (s *fieldSDF) Evaluate(p v3.Vec) float64 {
	return s.f(r3.Vec{X: p.X, Y: p.Y, Z: p.Z})
}

func (s *fieldSDF) BoundingBox() sdf.Box3 { return s.bb }

// extract runs marching cubes and rebuilds a shared-vertex flat mesh.
func extract(s sdf.SDF3, cells int) *kernel.Mesh {
	if cells < 16 {
		cells = 16
	}
	renderer := render.NewMarchingCubesUniform(cells)
	triangles := render.ToTriangles(s, renderer)

	out := &kernel.Mesh{}
	lookup := map[[3]float64]uint32{}
	for _, tri := range triangles {
		var idx [3]uint32
		degen := false
		for j := 0; j < 3; j++ {
			v := tri[j]
			key := [3]float64{v.X, v.Y, v.Z}
			i, ok := lookup[key]
			if !ok {
				i = uint32(len(out.Vertices) / 3)
				lookup[key] = i
				out.Vertices = append(out.Vertices, v.X, v.Y, v.Z)
			}
			idx[j] = i
		}
		if idx[0] == idx[1] || idx[1] == idx[2] || idx[0] == idx[2] {
			degen = true
		}
		if degen {
			continue
		}
		out.Indices = append(out.Indices, idx[0], idx[1], idx[2])
	}
	return out
}

func (e *Engine) cells() int {
	if e.MeshCells > 0 {
		return e.MeshCells
	}
	return defaultMeshCells
}

type combineOp func(a, b sdf.SDF3) sdf.SDF3

func (e *Engine) combine(a, b *kernel.Mesh, op combineOp, opName string) (*kernel.Mesh, error) {
	sa, err := importMesh(a)
	if err != nil {
		return nil, fmt.Errorf("sdfx %s: left operand: %w", opName, err)
	}
	sb, err := importMesh(b)
	if err != nil {
		return nil, fmt.Errorf("sdfx %s: right operand: %w", opName, err)
	}
	out := extract(op(sa, sb), e.cells())

	// Recover face identity: each output triangle inherits the face id
	// of whichever input surface its centroid is nearest to.
	if len(a.FaceIDs) > 0 || len(b.FaceIDs) > 0 {
		out.FaceIDs = make([]int32, out.TriangleCount())
		for t := 0; t < out.TriangleCount(); t++ {
			p0, p1, p2 := out.Triangle(t)
			cen := r3.Scale(1.0/3.0, r3.Add(p0, r3.Add(p1, p2)))
			_, _, fa, da := sa.ix.Nearest(cen)
			_, _, fb, db := sb.ix.Nearest(cen)
			if da <= db {
				out.FaceIDs[t] = int32(fa)
			} else {
				out.FaceIDs[t] = int32(fb)
			}
		}
	}
	return out, nil
}

// Union returns the boolean union of two meshes.
func (e *Engine) Union(a, b *kernel.Mesh) (*kernel.Mesh, error) {
	return e.combine(a, b, func(x, y sdf.SDF3) sdf.SDF3 { return sdf.Union3D(x, y) }, "union")
}

// Difference returns a minus b.
func (e *Engine) Difference(a, b *kernel.Mesh) (*kernel.Mesh, error) {
	return e.combine(a, b, func(x, y sdf.SDF3) sdf.SDF3 { return sdf.Difference3D(x, y) }, "difference")
}

// Intersect returns the boolean intersection of two meshes.
func (e *Engine) Intersect(a, b *kernel.Mesh) (*kernel.Mesh, error) {
	return e.combine(a, b, func(x, y sdf.SDF3) sdf.SDF3 { return sdf.Intersect3D(x, y) }, "intersect")
}

// IsoSurface extracts the zero level set of field over bounds at
// roughly the requested cell edge length.
func (e *Engine) IsoSurface(field kernel.ScalarField, bounds r3.Box, cell float64) (*kernel.Mesh, error) {
	size := r3.Sub(bounds.Max, bounds.Min)
	maxDim := math.Max(size.X, math.Max(size.Y, size.Z))
	if maxDim <= 0 {
		return nil, errors.New("sdfx: iso-surface bounds are degenerate")
	}
	if cell <= 0 || math.IsNaN(cell) {
		return nil, fmt.Errorf("sdfx: invalid iso-surface cell length %v", cell)
	}
	cells := int(maxDim/cell + 0.5)
	if cells < 16 {
		cells = 16
	}
	if cells > 512 {
		cells = 512
	}
	s := &fieldSDF{f: field, bb: toBox3(bounds, 0)}
	return extract(s, cells), nil
}

// IsManifold probes the mesh the way a native engine's input
// validation would: every undirected edge on exactly two triangles,
// and every directed edge used exactly once (coherent winding).
func (e *Engine) IsManifold(m *kernel.Mesh) bool {
	if m == nil || m.TriangleCount() == 0 {
		return false
	}
	undirected := map[[2]uint32]int{}
	directed := map[[2]uint32]int{}
	for t := 0; t < m.TriangleCount(); t++ {
		for j := 0; j < 3; j++ {
			a := m.Indices[t*3+j]
			b := m.Indices[t*3+(j+1)%3]
			directed[[2]uint32{a, b}]++
			if a > b {
				a, b = b, a
			}
			undirected[[2]uint32{a, b}]++
		}
	}
	for _, n := range undirected {
		if n != 2 {
			return false
		}
	}
	for _, n := range directed {
		if n != 1 {
			return false
		}
	}
	return true
}
