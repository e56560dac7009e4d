// Package brep holds the mutable triangle-soup solid used by the
// feature builders, together with the plain-data face/edge records
// consumed from the scene layer and the manifold-repair toolkit that
// every builder runs before handing a mesh to the boolean engine.
//
// A Solid is created empty by a builder, mutated only through
// AddTriangle while geometry is authored, repaired, and then treated
// as immutable input to the engine. Builders never mutate a Solid
// after returning it.
package brep

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mmiscool/brep/pkg/kernel"
)

// Metadata is an open attribute set attached to a face label. It
// carries analytic-surface hints (cylindrical radius/axis/center and
// the like) through boolean composition.
type Metadata map[string]any

// AuxEdge is a named reference curve (for example a fillet centerline)
// carried for downstream consumers. It plays no part in triangulation.
type AuxEdge struct {
	Name   string
	Points []r3.Vec
}

// Solid is the canonical triangle-soup container. Vertices are
// deduplicated by exact coordinate key on insertion; near-coincident
// vertices are merged later by epsilon welding.
type Solid struct {
	vertices  []r3.Vec
	triangles [][3]int
	faceID    []int // per-triangle face identifier

	idToName map[int]string
	nameToID map[string]int
	nextID   int

	faceMetadata map[string]Metadata
	auxEdges     []AuxEdge

	lookup map[[3]float64]int // exact-coordinate vertex reuse
}

// NewSolid returns an empty solid.
func NewSolid() *Solid {
	return &Solid{
		idToName:     map[int]string{},
		nameToID:     map[string]int{},
		faceMetadata: map[string]Metadata{},
		lookup:       map[[3]float64]int{},
	}
}

// FaceID returns the stable integer id for label, assigning the next
// id on first use.
func (s *Solid) FaceID(label string) int {
	if id, ok := s.nameToID[label]; ok {
		return id
	}
	id := s.nextID
	s.nextID++
	s.nameToID[label] = id
	s.idToName[id] = label
	return id
}

// FaceName returns the label for a face id, or "" if unassigned.
func (s *Solid) FaceName(id int) string { return s.idToName[id] }

// FaceLabels returns every label that owns at least one triangle, in
// face-id order.
func (s *Solid) FaceLabels() []string {
	seen := map[int]bool{}
	for _, id := range s.faceID {
		seen[id] = true
	}
	labels := make([]string, 0, len(seen))
	for id := 0; id < s.nextID; id++ {
		if seen[id] {
			labels = append(labels, s.idToName[id])
		}
	}
	return labels
}

func (s *Solid) vertexIndex(p r3.Vec) int {
	key := [3]float64{p.X, p.Y, p.Z}
	if i, ok := s.lookup[key]; ok {
		return i
	}
	i := len(s.vertices)
	s.vertices = append(s.vertices, p)
	s.lookup[key] = i
	return i
}

// AddTriangle appends a triangle to the face named label, reusing
// vertices that match an existing coordinate exactly.
func (s *Solid) AddTriangle(label string, p0, p1, p2 r3.Vec) {
	id := s.FaceID(label)
	s.triangles = append(s.triangles, [3]int{
		s.vertexIndex(p0), s.vertexIndex(p1), s.vertexIndex(p2),
	})
	s.faceID = append(s.faceID, id)
}

// SetFaceMetadata attaches an attribute set to a face label.
func (s *Solid) SetFaceMetadata(label string, attrs Metadata) {
	s.faceMetadata[label] = attrs
}

// FaceMetadata returns the attribute set for label, or nil.
func (s *Solid) FaceMetadata(label string) Metadata {
	return s.faceMetadata[label]
}

// FaceMetadataTable returns a copy of the full label→metadata map.
func (s *Solid) FaceMetadataTable() map[string]Metadata {
	out := make(map[string]Metadata, len(s.faceMetadata))
	for k, v := range s.faceMetadata {
		out[k] = v
	}
	return out
}

// AddAuxEdge records a named reference curve.
func (s *Solid) AddAuxEdge(name string, pts []r3.Vec) {
	s.auxEdges = append(s.auxEdges, AuxEdge{Name: name, Points: append([]r3.Vec(nil), pts...)})
}

// AuxEdges returns the recorded reference curves.
func (s *Solid) AuxEdges() []AuxEdge { return s.auxEdges }

// VertexCount returns the number of distinct vertices.
func (s *Solid) VertexCount() int { return len(s.vertices) }

// TriangleCount returns the number of triangles.
func (s *Solid) TriangleCount() int { return len(s.triangles) }

// Vertex returns vertex i.
func (s *Solid) Vertex(i int) r3.Vec { return s.vertices[i] }

// Triangle returns the vertex positions of triangle t.
func (s *Solid) Triangle(t int) (a, b, c r3.Vec) {
	tri := s.triangles[t]
	return s.vertices[tri[0]], s.vertices[tri[1]], s.vertices[tri[2]]
}

// TriangleFace returns the face id of triangle t.
func (s *Solid) TriangleFace(t int) int { return s.faceID[t] }

// GetFace returns the triangles of the face named label, as vertex
// position triples in world coordinates.
func (s *Solid) GetFace(label string) [][3]r3.Vec {
	id, ok := s.nameToID[label]
	if !ok {
		return nil
	}
	var out [][3]r3.Vec
	for t, fid := range s.faceID {
		if fid != id {
			continue
		}
		a, b, c := s.Triangle(t)
		out = append(out, [3]r3.Vec{a, b, c})
	}
	return out
}

// Clone returns a deep copy of the solid.
func (s *Solid) Clone() *Solid {
	c := NewSolid()
	c.vertices = append([]r3.Vec(nil), s.vertices...)
	c.triangles = append([][3]int(nil), s.triangles...)
	c.faceID = append([]int(nil), s.faceID...)
	c.nextID = s.nextID
	for id, name := range s.idToName {
		c.idToName[id] = name
		c.nameToID[name] = id
	}
	for label, md := range s.faceMetadata {
		attrs := make(Metadata, len(md))
		for k, v := range md {
			attrs[k] = v
		}
		c.faceMetadata[label] = attrs
	}
	for _, e := range s.auxEdges {
		c.auxEdges = append(c.auxEdges, AuxEdge{Name: e.Name, Points: append([]r3.Vec(nil), e.Points...)})
	}
	for k, v := range s.lookup {
		c.lookup[k] = v
	}
	return c
}

// BoundingBox returns the axis-aligned bounding box of the solid.
func (s *Solid) BoundingBox() r3.Box {
	if len(s.vertices) == 0 {
		return r3.Box{}
	}
	box := r3.Box{Min: s.vertices[0], Max: s.vertices[0]}
	for _, v := range s.vertices[1:] {
		box.Min.X = math.Min(box.Min.X, v.X)
		box.Min.Y = math.Min(box.Min.Y, v.Y)
		box.Min.Z = math.Min(box.Min.Z, v.Z)
		box.Max.X = math.Max(box.Max.X, v.X)
		box.Max.Y = math.Max(box.Max.Y, v.Y)
		box.Max.Z = math.Max(box.Max.Z, v.Z)
	}
	return box
}

// SignedVolume returns the signed enclosed volume of the mesh.
// Positive means outward-facing normals on a closed mesh.
func (s *Solid) SignedVolume() float64 {
	var vol float64
	for _, tri := range s.triangles {
		a, b, c := s.vertices[tri[0]], s.vertices[tri[1]], s.vertices[tri[2]]
		vol += r3.Dot(a, r3.Cross(b, c))
	}
	return vol / 6
}

// Mesh flattens the solid into the engine exchange format, including
// the per-triangle face-id channel.
func (s *Solid) Mesh() *kernel.Mesh {
	m := &kernel.Mesh{
		Vertices: make([]float64, 0, len(s.vertices)*3),
		Indices:  make([]uint32, 0, len(s.triangles)*3),
		FaceIDs:  make([]int32, 0, len(s.triangles)),
	}
	for _, v := range s.vertices {
		m.Vertices = append(m.Vertices, v.X, v.Y, v.Z)
	}
	for t, tri := range s.triangles {
		m.Indices = append(m.Indices, uint32(tri[0]), uint32(tri[1]), uint32(tri[2]))
		m.FaceIDs = append(m.FaceIDs, int32(s.faceID[t]))
	}
	return m
}

// FromMesh rebuilds a solid from an engine mesh. names maps face ids
// in the mesh back to labels; triangles with unknown or missing ids
// land on fallbackLabel.
func FromMesh(m *kernel.Mesh, names map[int32]string, fallbackLabel string) *Solid {
	s := NewSolid()
	for t := 0; t < m.TriangleCount(); t++ {
		label := fallbackLabel
		if id := m.FaceID(t); id >= 0 {
			if name, ok := names[id]; ok {
				label = name
			}
		}
		a, b, c := m.Triangle(t)
		s.AddTriangle(label, a, b, c)
	}
	return s
}

// FaceTable returns the id→label mapping for every face id in use.
func (s *Solid) FaceTable() map[int32]string {
	out := make(map[int32]string, len(s.idToName))
	for id, name := range s.idToName {
		out[int32(id)] = name
	}
	return out
}

// rebuildLookup refreshes the exact-coordinate vertex map after any
// repair step that moved or removed vertices.
func (s *Solid) rebuildLookup() {
	s.lookup = make(map[[3]float64]int, len(s.vertices))
	for i, v := range s.vertices {
		s.lookup[[3]float64{v.X, v.Y, v.Z}] = i
	}
}
