package kernel

import "gonum.org/v1/gonum/spatial/r3"

// Mesh is the flat-buffer triangle mesh exchanged with the engine.
// Vertices has 3 float64s per vertex (x,y,z), Indices has 3 uint32s
// per triangle, FaceIDs optionally carries one face identifier per
// triangle so face identity survives boolean composition.
type Mesh struct {
	Vertices []float64
	Indices  []uint32
	FaceIDs  []int32
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// Vertex returns vertex i as a vector.
func (m *Mesh) Vertex(i int) r3.Vec {
	return r3.Vec{X: m.Vertices[i*3], Y: m.Vertices[i*3+1], Z: m.Vertices[i*3+2]}
}

// Triangle returns the three vertex positions of triangle t.
func (m *Mesh) Triangle(t int) (a, b, c r3.Vec) {
	return m.Vertex(int(m.Indices[t*3])),
		m.Vertex(int(m.Indices[t*3+1])),
		m.Vertex(int(m.Indices[t*3+2]))
}

// FaceID returns the face identifier of triangle t, or -1 when the
// mesh carries no face-id channel.
func (m *Mesh) FaceID(t int) int32 {
	if len(m.FaceIDs) == 0 {
		return -1
	}
	return m.FaceIDs[t]
}
