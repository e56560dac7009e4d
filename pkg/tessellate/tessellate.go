// Package tessellate projects a finished solid into the flat-array
// mesh format rendering layers consume. It is the only seam between
// the kernel's plain-data entities and whatever scene graph sits on
// top; nothing here depends on a rendering library.
package tessellate

import (
	"github.com/chewxy/math32"

	"github.com/mmiscool/brep/pkg/brep"
)

// RenderMesh is a triangle mesh suitable for rendering. All arrays are
// flat: Vertices has 3 floats per vertex (x,y,z), Normals has 3 floats
// per vertex, Indices has 3 uint32s per triangle, FaceIDs one id per
// triangle.
type RenderMesh struct {
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	Indices  []uint32  `json:"indices"`
	FaceIDs  []int32   `json:"faceIds"`
	Name     string    `json:"name"`
}

// VertexCount returns the number of vertices.
func (m *RenderMesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *RenderMesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *RenderMesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// ToRenderMesh flattens a solid into render buffers with smooth
// per-vertex normals.
func ToRenderMesh(name string, s *brep.Solid) *RenderMesh {
	m := &RenderMesh{
		Vertices: make([]float32, 0, s.VertexCount()*3),
		Indices:  make([]uint32, 0, s.TriangleCount()*3),
		FaceIDs:  make([]int32, 0, s.TriangleCount()),
		Name:     name,
	}
	for i := 0; i < s.VertexCount(); i++ {
		v := s.Vertex(i)
		m.Vertices = append(m.Vertices, float32(v.X), float32(v.Y), float32(v.Z))
	}
	for t := 0; t < s.TriangleCount(); t++ {
		m.FaceIDs = append(m.FaceIDs, int32(s.TriangleFace(t)))
	}
	m.Indices = append(m.Indices, s.Mesh().Indices...)
	m.Normals = averageNormals(m.Vertices, m.Indices)
	return m
}

// averageNormals generates per-vertex normals by accumulating the
// unnormalized face normal of every incident triangle, then
// normalizing. Vertices shared across faces get smooth shading;
// boundary creases are the renderer's problem.
func averageNormals(vertices []float32, indices []uint32) []float32 {
	normals := make([]float32, len(vertices))

	numTris := len(indices) / 3
	for t := 0; t < numTris; t++ {
		i0 := indices[t*3+0]
		i1 := indices[t*3+1]
		i2 := indices[t*3+2]

		ax, ay, az := vertices[i0*3], vertices[i0*3+1], vertices[i0*3+2]
		bx, by, bz := vertices[i1*3], vertices[i1*3+1], vertices[i1*3+2]
		cx, cy, cz := vertices[i2*3], vertices[i2*3+1], vertices[i2*3+2]

		e1x, e1y, e1z := bx-ax, by-ay, bz-az
		e2x, e2y, e2z := cx-ax, cy-ay, cz-az

		nx := e1y*e2z - e1z*e2y
		ny := e1z*e2x - e1x*e2z
		nz := e1x*e2y - e1y*e2x

		for _, idx := range [3]uint32{i0, i1, i2} {
			normals[idx*3+0] += nx
			normals[idx*3+1] += ny
			normals[idx*3+2] += nz
		}
	}

	numVerts := len(vertices) / 3
	for i := 0; i < numVerts; i++ {
		nx := normals[i*3+0]
		ny := normals[i*3+1]
		nz := normals[i*3+2]
		length := math32.Sqrt(nx*nx + ny*ny + nz*nz)
		if length > 1e-12 {
			normals[i*3+0] = nx / length
			normals[i*3+1] = ny / length
			normals[i*3+2] = nz / length
		}
	}
	return normals
}
