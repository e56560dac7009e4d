package kernel

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

// stubEngine is a placeholder implementation used to pin the Engine
// contract in tests.
type stubEngine struct{}

var _ Engine = (*stubEngine)(nil)

var errStub = errors.New("stub engine")

func (stubEngine) Union(a, b *Mesh) (*Mesh, error)      { return nil, errStub }
func (stubEngine) Difference(a, b *Mesh) (*Mesh, error) { return nil, errStub }
func (stubEngine) Intersect(a, b *Mesh) (*Mesh, error)  { return nil, errStub }
func (stubEngine) IsoSurface(field ScalarField, bounds r3.Box, cell float64) (*Mesh, error) {
	return nil, errStub
}
func (stubEngine) IsManifold(m *Mesh) bool { return false }

func testMesh() *Mesh {
	return &Mesh{
		Vertices: []float64{
			0, 0, 0,
			1, 0, 0,
			0, 1, 0,
			0, 0, 1,
		},
		Indices: []uint32{
			0, 2, 1,
			0, 1, 3,
			1, 2, 3,
			2, 0, 3,
		},
		FaceIDs: []int32{0, 1, 2, 3},
	}
}

func TestMeshAccessors(t *testing.T) {
	m := testMesh()
	if m.VertexCount() != 4 {
		t.Errorf("VertexCount = %d, want 4", m.VertexCount())
	}
	if m.TriangleCount() != 4 {
		t.Errorf("TriangleCount = %d, want 4", m.TriangleCount())
	}
	if m.IsEmpty() {
		t.Error("IsEmpty = true for a populated mesh")
	}
	if got := m.Vertex(3); got != (r3.Vec{Z: 1}) {
		t.Errorf("Vertex(3) = %v, want (0,0,1)", got)
	}
	a, b, c := m.Triangle(1)
	if a != (r3.Vec{}) || b != (r3.Vec{X: 1}) || c != (r3.Vec{Z: 1}) {
		t.Errorf("Triangle(1) = %v %v %v", a, b, c)
	}
}

func TestMeshFaceIDs(t *testing.T) {
	m := testMesh()
	if got := m.FaceID(2); got != 2 {
		t.Errorf("FaceID(2) = %d, want 2", got)
	}
	m.FaceIDs = nil
	if got := m.FaceID(2); got != -1 {
		t.Errorf("FaceID without channel = %d, want -1", got)
	}
}

func TestEmptyMesh(t *testing.T) {
	m := &Mesh{}
	if !m.IsEmpty() {
		t.Error("IsEmpty = false for the zero mesh")
	}
	if m.VertexCount() != 0 || m.TriangleCount() != 0 {
		t.Error("zero mesh reported geometry")
	}
}
