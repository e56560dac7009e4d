package brep

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

// addTetrahedron authors a small outward-wound tetrahedron at origin o
// with leg length size. inverted flips every winding.
func addTetrahedron(s *Solid, label string, o r3.Vec, size float64, inverted bool) {
	t0 := o
	t1 := r3.Add(o, r3.Vec{X: size})
	t2 := r3.Add(o, r3.Vec{Y: size})
	t3 := r3.Add(o, r3.Vec{Z: size})
	add := func(a, b, c r3.Vec) {
		if inverted {
			b, c = c, b
		}
		s.AddTriangle(label, a, b, c)
	}
	add(t0, t2, t1)
	add(t0, t1, t3)
	add(t1, t2, t3)
	add(t2, t0, t3)
}

func TestIsTwoManifold(t *testing.T) {
	s := NewSolid()
	addUnitCube(s)
	if !s.IsTwoManifold() {
		t.Fatalf("closed cube reported non-manifold: %v", s.NonManifoldEdges())
	}

	// Punch a hole: the three edges of the removed triangle drop to
	// incidence one.
	s.removeTriangles(map[int]bool{0: true})
	if s.IsTwoManifold() {
		t.Fatal("cube with a missing triangle reported manifold")
	}
	if bad := s.NonManifoldEdges(); len(bad) != 3 {
		t.Errorf("NonManifoldEdges = %d edges, want 3", len(bad))
	}
}

func TestWeldVerticesByEpsilon(t *testing.T) {
	s := NewSolid()
	addUnitCube(s)
	// Nudge one corner's triangles apart so exact-coordinate reuse no
	// longer applies there.
	jitter := r3.Vec{X: 1 + 4e-7, Y: 1 + 4e-7, Z: 1 - 4e-7}
	s.AddTriangle("PATCH", jitter, r3.Vec{X: 2, Y: 1, Z: 1}, r3.Vec{X: 1, Y: 2, Z: 1})

	before := s.VertexCount()
	merged := s.WeldVerticesByEpsilon(1e-5)
	if merged != 1 {
		t.Fatalf("first weld merged %d vertices, want 1", merged)
	}
	if s.VertexCount() != before-1 {
		t.Errorf("VertexCount = %d, want %d", s.VertexCount(), before-1)
	}

	// Idempotence: a second weld at the same epsilon finds nothing.
	if again := s.WeldVerticesByEpsilon(1e-5); again != 0 {
		t.Errorf("second weld merged %d vertices, want 0", again)
	}

	if got := s.WeldVerticesByEpsilon(0); got != 0 {
		t.Errorf("weld with zero epsilon merged %d, want 0", got)
	}
}

func TestWeldCollapsesSlivers(t *testing.T) {
	s := NewSolid()
	s.AddTriangle("F", r3.Vec{}, r3.Vec{X: 1e-7}, r3.Vec{X: 1, Y: 1})
	if s.WeldVerticesByEpsilon(1e-5) != 1 {
		t.Fatal("expected the two near-coincident vertices to merge")
	}
	// The triangle collapsed onto two distinct vertices and is gone.
	if s.TriangleCount() != 0 {
		t.Errorf("TriangleCount = %d after collapse, want 0", s.TriangleCount())
	}
	if s.VertexCount() != 0 {
		t.Errorf("VertexCount = %d after prune, want 0", s.VertexCount())
	}
}

func TestQuantizeVertices(t *testing.T) {
	s := NewSolid()
	s.AddTriangle("F", r3.Vec{X: 0.1004}, r3.Vec{X: 1.0996}, r3.Vec{X: 0.5, Y: 1})
	s.AddTriangle("F", r3.Vec{X: 0.0996}, r3.Vec{X: 1.1004}, r3.Vec{X: 0.5, Y: -1})

	merged := s.QuantizeVertices(1e-2)
	if merged != 2 {
		t.Fatalf("merged %d vertices, want 2", merged)
	}
	for i := 0; i < s.VertexCount(); i++ {
		v := s.Vertex(i)
		for _, x := range []float64{v.X, v.Y, v.Z} {
			if r := math.Abs(x/1e-2 - math.Round(x/1e-2)); r > 1e-9 {
				t.Errorf("vertex %d = %v not on the 1e-2 grid", i, v)
			}
		}
	}
	// Snapping the same grid twice changes nothing.
	if again := s.QuantizeVertices(1e-2); again != 0 {
		t.Errorf("second quantize merged %d, want 0", again)
	}
}

func TestRemoveDegenerateTriangles(t *testing.T) {
	s := NewSolid()
	addUnitCube(s)
	s.AddTriangle("SLIVER", r3.Vec{X: 3}, r3.Vec{X: 4}, r3.Vec{X: 3.5, Y: 1e-9})

	if removed := s.RemoveDegenerateTriangles(1e-8); removed != 1 {
		t.Fatalf("removed %d triangles, want 1", removed)
	}
	if s.TriangleCount() != 12 {
		t.Errorf("TriangleCount = %d, want 12", s.TriangleCount())
	}
	if s.VertexCount() != 8 {
		t.Errorf("VertexCount = %d, want 8 (sliver vertices pruned)", s.VertexCount())
	}
}

func TestFixTriangleWindingsByAdjacency(t *testing.T) {
	s := NewSolid()
	addUnitCube(s)
	// Reverse a few triangles; adjacency propagation from triangle 0
	// must restore them.
	for _, t2 := range []int{3, 7, 11} {
		tri := s.triangles[t2]
		s.triangles[t2] = [3]int{tri[0], tri[2], tri[1]}
	}

	flipped := s.FixTriangleWindingsByAdjacency()
	if flipped != 3 {
		t.Errorf("flipped %d triangles, want 3", flipped)
	}
	if math.Abs(s.SignedVolume()-1) > 1e-12 {
		t.Errorf("SignedVolume = %v after rewind, want 1", s.SignedVolume())
	}
	// Every directed edge appears exactly once on a coherent mesh.
	for k, tris := range s.EdgeIncidence() {
		if len(tris) != 2 {
			t.Fatalf("edge %v has incidence %d", k, len(tris))
		}
	}
}

func TestEnforceOutwardOrientation(t *testing.T) {
	s := NewSolid()
	addTetrahedron(s, "T", r3.Vec{}, 1, true)
	if s.SignedVolume() >= 0 {
		t.Fatal("inverted tetrahedron should have negative volume")
	}
	if !s.EnforceOutwardOrientation() {
		t.Fatal("expected a global flip")
	}
	if v := s.SignedVolume(); math.Abs(v-1.0/6) > 1e-12 {
		t.Errorf("SignedVolume = %v, want 1/6", v)
	}
	// Already outward: no-op.
	if s.EnforceOutwardOrientation() {
		t.Error("second call flipped an outward mesh")
	}
}

func TestDropSurplusTriangles(t *testing.T) {
	s := NewSolid()
	addUnitCube(s)
	// Duplicate one bottom triangle under a scratch label. Its three
	// edges now carry three triangles each.
	a, b, c := s.Triangle(0)
	s.AddTriangle("SCRATCH", a, b, c)
	if s.IsTwoManifold() {
		t.Fatal("duplicate triangle should break manifoldness")
	}

	scratch := s.FaceID("SCRATCH")
	dropped := s.DropSurplusTriangles(func(t int) int {
		if s.TriangleFace(t) == scratch {
			return 1
		}
		return 0
	})
	if dropped != 1 {
		t.Fatalf("dropped %d triangles, want 1", dropped)
	}
	if !s.IsTwoManifold() {
		t.Fatalf("still non-manifold after drop: %v", s.NonManifoldEdges())
	}
	if len(s.GetFace("SCRATCH")) != 0 {
		t.Error("surviving triangle should be the original, not the scratch copy")
	}
}

func TestRemoveSmallIslands(t *testing.T) {
	build := func() *Solid {
		s := NewSolid()
		addUnitCube(s)
		// External debris floating beside the cube.
		addTetrahedron(s, "DEBRIS", r3.Vec{X: 5}, 0.2, false)
		// Internal cavity: inward-wound island inside the cube.
		addTetrahedron(s, "CAVITY", r3.Vec{X: 0.4, Y: 0.4, Z: 0.4}, 0.2, true)
		return s
	}

	t.Run("external only", func(t *testing.T) {
		s := build()
		removed := s.RemoveSmallIslands(IslandOptions{MaxTriangles: 4, RemoveExternal: true})
		if removed != 4 {
			t.Fatalf("removed %d triangles, want 4", removed)
		}
		if len(s.GetFace("DEBRIS")) != 0 || len(s.GetFace("CAVITY")) != 4 {
			t.Error("external strip touched the wrong island")
		}
	})

	t.Run("internal and external", func(t *testing.T) {
		s := build()
		removed := s.RemoveSmallIslands(IslandOptions{MaxTriangles: 4, RemoveInternal: true, RemoveExternal: true})
		if removed != 8 {
			t.Fatalf("removed %d triangles, want 8", removed)
		}
		if s.TriangleCount() != 12 {
			t.Errorf("TriangleCount = %d, want the bare cube", s.TriangleCount())
		}
	})

	t.Run("largest always survives", func(t *testing.T) {
		s := NewSolid()
		addTetrahedron(s, "ONLY", r3.Vec{}, 1, false)
		if removed := s.RemoveSmallIslands(IslandOptions{MaxTriangles: 100, RemoveExternal: true}); removed != 0 {
			t.Errorf("removed %d triangles from a single-component mesh, want 0", removed)
		}
	})
}
