package fillet

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mmiscool/brep/pkg/brep"
)

// rightAngleEdge builds a convex 90 degree corner: face A in the z=0
// plane (normal +Z, x in [-2,0]) and face B in the x=0 plane (normal
// +X, z in [-2,0]), sharing the straight edge along y.
func rightAngleEdge() *brep.Edge {
	faceA := &brep.Face{
		Name: "TOP",
		Triangles: [][3]r3.Vec{
			{{X: -2, Y: 0}, {X: 0, Y: 0}, {X: 0, Y: 4}},
			{{X: -2, Y: 0}, {X: 0, Y: 4}, {X: -2, Y: 4}},
		},
	}
	faceB := &brep.Face{
		Name: "SIDE",
		Triangles: [][3]r3.Vec{
			{{X: 0, Y: 0, Z: 0}, {X: 0, Y: 0, Z: -2}, {X: 0, Y: 4, Z: -2}},
			{{X: 0, Y: 0, Z: 0}, {X: 0, Y: 4, Z: -2}, {X: 0, Y: 4, Z: 0}},
		},
	}
	return &brep.Edge{
		Name:   "SEAM",
		Points: []r3.Vec{{Y: 0}, {Y: 2}, {Y: 4}},
		Faces:  []*brep.Face{faceA, faceB},
	}
}

func TestSolveSectionRightAngle(t *testing.T) {
	p := r3.Vec{Y: 2}
	tan := r3.Vec{Y: 1}
	nA := r3.Vec{Z: 1}
	nB := r3.Vec{X: 1}

	t.Run("inset", func(t *testing.T) {
		sec, exact := solveSection(p, tan, p, nA, p, nB, -1, 1)
		if !exact {
			t.Fatal("orthogonal planes should solve exactly")
		}
		if r3.Norm(r3.Sub(sec.center, r3.Vec{X: -1, Y: 2, Z: -1})) > 1e-12 {
			t.Errorf("center = %v, want (-1, 2, -1)", sec.center)
		}
		if r3.Norm(r3.Sub(sec.tA, r3.Vec{X: -1, Y: 2})) > 1e-12 {
			t.Errorf("tA = %v, want (-1, 2, 0)", sec.tA)
		}
		if r3.Norm(r3.Sub(sec.tB, r3.Vec{Y: 2, Z: -1})) > 1e-12 {
			t.Errorf("tB = %v, want (0, 2, -1)", sec.tB)
		}
		// Both tangency points sit at the radius.
		for _, q := range []r3.Vec{sec.tA, sec.tB} {
			if d := r3.Norm(r3.Sub(q, sec.center)); math.Abs(d-1) > 1e-12 {
				t.Errorf("tangency distance = %v, want 1", d)
			}
		}
		// A 90 degree dihedral subtends a 90 degree arc.
		rA := r3.Sub(sec.tA, sec.center)
		rB := r3.Sub(sec.tB, sec.center)
		if cos := r3.Dot(rA, rB); math.Abs(cos) > 1e-12 {
			t.Errorf("arc endpoints not orthogonal: cos = %v", cos)
		}
		if math.Abs(sec.half-math.Pi/4) > 1e-12 {
			t.Errorf("half angle = %v, want pi/4", sec.half)
		}
	})

	t.Run("outset", func(t *testing.T) {
		sec, exact := solveSection(p, tan, p, nA, p, nB, 1, 1)
		if !exact {
			t.Fatal("orthogonal planes should solve exactly")
		}
		if r3.Norm(r3.Sub(sec.center, r3.Vec{X: 1, Y: 2, Z: 1})) > 1e-12 {
			t.Errorf("center = %v, want (1, 2, 1)", sec.center)
		}
	})
}

func TestSolveSectionParallelFallback(t *testing.T) {
	// Both faces share a normal: the three-plane system is singular
	// and the solver must fall back to the bisector construction.
	p := r3.Vec{Y: 1}
	n := r3.Vec{Z: 1}
	sec, exact := solveSection(p, r3.Vec{Y: 1}, p, n, p, n, -1, 0.5)
	if exact {
		t.Fatal("parallel planes reported an exact solve")
	}
	if !finite(sec.center) {
		t.Fatalf("fallback center = %v", sec.center)
	}
	// Tangencies stay consistent with the reconstructed center.
	want := r3.Add(sec.center, r3.Scale(0.5, n))
	if r3.Norm(r3.Sub(sec.tA, want)) > 1e-12 {
		t.Errorf("tA = %v, want %v", sec.tA, want)
	}
}

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		name string
		sec  section
		want Intent
	}{
		{
			"center in material means subtract",
			section{center: r3.Vec{X: -1, Z: -1}, nA: r3.Vec{Z: 1}, nB: r3.Vec{X: 1}},
			IntentSubtract,
		},
		{
			"center in the open corner means union",
			section{center: r3.Vec{X: 1, Z: 1}, nA: r3.Vec{Z: 1}, nB: r3.Vec{X: 1}},
			IntentUnion,
		},
		{
			"orthogonal tie subtracts",
			section{center: r3.Vec{X: -1, Z: 1}, nA: r3.Vec{Z: 1}, nB: r3.Vec{X: 1}},
			IntentSubtract,
		},
		{
			"degenerate center subtracts",
			section{nA: r3.Vec{Z: 1}, nB: r3.Vec{X: 1}},
			IntentSubtract,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := &buildContext{sections: []section{tt.sec}}
			if got := ctx.classifyIntent(); got != tt.want {
				t.Errorf("classifyIntent = %v, want %v", got, tt.want)
			}
		})
	}

	// Solved sections, not hand-built ones, must reach both intents:
	// sweep the dihedral and classify straight off solveSection.
	p := r3.Vec{Y: 1}
	tan := r3.Vec{Y: 1}
	nA := r3.Vec{Z: 1}
	for _, deg := range []float64{30, 60, 90, 120, 150, 170} {
		a := deg * math.Pi / 180
		nB := r3.Vec{X: math.Sin(a), Z: -math.Cos(a)}
		for sign, want := range map[float64]Intent{-1: IntentSubtract, 1: IntentUnion} {
			sec, ok := solveSection(p, tan, p, nA, p, nB, sign, 0.5)
			if !ok {
				t.Fatalf("solveSection failed at %v degrees", deg)
			}
			ctx := &buildContext{sections: []section{sec}}
			if got := ctx.classifyIntent(); got != want {
				t.Errorf("dihedral %v, sign %v: intent = %v, want %v", deg, sign, got, want)
			}
		}
	}
	if IntentSubtract.String() != "subtract" || IntentUnion.String() != "union" {
		t.Error("Intent.String mismatch")
	}
}

func TestBuildRightAngle(t *testing.T) {
	res, err := Build(rightAngleEdge(), 1, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	s := res.Solid

	if !s.IsTwoManifold() {
		t.Fatalf("tool not 2-manifold: %v", s.NonManifoldEdges())
	}
	if v := s.SignedVolume(); v <= 0 {
		t.Errorf("SignedVolume = %v, want positive", v)
	}
	if res.Intent != IntentSubtract {
		t.Errorf("Intent = %v, want subtract (convex edge)", res.Intent)
	}
	for _, label := range []string{"ARC", "STRAP_A", "STRAP_B", "CAP_START", "CAP_END"} {
		if len(s.GetFace(label)) == 0 {
			t.Errorf("face %s has no triangles", label)
		}
	}

	// The solved centerline is carried as an aux edge; for this
	// geometry every center sits on the line x = -1, z = -1.
	aux := s.AuxEdges()
	if len(aux) != 1 || aux[0].Name != "FILLET_CENTERLINE_SEAM" {
		t.Fatalf("aux edges = %v, want the fillet centerline", aux)
	}
	if len(aux[0].Points) != 3 {
		t.Fatalf("centerline has %d points, want 3", len(aux[0].Points))
	}
	for _, c := range aux[0].Points {
		if math.Abs(c.X+1) > 1e-9 || math.Abs(c.Z+1) > 1e-9 {
			t.Errorf("center %v off the line x=-1, z=-1", c)
		}
	}
}

func TestBuildOutsetStep(t *testing.T) {
	// A concave 90 degree step: the floor z=0 (normal +Z, x in [0,2])
	// meets the wall x=0 (normal +X, z in [0,2]); the open quadrant
	// is x, z > 0. An outset fillet fills the corner.
	floor := &brep.Face{
		Name: "FLOOR",
		Triangles: [][3]r3.Vec{
			{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 4}},
			{{X: 0, Y: 0}, {X: 2, Y: 4}, {X: 0, Y: 4}},
		},
	}
	wall := &brep.Face{
		Name: "WALL",
		Triangles: [][3]r3.Vec{
			{{X: 0, Y: 0, Z: 0}, {X: 0, Y: 4, Z: 0}, {X: 0, Y: 4, Z: 2}},
			{{X: 0, Y: 0, Z: 0}, {X: 0, Y: 4, Z: 2}, {X: 0, Y: 0, Z: 2}},
		},
	}
	edge := &brep.Edge{
		Name:   "STEP",
		Points: []r3.Vec{{Y: 0}, {Y: 2}, {Y: 4}},
		Faces:  []*brep.Face{floor, wall},
	}

	res, err := Build(edge, 0.5, Options{Side: Outset})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	s := res.Solid
	if !s.IsTwoManifold() {
		t.Fatalf("tool not 2-manifold: %v", s.NonManifoldEdges())
	}
	if v := s.SignedVolume(); v <= 0 {
		t.Errorf("SignedVolume = %v, want positive", v)
	}
	if res.Intent != IntentUnion {
		t.Errorf("Intent = %v, want union (concave corner)", res.Intent)
	}

	// Every solved center sits out in the open quadrant on the line
	// x = 0.5, z = 0.5.
	aux := s.AuxEdges()
	if len(aux) != 1 || aux[0].Name != "FILLET_CENTERLINE_STEP" {
		t.Fatalf("aux edges = %v, want the fillet centerline", aux)
	}
	for _, c := range aux[0].Points {
		if math.Abs(c.X-0.5) > 1e-9 || math.Abs(c.Z-0.5) > 1e-9 {
			t.Errorf("center %v off the line x=0.5, z=0.5", c)
		}
	}
}

func TestBuildClosedRim(t *testing.T) {
	// A disk of radius 2 on top of a faceted cylinder, filleting the
	// closed rim. No end caps on a closed loop.
	const n = 16
	rim := make([]r3.Vec, n)
	lower := make([]r3.Vec, n)
	for i := range rim {
		a := 2 * math.Pi * float64(i) / n
		rim[i] = r3.Vec{X: 2 * math.Cos(a), Y: 2 * math.Sin(a)}
		lower[i] = r3.Add(rim[i], r3.Vec{Z: -2})
	}
	disk := &brep.Face{Name: "TOP"}
	for i := range rim {
		disk.Triangles = append(disk.Triangles, [3]r3.Vec{{}, rim[i], rim[(i+1)%n]})
	}
	wall := &brep.Face{Name: "WALL"}
	for i := range rim {
		j := (i + 1) % n
		wall.Triangles = append(wall.Triangles,
			[3]r3.Vec{rim[i], lower[i], lower[j]},
			[3]r3.Vec{rim[i], lower[j], rim[j]},
		)
	}
	edge := &brep.Edge{
		Name:   "RIM",
		Points: rim,
		Closed: true,
		Faces:  []*brep.Face{disk, wall},
	}

	res, err := Build(edge, 0.3, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	s := res.Solid

	if !s.IsTwoManifold() {
		t.Fatalf("tool not 2-manifold: %v", s.NonManifoldEdges())
	}
	if v := s.SignedVolume(); v <= 0 {
		t.Errorf("SignedVolume = %v, want positive", v)
	}
	if len(s.GetFace("CAP_START")) != 0 || len(s.GetFace("CAP_END")) != 0 {
		t.Error("closed rim grew end caps")
	}
}

func TestBuildErrors(t *testing.T) {
	good := rightAngleEdge()
	twoPoints := rightAngleEdge()
	twoPoints.Points = twoPoints.Points[:1]
	oneFace := rightAngleEdge()
	oneFace.Faces = oneFace.Faces[:1]
	faceless := rightAngleEdge()
	faceless.Faces[1] = &brep.Face{Name: "EMPTY"}
	degenerate := rightAngleEdge()
	degenerate.Faces[1] = &brep.Face{
		Name:      "FLAT",
		Triangles: [][3]r3.Vec{{{X: 0}, {X: 1}, {X: 2}}}, // collinear
	}

	tests := []struct {
		name   string
		edge   *brep.Edge
		radius float64
	}{
		{"nil edge", nil, 1},
		{"zero radius", good, 0},
		{"negative radius", good, -2},
		{"nan radius", good, math.NaN()},
		{"short polyline", twoPoints, 1},
		{"one face", oneFace, 1},
		{"faceless side", faceless, 1},
		{"degenerate face", degenerate, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Build(tt.edge, tt.radius, Options{}); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestHullSolid(t *testing.T) {
	t.Run("box cloud", func(t *testing.T) {
		s := brep.NewSolid()
		s.AddTriangle("F", r3.Vec{}, r3.Vec{X: 1}, r3.Vec{Y: 1})
		s.AddTriangle("F", r3.Vec{Z: 1}, r3.Vec{X: 1, Z: 1}, r3.Vec{Y: 1, Z: 1})
		s.AddTriangle("F", r3.Vec{X: 1, Y: 1}, r3.Vec{X: 1, Y: 1, Z: 1}, r3.Vec{Y: 1, Z: 1})
		hull, err := hullSolid(s)
		if err != nil {
			t.Fatalf("hullSolid: %v", err)
		}
		if !hull.IsTwoManifold() {
			t.Fatal("hull not 2-manifold")
		}
		if v := hull.SignedVolume(); math.Abs(v-1) > 1e-9 {
			t.Errorf("hull volume = %v, want 1", v)
		}
	})

	t.Run("flat cloud", func(t *testing.T) {
		s := brep.NewSolid()
		s.AddTriangle("F", r3.Vec{}, r3.Vec{X: 1}, r3.Vec{Y: 1})
		if _, err := hullSolid(s); err == nil {
			t.Error("expected an error for a coplanar cloud")
		}
	})
}
