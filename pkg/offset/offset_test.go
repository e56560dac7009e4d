package offset

import (
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mmiscool/brep/pkg/brep"
	"github.com/mmiscool/brep/pkg/kernel/sdfx"
)

// unitCube authors an outward-wound unit cube with one label per side.
func unitCube() *brep.Solid {
	s := brep.NewSolid()
	p := func(x, y, z float64) r3.Vec { return r3.Vec{X: x, Y: y, Z: z} }
	s.AddTriangle("BOTTOM", p(0, 0, 0), p(0, 1, 0), p(1, 1, 0))
	s.AddTriangle("BOTTOM", p(0, 0, 0), p(1, 1, 0), p(1, 0, 0))
	s.AddTriangle("TOP", p(0, 0, 1), p(1, 0, 1), p(1, 1, 1))
	s.AddTriangle("TOP", p(0, 0, 1), p(1, 1, 1), p(0, 1, 1))
	s.AddTriangle("FRONT", p(0, 0, 0), p(1, 0, 0), p(1, 0, 1))
	s.AddTriangle("FRONT", p(0, 0, 0), p(1, 0, 1), p(0, 0, 1))
	s.AddTriangle("BACK", p(0, 1, 0), p(0, 1, 1), p(1, 1, 1))
	s.AddTriangle("BACK", p(0, 1, 0), p(1, 1, 1), p(1, 1, 0))
	s.AddTriangle("LEFT", p(0, 0, 0), p(0, 0, 1), p(0, 1, 1))
	s.AddTriangle("LEFT", p(0, 0, 0), p(0, 1, 1), p(0, 1, 0))
	s.AddTriangle("RIGHT", p(1, 0, 0), p(1, 1, 0), p(1, 1, 1))
	s.AddTriangle("RIGHT", p(1, 0, 0), p(1, 1, 1), p(1, 0, 1))
	return s
}

func TestBuildZeroDistanceClones(t *testing.T) {
	src := unitCube()
	for _, d := range []float64{0, math.NaN()} {
		res, err := Build(src, d, nil, Options{})
		if err != nil {
			t.Fatalf("Build(%v): %v", d, err)
		}
		if res.Solid == src {
			t.Fatal("Build returned the source solid instead of a clone")
		}
		if res.Solid.TriangleCount() != src.TriangleCount() || res.Solid.VertexCount() != src.VertexCount() {
			t.Errorf("clone differs from source: %d/%d triangles", res.Solid.TriangleCount(), src.TriangleCount())
		}
	}
}

func TestBuildErrors(t *testing.T) {
	engine := sdfx.New()
	tests := []struct {
		name     string
		src      *brep.Solid
		distance float64
		engine   *sdfx.Engine
	}{
		{"nil source", nil, 0.5, engine},
		{"infinite distance", unitCube(), math.Inf(1), engine},
		{"nil engine", unitCube(), 0.5, nil},
		{"empty source", brep.NewSolid(), 0.5, engine},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.engine == nil {
				_, err = Build(tt.src, tt.distance, nil, Options{})
			} else {
				_, err = Build(tt.src, tt.distance, tt.engine, Options{})
			}
			if err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestBuildOutward(t *testing.T) {
	src := unitCube()
	src.SetFaceMetadata("TOP", brep.Metadata{"type": "planar"})

	res, err := Build(src, 0.25, sdfx.New(), Options{GridCell: 0.1})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	out := res.Solid
	if out.TriangleCount() == 0 {
		t.Fatal("empty offset result")
	}

	// The shell grows by the offset distance, within grid tolerance.
	box := out.BoundingBox()
	for _, got := range []struct {
		name       string
		have, want float64
	}{
		{"min x", box.Min.X, -0.25},
		{"min y", box.Min.Y, -0.25},
		{"min z", box.Min.Z, -0.25},
		{"max x", box.Max.X, 1.25},
		{"max y", box.Max.Y, 1.25},
		{"max z", box.Max.Z, 1.25},
	} {
		if math.Abs(got.have-got.want) > 0.15 {
			t.Errorf("%s = %v, want about %v", got.name, got.have, got.want)
		}
	}
	if v := out.SignedVolume(); v < 1.5 {
		t.Errorf("SignedVolume = %v, want well above the source cube", v)
	}

	// Every inherited label traces back to source faces (singly or as
	// a two-label seam bucket), or the fallback.
	known := map[string]bool{
		"BOTTOM": true, "TOP": true, "FRONT": true,
		"BACK": true, "LEFT": true, "RIGHT": true,
	}
	sawTop := false
	for _, label := range out.FaceLabels() {
		if label == FallbackLabel {
			continue
		}
		parts := strings.Split(label, "|")
		if len(parts) > 2 {
			t.Errorf("label %q carries more than two sources", label)
		}
		for _, part := range parts {
			if !known[part] {
				t.Errorf("label %q references unknown source face %q", label, part)
			}
		}
		if label == "TOP" {
			sawTop = true
		}
	}
	if !sawTop {
		t.Error("no output bucket inherited the TOP face alone")
	}
	if md := out.FaceMetadata("TOP"); md == nil || md["type"] != "planar" {
		t.Errorf("TOP metadata not propagated: %v", md)
	}
}

func TestBuildInward(t *testing.T) {
	res, err := Build(unitCube(), -0.25, sdfx.New(), Options{GridCell: 0.05})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	out := res.Solid

	box := out.BoundingBox()
	cen := r3.Scale(0.5, r3.Add(box.Min, box.Max))
	if r3.Norm(r3.Sub(cen, r3.Vec{X: 0.5, Y: 0.5, Z: 0.5})) > 0.1 {
		t.Errorf("eroded core centered at %v, want near (0.5, 0.5, 0.5)", cen)
	}
	if v := out.SignedVolume(); v < 0.05 || v > 0.25 {
		t.Errorf("SignedVolume = %v, want near 0.125", v)
	}
}

func TestCandidateBetterThan(t *testing.T) {
	base := candidate{face: 0, occurrences: 2, normalAlign: 0.5, offsetAlign: 0.5, proximity: 0.1}
	tests := []struct {
		name string
		a, b candidate
		want bool
	}{
		{
			"more occurrences win",
			candidate{occurrences: 3, normalAlign: -1}, base,
			true,
		},
		{
			"normal alignment breaks occurrence ties",
			candidate{occurrences: 2, normalAlign: 0.9}, base,
			true,
		},
		{
			"offset alignment breaks further ties",
			candidate{occurrences: 2, normalAlign: 0.5, offsetAlign: 0.2}, base,
			false,
		},
		{
			"proximity is the last resort",
			candidate{occurrences: 2, normalAlign: 0.5, offsetAlign: 0.5, proximity: 0.01}, base,
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.betterThan(tt.b); got != tt.want {
				t.Errorf("betterThan = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPaddedBounds(t *testing.T) {
	b := r3.Box{Max: r3.Vec{X: 1, Y: 1, Z: 1}}

	t.Run("outward adds distance", func(t *testing.T) {
		got := paddedBounds(b, 0.5, 0.1)
		if math.Abs(got.Min.X+0.6) > 1e-12 || math.Abs(got.Max.X-1.6) > 1e-12 {
			t.Errorf("x extent [%v, %v], want [-0.6, 1.6]", got.Min.X, got.Max.X)
		}
	})

	t.Run("inward pads margin only", func(t *testing.T) {
		got := paddedBounds(b, -0.5, 0.1)
		if math.Abs(got.Min.X+0.1) > 1e-12 || math.Abs(got.Max.X-1.1) > 1e-12 {
			t.Errorf("x extent [%v, %v], want [-0.1, 1.1]", got.Min.X, got.Max.X)
		}
	})

	t.Run("flat source gets thickness", func(t *testing.T) {
		flat := r3.Box{Max: r3.Vec{X: 2, Y: 2}}
		got := paddedBounds(flat, -0.1, 0.5)
		if got.Max.Z-got.Min.Z < 0.5 {
			t.Errorf("z extent %v, want at least the margin", got.Max.Z-got.Min.Z)
		}
	})
}

func TestAdaptiveCell(t *testing.T) {
	b := r3.Box{Max: r3.Vec{X: 1, Y: 1, Z: 1}}
	diag := math.Sqrt(3)

	t.Run("large offsets use the coarse default", func(t *testing.T) {
		if got := adaptiveCell(b, 1); math.Abs(got-diag/96) > 1e-12 {
			t.Errorf("cell = %v, want diag/96", got)
		}
	})

	t.Run("small offsets refine to half the distance", func(t *testing.T) {
		if got := adaptiveCell(b, 0.02); math.Abs(got-0.01) > 1e-12 {
			t.Errorf("cell = %v, want 0.01", got)
		}
	})

	t.Run("refinement bottoms out at diag/512", func(t *testing.T) {
		if got := adaptiveCell(b, 1e-6); math.Abs(got-diag/512) > 1e-12 {
			t.Errorf("cell = %v, want diag/512", got)
		}
	})
}
