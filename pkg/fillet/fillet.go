// Package fillet builds a fillet tool solid for one edge shared by two
// faces: per-section tangent-circle solves along the edge, lofted into
// a watertight wedge (arc surface, two side straps, optional end
// caps), followed by manifold repair and a bounded retry ladder. The
// returned solid is meant for boolean composition against the source
// solid; the intent (union vs subtract) is classified heuristically.
package fillet

import (
	"errors"
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mmiscool/brep/pkg/brep"
	"github.com/mmiscool/brep/pkg/geom"
	"github.com/mmiscool/brep/pkg/kernel"
	"github.com/mmiscool/brep/pkg/spatial"
)

// Side selects which side of the edge the tangent circle lands on.
type Side int

const (
	// Inset places the circle center inside the material (rounding a
	// convex edge).
	Inset Side = iota
	// Outset places it outside (filling a concave corner).
	Outset
)

// Intent is the boolean operation the tool is meant for.
type Intent int

const (
	IntentUnion Intent = iota
	IntentSubtract
)

func (i Intent) String() string {
	if i == IntentSubtract {
		return "subtract"
	}
	return "union"
}

// Face labels of the authored wedge.
const (
	labelArc    = "ARC"
	labelStrapA = "STRAP_A"
	labelStrapB = "STRAP_B"
	labelCap0   = "CAP_START"
	labelCap1   = "CAP_END"
	labelHull   = "HULL"
)

// Options are the fillet tuning knobs.
type Options struct {
	Side Side
	// ArcSegments subdivides the arc cross-section. Default 8.
	ArcSegments int
	// StrapSegments subdivides each side strap. Default 3.
	StrapSegments int
	// Inflate biases seam and strap vertices outward along the local
	// face normal to avoid coincident-surface residue in booleans.
	Inflate float64
	// SeamInset pulls seam points along the face back toward the
	// edge. Defaults to 2% of the radius.
	SeamInset float64
	// CapBulge pushes the end-cap apex outward along the cap plane
	// normal. Zero keeps caps planar (ear clipping).
	CapBulge float64
	// Debug keeps a non-manifold mesh for inspection instead of
	// falling back to the convex hull.
	Debug bool
	// Engine, when set, provides the external manifold probe; the
	// internal edge-incidence check is used otherwise.
	Engine kernel.Engine
}

// Result is a finished fillet tool.
type Result struct {
	Solid    *brep.Solid
	Intent   Intent
	Warnings []string
}

// Build solves the fillet for the edge at the given radius. The edge
// must be shared by exactly two faces with usable geometry.
func Build(edge *brep.Edge, radius float64, opts Options) (*Result, error) {
	if edge == nil {
		return nil, errors.New("fillet: nil edge")
	}
	if radius <= 0 || math.IsNaN(radius) {
		return nil, fmt.Errorf("fillet: non-positive radius %v", radius)
	}
	if len(edge.Points) < 2 {
		return nil, fmt.Errorf("fillet: edge %q has no polyline", edge.Name)
	}
	if len(edge.Faces) != 2 {
		return nil, fmt.Errorf("fillet: edge %q is shared by %d faces, want 2", edge.Name, len(edge.Faces))
	}
	faceA, faceB := edge.Faces[0], edge.Faces[1]
	if len(faceA.Triangles) == 0 || len(faceB.Triangles) == 0 {
		return nil, fmt.Errorf("fillet: edge %q has a faceless side", edge.Name)
	}
	if opts.ArcSegments <= 0 {
		opts.ArcSegments = 8
	}
	if opts.StrapSegments <= 0 {
		opts.StrapSegments = 3
	}
	if opts.SeamInset == 0 {
		opts.SeamInset = radius * 0.02
	}

	// The arena is built once and shared by every retry attempt; the
	// attempts themselves get fresh build contexts.
	arena := spatial.NewFaceArena()
	bucketA := arena.AddFace(faceA.Name, faceA.Triangles)
	bucketB := arena.AddFace(faceB.Name, faceB.Triangles)
	if bucketA.Len() == 0 || bucketB.Len() == 0 {
		return nil, fmt.Errorf("fillet: edge %q has a degenerate adjacent face", edge.Name)
	}

	attempts := []attemptTweaks{
		{},
		{halveInflate: true},
		{toggleProjection: true, conservativeInset: true},
	}

	var warnings []string
	var last *buildContext
	for i, tw := range attempts {
		ctx := newBuildContext(edge, faceA, faceB, bucketA, bucketB, radius, opts)
		tw.apply(ctx)
		if err := ctx.run(); err != nil {
			if i == 0 {
				return nil, err
			}
			warnings = append(warnings, fmt.Sprintf("fillet: retry %d failed: %v", i, err))
			continue
		}
		warnings = append(warnings, ctx.warnings...)
		last = ctx
		if ctx.probeManifold(opts.Engine) {
			res := &Result{Solid: ctx.solid, Intent: ctx.classifyIntent(), Warnings: warnings}
			return res, nil
		}
		log.Printf("fillet: edge %q attempt %d produced non-manifold mesh", edge.Name, i)
	}

	if last == nil {
		return nil, fmt.Errorf("fillet: edge %q: no attempt produced geometry", edge.Name)
	}
	if opts.Debug {
		warnings = append(warnings, "fillet: keeping non-manifold mesh (debug)")
		return &Result{Solid: last.solid, Intent: last.classifyIntent(), Warnings: warnings}, nil
	}

	// Last resort: a convex hull of the authored vertex cloud is
	// always manifold, trading fidelity for pipeline continuity.
	hull, err := hullSolid(last.solid)
	if err != nil {
		return nil, fmt.Errorf("fillet: edge %q: manifold repair and hull fallback both failed: %w", edge.Name, err)
	}
	warnings = append(warnings, "fillet: replaced tool with convex hull fallback")
	log.Printf("fillet: edge %q fell back to convex hull", edge.Name)
	return &Result{Solid: hull, Intent: last.classifyIntent(), Warnings: warnings}, nil
}

// attemptTweaks adjusts one retry attempt without leaking state into
// the next: every attempt rebuilds from a fresh context.
type attemptTweaks struct {
	halveInflate      bool
	toggleProjection  bool
	conservativeInset bool
}

func (tw attemptTweaks) apply(ctx *buildContext) {
	if tw.halveInflate {
		ctx.inflate /= 2
	}
	if tw.toggleProjection {
		ctx.projectSeams = !ctx.projectSeams
	}
	if tw.conservativeInset {
		if lo := ctx.radius * 0.05; ctx.seamInset < lo {
			ctx.seamInset = lo
		}
	}
}

// probeManifold asks the external engine when available, otherwise the
// internal strict edge-incidence check.
func (ctx *buildContext) probeManifold(engine kernel.Engine) bool {
	if ctx.solid.TriangleCount() == 0 {
		return false
	}
	if engine != nil {
		return engine.IsManifold(ctx.solid.Mesh())
	}
	return ctx.solid.IsTwoManifold()
}

// classifyIntent compares the direction from the mid-edge sample to
// the solved arc center against the average outward normal of the two
// faces. A center buried in material (convex edge) means the tool
// carves the edge region away (subtract); a center out in the open
// corner (concave edge) fills it (union). Heuristic; ties subtract.
func (ctx *buildContext) classifyIntent() Intent {
	if len(ctx.sections) == 0 {
		return IntentSubtract
	}
	sec := ctx.sections[len(ctx.sections)/2]
	dir, ok := geom.SafeUnit(r3.Sub(sec.center, sec.p))
	if !ok {
		return IntentSubtract
	}
	outward, ok := geom.SafeUnit(r3.Add(sec.nA, sec.nB))
	if !ok {
		return IntentSubtract
	}
	if r3.Dot(dir, outward) <= 0 {
		return IntentSubtract
	}
	return IntentUnion
}

// hullSolid rebuilds the tool as the convex hull of its vertex cloud.
func hullSolid(s *brep.Solid) (*brep.Solid, error) {
	pts := make([]r3.Vec, s.VertexCount())
	for i := range pts {
		pts[i] = s.Vertex(i)
	}
	tris, ok := geom.ConvexHull(pts)
	if !ok {
		return nil, errors.New("degenerate vertex cloud")
	}
	hull := brep.NewSolid()
	for _, tri := range tris {
		hull.AddTriangle(labelHull, pts[tri[0]], pts[tri[1]], pts[tri[2]])
	}
	hull.FixTriangleWindingsByAdjacency()
	hull.EnforceOutwardOrientation()
	return hull, nil
}
