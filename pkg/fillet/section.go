package fillet

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mmiscool/brep/pkg/brep"
	"github.com/mmiscool/brep/pkg/geom"
	"github.com/mmiscool/brep/pkg/spatial"
)

// section is one cross-section solve along the edge.
type section struct {
	p      r3.Vec // edge sample
	t      r3.Vec // section plane normal (edge tangent)
	nA, nB r3.Vec // local face normals near the sample
	vA, vB r3.Vec // in-plane face traces
	center r3.Vec
	tA, tB r3.Vec // tangency points on each face
	half   float64
}

// buildContext holds everything one fillet attempt mutates. A retry
// never reuses a context, so partially authored state cannot leak
// across attempts.
type buildContext struct {
	edge             *brep.Edge
	faceA, faceB     *brep.Face
	bucketA, bucketB *spatial.FaceBucket

	radius    float64
	opts      Options
	inflate   float64
	seamInset float64
	// projectSeams selects the face-projection strategy for seams and
	// strap rows; the retry ladder toggles it to the analytic trace.
	projectSeams bool

	closed   bool
	samples  []r3.Vec
	tangents []r3.Vec
	sections []section

	// The three rails accumulated per section.
	railP, railA, railB []r3.Vec

	solid    *brep.Solid
	warnings []string
}

func newBuildContext(edge *brep.Edge, faceA, faceB *brep.Face, bucketA, bucketB *spatial.FaceBucket, radius float64, opts Options) *buildContext {
	return &buildContext{
		edge:         edge,
		faceA:        faceA,
		faceB:        faceB,
		bucketA:      bucketA,
		bucketB:      bucketB,
		radius:       radius,
		opts:         opts,
		inflate:      opts.Inflate,
		seamInset:    opts.SeamInset,
		projectSeams: true,
	}
}

// run executes one full authoring attempt: sample, solve, assemble,
// repair.
func (ctx *buildContext) run() error {
	ctx.sampleEdge()
	if len(ctx.samples) < 2 {
		return fmt.Errorf("fillet: edge %q yields %d samples, need at least 2", ctx.edge.Name, len(ctx.samples))
	}
	if err := ctx.solveSections(); err != nil {
		return err
	}
	if err := ctx.assemble(); err != nil {
		return err
	}
	ctx.repairLadder()
	return nil
}

// sampleEdge derives the section sample points. Closed loops are
// midpoint-subdivided with wrap-around tangents; open edges keep the
// polyline points and use one-sided tangents at the ends.
func (ctx *buildContext) sampleEdge() {
	pts := append([]r3.Vec(nil), ctx.edge.Points...)
	ctx.closed = ctx.edge.IsClosed()
	if ctx.closed && len(pts) > 2 && r3.Norm(r3.Sub(pts[0], pts[len(pts)-1])) < 1e-9 {
		pts = pts[:len(pts)-1] // drop the explicit closing point
	}

	var samples []r3.Vec
	if ctx.closed {
		for i, p := range pts {
			q := pts[(i+1)%len(pts)]
			samples = append(samples, p, r3.Scale(0.5, r3.Add(p, q)))
		}
	} else {
		samples = pts
	}
	ctx.samples = samples

	n := len(samples)
	ctx.tangents = make([]r3.Vec, n)
	for i := range samples {
		var d r3.Vec
		switch {
		case ctx.closed:
			d = r3.Sub(samples[(i+1)%n], samples[(i-1+n)%n])
		case i == 0:
			d = r3.Sub(samples[1], samples[0])
		case i == n-1:
			d = r3.Sub(samples[n-1], samples[n-2])
		default:
			d = r3.Sub(samples[i+1], samples[i-1])
		}
		t, ok := geom.SafeUnit(d)
		if !ok && i > 0 {
			t = ctx.tangents[i-1]
		}
		ctx.tangents[i] = t
	}
}

// offsetSign maps the side mode onto the signed plane offset: Inset
// pushes the center behind the faces (into material), Outset in front.
func (ctx *buildContext) offsetSign() float64 {
	if ctx.opts.Side == Outset {
		return 1
	}
	return -1
}

// solveSections runs the tangent-circle construction per sample, with
// one refinement pass using normals re-sampled at the tangency points.
func (ctx *buildContext) solveSections() error {
	sign := ctx.offsetSign()
	for i, p := range ctx.samples {
		t := ctx.tangents[i]

		onA, nA, _ := ctx.bucketA.NearestPoint(p)
		onB, nB, _ := ctx.bucketB.NearestPoint(p)
		if !finite(nA) || !finite(nB) {
			return fmt.Errorf("fillet: non-finite face normal at sample %d of edge %q", i, ctx.edge.Name)
		}

		sec, ok := solveSection(p, t, onA, nA, onB, nB, sign, ctx.radius)
		if !ok {
			ctx.warnings = append(ctx.warnings, fmt.Sprintf("fillet: section %d used 2D bisector fallback", i))
		}

		// Refinement: curved faces bend between the sample and the
		// tangency point, so re-solve with normals taken there.
		onA2, nA2, _ := ctx.bucketA.NearestPoint(sec.tA)
		onB2, nB2, _ := ctx.bucketB.NearestPoint(sec.tB)
		if refined, ok2 := solveSection(p, t, onA2, nA2, onB2, nB2, sign, ctx.radius); ok2 {
			sec = refined
		}

		ctx.sections = append(ctx.sections, sec)
		ctx.railP = append(ctx.railP, p)
		ctx.railA = append(ctx.railA, sec.tA)
		ctx.railB = append(ctx.railB, sec.tB)
	}
	return nil
}

// solveSection intersects the two face offset planes with the section
// plane through p. Reports false when it had to reconstruct the
// center from the 2D bisector instead.
func solveSection(p, t, onA, nA, onB, nB r3.Vec, sign, radius float64) (section, bool) {
	sec := section{p: p, t: t, nA: nA, nB: nB}

	vA, okA := geom.SafeUnit(r3.Cross(nA, t))
	vB, okB := geom.SafeUnit(r3.Cross(nB, t))
	sec.vA, sec.vB = vA, vB

	// Half-angle between the in-plane traces.
	theta := geom.AngleBetween(vA, vB)
	sec.half = theta / 2
	sinHalf := math.Sin(sec.half)

	exact := false
	if okA && okB {
		c, ok := geom.IntersectThreePlanes(
			nA, r3.Dot(nA, onA)+sign*radius,
			nB, r3.Dot(nB, onB)+sign*radius,
			t, r3.Dot(t, p),
		)
		if ok {
			// Runaway guard: the 2D expectation for the center
			// distance is r/sin(theta/2); far beyond that the planes
			// were near parallel and the solve is garbage.
			expect := radius * 8
			if sinHalf > 1e-4 {
				expect = 4 * radius / sinHalf
			}
			if r3.Norm(r3.Sub(c, p)) <= expect {
				sec.center = c
				exact = true
			}
		}
	}

	if !exact {
		sec.center = bisectorCenter(p, vA, vB, nA, nB, sign, radius, sinHalf)
	}

	sec.tA = r3.Sub(sec.center, r3.Scale(sign*radius, nA))
	sec.tB = r3.Sub(sec.center, r3.Scale(sign*radius, nB))
	return sec, exact
}

// bisectorCenter reconstructs the circle center in the section plane:
// along the trace bisector at distance r/sin(theta/2), oriented by the
// side sign against the average face normal.
func bisectorCenter(p, vA, vB, nA, nB r3.Vec, sign, radius, sinHalf float64) r3.Vec {
	bis, ok := geom.SafeUnit(r3.Add(vA, vB))
	if !ok {
		// Opposed traces: fall back to the averaged normal direction.
		bis, ok = geom.SafeUnit(r3.Add(nA, nB))
		if !ok {
			return p
		}
	}
	avg, _ := geom.SafeUnit(r3.Add(nA, nB))
	if r3.Dot(bis, avg)*sign < 0 {
		bis = r3.Scale(-1, bis)
	}
	dist := radius * 4
	if sinHalf > 1e-4 {
		dist = radius / sinHalf
	}
	return r3.Add(p, r3.Scale(dist, bis))
}

func finite(v r3.Vec) bool {
	ok := func(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }
	return ok(v.X) && ok(v.Y) && ok(v.Z)
}
