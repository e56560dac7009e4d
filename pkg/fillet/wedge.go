package fillet

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mmiscool/brep/pkg/brep"
	"github.com/mmiscool/brep/pkg/geom"
	"github.com/mmiscool/brep/pkg/spatial"
)

// assemble lofts the solved sections into the wedge solid: the curved
// arc surface between consecutive rings, a strap from the edge rail to
// each seam, and end caps on open edges.
func (ctx *buildContext) assemble() error {
	n := len(ctx.sections)
	if n < 2 {
		return errors.New("fillet: not enough sections to loft")
	}
	ctx.solid = brep.NewSolid()

	rings := make([][]r3.Vec, n)
	for i, sec := range ctx.sections {
		rings[i] = ctx.arcRing(sec)
	}
	ctx.alignRings(rings)

	// Seam snapping replaces the ring endpoints with points tied to
	// the source faces, biased by inflate/inset so the wedge does not
	// leave coincident-surface residue after the boolean.
	k := ctx.opts.ArcSegments
	seamA := make([]r3.Vec, n)
	seamB := make([]r3.Vec, n)
	for i := range rings {
		seamA[i] = ctx.snapSeam(rings[i][0], ctx.sections[i].p, ctx.bucketA, ctx.sections[i].nA)
		seamB[i] = ctx.snapSeam(rings[i][k], ctx.sections[i].p, ctx.bucketB, ctx.sections[i].nB)
		rings[i][0] = seamA[i]
		rings[i][k] = seamB[i]
	}

	ctx.loftArc(rings)

	m := ctx.opts.StrapSegments
	rowsA := ctx.strapRows(ctx.railP, seamA, ctx.bucketA, m)
	rowsB := ctx.strapRows(ctx.railP, seamB, ctx.bucketB, m)
	ctx.loftStrap(labelStrapA, rowsA)
	ctx.loftStrap(labelStrapB, rowsB)

	if !ctx.closed {
		ctx.buildCap(labelCap0, rings[0], colAt(rowsA, 0), colAt(rowsB, 0))
		ctx.buildCap(labelCap1, rings[n-1], colAt(rowsA, n-1), colAt(rowsB, n-1))
	}

	centers := make([]r3.Vec, n)
	for i, sec := range ctx.sections {
		centers[i] = sec.center
	}
	ctx.solid.AddAuxEdge(fmt.Sprintf("FILLET_CENTERLINE_%s", ctx.edge.Name), centers)
	return nil
}

// arcRing sweeps the radius vector from the A tangency toward the B
// tangency around the ring axis.
func (ctx *buildContext) arcRing(sec section) []r3.Vec {
	k := ctx.opts.ArcSegments
	r0 := r3.Sub(sec.tA, sec.center)
	r1 := r3.Sub(sec.tB, sec.center)
	axis := r3.Cross(r0, r1)
	angle := geom.AngleBetween(r0, r1)

	ring := make([]r3.Vec, k+1)
	if _, ok := geom.SafeUnit(axis); !ok || angle < 1e-9 {
		// Collapsed arc: interpolate linearly between the tangencies.
		for j := 0; j <= k; j++ {
			f := float64(j) / float64(k)
			ring[j] = r3.Add(r3.Scale(1-f, sec.tA), r3.Scale(f, sec.tB))
		}
		return ring
	}
	for j := 0; j <= k; j++ {
		f := float64(j) / float64(k)
		ring[j] = r3.Add(sec.center, geom.RotateAbout(r0, axis, angle*f))
	}
	return ring
}

// alignRings flips rings (and the matching rails) whose point order
// opposes the previous ring, so the loft does not twist.
func (ctx *buildContext) alignRings(rings [][]r3.Vec) {
	for i := 1; i < len(rings); i++ {
		straight := ringDistance(rings[i-1], rings[i])
		flipped := ringDistance(rings[i-1], reversedRing(rings[i]))
		if flipped < straight {
			rings[i] = reversedRing(rings[i])
			ctx.railA[i], ctx.railB[i] = ctx.railB[i], ctx.railA[i]
			sec := &ctx.sections[i]
			sec.tA, sec.tB = sec.tB, sec.tA
			sec.nA, sec.nB = sec.nB, sec.nA
			sec.vA, sec.vB = sec.vB, sec.vA
		}
	}
}

func ringDistance(a, b []r3.Vec) float64 {
	var sum float64
	for i := range a {
		sum += r3.Norm(r3.Sub(a[i], b[i]))
	}
	return sum
}

func reversedRing(ring []r3.Vec) []r3.Vec {
	out := make([]r3.Vec, len(ring))
	for i, p := range ring {
		out[len(ring)-1-i] = p
	}
	return out
}

// snapSeam projects a ring endpoint onto its source face, then applies
// the inflate bias along the local normal and the seam inset back
// toward the edge sample.
func (ctx *buildContext) snapSeam(end, sample r3.Vec, bucket *spatial.FaceBucket, fallbackN r3.Vec) r3.Vec {
	seam := end
	normal := fallbackN
	if ctx.projectSeams {
		if on, n, ok := bucket.NearestPoint(end); ok {
			seam, normal = on, n
		}
	}
	if ctx.inflate != 0 {
		seam = r3.Add(seam, r3.Scale(ctx.inflate, normal))
	}
	if ctx.seamInset != 0 {
		if toEdge, ok := geom.SafeUnit(r3.Sub(sample, seam)); ok {
			seam = r3.Add(seam, r3.Scale(ctx.seamInset, toEdge))
		}
	}
	return seam
}

// loftArc triangulates the curved surface between consecutive rings
// with checkerboard diagonal alternation.
func (ctx *buildContext) loftArc(rings [][]r3.Vec) {
	n := len(rings)
	last := n - 1
	if ctx.closed {
		last = n
	}
	k := ctx.opts.ArcSegments
	for i := 0; i < last; i++ {
		r0 := rings[i]
		r1 := rings[(i+1)%n]
		for j := 0; j < k; j++ {
			a, b := r0[j], r0[j+1]
			c, d := r1[j+1], r1[j]
			if (i+j)%2 == 0 {
				ctx.addTri(labelArc, a, b, c)
				ctx.addTri(labelArc, a, c, d)
			} else {
				ctx.addTri(labelArc, b, c, d)
				ctx.addTri(labelArc, b, d, a)
			}
		}
	}
}

// strapRows builds the projected grid between the edge rail (row 0)
// and the seam (row m). Interior rows are pulled onto the source face
// when seam projection is active; boundary rows stay exact so the
// strap shares vertices with the arc and the caps.
func (ctx *buildContext) strapRows(rail, seam []r3.Vec, bucket *spatial.FaceBucket, m int) [][]r3.Vec {
	n := len(rail)
	rows := make([][]r3.Vec, m+1)
	for r := 0; r <= m; r++ {
		rows[r] = make([]r3.Vec, n)
		f := float64(r) / float64(m)
		for i := 0; i < n; i++ {
			q := r3.Add(r3.Scale(1-f, rail[i]), r3.Scale(f, seam[i]))
			if r > 0 && r < m && ctx.projectSeams {
				if on, nLoc, ok := bucket.NearestPoint(q); ok {
					q = on
					if ctx.inflate != 0 {
						q = r3.Add(q, r3.Scale(ctx.inflate, nLoc))
					}
				}
			}
			rows[r][i] = q
		}
	}
	return rows
}

// loftStrap triangulates a strap grid. End columns force the diagonal
// that lands on the cap boundary corner so caps share exact edges.
func (ctx *buildContext) loftStrap(label string, rows [][]r3.Vec) {
	m := len(rows) - 1
	n := len(rows[0])
	last := n - 1
	if ctx.closed {
		last = n
	}
	for i := 0; i < last; i++ {
		i1 := (i + 1) % n
		for r := 0; r < m; r++ {
			a := rows[r][i]
			b := rows[r][i1]
			c := rows[r+1][i1]
			d := rows[r+1][i]
			diagAC := (i+r)%2 == 0
			if !ctx.closed && i == 0 {
				diagAC = true
			}
			if !ctx.closed && i == last-1 {
				diagAC = false
			}
			if diagAC {
				ctx.addTri(label, a, b, c)
				ctx.addTri(label, a, c, d)
			} else {
				ctx.addTri(label, b, c, d)
				ctx.addTri(label, b, d, a)
			}
		}
	}
}

// colAt extracts one grid column, ordered rail row first.
func colAt(rows [][]r3.Vec, i int) []r3.Vec {
	col := make([]r3.Vec, len(rows))
	for r := range rows {
		col[r] = rows[r][i]
	}
	return col
}

// buildCap closes an open wedge end: the ring points, the B strap
// column reversed down to the rail, and the A strap column forward up
// to the seam, projected to a best-fit plane and ear-clipped. A
// triangle fan covers loops the clipper rejects; a positive CapBulge
// swaps the flat cap for a fan around an offset apex.
func (ctx *buildContext) buildCap(label string, ring, colA, colB []r3.Vec) {
	var loop []r3.Vec
	loop = append(loop, ring...) // seamA ... seamB
	for r := len(colB) - 2; r >= 0; r-- {
		loop = append(loop, colB[r]) // seamB side down to the rail
	}
	for r := 1; r < len(colA)-1; r++ {
		loop = append(loop, colA[r]) // rail back up toward seamA
	}
	loop = dedupLoop(loop)
	if len(loop) < 3 {
		return
	}

	origin, normal := geom.BestFitPlane(loop)

	if ctx.opts.CapBulge > 0 {
		// Orient the bulge away from the wedge body.
		toCap := r3.Sub(origin, ctx.wedgeCentroid())
		if r3.Dot(toCap, normal) < 0 {
			normal = r3.Scale(-1, normal)
		}
		apex := r3.Add(origin, r3.Scale(ctx.opts.CapBulge, normal))
		for i := range loop {
			j := (i + 1) % len(loop)
			ctx.addTri(label, loop[i], loop[j], apex)
		}
		return
	}

	u, v := geom.PlaneBasis(normal)
	tris, ok := geom.EarClip(geom.ProjectToPlane(loop, origin, u, v))
	if !ok {
		ctx.warnings = append(ctx.warnings, fmt.Sprintf("fillet: %s ear clipping failed, using fan", label))
		tris = geom.FanTriangulate(len(loop))
	}
	for _, tri := range tris {
		ctx.addTri(label, loop[tri[0]], loop[tri[1]], loop[tri[2]])
	}
}

func (ctx *buildContext) wedgeCentroid() r3.Vec {
	var sum r3.Vec
	for _, p := range ctx.railP {
		sum = r3.Add(sum, p)
	}
	return r3.Scale(1/float64(len(ctx.railP)), sum)
}

func dedupLoop(loop []r3.Vec) []r3.Vec {
	out := loop[:0]
	for _, p := range loop {
		if len(out) > 0 && r3.Norm(r3.Sub(p, out[len(out)-1])) < 1e-12 {
			continue
		}
		out = append(out, p)
	}
	if len(out) > 1 && r3.Norm(r3.Sub(out[0], out[len(out)-1])) < 1e-12 {
		out = out[:len(out)-1]
	}
	return out
}

// addTri skips degenerate input instead of authoring slivers.
func (ctx *buildContext) addTri(label string, a, b, c r3.Vec) {
	if geom.TriangleArea(a, b, c) < 1e-16 {
		return
	}
	ctx.solid.AddTriangle(label, a, b, c)
}

// repairLadder runs the manifold repair sequence on the assembled
// wedge: winding, quantize, degenerate removal, orientation, weld,
// surplus-triangle drop, winding again. The drop priority sacrifices
// strap triangles first, then caps, and keeps the arc surface.
func (ctx *buildContext) repairLadder() {
	s := ctx.solid
	r := ctx.radius

	priority := func(t int) int {
		switch s.FaceName(s.TriangleFace(t)) {
		case labelStrapA, labelStrapB:
			return 2
		case labelCap0, labelCap1:
			return 1
		default:
			return 0
		}
	}

	s.FixTriangleWindingsByAdjacency()
	s.QuantizeVertices(r * 1e-6)
	s.RemoveDegenerateTriangles(r * r * 1e-10)
	s.FixTriangleWindingsByAdjacency()
	s.EnforceOutwardOrientation()
	s.WeldVerticesByEpsilon(r * 1e-5)
	if dropped := s.DropSurplusTriangles(priority); dropped > 0 {
		ctx.warnings = append(ctx.warnings, fmt.Sprintf("fillet: dropped %d surplus triangles", dropped))
	}
	s.FixTriangleWindingsByAdjacency()
	s.EnforceOutwardOrientation()
}
