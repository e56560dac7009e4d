// Package extrude sweeps a planar or curved face profile along a
// direction into a closed solid: two caps from the translated profile
// triangles plus one side-wall quad strip per boundary edge.
package extrude

import (
	"errors"
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mmiscool/brep/pkg/brep"
	"github.com/mmiscool/brep/pkg/geom"
)

// Options controls the sweep.
type Options struct {
	// Distance sweeps along the face normal. Ignored when Direction
	// is set.
	Distance float64
	// Direction is an explicit sweep vector.
	Direction *r3.Vec
	// BackwardDistance optionally extends the sweep behind the
	// profile, along the negated forward direction.
	BackwardDistance float64
}

// Result is a finished extrusion.
type Result struct {
	Solid *brep.Solid
	// Warnings carries non-fatal consistency findings, one message
	// per affected side-wall face.
	Warnings []string
}

// islandLimit is the small-cluster threshold stripped after welding.
const islandLimit = 12

// capStartLabel and capEndLabel name the two cap faces.
const (
	capStartLabel = "CAP_START"
	capEndLabel   = "CAP_END"
)

// Build extrudes the face. The face must expose triangles and either
// boundary loops or boundary edges.
func Build(face *brep.Face, opts Options) (*Result, error) {
	if face == nil {
		return nil, errors.New("extrude: nil face")
	}
	if len(face.Triangles) == 0 {
		return nil, fmt.Errorf("extrude: face %q has no triangles", face.Name)
	}

	normal, haveNormal := face.AverageNormal()
	var dirF r3.Vec
	switch {
	case opts.Direction != nil:
		dirF = *opts.Direction
	case !haveNormal:
		return nil, fmt.Errorf("extrude: face %q has no usable normal and no explicit direction", face.Name)
	default:
		dirF = r3.Scale(opts.Distance, normal)
	}
	if !finiteVec(dirF) {
		return nil, fmt.Errorf("extrude: non-finite sweep direction for face %q", face.Name)
	}
	var dirB r3.Vec
	if opts.BackwardDistance != 0 {
		back, _ := geom.SafeUnit(dirF)
		dirB = r3.Scale(-math.Abs(opts.BackwardDistance), back)
	}
	if r3.Norm(r3.Sub(dirF, dirB)) < 1e-12 {
		return nil, fmt.Errorf("extrude: zero sweep for face %q", face.Name)
	}

	segs, err := boundarySegments(face)
	if err != nil {
		return nil, err
	}

	s := brep.NewSolid()

	// Cap-specific coordinate maps: every vertex addressed at the same
	// source location snaps to one transformed coordinate, so walls
	// share exact vertices with caps and no seam survives welding.
	snapF := newSnapMap(dirF)
	snapB := newSnapMap(dirB)

	for _, tri := range face.Triangles {
		// End cap keeps the profile winding, start cap reverses it.
		s.AddTriangle(capEndLabel, snapF.at(tri[0]), snapF.at(tri[1]), snapF.at(tri[2]))
		s.AddTriangle(capStartLabel, snapB.at(tri[0]), snapB.at(tri[2]), snapB.at(tri[1]))
	}

	wallSegs := map[string]int{}
	for _, seg := range segs {
		b0 := snapB.at(seg.p)
		b1 := snapB.at(seg.q)
		t1 := snapF.at(seg.q)
		t0 := snapF.at(seg.p)
		addQuad(s, seg.label, b0, b1, t1, t0)
		wallSegs[seg.label]++
	}

	diag := r3.Norm(r3.Sub(s.BoundingBox().Max, s.BoundingBox().Min))
	weldEps := geom.Clamp(diag*1e-6, 1e-7, 1e-4)
	s.WeldVerticesByEpsilon(weldEps)
	s.RemoveSmallIslands(brep.IslandOptions{
		MaxTriangles:   islandLimit,
		RemoveInternal: true,
		RemoveExternal: true,
	})
	s.FixTriangleWindingsByAdjacency()
	s.EnforceOutwardOrientation()

	res := &Result{Solid: s}

	// Each boundary segment must have produced exactly one quad (two
	// triangles). A mismatch is a consistency warning, not an abort.
	for label, n := range wallSegs {
		got := len(s.GetFace(label))
		if got != 2*n {
			msg := fmt.Sprintf("extrude: face %q side wall %q has %d triangles, want %d", face.Name, label, got, 2*n)
			log.Print(msg)
			res.Warnings = append(res.Warnings, msg)
		}
	}

	tagCylindricalWalls(s, face, dirF, dirB)
	return res, nil
}

func finiteVec(v r3.Vec) bool {
	finite := func(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }
	return finite(v.X) && finite(v.Y) && finite(v.Z)
}

// snapMap translates source coordinates once and replays the exact
// result for repeated lookups.
type snapMap struct {
	offset r3.Vec
	seen   map[[3]float64]r3.Vec
}

func newSnapMap(offset r3.Vec) *snapMap {
	return &snapMap{offset: offset, seen: map[[3]float64]r3.Vec{}}
}

func (m *snapMap) at(p r3.Vec) r3.Vec {
	key := [3]float64{p.X, p.Y, p.Z}
	if v, ok := m.seen[key]; ok {
		return v
	}
	v := r3.Add(p, m.offset)
	m.seen[key] = v
	return v
}

// segment is one boundary span owned by a named side-wall face.
type segment struct {
	p, q  r3.Vec
	label string
}

// boundarySegments prefers explicit outer/hole loops and falls back to
// per-edge polylines when the scene layer supplied none.
func boundarySegments(face *brep.Face) ([]segment, error) {
	var segs []segment

	if len(face.Loops) > 0 {
		lookup := edgeNameLookup(face)
		for li, loop := range face.Loops {
			pts := loop.Points
			if len(pts) < 2 {
				continue
			}
			if loop.IsHole {
				// Hole loops wind opposite to the outer loop so their
				// walls face the cavity.
				pts = reversed(pts)
			}
			for i := range pts {
				j := (i + 1) % len(pts)
				if j == 0 && r3.Norm(r3.Sub(pts[0], pts[len(pts)-1])) < 1e-12 {
					continue // explicit closing point
				}
				label := lookup(pts[i], pts[j])
				if label == "" {
					label = fmt.Sprintf("%s_WALL%d", face.Name, li)
				}
				segs = append(segs, segment{p: pts[i], q: pts[j], label: label})
			}
		}
		return segs, nil
	}

	for ei, e := range face.Edges {
		pts := e.Points
		if len(pts) < 2 {
			continue
		}
		label := e.Name
		if label == "" {
			label = fmt.Sprintf("%s_WALL%d", face.Name, ei)
		}
		n := len(pts) - 1
		for i := 0; i < n; i++ {
			segs = append(segs, segment{p: pts[i], q: pts[i+1], label: label})
		}
		if e.IsClosed() && r3.Norm(r3.Sub(pts[0], pts[len(pts)-1])) > 1e-12 {
			segs = append(segs, segment{p: pts[len(pts)-1], q: pts[0], label: label})
		}
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("extrude: face %q has no boundary loops or edges", face.Name)
	}
	return segs, nil
}

func reversed(pts []r3.Vec) []r3.Vec {
	out := make([]r3.Vec, len(pts))
	for i, p := range pts {
		out[len(pts)-1-i] = p
	}
	return out
}

// edgeNameLookup maps a segment back to the boundary edge that owns
// both endpoints, so loop-driven walls still carry edge names.
func edgeNameLookup(face *brep.Face) func(p, q r3.Vec) string {
	type key [3]int64
	const inv = 1e9
	quant := func(p r3.Vec) key {
		return key{int64(math.Round(p.X * inv)), int64(math.Round(p.Y * inv)), int64(math.Round(p.Z * inv))}
	}
	owner := map[[2]key]string{}
	for _, e := range face.Edges {
		if e.Name == "" {
			continue
		}
		pts := e.Points
		for i := 0; i+1 < len(pts); i++ {
			a, b := quant(pts[i]), quant(pts[i+1])
			owner[[2]key{a, b}] = e.Name
			owner[[2]key{b, a}] = e.Name
		}
		if e.IsClosed() && len(pts) > 2 {
			a, b := quant(pts[len(pts)-1]), quant(pts[0])
			owner[[2]key{a, b}] = e.Name
			owner[[2]key{b, a}] = e.Name
		}
	}
	return func(p, q r3.Vec) string {
		return owner[[2]key{quant(p), quant(q)}]
	}
}

// addQuad splits the quad (b0, b1, t1, t0) along the diagonal that
// yields the larger total area, which behaves better on folded or
// tapered walls.
func addQuad(s *brep.Solid, label string, b0, b1, t1, t0 r3.Vec) {
	areaA := geom.TriangleArea(b0, b1, t1) + geom.TriangleArea(b0, t1, t0)
	areaB := geom.TriangleArea(b1, t1, t0) + geom.TriangleArea(b1, t0, b0)
	if areaA >= areaB {
		s.AddTriangle(label, b0, b1, t1)
		s.AddTriangle(label, b0, t1, t0)
	} else {
		s.AddTriangle(label, b1, t1, t0)
		s.AddTriangle(label, b1, t0, b0)
	}
}

// tagCylindricalWalls attaches cylindrical metadata to walls swept
// from circular boundary edges.
func tagCylindricalWalls(s *brep.Solid, face *brep.Face, dirF, dirB r3.Vec) {
	sweep := r3.Sub(dirF, dirB)
	axis, ok := geom.SafeUnit(sweep)
	if !ok {
		return
	}
	for _, e := range face.Edges {
		if e.Circle == nil || e.Name == "" {
			continue
		}
		if len(s.GetFace(e.Name)) == 0 {
			continue
		}
		s.SetFaceMetadata(e.Name, brep.Metadata{
			"type":   "cylindrical",
			"radius": e.Circle.Radius,
			"axis":   axis,
			"center": r3.Add(e.Circle.Center, dirB),
			"height": r3.Norm(sweep),
		})
	}
}
