// Package offset rebuilds a solid at a signed distance from its
// surface: a signed-distance field over an R-tree of the source
// triangles, iso-surface extraction through the external engine, and
// a scoring pass that maps the extracted triangles back onto source
// face identities.
package offset

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mmiscool/brep/pkg/brep"
	"github.com/mmiscool/brep/pkg/geom"
	"github.com/mmiscool/brep/pkg/kernel"
	"github.com/mmiscool/brep/pkg/spatial"
)

// FallbackLabel names output triangles whose source face could not be
// recovered.
const FallbackLabel = "OFFSET"

// Options tunes the offset build.
type Options struct {
	// GridCell overrides the adaptively chosen marching-cubes cell
	// edge length.
	GridCell float64
	// Margin pads the sampling box beyond the offset distance.
	// Defaults to 5% of the source bounding diagonal.
	Margin float64
	// ValidateRaycast confirms face inheritance with a directed
	// raycast from each output triangle centroid.
	ValidateRaycast bool
}

// Result is a finished shell offset.
type Result struct {
	Solid    *brep.Solid
	Warnings []string
}

// Build offsets the source solid by distance. Zero and NaN distances
// return an untouched clone.
func Build(src *brep.Solid, distance float64, engine kernel.Engine, opts Options) (*Result, error) {
	if src == nil {
		return nil, errors.New("offset: nil source solid")
	}
	if distance == 0 || math.IsNaN(distance) {
		return &Result{Solid: src.Clone()}, nil
	}
	if math.IsInf(distance, 0) {
		return nil, fmt.Errorf("offset: non-finite distance %v", distance)
	}
	if engine == nil {
		return nil, errors.New("offset: nil engine")
	}
	if src.TriangleCount() == 0 {
		return nil, errors.New("offset: source solid has no triangles")
	}

	ix := spatial.NewTriangleIndex(src)
	if ix.Len() == 0 {
		return nil, errors.New("offset: source solid has no usable triangles")
	}

	bounds := paddedBounds(ix.Bounds(), distance, opts.Margin)
	cell := opts.GridCell
	if cell <= 0 {
		cell = adaptiveCell(bounds, distance)
	}

	field := func(p r3.Vec) float64 {
		return ix.SignedDistance(p) - distance
	}
	mesh, err := engine.IsoSurface(field, bounds, cell)
	if err != nil {
		return nil, fmt.Errorf("offset: iso-surface extraction: %w", err)
	}
	if mesh.TriangleCount() == 0 {
		return nil, errors.New("offset: iso-surface extraction produced no triangles")
	}

	res := &Result{}
	out := inheritFaces(mesh, src, ix, distance, opts)

	// Grid artifacts: disconnected shards below 1% of the output.
	limit := out.TriangleCount() / 100
	if limit > 0 {
		if removed := out.RemoveSmallIslands(brep.IslandOptions{
			MaxTriangles:   limit,
			RemoveInternal: true,
			RemoveExternal: true,
		}); removed > 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("offset: stripped %d grid-artifact triangles", removed))
		}
	}
	out.FixTriangleWindingsByAdjacency()
	out.EnforceOutwardOrientation()

	res.Solid = out
	return res, nil
}

// paddedBounds grows the source box to hold the offset surface: the
// full distance plus a margin outward, margin only for inward offsets.
// Degenerate extents are corrected to at least the margin.
func paddedBounds(b r3.Box, distance, margin float64) r3.Box {
	diag := r3.Norm(r3.Sub(b.Max, b.Min))
	if margin <= 0 {
		margin = diag*0.05 + 1e-9
	}
	pad := margin
	if distance > 0 {
		pad += distance
	}
	out := r3.Box{
		Min: r3.Vec{X: b.Min.X - pad, Y: b.Min.Y - pad, Z: b.Min.Z - pad},
		Max: r3.Vec{X: b.Max.X + pad, Y: b.Max.Y + pad, Z: b.Max.Z + pad},
	}
	// Degenerate-box correction for flat or empty sources.
	fix := func(lo, hi *float64) {
		if *hi-*lo < margin {
			mid := (*hi + *lo) / 2
			*lo = mid - margin/2
			*hi = mid + margin/2
		}
	}
	fix(&out.Min.X, &out.Max.X)
	fix(&out.Min.Y, &out.Max.Y)
	fix(&out.Min.Z, &out.Max.Z)
	return out
}

// adaptiveCell picks a marching-cubes edge length fine enough to
// resolve the offset distance but bounded by grid cost.
func adaptiveCell(b r3.Box, distance float64) float64 {
	diag := r3.Norm(r3.Sub(b.Max, b.Min))
	cell := diag / 96
	if ad := math.Abs(distance); ad/2 < cell {
		cell = math.Max(ad/2, diag/512)
	}
	return cell
}

// candidate accumulates inheritance evidence for one source face.
type candidate struct {
	face        int
	occurrences int
	normalAlign float64 // best dot(source normal, output normal)
	offsetAlign float64 // agreement of sample direction with the offset side
	proximity   float64 // smallest |distance to face - |offset||
}

// score orders candidates lexicographically: more hits, better normal
// alignment, better offset alignment, closer proximity.
func (c candidate) betterThan(o candidate) bool {
	if c.occurrences != o.occurrences {
		return c.occurrences > o.occurrences
	}
	if c.normalAlign != o.normalAlign {
		return c.normalAlign > o.normalAlign
	}
	if c.offsetAlign != o.offsetAlign {
		return c.offsetAlign > o.offsetAlign
	}
	return c.proximity < o.proximity
}

// inheritFaces buckets extracted triangles by their best-scoring
// source labels and re-emits each bucket as one output face, carrying
// source metadata along.
func inheritFaces(mesh *kernel.Mesh, src *brep.Solid, ix *spatial.TriangleIndex, distance float64, opts Options) *brep.Solid {
	out := brep.NewSolid()
	sign := 1.0
	if distance < 0 {
		sign = -1
	}
	ad := math.Abs(distance)

	usedLabels := map[string][]string{} // bucket key -> source labels
	for t := 0; t < mesh.TriangleCount(); t++ {
		a, b, c := mesh.Triangle(t)
		triN, _ := geom.SafeUnit(geom.TriangleNormal(a, b, c))
		cen := r3.Scale(1.0/3.0, r3.Add(a, r3.Add(b, c)))

		cands := map[int]*candidate{}
		for _, p := range [4]r3.Vec{a, b, c, cen} {
			on, n, face, dist := ix.Nearest(p)
			if face < 0 {
				continue
			}
			cd := cands[face]
			if cd == nil {
				cd = &candidate{face: face, proximity: math.Inf(1), normalAlign: -1, offsetAlign: -1}
				cands[face] = cd
			}
			cd.occurrences++
			if al := r3.Dot(n, triN); al > cd.normalAlign {
				cd.normalAlign = al
			}
			if dir, ok := geom.SafeUnit(r3.Sub(p, on)); ok {
				if oa := sign * r3.Dot(dir, n); oa > cd.offsetAlign {
					cd.offsetAlign = oa
				}
			}
			if prox := math.Abs(dist - ad); prox < cd.proximity {
				cd.proximity = prox
			}
		}

		ranked := make([]candidate, 0, len(cands))
		for _, cd := range cands {
			ranked = append(ranked, *cd)
		}
		sort.Slice(ranked, func(i, j int) bool { return ranked[i].betterThan(ranked[j]) })

		if opts.ValidateRaycast && len(ranked) > 1 {
			// The ray back toward the source surface should land on
			// the winning face; promote the runner-up when it does
			// and the winner does not.
			dir := r3.Scale(-sign, triN)
			if face, _, ok := ix.FirstRayHit(cen, dir); ok {
				if face != ranked[0].face && ranked[1].face == face {
					ranked[0], ranked[1] = ranked[1], ranked[0]
				}
			}
		}

		var labels []string
		for _, cd := range ranked {
			if len(labels) == 2 {
				break
			}
			if name := src.FaceName(cd.face); name != "" {
				labels = append(labels, name)
			}
		}
		if len(labels) == 0 {
			labels = []string{FallbackLabel}
		}
		sort.Strings(labels)
		key := strings.Join(labels, "|")
		usedLabels[key] = labels

		out.AddTriangle(key, a, b, c)
	}

	// Metadata propagation: single-source buckets keep the analytic
	// attributes (cylindrical/conical hints) of their origin face.
	for key, labels := range usedLabels {
		if len(labels) != 1 {
			continue
		}
		if md := src.FaceMetadata(labels[0]); md != nil {
			out.SetFaceMetadata(key, md)
		}
	}
	return out
}
