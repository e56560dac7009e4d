package brep

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mmiscool/brep/pkg/geom"
)

// The repair toolkit. Every builder runs a subset of these before a
// mesh crosses the engine boundary: the engine rejects or silently
// mis-handles non-manifold input, so violations are resolved here by
// merging, re-winding or dropping triangles.

// EdgeKey is an undirected edge as a sorted vertex-index pair.
type EdgeKey [2]int

func edgeKey(a, b int) EdgeKey {
	if a > b {
		a, b = b, a
	}
	return EdgeKey{a, b}
}

// EdgeIncidence maps every undirected edge to the triangles using it.
func (s *Solid) EdgeIncidence() map[EdgeKey][]int {
	inc := make(map[EdgeKey][]int, len(s.triangles)*3/2)
	for t, tri := range s.triangles {
		for e := 0; e < 3; e++ {
			k := edgeKey(tri[e], tri[(e+1)%3])
			inc[k] = append(inc[k], t)
		}
	}
	return inc
}

// IsTwoManifold reports whether every undirected edge is used by
// exactly two triangles.
func (s *Solid) IsTwoManifold() bool {
	return len(s.NonManifoldEdges()) == 0
}

// NonManifoldEdges returns the edges whose incidence count is not 2.
func (s *Solid) NonManifoldEdges() []EdgeKey {
	var bad []EdgeKey
	for k, tris := range s.EdgeIncidence() {
		if len(tris) != 2 {
			bad = append(bad, k)
		}
	}
	return bad
}

// remapTriangles rewrites triangle indices through remap into the new
// vertex array, dropping triangles that collapsed onto fewer than
// three distinct vertices. Returns the number of dropped triangles.
func (s *Solid) remapTriangles(newVerts []r3.Vec, remap []int) int {
	tris := s.triangles[:0]
	ids := s.faceID[:0]
	dropped := 0
	for t, tri := range s.triangles {
		a, b, c := remap[tri[0]], remap[tri[1]], remap[tri[2]]
		if a == b || b == c || a == c {
			dropped++
			continue
		}
		tris = append(tris, [3]int{a, b, c})
		ids = append(ids, s.faceID[t])
	}
	s.triangles = tris
	s.faceID = ids
	s.vertices = newVerts
	s.pruneUnusedVertices()
	return dropped
}

// pruneUnusedVertices drops vertices no triangle references and
// renumbers the survivors.
func (s *Solid) pruneUnusedVertices() {
	used := make([]bool, len(s.vertices))
	for _, tri := range s.triangles {
		used[tri[0]], used[tri[1]], used[tri[2]] = true, true, true
	}
	remap := make([]int, len(s.vertices))
	verts := s.vertices[:0]
	n := 0
	for i, v := range s.vertices {
		if !used[i] {
			remap[i] = -1
			continue
		}
		remap[i] = n
		verts = append(verts, v)
		n++
	}
	s.vertices = verts
	for t, tri := range s.triangles {
		s.triangles[t] = [3]int{remap[tri[0]], remap[tri[1]], remap[tri[2]]}
	}
	s.rebuildLookup()
}

// WeldVerticesByEpsilon merges vertices closer than eps and remaps the
// triangle list. Welding twice at the same epsilon is a no-op the
// second time. Returns the number of vertices merged away.
func (s *Solid) WeldVerticesByEpsilon(eps float64) int {
	if eps <= 0 || len(s.vertices) == 0 {
		return 0
	}
	inv := 1 / eps
	cellOf := func(v r3.Vec) [3]int64 {
		return [3]int64{
			int64(math.Floor(v.X * inv)),
			int64(math.Floor(v.Y * inv)),
			int64(math.Floor(v.Z * inv)),
		}
	}
	grid := map[[3]int64][]int{} // indices into the kept vertex list
	var kept []r3.Vec
	remap := make([]int, len(s.vertices))
	eps2 := eps * eps
	merged := 0

	for i, v := range s.vertices {
		cell := cellOf(v)
		found := -1
		for dx := int64(-1); dx <= 1 && found < 0; dx++ {
			for dy := int64(-1); dy <= 1 && found < 0; dy++ {
				for dz := int64(-1); dz <= 1 && found < 0; dz++ {
					key := [3]int64{cell[0] + dx, cell[1] + dy, cell[2] + dz}
					for _, j := range grid[key] {
						if r3.Norm2(r3.Sub(kept[j], v)) <= eps2 {
							found = j
							break
						}
					}
				}
			}
		}
		if found >= 0 {
			remap[i] = found
			merged++
			continue
		}
		remap[i] = len(kept)
		grid[cell] = append(grid[cell], len(kept))
		kept = append(kept, v)
	}
	if merged == 0 {
		return 0
	}
	s.remapTriangles(kept, remap)
	return merged
}

// QuantizeVertices snaps every coordinate to the nearest multiple of
// eps and merges vertices that become identical.
func (s *Solid) QuantizeVertices(eps float64) int {
	if eps <= 0 || len(s.vertices) == 0 {
		return 0
	}
	snap := func(x float64) float64 { return math.Round(x/eps) * eps }
	seen := map[[3]float64]int{}
	var kept []r3.Vec
	remap := make([]int, len(s.vertices))
	merged := 0
	for i, v := range s.vertices {
		q := [3]float64{snap(v.X), snap(v.Y), snap(v.Z)}
		if j, ok := seen[q]; ok {
			remap[i] = j
			merged++
			continue
		}
		remap[i] = len(kept)
		seen[q] = len(kept)
		kept = append(kept, r3.Vec{X: q[0], Y: q[1], Z: q[2]})
	}
	s.remapTriangles(kept, remap)
	return merged
}

// RemoveDegenerateTriangles drops triangles whose area falls below
// areaEps. Returns the number removed.
func (s *Solid) RemoveDegenerateTriangles(areaEps float64) int {
	dead := map[int]bool{}
	for t := range s.triangles {
		a, b, c := s.Triangle(t)
		if geom.TriangleArea(a, b, c) < areaEps {
			dead[t] = true
		}
	}
	s.removeTriangles(dead)
	return len(dead)
}

// removeTriangles compacts the triangle and face-id arrays, dropping
// the marked triangles and any vertices that become unreferenced.
func (s *Solid) removeTriangles(dead map[int]bool) {
	if len(dead) == 0 {
		return
	}
	tris := s.triangles[:0]
	ids := s.faceID[:0]
	for t, tri := range s.triangles {
		if dead[t] {
			continue
		}
		tris = append(tris, tri)
		ids = append(ids, s.faceID[t])
	}
	s.triangles = tris
	s.faceID = ids
	s.pruneUnusedVertices()
}

// FixTriangleWindingsByAdjacency propagates a consistent winding over
// each connected component by breadth-first traversal: two triangles
// sharing an edge must traverse it in opposite directions. Returns the
// number of triangles flipped.
func (s *Solid) FixTriangleWindingsByAdjacency() int {
	inc := s.EdgeIncidence()
	visited := make([]bool, len(s.triangles))
	flipped := 0

	hasDirectedEdge := func(t, a, b int) bool {
		tri := s.triangles[t]
		for e := 0; e < 3; e++ {
			if tri[e] == a && tri[(e+1)%3] == b {
				return true
			}
		}
		return false
	}

	for seed := range s.triangles {
		if visited[seed] {
			continue
		}
		queue := []int{seed}
		visited[seed] = true
		for len(queue) > 0 {
			t := queue[0]
			queue = queue[1:]
			tri := s.triangles[t]
			for e := 0; e < 3; e++ {
				a, b := tri[e], tri[(e+1)%3]
				for _, n := range inc[edgeKey(a, b)] {
					if n == t || visited[n] {
						continue
					}
					// Same direction on a shared edge means the
					// neighbor disagrees with t's winding.
					if hasDirectedEdge(n, a, b) {
						ntri := s.triangles[n]
						s.triangles[n] = [3]int{ntri[0], ntri[2], ntri[1]}
						flipped++
					}
					visited[n] = true
					queue = append(queue, n)
				}
			}
		}
	}
	return flipped
}

// EnforceOutwardOrientation flips every triangle when the signed
// enclosed volume is negative, so closed meshes end up with outward
// normals. Returns true if the mesh was flipped.
func (s *Solid) EnforceOutwardOrientation() bool {
	if s.SignedVolume() >= 0 {
		return false
	}
	for t, tri := range s.triangles {
		s.triangles[t] = [3]int{tri[0], tri[2], tri[1]}
	}
	return true
}

// DropSurplusTriangles resolves edges shared by more than two
// triangles by dropping the surplus. priority ranks triangles for
// dropping: higher values go first; ties drop the smaller triangle.
// Returns the number of triangles dropped.
func (s *Solid) DropSurplusTriangles(priority func(t int) int) int {
	if priority == nil {
		priority = func(int) int { return 0 }
	}
	total := 0
	for pass := 0; pass < 8; pass++ {
		dead := map[int]bool{}
		for _, tris := range s.EdgeIncidence() {
			if len(tris) <= 2 {
				continue
			}
			alive := make([]int, 0, len(tris))
			for _, t := range tris {
				if !dead[t] {
					alive = append(alive, t)
				}
			}
			if len(alive) <= 2 {
				continue
			}
			sort.SliceStable(alive, func(i, j int) bool {
				pi, pj := priority(alive[i]), priority(alive[j])
				if pi != pj {
					return pi > pj
				}
				ai, bi, ci := s.Triangle(alive[i])
				aj, bj, cj := s.Triangle(alive[j])
				return geom.TriangleArea(ai, bi, ci) < geom.TriangleArea(aj, bj, cj)
			})
			for _, t := range alive[:len(alive)-2] {
				dead[t] = true
			}
		}
		if len(dead) == 0 {
			break
		}
		s.removeTriangles(dead)
		total += len(dead)
	}
	return total
}

// IslandOptions controls RemoveSmallIslands.
type IslandOptions struct {
	MaxTriangles   int  // islands at or below this size are candidates
	RemoveInternal bool // islands with negative enclosed volume
	RemoveExternal bool // islands with non-negative enclosed volume
}

// RemoveSmallIslands strips disconnected triangle clusters below the
// size threshold. The largest component always survives. Returns the
// number of triangles removed.
func (s *Solid) RemoveSmallIslands(opts IslandOptions) int {
	if opts.MaxTriangles <= 0 || len(s.triangles) == 0 {
		return 0
	}
	inc := s.EdgeIncidence()
	comp := make([]int, len(s.triangles))
	for i := range comp {
		comp[i] = -1
	}
	var sizes []int
	for seed := range s.triangles {
		if comp[seed] >= 0 {
			continue
		}
		id := len(sizes)
		size := 0
		queue := []int{seed}
		comp[seed] = id
		for len(queue) > 0 {
			t := queue[0]
			queue = queue[1:]
			size++
			tri := s.triangles[t]
			for e := 0; e < 3; e++ {
				for _, n := range inc[edgeKey(tri[e], tri[(e+1)%3])] {
					if comp[n] < 0 {
						comp[n] = id
						queue = append(queue, n)
					}
				}
			}
		}
		sizes = append(sizes, size)
	}
	if len(sizes) < 2 {
		return 0
	}
	largest := 0
	for id, sz := range sizes {
		if sz > sizes[largest] {
			largest = id
		}
	}

	// Per-component signed volume classifies cavities (negative) vs
	// floating external debris.
	vols := make([]float64, len(sizes))
	for t, tri := range s.triangles {
		a, b, c := s.vertices[tri[0]], s.vertices[tri[1]], s.vertices[tri[2]]
		vols[comp[t]] += r3.Dot(a, r3.Cross(b, c)) / 6
	}

	dead := map[int]bool{}
	for t := range s.triangles {
		id := comp[t]
		if id == largest || sizes[id] > opts.MaxTriangles {
			continue
		}
		internal := vols[id] < 0
		if (internal && opts.RemoveInternal) || (!internal && opts.RemoveExternal) {
			dead[t] = true
		}
	}
	s.removeTriangles(dead)
	return len(dead)
}
