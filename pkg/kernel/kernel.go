// Package kernel defines the contract between the solid builders and
// the external boolean/level-set engine. Implementations (sdfx, a
// Manifold binding) provide boolean composition and iso-surface
// extraction behind this interface. Builders must hand strictly
// 2-manifold, outward-oriented meshes across it; the engine side is
// allowed to reject or silently mis-handle anything less.
package kernel

import "gonum.org/v1/gonum/spatial/r3"

// ScalarField is an implicit signed-distance style field. Negative
// values are inside the solid, positive outside.
type ScalarField func(p r3.Vec) float64

// Engine is the abstract boolean/level-set engine interface.
type Engine interface {
	// Boolean composition. Inputs and outputs are flat-buffer meshes.
	Union(a, b *Mesh) (*Mesh, error)
	Difference(a, b *Mesh) (*Mesh, error)
	Intersect(a, b *Mesh) (*Mesh, error)

	// IsoSurface extracts the zero level set of field over bounds,
	// meshed at roughly the given cell edge length.
	IsoSurface(field ScalarField, bounds r3.Box, cell float64) (*Mesh, error)

	// IsManifold probes whether the engine would accept the mesh.
	IsManifold(m *Mesh) bool
}
