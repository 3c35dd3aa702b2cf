// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package shapefile

import (
	"fmt"

	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// polygonGeometry converts a polygon-family shape to a *geom.Polygon or,
// when it has several shells, a *geom.MultiPolygon. Null shapes yield nil.
func polygonGeometry(s shp.Shape) (geom.T, error) {
	var parts []int32
	var points []shp.Point
	switch p := s.(type) {
	case nil, *shp.Null:
		return nil, nil
	case *shp.Polygon:
		parts, points = p.Parts, p.Points
	case *shp.PolygonZ:
		parts, points = p.Parts, p.Points
	case *shp.PolygonM:
		parts, points = p.Parts, p.Points
	default:
		return nil, fmt.Errorf("unexpected shape %T", s)
	}
	if len(points) == 0 {
		return nil, nil
	}
	return assemble(splitRings(parts, points))
}

// splitRings cuts the flat point list at the part offsets.
func splitRings(parts []int32, points []shp.Point) [][]float64 {
	if len(parts) == 0 {
		parts = []int32{0}
	}
	rings := make([][]float64, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start >= end || int(end) > len(points) {
			continue
		}
		flat := make([]float64, 0, 2*(end-start))
		for _, pt := range points[start:end] {
			flat = append(flat, pt.X, pt.Y)
		}
		rings = append(rings, flat)
	}
	return rings
}

// assemble groups rings into polygons. Shapefile shells wind clockwise and
// holes counter-clockwise; each hole goes to the first shell containing its
// first vertex. A hole with no enclosing shell becomes a shell itself.
func assemble(rings [][]float64) (geom.T, error) {
	var shells [][][]float64
	var holes [][]float64
	for _, r := range rings {
		if len(r) < 8 {
			return nil, fmt.Errorf("ring has %d points, need at least 4", len(r)/2)
		}
		if xy.IsRingCounterClockwise(geom.XY, r) {
			holes = append(holes, r)
		} else {
			shells = append(shells, [][]float64{r})
		}
	}

	for _, h := range holes {
		first := geom.Coord{h[0], h[1]}
		placed := false
		for i := range shells {
			if xy.IsPointInRing(geom.XY, first, shells[i][0]) {
				shells[i] = append(shells[i], h)
				placed = true
				break
			}
		}
		if !placed {
			shells = append(shells, [][]float64{h})
		}
	}

	if len(shells) == 1 {
		return polygonFromRings(shells[0]), nil
	}
	mp := geom.NewMultiPolygon(geom.XY)
	for _, rs := range shells {
		if err := mp.Push(polygonFromRings(rs)); err != nil {
			return nil, err
		}
	}
	return mp, nil
}

func polygonFromRings(rings [][]float64) *geom.Polygon {
	var flat []float64
	ends := make([]int, 0, len(rings))
	for _, r := range rings {
		flat = append(flat, r...)
		ends = append(ends, len(flat))
	}
	return geom.NewPolygonFlat(geom.XY, flat, ends)
}
