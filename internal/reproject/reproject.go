// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package reproject transforms parcel geometries between coordinate
// reference systems using PROJ.
package reproject

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/pebbe/proj/v5"
	"github.com/twpayne/go-geom"

	"github.com/pdiddy/zone-extract/pkg/types"
)

// ErrNoSourceCRS is returned when the input collection declares no CRS.
var ErrNoSourceCRS = errors.New("source coordinate reference system is not defined")

// axisProbe is a longitude/latitude pair used to detect latitude-first
// geographic systems. It must not lie on the lon == lat diagonal.
var axisProbe = [2]float64{10, 50}

// PointFunc transforms one coordinate pair.
type PointFunc func(x, y float64) (float64, float64, error)

// Transformer converts coordinates from a source CRS to a target EPSG code.
type Transformer struct {
	ctx    *proj.Context
	pj     *proj.PJ
	source types.CRS
	target types.CRS

	// swapIn and swapOut are set for CRSs whose authority axis order is
	// latitude first. Parcels always carry x = easting or longitude.
	swapIn  bool
	swapOut bool
}

// New builds a PROJ pipeline from source to targetEPSG.
func New(source types.CRS, targetEPSG int) (*Transformer, error) {
	if !source.Defined() {
		return nil, ErrNoSourceCRS
	}
	if targetEPSG <= 0 {
		return nil, fmt.Errorf("invalid target EPSG code %d", targetEPSG)
	}

	target := types.EPSGCode(targetEPSG)
	if source.EPSG == targetEPSG {
		target.Definition = source.Definition
	}
	ctx := proj.NewContext()
	pj, err := ctx.CreateCRS2CRS(source.String(), target.String(), nil)
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("creating transformation %s -> EPSG:%d: %w", source, targetEPSG, err)
	}
	return &Transformer{
		ctx:     ctx,
		pj:      pj,
		source:  source,
		target:  target,
		swapIn:  latFirst(ctx, source.String()),
		swapOut: latFirst(ctx, target.String()),
	}, nil
}

// latFirst reports whether def is a geographic CRS that PROJ addresses as
// (latitude, longitude). It transforms a known longitude/latitude pair from
// OGC:CRS84 and checks whether it comes back with its ordinates exchanged.
// Projected systems yield metres and never match.
func latFirst(ctx *proj.Context, def string) bool {
	pj, err := ctx.CreateCRS2CRS("OGC:CRS84", def, nil)
	if err != nil {
		return false
	}
	defer pj.Close()
	u, v, _, _, err := pj.Trans(proj.Fwd, axisProbe[0], axisProbe[1], 0, 0)
	if err != nil || !finite(u) || !finite(v) {
		return false
	}
	// Datum shifts between geographic systems stay well under a degree.
	return math.Abs(u-axisProbe[1]) < 0.5 && math.Abs(v-axisProbe[0]) < 0.5
}

// Close releases the PROJ objects.
func (t *Transformer) Close() {
	t.pj.Close()
	t.ctx.Close()
}

// Target returns the output CRS.
func (t *Transformer) Target() types.CRS {
	return t.target
}

// Point transforms one coordinate pair given and returned as (x, y), with
// longitude as x for geographic systems. Non-finite results are errors.
func (t *Transformer) Point(x, y float64) (float64, float64, error) {
	a, b := x, y
	if t.swapIn {
		a, b = y, x
	}
	u, v, _, _, err := t.pj.Trans(proj.Fwd, a, b, 0, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("transforming (%g, %g): %w", x, y, err)
	}
	if !finite(u) || !finite(v) {
		return 0, 0, fmt.Errorf("transforming (%g, %g): result out of range", x, y)
	}
	if t.swapOut {
		u, v = v, u
	}
	return u, v, nil
}

// Geometry returns a transformed copy of g.
func (t *Transformer) Geometry(g geom.T) (geom.T, error) {
	return Apply(g, t.Point)
}

// Apply returns a copy of g with fn applied to every coordinate. Z and M
// ordinates are kept as they are. A nil geometry stays nil.
func Apply(g geom.T, fn PointFunc) (geom.T, error) {
	var out geom.T
	switch v := g.(type) {
	case nil:
		return nil, nil
	case *geom.Point:
		out = v.Clone()
	case *geom.LineString:
		out = v.Clone()
	case *geom.Polygon:
		out = v.Clone()
	case *geom.MultiPolygon:
		out = v.Clone()
	default:
		return nil, fmt.Errorf("unsupported geometry %T", g)
	}

	flat := out.FlatCoords()
	stride := out.Stride()
	for i := 0; i+1 < len(flat); i += stride {
		x, y, err := fn(flat[i], flat[i+1])
		if err != nil {
			return nil, err
		}
		flat[i], flat[i+1] = x, y
	}
	return out, nil
}

// Projector reprojects whole collections. It satisfies the pipeline's
// projection seam.
type Projector struct{}

// Project returns a copy of coll in EPSG:targetEPSG. The input is left
// untouched.
func (Projector) Project(ctx context.Context, coll *types.ParcelCollection, targetEPSG int) (*types.ParcelCollection, error) {
	t, err := New(coll.CRS, targetEPSG)
	if err != nil {
		return nil, err
	}
	defer t.Close()
	return Collection(ctx, coll, t.Target(), t.Geometry)
}

// Collection applies transform to every parcel geometry and stamps the
// result with target.
func Collection(ctx context.Context, coll *types.ParcelCollection, target types.CRS, transform func(geom.T) (geom.T, error)) (*types.ParcelCollection, error) {
	out := &types.ParcelCollection{
		CRS:     target,
		Parcels: make([]types.Parcel, len(coll.Parcels)),
	}
	for i, p := range coll.Parcels {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		g, err := transform(p.Geometry)
		if err != nil {
			return nil, fmt.Errorf("parcel %s: %w", p.ID, err)
		}
		p.Geometry = g
		out.Parcels[i] = p
	}
	return out, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
