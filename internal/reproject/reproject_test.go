// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package reproject

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/pdiddy/zone-extract/internal/shapefile/shptest"
	"github.com/pdiddy/zone-extract/pkg/types"
)

func square(x, y, size float64) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		x, y, x, y + size, x + size, y + size, x + size, y, x, y,
	}, []int{10})
}

func shift(dx, dy float64) PointFunc {
	return func(x, y float64) (float64, float64, error) {
		return x + dx, y + dy, nil
	}
}

func TestApply_CopiesAndTransforms(t *testing.T) {
	in := square(0, 0, 10)

	out, err := Apply(in, shift(100, 200))
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 0, 0, 10, 10, 10, 10, 0, 0, 0}, in.FlatCoords(), "input must not change")
	assert.Equal(t, []float64{100, 200, 100, 210, 110, 210, 110, 200, 100, 200}, out.FlatCoords())
	assert.Equal(t, in.Ends(), out.(*geom.Polygon).Ends())
}

func TestApply_MultiPolygon(t *testing.T) {
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(square(0, 0, 1)))
	require.NoError(t, mp.Push(square(5, 5, 1)))

	out, err := Apply(mp, shift(1, 1))
	require.NoError(t, err)
	got := out.(*geom.MultiPolygon)
	assert.Equal(t, 2, got.NumPolygons())
	assert.Equal(t, []float64{6, 6}, got.Polygon(1).FlatCoords()[:2])
}

func TestApply_NilAndErrors(t *testing.T) {
	out, err := Apply(nil, shift(1, 1))
	require.NoError(t, err)
	assert.Nil(t, out)

	boom := errors.New("boom")
	_, err = Apply(square(0, 0, 1), func(x, y float64) (float64, float64, error) { return 0, 0, boom })
	assert.ErrorIs(t, err, boom)

	_, err = Apply(geom.NewMultiPoint(geom.XY), shift(0, 0))
	assert.Error(t, err)
}

func TestCollection_StampsTargetCRS(t *testing.T) {
	coll := &types.ParcelCollection{
		CRS: types.EPSGCode(2154),
		Parcels: []types.Parcel{
			{ID: "a", Culture: "DCZ", Surface: 1, Geometry: square(0, 0, 1)},
			{ID: "b", Surface: 2},
		},
	}
	out, err := Collection(context.Background(), coll, types.EPSGCode(3857), func(g geom.T) (geom.T, error) {
		return Apply(g, shift(10, 0))
	})
	require.NoError(t, err)

	assert.Equal(t, 3857, out.CRS.EPSG)
	assert.Equal(t, 2154, coll.CRS.EPSG)
	require.Len(t, out.Parcels, 2)
	assert.Equal(t, "DCZ", out.Parcels[0].Culture)
	assert.Equal(t, 10.0, out.Parcels[0].Geometry.FlatCoords()[0])
	assert.Nil(t, out.Parcels[1].Geometry)
}

func TestCollection_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	coll := &types.ParcelCollection{Parcels: []types.Parcel{{ID: "a"}}}
	_, err := Collection(ctx, coll, types.EPSGCode(4326), func(g geom.T) (geom.T, error) { return g, nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(types.CRS{}, 4326)
	assert.ErrorIs(t, err, ErrNoSourceCRS)

	_, err = New(types.EPSGCode(2154), 0)
	assert.Error(t, err)

	_, err = New(types.EPSGCode(2154), 999999)
	assert.Error(t, err)
}

func TestTransformer_Lambert93ToWGS84(t *testing.T) {
	sources := map[string]types.CRS{
		"epsg code": types.EPSGCode(2154),
		"prj wkt":   {EPSG: 0, Definition: shptest.Lambert93WKT},
	}
	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			tr, err := New(src, 4326)
			require.NoError(t, err)
			defer tr.Close()

			// Projection origin of Lambert-93.
			lon, lat, err := tr.Point(700000, 6600000)
			require.NoError(t, err)
			assert.InDelta(t, 3.0, lon, 1e-6)
			assert.InDelta(t, 46.5, lat, 1e-6)
		})
	}
}

func TestProjector_WithinGeographicRange(t *testing.T) {
	coll := &types.ParcelCollection{
		CRS: types.EPSGCode(2154),
		Parcels: []types.Parcel{
			{ID: "1", Surface: 1, Geometry: square(650000, 6860000, 50)},
			{ID: "2", Surface: 1, Geometry: square(1000000, 6200000, 80)},
		},
	}
	out, err := Projector{}.Project(context.Background(), coll, 4326)
	require.NoError(t, err)
	assert.Equal(t, types.EPSGCode(4326), out.CRS)

	for _, p := range out.Parcels {
		flat := p.Geometry.FlatCoords()
		for i := 0; i < len(flat); i += 2 {
			assert.True(t, flat[i] >= -180 && flat[i] <= 180, "lon %v", flat[i])
			assert.True(t, flat[i+1] >= -90 && flat[i+1] <= 90, "lat %v", flat[i+1])
			assert.InDelta(t, 2.5, flat[i], 5)
			assert.InDelta(t, 46.5, flat[i+1], 5)
		}
	}
}

func TestTransformer_LatitudeFirstTargets(t *testing.T) {
	// RGF93 geographic, ETRS89 and WGS 84 are latitude first in the
	// EPSG registry; output must still be (lon, lat).
	for _, code := range []int{4171, 4258, 4326} {
		t.Run(types.EPSGCode(code).String(), func(t *testing.T) {
			tr, err := New(types.EPSGCode(2154), code)
			require.NoError(t, err)
			defer tr.Close()

			x, y, err := tr.Point(700000, 6600000)
			require.NoError(t, err)
			assert.InDelta(t, 3.0, x, 1e-5)
			assert.InDelta(t, 46.5, y, 1e-5)
		})
	}
}

func TestTransformer_LatitudeFirstSource(t *testing.T) {
	tr, err := New(types.EPSGCode(4258), 2154)
	require.NoError(t, err)
	defer tr.Close()

	e, n, err := tr.Point(3.0, 46.5)
	require.NoError(t, err)
	assert.InDelta(t, 700000, e, 1)
	assert.InDelta(t, 6600000, n, 1)
}

func TestProjector_LatitudeFirstTarget(t *testing.T) {
	coll := &types.ParcelCollection{
		CRS:     types.EPSGCode(2154),
		Parcels: []types.Parcel{{ID: "1", Surface: 1, Geometry: square(700000, 6600000, 10)}},
	}
	out, err := Projector{}.Project(context.Background(), coll, 4171)
	require.NoError(t, err)

	flat := out.Parcels[0].Geometry.FlatCoords()
	assert.InDelta(t, 3.0, flat[0], 1e-3)
	assert.InDelta(t, 46.5, flat[1], 1e-3)
}

func TestTransformer_TargetKeepsSourceDefinition(t *testing.T) {
	src := types.CRS{EPSG: 2154, Definition: shptest.Lambert93WKT}

	same, err := New(src, 2154)
	require.NoError(t, err)
	defer same.Close()
	assert.Equal(t, shptest.Lambert93WKT, same.Target().Definition)

	other, err := New(src, 4326)
	require.NoError(t, err)
	defer other.Close()
	assert.Equal(t, "EPSG:4326", other.Target().Definition)
}
