// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package export

import (
	"database/sql"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/pdiddy/zone-extract/pkg/types"
)

func square(x, y, size float64) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		x, y, x, y + size, x + size, y + size, x + size, y, x, y,
	}, []int{10})
}

func sampleCollection() *types.ParcelCollection {
	mp := geom.NewMultiPolygon(geom.XY)
	_ = mp.Push(square(2.0, 46.0, 0.001))
	_ = mp.Push(square(2.1, 46.1, 0.001))
	return &types.ParcelCollection{
		CRS: types.EPSGCode(4326),
		Parcels: []types.Parcel{
			{ID: "1001", Culture: "DCZ", Surface: 1.25, Geometry: square(2.5, 46.5, 0.001)},
			{ID: "1002", Culture: "", Surface: 0.75, Geometry: mp},
			{ID: "1003", Culture: "BTH", Surface: 3, Geometry: nil},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    types.OutputFormat
		wantErr bool
	}{
		{in: "", want: ""},
		{in: "geojson", want: types.FormatGeoJSON},
		{in: "GeoJSON", want: types.FormatGeoJSON},
		{in: "json", want: types.FormatGeoJSON},
		{in: "gpkg", want: types.FormatGeoPackage},
		{in: "shp", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriterFor(t *testing.T) {
	w, err := WriterFor("", "out/zone.gpkg")
	require.NoError(t, err)
	assert.IsType(t, GeoPackage{}, w)

	w, err = WriterFor("", "out/zone.geojson")
	require.NoError(t, err)
	assert.IsType(t, GeoJSON{}, w)

	_, err = WriterFor("kml", "out/zone.kml")
	assert.Error(t, err)
}

func TestWriteGeoJSON_Structure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zone_pilote.geojson")
	res, err := WriteGeoJSON(path, sampleCollection(), types.DefaultFieldMapping())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
	assert.Len(t, res.Digest, 16)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.EqualValues(t, len(data), res.Bytes)

	var doc struct {
		Type     string          `json:"type"`
		Name     string          `json:"name"`
		CRS      json.RawMessage `json:"crs"`
		Features []struct {
			Type       string          `json:"type"`
			Properties map[string]any  `json:"properties"`
			Geometry   json.RawMessage `json:"geometry"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, "FeatureCollection", doc.Type)
	assert.Equal(t, "zone_pilote", doc.Name)
	assert.Nil(t, doc.CRS, "no crs member for EPSG:4326")
	require.Len(t, doc.Features, 3)

	for _, f := range doc.Features {
		assert.Equal(t, "Feature", f.Type)
		assert.Len(t, f.Properties, 3)
		assert.Contains(t, f.Properties, "ID_PARCEL")
		assert.Contains(t, f.Properties, "CULTURE_D1")
		assert.Contains(t, f.Properties, "SURF_PARC")
	}
	assert.Nil(t, doc.Features[1].Properties["CULTURE_D1"])
	assert.Contains(t, string(doc.Features[0].Geometry), `"Polygon"`)
	assert.Contains(t, string(doc.Features[1].Geometry), `"MultiPolygon"`)
	assert.Equal(t, "null", string(doc.Features[2].Geometry))
}

func TestWriteGeoJSON_CRSMember(t *testing.T) {
	coll := sampleCollection()
	coll.CRS = types.EPSGCode(2154)

	data, err := MarshalGeoJSON(coll, types.DefaultFieldMapping(), "zone")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"urn:ogc:def:crs:EPSG::2154"`)
}

func TestWriteGeoJSON_Idempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zone.geojson")

	first, err := WriteGeoJSON(path, sampleCollection(), types.DefaultFieldMapping())
	require.NoError(t, err)
	a, err := os.ReadFile(path)
	require.NoError(t, err)

	second, err := WriteGeoJSON(path, sampleCollection(), types.DefaultFieldMapping())
	require.NoError(t, err)
	b, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, first.Digest, second.Digest)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestGeoJSON_RoundTrip(t *testing.T) {
	for _, epsg := range []int{4326, 2154} {
		coll := sampleCollection()
		coll.CRS = types.EPSGCode(epsg)
		path := filepath.Join(t.TempDir(), "zone.geojson")

		_, err := WriteGeoJSON(path, coll, types.DefaultFieldMapping())
		require.NoError(t, err)

		back, err := ReadGeoJSON(path, types.DefaultFieldMapping())
		require.NoError(t, err)

		assert.Equal(t, epsg, back.CRS.EPSG)
		require.Equal(t, coll.Len(), back.Len())
		for i, want := range coll.Parcels {
			got := back.Parcels[i]
			assert.Equal(t, want.ID, got.ID)
			assert.Equal(t, want.Culture, got.Culture)
			assert.InDelta(t, want.Surface, got.Surface, 1e-12)
			if want.Geometry == nil {
				assert.Nil(t, got.Geometry)
				continue
			}
			require.NotNil(t, got.Geometry)
			assert.IsType(t, want.Geometry, got.Geometry)
			assert.Equal(t, want.Geometry.FlatCoords(), got.Geometry.FlatCoords())
		}
	}
}

func TestWriteGeoJSON_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "zone.geojson")
	_, err := WriteGeoJSON(path, sampleCollection(), types.DefaultFieldMapping())
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteGeoJSON_CustomFields(t *testing.T) {
	fields := types.FieldMapping{Identifier: "PARCEL", Culture: "CROP", Surface: "AREA_HA"}
	data, err := MarshalGeoJSON(sampleCollection(), fields, "")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"CROP":"DCZ"`)
	assert.NotContains(t, string(data), "ID_PARCEL")
}

func TestProperties_NaNSurfaceIsNull(t *testing.T) {
	props := properties(types.Parcel{ID: "x", Surface: math.NaN()}, types.DefaultFieldMapping())
	assert.Nil(t, props["SURF_PARC"])
}

func TestWriteGeoPackage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zone-pilote.gpkg")
	res, err := WriteGeoPackage(path, sampleCollection(), types.DefaultFieldMapping())
	require.NoError(t, err)
	assert.Equal(t, types.FormatGeoPackage, res.Format)
	assert.Equal(t, 3, res.Count)
	assert.Positive(t, res.Bytes)

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var appID int
	require.NoError(t, db.QueryRow(`PRAGMA application_id`).Scan(&appID))
	assert.Equal(t, gpkgApplicationID, appID)

	var table string
	var srsID int
	require.NoError(t, db.QueryRow(`SELECT table_name, srs_id FROM gpkg_contents`).Scan(&table, &srsID))
	assert.Equal(t, "zone_pilote", table)
	assert.Equal(t, 4326, srsID)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "zone_pilote"`).Scan(&count))
	assert.Equal(t, 3, count)

	var blob []byte
	var culture sql.NullString
	require.NoError(t, db.QueryRow(`SELECT geom, "CULTURE_D1" FROM "zone_pilote" WHERE "ID_PARCEL" = '1002'`).Scan(&blob, &culture))
	require.Greater(t, len(blob), 40)
	assert.Equal(t, []byte{'G', 'P', 0, gpkgFlags}, blob[:4])
	assert.False(t, culture.Valid)

	var nullGeom []byte
	require.NoError(t, db.QueryRow(`SELECT geom FROM "zone_pilote" WHERE "ID_PARCEL" = '1003'`).Scan(&nullGeom))
	assert.Nil(t, nullGeom)
}

func TestWriteGeoPackage_SpatialRefDefinition(t *testing.T) {
	tests := []struct {
		name     string
		crs      types.CRS
		contains string
	}{
		{"target code only", types.EPSGCode(2154), `AUTHORITY["EPSG","2154"]`},
		{"geographic code only", types.EPSGCode(4171), `GEOGCS["RGF93"`},
		{"carried wkt", types.CRS{EPSG: 32631, Definition: `PROJCS["WGS 84 / UTM zone 31N"]`}, "UTM zone 31N"},
		{"unknown code", types.EPSGCode(32631), "undefined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coll := sampleCollection()
			coll.CRS = tt.crs
			path := filepath.Join(t.TempDir(), "zone.gpkg")
			_, err := WriteGeoPackage(path, coll, types.DefaultFieldMapping())
			require.NoError(t, err)

			db, err := sql.Open("sqlite3", path)
			require.NoError(t, err)
			defer db.Close()

			var def string
			require.NoError(t, db.QueryRow(`SELECT definition FROM gpkg_spatial_ref_sys WHERE srs_id = ?`, tt.crs.EPSG).Scan(&def))
			assert.Contains(t, def, tt.contains)
		})
	}
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "zone_pilote", tableName("../data/zone_pilote.gpkg"))
	assert.Equal(t, "zone_pilote_v2", tableName("zone pilote.v2.gpkg"))
	assert.Equal(t, "t_2024_zone", tableName("2024-zone.gpkg"))
}
