// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package inspect

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/zone-extract/internal/shapefile"
	"github.com/pdiddy/zone-extract/internal/shapefile/shptest"
	"github.com/pdiddy/zone-extract/pkg/types"
)

func rows() []shptest.Row {
	return []shptest.Row{
		{ID: "1", Culture: "DCZ", Surface: "1.5", Group: "1"},
		{ID: "2", Culture: "BTH", Surface: "0.5", Group: "1"},
		{ID: "3", Culture: "DCZ", Surface: "2", Group: "2"},
	}
}

func TestSummarize(t *testing.T) {
	src := shptest.Write(t, t.TempDir(), "rpg", rows(), shptest.Options{})

	r, err := Summarize(context.Background(), src, shapefile.DefaultOptions(), types.DefaultFieldMapping())
	require.NoError(t, err)

	assert.Equal(t, "Polygon", r.ShapeType)
	assert.Equal(t, 3, r.Records)
	assert.Equal(t, 2154, r.EPSG)
	assert.Len(t, r.Fields, 4)
	assert.Empty(t, r.Missing)
	assert.Empty(t, r.Problem)
	assert.Equal(t, []CultureCount{{Code: "DCZ", Count: 2}, {Code: "BTH", Count: 1}}, r.Cultures)
	assert.Less(t, r.BBox[0], r.BBox[2])
}

func TestSummarize_MissingFields(t *testing.T) {
	src := shptest.Write(t, t.TempDir(), "rpg", rows(), shptest.Options{Drop: []string{"CULTURE_D1"}})

	r, err := Summarize(context.Background(), src, shapefile.DefaultOptions(), types.DefaultFieldMapping())
	require.NoError(t, err)
	assert.Equal(t, []string{"CULTURE_D1"}, r.Missing)
	assert.Contains(t, r.Problem, "CULTURE_D1")
	assert.Nil(t, r.Cultures)
}

func TestSummarize_NotPolygons(t *testing.T) {
	src := shptest.Points(t, t.TempDir(), "pts", 3)

	r, err := Summarize(context.Background(), src, shapefile.DefaultOptions(), types.DefaultFieldMapping())
	require.NoError(t, err)
	assert.Equal(t, "Point", r.ShapeType)
	assert.Equal(t, 3, r.Records)
	assert.Empty(t, r.Missing)
	assert.Contains(t, r.Problem, "not a polygon type")
	assert.Nil(t, r.Cultures)

	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf, "yaml"))
	assert.Contains(t, buf.String(), "problem:")
}

func TestSummarize_MissingSource(t *testing.T) {
	_, err := Summarize(context.Background(), filepath.Join(t.TempDir(), "nope.shp"), shapefile.DefaultOptions(), types.DefaultFieldMapping())
	assert.Error(t, err)
}

func TestReport_Write(t *testing.T) {
	r := Report{Path: "rpg.shp", ShapeType: "Polygon", Records: 3, Fields: []shapefile.Field{{Name: "ID_PARCEL", Type: "C", Size: 20}}}

	var y bytes.Buffer
	require.NoError(t, r.Write(&y, "yaml"))
	var fromYAML Report
	require.NoError(t, yaml.Unmarshal(y.Bytes(), &fromYAML))
	assert.Equal(t, r.Records, fromYAML.Records)
	assert.Equal(t, "ID_PARCEL", fromYAML.Fields[0].Name)

	var j bytes.Buffer
	require.NoError(t, r.Write(&j, "json"))
	var fromJSON Report
	require.NoError(t, json.Unmarshal(j.Bytes(), &fromJSON))
	assert.Equal(t, "Polygon", fromJSON.ShapeType)

	assert.Error(t, r.Write(&j, "xml"))
}

func TestHistogram_Capped(t *testing.T) {
	coll := &types.ParcelCollection{}
	for i := 0; i < maxCultures+5; i++ {
		coll.Parcels = append(coll.Parcels, types.Parcel{Culture: string(rune('A' + i))})
	}
	assert.Len(t, histogram(coll), maxCultures)
}
