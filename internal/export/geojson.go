// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/pdiddy/zone-extract/pkg/types"
)

type featureCollection struct {
	Type     string    `json:"type"`
	Name     string    `json:"name,omitempty"`
	CRS      *namedCRS `json:"crs,omitempty"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string            `json:"type"`
	Properties map[string]any    `json:"properties"`
	Geometry   *geojson.Geometry `json:"geometry"`
}

type namedCRS struct {
	Type       string `json:"type"`
	Properties struct {
		Name string `json:"name"`
	} `json:"properties"`
}

type featureIn struct {
	Properties map[string]any  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

type featureCollectionIn struct {
	Type     string      `json:"type"`
	CRS      *namedCRS   `json:"crs"`
	Features []featureIn `json:"features"`
}

// GeoJSON writes FeatureCollection files.
type GeoJSON struct{}

// Write implements Writer.
func (GeoJSON) Write(path string, coll *types.ParcelCollection, fields types.FieldMapping) (Result, error) {
	return WriteGeoJSON(path, coll, fields)
}

// WriteGeoJSON writes coll as a GeoJSON FeatureCollection. A crs member is
// added only when the collection is not in EPSG:4326.
func WriteGeoJSON(path string, coll *types.ParcelCollection, fields types.FieldMapping) (Result, error) {
	data, err := MarshalGeoJSON(coll, fields, layerName(path))
	if err != nil {
		return Result{}, err
	}
	err = replaceFile(path, func(tmp string) error {
		return os.WriteFile(tmp, data, 0o644)
	})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Path:   path,
		Format: types.FormatGeoJSON,
		Count:  coll.Len(),
		Bytes:  int64(len(data)),
		Digest: formatDigest(xxhash.Sum64(data)),
	}, nil
}

// MarshalGeoJSON encodes coll. Output is deterministic for a given input.
func MarshalGeoJSON(coll *types.ParcelCollection, fields types.FieldMapping, name string) ([]byte, error) {
	fc := featureCollection{
		Type:     "FeatureCollection",
		Name:     name,
		Features: make([]feature, len(coll.Parcels)),
	}
	if coll.CRS.EPSG != 4326 && coll.CRS.Defined() {
		fc.CRS = &namedCRS{Type: "name"}
		fc.CRS.Properties.Name = crsURN(coll.CRS)
	}

	for i, p := range coll.Parcels {
		var g *geojson.Geometry
		if p.Geometry != nil {
			enc, err := geojson.Encode(p.Geometry)
			if err != nil {
				return nil, fmt.Errorf("encoding parcel %s: %w", p.ID, err)
			}
			g = enc
		}
		fc.Features[i] = feature{
			Type:       "Feature",
			Properties: properties(p, fields),
			Geometry:   g,
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fc); err != nil {
		return nil, fmt.Errorf("marshaling GeoJSON: %w", err)
	}
	return buf.Bytes(), nil
}

func properties(p types.Parcel, fields types.FieldMapping) map[string]any {
	props := map[string]any{
		fields.Identifier: p.ID,
		fields.Culture:    nil,
		fields.Surface:    nil,
	}
	if p.HasCulture() {
		props[fields.Culture] = p.Culture
	}
	if p.HasSurface() && !math.IsInf(p.Surface, 0) {
		props[fields.Surface] = p.Surface
	}
	return props
}

// ReadGeoJSON loads a file written by WriteGeoJSON back into a collection.
func ReadGeoJSON(path string, fields types.FieldMapping) (*types.ParcelCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var fc featureCollectionIn
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("parsing %s: type %q is not a FeatureCollection", path, fc.Type)
	}

	coll := &types.ParcelCollection{
		CRS:     types.EPSGCode(4326),
		Parcels: make([]types.Parcel, len(fc.Features)),
	}
	if fc.CRS != nil {
		coll.CRS = crsFromURN(fc.CRS.Properties.Name)
	}
	for i, f := range fc.Features {
		var g geom.T
		if len(f.Geometry) > 0 && string(f.Geometry) != "null" {
			if err := geojson.Unmarshal(f.Geometry, &g); err != nil {
				return nil, fmt.Errorf("parsing %s: feature %d: %w", path, i, err)
			}
		}
		coll.Parcels[i] = types.Parcel{
			ID:       stringProp(f.Properties[fields.Identifier]),
			Culture:  stringProp(f.Properties[fields.Culture]),
			Surface:  numberProp(f.Properties[fields.Surface]),
			Geometry: g,
		}
	}
	return coll, nil
}

func stringProp(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(s)
	}
}

func numberProp(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
	}
	return math.NaN()
}

func crsURN(c types.CRS) string {
	if c.EPSG > 0 {
		return fmt.Sprintf("urn:ogc:def:crs:EPSG::%d", c.EPSG)
	}
	return c.Definition
}

func crsFromURN(urn string) types.CRS {
	if i := strings.LastIndex(urn, ":"); i >= 0 && strings.Contains(strings.ToUpper(urn), "EPSG") {
		if code, err := strconv.Atoi(urn[i+1:]); err == nil {
			return types.EPSGCode(code)
		}
	}
	if strings.HasSuffix(urn, "CRS84") {
		return types.EPSGCode(4326)
	}
	return types.ParseCRS(urn)
}

func layerName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
