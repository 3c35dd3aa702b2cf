// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package inspect summarizes a source shapefile so field mappings can be
// written before running an extraction.
package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/zone-extract/internal/shapefile"
	"github.com/pdiddy/zone-extract/pkg/types"
)

// maxCultures caps the culture histogram in a report.
const maxCultures = 25

// CultureCount is one entry of the culture histogram.
type CultureCount struct {
	Code  string `json:"code" yaml:"code"`
	Count int    `json:"count" yaml:"count"`
}

// Report describes a source dataset.
type Report struct {
	Path          string            `json:"path" yaml:"path"`
	ShapeType     string            `json:"shape_type" yaml:"shape_type"`
	Records       int               `json:"records" yaml:"records"`
	CRS           string            `json:"crs" yaml:"crs"`
	EPSG          int               `json:"epsg,omitempty" yaml:"epsg,omitempty"`
	BBox          [4]float64        `json:"bbox" yaml:"bbox,flow"`
	IndexRestored bool              `json:"index_restored" yaml:"index_restored"`
	Encoding      string            `json:"encoding" yaml:"encoding"`
	Fields        []shapefile.Field `json:"fields" yaml:"fields"`

	// Cultures is filled when the mapped fields are present.
	Cultures []CultureCount `json:"cultures,omitempty" yaml:"cultures,omitempty"`

	// Missing lists mapped fields the dataset lacks.
	Missing []string `json:"missing,omitempty" yaml:"missing,omitempty"`

	// Problem says why an extraction from this dataset would fail, e.g.
	// missing fields or a non-polygon geometry type.
	Problem string `json:"problem,omitempty" yaml:"problem,omitempty"`
}

// Summarize reads the headers of path and, when the mapping matches, the
// most frequent culture codes.
func Summarize(ctx context.Context, path string, opts shapefile.Options, fields types.FieldMapping) (Report, error) {
	ds, err := shapefile.Open(path, opts)
	if err != nil {
		return Report{}, err
	}
	defer ds.Close()

	s := ds.Schema()
	r := Report{
		Path:          path,
		ShapeType:     s.ShapeType,
		Records:       s.Count,
		EPSG:          s.CRS.EPSG,
		BBox:          s.BBox,
		IndexRestored: s.IndexRestored,
		Encoding:      s.Encoding,
		Fields:        s.Fields,
	}
	if s.CRS.Defined() {
		r.CRS = s.CRS.String()
	}

	fields = fields.WithDefaults()
	if err := ds.Require(fields.Names()...); err != nil {
		var missing *shapefile.MissingFieldsError
		var shape *shapefile.ShapeTypeError
		switch {
		case errors.As(err, &missing):
			r.Missing = missing.Fields
		case errors.As(err, &shape):
		default:
			return Report{}, err
		}
		r.Problem = err.Error()
		return r, nil
	}

	coll, err := ds.Records(ctx, fields)
	if err != nil {
		return Report{}, fmt.Errorf("reading records: %w", err)
	}
	r.Cultures = histogram(coll)
	return r, nil
}

func histogram(coll *types.ParcelCollection) []CultureCount {
	counts := make(map[string]int)
	for _, p := range coll.Parcels {
		counts[p.Culture]++
	}
	out := make([]CultureCount, 0, len(counts))
	for code, n := range counts {
		out = append(out, CultureCount{Code: code, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Code < out[j].Code
	})
	if len(out) > maxCultures {
		out = out[:maxCultures]
	}
	return out
}

// WriteYAML writes the report as YAML.
func (r Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return enc.Close()
}

// WriteJSON writes the report as indented JSON.
func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return nil
}

// Write dispatches on format: "yaml" (default) or "json".
func (r Report) Write(w io.Writer, format string) error {
	switch format {
	case "", "yaml", "yml":
		return r.WriteYAML(w)
	case "json":
		return r.WriteJSON(w)
	default:
		return fmt.Errorf("unsupported report format %q: use yaml or json", format)
	}
}
