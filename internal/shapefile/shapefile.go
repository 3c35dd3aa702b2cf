// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package shapefile reads parcel records from an ESRI shapefile set
// (.shp/.dbf with optional .shx and .prj companions).
package shapefile

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"

	"github.com/pdiddy/zone-extract/pkg/types"
)

const (
	extSHP = ".shp"
	extDBF = ".dbf"
	extSHX = ".shx"
	extPRJ = ".prj"

	// ctxCheckEvery is how many records are read between context checks.
	ctxCheckEvery = 1024

	// maxPrealloc bounds the slice reserved from the .dbf record count.
	maxPrealloc = 1 << 20
)

// epsgAuthorityRE matches the outermost AUTHORITY clause of a WKT1 string.
var epsgAuthorityRE = regexp.MustCompile(`AUTHORITY\[\s*"EPSG"\s*,\s*"(\d+)"\s*\]\s*\]\s*$`)

// Options configures how a dataset is opened.
type Options struct {
	// RestoreIndex tolerates a missing .shx file. Records are read
	// sequentially from the .shp, so the index is derived on the fly
	// instead of being required on disk.
	RestoreIndex bool

	// Encoding overrides the attribute code page declared by the .cpg file,
	// e.g. "UTF-8", "1252" or "ISO-8859-1".
	Encoding string
}

// DefaultOptions returns options that restore a missing index.
func DefaultOptions() Options {
	return Options{RestoreIndex: true}
}

// MissingFieldsError reports attributes required by a field mapping that
// the dataset does not have.
type MissingFieldsError struct {
	Path   string
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("%s: missing field(s) %s", e.Path, strings.Join(e.Fields, ", "))
}

// ShapeTypeError reports a dataset whose geometry is not polygonal.
type ShapeTypeError struct {
	Path      string
	ShapeType string
}

func (e *ShapeTypeError) Error() string {
	return fmt.Sprintf("%s: geometry type %s is not a polygon type", e.Path, e.ShapeType)
}

// Field describes one attribute column of the .dbf table.
type Field struct {
	Name      string `json:"name" yaml:"name"`
	Type      string `json:"type" yaml:"type"`
	Size      int    `json:"size" yaml:"size"`
	Precision int    `json:"precision,omitempty" yaml:"precision,omitempty"`
}

// Schema is the structure of a dataset as declared by its headers.
type Schema struct {
	ShapeType     string     `json:"shape_type" yaml:"shape_type"`
	Fields        []Field    `json:"fields" yaml:"fields"`
	Count         int        `json:"count" yaml:"count"`
	CRS           types.CRS  `json:"crs" yaml:"crs"`
	BBox          [4]float64 `json:"bbox" yaml:"bbox"`
	IndexRestored bool       `json:"index_restored" yaml:"index_restored"`
	Encoding      string     `json:"encoding" yaml:"encoding"`
}

// Dataset is an open shapefile set. Records may be read once.
type Dataset struct {
	path          string
	dbfPath       string
	reader        shp.SequentialReader
	header        shpHeader
	table         dbfHeader
	fields        []shp.Field
	crs           types.CRS
	text          textDecoder
	indexRestored bool
	consumed      bool
}

// Open checks the companion files of path and opens it for reading.
// Companion extensions match case-insensitively.
func Open(path string, opts Options) (*Dataset, error) {
	ext := filepath.Ext(path)
	if !strings.EqualFold(ext, extSHP) {
		return nil, fmt.Errorf("%s: not a %s file", path, extSHP)
	}
	base := strings.TrimSuffix(path, ext)

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	dbfPath, err := companion(base, extDBF)
	if err != nil {
		return nil, fmt.Errorf("opening attribute table %s: %w", base+extDBF, err)
	}

	restored := false
	if _, err := companion(base, extSHX); err != nil {
		if !errors.Is(err, os.ErrNotExist) || !opts.RestoreIndex {
			return nil, fmt.Errorf("opening index %s: %w", base+extSHX, err)
		}
		restored = true
	}

	crs, err := readPRJ(optional(base, extPRJ))
	if err != nil {
		return nil, err
	}

	text, err := lookupEncoding(opts.Encoding)
	if err != nil {
		return nil, err
	}
	if opts.Encoding == "" {
		if text, err = readCPG(optional(base, extCPG)); err != nil {
			return nil, err
		}
	}

	header, err := readSHPHeader(path)
	if err != nil {
		return nil, err
	}
	table, err := readDBFHeader(dbfPath)
	if err != nil {
		return nil, err
	}

	shpFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	dbfFile, err := os.Open(dbfPath)
	if err != nil {
		shpFile.Close()
		return nil, fmt.Errorf("opening attribute table %s: %w", dbfPath, err)
	}
	r := shp.SequentialReaderFromExt(shpFile, dbfFile)
	if err := r.Err(); err != nil {
		r.Close()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	fields := r.Fields()
	if len(fields) == 0 {
		r.Close()
		return nil, fmt.Errorf("reading attribute table %s: no fields", dbfPath)
	}

	return &Dataset{
		path:          path,
		dbfPath:       dbfPath,
		reader:        r,
		header:        header,
		table:         table,
		fields:        fields,
		crs:           crs,
		text:          text,
		indexRestored: restored,
	}, nil
}

// optional resolves a companion that may be absent. A missing file resolves
// to its lower-case name so that readers see os.ErrNotExist.
func optional(base, ext string) string {
	if p, err := companion(base, ext); err == nil {
		return p
	}
	return base + ext
}

// Close releases the underlying files.
func (d *Dataset) Close() error {
	return d.reader.Close()
}

// Path returns the .shp path the dataset was opened from.
func (d *Dataset) Path() string {
	return d.path
}

// CRS returns the CRS declared by the .prj file, or the zero CRS.
func (d *Dataset) CRS() types.CRS {
	return d.crs
}

// IndexRestored reports whether the .shx file was missing and skipped.
func (d *Dataset) IndexRestored() bool {
	return d.indexRestored
}

// Schema returns the dataset headers.
func (d *Dataset) Schema() Schema {
	box := d.header.bbox
	s := Schema{
		ShapeType:     shapeTypeName(d.header.shapeType),
		Fields:        make([]Field, len(d.fields)),
		Count:         d.table.records,
		CRS:           d.crs,
		BBox:          [4]float64{box.MinX, box.MinY, box.MaxX, box.MaxY},
		IndexRestored: d.indexRestored,
		Encoding:      d.text.label(),
	}
	for i, f := range d.fields {
		s.Fields[i] = Field{
			Name:      f.String(),
			Type:      string(f.Fieldtype),
			Size:      int(f.Size),
			Precision: int(f.Precision),
		}
	}
	return s
}

// Require checks that every name exists in the attribute table and that the
// geometry is polygonal. Names match case-insensitively.
func (d *Dataset) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if d.fieldIndex(n) < 0 {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Path: d.path, Fields: missing}
	}
	if !isPolygonType(d.header.shapeType) {
		return &ShapeTypeError{Path: d.path, ShapeType: shapeTypeName(d.header.shapeType)}
	}
	return nil
}

// Records reads every live record, keeping only the mapped attributes and
// the shape. Rows flagged deleted in the .dbf are skipped. The collection CRS
// is the one declared by the .prj file.
func (d *Dataset) Records(ctx context.Context, m types.FieldMapping) (coll *types.ParcelCollection, err error) {
	if d.consumed {
		return nil, fmt.Errorf("%s: records already read", d.path)
	}
	d.consumed = true

	if err := d.Require(m.Names()...); err != nil {
		return nil, err
	}
	if err := checkRecords(d.path); err != nil {
		return nil, fmt.Errorf("%s: %w", d.path, err)
	}
	flags, err := openRowFlags(d.dbfPath, d.table)
	if err != nil {
		return nil, err
	}
	defer flags.close()

	idIdx := d.fieldIndex(m.Identifier)
	cultureIdx := d.fieldIndex(m.Culture)
	surfaceIdx := d.fieldIndex(m.Surface)

	defer func() {
		if r := recover(); r != nil {
			coll, err = nil, fmt.Errorf("%s: corrupt record: %v", d.path, r)
		}
	}()

	coll = &types.ParcelCollection{
		CRS:     d.crs,
		Parcels: make([]types.Parcel, 0, min(d.table.records, maxPrealloc)),
	}
	for n := 0; d.reader.Next(); n++ {
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		deleted, err := flags.next()
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: %w", d.dbfPath, n, err)
		}
		if deleted {
			continue
		}
		_, shape := d.reader.Shape()
		g, err := polygonGeometry(shape)
		if err != nil {
			return nil, fmt.Errorf("%s: record %d: %w", d.path, n, err)
		}
		coll.Parcels = append(coll.Parcels, types.Parcel{
			ID:       d.attribute(idIdx),
			Culture:  d.attribute(cultureIdx),
			Surface:  parseSurface(d.attribute(surfaceIdx)),
			Geometry: g,
		})
	}
	if err := d.reader.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", d.path, err)
	}
	return coll, nil
}

func (d *Dataset) fieldIndex(name string) int {
	for i, f := range d.fields {
		if f.String() == name {
			return i
		}
	}
	for i, f := range d.fields {
		if strings.EqualFold(f.String(), name) {
			return i
		}
	}
	return -1
}

func (d *Dataset) attribute(field int) string {
	raw := strings.Trim(d.reader.Attribute(field), "\x00")
	return strings.TrimSpace(d.text.decode(raw))
}

// parseSurface returns NaN for blank or malformed values so that they never
// pass a threshold comparison.
func parseSurface(raw string) float64 {
	if raw == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// readPRJ returns the CRS declared in a .prj file. A missing file yields the
// zero CRS.
func readPRJ(path string) (types.CRS, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return types.CRS{}, nil
		}
		return types.CRS{}, fmt.Errorf("reading projection %s: %w", path, err)
	}
	wkt := strings.TrimSpace(string(data))
	crs := types.CRS{Definition: wkt}
	if m := epsgAuthorityRE.FindStringSubmatch(wkt); m != nil {
		if code, err := strconv.Atoi(m[1]); err == nil {
			crs.EPSG = code
		}
	}
	return crs, nil
}

func isPolygonType(t shp.ShapeType) bool {
	switch t {
	case shp.POLYGON, shp.POLYGONZ, shp.POLYGONM:
		return true
	}
	return false
}

func shapeTypeName(t shp.ShapeType) string {
	switch t {
	case shp.NULL:
		return "Null"
	case shp.POINT, shp.POINTZ, shp.POINTM:
		return "Point"
	case shp.POLYLINE, shp.POLYLINEZ, shp.POLYLINEM:
		return "PolyLine"
	case shp.POLYGON:
		return "Polygon"
	case shp.POLYGONZ:
		return "PolygonZ"
	case shp.POLYGONM:
		return "PolygonM"
	case shp.MULTIPOINT, shp.MULTIPOINTZ, shp.MULTIPOINTM:
		return "MultiPoint"
	case shp.MULTIPATCH:
		return "MultiPatch"
	}
	return "Unknown(" + strconv.Itoa(int(t)) + ")"
}
