// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package shptest writes small RPG-like shapefiles for tests.
package shptest

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
)

// Lambert93WKT is the .prj content for EPSG:2154.
const Lambert93WKT = `PROJCS["RGF93 / Lambert-93",GEOGCS["RGF93",DATUM["Reseau_Geodesique_Francais_1993",SPHEROID["GRS 1980",6378137,298.257222101,AUTHORITY["EPSG","7019"]],TOWGS84[0,0,0,0,0,0,0],AUTHORITY["EPSG","6171"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4171"]],PROJECTION["Lambert_Conformal_Conic_2SP"],PARAMETER["standard_parallel_1",49],PARAMETER["standard_parallel_2",44],PARAMETER["latitude_of_origin",46.5],PARAMETER["central_meridian",3],PARAMETER["false_easting",700000],PARAMETER["false_northing",6600000],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AXIS["X",EAST],AXIS["Y",NORTH],AUTHORITY["EPSG","2154"]]`

// Row is one parcel to write. Surface is written verbatim so tests can use
// blank or malformed values.
type Row struct {
	ID      string
	Culture string
	Surface string
	Group   string

	// Rings overrides the default 50 m square. Shells must be clockwise.
	Rings [][]shp.Point
}

// Options controls the companion files and schema.
type Options struct {
	// PRJ is written to the .prj file. Empty writes Lambert93WKT; "-" skips
	// the file.
	PRJ string

	// OmitSHX deletes the .shx index after writing.
	OmitSHX bool

	// Drop removes attribute columns by name from the schema.
	Drop []string

	// CPG is written to the .cpg file when set.
	CPG string

	// Deleted marks these zero-based rows as deleted in the .dbf.
	Deleted []int

	// Upper writes every file with an upper-case extension.
	Upper bool
}

// Square returns a clockwise square ring with its lower-left corner at x, y.
func Square(x, y, size float64) []shp.Point {
	return []shp.Point{
		{X: x, Y: y},
		{X: x, Y: y + size},
		{X: x + size, Y: y + size},
		{X: x + size, Y: y},
		{X: x, Y: y},
	}
}

// Reverse returns the ring with its winding flipped.
func Reverse(ring []shp.Point) []shp.Point {
	out := make([]shp.Point, len(ring))
	for i, p := range ring {
		out[len(ring)-1-i] = p
	}
	return out
}

// Write creates dir/name.shp and its companions and returns the .shp path.
func Write(t testing.TB, dir, name string, rows []Row, opts Options) string {
	t.Helper()
	path := filepath.Join(dir, name+".shp")

	all := []shp.Field{
		shp.StringField("ID_PARCEL", 20),
		shp.StringField("CULTURE_D1", 20),
		shp.FloatField("SURF_PARC", 12, 4),
		shp.StringField("CODE_GROUP", 10),
	}
	var fields []shp.Field
	var cols []int
	for i, f := range all {
		if contains(opts.Drop, f.String()) {
			continue
		}
		fields = append(fields, f)
		cols = append(cols, i)
	}

	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.SetFields(fields); err != nil {
		t.Fatal(err)
	}
	for i, r := range rows {
		rings := r.Rings
		if rings == nil {
			rings = [][]shp.Point{Square(650000+float64(i)*100, 6860000, 50)}
		}
		poly := shp.Polygon(*shp.NewPolyLine(rings))
		n := int(w.Write(&poly))
		values := []string{r.ID, r.Culture, r.Surface, r.Group}
		for fi, col := range cols {
			if err := w.WriteAttribute(n, fi, values[col]); err != nil {
				t.Fatal(err)
			}
		}
	}
	w.Close()

	// The writer names the table base+"dbf", without the dot.
	base := strings.TrimSuffix(path, ".shp")
	if err := os.Rename(base+"dbf", base+".dbf"); err != nil {
		t.Fatal(err)
	}
	for _, row := range opts.Deleted {
		MarkDeleted(t, base+".dbf", row)
	}
	switch opts.PRJ {
	case "-":
	case "":
		writeFile(t, base+".prj", Lambert93WKT)
	default:
		writeFile(t, base+".prj", opts.PRJ)
	}
	if opts.CPG != "" {
		writeFile(t, base+".cpg", opts.CPG)
	}
	if opts.OmitSHX {
		if err := os.Remove(base + ".shx"); err != nil {
			t.Fatal(err)
		}
	}
	if opts.Upper {
		for _, ext := range []string{".shp", ".shx", ".dbf", ".prj", ".cpg"} {
			if _, err := os.Stat(base + ext); err != nil {
				continue
			}
			if err := os.Rename(base+ext, base+strings.ToUpper(ext)); err != nil {
				t.Fatal(err)
			}
		}
		path = base + ".SHP"
	}
	return path
}

// MarkDeleted sets the deletion flag of a zero-based row in a .dbf table.
func MarkDeleted(t testing.TB, dbfPath string, row int) {
	t.Helper()
	data, err := os.ReadFile(dbfPath)
	if err != nil {
		t.Fatal(err)
	}
	headerLen := int(binary.LittleEndian.Uint16(data[8:10]))
	recordLen := int(binary.LittleEndian.Uint16(data[10:12]))
	off := headerLen + row*recordLen
	if off >= len(data) {
		t.Fatalf("row %d is past the end of %s", row, dbfPath)
	}
	data[off] = '*'
	writeFile(t, dbfPath, string(data))
}

// Patch overwrites bytes of path at off.
func Patch(t testing.TB, path string, off int64, b []byte) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteAt(b, off); err != nil {
		t.Fatal(err)
	}
}

// Points writes a point shapefile with the default RPG columns, for tests
// that need a non-polygon layer. It returns the .shp path.
func Points(t testing.TB, dir, name string, n int) string {
	t.Helper()
	path := filepath.Join(dir, name+".shp")
	w, err := shp.Create(path, shp.POINT)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.SetFields([]shp.Field{
		shp.StringField("ID_PARCEL", 20),
		shp.StringField("CULTURE_D1", 20),
		shp.FloatField("SURF_PARC", 12, 4),
	}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		w.Write(&shp.Point{X: 650000 + float64(i), Y: 6860000})
	}
	w.Close()

	base := strings.TrimSuffix(path, ".shp")
	if err := os.Rename(base+"dbf", base+".dbf"); err != nil {
		t.Fatal(err)
	}
	writeFile(t, base+".prj", Lambert93WKT)
	return path
}

func writeFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
