// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package export

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/pdiddy/zone-extract/pkg/types"
)

const (
	// gpkgApplicationID is "GPKG" as a big-endian int32.
	gpkgApplicationID = 0x47504B47
	gpkgUserVersion   = 10400

	// gpkgFlags: little-endian WKB, XY envelope present.
	gpkgFlags = 0x03

	wgs84WKT = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`
)

// knownWKT holds WKT1 definitions for output systems that arrive without
// one, i.e. reprojection targets given only by EPSG code.
var knownWKT = map[int]string{
	2154: `PROJCS["RGF93 / Lambert-93",GEOGCS["RGF93",DATUM["Reseau_Geodesique_Francais_1993",SPHEROID["GRS 1980",6378137,298.257222101,AUTHORITY["EPSG","7019"]],TOWGS84[0,0,0,0,0,0,0],AUTHORITY["EPSG","6171"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4171"]],PROJECTION["Lambert_Conformal_Conic_2SP"],PARAMETER["standard_parallel_1",49],PARAMETER["standard_parallel_2",44],PARAMETER["latitude_of_origin",46.5],PARAMETER["central_meridian",3],PARAMETER["false_easting",700000],PARAMETER["false_northing",6600000],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AXIS["X",EAST],AXIS["Y",NORTH],AUTHORITY["EPSG","2154"]]`,
	3857: `PROJCS["WGS 84 / Pseudo-Mercator",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]],PROJECTION["Mercator_1SP"],PARAMETER["central_meridian",0],PARAMETER["scale_factor",1],PARAMETER["false_easting",0],PARAMETER["false_northing",0],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AXIS["X",EAST],AXIS["Y",NORTH],EXTENSION["PROJ4","+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1 +units=m +nadgrids=@null +wktext +no_defs"],AUTHORITY["EPSG","3857"]]`,
	4171: `GEOGCS["RGF93",DATUM["Reseau_Geodesique_Francais_1993",SPHEROID["GRS 1980",6378137,298.257222101,AUTHORITY["EPSG","7019"]],TOWGS84[0,0,0,0,0,0,0],AUTHORITY["EPSG","6171"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4171"]]`,
	4258: `GEOGCS["ETRS89",DATUM["European_Terrestrial_Reference_System_1989",SPHEROID["GRS 1980",6378137,298.257222101,AUTHORITY["EPSG","7019"]],TOWGS84[0,0,0,0,0,0,0],AUTHORITY["EPSG","6258"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4258"]]`,
}

// srsDefinition returns the WKT1 text for crs: its own definition when it
// carries one, a known definition for its EPSG code, or "undefined".
func srsDefinition(crs types.CRS) string {
	def := strings.TrimSpace(crs.Definition)
	if strings.HasPrefix(def, "PROJCS") || strings.HasPrefix(def, "GEOGCS") {
		return def
	}
	if wkt, ok := knownWKT[crs.EPSG]; ok {
		return wkt
	}
	return "undefined"
}

var unsafeTableChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// GeoPackage writes OGC GeoPackage files through SQLite.
type GeoPackage struct{}

// Write implements Writer.
func (GeoPackage) Write(path string, coll *types.ParcelCollection, fields types.FieldMapping) (Result, error) {
	return WriteGeoPackage(path, coll, fields)
}

// WriteGeoPackage writes coll as a single feature table named after the
// output file.
func WriteGeoPackage(path string, coll *types.ParcelCollection, fields types.FieldMapping) (Result, error) {
	table := tableName(path)
	err := replaceFile(path, func(tmp string) error {
		db, err := sql.Open("sqlite3", tmp)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()
		return fillGeoPackage(db, table, coll, fields)
	})
	if err != nil {
		return Result{}, err
	}

	digest, size, err := fileDigest(path)
	if err != nil {
		return Result{}, fmt.Errorf("hashing %s: %w", path, err)
	}
	return Result{
		Path:   path,
		Format: types.FormatGeoPackage,
		Count:  coll.Len(),
		Bytes:  size,
		Digest: digest,
	}, nil
}

func fillGeoPackage(db *sql.DB, table string, coll *types.ParcelCollection, fields types.FieldMapping) error {
	srsID := coll.CRS.EPSG
	if srsID <= 0 {
		srsID = -1
	}

	statements := []string{
		fmt.Sprintf(`PRAGMA application_id = %d`, gpkgApplicationID),
		fmt.Sprintf(`PRAGMA user_version = %d`, gpkgUserVersion),
		`CREATE TABLE gpkg_spatial_ref_sys (
			srs_name TEXT NOT NULL,
			srs_id INTEGER PRIMARY KEY,
			organization TEXT NOT NULL,
			organization_coordsys_id INTEGER NOT NULL,
			definition TEXT NOT NULL,
			description TEXT
		)`,
		`CREATE TABLE gpkg_contents (
			table_name TEXT NOT NULL PRIMARY KEY,
			data_type TEXT NOT NULL,
			identifier TEXT UNIQUE,
			description TEXT DEFAULT '',
			last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE,
			srs_id INTEGER REFERENCES gpkg_spatial_ref_sys(srs_id)
		)`,
		`CREATE TABLE gpkg_geometry_columns (
			table_name TEXT NOT NULL REFERENCES gpkg_contents(table_name),
			column_name TEXT NOT NULL,
			geometry_type_name TEXT NOT NULL,
			srs_id INTEGER NOT NULL REFERENCES gpkg_spatial_ref_sys(srs_id),
			z TINYINT NOT NULL,
			m TINYINT NOT NULL,
			PRIMARY KEY (table_name, column_name)
		)`,
		fmt.Sprintf(`CREATE TABLE %s (
			fid INTEGER PRIMARY KEY AUTOINCREMENT,
			geom GEOMETRY,
			%s TEXT,
			%s TEXT,
			%s REAL
		)`, quoteIdent(table), quoteIdent(fields.Identifier), quoteIdent(fields.Culture), quoteIdent(fields.Surface)),
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	srsRows := [][]any{
		{"Undefined cartesian SRS", -1, "NONE", -1, "undefined", "undefined cartesian coordinate reference system"},
		{"Undefined geographic SRS", 0, "NONE", 0, "undefined", "undefined geographic coordinate reference system"},
		{"WGS 84 geodetic", 4326, "EPSG", 4326, wgs84WKT, "longitude/latitude coordinates in decimal degrees on the WGS 84 spheroid"},
	}
	if srsID > 0 && srsID != 4326 {
		srsRows = append(srsRows, []any{fmt.Sprintf("EPSG:%d", srsID), srsID, "EPSG", srsID, srsDefinition(coll.CRS), nil})
	}
	for _, row := range srsRows {
		if _, err := tx.Exec(`INSERT INTO gpkg_spatial_ref_sys
			(srs_name, srs_id, organization, organization_coordsys_id, definition, description)
			VALUES (?, ?, ?, ?, ?, ?)`, row...); err != nil {
			return fmt.Errorf("inserting spatial reference %v: %w", row[1], err)
		}
	}

	bounds := geom.NewBounds(geom.XY)
	empty := true
	for _, p := range coll.Parcels {
		if p.Geometry != nil {
			bounds.Extend(p.Geometry)
			empty = false
		}
	}
	var minX, minY, maxX, maxY any
	if !empty {
		minX, minY, maxX, maxY = bounds.Min(0), bounds.Min(1), bounds.Max(0), bounds.Max(1)
	}
	if _, err := tx.Exec(`INSERT INTO gpkg_contents
		(table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id)
		VALUES (?, 'features', ?, ?, ?, ?, ?, ?)`,
		table, table, minX, minY, maxX, maxY, srsID); err != nil {
		return fmt.Errorf("registering contents: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO gpkg_geometry_columns
		(table_name, column_name, geometry_type_name, srs_id, z, m)
		VALUES (?, 'geom', 'GEOMETRY', ?, 0, 0)`, table, srsID); err != nil {
		return fmt.Errorf("registering geometry column: %w", err)
	}

	insert, err := tx.Prepare(fmt.Sprintf(`INSERT INTO %s (geom, %s, %s, %s) VALUES (?, ?, ?, ?)`,
		quoteIdent(table), quoteIdent(fields.Identifier), quoteIdent(fields.Culture), quoteIdent(fields.Surface)))
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer insert.Close()

	for _, p := range coll.Parcels {
		var blob, culture, surface any
		if p.Geometry != nil {
			b, err := gpkgGeometry(p.Geometry, srsID)
			if err != nil {
				return fmt.Errorf("encoding parcel %s: %w", p.ID, err)
			}
			blob = b
		}
		if p.HasCulture() {
			culture = p.Culture
		}
		if p.HasSurface() {
			surface = p.Surface
		}
		if _, err := insert.Exec(blob, p.ID, culture, surface); err != nil {
			return fmt.Errorf("inserting parcel %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// gpkgGeometry encodes g as a GeoPackage binary geometry: the "GP" header
// with an XY envelope followed by little-endian WKB.
func gpkgGeometry(g geom.T, srsID int) ([]byte, error) {
	body, err := wkb.Marshal(g, binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	b := g.Bounds()

	var buf bytes.Buffer
	buf.Grow(8 + 32 + len(body))
	buf.Write([]byte{'G', 'P', 0, gpkgFlags})
	binary.Write(&buf, binary.LittleEndian, int32(srsID))
	for _, v := range []float64{b.Min(0), b.Max(0), b.Min(1), b.Max(1)} {
		binary.Write(&buf, binary.LittleEndian, math.Float64bits(v))
	}
	buf.Write(body)
	return buf.Bytes(), nil
}

func tableName(path string) string {
	name := unsafeTableChars.ReplaceAllString(layerName(path), "_")
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "t_" + name
	}
	return name
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
