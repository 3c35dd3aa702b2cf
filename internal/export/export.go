// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package export writes parcel collections to portable geospatial files.
// Output files are replaced atomically: a run that fails leaves any
// existing file untouched and creates nothing.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/pdiddy/zone-extract/pkg/types"
)

// Result describes a written file.
type Result struct {
	Path   string             `json:"path" yaml:"path"`
	Format types.OutputFormat `json:"format" yaml:"format"`
	Count  int                `json:"count" yaml:"count"`
	Bytes  int64              `json:"bytes" yaml:"bytes"`

	// Digest is the xxhash64 of the file contents, hex encoded.
	Digest string `json:"digest" yaml:"digest"`
}

// Writer serializes a collection to path. Properties carry exactly the
// mapped fields.
type Writer interface {
	Write(path string, coll *types.ParcelCollection, fields types.FieldMapping) (Result, error)
}

// ParseFormat validates a format name. Empty means "infer from the path".
func ParseFormat(s string) (types.OutputFormat, error) {
	switch f := types.OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", types.FormatGeoJSON, types.FormatGeoPackage:
		return f, nil
	case "json":
		return types.FormatGeoJSON, nil
	default:
		return "", fmt.Errorf("unsupported format %q: use geojson or gpkg", s)
	}
}

// FormatFromPath infers the format from the file extension, defaulting to
// GeoJSON.
func FormatFromPath(path string) types.OutputFormat {
	if strings.EqualFold(filepath.Ext(path), ".gpkg") {
		return types.FormatGeoPackage
	}
	return types.FormatGeoJSON
}

// WriterFor returns the writer for format, inferring it from path when
// format is empty.
func WriterFor(format types.OutputFormat, path string) (Writer, error) {
	if format == "" {
		format = FormatFromPath(path)
	}
	switch format {
	case types.FormatGeoJSON:
		return GeoJSON{}, nil
	case types.FormatGeoPackage:
		return GeoPackage{}, nil
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

// replaceFile runs fill against a temporary path next to path and renames
// the result over path once fill succeeds. The parent directory must exist.
func replaceFile(path string, fill func(tmp string) error) (err error) {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("output directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output directory %s: not a directory", dir)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary file in %s: %w", dir, err)
	}
	tmp := f.Name()
	f.Close()
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	if err = fill(tmp); err != nil {
		return err
	}
	if err = os.Chmod(tmp, 0o644); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", tmp, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// fileDigest hashes the file at path.
func fileDigest(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := xxhash.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return formatDigest(h.Sum64()), n, nil
}

func formatDigest(sum uint64) string {
	s := strconv.FormatUint(sum, 16)
	return strings.Repeat("0", 16-len(s)) + s
}
