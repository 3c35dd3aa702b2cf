// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package shapefile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
)

const (
	shpHeaderLen    = 100
	recordHeaderLen = 8
	dbfHeaderMin    = 32

	dbfDeleted = '*'
)

// companion returns the file next to base with extension ext, matching the
// extension case-insensitively. It returns os.ErrNotExist when there is none.
func companion(base, ext string) (string, error) {
	for _, e := range []string{ext, strings.ToLower(ext), strings.ToUpper(ext)} {
		if _, err := os.Stat(base + e); err == nil {
			return base + e, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}

	dir, name := filepath.Split(base)
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	want := name + ext
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(e.Name(), want) && strings.HasPrefix(e.Name(), name) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", os.ErrNotExist
}

// shpHeader is the main file header of a .shp file.
type shpHeader struct {
	shapeType shp.ShapeType
	bbox      shp.Box
}

func readSHPHeader(path string) (shpHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return shpHeader{}, err
	}
	defer f.Close()

	buf := make([]byte, shpHeaderLen)
	if _, err := io.ReadFull(f, buf); err != nil {
		return shpHeader{}, fmt.Errorf("reading header of %s: %w", path, err)
	}
	if code := binary.BigEndian.Uint32(buf[0:4]); code != 9994 {
		return shpHeader{}, fmt.Errorf("%s: bad file code %d", path, code)
	}
	le := binary.LittleEndian
	return shpHeader{
		shapeType: shp.ShapeType(int32(le.Uint32(buf[32:36]))),
		bbox: shp.Box{
			MinX: math.Float64frombits(le.Uint64(buf[36:44])),
			MinY: math.Float64frombits(le.Uint64(buf[44:52])),
			MaxX: math.Float64frombits(le.Uint64(buf[52:60])),
			MaxY: math.Float64frombits(le.Uint64(buf[60:68])),
		},
	}, nil
}

// dbfHeader is the table header of a .dbf file.
type dbfHeader struct {
	records   int
	headerLen int
	recordLen int
}

func readDBFHeader(path string) (dbfHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return dbfHeader{}, err
	}
	defer f.Close()

	buf := make([]byte, dbfHeaderMin)
	if _, err := io.ReadFull(f, buf); err != nil {
		return dbfHeader{}, fmt.Errorf("reading header of %s: %w", path, err)
	}
	h := dbfHeader{
		records:   int(binary.LittleEndian.Uint32(buf[4:8])),
		headerLen: int(binary.LittleEndian.Uint16(buf[8:10])),
		recordLen: int(binary.LittleEndian.Uint16(buf[10:12])),
	}
	if h.headerLen < dbfHeaderMin+1 || h.recordLen < 1 {
		return dbfHeader{}, fmt.Errorf("%s: bad table header", path)
	}
	return h, nil
}

// checkRecords walks the record headers of a .shp file and verifies that
// every record fits in the file and that its part and point counts fit in
// its content. The decoder allocates from those counts unchecked.
func checkRecords(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()

	r := bufio.NewReader(f)
	if _, err := r.Discard(shpHeaderLen); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	head := make([]byte, recordHeaderLen)
	content := make([]byte, 44)
	for n, off := 0, int64(shpHeaderLen); off < size; n++ {
		if size-off < recordHeaderLen {
			return fmt.Errorf("record %d: truncated record header", n)
		}
		if _, err := io.ReadFull(r, head); err != nil {
			return fmt.Errorf("record %d: %w", n, err)
		}
		length := int64(int32(binary.BigEndian.Uint32(head[4:8]))) * 2
		off += recordHeaderLen
		if length < 4 || length > size-off {
			return fmt.Errorf("record %d: content length %d does not fit the file", n, length)
		}

		k := int(min(length, int64(len(content))))
		if _, err := io.ReadFull(r, content[:k]); err != nil {
			return fmt.Errorf("record %d: %w", n, err)
		}
		if err := checkContent(content[:k], length); err != nil {
			return fmt.Errorf("record %d: %w", n, err)
		}
		if _, err := r.Discard(int(length) - k); err != nil {
			return fmt.Errorf("record %d: %w", n, err)
		}
		off += length
	}
	return nil
}

// checkContent validates the counts at the head of one record's content.
// head holds up to the first 44 bytes; length is the full content size.
func checkContent(head []byte, length int64) error {
	le := binary.LittleEndian
	t := shp.ShapeType(int32(le.Uint32(head[0:4])))

	var minLen, perPart int64
	switch t {
	case shp.NULL:
		return nil
	case shp.POINT, shp.POINTZ, shp.POINTM:
		if length < 20 {
			return fmt.Errorf("point content of %d bytes is too short", length)
		}
		return nil
	case shp.MULTIPOINT, shp.MULTIPOINTZ, shp.MULTIPOINTM:
		if length < 40 {
			return fmt.Errorf("multipoint content of %d bytes is too short", length)
		}
		points := int64(int32(le.Uint32(head[36:40])))
		if points < 0 || 40+16*points > length {
			return fmt.Errorf("point count %d does not fit %d bytes", points, length)
		}
		return nil
	case shp.POLYLINE, shp.POLYLINEZ, shp.POLYLINEM, shp.POLYGON, shp.POLYGONZ, shp.POLYGONM:
		minLen, perPart = 44, 4
	case shp.MULTIPATCH:
		minLen, perPart = 44, 8
	default:
		return fmt.Errorf("unknown shape type %d", int32(t))
	}

	if length < minLen {
		return fmt.Errorf("%s content of %d bytes is too short", shapeTypeName(t), length)
	}
	parts := int64(int32(le.Uint32(head[36:40])))
	points := int64(int32(le.Uint32(head[40:44])))
	if parts < 0 || points < 0 {
		return fmt.Errorf("negative part or point count (%d, %d)", parts, points)
	}
	if minLen+perPart*parts+16*points > length {
		return fmt.Errorf("%d parts and %d points do not fit %d bytes", parts, points, length)
	}
	return nil
}

// rowFlags reads the deletion flag of each .dbf row in order.
type rowFlags struct {
	f    *os.File
	r    *bufio.Reader
	skip int
}

func openRowFlags(path string, h dbfHeader) (*rowFlags, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := bufio.NewReader(f)
	if _, err := r.Discard(h.headerLen); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return &rowFlags{f: f, r: r, skip: h.recordLen - 1}, nil
}

// next reports whether the next row is deleted.
func (rf *rowFlags) next() (bool, error) {
	flag, err := rf.r.ReadByte()
	if err != nil {
		return false, err
	}
	if _, err := rf.r.Discard(rf.skip); err != nil {
		return false, err
	}
	return flag == dbfDeleted, nil
}

func (rf *rowFlags) close() error {
	return rf.f.Close()
}
