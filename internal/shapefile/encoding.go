// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package shapefile

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

const extCPG = ".cpg"

// codePages maps .cpg contents and encoding names to decoders. A nil
// encoding means UTF-8.
var codePages = map[string]encoding.Encoding{
	"utf-8":        nil,
	"utf8":         nil,
	"65001":        nil,
	"1252":         charmap.Windows1252,
	"cp1252":       charmap.Windows1252,
	"windows-1252": charmap.Windows1252,
	"ansi 1252":    charmap.Windows1252,
	"1250":         charmap.Windows1250,
	"cp1250":       charmap.Windows1250,
	"windows-1250": charmap.Windows1250,
	"88591":        charmap.ISO8859_1,
	"8859_1":       charmap.ISO8859_1,
	"iso-8859-1":   charmap.ISO8859_1,
	"iso88591":     charmap.ISO8859_1,
	"latin1":       charmap.ISO8859_1,
	"885915":       charmap.ISO8859_15,
	"8859_15":      charmap.ISO8859_15,
	"iso-8859-15":  charmap.ISO8859_15,
	"latin9":       charmap.ISO8859_15,
	"88592":        charmap.ISO8859_2,
	"iso-8859-2":   charmap.ISO8859_2,
	"latin2":       charmap.ISO8859_2,
}

// textDecoder turns raw .dbf bytes into UTF-8.
type textDecoder struct {
	name string
	enc  encoding.Encoding
}

// lookupEncoding resolves a code page name. Empty resolves to automatic
// detection.
func lookupEncoding(name string) (textDecoder, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return textDecoder{}, nil
	}
	enc, ok := codePages[key]
	if !ok {
		return textDecoder{}, fmt.Errorf("unsupported attribute encoding %q", name)
	}
	if enc == nil {
		return textDecoder{name: "UTF-8"}, nil
	}
	return textDecoder{name: strings.ToUpper(key), enc: enc}, nil
}

// readCPG returns the decoder declared by a .cpg file. A missing file gives
// automatic detection.
func readCPG(path string) (textDecoder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return textDecoder{}, nil
		}
		return textDecoder{}, fmt.Errorf("reading code page %s: %w", path, err)
	}
	return lookupEncoding(string(data))
}

// decode converts raw to UTF-8. Without a declared encoding, valid UTF-8 is
// kept and anything else is read as Windows-1252.
func (d textDecoder) decode(raw string) string {
	enc := d.enc
	if enc == nil {
		if d.name != "" || utf8.ValidString(raw) {
			return raw
		}
		enc = charmap.Windows1252
	}
	s, err := enc.NewDecoder().String(raw)
	if err != nil {
		return raw
	}
	return s
}

// label names the encoding for reports.
func (d textDecoder) label() string {
	if d.name == "" {
		return "auto"
	}
	return d.name
}
