// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"
)

// Parcel is one agricultural land unit from the registry, reduced to the
// identifier, culture code, surface area and shape.
type Parcel struct {
	// ID is the unique parcel identifier (e.g. "7845123").
	ID string `json:"id" yaml:"id"`

	// Culture is the crop code (e.g. "DCZ"). Empty means the source value
	// was null or blank.
	Culture string `json:"culture" yaml:"culture"`

	// Surface is the parcel area in hectares. NaN when the source value is
	// blank or not numeric.
	Surface float64 `json:"surface" yaml:"surface"`

	// Geometry is a *geom.Polygon or *geom.MultiPolygon in the collection
	// CRS, or nil for a null shape.
	Geometry geom.T `json:"-" yaml:"-"`
}

// HasCulture reports whether the parcel carries a culture code.
func (p Parcel) HasCulture() bool {
	return p.Culture != ""
}

// HasSurface reports whether the surface value is a real number.
func (p Parcel) HasSurface() bool {
	return !math.IsNaN(p.Surface)
}

// CRS identifies a coordinate reference system. EPSG is 0 when the code is
// unknown, in which case Definition holds what the source declared
// (an "AUTHORITY:CODE" string, a PROJ string, or WKT from a .prj file).
type CRS struct {
	EPSG       int    `json:"epsg,omitempty" yaml:"epsg,omitempty"`
	Definition string `json:"definition,omitempty" yaml:"definition,omitempty"`
}

// EPSGCode returns the CRS for an EPSG code.
func EPSGCode(code int) CRS {
	return CRS{EPSG: code, Definition: fmt.Sprintf("EPSG:%d", code)}
}

// ParseCRS builds a CRS from a user-supplied string. "EPSG:2154" and "2154"
// both resolve to an EPSG code; anything else is kept as a definition.
func ParseCRS(s string) CRS {
	s = strings.TrimSpace(s)
	if s == "" {
		return CRS{}
	}
	digits := s
	if len(s) > 5 && strings.EqualFold(s[:5], "EPSG:") {
		digits = s[5:]
	}
	if code, err := strconv.Atoi(digits); err == nil && code > 0 {
		return EPSGCode(code)
	}
	return CRS{Definition: s}
}

// Defined reports whether the CRS can be handed to a transformer.
func (c CRS) Defined() bool {
	return c.EPSG > 0 || strings.TrimSpace(c.Definition) != ""
}

// String returns the form PROJ accepts for this CRS.
func (c CRS) String() string {
	if c.EPSG > 0 {
		return fmt.Sprintf("EPSG:%d", c.EPSG)
	}
	return c.Definition
}

// ParcelCollection is an ordered set of parcels sharing one CRS.
type ParcelCollection struct {
	CRS     CRS      `json:"crs" yaml:"crs"`
	Parcels []Parcel `json:"parcels" yaml:"parcels"`
}

// Len returns the number of parcels.
func (c *ParcelCollection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Parcels)
}

// Filter returns a new collection with the parcels for which keep returns
// true, preserving order and CRS.
func (c *ParcelCollection) Filter(keep func(Parcel) bool) *ParcelCollection {
	out := &ParcelCollection{CRS: c.CRS, Parcels: make([]Parcel, 0, len(c.Parcels))}
	for _, p := range c.Parcels {
		if keep(p) {
			out.Parcels = append(out.Parcels, p)
		}
	}
	return out
}
