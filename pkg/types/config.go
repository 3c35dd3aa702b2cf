// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Defaults for an extraction run.
const (
	DefaultOutputPath = "../data/zone_pilote.geojson"
	DefaultMinSurface = 0.2
	DefaultOutputEPSG = 4326
)

// OutputFormat selects the file format written by the export stage.
type OutputFormat string

const (
	FormatGeoJSON    OutputFormat = "geojson"
	FormatGeoPackage OutputFormat = "gpkg"
)

// ExtractionConfig holds the settings of one extraction run.
type ExtractionConfig struct {
	// SourcePath is the .shp file of the registry extract.
	SourcePath string `json:"source_path" yaml:"source_path" mapstructure:"source"`

	// OutputPath is the destination file, overwritten when present.
	OutputPath string `json:"output_path" yaml:"output_path" mapstructure:"output"`

	// CultureFilter keeps parcels whose culture code contains it, ignoring
	// case. Empty disables culture filtering.
	CultureFilter string `json:"culture_filter,omitempty" yaml:"culture_filter,omitempty" mapstructure:"culture"`

	// MinSurface is the exclusive lower bound on parcel surface in hectares.
	MinSurface float64 `json:"min_surface" yaml:"min_surface" mapstructure:"min_surface"`

	// OutputEPSG is the EPSG code of the output CRS.
	OutputEPSG int `json:"output_epsg" yaml:"output_epsg" mapstructure:"epsg"`

	// SourceCRS overrides the CRS declared by the .prj file. Empty means use
	// the .prj.
	SourceCRS string `json:"source_crs,omitempty" yaml:"source_crs,omitempty" mapstructure:"source_crs"`

	// RestoreIndex tolerates a missing .shx companion file.
	RestoreIndex bool `json:"restore_index" yaml:"restore_index" mapstructure:"restore_index"`

	// Encoding overrides the attribute code page of the .dbf file. Empty
	// uses the .cpg file, or detection when there is none.
	Encoding string `json:"encoding,omitempty" yaml:"encoding,omitempty" mapstructure:"encoding"`

	// Format selects geojson or gpkg. Empty infers it from OutputPath.
	Format OutputFormat `json:"format,omitempty" yaml:"format,omitempty" mapstructure:"format"`

	Fields FieldMapping `json:"fields" yaml:"fields" mapstructure:"fields"`
}

// DefaultExtractionConfig returns the settings used when nothing is given.
func DefaultExtractionConfig() ExtractionConfig {
	return ExtractionConfig{
		OutputPath:   DefaultOutputPath,
		MinSurface:   DefaultMinSurface,
		OutputEPSG:   DefaultOutputEPSG,
		RestoreIndex: true,
		Fields:       DefaultFieldMapping(),
	}
}

// LoggingConfig holds settings for the structured logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error (default info).
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Console switches from JSON lines to the human console writer.
	Console bool `json:"console" yaml:"console" mapstructure:"console"`
}
