// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pdiddy/zone-extract/internal/export"
	"github.com/pdiddy/zone-extract/internal/extract"
	"github.com/pdiddy/zone-extract/internal/metrics"
	"github.com/pdiddy/zone-extract/pkg/types"
)

var extractCmd = &cobra.Command{
	Use:   "extract [SOURCE.shp]",
	Short: "Filter, reproject and export a pilot zone from a parcel shapefile",
	Long: `Extract loads a parcel shapefile, keeps parcels whose culture code
contains --culture (case-insensitive, all parcels when empty) and whose
surface is strictly greater than --min-surface, keeps only the identifier,
culture and surface columns, reprojects to --epsg and writes --output.

The output file is replaced atomically; a failed run leaves it untouched.
Every flag can also be set in zone-extract.yaml or through ZONE_EXTRACT_*
environment variables.`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: bindExtractFlags,
	RunE:    runExtract,
}

// extractKeys maps config keys to extract flags.
var extractKeys = map[string]string{
	"output":      "output",
	"culture":     "culture",
	"min_surface": "min-surface",
	"epsg":        "epsg",
	"source_crs":  "source-crs",
	"format":      "format",
	"encoding":    "encoding",
}

// fieldKeys maps config keys to field mapping flags.
var fieldKeys = map[string]string{
	"fields.identifier": "id-field",
	"fields.culture":    "culture-field",
	"fields.surface":    "surface-field",
}

func bindExtractFlags(cmd *cobra.Command, args []string) error {
	return bindFlags(cmd.Flags(), extractKeys, fieldKeys)
}

func bindFlags(flags *pflag.FlagSet, keys ...map[string]string) error {
	for _, m := range keys {
		for key, name := range m {
			if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
				return fmt.Errorf("binding --%s: %w", name, err)
			}
		}
	}
	return nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := extractConfig(cmd, args)
	if err != nil {
		return err
	}
	quiet, _ := cmd.Flags().GetBool("quiet")
	metricsFile, _ := cmd.Flags().GetString("metrics-file")

	var trace io.Writer = os.Stdout
	if quiet {
		trace = io.Discard
	}
	rec := metrics.New(version)
	ex := extract.New(extract.MultiObserver(
		extract.WriterObserver(trace),
		extract.LogObserver(log),
		rec,
	))

	log.Info().
		Str("source", cfg.SourcePath).
		Str("output", cfg.OutputPath).
		Str("culture", cfg.CultureFilter).
		Float64("min_surface", cfg.MinSurface).
		Int("epsg", cfg.OutputEPSG).
		Msg("extraction started")

	out, runErr := ex.Run(cmd.Context(), cfg)
	rec.RunFinished(runErr)
	if metricsFile != "" {
		if err := rec.WriteTextfile(metricsFile); err != nil {
			log.Warn().Err(err).Str("path", metricsFile).Msg("writing metrics")
		}
	}
	if runErr != nil {
		return runErr
	}

	log.Info().
		Str("path", out.Export.Path).
		Str("format", string(out.Export.Format)).
		Int("count", out.Export.Count).
		Int64("bytes", out.Export.Bytes).
		Str("digest", out.Export.Digest).
		Msg("extraction finished")
	return nil
}

// extractConfig merges defaults, the config file, environment and flags.
func extractConfig(cmd *cobra.Command, args []string) (types.ExtractionConfig, error) {
	cfg := types.DefaultExtractionConfig()
	viper.SetDefault("restore_index", cfg.RestoreIndex)
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if len(args) == 1 {
		cfg.SourcePath = args[0]
	}
	if cfg.SourcePath == "" {
		return cfg, fmt.Errorf("source shapefile required: pass SOURCE.shp or set source in the config file")
	}
	if noRestore, _ := cmd.Flags().GetBool("no-restore-index"); noRestore {
		cfg.RestoreIndex = false
	}

	format, err := export.ParseFormat(string(cfg.Format))
	if err != nil {
		return cfg, err
	}
	cfg.Format = format
	cfg.Fields = cfg.Fields.WithDefaults()
	return cfg, nil
}

// fieldMapping reads the field mapping from config and flags.
func fieldMapping() (types.FieldMapping, error) {
	var m types.FieldMapping
	if err := viper.UnmarshalKey("fields", &m); err != nil {
		return m, fmt.Errorf("reading field mapping: %w", err)
	}
	m = m.WithDefaults()
	return m, m.Validate()
}

func addFieldFlags(cmd *cobra.Command) {
	cmd.Flags().String("id-field", types.DefaultIdentifierField, "source field holding the parcel identifier")
	cmd.Flags().String("culture-field", types.DefaultCultureField, "source field holding the culture code")
	cmd.Flags().String("surface-field", types.DefaultSurfaceField, "source field holding the surface in hectares")
}

func addExtractFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", types.DefaultOutputPath, "output file (overwritten)")
	cmd.Flags().StringP("culture", "c", "", "keep parcels whose culture code contains this text (case-insensitive)")
	cmd.Flags().Float64("min-surface", types.DefaultMinSurface, "keep parcels with surface strictly greater than this, in hectares")
	cmd.Flags().Int("epsg", types.DefaultOutputEPSG, "EPSG code of the output CRS")
	cmd.Flags().String("source-crs", "", "override the source CRS (EPSG:XXXX, PROJ string or WKT)")
	cmd.Flags().String("format", "", "output format: geojson or gpkg (default: from --output extension)")
	cmd.Flags().Bool("no-restore-index", false, "fail when the .shx index is missing")
	cmd.Flags().String("encoding", "", "attribute code page, e.g. UTF-8 or 1252 (default: from the .cpg file)")
	cmd.Flags().String("metrics-file", "", "write Prometheus metrics to this textfile")
	cmd.Flags().BoolP("quiet", "q", false, "suppress the progress trace")
	addFieldFlags(cmd)
}

func init() {
	addExtractFlags(extractCmd)
	rootCmd.AddCommand(extractCmd)
}
