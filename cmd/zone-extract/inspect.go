// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/zone-extract/internal/inspect"
	"github.com/pdiddy/zone-extract/internal/shapefile"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect SOURCE.shp",
	Short: "Describe the fields, geometry and CRS of a source shapefile",
	Long: `Inspect prints the attribute fields, shape type, record count, CRS and
bounding box of a shapefile, plus the most frequent culture codes when the
mapped fields are present. Use it to choose --culture and field mappings.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: bindInspectFlags,
	RunE:    runInspect,
}

func bindInspectFlags(cmd *cobra.Command, args []string) error {
	return bindFlags(cmd.Flags(), fieldKeys)
}

func runInspect(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	noRestore, _ := cmd.Flags().GetBool("no-restore-index")
	encoding, _ := cmd.Flags().GetString("encoding")

	fields, err := fieldMapping()
	if err != nil {
		return err
	}
	report, err := inspect.Summarize(cmd.Context(), args[0], shapefile.Options{RestoreIndex: !noRestore, Encoding: encoding}, fields)
	if err != nil {
		return err
	}
	log.Debug().Str("source", args[0]).Int("records", report.Records).Msg("inspected")
	if report.Problem != "" {
		log.Warn().Str("source", args[0]).Msg(report.Problem)
	}
	return report.Write(os.Stdout, format)
}

func init() {
	inspectCmd.Flags().String("format", "yaml", "report format: yaml or json")
	inspectCmd.Flags().Bool("no-restore-index", false, "fail when the .shx index is missing")
	inspectCmd.Flags().String("encoding", "", "attribute code page (default: from the .cpg file)")
	addFieldFlags(inspectCmd)

	rootCmd.AddCommand(inspectCmd)
}
