// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the zone-extract CLI.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/zone-extract/internal/logger"
	"github.com/pdiddy/zone-extract/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// log is the structured logger built before every subcommand runs.
var log = logger.Nop()

// rootCmd is the base command for the zone-extract CLI.
var rootCmd = &cobra.Command{
	Use:   "zone-extract",
	Short: "Extract pilot zones from parcel registry shapefiles",
	Long: `zone-extract builds a pilot zone dataset from an agricultural parcel
registry shapefile (RPG style: ID_PARCEL, CULTURE_D1, SURF_PARC).

Parcels are filtered by culture code and surface, reduced to the identifier,
culture and surface columns, reprojected to the requested EPSG code, and
written as GeoJSON or GeoPackage. Use inspect to list the fields of a source
before extracting.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var lc types.LoggingConfig
		if err := viper.UnmarshalKey("log", &lc); err != nil {
			return fmt.Errorf("reading logging config: %w", err)
		}
		log = logger.Build(logger.Config{
			Level:     lc.Level,
			Console:   lc.Console,
			Component: cmd.Name(),
			RunID:     logger.NewRunID(),
		}, os.Stderr)
		if f := viper.ConfigFileUsed(); f != "" {
			log.Debug().Str("file", f).Msg("using config file")
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./zone-extract.yaml or ~/.config/zone-extract/zone-extract.yaml)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("log-console", false, "human-readable logs instead of JSON lines")

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.console", rootCmd.PersistentFlags().Lookup("log-console"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("zone-extract")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "zone-extract"))
		}
	}

	viper.SetEnvPrefix("ZONE_EXTRACT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintln(os.Stderr, "Reading config file:", err)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.WithLevel(zerolog.ErrorLevel).Err(err).Msg("command failed")
		os.Exit(1)
	}
}
