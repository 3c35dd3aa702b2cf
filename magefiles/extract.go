//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Extract builds the CLI and runs it on $SOURCE, writing the default pilot
// zone. CULTURE and MIN_SURFACE are passed through when set.
func Extract() error {
	mg.Deps(Build)

	source := os.Getenv("SOURCE")
	if source == "" {
		return fmt.Errorf("SOURCE must name the input .shp file")
	}
	args := []string{"extract", source}
	if c := os.Getenv("CULTURE"); c != "" {
		args = append(args, "--culture", c)
	}
	if s := os.Getenv("MIN_SURFACE"); s != "" {
		args = append(args, "--min-surface", s)
	}
	return sh.RunV("./"+binDir+"/"+binName, args...)
}
