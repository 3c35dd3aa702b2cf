// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract builds a pilot zone from a parcel registry shapefile: it
// loads the records, filters them by culture code and surface, reprojects
// them, and writes the result to a GeoJSON or GeoPackage file.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/pdiddy/zone-extract/internal/export"
	"github.com/pdiddy/zone-extract/internal/reproject"
	"github.com/pdiddy/zone-extract/internal/shapefile"
	"github.com/pdiddy/zone-extract/pkg/types"
)

// Options are the settings of one run.
type Options = types.ExtractionConfig

// DefaultOptions returns the default run settings. SourcePath must still be
// set. Format is left empty so that it follows the OutputPath extension.
func DefaultOptions() Options {
	return types.DefaultExtractionConfig()
}

// Projector reprojects a collection to an EPSG code.
type Projector interface {
	Project(ctx context.Context, coll *types.ParcelCollection, targetEPSG int) (*types.ParcelCollection, error)
}

// WriterFactory resolves the output writer for a format and path.
type WriterFactory func(format types.OutputFormat, path string) (export.Writer, error)

// Outcome is the result of a successful run.
type Outcome struct {
	Collection *types.ParcelCollection
	Export     export.Result
}

// Extractor runs the pipeline. The zero value is not usable; call New.
type Extractor struct {
	Projector Projector
	Writers   WriterFactory
	Observer  Observer
}

// New returns an Extractor backed by PROJ and the file writers. A nil
// observer is silent.
func New(obs Observer) *Extractor {
	return &Extractor{
		Projector: reproject.Projector{},
		Writers:   export.WriterFor,
		Observer:  obs,
	}
}

// Extract runs the pipeline and returns the collection that was written.
func (e *Extractor) Extract(ctx context.Context, opts Options) (*types.ParcelCollection, error) {
	out, err := e.Run(ctx, opts)
	if err != nil {
		return nil, err
	}
	return out.Collection, nil
}

// Run is Extract that also reports what was written.
func (e *Extractor) Run(ctx context.Context, opts Options) (*Outcome, error) {
	fields := opts.Fields.WithDefaults()
	if err := fields.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchema, err)
	}
	format, err := export.ParseFormat(string(opts.Format))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	writer, err := e.Writers(format, opts.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if opts.OutputEPSG <= 0 {
		return nil, fmt.Errorf("%w: invalid output EPSG code %d", ErrCRS, opts.OutputEPSG)
	}

	start := time.Now()
	coll, err := load(ctx, opts, fields)
	if err != nil {
		return nil, err
	}
	e.emit(types.StageLoad, coll.Len(), opts.SourcePath, start)

	if opts.CultureFilter != "" {
		start = time.Now()
		coll = coll.Filter(cultureContains(opts.CultureFilter))
		e.emit(types.StageCultureFilter, coll.Len(), opts.CultureFilter, start)
	}

	start = time.Now()
	coll = coll.Filter(surfaceAbove(opts.MinSurface))
	e.emit(types.StageSurfaceFilter, coll.Len(), strconv.FormatFloat(opts.MinSurface, 'g', -1, 64), start)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start = time.Now()
	projected, err := e.Projector.Project(ctx, coll, opts.OutputEPSG)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: reprojecting %s to EPSG:%d: %w", ErrCRS, coll.CRS, opts.OutputEPSG, err)
	}
	e.emit(types.StageReproject, projected.Len(), projected.CRS.String(), start)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start = time.Now()
	res, err := writer.Write(opts.OutputPath, projected, fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	e.emit(types.StageExport, res.Count, res.Path, start)

	return &Outcome{Collection: projected, Export: res}, nil
}

// load opens the source, checks the mapped fields, and reads every record.
func load(ctx context.Context, opts Options, fields types.FieldMapping) (*types.ParcelCollection, error) {
	ds, err := shapefile.Open(opts.SourcePath, shapefile.Options{
		RestoreIndex: opts.RestoreIndex,
		Encoding:     opts.Encoding,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	defer ds.Close()

	if err := ds.Require(fields.Names()...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchema, err)
	}

	coll, err := ds.Records(ctx, fields)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}

	if s := strings.TrimSpace(opts.SourceCRS); s != "" {
		coll.CRS = types.ParseCRS(s)
	}
	return coll, nil
}

// cultureContains matches parcels whose culture code contains filter under
// Unicode case folding. Parcels without a culture never match.
func cultureContains(filter string) func(types.Parcel) bool {
	fold := cases.Fold()
	needle := fold.String(filter)
	return func(p types.Parcel) bool {
		if !p.HasCulture() {
			return false
		}
		return strings.Contains(fold.String(p.Culture), needle)
	}
}

// surfaceAbove keeps parcels strictly above threshold. NaN surfaces never pass.
func surfaceAbove(threshold float64) func(types.Parcel) bool {
	return func(p types.Parcel) bool {
		return p.HasSurface() && p.Surface > threshold
	}
}

func (e *Extractor) emit(stage types.Stage, count int, detail string, start time.Time) {
	if e.Observer == nil {
		return
	}
	e.Observer.Observe(types.StageEvent{
		Stage:   stage,
		Count:   count,
		Detail:  detail,
		Elapsed: time.Since(start),
	})
}

// Kind returns the failure kind err wraps, or nil.
func Kind(err error) error {
	for _, k := range []error{ErrLoad, ErrSchema, ErrCRS, ErrWrite} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
