// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Stage names a step of the extraction pipeline.
type Stage string

const (
	StageLoad          Stage = "load"
	StageCultureFilter Stage = "culture_filter"
	StageSurfaceFilter Stage = "surface_filter"
	StageReproject     Stage = "reproject"
	StageExport        Stage = "export"
)

// StageEvent reports the parcel count after a stage completes.
type StageEvent struct {
	Stage Stage
	Count int

	// Detail is stage specific, e.g. the culture filter or output path.
	Detail string

	Elapsed time.Duration
}
