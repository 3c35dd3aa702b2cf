// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import "errors"

// Failure kinds. Every error returned by Extract, other than context
// cancellation, wraps exactly one of these.
var (
	// ErrLoad: the source is missing, unreadable, or corrupt.
	ErrLoad = errors.New("load error")

	// ErrSchema: a mapped field is absent or the geometry is not polygonal.
	ErrSchema = errors.New("schema error")

	// ErrCRS: the source CRS is undefined or a CRS cannot be resolved.
	ErrCRS = errors.New("crs error")

	// ErrWrite: the destination cannot be written.
	ErrWrite = errors.New("write error")
)
