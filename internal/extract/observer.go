// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/pdiddy/zone-extract/pkg/types"
)

// Observer receives one event per completed stage.
type Observer interface {
	Observe(types.StageEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(types.StageEvent)

// Observe implements Observer.
func (f ObserverFunc) Observe(ev types.StageEvent) { f(ev) }

// WriterObserver prints the human progress trace: the loaded count, the
// culture filter confirmation, and the export summary. Surface filter and
// reprojection events are not printed.
func WriterObserver(w io.Writer) Observer {
	return ObserverFunc(func(ev types.StageEvent) {
		switch ev.Stage {
		case types.StageLoad:
			fmt.Fprintf(w, "loaded %s: %d parcels\n", ev.Detail, ev.Count)
		case types.StageCultureFilter:
			fmt.Fprintf(w, "culture filter %q: %d parcels\n", ev.Detail, ev.Count)
		case types.StageExport:
			fmt.Fprintf(w, "exported %s (%d parcels)\n", ev.Detail, ev.Count)
		}
	})
}

// LogObserver logs every event at debug level, and the export at info.
func LogObserver(log zerolog.Logger) Observer {
	return ObserverFunc(func(ev types.StageEvent) {
		e := log.Debug()
		if ev.Stage == types.StageExport {
			e = log.Info()
		}
		e.Str("stage", string(ev.Stage)).
			Int("count", ev.Count).
			Str("detail", ev.Detail).
			Dur("elapsed", ev.Elapsed).
			Msg("stage complete")
	})
}

// MultiObserver fans events out to every non-nil observer in order.
func MultiObserver(observers ...Observer) Observer {
	var list []Observer
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return ObserverFunc(func(ev types.StageEvent) {
		for _, o := range list {
			o.Observe(ev)
		}
	})
}
