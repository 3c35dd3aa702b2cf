// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/zone-extract/pkg/types"
)

func TestRecorder_Observe(t *testing.T) {
	r := New("test")
	r.Observe(types.StageEvent{Stage: types.StageLoad, Count: 100, Elapsed: 2 * time.Second})
	r.Observe(types.StageEvent{Stage: types.StageExport, Count: 12})

	assert.Equal(t, 100.0, testutil.ToFloat64(r.parcels.WithLabelValues("load")))
	assert.Equal(t, 12.0, testutil.ToFloat64(r.parcels.WithLabelValues("export")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.duration.WithLabelValues("load")))
}

func TestRecorder_RunFinished(t *testing.T) {
	r := New("test")
	r.RunFinished(nil)
	r.RunFinished(errors.New("boom"))
	r.RunFinished(nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.runs.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("failure")))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := New("v1.2.3")
	r.Observe(types.StageEvent{Stage: types.StageCultureFilter, Count: 20})

	path := filepath.Join(t.TempDir(), "zone_extract.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `zone_extract_parcels{stage="culture_filter"} 20`)
	assert.Contains(t, string(data), `zone_extract_build_info{version="v1.2.3"} 1`)
}
