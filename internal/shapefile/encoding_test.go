// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package shapefile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/zone-extract/internal/shapefile/shptest"
	"github.com/pdiddy/zone-extract/pkg/types"
)

func TestLookupEncoding(t *testing.T) {
	tests := []struct {
		in        string
		wantLabel string
		wantErr   bool
	}{
		{in: "", wantLabel: "auto"},
		{in: "UTF-8\n", wantLabel: "UTF-8"},
		{in: "1252", wantLabel: "1252"},
		{in: "ISO-8859-1", wantLabel: "ISO-8859-1"},
		{in: "latin9", wantLabel: "LATIN9"},
		{in: "EBCDIC", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := lookupEncoding(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLabel, d.label())
		})
	}
}

func TestTextDecoder(t *testing.T) {
	latin1 := "PR\xc9 FAUCH\xc9"

	auto, _ := lookupEncoding("")
	assert.Equal(t, "PRÉ FAUCHÉ", auto.decode(latin1))
	assert.Equal(t, "blé", auto.decode("blé"))

	iso, _ := lookupEncoding("88591")
	assert.Equal(t, "PRÉ FAUCHÉ", iso.decode(latin1))

	utf, _ := lookupEncoding("UTF-8")
	assert.Equal(t, latin1, utf.decode(latin1), "declared UTF-8 is passed through")
}

func TestRecords_CodePage(t *testing.T) {
	rows := []shptest.Row{{ID: "1", Culture: "PR\xc9", Surface: "1"}}

	tests := []struct {
		name string
		cpg  string
		opts Options
		want string
	}{
		{name: "cpg 1252", cpg: "1252", opts: DefaultOptions(), want: "PRÉ"},
		{name: "no cpg", opts: DefaultOptions(), want: "PRÉ"},
		{name: "override", cpg: "UTF-8", opts: Options{RestoreIndex: true, Encoding: "latin1"}, want: "PRÉ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := shptest.Write(t, t.TempDir(), "rpg", rows, shptest.Options{CPG: tt.cpg})
			ds, err := Open(path, tt.opts)
			require.NoError(t, err)
			defer ds.Close()

			coll, err := ds.Records(context.Background(), types.DefaultFieldMapping())
			require.NoError(t, err)
			assert.Equal(t, tt.want, coll.Parcels[0].Culture)
		})
	}
}

func TestOpen_BadEncoding(t *testing.T) {
	path := shptest.Write(t, t.TempDir(), "rpg", nil, shptest.Options{CPG: "EBCDIC"})
	_, err := Open(path, DefaultOptions())
	assert.ErrorContains(t, err, "EBCDIC")
}
