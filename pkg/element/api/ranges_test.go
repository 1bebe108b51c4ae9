package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	t.Parallel()

	const size = 100

	tests := []struct {
		name   string
		header string
		want   []byteRange
		err    error
	}{
		{
			name:   "single closed range",
			header: "bytes=0-9",
			want:   []byteRange{{start: 0, length: 10}},
		},
		{
			name:   "open ended",
			header: "bytes=90-",
			want:   []byteRange{{start: 90, length: 10}},
		},
		{
			name:   "suffix",
			header: "bytes=-10",
			want:   []byteRange{{start: 90, length: 10}},
		},
		{
			name:   "suffix larger than object",
			header: "bytes=-500",
			want:   []byteRange{{start: 0, length: 100}},
		},
		{
			name:   "end clamped to size",
			header: "bytes=50-1000",
			want:   []byteRange{{start: 50, length: 50}},
		},
		{
			name:   "multiple ranges",
			header: "bytes=0-4, 10-14",
			want:   []byteRange{{start: 0, length: 5}, {start: 10, length: 5}},
		},
		{
			name:   "start past end of object",
			header: "bytes=100-",
			err:    errUnsatisfiableRange,
		},
		{
			name:   "suffix zero",
			header: "bytes=-0",
			err:    errUnsatisfiableRange,
		},
		{
			name:   "start after end",
			header: "bytes=10-5",
			err:    errMalformedRange,
		},
		{
			name:   "wrong unit",
			header: "items=0-5",
			err:    errMalformedRange,
		},
		{
			name:   "garbage",
			header: "bytes=abc",
			err:    errMalformedRange,
		},
		{
			name:   "empty spec",
			header: "bytes=",
			err:    errMalformedRange,
		},
		{
			name:   "negative start",
			header: "bytes=-5-10",
			err:    errMalformedRange,
		},
		{
			name:   "mixed satisfiable and unsatisfiable",
			header: "bytes=0-4,200-300",
			want:   []byteRange{{start: 0, length: 5}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseRange(tt.header, size)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContentRange(t *testing.T) {
	t.Parallel()
	br := byteRange{start: 0, length: 3}
	assert.Equal(t, "bytes 0-2/6", br.contentRange(6))
}
