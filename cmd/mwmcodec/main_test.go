package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dyuri/mwmcodec/internal/geometry"
)

func TestParseRect(t *testing.T) {
	r, err := parseRect("19.0, 47.4,19.2,47.6")
	require.NoError(t, err)
	require.True(t, r.Equal(geometry.NewRect(19.0, 47.4, 19.2, 47.6)), "got %v", r)

	for _, bad := range []string{"", "1,2,3", "1,2,3,x", "5,0,1,1", "0,5,1,1"} {
		if _, err := parseRect(bad); err == nil {
			t.Errorf("parseRect(%q) succeeded, want error", bad)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 << 20, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCountDuplicates(t *testing.T) {
	pts := []geometry.Point{{1, 1}, {1, 1}, {2, 2}, {2, 2}, {3, 3}}
	require.Equal(t, 2, countDuplicates(pts))
	require.Equal(t, 0, countDuplicates(nil))
}

func TestFormatTypes(t *testing.T) {
	require.Equal(t, "[1,22,333]", formatTypes([]uint32{1, 22, 333}))
	require.Equal(t, "[]", formatTypes(nil))
}
