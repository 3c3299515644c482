package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    uint64
		wantErr bool
	}{
		{name: "permanent star", spec: "*", want: 0},
		{name: "seconds only", spec: "30s", want: 30},
		{name: "minutes only", spec: "5m", want: 300},
		{name: "hours only", spec: "2h", want: 7200},
		{name: "days only", spec: "1d", want: 86400},
		{name: "full spec", spec: "1d2h3m4s", want: 86400 + 7200 + 180 + 4},
		{name: "subset in order", spec: "2h30s", want: 7230},
		{name: "empty", spec: "", wantErr: true},
		{name: "out of order", spec: "30s5m", wantErr: true},
		{name: "unknown unit", spec: "10w", wantErr: true},
		{name: "mixed garbage", spec: "1d2x", wantErr: true},
		{name: "bare number", spec: "45", wantErr: true},
		{name: "zero total", spec: "0s", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDuration(tt.spec)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrBadDuration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds uint64
		want    string
	}{
		{0, "PERMANENT"},
		{45, "45s"},
		{300, "5m 0s"},
		{3661, "1h 1m 1s"},
		{90061, "1d 1h 1m 1s"},
		{86400, "1d 0h 0m 0s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.seconds))
	}
}
