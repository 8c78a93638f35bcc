package generic_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/points-engine/generic"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2020, time.November, 2, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"utc", "2020-11-02T14:00:00Z", want},
		{"offset converted", "2020-11-02T16:00:00+02:00", want},
		{"naive is utc", "2020-11-02T14:00:00", want},
		{"naive with space", "2020-11-02 14:00:00", want},
		{"fractional", "2020-11-02T14:00:00.5Z", want.Add(500 * time.Millisecond)},
		{"date only", "2020-11-02", time.Date(2020, time.November, 2, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := generic.ParseTimestamp(tt.input)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestParseTimestamp_Invalid(t *testing.T) {
	for _, input := range []string{"", "   ", "yesterday", "2020-13-40T00:00:00Z"} {
		_, err := generic.ParseTimestamp(input)
		assert.Error(t, err, "input %q", input)
	}
}
