package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClockTime(t *testing.T) {
	tests := []struct {
		in      string
		want    ClockTime
		wantErr bool
	}{
		{in: "10:00 AM", want: 600},
		{in: "12:00 AM", want: 0},
		{in: "12:30 PM", want: 750},
		{in: "01:05 PM", want: 785},
		{in: "11:59 PM", want: 1439},
		{in: "1:00 PM", wantErr: true},
		{in: "13:00 PM", wantErr: true},
		{in: "00:30 AM", wantErr: true},
		{in: "10:60 AM", wantErr: true},
		{in: "10:00 am", wantErr: true},
		{in: "10:00AM", wantErr: true},
		{in: " 10:00 AM", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClockTime(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClockTimeStringRoundTrip(t *testing.T) {
	for m := 0; m < minutesPerDay; m++ {
		c := ClockTime(m)
		parsed, err := ParseClockTime(c.String())
		require.NoError(t, err, c.String())
		require.Equal(t, c, parsed)
	}
}

func TestClockTimeMarshalTextRejectsOutOfRange(t *testing.T) {
	_, err := ClockTime(minutesPerDay).MarshalText()
	assert.Error(t, err)

	b, err := MustClockTime("09:15 AM").MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "09:15 AM", string(b))
}

func TestCivilDateKeepsWallClockDate(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	late := time.Date(2025, 4, 28, 22, 30, 0, 0, loc)

	assert.Equal(t, mustDate("2025-04-28"), CivilDate(late))
	assert.Equal(t, mustDate("2025-04-29"), CivilDate(late.UTC()))
}

func TestNextWeekday(t *testing.T) {
	monday := mustDate("2025-04-28")

	assert.Equal(t, monday, nextWeekday(monday, time.Monday))
	assert.Equal(t, mustDate("2025-05-03"), nextWeekday(monday, time.Saturday))

	thursday := mustDate("2025-05-01")
	assert.Equal(t, mustDate("2025-05-05"), nextWeekday(thursday, time.Monday))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-05-01")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, d.Location())
	assert.Equal(t, "2025-05-01", FormatDate(d))

	_, err = ParseDate("05/01/2025")
	assert.Error(t, err)
}
