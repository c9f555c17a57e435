package workoutlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_Validate(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	validLog := func() Log {
		return Log{
			ID:              "9f2b2a44-8c7e-4e1e-9c0d-0f6a1a8d9b11",
			UserID:          1,
			WorkoutDate:     now.Add(-24 * time.Hour),
			DurationMinutes: 45,
			Type:            TypeReformer,
			RPE:             7,
		}
	}

	l := validLog()
	require.NoError(t, l.Validate(now))

	l = validLog()
	l.ID = ""
	assert.Error(t, l.Validate(now))

	l = validLog()
	l.UserID = 0
	assert.Error(t, l.Validate(now))

	l = validLog()
	l.DurationMinutes = 0
	assert.Error(t, l.Validate(now))

	l = validLog()
	l.DurationMinutes = MaxDurationMinutes + 1
	assert.Error(t, l.Validate(now))

	l = validLog()
	l.DurationMinutes = MaxDurationMinutes
	assert.NoError(t, l.Validate(now))

	l = validLog()
	l.Type = "crossfit"
	assert.Error(t, l.Validate(now))

	l = validLog()
	l.RPE = 0
	assert.Error(t, l.Validate(now))

	l = validLog()
	l.RPE = 11
	assert.Error(t, l.Validate(now))

	l = validLog()
	l.WorkoutDate = now.Add(time.Hour)
	assert.Error(t, l.Validate(now))
}
