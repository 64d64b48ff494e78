package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryWindow(t *testing.T) {
	from, to, err := queryWindow("from", "2026-07-01", "to", "2026-07-03")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), *from)
	assert.Equal(t, time.Date(2026, 7, 3, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC), *to)

	from, to, err = queryWindow("from", "", "to", "2026-07-03T10:00:00Z")
	require.NoError(t, err)
	assert.Nil(t, from)
	assert.Equal(t, time.Date(2026, 7, 3, 10, 0, 0, 0, time.UTC), *to)

	_, _, err = queryWindow("from", "2026-07-03", "to", "2026-07-01")
	var verrs *ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "invalid_time_range", verrs.Errors[0].Code)
	assert.Equal(t, "to", verrs.Errors[0].Field)

	_, _, err = queryWindow("start_at", "yesterday", "end_at", "")
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "invalid_start_at", verrs.Errors[0].Code)
}

func TestQueryFlag(t *testing.T) {
	v, err := queryFlag("active", " true ")
	require.NoError(t, err)
	assert.True(t, *v)

	v, err = queryFlag("active", "")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = queryFlag("active", "maybe")
	var verrs *ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "invalid_active", verrs.Errors[0].Code)
}
