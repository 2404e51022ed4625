package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeriesQueryBounds(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	start, end, limit, err := SeriesQuery{}.Bounds(now)
	require.NoError(t, err)
	assert.Equal(t, now, end)
	assert.Equal(t, now.Add(-24*time.Hour), start)
	assert.Equal(t, DefaultSeriesLimit, limit)

	explicitEnd := now.Add(-time.Hour)
	start, end, limit, err = SeriesQuery{End: &explicitEnd, Limit: MaxSeriesLimit}.Bounds(now)
	require.NoError(t, err)
	assert.Equal(t, explicitEnd, end)
	assert.Equal(t, explicitEnd.Add(-24*time.Hour), start)
	assert.Equal(t, MaxSeriesLimit, limit)

	_, _, _, err = SeriesQuery{Limit: MaxSeriesLimit + 1}.Bounds(now)
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, _, _, err = SeriesQuery{Limit: -1}.Bounds(now)
	assert.ErrorIs(t, err, ErrInvalidQuery)

	late := now.Add(time.Hour)
	_, _, _, err = SeriesQuery{Start: &late}.Bounds(now)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}
