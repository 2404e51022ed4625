package telemetry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraftStamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, now, Draft{}.Stamp(now))

	explicit := time.Date(2026, 2, 28, 23, 0, 0, 0, time.FixedZone("CET", 3600))
	assert.True(t, explicit.Equal(Draft{Timestamp: &explicit}.Stamp(now)))
	assert.Equal(t, time.UTC, Draft{Timestamp: &explicit}.Stamp(now).Location())
}

func TestDraftDecodesFlatPayload(t *testing.T) {
	var d Draft
	require.NoError(t, json.Unmarshal([]byte(`{"device_id":"esp-1","temperature":21.5,"vibration_z":0}`), &d))
	assert.Equal(t, "esp-1", d.DeviceID)
	require.NotNil(t, d.Temperature)
	assert.Equal(t, 21.5, *d.Temperature)
	require.NotNil(t, d.VibrationZ)
	assert.Nil(t, d.GasIndex)
	assert.Nil(t, d.Timestamp)
	assert.False(t, d.Empty())
	assert.True(t, Draft{}.Empty())
}
