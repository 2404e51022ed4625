package masterdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeviceValidate(t *testing.T) {
	assert.NoError(t, Device{ID: "d1", ExternalID: "esp-1", FactoryID: "f1"}.Validate())
	assert.Error(t, Device{ExternalID: "esp-1", FactoryID: "f1"}.Validate())
	assert.Error(t, Device{ID: "d1", ExternalID: "  ", FactoryID: "f1"}.Validate())
	assert.Error(t, Device{ID: "d1", ExternalID: "esp-1"}.Validate())
}

func TestDeviceActiveSince(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	seen := now.Add(-5 * time.Minute)

	assert.False(t, Device{}.ActiveSince(now.Add(-time.Hour)))
	assert.True(t, Device{LastSeen: &seen}.ActiveSince(now.Add(-5*time.Minute)))
	assert.False(t, Device{LastSeen: &seen}.ActiveSince(now.Add(-4*time.Minute)))
}
