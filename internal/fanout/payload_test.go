package fanout

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/homepresence/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestBuildPayload_Fallbacks(t *testing.T) {
	owner := uuid.New()
	now := time.Date(2026, 5, 4, 3, 2, 1, 0, time.FixedZone("CEST", 2*3600))

	payload := BuildPayload(&models.StatusRecord{OwnerID: owner}, now)

	assert.Equal(t, models.PushTypeFriendStatusUpdate, payload.Type)
	assert.Equal(t, owner.String(), payload.UpdatedUserID)
	assert.Equal(t, "Unknown Location", payload.LocationName)
	assert.Equal(t, "N/A", payload.Bssid)
	assert.Equal(t, "false", payload.IsOnline)
	assert.Equal(t, "default_icon", payload.IconID)
	assert.Equal(t, "#CCCCCC", payload.ColorHex)
	assert.Equal(t, "2026-05-04T01:02:01.000Z", payload.Timestamp, "current time in UTC when the record has none")
	assert.NotContains(t, payload.Data(), models.PushKeyVersion)
}

func TestBuildPayload_OfflineRecord(t *testing.T) {
	owner := uuid.New()
	record := models.Offline().StatusRecord(owner)
	record.Version = 7

	payload := BuildPayload(record, time.Now())

	assert.Equal(t, "Unknown Location", payload.LocationName)
	assert.Equal(t, "N/A", payload.Bssid)
	assert.Equal(t, models.OfflineIconID, payload.IconID)
	assert.Equal(t, models.OfflineColorHex, payload.ColorHex)
	assert.Equal(t, "7", payload.Data()[models.PushKeyVersion])
}

func TestChunk(t *testing.T) {
	assert.Equal(t, [][]string{{"a"}}, chunk([]string{"a"}, 2))
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, chunk([]string{"a", "b", "c"}, 2))
	assert.Equal(t, [][]string{{"a", "b"}}, chunk([]string{"a", "b"}, 2))
}
