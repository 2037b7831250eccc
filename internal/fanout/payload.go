package fanout

import (
	"strconv"
	"time"

	"github.com/prudhvinik1/homepresence/internal/models"
)

// Placeholders for absent record fields.
const (
	FallbackLocationName = "Unknown Location"
	FallbackAccessPoint  = "N/A"
)

// TimestampLayout is ISO-8601 with millisecond precision in UTC.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// BuildPayload renders record as the push payload friends receive.
func BuildPayload(record *models.StatusRecord, now time.Time) models.PresencePayload {
	ts := record.UpdatedAt
	if ts.IsZero() {
		ts = now
	}

	payload := models.PresencePayload{
		Type:          models.PushTypeFriendStatusUpdate,
		UpdatedUserID: record.OwnerID.String(),
		LocationName:  valueOr(record.LocationName, FallbackLocationName),
		Bssid:         valueOr(record.AccessPointID, FallbackAccessPoint),
		IsOnline:      strconv.FormatBool(record.IsAtKnownLocation),
		IconID:        valueOr(record.IconID, models.DefaultIconID),
		ColorHex:      valueOr(record.ColorHex, models.DefaultColorHex),
		Timestamp:     ts.UTC().Format(TimestampLayout),
	}
	if record.Version > 0 {
		payload.Version = strconv.FormatInt(record.Version, 10)
	}
	return payload
}

func valueOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
