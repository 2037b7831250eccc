package models

const PushTypeFriendStatusUpdate = "FRIEND_STATUS_UPDATE"

// Data keys of a presence push.
const (
	PushKeyType          = "type"
	PushKeyUpdatedUserID = "updatedUserId"
	PushKeyLocationName  = "locationName"
	PushKeyBssid         = "bssid"
	PushKeyIsOnline      = "isOnline"
	PushKeyIconID        = "iconId"
	PushKeyColorHex      = "colorHex"
	PushKeyTimestamp     = "timestamp"
	PushKeyVersion       = "version"
)

// PresencePayload is the data-only push a friend receives when a status
// record changes. All values are strings on the wire.
type PresencePayload struct {
	Type          string
	UpdatedUserID string
	LocationName  string
	Bssid         string
	IsOnline      string
	IconID        string
	ColorHex      string
	Timestamp     string
	Version       string
}

func (p PresencePayload) Data() map[string]string {
	data := map[string]string{
		PushKeyType:          p.Type,
		PushKeyUpdatedUserID: p.UpdatedUserID,
		PushKeyLocationName:  p.LocationName,
		PushKeyBssid:         p.Bssid,
		PushKeyIsOnline:      p.IsOnline,
		PushKeyIconID:        p.IconID,
		PushKeyColorHex:      p.ColorHex,
		PushKeyTimestamp:     p.Timestamp,
	}
	if p.Version != "" {
		data[PushKeyVersion] = p.Version
	}
	return data
}

func PresencePayloadFromData(data map[string]string) PresencePayload {
	return PresencePayload{
		Type:          data[PushKeyType],
		UpdatedUserID: data[PushKeyUpdatedUserID],
		LocationName:  data[PushKeyLocationName],
		Bssid:         data[PushKeyBssid],
		IsOnline:      data[PushKeyIsOnline],
		IconID:        data[PushKeyIconID],
		ColorHex:      data[PushKeyColorHex],
		Timestamp:     data[PushKeyTimestamp],
		Version:       data[PushKeyVersion],
	}
}
