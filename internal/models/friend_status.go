package models

import "github.com/google/uuid"

// FriendStatusEntry is the receiving device's cached view of one friend.
// Version is zero when the push carried none.
type FriendStatusEntry struct {
	FriendID              uuid.UUID `json:"friend_id"`
	LocationName          string    `json:"location_name"`
	AccessPointID         string    `json:"access_point_id"`
	IsOnline              bool      `json:"is_online"`
	IconID                string    `json:"icon_id"`
	ColorHex              string    `json:"color_hex"`
	Version               int64     `json:"version"`
	Timestamp             string    `json:"timestamp"`
	ReceivedAtEpochMillis int64     `json:"received_at"`
}
