package models

// LastReportedSnapshot is the device-local record of the last state that
// was written to the shared store. It is never transmitted.
type LastReportedSnapshot struct {
	AccessPointID         *string `json:"access_point_id,omitempty"`
	LocationName          *string `json:"location_name,omitempty"`
	IsAtKnownLocation     bool    `json:"is_at_known_location"`
	CapturedAtEpochMillis int64   `json:"captured_at"`
}
