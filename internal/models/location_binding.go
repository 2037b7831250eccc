package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	DefaultIconID   = "default_icon"
	DefaultColorHex = "#CCCCCC"
	OfflineIconID   = "ic_wifi_off"
	OfflineColorHex = "#808080"
)

// Display field limits keep a status well under the push payload cap.
const (
	MaxDisplayNameLength   = 100
	MaxIconIDLength        = 64
	MaxColorHexLength      = 16
	MaxAccessPointIDLength = 64
)

// LocationBinding names an access point for its owner. At most one binding
// exists per (OwnerID, AccessPointID), compared case-insensitively.
type LocationBinding struct {
	ID            uuid.UUID  `json:"id"`
	OwnerID       uuid.UUID  `json:"owner_id"`
	AccessPointID string     `json:"access_point_id"`
	DisplayName   string     `json:"display_name"`
	IconID        string     `json:"icon_id"`
	ColorHex      string     `json:"color_hex"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// NormalizeAccessPointID lowercases and trims an access point identifier
// so that lookups are case-insensitive.
func NormalizeAccessPointID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// WithDefaults fills empty icon and color fields.
func (b LocationBinding) WithDefaults() LocationBinding {
	if b.IconID == "" {
		b.IconID = DefaultIconID
	}
	if b.ColorHex == "" {
		b.ColorHex = DefaultColorHex
	}
	return b
}

// CheckDisplayFields enforces the display field limits. Lengths are
// counted in runes.
func CheckDisplayFields(name, iconID, colorHex string) error {
	switch {
	case utf8.RuneCountInString(name) > MaxDisplayNameLength:
		return fmt.Errorf("display name exceeds %d characters", MaxDisplayNameLength)
	case utf8.RuneCountInString(iconID) > MaxIconIDLength:
		return fmt.Errorf("icon id exceeds %d characters", MaxIconIDLength)
	case utf8.RuneCountInString(colorHex) > MaxColorHexLength:
		return fmt.Errorf("color exceeds %d characters", MaxColorHexLength)
	}
	return nil
}
