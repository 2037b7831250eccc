package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Device is one installed agent. PushToken is the device's push target:
// opaque, issued by the push transport, refreshed by the agent.
type Device struct {
	ID         uuid.UUID  `json:"id"`
	AccountID  uuid.UUID  `json:"account_id"`
	Name       string     `json:"name"`
	DeviceType string     `json:"device_type"`
	PushToken  *string    `json:"-"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// HasPushTarget reports whether the device can receive pushes.
func (d *Device) HasPushTarget() bool {
	return d.PushToken != nil && strings.TrimSpace(*d.PushToken) != "" && d.RevokedAt == nil
}
