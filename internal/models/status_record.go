package models

import (
	"time"

	"github.com/google/uuid"
)

// StatusRecord is the shared, server-visible presence of one user. There is
// one per user and it is overwritten in place. Version increases by one on
// every overwrite and UpdatedAt is assigned by the store.
type StatusRecord struct {
	OwnerID           uuid.UUID `json:"ownerId"`
	LocationName      *string   `json:"currentLocationName"`
	AccessPointID     *string   `json:"currentBssid"`
	IsAtKnownLocation bool      `json:"isOnlineAtLocation"`
	IconID            *string   `json:"currentIconId"`
	ColorHex          *string   `json:"currentColorHex"`
	Version           int64     `json:"version"`
	UpdatedAt         time.Time `json:"timestamp"`
}

// SameContent compares the fields friends can observe. Version and
// UpdatedAt are ignored.
func (r *StatusRecord) SameContent(other *StatusRecord) bool {
	if r == nil || other == nil {
		return r == other
	}
	return equalStringPtr(r.LocationName, other.LocationName) &&
		equalStringPtr(r.AccessPointID, other.AccessPointID) &&
		r.IsAtKnownLocation == other.IsAtKnownLocation &&
		equalStringPtr(r.IconID, other.IconID) &&
		equalStringPtr(r.ColorHex, other.ColorHex)
}

// StatusChange is one write of a StatusRecord as seen by change capture.
// Before is nil on first write; After is nil when the record was deleted.
type StatusChange struct {
	OwnerID uuid.UUID     `json:"owner_id"`
	Before  *StatusRecord `json:"before,omitempty"`
	After   *StatusRecord `json:"after,omitempty"`
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
