package models

import (
	"time"

	"github.com/google/uuid"
)

type PresenceKind int

const (
	PresenceOffline PresenceKind = iota
	PresenceUnknownNetwork
	PresenceKnownLocation
)

func (k PresenceKind) String() string {
	switch k {
	case PresenceKnownLocation:
		return "at_known_location"
	case PresenceUnknownNetwork:
		return "at_unknown_network"
	default:
		return "offline"
	}
}

// PresenceState is the coarse presence of a user. Kind selects which of
// the remaining fields are meaningful: Offline carries none,
// UnknownNetwork carries AccessPointID, KnownLocation carries all.
type PresenceState struct {
	Kind          PresenceKind
	AccessPointID string
	Name          string
	IconID        string
	ColorHex      string
}

func Offline() PresenceState {
	return PresenceState{Kind: PresenceOffline}
}

func AtUnknownNetwork(accessPointID string) PresenceState {
	return PresenceState{Kind: PresenceUnknownNetwork, AccessPointID: accessPointID}
}

func AtKnownLocation(binding LocationBinding, accessPointID string) PresenceState {
	b := binding.WithDefaults()
	return PresenceState{
		Kind:          PresenceKnownLocation,
		AccessPointID: accessPointID,
		Name:          b.DisplayName,
		IconID:        b.IconID,
		ColorHex:      b.ColorHex,
	}
}

func (s PresenceState) IsAtKnownLocation() bool {
	return s.Kind == PresenceKnownLocation
}

// LocationName is nil unless the state is a known location.
func (s PresenceState) LocationName() *string {
	if s.Kind != PresenceKnownLocation {
		return nil
	}
	name := s.Name
	return &name
}

// AccessPoint is nil when offline.
func (s PresenceState) AccessPoint() *string {
	if s.Kind == PresenceOffline || s.AccessPointID == "" {
		return nil
	}
	ap := s.AccessPointID
	return &ap
}

// StatusRecord renders the state as the shared record for owner. Icon and
// color fall back to per-kind defaults. UpdatedAt and Version are left for
// the store to assign.
func (s PresenceState) StatusRecord(owner uuid.UUID) *StatusRecord {
	icon, color := s.IconID, s.ColorHex
	switch s.Kind {
	case PresenceOffline:
		icon, color = OfflineIconID, OfflineColorHex
	case PresenceUnknownNetwork:
		icon, color = DefaultIconID, DefaultColorHex
	}
	return &StatusRecord{
		OwnerID:           owner,
		LocationName:      s.LocationName(),
		AccessPointID:     s.AccessPoint(),
		IsAtKnownLocation: s.IsAtKnownLocation(),
		IconID:            &icon,
		ColorHex:          &color,
	}
}

// Snapshot captures the comparison fields of s at t.
func (s PresenceState) Snapshot(t time.Time) *LastReportedSnapshot {
	return &LastReportedSnapshot{
		AccessPointID:         s.AccessPoint(),
		LocationName:          s.LocationName(),
		IsAtKnownLocation:     s.IsAtKnownLocation(),
		CapturedAtEpochMillis: t.UnixMilli(),
	}
}
