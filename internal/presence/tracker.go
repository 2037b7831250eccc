package presence

import (
	"github.com/prudhvinik1/homepresence/internal/models"
)

// Evaluate classifies the resolved access point against the owner's
// bindings. An empty resolved id means no association. Matching is
// case-insensitive.
func Evaluate(resolved string, bindings []*models.LocationBinding) models.PresenceState {
	if resolved == "" {
		return models.Offline()
	}

	key := models.NormalizeAccessPointID(resolved)
	for _, b := range bindings {
		if b == nil {
			continue
		}
		if models.NormalizeAccessPointID(b.AccessPointID) == key {
			return models.AtKnownLocation(*b, resolved)
		}
	}
	return models.AtUnknownNetwork(resolved)
}

// HasChanged reports whether current differs from the last reported
// snapshot in any field friends can observe. A nil snapshot means nothing
// was reported yet.
func HasChanged(current models.PresenceState, last *models.LastReportedSnapshot) bool {
	if last == nil {
		return true
	}
	if !equalFold(current.AccessPoint(), last.AccessPointID) {
		return true
	}
	if !equalExact(current.LocationName(), last.LocationName) {
		return true
	}
	// binding edited under an unchanged access point
	return current.IsAtKnownLocation() != last.IsAtKnownLocation
}

func equalFold(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return models.NormalizeAccessPointID(*a) == models.NormalizeAccessPointID(*b)
}

func equalExact(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
