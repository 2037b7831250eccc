package presence

import (
	"testing"
	"time"

	"github.com/prudhvinik1/homepresence/internal/models"
	"github.com/stretchr/testify/assert"
)

func homeBindings() []*models.LocationBinding {
	return []*models.LocationBinding{
		{AccessPointID: "AA:BB", DisplayName: "Home", IconID: "ic_home", ColorHex: "#00FF00"},
	}
}

func TestEvaluate_Classification(t *testing.T) {
	bindings := homeBindings()

	known := Evaluate("AA:BB", bindings)
	assert.Equal(t, models.PresenceKnownLocation, known.Kind)
	assert.Equal(t, "Home", known.Name)
	assert.Equal(t, "ic_home", known.IconID)

	unknown := Evaluate("CC:DD", bindings)
	assert.Equal(t, models.PresenceUnknownNetwork, unknown.Kind)
	assert.Equal(t, "CC:DD", unknown.AccessPointID)

	offline := Evaluate("", bindings)
	assert.Equal(t, models.PresenceOffline, offline.Kind)
}

func TestEvaluate_CaseInsensitiveMatch(t *testing.T) {
	state := Evaluate("aa:bb", homeBindings())

	assert.True(t, state.IsAtKnownLocation())
	assert.Equal(t, "Home", state.Name)
}

func TestEvaluate_BindingDefaults(t *testing.T) {
	bindings := []*models.LocationBinding{{AccessPointID: "aa:bb", DisplayName: "Office"}}

	state := Evaluate("aa:bb", bindings)

	assert.Equal(t, models.DefaultIconID, state.IconID)
	assert.Equal(t, models.DefaultColorHex, state.ColorHex)
}

func TestHasChanged_Matrix(t *testing.T) {
	bindings := homeBindings()
	now := time.Now()

	home := Evaluate("AA:BB", bindings)
	unknown := Evaluate("CC:DD", bindings)
	offline := Evaluate("", bindings)

	tests := []struct {
		name    string
		current models.PresenceState
		last    *models.LastReportedSnapshot
		want    bool
	}{
		{"first run", home, nil, true},
		{"first run offline", offline, nil, true},
		{"home to unknown", unknown, home.Snapshot(now), true},
		{"unknown to offline", offline, unknown.Snapshot(now), true},
		{"offline to unknown", unknown, offline.Snapshot(now), true},
		{"home unchanged", home, home.Snapshot(now), false},
		{"unknown unchanged", unknown, unknown.Snapshot(now), false},
		{"offline unchanged", offline, offline.Snapshot(now), false},
		{"access point case only", Evaluate("aa:bb", bindings), home.Snapshot(now), false},
		{"binding renamed", Evaluate("AA:BB", []*models.LocationBinding{{AccessPointID: "AA:BB", DisplayName: "Flat"}}), home.Snapshot(now), true},
		{"binding removed at same access point", Evaluate("AA:BB", nil), home.Snapshot(now), true},
		{"binding added at same access point", home, Evaluate("AA:BB", nil).Snapshot(now), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasChanged(tt.current, tt.last))
		})
	}
}

func TestHasChanged_KnownFlagAloneIsSignificant(t *testing.T) {
	// same access point and name, only the known-location flag differs
	last := &models.LastReportedSnapshot{
		AccessPointID:     models.StringPtr("aa:bb"),
		LocationName:      models.StringPtr("Home"),
		IsAtKnownLocation: false,
	}
	current := models.PresenceState{Kind: models.PresenceKnownLocation, AccessPointID: "aa:bb", Name: "Home"}

	assert.True(t, HasChanged(current, last))
}
