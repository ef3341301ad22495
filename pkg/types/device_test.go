package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidDeviceID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"32 hex", strings.Repeat("a", 32), true},
		{"legacy uuid", "_" + strings.Repeat("b", 36) + "_", true},
		{"too short", "abc", false},
		{"dash", strings.Repeat("a", 31) + "-", false},
		{"too long", strings.Repeat("a", 39), false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidDeviceID(tt.id))
		})
	}
}

func TestNewDeviceID(t *testing.T) {
	id := NewDeviceID()
	assert.Len(t, id, 32)
	assert.True(t, IsValidDeviceID(id))
	assert.NotEqual(t, id, NewDeviceID())
}

func TestParseDeviceType(t *testing.T) {
	assert.Equal(t, DeviceTypePhone, ParseDeviceType("smartphone"))
	assert.Equal(t, DeviceTypeTablet, ParseDeviceType("Tablet"))
	assert.Equal(t, DeviceTypeDesktop, ParseDeviceType("toaster"))
}

func TestDeviceInfo_EqualAndClone(t *testing.T) {
	a := DeviceInfo{ID: "x", Name: "phone", Type: DeviceTypePhone, IncomingCapabilities: []string{"kdeconnect.ping"}}
	b := a.Clone()
	assert.True(t, a.Equal(b))

	b.IncomingCapabilities[0] = "kdeconnect.battery"
	assert.False(t, a.Equal(b))
	assert.Equal(t, "kdeconnect.ping", a.IncomingCapabilities[0])
}

func TestPairState_String(t *testing.T) {
	assert.Equal(t, "requested_by_peer", PairStateRequestedByPeer.String())
	assert.True(t, PairStateRequested.IsPending())
	assert.False(t, PairStatePaired.IsPending())
}
