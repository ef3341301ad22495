package mdns

import (
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-lanconnect/pkg/types"
)

type recordingSender struct {
	mu    sync.Mutex
	addrs []*net.UDPAddr
}

func (s *recordingSender) SendIdentityTo(addr *net.UDPAddr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addrs = append(s.addrs, addr)
	return nil
}

var (
	localID = strings.Repeat("a", 32)
	peerID  = strings.Repeat("b", 32)
)

func TestTXTRecords(t *testing.T) {
	info := types.DeviceInfo{ID: localID, Name: "desk", Type: types.DeviceTypeDesktop, ProtocolVersion: 8}
	txt := parseTXT(buildTXT(info))

	assert.Equal(t, localID, txt["id"])
	assert.Equal(t, "desk", txt["name"])
	assert.Equal(t, "desktop", txt["type"])
	assert.Equal(t, "8", txt["protocol"])
}

func TestBuildTXT_Truncates(t *testing.T) {
	info := types.DeviceInfo{ID: localID, Name: strings.Repeat("n", 400)}
	for _, r := range buildTXT(info) {
		assert.LessOrEqual(t, len(r), maxTXTLen)
	}
}

func TestHandleEntry(t *testing.T) {
	var sender recordingSender
	d := New(Config{}, types.DeviceInfo{ID: localID}, 1716, &sender, nil)

	err := d.handleEntry(&mdns.ServiceEntry{
		Name:       peerID + "." + ServiceType + "." + Domain,
		AddrV4:     net.IPv4(192, 168, 1, 20),
		Port:       1716,
		InfoFields: []string{"id=" + peerID, "name=phone"},
	})
	require.NoError(t, err)
	require.Len(t, sender.addrs, 1)
	assert.Equal(t, "192.168.1.20:1716", sender.addrs[0].String())
}

func TestHandleEntry_Skips(t *testing.T) {
	var sender recordingSender
	d := New(Config{}, types.DeviceInfo{ID: localID}, 1716, &sender, nil)

	assert.Error(t, d.handleEntry(&mdns.ServiceEntry{
		AddrV4: net.IPv4(192, 168, 1, 20), InfoFields: []string{"id=" + localID},
	}), "own service")
	assert.ErrorIs(t, d.handleEntry(&mdns.ServiceEntry{
		AddrV4: net.IPv4(192, 168, 1, 20), InfoFields: []string{"id=bad"},
	}), types.ErrInvalidDeviceID)
	assert.Error(t, d.handleEntry(&mdns.ServiceEntry{
		InfoFields: []string{"id=" + peerID},
	}), "no address")
	assert.Empty(t, sender.addrs)
}

func TestHandleEntry_DefaultPort(t *testing.T) {
	var sender recordingSender
	d := New(Config{}, types.DeviceInfo{ID: localID}, 1716, &sender, nil)

	require.NoError(t, d.handleEntry(&mdns.ServiceEntry{
		AddrV4: net.IPv4(10, 0, 0, 5), InfoFields: []string{"id=" + peerID},
	}))
	assert.Equal(t, 1716, sender.addrs[0].Port)
}

func TestIsVirtualInterface(t *testing.T) {
	assert.True(t, isVirtualInterface("docker0"))
	assert.True(t, isVirtualInterface("veth12ab"))
	assert.False(t, isVirtualInterface("eth0"))
	assert.False(t, isVirtualInterface("wlan0"))
}
