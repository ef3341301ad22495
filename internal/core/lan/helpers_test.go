package lan

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-lanconnect/internal/core/certstore"
	"github.com/dep2p/go-lanconnect/pkg/interfaces"
	"github.com/dep2p/go-lanconnect/pkg/packet"
	"github.com/dep2p/go-lanconnect/pkg/types"
)

var (
	idA = strings.Repeat("a", 32)
	idB = strings.Repeat("b", 32)
	idC = strings.Repeat("c", 32)
)

func testConfig() Config {
	return Config{
		BindAddress:       "127.0.0.1",
		HandshakeTimeout:  5 * time.Second,
		BroadcastBurst:    1,
		RateLimitCooldown: time.Second,
		RateLimitEntries:  256,
	}
}

func newCert(t *testing.T, id string) *certstore.Certificate {
	t.Helper()
	cert, err := certstore.Generate(id, time.Now())
	require.NoError(t, err)
	return cert
}

func testIdentity(t *testing.T, id string) LocalIdentity {
	return LocalIdentity{
		Info: types.DeviceInfo{
			ID:              id,
			Name:            "host-" + id[:1],
			Type:            types.DeviceTypeDesktop,
			ProtocolVersion: packet.ProtocolVersion,
		},
		Certificate: newCert(t, id),
	}
}

// startProvider 启动一个只监听回环地址的提供者
func startProvider(t *testing.T, local LocalIdentity, trust TrustSource) *Provider {
	t.Helper()
	p, err := New(testConfig(), local, trust, clock.New(), nil)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop() })
	return p
}

// fakeTrust 固定的信任表
type fakeTrust map[string]string

func (f fakeTrust) TrustedFingerprint(id string) (string, error) {
	fp, ok := f[id]
	if !ok {
		return "", types.ErrNotFound
	}
	return fp, nil
}

// recorder 记录链路事件
type recorder struct {
	mu       sync.Mutex
	received []interfaces.Link
	lost     []interfaces.Link
}

func (r *recorder) OnConnectionReceived(l interfaces.Link) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, l)
}

func (r *recorder) OnConnectionLost(l interfaces.Link) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lost = append(r.lost, l)
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.received), len(r.lost)
}
