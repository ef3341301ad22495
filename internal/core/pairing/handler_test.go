package pairing

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-lanconnect/internal/core/certstore"
	"github.com/dep2p/go-lanconnect/internal/core/storage/engine"
	"github.com/dep2p/go-lanconnect/internal/core/storage/engine/badger"
	"github.com/dep2p/go-lanconnect/pkg/interfaces"
	"github.com/dep2p/go-lanconnect/pkg/packet"
	"github.com/dep2p/go-lanconnect/pkg/types"
	"github.com/dep2p/go-lanconnect/tests/mocks"
)

var peerID = strings.Repeat("b", 32)

type transition struct {
	state  types.PairState
	reason string
}

type fixture struct {
	clk     *clock.Mock
	store   *certstore.Store
	cert    *certstore.Certificate
	link    *mocks.MockLink
	handler *Handler

	mu    sync.Mutex
	trans []transition
	links []interfaces.Link
}

func newFixture(t *testing.T, initial types.PairState) *fixture {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	eng, err := badger.New(engine.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	store, err := certstore.New(eng, certstore.Options{Key: make([]byte, 32), Clock: clk})
	require.NoError(t, err)

	cert, err := certstore.Generate(peerID, clk.Now())
	require.NoError(t, err)

	f := &fixture{clk: clk, store: store, cert: cert}
	f.link = mocks.NewMockLink(types.DeviceInfo{ID: peerID}, cert.X509(), cert.Fingerprint)
	f.links = []interfaces.Link{f.link}
	f.handler = New(peerID, initial, Options{
		Clock: clk,
		Trust: store,
		Links: func() []interfaces.Link {
			f.mu.Lock()
			defer f.mu.Unlock()
			return f.links
		},
		OnTransition: func(_ string, state types.PairState, reason string) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.trans = append(f.trans, transition{state, reason})
		},
	})
	t.Cleanup(f.handler.Close)
	return f
}

func (f *fixture) transitions() []transition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transition(nil), f.trans...)
}

func (f *fixture) setLinks(links ...interfaces.Link) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links = links
}

func pairPacket(pair bool) *packet.Packet {
	p := packet.New(packet.TypePair)
	p.Body.SetBool("pair", pair)
	return p
}

func lastSentPair(t *testing.T, l *mocks.MockLink) bool {
	t.Helper()
	sent := l.Sent()
	require.NotEmpty(t, sent)
	last := sent[len(sent)-1]
	require.Equal(t, packet.TypePair, last.Type)
	return last.GetBool("pair")
}

// ============================================================================
//                              对端发起
// ============================================================================

func TestPeerRequest_Accept(t *testing.T) {
	f := newFixture(t, types.PairStateUnpaired)

	require.NoError(t, f.handler.HandlePacket(f.link, pairPacket(true)))
	assert.Equal(t, types.PairStateRequestedByPeer, f.handler.State())

	require.NoError(t, f.handler.AcceptPairing())
	assert.True(t, f.handler.IsPaired())
	assert.True(t, lastSentPair(t, f.link))

	has, err := f.store.HasPeerCertificate(peerID)
	require.NoError(t, err)
	assert.True(t, has)

	assert.Equal(t, []transition{
		{types.PairStateRequestedByPeer, ReasonRequestedByPeer},
		{types.PairStatePaired, ReasonAccepted},
	}, f.transitions())
}

func TestPeerRequest_Reject(t *testing.T) {
	f := newFixture(t, types.PairStateUnpaired)

	require.NoError(t, f.handler.HandlePacket(f.link, pairPacket(true)))
	require.NoError(t, f.handler.RejectPairing())

	assert.Equal(t, types.PairStateUnpaired, f.handler.State())
	assert.False(t, lastSentPair(t, f.link))
	has, err := f.store.HasPeerCertificate(peerID)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestPeerRequest_TimeoutSendsRejection(t *testing.T) {
	f := newFixture(t, types.PairStateUnpaired)
	require.NoError(t, f.handler.HandlePacket(f.link, pairPacket(true)))

	f.clk.Add(DefaultTimeout)
	require.Eventually(t, func() bool {
		return f.handler.State() == types.PairStateUnpaired
	}, time.Second, 5*time.Millisecond)

	assert.False(t, lastSentPair(t, f.link))
	tr := f.transitions()
	assert.Equal(t, ReasonTimeout, tr[len(tr)-1].reason)
}

func TestPeerRequest_CancelledByPeer(t *testing.T) {
	f := newFixture(t, types.PairStateUnpaired)
	require.NoError(t, f.handler.HandlePacket(f.link, pairPacket(true)))
	require.NoError(t, f.handler.HandlePacket(f.link, pairPacket(false)))

	assert.Equal(t, types.PairStateUnpaired, f.handler.State())
	tr := f.transitions()
	assert.Equal(t, ReasonCancelledByPeer, tr[len(tr)-1].reason)
}

func TestAccept_CertificateMismatch(t *testing.T) {
	f := newFixture(t, types.PairStateUnpaired)
	other := mocks.NewMockLink(types.DeviceInfo{ID: peerID}, f.cert.X509(), "0000")
	f.setLinks(f.link, other)

	require.NoError(t, f.handler.HandlePacket(f.link, pairPacket(true)))
	err := f.handler.AcceptPairing()
	assert.ErrorIs(t, err, types.ErrCertificateInvalid)
	assert.Equal(t, types.PairStateUnpaired, f.handler.State())

	tr := f.transitions()
	assert.Equal(t, ReasonCertMismatch, tr[len(tr)-1].reason)

	has, err := f.store.HasPeerCertificate(peerID)
	require.NoError(t, err)
	assert.False(t, has, "trust is not kept on mismatch")
}

// ============================================================================
//                              本地发起
// ============================================================================

func TestRequest_AcceptedByPeer(t *testing.T) {
	f := newFixture(t, types.PairStateUnpaired)

	require.NoError(t, f.handler.RequestPairing())
	assert.Equal(t, types.PairStateRequested, f.handler.State())
	assert.True(t, lastSentPair(t, f.link))

	require.NoError(t, f.handler.HandlePacket(f.link, pairPacket(true)))
	assert.True(t, f.handler.IsPaired())

	fp, err := f.store.TrustedFingerprint(peerID)
	require.NoError(t, err)
	assert.Equal(t, f.cert.Fingerprint, fp)
}

func TestRequest_RejectedByPeer(t *testing.T) {
	f := newFixture(t, types.PairStateUnpaired)
	require.NoError(t, f.handler.RequestPairing())
	require.NoError(t, f.handler.HandlePacket(f.link, pairPacket(false)))

	assert.Equal(t, types.PairStateUnpaired, f.handler.State())
	tr := f.transitions()
	assert.Equal(t, ReasonRejectedByPeer, tr[len(tr)-1].reason)
}

func TestRequest_Timeout(t *testing.T) {
	f := newFixture(t, types.PairStateUnpaired)
	require.NoError(t, f.handler.RequestPairing())

	f.clk.Add(DefaultTimeout - time.Second)
	assert.Equal(t, types.PairStateRequested, f.handler.State())

	f.clk.Add(time.Second)
	require.Eventually(t, func() bool {
		return f.handler.State() == types.PairStateUnpaired
	}, time.Second, 5*time.Millisecond)
}

func TestRequest_CancelStopsTimer(t *testing.T) {
	f := newFixture(t, types.PairStateUnpaired)
	require.NoError(t, f.handler.RequestPairing())
	require.NoError(t, f.handler.CancelPairing())
	assert.False(t, lastSentPair(t, f.link))

	f.clk.Add(DefaultTimeout)
	time.Sleep(20 * time.Millisecond)

	tr := f.transitions()
	require.Len(t, tr, 2)
	assert.Equal(t, ReasonCancelled, tr[1].reason)
}

func TestRequest_NotReachable(t *testing.T) {
	f := newFixture(t, types.PairStateUnpaired)
	f.setLinks()

	assert.ErrorIs(t, f.handler.RequestPairing(), types.ErrNotReachable)
	assert.Equal(t, types.PairStateUnpaired, f.handler.State())
	assert.Empty(t, f.transitions())
}

// ============================================================================
//                              已配对
// ============================================================================

func TestPaired_ReacknowledgesRequest(t *testing.T) {
	f := newFixture(t, types.PairStatePaired)

	require.NoError(t, f.handler.HandlePacket(f.link, pairPacket(true)))
	assert.True(t, f.handler.IsPaired())
	assert.True(t, lastSentPair(t, f.link))
	assert.Empty(t, f.transitions())
}

func TestUnpair(t *testing.T) {
	f := newFixture(t, types.PairStateUnpaired)
	require.NoError(t, f.handler.HandlePacket(f.link, pairPacket(true)))
	require.NoError(t, f.handler.AcceptPairing())

	require.NoError(t, f.handler.Unpair())
	assert.Equal(t, types.PairStateUnpaired, f.handler.State())
	assert.False(t, lastSentPair(t, f.link))

	has, err := f.store.HasPeerCertificate(peerID)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestUnpairedByPeer(t *testing.T) {
	f := newFixture(t, types.PairStateUnpaired)
	require.NoError(t, f.handler.HandlePacket(f.link, pairPacket(true)))
	require.NoError(t, f.handler.AcceptPairing())

	require.NoError(t, f.handler.HandlePacket(f.link, pairPacket(false)))
	assert.Equal(t, types.PairStateUnpaired, f.handler.State())

	trusted, err := f.store.IsTrusted(peerID)
	require.NoError(t, err)
	assert.False(t, trusted)
}

// ============================================================================
//                              非法调用
// ============================================================================

func TestInvalidState(t *testing.T) {
	f := newFixture(t, types.PairStateUnpaired)

	assert.ErrorIs(t, f.handler.AcceptPairing(), types.ErrInvalidState)
	assert.ErrorIs(t, f.handler.RejectPairing(), types.ErrInvalidState)
	assert.ErrorIs(t, f.handler.CancelPairing(), types.ErrInvalidState)
	assert.ErrorIs(t, f.handler.Unpair(), types.ErrInvalidState)

	require.NoError(t, f.handler.RequestPairing())
	assert.ErrorIs(t, f.handler.RequestPairing(), types.ErrInvalidState)
}

func TestHandlePacket_Malformed(t *testing.T) {
	f := newFixture(t, types.PairStateUnpaired)

	assert.ErrorIs(t, f.handler.HandlePacket(f.link, packet.New(packet.TypePair)), types.ErrParse)
	assert.ErrorIs(t, f.handler.HandlePacket(f.link, packet.New("kdeconnect.ping")), types.ErrParse)
	assert.Equal(t, types.PairStateUnpaired, f.handler.State())
}
