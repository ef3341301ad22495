package certstore

import (
	"bytes"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-lanconnect/internal/core/storage/engine"
	"github.com/dep2p/go-lanconnect/internal/core/storage/engine/badger"
	"github.com/dep2p/go-lanconnect/pkg/interfaces"
	"github.com/dep2p/go-lanconnect/pkg/types"
)

const (
	localID = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	peerID  = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	otherID = "cccccccccccccccccccccccccccccccc"
)

var testKey = bytes.Repeat([]byte{7}, 32)

func newMockClock() *clock.Mock {
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return clk
}

func newEngine(t *testing.T) *badger.Engine {
	t.Helper()
	eng, err := badger.New(engine.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func newStore(t *testing.T, eng interfaces.Engine, clk clock.Clock) *Store {
	t.Helper()
	s, err := New(eng, Options{Key: testKey, Clock: clk})
	require.NoError(t, err)
	return s
}

// ============================================================================
//                              证书
// ============================================================================

func TestGenerate(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cert, err := Generate(localID, now)
	require.NoError(t, err)

	assert.Equal(t, localID, cert.DeviceID)
	assert.Equal(t, localID, cert.X509().Subject.CommonName)
	assert.Len(t, cert.Fingerprint, 64)
	assert.Equal(t, Fingerprint(cert.Raw), cert.Fingerprint)
	assert.Equal(t, now.AddDate(-1, 0, 0).Unix(), cert.NotBefore.Unix())
	assert.True(t, cert.NotAfter.After(now.AddDate(9, 11, 0)))
	assert.True(t, cert.matchesKey())

	tlsCert, err := cert.TLSCertificate()
	require.NoError(t, err)
	assert.Equal(t, cert.Raw, tlsCert.Certificate[0])

	_, err = Generate("bad id", now)
	assert.ErrorIs(t, err, types.ErrInvalidDeviceID)
}

func TestCertificate_Validate(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cert, err := Generate(localID, now)
	require.NoError(t, err)

	assert.NoError(t, cert.Validate(now))
	assert.ErrorIs(t, cert.Validate(now.AddDate(-2, 0, 0)), types.ErrCertificateInvalid)
	assert.ErrorIs(t, cert.Validate(now.AddDate(11, 0, 0)), types.ErrCertificateInvalid)
}

func TestDisplayFingerprint(t *testing.T) {
	assert.Equal(t, "AB:CD:EF", DisplayFingerprint("abcdef"))
	assert.Equal(t, "", DisplayFingerprint(""))
}

func TestParseCertificate_Garbage(t *testing.T) {
	_, err := ParseCertificate([]byte("not a certificate"))
	assert.ErrorIs(t, err, types.ErrCertificateInvalid)
}

// ============================================================================
//                              本机身份
// ============================================================================

func TestGetOrCreateLocalIdentity(t *testing.T) {
	clk := newMockClock()
	s := newStore(t, newEngine(t), clk)

	first, err := s.GetOrCreateLocalIdentity(localID)
	require.NoError(t, err)
	assert.Equal(t, localID, first.DeviceID)
	assert.NotEmpty(t, first.PrivateKey)

	again, err := s.GetOrCreateLocalIdentity(localID)
	require.NoError(t, err)
	assert.Equal(t, first.Fingerprint, again.Fingerprint)

	// 空 ID 沿用已存储身份
	same, err := s.GetOrCreateLocalIdentity("")
	require.NoError(t, err)
	assert.Equal(t, first.Fingerprint, same.Fingerprint)

	_, err = s.GetOrCreateLocalIdentity("short")
	assert.ErrorIs(t, err, types.ErrInvalidDeviceID)
}

func TestGetOrCreateLocalIdentity_GeneratesID(t *testing.T) {
	s := newStore(t, newEngine(t), newMockClock())

	cert, err := s.GetOrCreateLocalIdentity("")
	require.NoError(t, err)
	assert.True(t, types.IsValidDeviceID(cert.DeviceID))
}

func TestGetOrCreateLocalIdentity_RegeneratesExpired(t *testing.T) {
	clk := newMockClock()
	s := newStore(t, newEngine(t), clk)

	first, err := s.GetOrCreateLocalIdentity(localID)
	require.NoError(t, err)

	clk.Add(11 * 365 * 24 * time.Hour)

	second, err := s.GetOrCreateLocalIdentity(localID)
	require.NoError(t, err)
	assert.NotEqual(t, first.Fingerprint, second.Fingerprint)
	assert.NoError(t, s.Validate(second))
}

func TestGetOrCreateLocalIdentity_ChangedID(t *testing.T) {
	s := newStore(t, newEngine(t), newMockClock())

	_, err := s.GetOrCreateLocalIdentity(localID)
	require.NoError(t, err)

	cert, err := s.GetOrCreateLocalIdentity(otherID)
	require.NoError(t, err)
	assert.Equal(t, otherID, cert.DeviceID)
}

// ============================================================================
//                              对端证书
// ============================================================================

func TestPeerCertificates(t *testing.T) {
	clk := newMockClock()
	s := newStore(t, newEngine(t), clk)

	peer, err := Generate(peerID, clk.Now())
	require.NoError(t, err)

	_, err = s.LoadPeerCertificate(peerID)
	assert.ErrorIs(t, err, types.ErrNotFound)

	require.NoError(t, s.StorePeerCertificate(peerID, peer))

	loaded, err := s.LoadPeerCertificate(peerID)
	require.NoError(t, err)
	assert.Equal(t, peer.Fingerprint, loaded.Fingerprint)
	assert.Equal(t, peerID, loaded.DeviceID)
	assert.Empty(t, loaded.PrivateKey)

	has, err := s.HasPeerCertificate(peerID)
	require.NoError(t, err)
	assert.True(t, has)

	trusted, err := s.IsTrusted(peerID)
	require.NoError(t, err)
	assert.True(t, trusted)

	fp, err := s.TrustedFingerprint(peerID)
	require.NoError(t, err)
	assert.Equal(t, peer.Fingerprint, fp)

	ids, err := s.TrustedDeviceIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{peerID}, ids)

	require.NoError(t, s.DeletePeerCertificate(peerID))
	ids, err = s.TrustedDeviceIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)
	has, err = s.HasPeerCertificate(peerID)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestPeerCertificate_Expired(t *testing.T) {
	clk := newMockClock()
	s := newStore(t, newEngine(t), clk)

	peer, err := Generate(peerID, clk.Now())
	require.NoError(t, err)
	require.NoError(t, s.StorePeerCertificate(peerID, peer))

	clk.Add(11 * 365 * 24 * time.Hour)
	_, err = s.LoadPeerCertificate(peerID)
	assert.ErrorIs(t, err, types.ErrCertificateInvalid)
}

func TestStorePeerCertificate_Invalid(t *testing.T) {
	s := newStore(t, newEngine(t), newMockClock())

	assert.ErrorIs(t, s.StorePeerCertificate("x", &Certificate{Raw: []byte{1}}), types.ErrInvalidDeviceID)
	assert.ErrorIs(t, s.StorePeerCertificate(peerID, nil), types.ErrCertificateInvalid)
}

func TestDeviceInfo(t *testing.T) {
	s := newStore(t, newEngine(t), newMockClock())

	info := types.DeviceInfo{
		ID:                   peerID,
		Name:                 `Tom's "Pixel" ✓`,
		Type:                 types.DeviceTypePhone,
		ProtocolVersion:      8,
		IncomingCapabilities: []string{"kdeconnect.ping"},
	}
	require.NoError(t, s.StoreDeviceInfo(info))

	got, err := s.LoadDeviceInfo(peerID)
	require.NoError(t, err)
	assert.True(t, info.Equal(got))

	_, err = s.LoadDeviceInfo(otherID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

// ============================================================================
//                              密封
// ============================================================================

func TestSealedRecords_RejectTampering(t *testing.T) {
	clk := newMockClock()
	eng := newEngine(t)
	s := newStore(t, eng, clk)

	peer, err := Generate(peerID, clk.Now())
	require.NoError(t, err)
	require.NoError(t, s.StorePeerCertificate(peerID, peer))

	key := []byte("c/peer/" + peerID)
	raw, err := eng.Get(key)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, peer.Raw[:32]), "certificate stored in plaintext")

	raw[len(raw)-1] ^= 0xff
	require.NoError(t, eng.Put(key, raw))

	_, err = s.LoadPeerCertificate(peerID)
	assert.ErrorIs(t, err, types.ErrStorage)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestSealedRecords_BoundToKey(t *testing.T) {
	clk := newMockClock()
	eng := newEngine(t)
	s := newStore(t, eng, clk)

	peer, err := Generate(peerID, clk.Now())
	require.NoError(t, err)
	require.NoError(t, s.StorePeerCertificate(peerID, peer))

	// 把密文复制到另一个键下不能被解开
	raw, err := eng.Get([]byte("c/peer/" + peerID))
	require.NoError(t, err)
	require.NoError(t, eng.Put([]byte("c/peer/"+otherID), raw))

	_, err = s.LoadPeerCertificate(otherID)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestNew_WrongKey(t *testing.T) {
	eng := newEngine(t)
	newStore(t, eng, nil)

	_, err := New(eng, Options{Key: bytes.Repeat([]byte{9}, 32)})
	assert.ErrorIs(t, err, types.ErrStorage)
}

func TestNew_NoKey(t *testing.T) {
	_, err := New(newEngine(t), Options{})
	assert.ErrorIs(t, err, types.ErrStorage)
}

func TestNew_KeyFile(t *testing.T) {
	eng := newEngine(t)
	path := filepath.Join(t.TempDir(), "keys", "storage.key")

	_, err := New(eng, Options{KeyFile: path})
	require.NoError(t, err)

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), st.Mode().Perm())
	assert.Equal(t, int64(32), st.Size())

	// 再次打开复用同一密钥
	_, err = New(eng, Options{KeyFile: path})
	assert.NoError(t, err)
}

func TestNew_Passphrase(t *testing.T) {
	eng := newEngine(t)

	_, err := New(eng, Options{Passphrase: "correct horse"})
	require.NoError(t, err)

	_, err = New(eng, Options{Passphrase: "correct horse"})
	require.NoError(t, err)

	_, err = New(eng, Options{Passphrase: "battery staple"})
	assert.ErrorIs(t, err, types.ErrStorage)
}

// ============================================================================
//                              迁移
// ============================================================================

func putLegacy(t *testing.T, eng interfaces.Engine, key string, der []byte) {
	t.Helper()
	require.NoError(t, eng.Put([]byte("legacy/"+key), []byte(base64.StdEncoding.EncodeToString(der))))
}

func TestMigrateIfNeeded(t *testing.T) {
	clk := newMockClock()
	eng := newEngine(t)

	peer, err := Generate(peerID, clk.Now())
	require.NoError(t, err)
	expired, err := Generate(otherID, clk.Now().AddDate(-20, 0, 0))
	require.NoError(t, err)
	local, err := Generate(localID, clk.Now())
	require.NoError(t, err)

	putLegacy(t, eng, "peer/"+peerID, peer.Raw)
	putLegacy(t, eng, "peer/"+otherID, expired.Raw)
	require.NoError(t, eng.Put([]byte("legacy/peer/dddddddddddddddddddddddddddddddd"), []byte("%%%garbage")))
	putLegacy(t, eng, "local/cert", local.Raw)
	putLegacy(t, eng, "local/key", local.PrivateKey)

	s := newStore(t, eng, clk)
	migrated, err := s.MigrateIfNeeded()
	require.NoError(t, err)
	assert.True(t, migrated)

	ids, err := s.TrustedDeviceIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{peerID}, ids)

	loaded, err := s.LoadPeerCertificate(peerID)
	require.NoError(t, err)
	assert.Equal(t, peer.Fingerprint, loaded.Fingerprint)

	fp, err := s.TrustedFingerprint(peerID)
	require.NoError(t, err)
	assert.Equal(t, peer.Fingerprint, fp)

	identity, err := s.GetOrCreateLocalIdentity("")
	require.NoError(t, err)
	assert.Equal(t, local.Fingerprint, identity.Fingerprint)

	// 旧记录已删除
	has, err := eng.Has([]byte("legacy/peer/" + peerID))
	require.NoError(t, err)
	assert.False(t, has)

	migrated, err = s.MigrateIfNeeded()
	require.NoError(t, err)
	assert.False(t, migrated)
}

func TestMigrateIfNeeded_NoLegacyData(t *testing.T) {
	eng := newEngine(t)
	s := newStore(t, eng, newMockClock())

	migrated, err := s.MigrateIfNeeded()
	require.NoError(t, err)
	assert.False(t, migrated)

	has, err := eng.Has([]byte("c/meta/migrated"))
	require.NoError(t, err)
	assert.True(t, has)
}

// failingEngine 对指定前缀的写入返回错误
type failingEngine struct {
	interfaces.Engine
	failPrefix []byte
}

var errDiskFull = errors.New("disk full")

func (f *failingEngine) Put(key, value []byte) error {
	if bytes.HasPrefix(key, f.failPrefix) {
		return errDiskFull
	}
	return f.Engine.Put(key, value)
}

func TestMigrateIfNeeded_StorageError(t *testing.T) {
	clk := newMockClock()
	eng := newEngine(t)

	peer, err := Generate(peerID, clk.Now())
	require.NoError(t, err)
	putLegacy(t, eng, "peer/"+peerID, peer.Raw)

	s := newStore(t, &failingEngine{Engine: eng, failPrefix: []byte("c/peer/")}, clk)

	migrated, err := s.MigrateIfNeeded()
	assert.False(t, migrated)
	assert.ErrorIs(t, err, types.ErrStorage)

	flag, err := eng.Has([]byte("c/meta/migrated"))
	require.NoError(t, err)
	assert.False(t, flag)

	legacy, err := eng.Has([]byte("legacy/peer/" + peerID))
	require.NoError(t, err)
	assert.True(t, legacy)

	// 存储恢复后重试成功
	s = newStore(t, eng, clk)
	migrated, err = s.MigrateIfNeeded()
	require.NoError(t, err)
	assert.True(t, migrated)
}
