package certstore

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-lanconnect/internal/core/storage/engine"
	"github.com/dep2p/go-lanconnect/internal/core/storage/kv"
	"github.com/dep2p/go-lanconnect/internal/util/logger"
	"github.com/dep2p/go-lanconnect/pkg/interfaces"
	"github.com/dep2p/go-lanconnect/pkg/types"
)

var log = logger.Logger("certstore")

// 键前缀
var (
	storePrefix  = []byte("c/")
	legacyPrefix = []byte("legacy/")
)

// 记录键（相对 storePrefix）
const (
	keyLocalCert = "local/cert"
	keyLocalKey  = "local/key"
	keySalt      = "meta/salt"
	keyCheck     = "meta/check"
	keyMigrated  = "meta/migrated"

	peerPrefix  = "peer/"
	infoPrefix  = "info/"
	trustPrefix = "trust/"
)

const checkValue = "lanconnect-certstore"

// Options 证书存储选项
type Options struct {
	// Passphrase 存储口令；为空时使用 Key 或 KeyFile
	Passphrase string

	// Key 直接指定 32 字节密钥
	Key []byte

	// KeyFile 随机密钥文件路径
	KeyFile string

	// Clock 时钟，nil 使用系统时钟
	Clock clock.Clock
}

// Store 证书存储
type Store struct {
	kv     *kv.Store // 明文：盐值、迁移标志
	sealed *kv.Store // 密封：本机身份、密钥校验记录
	peers  *kv.Store
	trust  *kv.Store
	infos  *kv.Store
	legacy *kv.Store
	sealer *sealer
	clock  clock.Clock

	mu sync.Mutex
}

// trustRecord 信任记录
type trustRecord struct {
	Fingerprint string `json:"fingerprint"`
	TrustedAt   int64  `json:"trustedAt"`
}

// infoRecord 记住的设备描述
type infoRecord struct {
	Name            string   `json:"name"`
	Type            string   `json:"type"`
	ProtocolVersion int      `json:"protocolVersion,omitempty"`
	Incoming        []string `json:"incoming,omitempty"`
	Outgoing        []string `json:"outgoing,omitempty"`
}

// New 打开证书存储
//
// 口令错误时返回 ErrStorage 包装的 ErrDecryptionFailed。
func New(eng interfaces.Engine, opts Options) (*Store, error) {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	s := &Store{
		kv:     kv.New(eng, storePrefix),
		legacy: kv.New(eng, legacyPrefix),
		clock:  clk,
	}

	key, err := s.resolveKey(opts)
	if err != nil {
		return nil, err
	}
	if s.sealer, err = newSealer(key); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	s.sealed = s.kv.WithCodec(s.sealer)
	s.peers = s.sealed.Sub([]byte(peerPrefix))
	s.trust = s.sealed.Sub([]byte(trustPrefix))
	s.infos = s.sealed.Sub([]byte(infoPrefix))

	if err := s.checkKey(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) resolveKey(opts Options) ([]byte, error) {
	switch {
	case opts.Passphrase != "":
		salt, err := s.kv.Get([]byte(keySalt))
		if engine.IsNotFound(err) {
			if salt, err = newSalt(); err != nil {
				return nil, err
			}
			err = s.kv.Put([]byte(keySalt), salt)
		}
		if err != nil {
			return nil, storageErr("salt", err)
		}
		return deriveKey(opts.Passphrase, salt), nil
	case len(opts.Key) > 0:
		return opts.Key, nil
	case opts.KeyFile != "":
		key, err := loadOrCreateKeyFile(opts.KeyFile)
		if err != nil {
			return nil, storageErr("key file", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("%w: no storage key configured", types.ErrStorage)
	}
}

// checkKey 校验密钥能够解开已有数据
func (s *Store) checkKey() error {
	value, err := s.sealed.GetString([]byte(keyCheck))
	switch {
	case engine.IsNotFound(err):
		if err := s.sealed.PutString([]byte(keyCheck), checkValue); err != nil {
			return recordErr(s.sealed, keyCheck, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("%w: wrong storage key: %w", types.ErrStorage, err)
	case value != checkValue:
		return fmt.Errorf("%w: unexpected key check record", types.ErrStorage)
	}
	return nil
}

// ============================================================================
//                              错误映射
// ============================================================================

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", types.ErrStorage, op, err)
}

// recordErr 记录不存在映射为 ErrNotFound，其余为 ErrStorage
func recordErr(st *kv.Store, key string, err error) error {
	name := string(st.Prefix()) + key
	if engine.IsNotFound(err) {
		return fmt.Errorf("%w: %s", types.ErrNotFound, name)
	}
	return fmt.Errorf("%w: %s: %w", types.ErrStorage, name, err)
}

// ============================================================================
//                              本机身份
// ============================================================================

// GetOrCreateLocalIdentity 返回本机身份证书
//
// deviceID 为空时沿用已存储身份，没有则生成新 ID。已存储身份的 CN
// 与 deviceID 不一致、过期或损坏时重新生成。
func (s *Store) GetOrCreateLocalIdentity(deviceID string) (*Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if deviceID != "" && !types.IsValidDeviceID(deviceID) {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidDeviceID, deviceID)
	}

	cert, err := s.loadLocal()
	switch {
	case err == nil:
		if deviceID == "" || cert.DeviceID == deviceID {
			if verr := s.Validate(cert); verr == nil {
				return cert, nil
			} else {
				log.Warn("local certificate invalid, regenerating", "deviceId", cert.DeviceID, "err", verr)
			}
		} else {
			log.Info("configured device id changed, regenerating identity",
				"old", cert.DeviceID, "new", deviceID)
		}
		if deviceID == "" {
			deviceID = cert.DeviceID
		}
	case errors.Is(err, types.ErrNotFound):
	case errors.Is(err, types.ErrCertificateInvalid):
		log.Warn("stored local certificate unreadable, regenerating", "err", err)
	default:
		return nil, err
	}

	if deviceID == "" {
		deviceID = types.NewDeviceID()
	}
	cert, err = Generate(deviceID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.storeLocal(cert); err != nil {
		return nil, err
	}
	log.Info("generated local identity", "deviceId", deviceID, "fingerprint", logger.TruncateID(cert.Fingerprint, 16))
	return cert, nil
}

func (s *Store) loadLocal() (*Certificate, error) {
	der, err := s.sealed.Get([]byte(keyLocalCert))
	if err != nil {
		return nil, recordErr(s.sealed, keyLocalCert, err)
	}
	keyDER, err := s.sealed.Get([]byte(keyLocalKey))
	if err != nil {
		return nil, recordErr(s.sealed, keyLocalKey, err)
	}
	cert, err := ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	cert.PrivateKey = keyDER
	if !cert.matchesKey() {
		return nil, fmt.Errorf("%w: local key does not match certificate", types.ErrCertificateInvalid)
	}
	return cert, nil
}

func (s *Store) storeLocal(cert *Certificate) error {
	if err := s.sealed.Put([]byte(keyLocalKey), cert.PrivateKey); err != nil {
		return recordErr(s.sealed, keyLocalKey, err)
	}
	if err := s.sealed.Put([]byte(keyLocalCert), cert.Raw); err != nil {
		return recordErr(s.sealed, keyLocalCert, err)
	}
	return nil
}

// Validate 以存储时钟检查证书有效期
func (s *Store) Validate(cert *Certificate) error {
	return cert.Validate(s.clock.Now())
}

// ============================================================================
//                              对端证书与信任列表
// ============================================================================

// StorePeerCertificate 保存对端证书并加入信任列表
func (s *Store) StorePeerCertificate(deviceID string, cert *Certificate) error {
	if !types.IsValidDeviceID(deviceID) {
		return fmt.Errorf("%w: %q", types.ErrInvalidDeviceID, deviceID)
	}
	if cert == nil || len(cert.Raw) == 0 {
		return fmt.Errorf("%w: empty certificate for %s", types.ErrCertificateInvalid, deviceID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trustPeer(deviceID, cert)
}

// trustPeer 写入对端证书与信任记录
func (s *Store) trustPeer(deviceID string, cert *Certificate) error {
	if err := s.peers.Put([]byte(deviceID), cert.Raw); err != nil {
		return recordErr(s.peers, deviceID, err)
	}
	rec := trustRecord{
		Fingerprint: cert.Fingerprint,
		TrustedAt:   s.clock.Now().UnixMilli(),
	}
	if err := s.trust.PutJSON([]byte(deviceID), rec); err != nil {
		return recordErr(s.trust, deviceID, err)
	}
	return nil
}

// LoadPeerCertificate 读取并校验对端证书
//
// 不存在返回 ErrNotFound；过期或损坏返回 ErrCertificateInvalid。
func (s *Store) LoadPeerCertificate(deviceID string) (*Certificate, error) {
	der, err := s.peers.Get([]byte(deviceID))
	if err != nil {
		return nil, recordErr(s.peers, deviceID, err)
	}
	cert, err := ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(cert); err != nil {
		return nil, err
	}
	return cert, nil
}

// HasPeerCertificate 检查是否存有对端证书
func (s *Store) HasPeerCertificate(deviceID string) (bool, error) {
	ok, err := s.peers.Has([]byte(deviceID))
	if err != nil {
		return false, recordErr(s.peers, deviceID, err)
	}
	return ok, nil
}

// DeletePeerCertificate 删除对端证书、信任记录与设备描述
func (s *Store) DeletePeerCertificate(deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range []*kv.Store{s.trust, s.peers, s.infos} {
		if err := st.Delete([]byte(deviceID)); err != nil {
			return recordErr(st, deviceID, err)
		}
	}
	return nil
}

// IsTrusted 检查设备是否在信任列表中
func (s *Store) IsTrusted(deviceID string) (bool, error) {
	ok, err := s.trust.Has([]byte(deviceID))
	if err != nil {
		return false, recordErr(s.trust, deviceID, err)
	}
	return ok, nil
}

// TrustedFingerprint 返回信任记录中的指纹
func (s *Store) TrustedFingerprint(deviceID string) (string, error) {
	var rec trustRecord
	if err := s.trust.GetJSON([]byte(deviceID), &rec); err != nil {
		return "", recordErr(s.trust, deviceID, err)
	}
	return rec.Fingerprint, nil
}

// TrustedDeviceIDs 返回信任列表（按 ID 排序）
func (s *Store) TrustedDeviceIDs() ([]string, error) {
	keys, err := s.trust.Keys(nil)
	if err != nil {
		return nil, storageErr("trust list", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, string(k))
	}
	sort.Strings(ids)
	return ids, nil
}

// ============================================================================
//                              设备描述
// ============================================================================

// StoreDeviceInfo 记住设备名称与类型
func (s *Store) StoreDeviceInfo(info types.DeviceInfo) error {
	rec := infoRecord{
		Name:            info.Name,
		Type:            info.Type.String(),
		ProtocolVersion: info.ProtocolVersion,
		Incoming:        info.IncomingCapabilities,
		Outgoing:        info.OutgoingCapabilities,
	}
	if err := s.infos.PutJSON([]byte(info.ID), rec); err != nil {
		return recordErr(s.infos, info.ID, err)
	}
	return nil
}

// LoadDeviceInfo 读取记住的设备描述
func (s *Store) LoadDeviceInfo(deviceID string) (types.DeviceInfo, error) {
	var rec infoRecord
	if err := s.infos.GetJSON([]byte(deviceID), &rec); err != nil {
		return types.DeviceInfo{}, recordErr(s.infos, deviceID, err)
	}
	return types.DeviceInfo{
		ID:                   deviceID,
		Name:                 rec.Name,
		Type:                 types.ParseDeviceType(rec.Type),
		ProtocolVersion:      rec.ProtocolVersion,
		IncomingCapabilities: rec.Incoming,
		OutgoingCapabilities: rec.Outgoing,
	}, nil
}
