package certstore

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/dep2p/go-lanconnect/internal/core/storage/engine"
	"github.com/dep2p/go-lanconnect/pkg/types"
)

// 旧版明文记录键（相对 legacyPrefix），值为 base64 编码的 DER
const (
	legacyPeerPrefix = "peer/"
	legacyLocalCert  = "local/cert"
	legacyLocalKey   = "local/key"
)

// MigrateIfNeeded 将旧版明文记录迁移到密封存储
//
// 已迁移时返回 false。存在旧版记录并完成迁移时返回 true；没有旧版
// 记录时只写入完成标志并返回 false。无法解码或已失效的记录跳过并记录
// 日志。任何存储错误都会中止迁移：不写完成标志，不删除旧记录。
func (s *Store) MigrateIfNeeded() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	done, err := s.kv.Has([]byte(keyMigrated))
	if err != nil {
		return false, storageErr(keyMigrated, err)
	}
	if done {
		return false, nil
	}

	type legacyPeer struct {
		id    string
		value []byte
	}
	var peers []legacyPeer
	err = s.legacy.PrefixScan([]byte(legacyPeerPrefix), func(key, value []byte) bool {
		peers = append(peers, legacyPeer{
			id:    strings.TrimPrefix(string(key), legacyPeerPrefix),
			value: value,
		})
		return true
	})
	if err != nil {
		return false, storageErr("legacy scan", err)
	}

	found := len(peers)
	migrated := 0
	for _, p := range peers {
		ok, err := s.migratePeer(p.id, p.value)
		if err != nil {
			return false, err
		}
		if ok {
			migrated++
		}
	}

	localFound, err := s.migrateLocal()
	if err != nil {
		return false, err
	}
	if localFound {
		found++
	}

	if err := s.kv.PutString([]byte(keyMigrated), "1"); err != nil {
		return false, storageErr(keyMigrated, err)
	}

	if found == 0 {
		return false, nil
	}

	// 完成标志已写入，旧记录残留不会导致重复迁移
	if err := s.legacy.DeletePrefix(nil); err != nil {
		log.Warn("deleting legacy records failed", "err", err)
	}
	log.Info("migrated legacy certificate store", "records", found, "peers", migrated)
	return true, nil
}

// migratePeer 迁移一条对端证书；记录无效时返回 false, nil
func (s *Store) migratePeer(deviceID string, value []byte) (bool, error) {
	if !types.IsValidDeviceID(deviceID) {
		log.Warn("skipping legacy peer with invalid id", "deviceId", deviceID)
		return false, nil
	}
	cert, err := decodeLegacyCert(value)
	if err != nil {
		log.Warn("skipping unreadable legacy peer certificate", "deviceId", deviceID, "err", err)
		return false, nil
	}
	if err := s.Validate(cert); err != nil {
		log.Warn("skipping invalid legacy peer certificate", "deviceId", deviceID, "err", err)
		return false, nil
	}

	if err := s.trustPeer(deviceID, cert); err != nil {
		return false, err
	}
	return true, nil
}

// migrateLocal 迁移本机身份；密封存储中已有身份时不覆盖
func (s *Store) migrateLocal() (bool, error) {
	certVal, err := s.legacy.Get([]byte(legacyLocalCert))
	if engine.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("legacy local cert", err)
	}
	keyVal, err := s.legacy.Get([]byte(legacyLocalKey))
	if engine.IsNotFound(err) {
		log.Warn("legacy local certificate has no key, skipping")
		return true, nil
	}
	if err != nil {
		return false, storageErr("legacy local key", err)
	}

	exists, err := s.sealed.Has([]byte(keyLocalCert))
	if err != nil {
		return false, storageErr(keyLocalCert, err)
	}
	if exists {
		return true, nil
	}

	cert, err := decodeLegacyCert(certVal)
	if err != nil {
		log.Warn("skipping unreadable legacy local certificate", "err", err)
		return true, nil
	}
	keyDER, err := base64.StdEncoding.DecodeString(string(keyVal))
	if err != nil {
		log.Warn("skipping unreadable legacy local key", "err", err)
		return true, nil
	}
	cert.PrivateKey = keyDER
	if !cert.matchesKey() {
		log.Warn("skipping legacy local identity: key does not match certificate")
		return true, nil
	}
	if err := s.Validate(cert); err != nil {
		log.Warn("skipping invalid legacy local certificate", "err", err)
		return true, nil
	}
	return true, s.storeLocal(cert)
}

func decodeLegacyCert(value []byte) (*Certificate, error) {
	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(value)))
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", types.ErrCertificateInvalid, err)
	}
	return ParseCertificate(der)
}
