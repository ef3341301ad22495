package lan

import (
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/dep2p/go-lanconnect/internal/core/certstore"
	"github.com/dep2p/go-lanconnect/pkg/types"
)

// TrustSource 查询已信任设备的证书指纹
//
// 设备未被信任时返回 types.ErrNotFound。
type TrustSource interface {
	TrustedFingerprint(deviceID string) (string, error)
}

// isTLSServer 设备 ID 较小的一方作为 TLS 服务端
func isTLSServer(localID, peerID string) bool {
	return localID < peerID
}

// canonicalSession 由 ID 较大的一方拨出的 TCP 会话为规范会话
//
// 双方同时拨号时两端都只保留规范会话。
func canonicalSession(localID, peerID string, outbound bool) bool {
	if outbound {
		return localID > peerID
	}
	return peerID > localID
}

// newTLSConfig 创建 TLS 配置
//
// 证书为自签名，链校验关闭，由 verifyPeer 在握手后按设备 ID 与指纹校验。
func newTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true,
		ClientAuth:         tls.RequireAnyClientCert,
	}
}

// verifyPeer 校验握手得到的对端证书
//
// 依次检查有效期、CN、通告指纹与已信任指纹。
func verifyPeer(state tls.ConnectionState, peerID, announced string, trust TrustSource, now time.Time) (*certstore.Certificate, error) {
	if len(state.PeerCertificates) == 0 {
		return nil, fmt.Errorf("%w: no peer certificate", types.ErrCertificateInvalid)
	}
	cert := certstore.FromX509(state.PeerCertificates[0])

	if err := cert.Validate(now); err != nil {
		return nil, err
	}

	if cert.DeviceID != peerID {
		return nil, fmt.Errorf("%w: certificate CN %q does not match device id %q",
			types.ErrCertificateInvalid, cert.DeviceID, peerID)
	}
	if announced != "" && announced != cert.Fingerprint {
		return nil, fmt.Errorf("%w: fingerprint does not match announced value for %s",
			types.ErrCertificateInvalid, peerID)
	}
	if trust != nil {
		trusted, err := trust.TrustedFingerprint(peerID)
		switch {
		case err == nil:
			if trusted != cert.Fingerprint {
				return nil, fmt.Errorf("%w: fingerprint does not match trusted certificate for %s",
					types.ErrCertificateInvalid, peerID)
			}
		case errors.Is(err, types.ErrNotFound):
		default:
			return nil, err
		}
	}
	return cert, nil
}
