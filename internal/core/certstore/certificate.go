package certstore

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/minio/sha256-simd"

	"github.com/dep2p/go-lanconnect/pkg/types"
)

// 证书有效期：从生成时刻前一年到十年后
const (
	validityBackdate = 365 * 24 * time.Hour
	validityDuration = 10 * 365 * 24 * time.Hour
)

// Certificate 设备证书
//
// PrivateKey 只在本机身份上存在。
type Certificate struct {
	DeviceID    string
	Raw         []byte
	PrivateKey  []byte
	Fingerprint string
	NotBefore   time.Time
	NotAfter    time.Time

	leaf *x509.Certificate
}

// Fingerprint 计算 DER 的 SHA-256 十六进制指纹
func Fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}

// DisplayFingerprint 返回冒号分隔的大写指纹，用于界面比对
func DisplayFingerprint(fp string) string {
	fp = strings.ToUpper(fp)
	var b strings.Builder
	for i := 0; i < len(fp); i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		end := i + 2
		if end > len(fp) {
			end = len(fp)
		}
		b.WriteString(fp[i:end])
	}
	return b.String()
}

// ParseCertificate 解析 DER 证书
func ParseCertificate(der []byte) (*Certificate, error) {
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parse: %v", types.ErrCertificateInvalid, err)
	}
	return fromLeaf(leaf), nil
}

// FromX509 由已解析的 x509 证书构造
func FromX509(leaf *x509.Certificate) *Certificate {
	return fromLeaf(leaf)
}

func fromLeaf(leaf *x509.Certificate) *Certificate {
	return &Certificate{
		DeviceID:    leaf.Subject.CommonName,
		Raw:         leaf.Raw,
		Fingerprint: Fingerprint(leaf.Raw),
		NotBefore:   leaf.NotBefore,
		NotAfter:    leaf.NotAfter,
		leaf:        leaf,
	}
}

// Generate 生成自签名 ECDSA P-256 证书，CN 为设备 ID
func Generate(deviceID string, now time.Time) (*Certificate, error) {
	if !types.IsValidDeviceID(deviceID) {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidDeviceID, deviceID)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 127))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:         deviceID,
			Organization:       []string{"KDE"},
			OrganizationalUnit: []string{"Kde connect"},
		},
		NotBefore:             now.Add(-validityBackdate),
		NotAfter:              now.Add(validityDuration),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}

	cert, err := ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	cert.PrivateKey = keyDER
	return cert, nil
}

// X509 返回解析后的证书
func (c *Certificate) X509() *x509.Certificate {
	return c.leaf
}

// Validate 检查证书在 now 时刻是否处于有效期内
func (c *Certificate) Validate(now time.Time) error {
	if now.Before(c.NotBefore) {
		return fmt.Errorf("%w: %s not valid before %s", types.ErrCertificateInvalid, c.DeviceID, c.NotBefore.Format(time.RFC3339))
	}
	if now.After(c.NotAfter) {
		return fmt.Errorf("%w: %s expired at %s", types.ErrCertificateInvalid, c.DeviceID, c.NotAfter.Format(time.RFC3339))
	}
	return nil
}

// TLSCertificate 构造 tls.Certificate（需要私钥）
func (c *Certificate) TLSCertificate() (tls.Certificate, error) {
	if len(c.PrivateKey) == 0 {
		return tls.Certificate{}, fmt.Errorf("%w: %s has no private key", types.ErrCertificateInvalid, c.DeviceID)
	}
	key, err := x509.ParsePKCS8PrivateKey(c.PrivateKey)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: parse key: %v", types.ErrCertificateInvalid, err)
	}
	return tls.Certificate{
		Certificate: [][]byte{c.Raw},
		PrivateKey:  key,
		Leaf:        c.leaf,
	}, nil
}

// matchesKey 检查私钥与证书公钥是否匹配
func (c *Certificate) matchesKey() bool {
	key, err := x509.ParsePKCS8PrivateKey(c.PrivateKey)
	if err != nil {
		return false
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return false
	}
	pub, ok := signer.Public().(interface{ Equal(x crypto.PublicKey) bool })
	return ok && pub.Equal(c.leaf.PublicKey)
}
