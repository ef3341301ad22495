package certstore

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Argon2id 参数
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4

	saltSize = 16
)

// ErrDecryptionFailed 密封记录无法解密（密钥错误或数据被篡改）
var ErrDecryptionFailed = errors.New("decryption failed")

// sealer 以 XChaCha20-Poly1305 密封记录
//
// 输出格式：nonce(24) || ciphertext；关联数据为记录键，
// 防止密文在键之间被挪用。
type sealer struct {
	aead cipher.AEAD
}

func newSealer(key []byte) (*sealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &sealer{aead: aead}, nil
}

func (s *sealer) seal(plaintext, ad []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plaintext, ad), nil
}

func (s *sealer) open(data, ad []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(data) < n+s.aead.Overhead() {
		return nil, ErrDecryptionFailed
	}
	plaintext, err := s.aead.Open(nil, data[:n], data[n:], ad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// Encode 实现 kv.Codec，以完整存储键为关联数据
func (s *sealer) Encode(key, value []byte) ([]byte, error) {
	return s.seal(value, key)
}

// Decode 实现 kv.Codec
func (s *sealer) Decode(key, data []byte) ([]byte, error) {
	return s.open(data, key)
}

// deriveKey 由口令与盐派生存储密钥
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argon2Time, argon2Memory, argon2Threads, chacha20poly1305.KeySize)
}

// newSalt 生成随机盐
func newSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// newRandomKey 生成随机存储密钥
func newRandomKey() ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// loadOrCreateKeyFile 读取随机密钥文件，不存在时生成
func loadOrCreateKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(data) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("key file %s: unexpected size %d", path, len(data))
		}
		return data, nil
	case !os.IsNotExist(err):
		return nil, err
	}

	key, err := newRandomKey()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	if err := atomicWriteFile(path, key, 0600); err != nil {
		return nil, err
	}
	return key, nil
}

// atomicWriteFile 原子写文件（临时文件 + rename）
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	success = true
	return nil
}
