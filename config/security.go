package config

import (
	"fmt"
	"path/filepath"
)

// SecurityConfig 证书存储安全配置
type SecurityConfig struct {
	// Passphrase 存储加密口令；为空时使用随机密钥文件
	Passphrase string `json:"passphrase,omitempty"`

	// KeyFile 随机密钥文件路径，为空时位于 DataDir 下
	KeyFile string `json:"key_file,omitempty"`
}

// DefaultSecurityConfig 返回默认安全配置
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{}
}

// Validate 验证安全配置
func (c *SecurityConfig) Validate() error {
	if c.Passphrase != "" && len(c.Passphrase) < 8 {
		return fmt.Errorf("security: passphrase must be at least 8 characters")
	}
	return nil
}

// KeyFilePath 返回密钥文件路径
func (c *SecurityConfig) KeyFilePath(dataDir string) string {
	if c.KeyFile != "" {
		return c.KeyFile
	}
	return filepath.Join(dataDir, "storage.key")
}
