package storage

import (
	"github.com/dep2p/go-lanconnect/internal/core/storage/engine"
)

// 重导出 engine 包的错误，方便使用方直接使用
var (
	ErrNotFound      = engine.ErrNotFound
	ErrEmptyKey      = engine.ErrEmptyKey
	ErrClosed        = engine.ErrClosed
	ErrReadOnly      = engine.ErrReadOnly
	ErrInvalidConfig = engine.ErrInvalidConfig
)

// IsNotFound 检查是否为 key not found 错误
var IsNotFound = engine.IsNotFound
