package lan

import (
	"time"

	"github.com/dep2p/go-lanconnect/config"
)

// 端口与大小限制
const (
	DiscoveryPort  = config.DefaultDiscoveryPort
	MinTCPPort     = config.DefaultTCPPortMin
	MaxTCPPort     = config.DefaultTCPPortMax
	MinPayloadPort = config.DefaultPayloadPortMin
	MaxPayloadPort = config.DefaultPayloadPortMax

	// MaxDiscoveryPacketSize 发现数据报上限
	MaxDiscoveryPacketSize = 8 * 1024

	// MaxControlPacketSize 链路上单行数据包上限
	MaxControlPacketSize = 512 * 1024
)

const (
	providerName = "lan"

	defaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 10 * time.Second
	readBufferSize          = 64 * 1024
)

// TLS 角色（指标标签）
const (
	roleClient = "client"
	roleServer = "server"
)
