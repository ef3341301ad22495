//go:build !unix

package lan

import "syscall"

// 非 unix 平台使用系统默认套接字选项
var (
	udpControl func(network, address string, c syscall.RawConn) error
	tcpControl func(network, address string, c syscall.RawConn) error
)
