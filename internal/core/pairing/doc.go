// Package pairing 实现单个设备的配对状态机
//
// 状态：Unpaired（初始/终止）、Requested（本地已发出请求）、
// RequestedByPeer（对端请求，等待本地决定）、Paired。
//
// 配对包只有一个字段：
//
//	{"type": "kdeconnect.pair", "body": {"pair": true|false}}
//
// pair=true 表示请求或接受，pair=false 表示拒绝、取消或解除配对。
//
// 进入 Paired 前必须把当前链路的 TLS 证书写入信任存储，并确认存储的指纹
// 与所有活动链路的指纹一致；信任只来自已认证的通道，不来自包内容。
package pairing
