// Package lan 实现局域网链路提供者
//
// 发现：UDP 广播身份包（默认端口 1716）。收到对端身份后，设备 ID
// 较大的一方作为 TLS 客户端拨号对端通告的 TCP 端口，先以明文发送
// 一行身份包，再进行 TLS 握手；设备 ID 较小的一方只回一个单播身份
// 数据报，等待对端拨入。
//
// 握手后校验：
//   - 叶子证书 CN 等于通告的设备 ID
//   - 指纹等于通告的 certificateFingerprint（若通告）
//   - 已信任设备的指纹等于存储的信任指纹
//
// 任一不符即关闭连接，不产生链路。
//
// 同一设备 ID 同时只保留一条可见链路，新链路替换并关闭旧链路。
package lan
