// Package mocks 提供测试用的 Mock 实现
//
//   - MockLink: 模拟 interfaces.Link，记录发送的数据包，可手动投递入站包
//
// 行为通过 XxxFunc 字段注入：
//
//	link := mocks.NewMockLink(info, cert, fingerprint)
//	link.SendPacketFunc = func(p *packet.Packet) error {
//	    return types.ErrLinkClosed
//	}
//	link.Deliver(packet.New("kdeconnect.pair"))
package mocks
