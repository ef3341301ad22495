// Package lanconnect 提供局域网设备互联核心
//
// 同一局域网内的两台设备通过 UDP 身份广播互相发现，以设备证书建立
// 信任，在双向认证的 TLS 链路上交换以换行分隔的 JSON 数据包。
//
// # 核心概念
//
//   - Node: 服务对象，持有配置、证书存储、链路提供者与设备注册表
//   - Device: 注册表中的远端设备快照（描述、配对状态、可达性）
//   - Packet: 类型化 JSON 数据包，见 pkg/packet
//
// # 快速开始
//
//	import lanconnect "github.com/dep2p/go-lanconnect"
//
//	node, err := lanconnect.New(
//	    lanconnect.WithDeviceName("workstation"),
//	    lanconnect.WithDataDir("/var/lib/lanconnect"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := node.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Close()
//
//	node.AddPairingStateListener("ui", func(id string, s types.PairState, reason string) {
//	    if s == types.PairStateRequestedByPeer {
//	        _ = node.AcceptPairing(id)
//	    }
//	})
//	node.SubscribePackets("ping", func(id string, p *packet.Packet) {
//	    fmt.Println(id, p.Type)
//	})
//
// # 组件装配
//
// 组件通过 go.uber.org/fx 装配，启动顺序：
//
//	storage → certstore → metrics → lan → registry → discovery.mdns
//
// 停止时按相反顺序执行各模块的 OnStop。
package lanconnect
