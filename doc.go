// Package muddle 提供点对点消息路由与基于 Promise 的 RPC
//
// 每个节点以 Ed25519 公钥作为地址。节点之间维持有序的分帧连接，
// 数据包按目标地址直达，或经由 Kademlia 距离更近的邻居转发。
// 在路由之上，交换分发器把回复与请求关联起来并解决 Promise，
// RPC 客户端/服务端按 (协议号, 函数号) 寻址调用。
//
// # 快速开始
//
//	node, err := muddle.Start(ctx,
//	    muddle.WithListen("tcp://0.0.0.0:8100"),
//	    muddle.WithPeers("tcp://10.0.0.2:8100"),
//	    muddle.WithKeyFile("node.key"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Close()
//
//	// 注册 RPC 协议
//	p := rpc.NewProtocol()
//	p.Expose(1, handler)
//	node.Server().Add(42, p)
//
//	// 调用远端
//	result := node.Call(ctx, peer, 42, 1, rpc.Text("hello"))
//	if result.Wait(5 * time.Second) {
//	    fmt.Println(result.Value())
//	}
//
// # 层次结构
//
//	Node (本包)          Fx 装配、生命周期、对外 API
//	rpc / ping           调用编解码、协议注册、诊断协议
//	muddle 引擎          监听、拨号、握手、周期维护
//	router               路由表、中继、广播、订阅
//	dispatcher           交换关联、超时、连接失败扇出
//	peerlist             持久对端状态机与退避
//	connection           分帧、TCP/QUIC/回环连接、连接注册表
//	packet               数据包格式与签名
//
// # 传输
//
// 监听和对端地址使用 URI：tcp://host:port、quic://host:port，
// 以及 WithNetwork 接入的进程内网络 loop://name。
package muddle
