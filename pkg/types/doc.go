// Package types 定义 Muddle 的基础类型
//
// 这是最底层的包，不依赖任何其他内部包。
//
// # 文件组织
//
//   - address.go   - Address（32 字节 Ed25519 公钥）及 Base58 文本形式
//   - distance.go  - Kademlia 风格的前缀距离
//   - handle.go    - 连接句柄及全局分配器
//   - uri.go       - 对端 URI（tcp://、quic://、loop://）
//   - exception.go - 可跨网络传输的错误记录
//   - errors.go    - 公共错误定义
package types
