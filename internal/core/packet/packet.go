// Package packet 定义 Muddle 数据包信封
//
// 线上格式（整数为大端序）:
//
//	0      2      4      6     7     8              40             72
//	+------+------+------+-----+-----+--------------+--------------+---------+-------+
//	| svc  | chan | ctr  |flags| ttl |    sender    |    target    | payload | stamp |
//	+------+------+------+-----+-----+--------------+--------------+---------+-------+
//
// 负载长度由外层流分帧隐含，头部不记录长度；签名（64 字节）仅在 stamped 位置位时存在。
package packet

import (
	"bytes"

	"github.com/dep2p/go-muddle/pkg/types"
)

// 尺寸
const (
	// HeaderSize 固定头部长度
	HeaderSize = 8 + 2*types.AddressSize
	// StampSize 签名长度
	StampSize = 64
	// DefaultTTL 新数据包默认 TTL
	DefaultTTL uint8 = 40
)

// 标志位
const (
	FlagStamped   uint8 = 1 << 0
	FlagBroadcast uint8 = 1 << 1
	FlagExchange  uint8 = 1 << 2
	// FlagDirect 只在相邻节点之间有效的握手消息，不转发
	FlagDirect uint8 = 1 << 3
)

// Packet 数据包
type Packet struct {
	Sender types.Address
	Target types.Address

	Service uint16
	Channel uint16
	Counter uint16

	Broadcast bool
	Exchange  bool
	Direct    bool

	TTL uint8

	Payload []byte

	// Stamp 签名，非空时 stamped 位置位
	Stamp []byte
}

// IsStamped 是否携带签名
func (p *Packet) IsStamped() bool {
	return len(p.Stamp) > 0
}

// Flags 返回头部标志字节
func (p *Packet) Flags() uint8 {
	var f uint8
	if p.IsStamped() {
		f |= FlagStamped
	}
	if p.Broadcast {
		f |= FlagBroadcast
	}
	if p.Exchange {
		f |= FlagExchange
	}
	if p.Direct {
		f |= FlagDirect
	}
	return f
}

// WireSize 线上字节数
func (p *Packet) WireSize() int {
	n := HeaderSize + len(p.Payload)
	if p.IsStamped() {
		n += StampSize
	}
	return n
}

// Clone 深拷贝
func (p *Packet) Clone() *Packet {
	c := *p
	c.Payload = bytes.Clone(p.Payload)
	c.Stamp = bytes.Clone(p.Stamp)
	return &c
}

// Equal 逐字段比较
func (p *Packet) Equal(o *Packet) bool {
	return p.Sender == o.Sender &&
		p.Target == o.Target &&
		p.Service == o.Service &&
		p.Channel == o.Channel &&
		p.Counter == o.Counter &&
		p.Flags() == o.Flags() &&
		p.TTL == o.TTL &&
		bytes.Equal(p.Payload, o.Payload) &&
		bytes.Equal(p.Stamp, o.Stamp)
}
