package packet

import (
	"github.com/dep2p/go-muddle/pkg/types"
)

// Signer 对数据签名，地址即公钥
type Signer interface {
	Address() types.Address
	Sign(data []byte) []byte
}

// VerifyFunc 用地址验证签名
type VerifyFunc func(addr types.Address, data, sig []byte) bool

// signingBytes 签名覆盖的内容: stamped 位置位的头部 + 负载
//
// TTL 不参与签名，中继递减 TTL 不会使签名失效。
func signingBytes(p *Packet) []byte {
	buf := make([]byte, HeaderSize+len(p.Payload))
	putHeader(p, buf)
	buf[6] |= FlagStamped
	buf[7] = 0
	copy(buf[HeaderSize:], p.Payload)
	return buf
}

// Sign 以 signer 的身份为数据包盖章，同时把发送方设为 signer 的地址
func Sign(p *Packet, signer Signer) {
	p.Sender = signer.Address()
	p.Stamp = signer.Sign(signingBytes(p))
}

// Verify 验证签名；未签名的数据包返回 false
func Verify(p *Packet, verify VerifyFunc) bool {
	if !p.IsStamped() || len(p.Stamp) != StampSize {
		return false
	}
	return verify(p.Sender, signingBytes(p), p.Stamp)
}
