package types

import (
	"github.com/mr-tron/base58"
)

// AddressSize 地址字节长度（Ed25519 公钥长度）
const AddressSize = 32

// Address 节点地址
//
// 节点的 Ed25519 公钥，同时用作路由键和距离度量的操作数。
// 零值表示未知地址。
type Address [AddressSize]byte

// ZeroAddress 未知地址
var ZeroAddress Address

// AddressFromBytes 从字节切片创建地址
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressSize {
		return a, ErrInvalidAddress
	}
	copy(a[:], b)
	return a, nil
}

// ParseAddress 解析 Base58 形式的地址
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return ZeroAddress, ErrInvalidAddress
	}
	b, err := base58.Decode(s)
	if err != nil {
		return ZeroAddress, ErrInvalidAddress
	}
	return AddressFromBytes(b)
}

// String 返回 Base58 形式
func (a Address) String() string {
	if a.IsZero() {
		return ""
	}
	return base58.Encode(a[:])
}

// ShortString 返回 Base58 前 8 个字符，用于日志
func (a Address) ShortString() string {
	s := a.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// Bytes 返回地址字节
func (a Address) Bytes() []byte {
	return a[:]
}

// IsZero 是否为未知地址
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// DistanceTo 返回到另一个地址的距离
func (a Address) DistanceTo(b Address) uint64 {
	return Distance(a[:], b[:])
}

// MarshalText 实现 encoding.TextMarshaler
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (a *Address) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*a = ZeroAddress
		return nil
	}
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
