// Package identity 管理节点的 Ed25519 身份
//
// 节点地址就是 Ed25519 公钥；私钥用于给发出的数据包盖章（签名）。
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/dep2p/go-muddle/pkg/types"
)

// SignatureSize 签名长度
const SignatureSize = ed25519.SignatureSize

// Identity 节点身份
type Identity struct {
	key     ed25519.PrivateKey
	address types.Address
}

// Generate 生成新身份
func Generate() (*Identity, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("生成密钥失败: %w", err)
	}
	return FromPrivateKey(priv)
}

// FromPrivateKey 从私钥创建身份
func FromPrivateKey(key ed25519.PrivateKey) (*Identity, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKeySize
	}
	addr, err := types.AddressFromBytes(key.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	return &Identity{key: key, address: addr}, nil
}

// FromSeed 从 32 字节种子确定性地创建身份（用于测试）
func FromSeed(seed []byte) (*Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, ErrInvalidKeySize
	}
	return FromPrivateKey(ed25519.NewKeyFromSeed(seed))
}

// Address 返回节点地址
func (id *Identity) Address() types.Address {
	return id.address
}

// PrivateKey 返回私钥
func (id *Identity) PrivateKey() ed25519.PrivateKey {
	return id.key
}

// Sign 签名
func (id *Identity) Sign(data []byte) []byte {
	return ed25519.Sign(id.key, data)
}

// Verify 用地址（公钥）验证签名
func Verify(addr types.Address, data, sig []byte) bool {
	if len(sig) != SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(addr[:]), data, sig)
}
