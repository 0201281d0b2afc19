package router

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/spaolacci/murmur3"

	"github.com/dep2p/go-muddle/internal/core/packet"
	"github.com/dep2p/go-muddle/pkg/types"
)

// echoCache 记录见过的广播，过期由 LRU 自行清理
type echoCache struct {
	mu  sync.Mutex
	lru *expirable.LRU[uint64, struct{}]
}

func newEchoCache(size int, ttl time.Duration) *echoCache {
	return &echoCache{lru: expirable.NewLRU[uint64, struct{}](size, nil, ttl)}
}

// echoID murmur3(sender || service || channel || counter)
func echoID(p *packet.Packet) uint64 {
	var buf [types.AddressSize + 6]byte
	copy(buf[:], p.Sender[:])
	binary.BigEndian.PutUint16(buf[types.AddressSize:], p.Service)
	binary.BigEndian.PutUint16(buf[types.AddressSize+2:], p.Channel)
	binary.BigEndian.PutUint16(buf[types.AddressSize+4:], p.Counter)
	return murmur3.Sum64(buf[:])
}

// seen 已见过返回 true，否则记录并返回 false
func (c *echoCache) seen(p *packet.Packet) bool {
	id := echoID(p)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lru.Contains(id) {
		return true
	}
	c.lru.Add(id, struct{}{})
	return false
}

func (c *echoCache) len() int {
	return c.lru.Len()
}
