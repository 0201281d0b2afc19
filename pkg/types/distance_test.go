package types

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

// naiveDistance 逐位比较，作为参照实现
func naiveDistance(a, b []byte) uint64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	total := uint64(n * 8)
	for i := 0; i < n*8; i++ {
		abit := a[i/8] >> (7 - i%8) & 1
		bbit := b[i/8] >> (7 - i%8) & 1
		if abit != bbit {
			return total - uint64(i)
		}
	}
	return 0
}

func TestDistance(t *testing.T) {
	zero := make([]byte, 32)
	low := make([]byte, 32)
	low[31] = 0x01
	high := make([]byte, 32)
	high[0] = 0x80
	second := make([]byte, 32)
	second[8] = 0x40

	tests := []struct {
		name string
		a, b []byte
		want uint64
	}{
		{"相同输入", zero, zero, 0},
		{"最低位不同", zero, low, 1},
		{"最高位不同", zero, high, 256},
		{"第二个字", zero, second, 256 - 65},
		{"尾部字节", []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 0x10}, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 0x18}, 4},
		{"空输入", nil, nil, 0},
		{"长度不同按较短计算", []byte{0xFF}, []byte{0xFF, 0x00}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Distance(tt.a, tt.b))
			assert.Equal(t, tt.want, Distance(tt.b, tt.a), "对称")
		})
	}
}

func TestDistance_LowBitCloserThanHighBit(t *testing.T) {
	var x, lowFlip, highFlip Address
	for i := range x {
		x[i] = byte(i * 7)
	}
	lowFlip, highFlip = x, x
	lowFlip[AddressSize-1] ^= 0x01
	highFlip[0] ^= 0x80

	assert.Less(t, x.DistanceTo(lowFlip), x.DistanceTo(highFlip))
}

func TestDistance_MatchesBitwise(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		n := r.Intn(40)
		a := make([]byte, n)
		r.Read(a)
		b := bytes.Clone(a)
		if n > 0 {
			// 随机翻转一位
			pos := r.Intn(n * 8)
			b[pos/8] ^= 0x80 >> (pos % 8)
		}
		assert.Equal(t, naiveDistance(a, b), Distance(a, b), "a=%x b=%x", a, b)
	}
}

func BenchmarkDistance(b *testing.B) {
	var x, y Address
	y[AddressSize-1] = 1
	for i := 0; i < b.N; i++ {
		_ = x.DistanceTo(y)
	}
}
