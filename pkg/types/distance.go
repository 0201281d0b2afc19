package types

import (
	"encoding/binary"
	"math/bits"
)

// Distance 计算两个字节串的前缀距离
//
// 距离 = 总位数 - 共同前缀位数。共同前缀越长距离越小，
// 相同输入返回 0，仅最低位不同返回 1，最高位不同返回总位数。
//
// 按 8 字节字比较，剩余不足一个字的部分按字节比较；
// 字与尾字节使用相同的大端位序，因此结果与逐位比较一致。
// 长度不同时只比较较短的部分，总位数也按较短长度计算。
func Distance(a, b []byte) uint64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	total := uint64(n) * 8

	i := 0
	for ; i+8 <= n; i += 8 {
		x := binary.BigEndian.Uint64(a[i:]) ^ binary.BigEndian.Uint64(b[i:])
		if x != 0 {
			return total - uint64(i*8+bits.LeadingZeros64(x))
		}
	}
	for ; i < n; i++ {
		x := a[i] ^ b[i]
		if x != 0 {
			return total - uint64(i*8+bits.LeadingZeros8(x))
		}
	}
	return 0
}
