package packet

import "errors"

var (
	// ErrBufferTooSmall 目标缓冲区小于线上大小
	ErrBufferTooSmall = errors.New("buffer smaller than packet wire size")

	// ErrTruncatedHeader 字节数不足一个头部
	ErrTruncatedHeader = errors.New("truncated packet header")

	// ErrTruncatedStamp 标记了签名但签名区不完整
	ErrTruncatedStamp = errors.New("truncated packet stamp")

	// ErrInvalidStamp 签名长度不正确
	ErrInvalidStamp = errors.New("invalid packet stamp length")
)
