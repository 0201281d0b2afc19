package connection

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic 帧头魔数
const Magic uint64 = 0xFE7C80A1FE7C80A1

// FrameHeaderSize 帧头长度: 8 字节魔数 + 8 字节负载长度，小端序
const FrameHeaderSize = 16

// PutFrameHeader 写入帧头
func PutFrameHeader(buf []byte, length uint64) {
	binary.LittleEndian.PutUint64(buf[0:8], Magic)
	binary.LittleEndian.PutUint64(buf[8:16], length)
}

// ParseFrameHeader 解析帧头，魔数不符返回 ErrBadMagic
func ParseFrameHeader(buf []byte) (uint64, error) {
	if magic := binary.LittleEndian.Uint64(buf[0:8]); magic != Magic {
		return 0, fmt.Errorf("%w: %#x", ErrBadMagic, magic)
	}
	return binary.LittleEndian.Uint64(buf[8:16]), nil
}

// WriteFrame 写一帧
func WriteFrame(w io.Writer, payload []byte) error {
	var hdr [FrameHeaderSize]byte
	PutFrameHeader(hdr[:], uint64(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame 读一帧
//
// 魔数不符或长度超过 maxSize 时返回错误，调用方应关闭连接。
func ReadFrame(r io.Reader, maxSize uint64) ([]byte, error) {
	var hdr [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	length, err := ParseFrameHeader(hdr[:])
	if err != nil {
		return nil, err
	}
	if length > maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, maxSize)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
