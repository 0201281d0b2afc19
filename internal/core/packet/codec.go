package packet

import (
	"encoding/binary"
	"fmt"
)

// Encode 写入 buf，返回写入字节数
//
// buf 小于 WireSize 时返回 ErrBufferTooSmall，不写入任何内容。
func Encode(p *Packet, buf []byte) (int, error) {
	if p.IsStamped() && len(p.Stamp) != StampSize {
		return 0, fmt.Errorf("%w: %d", ErrInvalidStamp, len(p.Stamp))
	}
	size := p.WireSize()
	if len(buf) < size {
		return 0, fmt.Errorf("%w: have %d, need %d", ErrBufferTooSmall, len(buf), size)
	}

	n := putHeader(p, buf)
	n += copy(buf[n:], p.Payload)
	if p.IsStamped() {
		n += copy(buf[n:], p.Stamp)
	}
	return n, nil
}

// Marshal 编码到新分配的切片
func Marshal(p *Packet) ([]byte, error) {
	buf := make([]byte, p.WireSize())
	if _, err := Encode(p, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Decode 从完整的帧解析数据包
//
// 负载与签名拷贝到新切片，调用方可以复用 buf。
func Decode(buf []byte) (*Packet, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncatedHeader, len(buf))
	}

	p := &Packet{
		Service: binary.BigEndian.Uint16(buf[0:2]),
		Channel: binary.BigEndian.Uint16(buf[2:4]),
		Counter: binary.BigEndian.Uint16(buf[4:6]),
		TTL:     buf[7],
	}
	flags := buf[6]
	p.Broadcast = flags&FlagBroadcast != 0
	p.Exchange = flags&FlagExchange != 0
	p.Direct = flags&FlagDirect != 0
	copy(p.Sender[:], buf[8:8+len(p.Sender)])
	copy(p.Target[:], buf[8+len(p.Sender):HeaderSize])

	body := buf[HeaderSize:]
	if flags&FlagStamped != 0 {
		if len(body) < StampSize {
			return nil, fmt.Errorf("%w: %d bytes after header", ErrTruncatedStamp, len(body))
		}
		split := len(body) - StampSize
		p.Stamp = append([]byte(nil), body[split:]...)
		body = body[:split]
	}
	p.Payload = append([]byte{}, body...)
	return p, nil
}

func putHeader(p *Packet, buf []byte) int {
	binary.BigEndian.PutUint16(buf[0:2], p.Service)
	binary.BigEndian.PutUint16(buf[2:4], p.Channel)
	binary.BigEndian.PutUint16(buf[4:6], p.Counter)
	buf[6] = p.Flags()
	buf[7] = p.TTL
	n := 8
	n += copy(buf[n:], p.Sender[:])
	n += copy(buf[n:], p.Target[:])
	return n
}
