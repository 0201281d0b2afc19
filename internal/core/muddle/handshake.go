package muddle

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-muddle/pkg/types"
)

// 握手使用的服务与通道，service 0 保留给节点自身
const (
	ServiceMuddle    uint16 = 0
	ChannelHandshake uint16 = 1
)

// helloKind 握手消息类型
type helloKind uint64

const (
	// kindAnnounce 连接建立后双方各发一次，携带监听地址
	kindAnnounce helloKind = 1
	// kindDisconnect 请求对端关闭连接
	kindDisconnect helloKind = 2
)

// disconnectGrace 发出断开请求后等待对端关闭的时间
const disconnectGrace = time.Second

// hello 握手消息
//
//	field 1 (varint)  kind
//	field 2 (bytes)   listen uri，可重复
type hello struct {
	kind   helloKind
	listen []types.URI
}

func (h hello) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.kind))
	for _, u := range h.listen {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, u.String())
	}
	return b
}

func unmarshalHello(b []byte) (hello, error) {
	var h hello
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return hello{}, fmt.Errorf("%w: %v", ErrBadHandshake, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return hello{}, fmt.Errorf("%w: %v", ErrBadHandshake, protowire.ParseError(n))
			}
			h.kind = helloKind(v)
			b = b[n:]
		case num == 2 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return hello{}, fmt.Errorf("%w: %v", ErrBadHandshake, protowire.ParseError(n))
			}
			// 无法解析的地址忽略，不影响握手
			if u, err := types.ParseURI(s); err == nil {
				h.listen = append(h.listen, u)
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return hello{}, fmt.Errorf("%w: %v", ErrBadHandshake, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if h.kind != kindAnnounce && h.kind != kindDisconnect {
		return hello{}, fmt.Errorf("%w: unknown kind %d", ErrBadHandshake, h.kind)
	}
	return h, nil
}
