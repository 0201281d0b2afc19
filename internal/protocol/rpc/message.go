package rpc

import (
	"fmt"
	"math"

	"github.com/dep2p/go-muddle/pkg/types"
)

// ReplyKind 回复类型
type ReplyKind uint64

const (
	// ReplyOK 成功，后跟结果值
	ReplyOK ReplyKind = 0
	// ReplyError 失败，后跟错误码和描述
	ReplyError ReplyKind = 1
)

// call 调用负载：exchange_id | protocol | function | args...
type call struct {
	exchangeID uint64
	protocol   uint64
	function   uint64
	args       []byte
}

func (c *call) marshal() []byte {
	return NewEncoder().
		Uint64(c.exchangeID).
		Uint64(c.protocol).
		Uint64(c.function).
		Raw(c.args).
		Encoded()
}

func unmarshalCall(data []byte) (*call, error) {
	d := NewDecoder(data)
	c := &call{}
	var err error
	if c.exchangeID, err = d.Uint64(); err != nil {
		return nil, fmt.Errorf("exchange id: %w", err)
	}
	if c.protocol, err = d.Uint64(); err != nil {
		return nil, fmt.Errorf("protocol: %w", err)
	}
	if c.function, err = d.Uint64(); err != nil {
		return nil, fmt.Errorf("function: %w", err)
	}
	c.args = d.Rest()
	return c, nil
}

// reply 回复负载：exchange_id | kind | value 或 code, message
type reply struct {
	exchangeID uint64
	kind       ReplyKind
	value      []byte
	err        *types.Exception
}

func okReply(exchangeID uint64, value []byte) *reply {
	return &reply{exchangeID: exchangeID, kind: ReplyOK, value: value}
}

func errorReply(exchangeID uint64, ex *types.Exception) *reply {
	return &reply{exchangeID: exchangeID, kind: ReplyError, err: ex}
}

func (r *reply) marshal() []byte {
	e := NewEncoder().Uint64(r.exchangeID).Uint64(uint64(r.kind))
	if r.kind == ReplyOK {
		e.Bytes(r.value)
	} else {
		e.Uint64(uint64(r.err.Code)).Text(r.err.Message)
	}
	return e.Encoded()
}

func unmarshalReply(data []byte) (*reply, error) {
	d := NewDecoder(data)
	r := &reply{}
	var err error
	if r.exchangeID, err = d.Uint64(); err != nil {
		return nil, fmt.Errorf("exchange id: %w", err)
	}
	kind, err := d.Uint64()
	if err != nil {
		return nil, fmt.Errorf("kind: %w", err)
	}
	r.kind = ReplyKind(kind)

	switch r.kind {
	case ReplyOK:
		if r.value, err = d.Bytes(); err != nil {
			return nil, fmt.Errorf("value: %w", err)
		}
	case ReplyError:
		code, err := d.Uint64()
		if err != nil {
			return nil, fmt.Errorf("error code: %w", err)
		}
		if code > math.MaxUint32 {
			return nil, fmt.Errorf("%w: error code %d", ErrValueRange, code)
		}
		msg, err := d.Text()
		if err != nil {
			return nil, fmt.Errorf("error message: %w", err)
		}
		r.err = &types.Exception{Code: types.ErrorCode(code), Message: msg}
	default:
		return nil, fmt.Errorf("%w: reply kind %d", ErrTypeMismatch, kind)
	}
	return r, nil
}
