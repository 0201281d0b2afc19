package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/dep2p/go-muddle/internal/util/logger"
	"github.com/dep2p/go-muddle/pkg/lib/promise"
	"github.com/dep2p/go-muddle/pkg/types"
)

var log = logger.Logger("muddle.rpc")

// Exchanger 客户端发送请求所需的能力，由 *router.Router 实现
type Exchanger interface {
	ExchangeFunc(target types.Address, service, channel uint16, build func(exchangeID uint64) ([]byte, error)) (*promise.Promise, error)
}

// Arg 向调用参数写入一个值
type Arg func(e *Encoder)

// Bytes 字节串参数
func Bytes(v []byte) Arg { return func(e *Encoder) { e.Bytes(v) } }

// Text 字符串参数
func Text(v string) Arg { return func(e *Encoder) { e.Text(v) } }

// Uint64 无符号整数参数
func Uint64(v uint64) Arg { return func(e *Encoder) { e.Uint64(v) } }

// Int64 有符号整数参数
func Int64(v int64) Arg { return func(e *Encoder) { e.Int64(v) } }

// Bool 布尔参数
func Bool(v bool) Arg { return func(e *Encoder) { e.Bool(v) } }

// Address 地址参数
func Address(v types.Address) Arg { return func(e *Encoder) { e.Address(v) } }

// Client RPC 客户端
type Client struct {
	ex      Exchanger
	service uint16
	channel uint16
}

// NewClient 创建客户端
func NewClient(ex Exchanger, cfg Config) (*Client, error) {
	if ex == nil {
		return nil, ErrNilRouter
	}
	cfg.applyDefaults()
	return &Client{ex: ex, service: cfg.Service, channel: cfg.Channel}, nil
}

// Call 向 addr 发起调用，返回结果 Promise
//
// 交换先于发送登记。同步发送失败时 Promise 立即以 CodeCouldNotDeliver 失败，
// 分发器中不留登记。成功时 Promise 的值是处理函数返回的编码结果，
// 远端错误以 *types.Exception 形式出现。ctx 结束时 Promise 以 ctx.Err() 失败。
func (c *Client) Call(ctx context.Context, addr types.Address, protocol, function uint64, args ...Arg) *promise.Promise {
	result := promise.New()
	if err := ctx.Err(); err != nil {
		result.Fail(err)
		return result
	}

	enc := NewEncoder()
	for _, arg := range args {
		arg(enc)
	}

	ex, err := c.ex.ExchangeFunc(addr, c.service, c.channel, func(exchangeID uint64) ([]byte, error) {
		req := &call{exchangeID: exchangeID, protocol: protocol, function: function, args: enc.Encoded()}
		return req.marshal(), nil
	})
	if err != nil {
		log.Debug("调用发送失败",
			"target", addr.ShortString(),
			"protocol", protocol,
			"function", function,
			"error", err)
		if ex != nil && ex.Err() != nil {
			result.Fail(ex.Err())
		} else {
			result.Fail(types.NewException(types.CodeCouldNotDeliver, "%v", err))
		}
		return result
	}

	exchangeID := ex.ID()
	ex.WithHandlers().
		Then(func(value []byte) {
			c.resolve(result, exchangeID, value)
		}).
		Catch(func(err error) {
			if errors.Is(err, types.ErrTimeout) {
				result.Timeout()
				return
			}
			result.Fail(err)
		})

	if done := ctx.Done(); done != nil {
		go func() {
			select {
			case <-done:
				result.Fail(ctx.Err())
			case <-result.Done():
			}
		}()
	}
	return result
}

// Invoke 调用并等待结果
func (c *Client) Invoke(ctx context.Context, addr types.Address, protocol, function uint64, args ...Arg) (*Decoder, error) {
	value, err := c.Call(ctx, addr, protocol, function, args...).Await(ctx)
	if err != nil {
		return nil, err
	}
	return NewDecoder(value), nil
}

func (c *Client) resolve(result *promise.Promise, exchangeID uint64, payload []byte) {
	r, err := unmarshalReply(payload)
	if err != nil {
		result.Fail(types.NewException(types.CodeSerialization, "reply: %v", err))
		return
	}
	if r.exchangeID != exchangeID {
		result.Fail(fmt.Errorf("%w: %w: want %d, got %d", types.ErrSerialization, ErrExchangeMismatch, exchangeID, r.exchangeID))
		return
	}
	if r.kind == ReplyError {
		result.Fail(r.err)
		return
	}
	result.Fulfill(r.value)
}
