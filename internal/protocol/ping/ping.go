// Package ping 实现诊断用的 RPC 协议
//
// 每个节点都暴露该协议：Ping 原样返回负载，Address 返回被调用节点的地址。
package ping

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-muddle/internal/core/muddle"
	"github.com/dep2p/go-muddle/internal/protocol/rpc"
	"github.com/dep2p/go-muddle/pkg/types"
)

const (
	// Protocol 协议号
	Protocol uint64 = 1

	// FuncPing 回显负载
	FuncPing uint64 = 1
	// FuncAddress 返回本节点地址
	FuncAddress uint64 = 2
)

// Register 在服务端注册 ping 协议，self 为本节点地址
func Register(s *rpc.Server, self types.Address) error {
	p := rpc.NewProtocol()
	if err := p.Expose(FuncPing, func(_ context.Context, req *rpc.Request) ([]byte, error) {
		payload, err := req.Args.Bytes()
		if err != nil {
			return nil, err
		}
		return rpc.NewEncoder().Bytes(payload).Encoded(), nil
	}); err != nil {
		return err
	}
	if err := p.Expose(FuncAddress, func(context.Context, *rpc.Request) ([]byte, error) {
		return rpc.NewEncoder().Address(self).Encoded(), nil
	}); err != nil {
		return err
	}
	return s.Add(Protocol, p)
}

// Ping 向 addr 发送 payload 并返回往返时间
func Ping(ctx context.Context, c *rpc.Client, addr types.Address, payload []byte) (time.Duration, error) {
	start := time.Now()
	d, err := c.Invoke(ctx, addr, Protocol, FuncPing, rpc.Bytes(payload))
	if err != nil {
		return 0, err
	}
	echo, err := d.Bytes()
	if err != nil {
		return 0, err
	}
	if !bytes.Equal(echo, payload) {
		return 0, fmt.Errorf("%w: echo differs from payload", types.ErrSerialization)
	}
	return time.Since(start), nil
}

// RemoteAddress 查询 addr 上节点报告的地址
func RemoteAddress(ctx context.Context, c *rpc.Client, addr types.Address) (types.Address, error) {
	d, err := c.Invoke(ctx, addr, Protocol, FuncAddress)
	if err != nil {
		return types.ZeroAddress, err
	}
	return d.Address()
}

// Module 返回 fx 模块，在 RPC 服务端注册 ping 协议
func Module() fx.Option {
	return fx.Module("ping",
		fx.Invoke(func(s *rpc.Server, m *muddle.Muddle) error {
			return Register(s, m.Address())
		}),
	)
}
