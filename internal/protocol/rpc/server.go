package rpc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/dep2p/go-muddle/internal/core/packet"
	"github.com/dep2p/go-muddle/internal/core/router"
	"github.com/dep2p/go-muddle/pkg/types"
)

// Request 服务端收到的调用
type Request struct {
	From     types.Address
	Protocol uint64
	Function uint64
	Args     *Decoder
}

// Handler 处理调用，返回编码后的结果
//
// 返回 *types.Exception 时错误码原样回传，其他错误以 CodeRemote 回传。
type Handler func(ctx context.Context, req *Request) ([]byte, error)

// Protocol 一组按函数号注册的处理函数
type Protocol struct {
	mu        sync.RWMutex
	functions map[uint64]Handler
}

// NewProtocol 创建空协议
func NewProtocol() *Protocol {
	return &Protocol{functions: make(map[uint64]Handler)}
}

// Expose 注册函数
func (p *Protocol) Expose(function uint64, h Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.functions[function]; exists {
		return fmt.Errorf("%w: %d", ErrFunctionExists, function)
	}
	p.functions[function] = h
	return nil
}

// Functions 已注册的函数号
func (p *Protocol) Functions() []uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]uint64, 0, len(p.functions))
	for fn := range p.functions {
		out = append(out, fn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p *Protocol) lookup(function uint64) (Handler, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.functions[function]
	return h, ok
}

// Endpoint 服务端收发所需的能力，由 *router.Router 实现
type Endpoint interface {
	Subscribe(service, channel uint16) *router.Subscription
	SendWithCounter(target types.Address, service, channel, counter uint16, payload []byte, exchange bool) error
}

// Server RPC 服务端
//
// 在 (Service, Channel) 上订阅调用请求，每个请求在独立 goroutine 中处理，
// 并发数受 MaxConcurrentCalls 限制；达到上限时读取连接的 goroutine 等待空位。
type Server struct {
	ep      Endpoint
	service uint16
	channel uint16
	sem     *semaphore.Weighted
	sub     *router.Subscription

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	protocols map[uint64]*Protocol
	closed    bool
}

// NewServer 创建服务端并开始接收调用
func NewServer(ep Endpoint, cfg Config) (*Server, error) {
	if ep == nil {
		return nil, ErrNilRouter
	}
	cfg.applyDefaults()

	s := &Server{
		ep:        ep,
		service:   cfg.Service,
		channel:   cfg.Channel,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrentCalls),
		protocols: make(map[uint64]*Protocol),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.sub = ep.Subscribe(cfg.Service, cfg.Channel)
	s.sub.SetMessageHandler(s.onMessage)
	return s, nil
}

// Add 注册协议
func (s *Server) Add(protocol uint64, p *Protocol) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServerClosed
	}
	if _, exists := s.protocols[protocol]; exists {
		return fmt.Errorf("%w: %d", ErrProtocolExists, protocol)
	}
	s.protocols[protocol] = p
	return nil
}

// Remove 注销协议
func (s *Server) Remove(protocol uint64) {
	s.mu.Lock()
	delete(s.protocols, protocol)
	s.mu.Unlock()
}

// Protocols 已注册的协议号
func (s *Server) Protocols() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]uint64, 0, len(s.protocols))
	for id := range s.protocols {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close 停止接收调用并等待处理中的调用结束
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.sub.Close()
	s.wg.Wait()
	return nil
}

func (s *Server) onMessage(p *packet.Packet) {
	// 不匹配任何交换的回复也会落到这里
	if !p.Exchange {
		return
	}

	c, err := unmarshalCall(p.Payload)
	if err != nil {
		log.Debug("丢弃无法解析的调用", "from", p.Sender.ShortString(), "error", err)
		return
	}

	if err := s.sem.Acquire(s.ctx, 1); err != nil {
		return
	}
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		s.sem.Release(1)
		return
	}
	s.wg.Add(1)
	s.mu.RUnlock()

	go func() {
		defer s.wg.Done()
		defer s.sem.Release(1)
		s.serve(p, c)
	}()
}

func (s *Server) serve(p *packet.Packet, c *call) {
	r := s.invoke(p.Sender, c)
	if err := s.ep.SendWithCounter(p.Sender, s.service, s.channel, p.Counter, r.marshal(), false); err != nil {
		log.Debug("回复发送失败",
			"target", p.Sender.ShortString(),
			"protocol", c.protocol,
			"function", c.function,
			"error", err)
	}
}

func (s *Server) invoke(from types.Address, c *call) (r *reply) {
	s.mu.RLock()
	proto, ok := s.protocols[c.protocol]
	s.mu.RUnlock()
	if !ok {
		return errorReply(c.exchangeID, types.NewException(types.CodeUnknownProtocol, "protocol %d", c.protocol))
	}
	h, ok := proto.lookup(c.function)
	if !ok {
		return errorReply(c.exchangeID, types.NewException(types.CodeUnknownFunction, "protocol %d function %d", c.protocol, c.function))
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("处理函数 panic", "protocol", c.protocol, "function", c.function, "panic", rec)
			r = errorReply(c.exchangeID, types.NewException(types.CodeRemote, "panic: %v", rec))
		}
	}()

	value, err := h(s.ctx, &Request{
		From:     from,
		Protocol: c.protocol,
		Function: c.function,
		Args:     NewDecoder(c.args),
	})
	if err != nil {
		var ex *types.Exception
		switch {
		case errors.As(err, &ex):
			return errorReply(c.exchangeID, ex)
		case errors.Is(err, ErrTypeMismatch), errors.Is(err, ErrTruncated), errors.Is(err, ErrValueRange):
			return errorReply(c.exchangeID, types.NewException(types.CodeSerialization, "%v", err))
		}
		return errorReply(c.exchangeID, types.NewException(types.CodeRemote, "%v", err))
	}
	return okReply(c.exchangeID, value)
}
