package rpc

import "errors"

// 错误定义
var (
	// ErrNilRouter 路由器为 nil
	ErrNilRouter = errors.New("rpc: router is nil")

	// ErrProtocolExists 协议号已注册
	ErrProtocolExists = errors.New("rpc: protocol already registered")

	// ErrFunctionExists 函数号已注册
	ErrFunctionExists = errors.New("rpc: function already exposed")

	// ErrTypeMismatch 读取的值类型与编码不符
	ErrTypeMismatch = errors.New("rpc: value type mismatch")

	// ErrTruncated 数据不完整
	ErrTruncated = errors.New("rpc: truncated value")

	// ErrValueRange 值超出目标类型的范围
	ErrValueRange = errors.New("rpc: value out of range")

	// ErrExchangeMismatch 回复中的交换 ID 与请求不一致
	ErrExchangeMismatch = errors.New("rpc: exchange id mismatch")

	// ErrServerClosed 服务端已关闭
	ErrServerClosed = errors.New("rpc: server closed")
)
