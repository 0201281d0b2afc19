package router

import "errors"

var (
	// ErrNilSigner 缺少节点身份
	ErrNilSigner = errors.New("router: signer is required")
	// ErrNilRegister 缺少连接注册表
	ErrNilRegister = errors.New("router: register is required")
	// ErrNilDispatcher 缺少分发器
	ErrNilDispatcher = errors.New("router: dispatcher is required")
)
