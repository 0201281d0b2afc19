package muddle

import "errors"

var (
	// ErrNilIdentity 缺少节点身份
	ErrNilIdentity = errors.New("muddle: identity is required")
	// ErrNotStarted 节点尚未启动
	ErrNotStarted = errors.New("muddle: not started")
	// ErrAlreadyStarted 节点已启动
	ErrAlreadyStarted = errors.New("muddle: already started")
	// ErrAlreadyConnecting 对端正在连接或已连接
	ErrAlreadyConnecting = errors.New("muddle: peer already connecting or connected")
	// ErrBadHandshake 握手消息无法解析
	ErrBadHandshake = errors.New("muddle: malformed handshake")
)
