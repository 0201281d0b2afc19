package dispatcher

import "errors"

var (
	// ErrDuplicateExchange 相同的交换键仍在等待中
	ErrDuplicateExchange = errors.New("dispatcher: exchange already pending")
	// ErrClosed 分发器已关闭
	ErrClosed = errors.New("dispatcher: closed")
)
