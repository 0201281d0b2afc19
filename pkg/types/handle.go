package types

import (
	"strconv"
	"sync/atomic"
)

// Handle 连接句柄
//
// 进程内唯一，由全局计数器分配，从 1 开始；0 表示无连接。
type Handle uint64

// InvalidHandle 无效句柄
const InvalidHandle Handle = 0

var handleCounter atomic.Uint64

// NextHandle 分配新的连接句柄
func NextHandle() Handle {
	return Handle(handleCounter.Add(1))
}

// IsValid 是否为有效句柄
func (h Handle) IsValid() bool {
	return h != InvalidHandle
}

func (h Handle) String() string {
	return strconv.FormatUint(uint64(h), 10)
}
