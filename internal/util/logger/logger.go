// Package logger 提供 Muddle 的分子系统日志
//
// 基于标准库 log/slog，每个包持有一个子系统 Logger:
//
//	var log = logger.Logger("muddle.router")
//
//	log.Debug("转发数据包", "target", pkt.Target, "ttl", pkt.TTL)
//
// 环境变量:
//
//	# 全局 info，router 子系统 debug
//	MUDDLE_LOG_LEVEL=muddle.router=debug,info
//
//	# JSON 输出
//	MUDDLE_LOG_FORMAT=json
package logger

import (
	"io"
	"log/slog"
	"sync"
)

var (
	mu       sync.Mutex
	registry = make(map[string]*entry)
)

type entry struct {
	logger  *slog.Logger
	handler *subsystemHandler
}

// Logger 返回子系统 Logger，同名多次调用返回同一实例
func Logger(subsystem string) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()

	if e, ok := registry[subsystem]; ok {
		return e.logger
	}
	h := newSubsystemHandler(subsystem, ConfigFromEnv())
	e := &entry{logger: slog.New(h), handler: h}
	registry[subsystem] = e
	return e.logger
}

// SetLevel 运行时调整单个子系统的级别
func SetLevel(subsystem string, level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	if e, ok := registry[subsystem]; ok {
		e.handler.level.Set(level)
	}
}

// SetGlobalLevel 调整所有已创建子系统的级别
func SetGlobalLevel(level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	for _, e := range registry {
		e.handler.level.Set(level)
	}
}

// SetOutput 设置日志输出目标，对已创建的 Logger 立即生效
func SetOutput(w io.Writer) {
	outputMu.Lock()
	output = w
	outputMu.Unlock()
}

// Discard 返回丢弃所有输出的 Logger（用于测试）
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}
